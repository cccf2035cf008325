package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseinsights/sentiment-pipeline/internal/sentiment"
	"github.com/pulseinsights/sentiment-pipeline/internal/storage"
	"github.com/pulseinsights/sentiment-pipeline/pkg/kafka"
)

type capturingPublisher struct {
	events  []kafka.Event
	failAt  int
	records *storage.MemoryBatchRecords

	// recordStatusAtPublish captures the batch record's status at the
	// moment each message is published.
	recordStatusAtPublish []sentiment.BatchStatus
}

func (p *capturingPublisher) Publish(ctx context.Context, event kafka.Event) error {
	if p.failAt > 0 && len(p.events)+1 == p.failAt {
		return errors.New("broker unavailable")
	}
	if p.records != nil {
		msg := event.Value.(sentiment.BatchMessage)
		list, _ := p.records.List(ctx)
		for _, record := range list {
			if record.BatchID == msg.BatchID {
				p.recordStatusAtPublish = append(p.recordStatusAtPublish, record.Status)
			}
		}
	}
	p.events = append(p.events, event)
	return nil
}

func itemsOf(n int) []sentiment.Item {
	items := make([]sentiment.Item, n)
	for i := range items {
		items[i] = sentiment.Item{
			Title: fmt.Sprintf("post %d", i),
			URL:   fmt.Sprintf("https://example.com/%d", i),
		}
	}
	return items
}

func decodeBatch(t *testing.T, event kafka.Event) (string, []sentiment.Item) {
	t.Helper()
	msg, ok := event.Value.(sentiment.BatchMessage)
	require.True(t, ok)
	var items []sentiment.Item
	require.NoError(t, json.Unmarshal(msg.Items, &items))
	return msg.BatchID, items
}

func TestDispatchSplitsIntoCeilBatches(t *testing.T) {
	publisher := &capturingPublisher{}
	records := storage.NewMemoryBatchRecords()
	d := New(publisher, records, 10, nil)

	count, err := d.Dispatch(context.Background(), itemsOf(23))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	require.Len(t, publisher.events, 3)

	sizes := make([]int, 0, 3)
	for _, event := range publisher.events {
		_, items := decodeBatch(t, event)
		sizes = append(sizes, len(items))
	}
	assert.Equal(t, []int{10, 10, 3}, sizes)
}

func TestDispatchPreservesItemOrder(t *testing.T) {
	publisher := &capturingPublisher{}
	d := New(publisher, storage.NewMemoryBatchRecords(), 10, nil)

	original := itemsOf(23)
	_, err := d.Dispatch(context.Background(), original)
	require.NoError(t, err)

	var reassembled []sentiment.Item
	for _, event := range publisher.events {
		_, items := decodeBatch(t, event)
		reassembled = append(reassembled, items...)
	}
	assert.Equal(t, original, reassembled)
}

func TestDispatchBatchIDsShareRunStampWithSequentialIndex(t *testing.T) {
	publisher := &capturingPublisher{}
	d := New(publisher, storage.NewMemoryBatchRecords(), 5, nil)

	_, err := d.Dispatch(context.Background(), itemsOf(12))
	require.NoError(t, err)
	require.Len(t, publisher.events, 3)

	for i, event := range publisher.events {
		batchID, _ := decodeBatch(t, event)
		assert.Equal(t, event.Key, batchID)
		assert.Regexp(t, fmt.Sprintf(`^\d{8}_\d{6}_%d$`, i), batchID)
	}

	first, _ := decodeBatch(t, publisher.events[0])
	second, _ := decodeBatch(t, publisher.events[1])
	assert.Equal(t, first[:15], second[:15], "batches of one run share the timestamp prefix")
}

func TestDispatchRegistersPendingRecordBeforePublish(t *testing.T) {
	records := storage.NewMemoryBatchRecords()
	publisher := &capturingPublisher{records: records}
	d := New(publisher, records, 10, nil)

	_, err := d.Dispatch(context.Background(), itemsOf(23))
	require.NoError(t, err)

	require.Len(t, publisher.recordStatusAtPublish, 3)
	for _, status := range publisher.recordStatusAtPublish {
		assert.Equal(t, sentiment.StatusPending, status)
	}
}

// fastConsumerPublisher completes each batch synchronously inside Publish,
// the way a consumer that wins every race would, and counts how often that
// completion found every registered record of the run already done.
type fastConsumerPublisher struct {
	records          *storage.MemoryBatchRecords
	allDoneSightings int
}

func (p *fastConsumerPublisher) Publish(ctx context.Context, event kafka.Event) error {
	msg := event.Value.(sentiment.BatchMessage)
	if err := p.records.MarkDone(ctx, msg.BatchID); err != nil {
		return err
	}
	list, err := p.records.List(ctx)
	if err != nil {
		return err
	}
	allDone := true
	for _, record := range list {
		if record.Status != sentiment.StatusDone {
			allDone = false
			break
		}
	}
	if allDone {
		p.allDoneSightings++
	}
	return nil
}

func TestDispatchRegistersWholeRunBeforeFirstPublish(t *testing.T) {
	records := storage.NewMemoryBatchRecords()
	publisher := &fastConsumerPublisher{records: records}
	d := New(publisher, records, 10, nil)

	count, err := d.Dispatch(context.Background(), itemsOf(23))
	require.NoError(t, err)
	require.Equal(t, 3, count)

	// Even when every batch completes before the next one is published,
	// the run only looks fully done once, at the final batch. Otherwise an
	// aggregation could fire on a partial run.
	assert.Equal(t, 1, publisher.allDoneSightings)
}

func TestDispatchEmptyCollectionIsNoOp(t *testing.T) {
	publisher := &capturingPublisher{}
	records := storage.NewMemoryBatchRecords()
	d := New(publisher, records, 10, nil)

	count, err := d.Dispatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, publisher.events)

	list, err := records.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDispatchPublishFailureAbortsRun(t *testing.T) {
	publisher := &capturingPublisher{failAt: 2}
	records := storage.NewMemoryBatchRecords()
	d := New(publisher, records, 10, nil)

	count, err := d.Dispatch(context.Background(), itemsOf(25))
	require.Error(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, publisher.events, 1)
}

func TestDispatchDefaultsBatchSize(t *testing.T) {
	publisher := &capturingPublisher{}
	d := New(publisher, storage.NewMemoryBatchRecords(), 0, nil)

	count, err := d.Dispatch(context.Background(), itemsOf(DefaultBatchSize+1))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
