// Package dispatch splits a normalized item collection into fixed-size
// batches and publishes them to the batch topic for parallel processing.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulseinsights/sentiment-pipeline/internal/sentiment"
	"github.com/pulseinsights/sentiment-pipeline/internal/storage"
	"github.com/pulseinsights/sentiment-pipeline/pkg/kafka"
	"github.com/pulseinsights/sentiment-pipeline/pkg/metrics"
)

// DefaultBatchSize is used when no batch size is configured.
const DefaultBatchSize = 10

// Publisher is the queue surface the dispatcher writes to. *kafka.Producer
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Dispatcher splits item collections into contiguous batches, registers a
// pending completion record for every batch of the run, and then publishes
// one queue message per batch. Batch IDs combine the dispatch-run timestamp
// with the sequential batch index, unique within one run.
type Dispatcher struct {
	publisher Publisher
	records   storage.BatchRecordRepository
	batchSize int
	now       func() time.Time
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Dispatcher. metrics may be nil.
func New(publisher Publisher, records storage.BatchRecordRepository, batchSize int, m *metrics.Metrics) *Dispatcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Dispatcher{
		publisher: publisher,
		records:   records,
		batchSize: batchSize,
		now:       time.Now,
		metrics:   m,
		logger:    slog.Default().With("component", "dispatcher"),
	}
}

// Dispatch publishes ceil(len(items)/batchSize) batch messages, preserving
// the original item order across batches, and returns the batch count. A
// publish failure aborts the run immediately; there is no partial-dispatch
// repair beyond the queue's own delivery guarantees.
func (d *Dispatcher) Dispatch(ctx context.Context, items []sentiment.Item) (int, error) {
	if len(items) == 0 {
		d.logger.Info("nothing to dispatch")
		return 0, nil
	}

	runStamp := d.now().UTC().Format("20060102_150405")
	type batch struct {
		id      string
		payload json.RawMessage
	}
	batches := make([]batch, 0, (len(items)+d.batchSize-1)/d.batchSize)
	for start := 0; start < len(items); start += d.batchSize {
		end := start + d.batchSize
		if end > len(items) {
			end = len(items)
		}
		batchID := fmt.Sprintf("%s_%d", runStamp, len(batches))
		payload, err := json.Marshal(items[start:end])
		if err != nil {
			return 0, fmt.Errorf("marshaling batch %s: %w", batchID, err)
		}
		batches = append(batches, batch{id: batchID, payload: payload})
	}

	// Every pending record of the run exists before the first message goes
	// out. A consumer can finish a batch and signal completion before the
	// later batches are even published, and the readiness scan must still
	// see those batches as pending.
	for _, b := range batches {
		if err := d.records.MarkPending(ctx, b.id); err != nil {
			return 0, fmt.Errorf("registering batch %s: %w", b.id, err)
		}
	}

	count := 0
	for _, b := range batches {
		if err := d.publisher.Publish(ctx, kafka.Event{
			Key: b.id,
			Value: sentiment.BatchMessage{
				BatchID: b.id,
				Items:   b.payload,
			},
		}); err != nil {
			return count, fmt.Errorf("publishing batch %s: %w", b.id, err)
		}
		count++
		if d.metrics != nil {
			d.metrics.BatchesDispatched.Inc()
		}
	}

	d.logger.Info("dispatch complete", "batches", count, "items", len(items))
	return count, nil
}
