package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseinsights/sentiment-pipeline/internal/storage"
	apperrors "github.com/pulseinsights/sentiment-pipeline/pkg/errors"
	"github.com/pulseinsights/sentiment-pipeline/pkg/kafka"
)

// scriptedTransport fails specific connections and records deliveries.
type scriptedTransport struct {
	failWith  map[string]error
	delivered []string
}

func (tr *scriptedTransport) Send(ctx context.Context, connectionID string, payload []byte) error {
	if err, ok := tr.failWith[connectionID]; ok {
		return err
	}
	tr.delivered = append(tr.delivered, connectionID)
	return nil
}

func TestBroadcastDeliversToAllConnections(t *testing.T) {
	ctx := context.Background()
	registry := storage.NewMemoryConnectionRegistry()
	require.NoError(t, registry.Add(ctx, "c1"))
	require.NoError(t, registry.Add(ctx, "c2"))

	transport := &scriptedTransport{}
	n := New(registry, transport, nil)

	require.NoError(t, n.Broadcast(ctx, []byte(`{"event":"x"}`)))
	assert.Equal(t, []string{"c1", "c2"}, transport.delivered)
}

func TestBroadcastPrunesGoneConnections(t *testing.T) {
	ctx := context.Background()
	registry := storage.NewMemoryConnectionRegistry()
	require.NoError(t, registry.Add(ctx, "gone"))
	require.NoError(t, registry.Add(ctx, "live"))

	transport := &scriptedTransport{failWith: map[string]error{
		"gone": apperrors.ErrConnectionGone,
	}}
	n := New(registry, transport, nil)

	require.NoError(t, n.Broadcast(ctx, []byte("payload")))

	ids, err := registry.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, ids)
	assert.Equal(t, []string{"live"}, transport.delivered)
}

func TestBroadcastOtherFailuresKeepConnection(t *testing.T) {
	ctx := context.Background()
	registry := storage.NewMemoryConnectionRegistry()
	require.NoError(t, registry.Add(ctx, "flaky"))
	require.NoError(t, registry.Add(ctx, "healthy"))

	transport := &scriptedTransport{failWith: map[string]error{
		"flaky": errors.New("write deadline exceeded"),
	}}
	n := New(registry, transport, nil)

	require.NoError(t, n.Broadcast(ctx, []byte("payload")))

	ids, err := registry.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"flaky", "healthy"}, ids, "transient failure must not deregister")
	assert.Equal(t, []string{"healthy"}, transport.delivered)
}

func TestBroadcastEmptyRegistryIsNoOp(t *testing.T) {
	registry := storage.NewMemoryConnectionRegistry()
	transport := &scriptedTransport{}
	n := New(registry, transport, nil)

	require.NoError(t, n.Broadcast(context.Background(), []byte("payload")))
	assert.Empty(t, transport.delivered)
}

type relayPublisher struct {
	events []kafka.Event
	err    error
}

func (p *relayPublisher) Publish(ctx context.Context, event kafka.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func TestQueueRelayForwardsPayload(t *testing.T) {
	publisher := &relayPublisher{}
	relay := NewQueueRelay(publisher)

	require.NoError(t, relay.Broadcast(context.Background(), []byte(`{"event":"batch_completed"}`)))
	require.Len(t, publisher.events, 1)
	assert.JSONEq(t, `{"event":"batch_completed"}`, string(publisher.events[0].Value.(json.RawMessage)))
}

func TestQueueRelayWrapsPublishError(t *testing.T) {
	publisher := &relayPublisher{err: errors.New("broker down")}
	relay := NewQueueRelay(publisher)

	err := relay.Broadcast(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relaying event")
}
