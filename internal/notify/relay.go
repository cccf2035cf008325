package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pulseinsights/sentiment-pipeline/pkg/kafka"
)

// Publisher is the queue surface the relay writes to. *kafka.Producer
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// QueueRelay implements Broadcaster by forwarding payloads over the
// notification topic. The push gateway consumes the topic and performs the
// actual per-connection fan-out, so processor and aggregator invocations
// never hold websocket connections themselves.
type QueueRelay struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewQueueRelay(publisher Publisher) *QueueRelay {
	return &QueueRelay{
		publisher: publisher,
		logger:    slog.Default().With("component", "notify-relay"),
	}
}

// Broadcast publishes the payload to the notification topic.
func (r *QueueRelay) Broadcast(ctx context.Context, payload []byte) error {
	err := r.publisher.Publish(ctx, kafka.Event{
		Key:   "event",
		Value: json.RawMessage(payload),
	})
	if err != nil {
		return fmt.Errorf("relaying event: %w", err)
	}
	return nil
}
