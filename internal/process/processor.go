// Package process consumes batch messages, classifies their items, persists
// the analyzed result, and signals batch completion. Every effect is
// idempotent: the queue delivers at least once and redelivered messages must
// converge on the same stored state.
package process

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pulseinsights/sentiment-pipeline/internal/notify"
	"github.com/pulseinsights/sentiment-pipeline/internal/sentiment"
	"github.com/pulseinsights/sentiment-pipeline/internal/storage"
	apperrors "github.com/pulseinsights/sentiment-pipeline/pkg/errors"
	"github.com/pulseinsights/sentiment-pipeline/pkg/kafka"
	"github.com/pulseinsights/sentiment-pipeline/pkg/metrics"
)

// Classifier labels a batch of items. *inference.Classifier satisfies it.
type Classifier interface {
	Classify(ctx context.Context, items []sentiment.Item) []sentiment.Item
}

// Processor handles one batch message per invocation. Invocations run
// concurrently across processes; all coordination state lives in the shared
// stores.
type Processor struct {
	classifier  Classifier
	analyzed    storage.AnalyzedStore
	records     storage.BatchRecordRepository
	completions notify.Publisher
	broadcaster notify.Broadcaster
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// New creates a Processor. metrics may be nil.
func New(
	classifier Classifier,
	analyzed storage.AnalyzedStore,
	records storage.BatchRecordRepository,
	completions notify.Publisher,
	broadcaster notify.Broadcaster,
	m *metrics.Metrics,
) *Processor {
	return &Processor{
		classifier:  classifier,
		analyzed:    analyzed,
		records:     records,
		completions: completions,
		broadcaster: broadcaster,
		metrics:     m,
		logger:      slog.Default().With("component", "processor"),
	}
}

// Handle is the kafka.MessageHandler for the batch topic. A failure leaves
// the batch unmarked so the queue's redelivery policy retries it; it never
// affects other messages.
func (p *Processor) Handle(ctx context.Context, key, value []byte) error {
	var msg sentiment.BatchMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		p.observe("malformed")
		return fmt.Errorf("%w: decoding batch message: %v", apperrors.ErrMalformedItem, err)
	}

	items := p.decodeItems(msg.BatchID, msg.Items)
	p.logger.Info("processing batch", "batch_id", msg.BatchID, "items", len(items))

	analyzed := p.classifier.Classify(ctx, items)
	if p.metrics != nil {
		for _, item := range analyzed {
			p.metrics.ItemsClassified.WithLabelValues(string(item.Sentiment)).Inc()
		}
	}

	if err := p.analyzed.Put(ctx, msg.BatchID, analyzed); err != nil {
		p.observe("error")
		return fmt.Errorf("storing analyzed batch %s: %w", msg.BatchID, err)
	}
	if err := p.records.MarkDone(ctx, msg.BatchID); err != nil {
		p.observe("error")
		return fmt.Errorf("marking batch %s done: %w", msg.BatchID, err)
	}

	// Completion effects are best-effort from here: the batch is durably
	// done, and the aggregator trigger plus the subscriber event must not
	// un-done it.
	completion, err := json.Marshal(sentiment.BatchCompletedPayload{BatchID: msg.BatchID})
	if err == nil {
		err = p.completions.Publish(ctx, kafka.Event{Key: msg.BatchID, Value: json.RawMessage(completion)})
	}
	if err != nil {
		p.observe("error")
		return fmt.Errorf("publishing completion for batch %s: %w", msg.BatchID, err)
	}

	if event, err := sentiment.BatchCompleted(msg.BatchID); err == nil {
		if err := p.broadcaster.Broadcast(ctx, event); err != nil {
			p.logger.Warn("failed to broadcast batch completion", "batch_id", msg.BatchID, "error", err)
		}
	}

	p.observe("ok")
	p.logger.Info("batch processed", "batch_id", msg.BatchID, "items", len(analyzed))
	return nil
}

// decodeItems unwraps the item payloads defensively: the whole collection or
// any single item may arrive JSON-encoded one level too deep. Items that
// still fail to parse are logged and skipped; a bad item never aborts its
// batch.
func (p *Processor) decodeItems(batchID string, raw json.RawMessage) []sentiment.Item {
	// The collection itself may be a JSON string holding the array.
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = json.RawMessage(encoded)
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		p.logger.Warn("batch items not a JSON array, treating as empty", "batch_id", batchID, "error", err)
		return nil
	}

	items := make([]sentiment.Item, 0, len(elements))
	for _, element := range elements {
		var inner string
		if err := json.Unmarshal(element, &inner); err == nil {
			element = json.RawMessage(inner)
		}
		var item sentiment.Item
		if err := json.Unmarshal(element, &item); err != nil {
			p.logger.Warn("skipping item", "batch_id", batchID,
				"error", fmt.Errorf("%w: %v", apperrors.ErrMalformedItem, err))
			if p.metrics != nil {
				p.metrics.ItemsSkipped.Inc()
			}
			continue
		}
		items = append(items, item)
	}
	return items
}

func (p *Processor) observe(outcome string) {
	if p.metrics != nil {
		p.metrics.BatchesProcessed.WithLabelValues(outcome).Inc()
	}
}
