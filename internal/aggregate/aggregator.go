// Package aggregate reacts to batch completion signals and, once every
// dispatched batch is done, folds the per-batch results into one aggregate,
// computes statistics and trend, requests an insight, and publishes the
// final result. The singleton aggregation lock is the only serialization
// point in the pipeline: completion signals arrive unordered, duplicated,
// and concurrently, and at most one invocation may aggregate at a time.
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pulseinsights/sentiment-pipeline/internal/notify"
	"github.com/pulseinsights/sentiment-pipeline/internal/sentiment"
	"github.com/pulseinsights/sentiment-pipeline/internal/storage"
	apperrors "github.com/pulseinsights/sentiment-pipeline/pkg/errors"
	"github.com/pulseinsights/sentiment-pipeline/pkg/metrics"
	"github.com/pulseinsights/sentiment-pipeline/pkg/tracing"
)

// InsightGenerator produces the final insight text. It never fails; on
// exhaustion it returns a fallback sentence. *inference.InsightGenerator
// satisfies it.
type InsightGenerator interface {
	Generate(ctx context.Context, stats sentiment.Stats, trendScore float64, keyword string) string
}

// Aggregator runs the completion-tracking state machine. All of its state
// lives in the shared stores; concurrent invocations coordinate exclusively
// through atomic store operations.
type Aggregator struct {
	records         storage.BatchRecordRepository
	analyzed        storage.AnalyzedStore
	insights        storage.InsightStore
	locks           storage.LockManager
	generator       InsightGenerator
	broadcaster     notify.Broadcaster
	fallbackKeyword string
	metrics         *metrics.Metrics
	logger          *slog.Logger
}

// New creates an Aggregator. metrics may be nil.
func New(
	records storage.BatchRecordRepository,
	analyzed storage.AnalyzedStore,
	insights storage.InsightStore,
	locks storage.LockManager,
	generator InsightGenerator,
	broadcaster notify.Broadcaster,
	fallbackKeyword string,
	m *metrics.Metrics,
) *Aggregator {
	if fallbackKeyword == "" {
		fallbackKeyword = "Unknown"
	}
	return &Aggregator{
		records:         records,
		analyzed:        analyzed,
		insights:        insights,
		locks:           locks,
		generator:       generator,
		broadcaster:     broadcaster,
		fallbackKeyword: fallbackKeyword,
		metrics:         m,
		logger:          slog.Default().With("component", "aggregator"),
	}
}

// Handle is the kafka.MessageHandler for the completion topic.
func (a *Aggregator) Handle(ctx context.Context, key, value []byte) error {
	var completion sentiment.BatchCompletedPayload
	if err := json.Unmarshal(value, &completion); err != nil {
		return fmt.Errorf("decoding completion signal: %w", err)
	}
	return a.OnBatchCompleted(ctx, completion.BatchID)
}

// OnBatchCompleted marks the signaled batch done and attempts one
// aggregation pass. Losing the lock race or finding pending batches are
// expected outcomes, not errors; a later signal retries the whole sequence.
func (a *Aggregator) OnBatchCompleted(ctx context.Context, batchID string) error {
	if batchID != "" {
		if err := a.records.MarkDone(ctx, batchID); err != nil {
			return fmt.Errorf("marking batch %s done: %w", batchID, err)
		}
	}

	lock, acquired, err := a.locks.TryAcquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring aggregation lock: %w", err)
	}
	if !acquired {
		a.logger.Debug("another invocation is aggregating, exiting", "batch_id", batchID)
		a.observe("lock_held")
		if a.metrics != nil {
			a.metrics.LockContention.Inc()
		}
		return nil
	}
	// Every exit path from here on releases the lock; a crash that skips
	// the release is covered by the lease TTL.
	defer func() {
		if releaseErr := lock.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			a.logger.Error("failed to release aggregation lock", "error", releaseErr)
		}
	}()

	return a.aggregate(ctx)
}

// aggregate runs the readiness check, fold, and publish under the held lock.
func (a *Aggregator) aggregate(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "aggregate", uuid.NewString())
	defer func() {
		span.End()
		span.Log()
	}()

	records, err := a.records.List(ctx)
	if err != nil {
		return fmt.Errorf("listing batch records: %w", err)
	}
	if len(records) == 0 {
		a.logger.Debug("no batch records, nothing to aggregate")
		a.observe("not_ready")
		return nil
	}
	if err := allDone(records); err != nil {
		a.logger.Info("deferring aggregation", "error", err)
		a.observe("not_ready")
		return nil
	}

	// Fold: read each batch's analyzed items and delete its record, so a
	// batch is folded into exactly one aggregate.
	var aggregated []sentiment.Item
	keyword := ""
	for _, record := range records {
		items, err := a.analyzed.Get(ctx, record.BatchID)
		if err != nil {
			a.observe("error")
			return fmt.Errorf("reading analyzed batch %s: %w", record.BatchID, err)
		}
		aggregated = append(aggregated, items...)
		if err := a.records.Delete(ctx, record.BatchID); err != nil {
			a.observe("error")
			return fmt.Errorf("deleting batch record %s: %w", record.BatchID, err)
		}
		if keyword == "" {
			for _, item := range items {
				if item.Keyword != "" {
					keyword = item.Keyword
					break
				}
			}
		}
	}
	if keyword == "" {
		keyword = a.fallbackKeyword
	}
	a.logger.Info("folded all batches", "batches", len(records), "items", len(aggregated))
	span.SetAttr("batches", len(records))
	span.SetAttr("items", len(aggregated))

	stats := ComputeStats(aggregated)
	trend := ComputeTrend(aggregated)
	score := TrendScore(aggregated)

	genCtx, genSpan := tracing.StartChildSpan(ctx, "generate_insight")
	insightText := a.generator.Generate(genCtx, stats, score, keyword)
	genSpan.End()

	if err := a.insights.Put(ctx, sentiment.Insight{Text: insightText}); err != nil {
		a.observe("error")
		return fmt.Errorf("storing insight: %w", err)
	}

	event, err := sentiment.InsightCompleted(sentiment.InsightCompletedPayload{
		Insight: insightText,
		Posts:   aggregated,
		Stats:   stats,
		Trend:   trend,
		Progress: sentiment.Progress{
			CompletedBatches: len(records),
			TotalBatches:     len(records),
		},
	})
	if err != nil {
		a.observe("error")
		return fmt.Errorf("encoding insight event: %w", err)
	}
	if err := a.broadcaster.Broadcast(ctx, event); err != nil {
		a.logger.Warn("failed to broadcast insight", "error", err)
	}

	a.observe("completed")
	a.logger.Info("aggregation complete", "batches", len(records), "items", len(aggregated), "keyword", keyword)
	return nil
}

// allDone reports the first still-open batch as an ErrNotReady.
func allDone(records []sentiment.BatchRecord) error {
	for _, record := range records {
		if record.Status != sentiment.StatusDone {
			return fmt.Errorf("%w: batch %s is %s", apperrors.ErrNotReady, record.BatchID, record.Status)
		}
	}
	return nil
}

func (a *Aggregator) observe(outcome string) {
	if a.metrics != nil {
		a.metrics.AggregationRuns.WithLabelValues(outcome).Inc()
	}
}
