// Package storage defines the narrow repository interfaces behind which all
// coordination and object state lives: batch completion records, the
// aggregation lock, the subscriber connection registry, and the analyzed-batch
// and insight object stores. Every invocation of the pipeline talks to shared
// stores through these interfaces; no in-process state survives between
// invocations.
package storage

import (
	"context"

	"github.com/pulseinsights/sentiment-pipeline/internal/sentiment"
)

// BatchRecordRepository tracks the completion state of dispatched batches.
// MarkDone is a last-write-wins upsert, so redelivered completion signals are
// harmless.
type BatchRecordRepository interface {
	List(ctx context.Context) ([]sentiment.BatchRecord, error)
	MarkPending(ctx context.Context, batchID string) error
	MarkDone(ctx context.Context, batchID string) error
	Delete(ctx context.Context, batchID string) error
}

// Lock is a held aggregation lock. Release is safe to call exactly once and
// only removes the lock when this holder still owns it.
type Lock interface {
	Release(ctx context.Context) error
}

// LockManager hands out the singleton aggregation lock via an atomic
// insert-if-absent. The second return value is false when another invocation
// already holds the lock.
type LockManager interface {
	TryAcquire(ctx context.Context) (Lock, bool, error)
}

// ConnectionRegistry is the shared set of subscriber connection IDs.
type ConnectionRegistry interface {
	List(ctx context.Context) ([]string, error)
	Add(ctx context.Context, connectionID string) error
	Remove(ctx context.Context, connectionID string) error
}

// AnalyzedStore persists the classified item list of one batch under a key
// derived from the batch ID, with overwrite semantics.
type AnalyzedStore interface {
	Put(ctx context.Context, batchID string, items []sentiment.Item) error
	Get(ctx context.Context, batchID string) ([]sentiment.Item, error)
}

// InsightStore persists the final insight under one well-known key,
// overwritten every aggregation cycle.
type InsightStore interface {
	Put(ctx context.Context, insight sentiment.Insight) error
	Get(ctx context.Context) (sentiment.Insight, error)
}
