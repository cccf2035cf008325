package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pulseinsights/sentiment-pipeline/internal/sentiment"
	"github.com/pulseinsights/sentiment-pipeline/pkg/redis"
)

const (
	batchRecordsKey  = "sentiment:batches"
	aggregateLockKey = "sentiment:lock:aggregate"
	connectionsKey   = "sentiment:connections"
)

// RedisBatchRecords stores batch completion records in a Redis hash keyed by
// batch ID.
type RedisBatchRecords struct {
	client *redis.Client
}

func NewRedisBatchRecords(client *redis.Client) *RedisBatchRecords {
	return &RedisBatchRecords{client: client}
}

func (r *RedisBatchRecords) List(ctx context.Context) ([]sentiment.BatchRecord, error) {
	entries, err := r.client.HGetAll(ctx, batchRecordsKey)
	if err != nil {
		return nil, fmt.Errorf("listing batch records: %w", err)
	}
	records := make([]sentiment.BatchRecord, 0, len(entries))
	for batchID, status := range entries {
		records = append(records, sentiment.BatchRecord{
			BatchID: batchID,
			Status:  sentiment.BatchStatus(status),
		})
	}
	return records, nil
}

func (r *RedisBatchRecords) MarkPending(ctx context.Context, batchID string) error {
	if err := r.client.HSet(ctx, batchRecordsKey, batchID, string(sentiment.StatusPending)); err != nil {
		return fmt.Errorf("marking batch %s pending: %w", batchID, err)
	}
	return nil
}

func (r *RedisBatchRecords) MarkDone(ctx context.Context, batchID string) error {
	if err := r.client.HSet(ctx, batchRecordsKey, batchID, string(sentiment.StatusDone)); err != nil {
		return fmt.Errorf("marking batch %s done: %w", batchID, err)
	}
	return nil
}

func (r *RedisBatchRecords) Delete(ctx context.Context, batchID string) error {
	if err := r.client.HDel(ctx, batchRecordsKey, batchID); err != nil {
		return fmt.Errorf("deleting batch record %s: %w", batchID, err)
	}
	return nil
}

// RedisLockManager implements the aggregation lock with SETNX plus a TTL
// lease, so a holder that crashes before releasing self-expires instead of
// blocking aggregation forever. Release is a compare-and-delete on the
// holder's token, so an expired holder cannot remove a successor's lock.
type RedisLockManager struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLockManager(client *redis.Client, ttl time.Duration) *RedisLockManager {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLockManager{client: client, ttl: ttl}
}

func (m *RedisLockManager) TryAcquire(ctx context.Context) (Lock, bool, error) {
	token := uuid.NewString()
	ok, err := m.client.SetNX(ctx, aggregateLockKey, token, m.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("acquiring aggregation lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLock{client: m.client, token: token}, true, nil
}

type redisLock struct {
	client *redis.Client
	token  string
}

func (l *redisLock) Release(ctx context.Context) error {
	if _, err := l.client.CompareAndDelete(ctx, aggregateLockKey, l.token); err != nil {
		return fmt.Errorf("releasing aggregation lock: %w", err)
	}
	return nil
}

// RedisConnectionRegistry stores subscriber connection IDs in a Redis set.
type RedisConnectionRegistry struct {
	client *redis.Client
}

func NewRedisConnectionRegistry(client *redis.Client) *RedisConnectionRegistry {
	return &RedisConnectionRegistry{client: client}
}

func (r *RedisConnectionRegistry) List(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, connectionsKey)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	return ids, nil
}

func (r *RedisConnectionRegistry) Add(ctx context.Context, connectionID string) error {
	if err := r.client.SAdd(ctx, connectionsKey, connectionID); err != nil {
		return fmt.Errorf("registering connection %s: %w", connectionID, err)
	}
	return nil
}

func (r *RedisConnectionRegistry) Remove(ctx context.Context, connectionID string) error {
	if err := r.client.SRem(ctx, connectionsKey, connectionID); err != nil {
		return fmt.Errorf("removing connection %s: %w", connectionID, err)
	}
	return nil
}
