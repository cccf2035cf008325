package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pulseinsights/sentiment-pipeline/internal/sentiment"
)

// In-memory implementations of the repositories. They back unit tests and
// single-process runs; their mutation methods are atomic the same way the
// store-backed ones are.

// MemoryBatchRecords is an in-memory BatchRecordRepository.
type MemoryBatchRecords struct {
	mu      sync.Mutex
	records map[string]sentiment.BatchStatus
}

func NewMemoryBatchRecords() *MemoryBatchRecords {
	return &MemoryBatchRecords{records: make(map[string]sentiment.BatchStatus)}
}

func (m *MemoryBatchRecords) List(ctx context.Context) ([]sentiment.BatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := make([]sentiment.BatchRecord, 0, len(m.records))
	for batchID, status := range m.records {
		records = append(records, sentiment.BatchRecord{BatchID: batchID, Status: status})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].BatchID < records[j].BatchID })
	return records, nil
}

func (m *MemoryBatchRecords) MarkPending(ctx context.Context, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[batchID] = sentiment.StatusPending
	return nil
}

func (m *MemoryBatchRecords) MarkDone(ctx context.Context, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[batchID] = sentiment.StatusDone
	return nil
}

func (m *MemoryBatchRecords) Delete(ctx context.Context, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, batchID)
	return nil
}

// MemoryLockManager is an in-memory LockManager with insert-if-absent
// semantics.
type MemoryLockManager struct {
	mu   sync.Mutex
	held bool
}

func NewMemoryLockManager() *MemoryLockManager {
	return &MemoryLockManager{}
}

func (m *MemoryLockManager) TryAcquire(ctx context.Context) (Lock, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held {
		return nil, false, nil
	}
	m.held = true
	return &memoryLock{manager: m}, true, nil
}

type memoryLock struct {
	manager *MemoryLockManager
	once    sync.Once
}

func (l *memoryLock) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.manager.mu.Lock()
		l.manager.held = false
		l.manager.mu.Unlock()
	})
	return nil
}

// MemoryConnectionRegistry is an in-memory ConnectionRegistry.
type MemoryConnectionRegistry struct {
	mu          sync.Mutex
	connections map[string]struct{}
}

func NewMemoryConnectionRegistry() *MemoryConnectionRegistry {
	return &MemoryConnectionRegistry{connections: make(map[string]struct{})}
}

func (m *MemoryConnectionRegistry) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.connections))
	for id := range m.connections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryConnectionRegistry) Add(ctx context.Context, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[connectionID] = struct{}{}
	return nil
}

func (m *MemoryConnectionRegistry) Remove(ctx context.Context, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connections, connectionID)
	return nil
}

// MemoryAnalyzedStore is an in-memory AnalyzedStore.
type MemoryAnalyzedStore struct {
	mu      sync.Mutex
	batches map[string][]sentiment.Item
}

func NewMemoryAnalyzedStore() *MemoryAnalyzedStore {
	return &MemoryAnalyzedStore{batches: make(map[string][]sentiment.Item)}
}

func (m *MemoryAnalyzedStore) Put(ctx context.Context, batchID string, items []sentiment.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]sentiment.Item, len(items))
	copy(stored, items)
	m.batches[batchID] = stored
	return nil
}

func (m *MemoryAnalyzedStore) Get(ctx context.Context, batchID string) ([]sentiment.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, ok := m.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("analyzed batch %s not found", batchID)
	}
	out := make([]sentiment.Item, len(items))
	copy(out, items)
	return out, nil
}

// MemoryInsightStore is an in-memory InsightStore.
type MemoryInsightStore struct {
	mu      sync.Mutex
	insight *sentiment.Insight
}

func NewMemoryInsightStore() *MemoryInsightStore {
	return &MemoryInsightStore{}
}

func (m *MemoryInsightStore) Put(ctx context.Context, insight sentiment.Insight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insight = &insight
	return nil
}

func (m *MemoryInsightStore) Get(ctx context.Context) (sentiment.Insight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insight == nil {
		return sentiment.Insight{}, fmt.Errorf("no insight stored")
	}
	return *m.insight, nil
}
