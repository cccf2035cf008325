package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pulseinsights/sentiment-pipeline/internal/sentiment"
	"github.com/pulseinsights/sentiment-pipeline/pkg/postgres"
)

// insightKey is the well-known object key of the final insight.
const insightKey = "insights/final"

// analyzedKey derives the analyzed-batch object key from a batch ID.
func analyzedKey(batchID string) string {
	return fmt.Sprintf("analyzed/%s", batchID)
}

// PostgresObjects is a PostgreSQL-backed object store holding JSON blobs in
// the objects table:
//
//	CREATE TABLE objects (
//	    object_key  TEXT PRIMARY KEY,
//	    payload     TEXT NOT NULL,
//	    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
// Upserts give the overwrite semantics the processor relies on for safe
// redelivery, and reads within the same key are strongly consistent.
type PostgresObjects struct {
	db *postgres.Client
}

func NewPostgresObjects(db *postgres.Client) *PostgresObjects {
	return &PostgresObjects{db: db}
}

func (s *PostgresObjects) put(ctx context.Context, key string, payload []byte) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO objects (object_key, payload, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (object_key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`,
		key, string(payload))
	if err != nil {
		return fmt.Errorf("storing object %s: %w", key, err)
	}
	return nil
}

func (s *PostgresObjects) get(ctx context.Context, key string) ([]byte, error) {
	var payload string
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT payload FROM objects WHERE object_key = $1`, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("object %s not found", key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", key, err)
	}
	return []byte(payload), nil
}

// Put stores the classified item list of one batch, overwriting any previous
// content for the same batch ID.
func (s *PostgresObjects) Put(ctx context.Context, batchID string, items []sentiment.Item) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshaling analyzed batch %s: %w", batchID, err)
	}
	return s.put(ctx, analyzedKey(batchID), payload)
}

// Get reads back the classified item list of one batch.
func (s *PostgresObjects) Get(ctx context.Context, batchID string) ([]sentiment.Item, error) {
	payload, err := s.get(ctx, analyzedKey(batchID))
	if err != nil {
		return nil, err
	}
	var items []sentiment.Item
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("decoding analyzed batch %s: %w", batchID, err)
	}
	return items, nil
}

// PostgresInsights persists the final insight under its well-known key.
type PostgresInsights struct {
	objects *PostgresObjects
}

func NewPostgresInsights(db *postgres.Client) *PostgresInsights {
	return &PostgresInsights{objects: NewPostgresObjects(db)}
}

func (s *PostgresInsights) Put(ctx context.Context, insight sentiment.Insight) error {
	payload, err := json.Marshal(insight)
	if err != nil {
		return fmt.Errorf("marshaling insight: %w", err)
	}
	return s.objects.put(ctx, insightKey, payload)
}

func (s *PostgresInsights) Get(ctx context.Context) (sentiment.Insight, error) {
	var insight sentiment.Insight
	payload, err := s.objects.get(ctx, insightKey)
	if err != nil {
		return insight, err
	}
	if err := json.Unmarshal(payload, &insight); err != nil {
		return insight, fmt.Errorf("decoding insight: %w", err)
	}
	return insight, nil
}
