package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "sentiment.batches", cfg.Kafka.Topics.Batches)
	assert.Equal(t, "sentiment.completions", cfg.Kafka.Topics.Completions)
	assert.Equal(t, "sentiment.notifications", cfg.Kafka.Topics.Notifications)
	assert.Equal(t, 2*time.Minute, cfg.Redis.LockTTL)
	assert.Equal(t, 10, cfg.Dispatch.BatchSize)
	assert.Equal(t, 5, cfg.Inference.MaxAttempts)
	assert.Equal(t, "Unknown", cfg.Aggregate.FallbackKeyword)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 9999
dispatch:
  batchSize: 25
redis:
  lockTTL: 30s
ingest:
  sources:
    - name: reddit
      endpoint: http://feeds.local/reddit
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Dispatch.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Redis.LockTTL)
	require.Len(t, cfg.Ingest.Sources, 1)
	assert.Equal(t, "reddit", cfg.Ingest.Sources[0].Name)

	// Untouched sections keep their defaults.
	assert.Equal(t, "sentiment.batches", cfg.Kafka.Topics.Batches)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SP_SERVER_PORT", "7070")
	t.Setenv("SP_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SP_INFERENCE_ENDPOINT", "http://inference.local/v1/chat/completions")
	t.Setenv("SP_DISPATCH_BATCH_SIZE", "50")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "http://inference.local/v1/chat/completions", cfg.Inference.Endpoint)
	assert.Equal(t, 50, cfg.Dispatch.BatchSize)
}

func TestEnvOverrideInvalidNumberIgnored(t *testing.T) {
	t.Setenv("SP_DISPATCH_BATCH_SIZE", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Dispatch.BatchSize)
}

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresConfig{
		Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable",
	}.DSN()
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=disable", dsn)
}
