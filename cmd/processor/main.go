// Command processor starts the batch classification worker.
//
// It consumes batch messages from Kafka, classifies each item's sentiment via
// the inference service, persists the analyzed batch to PostgreSQL, marks the
// batch record done in Redis, and publishes a completion signal for the
// aggregator. A per-batch notification is also relayed to the push gateway.
//
// Usage:
//
//	go run ./cmd/processor [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/pulseinsights/sentiment-pipeline/internal/inference"
	"github.com/pulseinsights/sentiment-pipeline/internal/notify"
	"github.com/pulseinsights/sentiment-pipeline/internal/process"
	"github.com/pulseinsights/sentiment-pipeline/internal/storage"
	"github.com/pulseinsights/sentiment-pipeline/pkg/config"
	"github.com/pulseinsights/sentiment-pipeline/pkg/kafka"
	"github.com/pulseinsights/sentiment-pipeline/pkg/logger"
	"github.com/pulseinsights/sentiment-pipeline/pkg/metrics"
	"github.com/pulseinsights/sentiment-pipeline/pkg/postgres"
	"github.com/pulseinsights/sentiment-pipeline/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting processor service")

	m := metrics.New()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.Info("connected to redis", "addr", cfg.Redis.Addr)

	completions := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Completions)
	defer completions.Close()
	notifications := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Notifications)
	defer notifications.Close()

	invoker := inference.NewHTTPClient(cfg.Inference, m)
	classifier := inference.NewClassifier(invoker, cfg.Inference, clockwork.NewRealClock())

	processor := process.New(
		classifier,
		storage.NewPostgresObjects(db),
		storage.NewRedisBatchRecords(redisClient),
		completions,
		notify.NewQueueRelay(notifications),
		m,
	)

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
		metricsServer.Start()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Batches, processor.Handle)
	slog.Info("processor ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.Batches,
		"group", cfg.Kafka.ConsumerGroup,
	)

	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}

	slog.Info("processor service stopped")
}
