// Command dispatcher starts the batch dispatch HTTP service.
//
// The service accepts trigger requests via POST /api/v1/dispatch, fetches and
// normalizes items for a keyword from the configured upstream sources, splits
// them into fixed-size batches, records each batch as pending, and publishes
// the batches to a Kafka topic for downstream classification. It provides
// health endpoints at GET /health/live and GET /health/ready.
//
// Usage:
//
//	go run ./cmd/dispatcher [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pulseinsights/sentiment-pipeline/internal/dispatch"
	"github.com/pulseinsights/sentiment-pipeline/internal/ingest"
	"github.com/pulseinsights/sentiment-pipeline/internal/storage"
	"github.com/pulseinsights/sentiment-pipeline/pkg/config"
	"github.com/pulseinsights/sentiment-pipeline/pkg/health"
	"github.com/pulseinsights/sentiment-pipeline/pkg/kafka"
	"github.com/pulseinsights/sentiment-pipeline/pkg/logger"
	"github.com/pulseinsights/sentiment-pipeline/pkg/metrics"
	"github.com/pulseinsights/sentiment-pipeline/pkg/middleware"
	"github.com/pulseinsights/sentiment-pipeline/pkg/redis"
)

// main loads configuration, connects to Redis, creates the Kafka producer,
// wires up the dispatch handler, and starts the HTTP server. Graceful
// shutdown is triggered by SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting dispatcher service", "port", cfg.Server.Port)

	m := metrics.New()

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.Info("connected to redis", "addr", cfg.Redis.Addr)

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Batches)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.Batches)

	records := storage.NewRedisBatchRecords(redisClient)
	fetcher := ingest.NewService(ingest.SourcesFromConfig(cfg.Ingest)...)
	dispatcher := dispatch.New(producer, records, cfg.Dispatch.BatchSize, m)
	h := dispatch.NewHandler(fetcher, dispatcher)

	checker := health.NewChecker()
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/dispatch", h.Dispatch)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     chain,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
		metricsServer.Start()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("dispatcher service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("dispatcher service stopped")
}
