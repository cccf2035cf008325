// Command gateway starts the WebSocket push gateway.
//
// Browsers connect via GET /ws; each connection is registered in the shared
// Redis connection registry. The gateway consumes notification payloads from
// Kafka and fans them out to every registered connection, pruning connections
// that have gone away.
//
// Usage:
//
//	go run ./cmd/gateway [-config configs/development.yaml]
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

	"github.com/pulseinsights/sentiment-pipeline/internal/notify"
	"github.com/pulseinsights/sentiment-pipeline/internal/storage"
	"github.com/pulseinsights/sentiment-pipeline/pkg/config"
	"github.com/pulseinsights/sentiment-pipeline/pkg/health"
	"github.com/pulseinsights/sentiment-pipeline/pkg/kafka"
	"github.com/pulseinsights/sentiment-pipeline/pkg/logger"
	"github.com/pulseinsights/sentiment-pipeline/pkg/metrics"
	"github.com/pulseinsights/sentiment-pipeline/pkg/middleware"
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
	slog.Info("starting gateway service", "port", cfg.Gateway.Port)

	m := metrics.New()

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.Info("connected to redis", "addr", cfg.Redis.Addr)

	registry := storage.NewRedisConnectionRegistry(redisClient)
	hub := notify.NewHub(registry, cfg.Gateway.WriteTimeout, cfg.Gateway.MaxConnections, m)
	defer hub.Close()
	notifier := notify.New(registry, hub, m)

	checker := health.NewChecker()
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", hub.HandleWS)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Gateway.Port),
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

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Notifications,
		func(ctx context.Context, key, value []byte) error {
			return notifier.Broadcast(ctx, value)
		},
	)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("consumer error", "error", err)
		}
	}()
	slog.Info("notification consumer started", "topic", cfg.Kafka.Topics.Notifications)

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

	slog.Info("gateway service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway service stopped")
}
