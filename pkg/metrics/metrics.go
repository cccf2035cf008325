// Package metrics defines the Prometheus metric collectors used across the
// pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	BatchesDispatched  prometheus.Counter
	BatchesProcessed   *prometheus.CounterVec
	ItemsClassified    *prometheus.CounterVec
	ItemsSkipped       prometheus.Counter
	InferenceRequests  *prometheus.CounterVec
	InferenceLatency   prometheus.Histogram
	AggregationRuns    *prometheus.CounterVec
	LockContention     prometheus.Counter
	NotifierDeliveries *prometheus.CounterVec
	ConnectionsPruned  prometheus.Counter
	ActiveConnections  prometheus.Gauge
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		BatchesDispatched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "batches_dispatched_total",
				Help: "Total number of batches published to the batch topic.",
			},
		),
		BatchesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batches_processed_total",
				Help: "Total number of batch messages processed, by outcome.",
			},
			[]string{"outcome"},
		),
		ItemsClassified: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "items_classified_total",
				Help: "Total number of items classified, by sentiment label.",
			},
			[]string{"sentiment"},
		),
		ItemsSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "items_skipped_total",
				Help: "Total number of malformed items skipped during processing.",
			},
		),
		InferenceRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inference_requests_total",
				Help: "Total number of inference service calls, by outcome (ok, throttled, error).",
			},
			[]string{"outcome"},
		),
		InferenceLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "inference_request_duration_seconds",
				Help:    "Inference service call latency in seconds.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		AggregationRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregation_runs_total",
				Help: "Total number of aggregation attempts, by outcome (completed, not_ready, lock_held, error).",
			},
			[]string{"outcome"},
		),
		LockContention: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aggregation_lock_contention_total",
				Help: "Total number of aggregation attempts that lost the lock race.",
			},
		),
		NotifierDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_deliveries_total",
				Help: "Total number of per-connection event deliveries, by outcome (ok, gone, error).",
			},
			[]string{"outcome"},
		),
		ConnectionsPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "connections_pruned_total",
				Help: "Total number of stale connections removed from the registry.",
			},
		),
		ActiveConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_connections",
				Help: "Number of currently registered subscriber connections.",
			},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.BatchesDispatched,
		m.BatchesProcessed,
		m.ItemsClassified,
		m.ItemsSkipped,
		m.InferenceRequests,
		m.InferenceLatency,
		m.AggregationRuns,
		m.LockContention,
		m.NotifierDeliveries,
		m.ConnectionsPruned,
		m.ActiveConnections,
	)
	return m
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
