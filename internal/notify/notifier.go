// Package notify fans event payloads out to registered subscriber
// connections. Delivery is best-effort with independent failure domains: a
// connection that reports itself gone is pruned from the registry, and any
// other per-connection failure never blocks delivery to the rest.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pulseinsights/sentiment-pipeline/internal/storage"
	apperrors "github.com/pulseinsights/sentiment-pipeline/pkg/errors"
	"github.com/pulseinsights/sentiment-pipeline/pkg/metrics"
)

// Broadcaster delivers one serialized event to every subscriber.
type Broadcaster interface {
	Broadcast(ctx context.Context, payload []byte) error
}

// Transport performs one per-connection delivery. Implementations signal an
// unreachable subscriber with errors.ErrConnectionGone.
type Transport interface {
	Send(ctx context.Context, connectionID string, payload []byte) error
}

// Notifier walks the shared connection registry and attempts delivery to
// every registered connection through the Transport.
type Notifier struct {
	registry  storage.ConnectionRegistry
	transport Transport
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Notifier. metrics may be nil.
func New(registry storage.ConnectionRegistry, transport Transport, m *metrics.Metrics) *Notifier {
	return &Notifier{
		registry:  registry,
		transport: transport,
		metrics:   m,
		logger:    slog.Default().With("component", "notifier"),
	}
}

// Broadcast sends the payload to every registered connection. Connections
// reported gone are deregistered; other delivery failures are logged and the
// fan-out continues. The returned error covers only the registry listing.
func (n *Notifier) Broadcast(ctx context.Context, payload []byte) error {
	connectionIDs, err := n.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("listing connections: %w", err)
	}

	for _, connectionID := range connectionIDs {
		err := n.transport.Send(ctx, connectionID, payload)
		switch {
		case err == nil:
			n.observe("ok")
		case errors.Is(err, apperrors.ErrConnectionGone):
			n.logger.Info("connection gone, deregistering", "connection_id", connectionID)
			if removeErr := n.registry.Remove(ctx, connectionID); removeErr != nil {
				n.logger.Error("failed to deregister connection", "connection_id", connectionID, "error", removeErr)
			}
			n.observe("gone")
			if n.metrics != nil {
				n.metrics.ConnectionsPruned.Inc()
			}
		default:
			n.logger.Warn("delivery failed", "connection_id", connectionID, "error", err)
			n.observe("error")
		}
	}
	return nil
}

func (n *Notifier) observe(outcome string) {
	if n.metrics != nil {
		n.metrics.NotifierDeliveries.WithLabelValues(outcome).Inc()
	}
}
