package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pulseinsights/sentiment-pipeline/internal/storage"
	apperrors "github.com/pulseinsights/sentiment-pipeline/pkg/errors"
	"github.com/pulseinsights/sentiment-pipeline/pkg/metrics"
)

// Hub owns the websocket connections of one gateway process and implements
// Transport for them. Each connection gets a dedicated writer goroutine; a
// full send buffer or a write error counts as a gone connection.
//
// The Hub assumes it is the only gateway process: the shared registry must
// contain only connections this Hub holds, since Send reports any unknown
// connection as gone and the Notifier then deregisters it. Running multiple
// gateways requires partitioning the registry per gateway instance.
type Hub struct {
	registry       storage.ConnectionRegistry
	upgrader       websocket.Upgrader
	writeTimeout   time.Duration
	maxConnections int
	metrics        *metrics.Metrics
	logger         *slog.Logger

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
}

// NewHub creates a Hub backed by the shared connection registry.
func NewHub(registry storage.ConnectionRegistry, writeTimeout time.Duration, maxConnections int, m *metrics.Metrics) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Hub{
		registry:       registry,
		upgrader:       websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
		writeTimeout:   writeTimeout,
		maxConnections: maxConnections,
		metrics:        m,
		logger:         slog.Default().With("component", "ws-hub"),
		clients:        make(map[string]*client),
	}
}

// HandleWS upgrades an HTTP request to a websocket subscription, registers
// the connection, and blocks until the subscriber disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.maxConnections > 0 && len(h.clients) >= h.maxConnections {
		h.mu.Unlock()
		http.Error(w, `{"error":"too many connections"}`, http.StatusServiceUnavailable)
		return
	}
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	connectionID := uuid.NewString()
	if err := h.registry.Add(r.Context(), connectionID); err != nil {
		h.logger.Error("failed to register connection", "connection_id", connectionID, "error", err)
		conn.Close()
		return
	}

	c := &client{
		conn:   conn,
		sendCh: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[connectionID] = c
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.ActiveConnections.Inc()
	}
	h.logger.Info("subscriber connected", "connection_id", connectionID)

	go h.writePump(connectionID, c)
	h.readPump(connectionID, c)
}

// readPump discards incoming frames and detects disconnects.
func (h *Hub) readPump(connectionID string, c *client) {
	defer h.drop(context.Background(), connectionID)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(connectionID string, c *client) {
	for {
		select {
		case payload, ok := <-c.sendCh:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.drop(context.Background(), connectionID)
				return
			}
		case <-c.done:
			return
		}
	}
}

// Send delivers one payload to one connection. A connection this gateway
// does not hold, or cannot keep up with, is reported gone.
func (h *Hub) Send(ctx context.Context, connectionID string, payload []byte) error {
	h.mu.Lock()
	c, ok := h.clients[connectionID]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrConnectionGone, connectionID)
	}
	select {
	case c.sendCh <- payload:
		return nil
	default:
		h.drop(ctx, connectionID)
		return fmt.Errorf("%w: %s (send buffer full)", apperrors.ErrConnectionGone, connectionID)
	}
}

// drop closes a connection and removes it locally and from the registry.
func (h *Hub) drop(ctx context.Context, connectionID string) {
	h.mu.Lock()
	c, ok := h.clients[connectionID]
	if ok {
		delete(h.clients, connectionID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	close(c.done)
	c.conn.Close()
	if err := h.registry.Remove(ctx, connectionID); err != nil {
		h.logger.Error("failed to deregister connection", "connection_id", connectionID, "error", err)
	}
	if h.metrics != nil {
		h.metrics.ActiveConnections.Dec()
	}
	h.logger.Info("subscriber disconnected", "connection_id", connectionID)
}

// Close tears down every connection, leaving registry entries to be pruned
// by the next broadcast.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
		c.conn.Close()
	}
}
