package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseinsights/sentiment-pipeline/internal/storage"
	apperrors "github.com/pulseinsights/sentiment-pipeline/pkg/errors"
)

type hubHarness struct {
	hub      *Hub
	registry *storage.MemoryConnectionRegistry
	server   *httptest.Server
}

func newHubHarness(t *testing.T, maxConnections int) *hubHarness {
	t.Helper()
	registry := storage.NewMemoryConnectionRegistry()
	hub := NewHub(registry, time.Second, maxConnections, nil)
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return &hubHarness{hub: hub, registry: registry, server: server}
}

func (h *hubHarness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(h.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitForConnections polls until the registry holds n entries.
func (h *hubHarness) waitForConnections(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ids, err := h.registry.List(context.Background())
		require.NoError(t, err)
		if len(ids) == n {
			return ids
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("registry never reached %d connections", n)
	return nil
}

func TestHubDeliversToSubscriber(t *testing.T) {
	h := newHubHarness(t, 0)
	conn := h.dial(t)

	ids := h.waitForConnections(t, 1)

	require.NoError(t, h.hub.Send(context.Background(), ids[0], []byte(`{"event":"x"}`)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"x"}`, string(payload))
}

func TestHubSendUnknownConnectionIsGone(t *testing.T) {
	h := newHubHarness(t, 0)

	err := h.hub.Send(context.Background(), "never-registered", []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConnectionGone)
}

func TestHubDisconnectDeregisters(t *testing.T) {
	h := newHubHarness(t, 0)
	conn := h.dial(t)
	h.waitForConnections(t, 1)

	require.NoError(t, conn.Close())
	h.waitForConnections(t, 0)
}

func TestHubEnforcesConnectionLimit(t *testing.T) {
	h := newHubHarness(t, 1)
	h.dial(t)
	h.waitForConnections(t, 1)

	wsURL := "ws" + strings.TrimPrefix(h.server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHubBroadcastThroughNotifier(t *testing.T) {
	h := newHubHarness(t, 0)
	first := h.dial(t)
	second := h.dial(t)
	h.waitForConnections(t, 2)

	n := New(h.registry, h.hub, nil)
	require.NoError(t, n.Broadcast(context.Background(), []byte(`{"event":"insight_completed"}`)))

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Contains(t, string(payload), "insight_completed")
	}
}
