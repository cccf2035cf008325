package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseinsights/sentiment-pipeline/pkg/config"
	apperrors "github.com/pulseinsights/sentiment-pipeline/pkg/errors"
	"github.com/pulseinsights/sentiment-pipeline/pkg/metrics"
)

func chatServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func clientFor(endpoint string) *HTTPClient {
	return NewHTTPClient(config.InferenceConfig{
		Endpoint:          endpoint,
		Model:             "test-model",
		APIKey:            "secret",
		RequestTimeout:    5 * time.Second,
		RequestsPerSecond: 1000,
	}, nil)
}

func TestInvokeReturnsChoiceText(t *testing.T) {
	var got chatRequest
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "  Positive\nNegative  "}},
			},
		})
	})

	c := clientFor(srv.URL)
	text, err := c.Invoke(context.Background(), Request{
		System:    "classify",
		Prompt:    "1. something",
		MaxTokens: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "Positive\nNegative", text)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "classify", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, 100, got.MaxTokens)
}

func TestInvokeThrottledStatus(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	c := clientFor(srv.URL)
	_, err := c.Invoke(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrThrottled)
}

func TestInvokeServerErrorIsInferenceFailure(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusInternalServerError)
	})

	c := clientFor(srv.URL)
	_, err := c.Invoke(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInferenceFailed)
	assert.NotErrorIs(t, err, apperrors.ErrThrottled)
}

func TestInvokeEmptyChoices(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	c := clientFor(srv.URL)
	_, err := c.Invoke(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInferenceFailed)
}

func TestInvokeMalformedResponse(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	c := clientFor(srv.URL)
	_, err := c.Invoke(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInferenceFailed)
}

func TestInvokeTimesOutSlowService(t *testing.T) {
	release := make(chan struct{})
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	defer close(release)

	c := NewHTTPClient(config.InferenceConfig{
		Endpoint:          srv.URL,
		Model:             "test-model",
		RequestTimeout:    20 * time.Millisecond,
		RequestsPerSecond: 1000,
	}, nil)

	start := time.Now()
	_, err := c.Invoke(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context deadline exceeded")
	assert.Less(t, time.Since(start), 5*time.Second, "request should be cut off at the configured timeout")
}

func TestInvokeObservesLatency(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "Positive"}},
			},
		})
	})

	m := metrics.New()
	c := NewHTTPClient(config.InferenceConfig{
		Endpoint:          srv.URL,
		Model:             "test-model",
		RequestTimeout:    5 * time.Second,
		RequestsPerSecond: 1000,
	}, m)

	_, err := c.Invoke(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, testutil.CollectAndCount(m.InferenceLatency))
}

func TestInvokeMisconfiguredClient(t *testing.T) {
	c := NewHTTPClient(config.InferenceConfig{}, nil)
	_, err := c.Invoke(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInferenceFailed)
}
