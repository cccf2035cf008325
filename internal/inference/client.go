// Package inference wraps the rate-limited external inference service: a
// batch sentiment classifier and a single-shot insight generator, both built
// on one HTTP chat-completions client and one shared retry policy.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pulseinsights/sentiment-pipeline/pkg/config"
	apperrors "github.com/pulseinsights/sentiment-pipeline/pkg/errors"
	"github.com/pulseinsights/sentiment-pipeline/pkg/metrics"
	"github.com/pulseinsights/sentiment-pipeline/pkg/resilience"
	"golang.org/x/time/rate"
)

// Invoker is the synchronous request/response surface of the inference
// service. Implementations must surface throttling rejections as
// errors.ErrThrottled so callers can distinguish them from terminal failures.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// Request is one inference call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// HTTPClient calls an OpenAI-compatible chat-completions endpoint. Requests
// are paced client-side and guarded by a circuit breaker.
type HTTPClient struct {
	endpoint       string
	model          string
	apiKey         string
	requestTimeout time.Duration
	httpClient     *http.Client
	limiter        *rate.Limiter
	breaker        *resilience.CircuitBreaker
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// NewHTTPClient builds a client from configuration. metrics may be nil.
func NewHTTPClient(cfg config.InferenceConfig, m *metrics.Metrics) *HTTPClient {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &HTTPClient{
		endpoint:       cfg.Endpoint,
		model:          cfg.Model,
		apiKey:         cfg.APIKey,
		requestTimeout: cfg.RequestTimeout,
		httpClient:     &http.Client{},
		limiter:        rate.NewLimiter(rate.Limit(rps), 1),
		breaker:        resilience.NewCircuitBreaker("inference", resilience.CircuitBreakerConfig{}),
		metrics:        m,
		logger:         slog.Default().With("component", "inference-client"),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Invoke sends one chat-completions request and returns the response text.
func (c *HTTPClient) Invoke(ctx context.Context, req Request) (string, error) {
	if c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("%w: inference client misconfigured", apperrors.ErrInferenceFailed)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limiter: %w", err)
	}

	var text string
	err := c.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, c.requestTimeout, "inference request", func(ctx context.Context) error {
			var invokeErr error
			text, invokeErr = c.invoke(ctx, req)
			return invokeErr
		})
	})
	return text, err
}

func (c *HTTPClient) invoke(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.InferenceLatency.Observe(time.Since(start).Seconds())
		}
	}()

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling inference request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building inference request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.observe("error")
		return "", fmt.Errorf("%w: %v", apperrors.ErrInferenceFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.observe("throttled")
		return "", fmt.Errorf("%w: %s", apperrors.ErrThrottled, resp.Status)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.observe("error")
		return "", fmt.Errorf("%w: %s: %s", apperrors.ErrInferenceFailed, resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.observe("error")
		return "", fmt.Errorf("%w: decoding response: %v", apperrors.ErrInferenceFailed, err)
	}
	if len(parsed.Choices) == 0 {
		c.observe("error")
		return "", fmt.Errorf("%w: empty response", apperrors.ErrInferenceFailed)
	}
	c.observe("ok")
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func (c *HTTPClient) observe(outcome string) {
	if c.metrics != nil {
		c.metrics.InferenceRequests.WithLabelValues(outcome).Inc()
	}
}
