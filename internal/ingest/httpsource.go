package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pulseinsights/sentiment-pipeline/pkg/config"
)

// HTTPSource fetches raw payloads from an upstream feed endpoint. The
// endpoint is expected to answer GET <endpoint>?keyword=<kw> with a JSON
// array of objects in the platform's native shape.
type HTTPSource struct {
	name     string
	endpoint string
	client   *http.Client
}

func NewHTTPSource(cfg config.SourceConfig, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPSource{
		name:     cfg.Name,
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// SourcesFromConfig builds one HTTPSource per configured endpoint.
func SourcesFromConfig(cfg config.IngestConfig) []Source {
	sources := make([]Source, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		sources = append(sources, NewHTTPSource(sc, cfg.RequestTimeout))
	}
	return sources
}

func (s *HTTPSource) Name() string { return s.name }

func (s *HTTPSource) Fetch(ctx context.Context, keyword string) ([]map[string]any, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint for source %s: %w", s.name, err)
	}
	q := u.Query()
	q.Set("keyword", keyword)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch from %s failed: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("source %s returned status %d: %s", s.name, resp.StatusCode, string(body))
	}

	var raws []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raws); err != nil {
		return nil, fmt.Errorf("failed to decode payload from %s: %w", s.name, err)
	}
	return raws, nil
}
