package ingest

import (
	"context"
	"log/slog"

	"github.com/pulseinsights/sentiment-pipeline/internal/sentiment"
	"golang.org/x/sync/errgroup"
)

// Source supplies raw payloads from one external platform.
type Source interface {
	Name() string
	Fetch(ctx context.Context, keyword string) ([]map[string]any, error)
}

// Service fetches from every configured source concurrently, normalizes the
// payloads, and deduplicates them by (url, source) with the first occurrence
// winning. A source that fails is logged and skipped; ingestion is
// best-effort per platform.
type Service struct {
	sources []Source
	logger  *slog.Logger
}

func NewService(sources ...Source) *Service {
	return &Service{
		sources: sources,
		logger:  slog.Default().With("component", "ingest"),
	}
}

// FetchAll returns the deduplicated, normalized item sequence for a keyword.
// Source order is stable, so dedup is deterministic across runs.
func (s *Service) FetchAll(ctx context.Context, keyword string) ([]sentiment.Item, error) {
	results := make([][]sentiment.Item, len(s.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, source := range s.sources {
		g.Go(func() error {
			raws, err := source.Fetch(gctx, keyword)
			if err != nil {
				s.logger.Warn("source fetch failed, skipping", "source", source.Name(), "error", err)
				return nil
			}
			normalizer, ok := NormalizerFor(source.Name())
			if !ok {
				s.logger.Warn("no normalizer registered for source", "source", source.Name())
				return nil
			}
			items := make([]sentiment.Item, 0, len(raws))
			for _, raw := range raws {
				if item, ok := normalizer.Normalize(raw, keyword); ok {
					items = append(items, item)
				}
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	type dedupKey struct {
		url    string
		source string
	}
	seen := make(map[dedupKey]struct{})
	var deduped []sentiment.Item
	for _, items := range results {
		for _, item := range items {
			key := dedupKey{url: item.URL, source: item.Source}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			deduped = append(deduped, item)
		}
	}
	return deduped, nil
}
