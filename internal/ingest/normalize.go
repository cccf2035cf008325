// Package ingest turns heterogeneous platform payloads into the pipeline's
// normalized item shape. Each platform registers a Normalizer variant; the
// dispatcher picks one by source name instead of branching on payload shape.
package ingest

import (
	"time"

	"github.com/pulseinsights/sentiment-pipeline/internal/sentiment"
)

// Normalizer extracts the common fields (title, url, timestamp, sentiment
// seed) from one raw platform payload. The boolean return is false when the
// payload cannot be normalized and should be dropped.
type Normalizer interface {
	Normalize(raw map[string]any, keyword string) (sentiment.Item, bool)
}

// normalizers maps source names onto their Normalizer variant.
var normalizers = map[string]Normalizer{
	"reddit":  redditNormalizer{},
	"youtube": youtubeNormalizer{},
	"twitter": twitterNormalizer{},
}

// NormalizerFor returns the Normalizer registered for the given source.
func NormalizerFor(source string) (Normalizer, bool) {
	n, ok := normalizers[source]
	return n, ok
}

type redditNormalizer struct{}

func (redditNormalizer) Normalize(raw map[string]any, keyword string) (sentiment.Item, bool) {
	url := stringField(raw, "url")
	if url == "" {
		return sentiment.Item{}, false
	}
	return sentiment.Item{
		Title:      stringFieldOr(raw, "title", "No Title"),
		URL:        url,
		CreatedUTC: int64(floatField(raw, "created_utc")),
		Sentiment:  seedLabel(floatField(raw, "sentiment_score")),
		Source:     "reddit",
		Keyword:    keyword,
	}, true
}

type youtubeNormalizer struct{}

func (youtubeNormalizer) Normalize(raw map[string]any, keyword string) (sentiment.Item, bool) {
	id, _ := raw["id"].(map[string]any)
	videoID := stringField(id, "videoId")
	url := stringField(raw, "url")
	if url == "" {
		if videoID == "" {
			return sentiment.Item{}, false
		}
		url = "https://www.youtube.com/watch?v=" + videoID
	}
	snippet, _ := raw["snippet"].(map[string]any)
	var createdUTC int64
	if publishedAt := stringField(snippet, "publishedAt"); publishedAt != "" {
		if ts, err := time.Parse(time.RFC3339, publishedAt); err == nil {
			createdUTC = ts.Unix()
		}
	}
	return sentiment.Item{
		Title:      stringFieldOr(snippet, "title", "No Title"),
		URL:        url,
		CreatedUTC: createdUTC,
		Sentiment:  seedLabel(floatField(raw, "sentiment_score")),
		Source:     "youtube",
		Keyword:    keyword,
	}, true
}

type twitterNormalizer struct{}

func (twitterNormalizer) Normalize(raw map[string]any, keyword string) (sentiment.Item, bool) {
	url := stringField(raw, "url")
	if url == "" {
		return sentiment.Item{}, false
	}
	var createdUTC int64
	switch date := raw["date"].(type) {
	case float64:
		createdUTC = int64(date)
	case string:
		if ts, err := time.Parse(time.RFC3339, date); err == nil {
			createdUTC = ts.Unix()
		}
	}
	return sentiment.Item{
		Title:      stringFieldOr(raw, "content", "No Title"),
		URL:        url,
		CreatedUTC: createdUTC,
		Sentiment:  seedLabel(floatField(raw, "sentiment_score")),
		Source:     "twitter",
		Keyword:    keyword,
	}, true
}

// seedLabel maps a numeric pre-classification score onto a provisional label.
// The classifier overwrites it downstream.
func seedLabel(score float64) sentiment.Label {
	switch {
	case score > 0:
		return sentiment.Positive
	case score < 0:
		return sentiment.Negative
	default:
		return sentiment.Neutral
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func stringFieldOr(m map[string]any, key, fallback string) string {
	if s := stringField(m, key); s != "" {
		return s
	}
	return fallback
}

func floatField(m map[string]any, key string) float64 {
	f, _ := m[key].(float64)
	return f
}
