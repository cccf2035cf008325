package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseinsights/sentiment-pipeline/internal/sentiment"
)

func TestNormalizerForKnownSources(t *testing.T) {
	for _, source := range []string{"reddit", "youtube", "twitter"} {
		_, ok := NormalizerFor(source)
		assert.True(t, ok, source)
	}
	_, ok := NormalizerFor("myspace")
	assert.False(t, ok)
}

func TestRedditNormalize(t *testing.T) {
	n, _ := NormalizerFor("reddit")

	item, ok := n.Normalize(map[string]any{
		"title":           "great finale",
		"url":             "https://reddit.com/r/tv/1",
		"created_utc":     float64(1700000000),
		"sentiment_score": 0.8,
	}, "some show")

	require.True(t, ok)
	assert.Equal(t, sentiment.Item{
		Title:      "great finale",
		URL:        "https://reddit.com/r/tv/1",
		CreatedUTC: 1700000000,
		Sentiment:  sentiment.Positive,
		Source:     "reddit",
		Keyword:    "some show",
	}, item)
}

func TestRedditNormalizeMissingURLDropped(t *testing.T) {
	n, _ := NormalizerFor("reddit")
	_, ok := n.Normalize(map[string]any{"title": "no link"}, "kw")
	assert.False(t, ok)
}

func TestRedditNormalizeDefaultsTitle(t *testing.T) {
	n, _ := NormalizerFor("reddit")
	item, ok := n.Normalize(map[string]any{"url": "https://reddit.com/r/tv/2"}, "kw")
	require.True(t, ok)
	assert.Equal(t, "No Title", item.Title)
	assert.Equal(t, sentiment.Neutral, item.Sentiment)
}

func TestYoutubeNormalizeBuildsWatchURL(t *testing.T) {
	n, _ := NormalizerFor("youtube")

	item, ok := n.Normalize(map[string]any{
		"id": map[string]any{"videoId": "abc123"},
		"snippet": map[string]any{
			"title":       "trailer reaction",
			"publishedAt": "2024-03-01T12:00:00Z",
		},
		"sentiment_score": -0.3,
	}, "kw")

	require.True(t, ok)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc123", item.URL)
	assert.Equal(t, "trailer reaction", item.Title)
	assert.Equal(t, sentiment.Negative, item.Sentiment)

	want, err := time.Parse(time.RFC3339, "2024-03-01T12:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, want.Unix(), item.CreatedUTC)
}

func TestYoutubeNormalizePrefersExplicitURL(t *testing.T) {
	n, _ := NormalizerFor("youtube")
	item, ok := n.Normalize(map[string]any{
		"url": "https://youtu.be/xyz",
		"id":  map[string]any{"videoId": "abc123"},
	}, "kw")
	require.True(t, ok)
	assert.Equal(t, "https://youtu.be/xyz", item.URL)
}

func TestYoutubeNormalizeNoIdentifiersDropped(t *testing.T) {
	n, _ := NormalizerFor("youtube")
	_, ok := n.Normalize(map[string]any{"snippet": map[string]any{"title": "x"}}, "kw")
	assert.False(t, ok)
}

func TestTwitterNormalizeDateVariants(t *testing.T) {
	n, _ := NormalizerFor("twitter")

	numeric, ok := n.Normalize(map[string]any{
		"content": "loving this season",
		"url":     "https://twitter.com/x/1",
		"date":    float64(1700000000),
	}, "kw")
	require.True(t, ok)
	assert.Equal(t, int64(1700000000), numeric.CreatedUTC)
	assert.Equal(t, "loving this season", numeric.Title)

	stamped, ok := n.Normalize(map[string]any{
		"content": "meh",
		"url":     "https://twitter.com/x/2",
		"date":    "2024-03-01T12:00:00Z",
	}, "kw")
	require.True(t, ok)
	want, err := time.Parse(time.RFC3339, "2024-03-01T12:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, want.Unix(), stamped.CreatedUTC)
}

func TestSeedLabel(t *testing.T) {
	assert.Equal(t, sentiment.Positive, seedLabel(0.1))
	assert.Equal(t, sentiment.Negative, seedLabel(-0.1))
	assert.Equal(t, sentiment.Neutral, seedLabel(0))
}
