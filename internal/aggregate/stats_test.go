package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseinsights/sentiment-pipeline/internal/sentiment"
)

func labeled(label sentiment.Label, title, date string) sentiment.Item {
	return sentiment.Item{Title: title, Sentiment: label, Date: date}
}

func TestComputeStatsRatiosAndTotal(t *testing.T) {
	items := []sentiment.Item{
		labeled(sentiment.Positive, "a", ""),
		labeled(sentiment.Positive, "b", ""),
		labeled(sentiment.Negative, "c", ""),
		labeled(sentiment.Neutral, "d", ""),
		labeled(sentiment.Unknown, "e", ""),
		labeled(sentiment.Positive, "f", ""),
	}

	stats := ComputeStats(items)

	assert.Equal(t, 6, stats.Total)
	assert.Equal(t, 50.0, stats.PositiveRatio)
	assert.InDelta(t, 16.67, stats.NegativeRatio, 0.001)
}

func TestComputeStatsCaseInsensitiveLabels(t *testing.T) {
	items := []sentiment.Item{
		labeled("positive", "a", ""),
		labeled("POSITIVE", "b", ""),
		labeled("negative", "c", ""),
		labeled("Neutral", "d", ""),
	}

	stats := ComputeStats(items)

	assert.Equal(t, 50.0, stats.PositiveRatio)
	assert.Equal(t, 25.0, stats.NegativeRatio)
}

func TestComputeStatsTopicsFirstFiveTitles(t *testing.T) {
	items := make([]sentiment.Item, 8)
	for i := range items {
		items[i] = labeled(sentiment.Neutral, string(rune('a'+i)), "")
	}

	stats := ComputeStats(items)

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, stats.Topics)
	assert.Equal(t, 8, stats.Total)
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(nil)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.PositiveRatio)
	assert.Zero(t, stats.NegativeRatio)
	assert.Empty(t, stats.Topics)
}

func TestComputeTrendGroupsByDayAscending(t *testing.T) {
	items := []sentiment.Item{
		labeled(sentiment.Positive, "a", "2024-03-02"),
		labeled(sentiment.Negative, "b", "2024-03-01"),
		labeled(sentiment.Positive, "c", "2024-03-01"),
		labeled(sentiment.Neutral, "d", "2024-03-02"),
		labeled(sentiment.Positive, "e", "2024-03-02"),
	}

	trend := ComputeTrend(items)

	require.Len(t, trend, 2)
	assert.Equal(t, sentiment.TrendPoint{Date: "2024-03-01", Positive: 1, Negative: 1}, trend[0])
	assert.Equal(t, sentiment.TrendPoint{Date: "2024-03-02", Positive: 2, Neutral: 1}, trend[1])
}

func TestComputeTrendDerivesDateFromTimestamp(t *testing.T) {
	// 2023-11-14T22:13:20Z
	item := sentiment.Item{Sentiment: sentiment.Positive, CreatedUTC: 1700000000}

	trend := ComputeTrend([]sentiment.Item{item})

	require.Len(t, trend, 1)
	assert.Equal(t, "2023-11-14", trend[0].Date)
	assert.Equal(t, 1, trend[0].Positive)
}

func TestComputeTrendUnrecognizedLabelsCountNeutral(t *testing.T) {
	items := []sentiment.Item{
		labeled(sentiment.Unknown, "a", "2024-03-01"),
		labeled("Mixed", "b", "2024-03-01"),
		labeled("", "c", "2024-03-01"),
	}

	trend := ComputeTrend(items)

	require.Len(t, trend, 1)
	assert.Equal(t, 3, trend[0].Neutral)
	assert.Zero(t, trend[0].Positive)
	assert.Zero(t, trend[0].Negative)
}

func TestTrendScore(t *testing.T) {
	items := []sentiment.Item{
		labeled(sentiment.Positive, "a", ""),
		labeled(sentiment.Positive, "b", ""),
		labeled(sentiment.Negative, "c", ""),
		labeled(sentiment.Neutral, "d", ""),
	}
	assert.InDelta(t, 0.25, TrendScore(items), 1e-9)
}

func TestTrendScoreUnknownCountsNeutral(t *testing.T) {
	items := []sentiment.Item{
		labeled(sentiment.Positive, "a", ""),
		labeled(sentiment.Unknown, "b", ""),
	}
	assert.InDelta(t, 0.5, TrendScore(items), 1e-9)
}

func TestTrendScoreBounds(t *testing.T) {
	assert.Zero(t, TrendScore(nil))
	allPositive := []sentiment.Item{
		labeled(sentiment.Positive, "a", ""),
		labeled(sentiment.Positive, "b", ""),
	}
	assert.Equal(t, 1.0, TrendScore(allPositive))
	allNegative := []sentiment.Item{
		labeled(sentiment.Negative, "a", ""),
	}
	assert.Equal(t, -1.0, TrendScore(allNegative))
}
