package aggregate

import (
	"math"
	"sort"
	"strings"

	"github.com/pulseinsights/sentiment-pipeline/internal/sentiment"
)

// topicLimit caps the number of representative titles in the stats summary.
const topicLimit = 5

// ComputeStats summarizes an aggregated item collection: positive/negative
// percentages rounded to two decimals (0 when the collection is empty), the
// first titles in encounter order as topics, and the total count.
func ComputeStats(items []sentiment.Item) sentiment.Stats {
	total := len(items)
	stats := sentiment.Stats{
		Topics: make([]string, 0, topicLimit),
		Total:  total,
	}

	var positive, negative int
	for _, item := range items {
		switch strings.ToLower(string(item.Sentiment)) {
		case "positive":
			positive++
		case "negative":
			negative++
		}
		if len(stats.Topics) < topicLimit {
			stats.Topics = append(stats.Topics, item.Title)
		}
	}
	if total > 0 {
		stats.PositiveRatio = round2(float64(positive) / float64(total) * 100)
		stats.NegativeRatio = round2(float64(negative) / float64(total) * 100)
	}
	return stats
}

// ComputeTrend groups items by calendar day and counts sentiment per day,
// ascending by date. Unrecognized or missing labels count as Neutral.
func ComputeTrend(items []sentiment.Item) []sentiment.TrendPoint {
	byDay := make(map[string]*sentiment.TrendPoint)
	for _, item := range items {
		day := item.Day()
		point, ok := byDay[day]
		if !ok {
			point = &sentiment.TrendPoint{Date: day}
			byDay[day] = point
		}
		switch sentiment.Canonical(string(item.Sentiment)) {
		case sentiment.Positive:
			point.Positive++
		case sentiment.Negative:
			point.Negative++
		default:
			point.Neutral++
		}
	}

	trend := make([]sentiment.TrendPoint, 0, len(byDay))
	for _, point := range byDay {
		trend = append(trend, *point)
	}
	sort.Slice(trend, func(i, j int) bool { return trend[i].Date < trend[j].Date })
	return trend
}

// TrendScore is the mean sentiment direction over the aggregate: +1 per
// Positive, -1 per Negative, 0 otherwise (Unknown counts as neutral). It is
// 0 for an empty aggregate and always lies in [-1, 1].
func TrendScore(items []sentiment.Item) float64 {
	if len(items) == 0 {
		return 0
	}
	var score int
	for _, item := range items {
		switch strings.ToLower(string(item.Sentiment)) {
		case "positive":
			score++
		case "negative":
			score--
		}
	}
	return float64(score) / float64(len(items))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
