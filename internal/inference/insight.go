package inference

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pulseinsights/sentiment-pipeline/internal/sentiment"
	"github.com/pulseinsights/sentiment-pipeline/pkg/config"
	"github.com/pulseinsights/sentiment-pipeline/pkg/resilience"
)

// FallbackInsight is returned when every generation attempt fails. Insight
// failure must never abort an aggregation cycle.
const FallbackInsight = "No insight available."

const insightSystem = "You are a professional marketing analyst. Read the sentiment stats and trend, " +
	"then produce actionable insights in clear English."

// InsightGenerator turns aggregate statistics into a short natural-language
// insight. Unlike the Classifier it retries on any error, not just
// throttling: the insight is best-effort and a transient service hiccup
// should not cost the whole cycle its summary.
type InsightGenerator struct {
	invoker Invoker
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

func NewInsightGenerator(invoker Invoker, cfg config.InferenceConfig, clock clockwork.Clock) *InsightGenerator {
	return &InsightGenerator{
		invoker: invoker,
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: cfg.InitialBackoff,
			Multiplier:   2.0,
			Jitter:       time.Second,
			Clock:        clock,
		},
		logger: slog.Default().With("component", "insight-generator"),
	}
}

// Generate produces the insight text for the given stats, overall trend
// score, and representative keyword. It never returns an error: on retry
// exhaustion the fixed fallback sentence is returned instead.
func (g *InsightGenerator) Generate(ctx context.Context, stats sentiment.Stats, trendScore float64, keyword string) string {
	prompt := g.buildPrompt(stats, trendScore, keyword)

	var text string
	err := resilience.Retry(ctx, "generate-insight", g.retry, func() error {
		var invokeErr error
		text, invokeErr = g.invoker.Invoke(ctx, Request{
			System:      insightSystem,
			Prompt:      prompt,
			MaxTokens:   100,
			Temperature: 0.5,
		})
		return invokeErr
	})
	if err != nil {
		g.logger.Warn("insight generation failed, using fallback", "keyword", keyword, "error", err)
		return FallbackInsight
	}
	if text == "" {
		return FallbackInsight
	}
	return text
}

func (g *InsightGenerator) buildPrompt(stats sentiment.Stats, trendScore float64, keyword string) string {
	topics := strings.Join(stats.Topics, ", ")
	if topics == "" {
		topics = "None"
	}
	return fmt.Sprintf(
		"Based on the following social media sentiment statistics for '%s', "+
			"write a concise, readable, and professional insight in English, 3 lines max, "+
			"do not exceed 100 tokens.\n\n"+
			"Include:\n"+
			"- Short overview of audience sentiment\n"+
			"- Trend over time (if available)\n"+
			"- One observation about key topics: %s\n\n"+
			"Stats:\n"+
			"- Positive: %.2f%%\n"+
			"- Negative: %.2f%%\n"+
			"- Total posts: %d\n"+
			"Trend: %.2f\n\n"+
			"Instructions:\n"+
			"- Keep paragraphs concise and human-readable.\n"+
			"- Use line breaks between paragraphs.\n"+
			"- Avoid unnecessary repetition.",
		keyword, topics, stats.PositiveRatio, stats.NegativeRatio, stats.Total, trendScore*100,
	)
}
