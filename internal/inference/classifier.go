package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pulseinsights/sentiment-pipeline/internal/sentiment"
	"github.com/pulseinsights/sentiment-pipeline/pkg/config"
	apperrors "github.com/pulseinsights/sentiment-pipeline/pkg/errors"
	"github.com/pulseinsights/sentiment-pipeline/pkg/resilience"
)

const classifierSystem = "You are an expert social media analyst. Each post refers to a TV show or movie. " +
	"Respond with one word for sentiment: Positive, Negative, or Neutral. Maintain order."

// Classifier labels a batch of items with one inference call. The combined
// prompt numbers every title and the service answers one label per line in
// the same order, so the output-to-input mapping is purely positional.
type Classifier struct {
	invoker Invoker
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

// NewClassifier creates a Classifier. Only throttling errors are retried;
// any other service error trips the Unknown fallback immediately.
func NewClassifier(invoker Invoker, cfg config.InferenceConfig, clock clockwork.Clock) *Classifier {
	return &Classifier{
		invoker: invoker,
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: cfg.InitialBackoff,
			Multiplier:   2.0,
			Jitter:       time.Second,
			RetryIf: func(err error) bool {
				return errors.Is(err, apperrors.ErrThrottled)
			},
			Clock: clock,
		},
		logger: slog.Default().With("component", "classifier"),
	}
}

// Classify assigns a sentiment label to every item. The returned slice always
// has the same length as the input; on retry exhaustion or a non-retryable
// service error every item is labeled Unknown rather than dropped.
func (c *Classifier) Classify(ctx context.Context, items []sentiment.Item) []sentiment.Item {
	if len(items) == 0 {
		return items
	}
	for i := range items {
		items[i].Sentiment = sentiment.Unknown
	}

	var response string
	err := resilience.Retry(ctx, "classify-batch", c.retry, func() error {
		var invokeErr error
		response, invokeErr = c.invoker.Invoke(ctx, Request{
			System:      classifierSystem,
			Prompt:      c.buildPrompt(items),
			MaxTokens:   100,
			Temperature: 0,
		})
		return invokeErr
	})
	if err != nil {
		c.logger.Warn("classification failed, labeling batch Unknown", "items", len(items), "error", err)
		return items
	}

	labels := strings.Split(response, "\n")
	for i := range items {
		if i >= len(labels) {
			break
		}
		label := strings.TrimSpace(labels[i])
		if label == "" {
			continue
		}
		items[i].Sentiment = sentiment.Label(label)
	}
	return items
}

func (c *Classifier) buildPrompt(items []sentiment.Item) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. Analyze the sentiment of this social media post about a TV show or movie titled %q. "+
			"Respond with only one word: Positive, Negative, or Neutral.", i+1, item.Title)
	}
	return b.String()
}
