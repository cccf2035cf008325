// Package sentiment defines the data model shared across the pipeline: the
// analyzed item, batch wire format, completion records, and the aggregate
// statistics pushed to subscribers.
package sentiment

import (
	"encoding/json"
	"strings"
	"time"
)

// Label is the sentiment classification of a single item.
type Label string

const (
	Positive Label = "Positive"
	Negative Label = "Negative"
	Neutral  Label = "Neutral"
	Unknown  Label = "Unknown"
)

// Canonical maps an arbitrary sentiment string onto Positive, Negative, or
// Neutral. Unrecognized or missing labels (including Unknown) count as
// Neutral for charting purposes.
func Canonical(s string) Label {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive":
		return Positive
	case "negative":
		return Negative
	default:
		return Neutral
	}
}

// Item is one normalized, classified social-content item.
type Item struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	CreatedUTC int64  `json:"created_utc"`
	Date       string `json:"date,omitempty"`
	Sentiment  Label  `json:"sentiment"`
	Source     string `json:"source"`
	Keyword    string `json:"keyword,omitempty"`
}

// Day returns the item's calendar date as YYYY-MM-DD, preferring the explicit
// Date field and falling back to the UTC timestamp.
func (it Item) Day() string {
	if it.Date != "" {
		return it.Date
	}
	return time.Unix(it.CreatedUTC, 0).UTC().Format("2006-01-02")
}

// BatchMessage is the queue message carrying one batch of items. Items is
// kept raw because payloads may arrive singly or doubly JSON-encoded.
type BatchMessage struct {
	BatchID string          `json:"batchId"`
	Items   json.RawMessage `json:"items"`
}

// BatchStatus is the completion state of a dispatched batch.
type BatchStatus string

const (
	StatusPending BatchStatus = "pending"
	StatusDone    BatchStatus = "done"
)

// BatchRecord is the durable completion marker for one batch.
type BatchRecord struct {
	BatchID string      `json:"batchId"`
	Status  BatchStatus `json:"status"`
}

// Stats summarizes an aggregated item collection.
type Stats struct {
	PositiveRatio float64  `json:"positiveRatio"`
	NegativeRatio float64  `json:"negativeRatio"`
	Topics        []string `json:"topics"`
	Total         int      `json:"total"`
}

// TrendPoint is the per-day sentiment breakdown used for charting. The
// capitalized keys are part of the subscriber-facing wire format.
type TrendPoint struct {
	Date     string `json:"date"`
	Positive int    `json:"Positive"`
	Negative int    `json:"Negative"`
	Neutral  int    `json:"Neutral"`
}

// Progress reports how many batches were folded into an aggregate.
type Progress struct {
	CompletedBatches int `json:"completedBatches"`
	TotalBatches     int `json:"totalBatches"`
}

// Insight is the persisted final insight, overwritten once per cycle.
type Insight struct {
	Text string `json:"insight"`
}
