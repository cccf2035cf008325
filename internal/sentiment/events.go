package sentiment

import "encoding/json"

// Event names pushed to subscribers.
const (
	EventBatchCompleted   = "batch_completed"
	EventInsightCompleted = "insight_completed"
)

// Envelope wraps every subscriber-facing event payload.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// BatchCompletedPayload announces that one batch finished processing.
type BatchCompletedPayload struct {
	BatchID string `json:"batchId"`
}

// InsightCompletedPayload carries the final aggregation result.
type InsightCompletedPayload struct {
	Insight  string       `json:"insight"`
	Posts    []Item       `json:"posts"`
	Stats    Stats        `json:"stats"`
	Trend    []TrendPoint `json:"trend"`
	Progress Progress     `json:"progress"`
}

// BatchCompleted builds the serialized batch_completed event.
func BatchCompleted(batchID string) ([]byte, error) {
	return json.Marshal(Envelope{
		Event:   EventBatchCompleted,
		Payload: BatchCompletedPayload{BatchID: batchID},
	})
}

// InsightCompleted builds the serialized insight_completed event.
func InsightCompleted(p InsightCompletedPayload) ([]byte, error) {
	return json.Marshal(Envelope{
		Event:   EventInsightCompleted,
		Payload: p,
	})
}
