package mq

import "time"

// Routing keys for analysis events.
const (
	RoutingKeyRescanRequested = "analysis.rescan.requested"
	RoutingKeyBatchCompleted  = "analysis.batch.completed"
)

// RescanRequestedPayload asks for a forced re-analysis of the given emails.
type RescanRequestedPayload struct {
	UserID      int64     `json:"user_id"`
	EmailIDs    []int64   `json:"email_ids"`
	Reason      string    `json:"reason"`
	TraceID     string    `json:"trace_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// BatchCompletedPayload reports the outcome of one finished batch run.
type BatchCompletedPayload struct {
	UserID       int64     `json:"user_id"`
	BatchID      string    `json:"batch_id"`
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`
	SkippedQuota int       `json:"skipped_quota"`
	CostUSD      float64   `json:"cost_usd"`
	DurationMS   int64     `json:"duration_ms"`
	TraceID      string    `json:"trace_id"`
	CompletedAt  time.Time `json:"completed_at"`
}
