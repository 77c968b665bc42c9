package model

import "time"

// BatchError records one email that failed during a batch run, in settle
// order.
type BatchError struct {
	EmailID int64
	Message string
}

// BatchRun is the ephemeral aggregate for one ProcessBatch invocation. It is
// returned to the caller and never persisted.
type BatchRun struct {
	ID     string
	UserID int64

	Succeeded       int
	Failed          int
	SkippedAnalyzed int
	SkippedQuota    int

	// Categorized maps category name to the number of successfully
	// analyzed emails that landed in it.
	Categorized map[string]int
	// WithActions counts emails that produced at least one action item.
	WithActions int

	TotalTokens      int
	EstimatedCostUSD float64
	Duration         time.Duration

	Errors []BatchError
}

// Settled returns how many emails have reached a terminal outcome.
func (b *BatchRun) Settled() int {
	return b.Succeeded + b.Failed + b.SkippedAnalyzed + b.SkippedQuota
}
