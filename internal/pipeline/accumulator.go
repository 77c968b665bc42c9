package pipeline

import (
	"sync"
	"time"

	"github.com/sortdesk/mailpilot/internal/model"
)

// accumulator is the single serialized update path for one batch run. Every
// worker reports its outcome here; nothing else mutates the BatchRun, and
// progress/error callbacks fire inside the lock so completed counts are
// monotonic even under concurrent settlement.
type accumulator struct {
	mu         sync.Mutex
	run        *model.BatchRun
	total      int
	onProgress func(completed, total int)
	onError    func(emailID int64, err error)
}

func newAccumulator(run *model.BatchRun, total int, onProgress func(int, int), onError func(int64, error)) *accumulator {
	return &accumulator{
		run:        run,
		total:      total,
		onProgress: onProgress,
		onError:    onError,
	}
}

func (a *accumulator) success(analysis *model.EmailAnalysis) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.run.Succeeded++
	if analysis.Categorization != nil && analysis.Categorization.Category != "" {
		a.run.Categorized[analysis.Categorization.Category]++
	}
	if analysis.Actions != nil && len(analysis.Actions.Actions) > 0 {
		a.run.WithActions++
	}
	a.run.TotalTokens += analysis.TotalTokens
	a.settleLocked()
}

func (a *accumulator) failure(emailID int64, err error, tokens int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.run.Failed++
	a.run.TotalTokens += tokens
	a.run.Errors = append(a.run.Errors, model.BatchError{EmailID: emailID, Message: err.Error()})
	if a.onError != nil {
		a.onError(emailID, err)
	}
	a.settleLocked()
}

func (a *accumulator) skippedAnalyzed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.run.SkippedAnalyzed++
	a.settleLocked()
}

func (a *accumulator) skippedQuota(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i < n; i++ {
		a.run.SkippedQuota++
		a.settleLocked()
	}
}

func (a *accumulator) addCost(usd float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.run.EstimatedCostUSD += usd
}

func (a *accumulator) settleLocked() {
	if a.onProgress != nil {
		a.onProgress(a.run.Settled(), a.total)
	}
}

func (a *accumulator) finish(start time.Time) *model.BatchRun {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.run.Duration = time.Since(start)
	return a.run
}
