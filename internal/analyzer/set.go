package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sortdesk/mailpilot/internal/model"
	"github.com/sortdesk/mailpilot/pkg/metrics"
)

// Config bounds how the set runs its analyzers for one email.
type Config struct {
	// Timeout applies to each analyzer call individually.
	Timeout time.Duration
	// MaxParallel caps concurrent calls for one email so a single email
	// cannot monopolize the provider.
	MaxParallel int
	// Version is stamped onto every produced row.
	Version string
}

// SlotResult is the outcome of one analyzer for one email: a raw payload on
// success, a typed error on failure, token/cost accounting either way.
type SlotResult struct {
	Payload json.RawMessage
	Err     error
	Tokens  int
	CostUSD float64
}

// RunResult collects every slot outcome for one email.
type RunResult struct {
	Slots        map[string]SlotResult
	TotalTokens  int
	TotalCostUSD float64
}

// FailedSlots returns the slots that failed, in registration order.
func (r *RunResult) FailedSlots(order []Analyzer) []*SlotError {
	var failed []*SlotError
	for _, a := range order {
		if s, ok := r.Slots[a.Slot]; ok && s.Err != nil {
			failed = append(failed, &SlotError{Slot: a.Slot, Cause: s.Err})
		}
	}
	return failed
}

// Set runs a fixed set of independent analyzers over one email. Analyzers
// are mutually independent; one slot's failure is recorded on that slot and
// never aborts the others.
type Set struct {
	analyzers []Analyzer
	transport Transport
	cfg       Config
	logger    *zap.Logger
}

func NewSet(transport Transport, cfg Config, logger *zap.Logger) *Set {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	return &Set{
		analyzers: DefaultAnalyzers(),
		transport: transport,
		cfg:       cfg,
		logger:    logger,
	}
}

// Analyzers returns the registered analyzers in their fixed order.
func (s *Set) Analyzers() []Analyzer {
	return s.analyzers
}

// Version returns the analyzer-set version stamped onto produced rows.
func (s *Set) Version() string {
	return s.cfg.Version
}

// Run fans every analyzer out over the transport and waits for all slots to
// settle. It never returns an error: failures live on the slots.
func (s *Set) Run(ctx context.Context, e *model.Email, uc *model.UserContext) *RunResult {
	result := &RunResult{Slots: make(map[string]SlotResult, len(s.analyzers))}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.cfg.MaxParallel)
	)

	for _, a := range s.analyzers {
		wg.Add(1)
		go func(a Analyzer) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			slot := s.runOne(ctx, a, e, uc)

			mu.Lock()
			result.Slots[a.Slot] = slot
			result.TotalTokens += slot.Tokens
			result.TotalCostUSD += slot.CostUSD
			mu.Unlock()
		}(a)
	}
	wg.Wait()

	return result
}

func (s *Set) runOne(ctx context.Context, a Analyzer, e *model.Email, uc *model.UserContext) SlotResult {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	inv, err := s.transport.Invoke(callCtx, a.Slot, a.Prompt(e, uc))
	if err != nil {
		status := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrTimeout
			status = "timeout"
		}
		metrics.ObserveAnalyzerCall(a.Slot, status, time.Since(start))
		s.logger.Warn("Analyzer call failed",
			zap.String("analyzer", a.Slot),
			zap.Int64("email_id", e.ID),
			zap.Error(err),
		)
		return SlotResult{Err: err}
	}

	if !isJSONObject(inv.RawJSON) {
		metrics.ObserveAnalyzerCall(a.Slot, "malformed", time.Since(start))
		s.logger.Warn("Analyzer returned non-object payload",
			zap.String("analyzer", a.Slot),
			zap.Int64("email_id", e.ID),
		)
		return SlotResult{
			Err:     &MalformedOutputError{Slot: a.Slot, Raw: string(inv.RawJSON)},
			Tokens:  inv.Tokens,
			CostUSD: inv.CostUSD,
		}
	}

	metrics.ObserveAnalyzerCall(a.Slot, "ok", time.Since(start))
	return SlotResult{Payload: inv.RawJSON, Tokens: inv.Tokens, CostUSD: inv.CostUSD}
}

func isJSONObject(raw json.RawMessage) bool {
	var m map[string]json.RawMessage
	return json.Unmarshal(raw, &m) == nil
}
