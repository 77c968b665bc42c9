// Package pipeline orchestrates batch email analysis: bounded-concurrency
// dispatch through the analyzer set, budget gating through the cost ledger,
// normalization, and persistence of the canonical record plus its derived
// rows.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sortdesk/mailpilot/internal/analyzer"
	"github.com/sortdesk/mailpilot/internal/ledger"
	"github.com/sortdesk/mailpilot/internal/model"
	"github.com/sortdesk/mailpilot/internal/normalize"
	"github.com/sortdesk/mailpilot/pkg/metrics"
)

// Options tunes one batch run.
type Options struct {
	// BatchSize caps how many emails have analyzer calls in flight at
	// once. Zero means the processor default.
	BatchSize int
	// SkipAnalyzed passes already-analyzed emails through untouched,
	// counted separately from success and failure.
	SkipAnalyzed bool
	// OnProgress fires after each email settles. Completed is monotonic.
	OnProgress func(completed, total int)
	// OnError fires for each failed email; the batch continues.
	OnError func(emailID int64, err error)
}

// Processor runs batches of emails through the analyzer set.
type Processor struct {
	store     EmailStore
	set       *analyzer.Set
	ledger    CostLedger
	logger    *zap.Logger
	now       func() time.Time
	batchSize int
	estTokens int
}

func NewProcessor(store EmailStore, set *analyzer.Set, costs CostLedger, batchSize, estTokensPerEmail int, logger *zap.Logger) *Processor {
	if batchSize <= 0 {
		batchSize = 5
	}
	if estTokensPerEmail <= 0 {
		estTokensPerEmail = 8000
	}
	return &Processor{
		store:     store,
		set:       set,
		ledger:    costs,
		logger:    logger,
		now:       time.Now,
		batchSize: batchSize,
		estTokens: estTokensPerEmail,
	}
}

// ProcessBatch analyzes the given emails for one user and returns the
// aggregate run. A per-email failure never aborts the batch; validation
// problems are returned synchronously before any work is dispatched.
// Cancelling ctx stops further dispatch while in-flight emails finish or
// time out individually; whatever was persisted stays valid.
func (p *Processor) ProcessBatch(ctx context.Context, emailIDs []int64, uc *model.UserContext, opts Options) (*model.BatchRun, error) {
	if uc == nil || uc.UserID <= 0 {
		return nil, &model.ValidationError{Reason: "user context is required"}
	}
	if len(emailIDs) == 0 {
		return nil, &model.ValidationError{Reason: "no email ids given"}
	}
	for _, id := range emailIDs {
		if id <= 0 {
			return nil, &model.ValidationError{Reason: fmt.Sprintf("invalid email id %d", id)}
		}
	}

	emails, err := p.store.FetchByIDs(ctx, emailIDs)
	if err != nil {
		return nil, &model.PersistenceError{Op: "fetch emails", Err: err}
	}
	if len(emails) != len(emailIDs) {
		return nil, &model.ValidationError{
			Reason: fmt.Sprintf("%d of %d email ids unknown", len(emailIDs)-len(emails), len(emailIDs)),
		}
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = p.batchSize
	}

	run := &model.BatchRun{
		ID:          uuid.NewString(),
		UserID:      uc.UserID,
		Categorized: make(map[string]int),
	}
	acc := newAccumulator(run, len(emails), opts.OnProgress, opts.OnError)

	p.logger.Info("Starting analysis batch",
		zap.String("batch_id", run.ID),
		zap.Int64("user_id", uc.UserID),
		zap.Int("emails", len(emails)),
		zap.Int("batch_size", batchSize),
		zap.Bool("skip_analyzed", opts.SkipAnalyzed),
	)

	start := p.now()
	sem := make(chan struct{}, batchSize)
	done := make(chan struct{}, len(emails))
	inFlight := 0

dispatch:
	for i := 0; i < len(emails); i++ {
		e := emails[i]

		if opts.SkipAnalyzed && e.AnalyzedAt != nil {
			acc.skippedAnalyzed()
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}

		permit, err := p.ledger.Reserve(ctx, uc.UserID, p.estTokens)
		if err != nil {
			<-sem
			if errors.Is(err, ledger.ErrQuotaExceeded) {
				p.logger.Warn("Cost budget exhausted mid-batch",
					zap.String("batch_id", run.ID),
					zap.Int64("user_id", uc.UserID),
					zap.Int("remaining", len(emails)-i),
				)
				p.settleRemaining(emails[i:], opts.SkipAnalyzed, acc)
				break dispatch
			}
			acc.failure(e.ID, fmt.Errorf("reserve budget: %w", err), 0)
			continue
		}

		inFlight++
		go func(e model.Email, permit *ledger.Permit) {
			defer func() {
				<-sem
				done <- struct{}{}
			}()
			p.processOne(ctx, &e, uc, permit, acc)
		}(e, permit)
	}

	for i := 0; i < inFlight; i++ {
		<-done
	}

	result := acc.finish(start)
	metrics.ObserveBatchDuration(result.Duration)
	p.logger.Info("Analysis batch finished",
		zap.String("batch_id", result.ID),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("skipped_analyzed", result.SkippedAnalyzed),
		zap.Int("skipped_quota", result.SkippedQuota),
		zap.Int("total_tokens", result.TotalTokens),
		zap.Float64("cost_usd", result.EstimatedCostUSD),
		zap.Duration("duration", result.Duration),
	)

	return result, ctx.Err()
}

// settleRemaining marks every email not yet dispatched after quota
// exhaustion. Already-analyzed emails still count as skipped-analyzed so the
// outcome partition stays exact.
func (p *Processor) settleRemaining(remaining []model.Email, skipAnalyzed bool, acc *accumulator) {
	quota := 0
	for _, e := range remaining {
		if skipAnalyzed && e.AnalyzedAt != nil {
			acc.skippedAnalyzed()
			continue
		}
		quota++
	}
	acc.skippedQuota(quota)
}

func (p *Processor) processOne(ctx context.Context, e *model.Email, uc *model.UserContext, permit *ledger.Permit, acc *accumulator) {
	start := time.Now()
	res := p.set.Run(ctx, e, uc)

	if err := p.ledger.Commit(ctx, permit, res.TotalTokens, res.TotalCostUSD); err != nil {
		// Spend tracking must not take the email down with it.
		p.logger.Error("Failed to commit spend", zap.Int64("email_id", e.ID), zap.Error(err))
	}
	acc.addCost(res.TotalCostUSD)

	failed := res.FailedSlots(p.set.Analyzers())
	row := p.buildRow(e.ID, res, failed, start)
	analysis := normalize.Normalize(row)

	if err := p.persist(ctx, e, row, analysis, failed); err != nil {
		metrics.IncrEmailAnalyzed("failed")
		acc.failure(e.ID, err, res.TotalTokens)
		return
	}

	if len(failed) > 0 {
		metrics.IncrEmailAnalyzed("partial")
		acc.failure(e.ID, failed[0], res.TotalTokens)
		return
	}

	metrics.IncrEmailAnalyzed("success")
	acc.success(analysis)
}

func (p *Processor) buildRow(emailID int64, res *analyzer.RunResult, failed []*analyzer.SlotError, start time.Time) *model.RawAnalysisRow {
	row := &model.RawAnalysisRow{
		EmailID:         emailID,
		Slots:           make(map[string]json.RawMessage, len(res.Slots)),
		TotalTokens:     res.TotalTokens,
		ProcessingMS:    time.Since(start).Milliseconds(),
		AnalyzerVersion: p.set.Version(),
		AnalyzedAt:      p.now(),
	}
	for name, s := range res.Slots {
		if s.Err == nil && len(s.Payload) > 0 {
			row.Slots[name] = s.Payload
		}
	}
	for _, f := range failed {
		row.FailedSlots = append(row.FailedSlots, f.Slot)
	}
	return row
}

// persist writes the canonical record, the triage fields, and replaces the
// derived rows. Any write failure here is fatal for this email: a partial
// write would leave derived rows that no longer match the current analysis.
func (p *Processor) persist(ctx context.Context, e *model.Email, row *model.RawAnalysisRow, analysis *model.EmailAnalysis, failed []*analyzer.SlotError) error {
	if err := p.store.UpsertAnalysis(ctx, row); err != nil {
		return &model.PersistenceError{Op: "upsert analysis", Err: err}
	}

	if err := p.store.UpdateTriageFields(ctx, e.ID, triageFields(analysis, failed, row.AnalyzedAt)); err != nil {
		return &model.PersistenceError{Op: "update triage fields", Err: err}
	}

	ids := []int64{e.ID}
	if _, err := p.store.DeleteWhereEmailIDIn(ctx, model.TableActionItems, ids); err != nil {
		return &model.PersistenceError{Op: "clear action items", Err: err}
	}
	if items := actionItems(e, analysis, row.AnalyzedAt); len(items) > 0 {
		if err := p.store.InsertActionItems(ctx, items); err != nil {
			return &model.PersistenceError{Op: "insert action items", Err: err}
		}
	}

	if _, err := p.store.DeleteWhereEmailIDIn(ctx, model.TableExtractedDates, ids); err != nil {
		return &model.PersistenceError{Op: "clear extracted dates", Err: err}
	}
	if dates := extractedDates(e, analysis, row.AnalyzedAt); len(dates) > 0 {
		if err := p.store.InsertExtractedDates(ctx, dates); err != nil {
			return &model.PersistenceError{Op: "insert extracted dates", Err: err}
		}
	}

	return nil
}

func triageFields(analysis *model.EmailAnalysis, failed []*analyzer.SlotError, analyzedAt time.Time) model.TriageFields {
	f := model.TriageFields{AnalyzedAt: &analyzedAt}

	if c := analysis.Categorization; c != nil {
		f.Category = c.Category
		f.Summary = c.Summary
		f.QuickAction = c.QuickAction
		f.SignalStrength = c.SignalStrength
		f.ReplyWorthiness = c.ReplyWorthiness
	}
	if r := analysis.Relationship; r != nil {
		if r.Client != "" {
			f.Labels = append(f.Labels, "client:"+r.Client)
		}
		if r.IsVIP {
			f.Labels = append(f.Labels, "vip")
		}
	}
	if len(failed) > 0 {
		names := make([]string, len(failed))
		for i, s := range failed {
			names[i] = s.Slot
		}
		f.AnalysisError = "failed analyzers: " + strings.Join(names, ", ")
	}

	return f
}

func actionItems(e *model.Email, analysis *model.EmailAnalysis, at time.Time) []model.ActionItem {
	if analysis.Actions == nil {
		return nil
	}
	items := make([]model.ActionItem, 0, len(analysis.Actions.Actions))
	for i, a := range analysis.Actions.Actions {
		items = append(items, model.ActionItem{
			EmailID:   e.ID,
			UserID:    e.UserID,
			Type:      a.Type,
			Title:     a.Title,
			Notes:     a.Notes,
			Deadline:  a.Deadline,
			Priority:  a.Priority,
			IsPrimary: i == analysis.Actions.PrimaryIndex,
			CreatedAt: at,
		})
	}
	return items
}

func extractedDates(e *model.Email, analysis *model.EmailAnalysis, at time.Time) []model.ExtractedDate {
	if analysis.Dates == nil {
		return nil
	}
	dates := make([]model.ExtractedDate, 0, len(analysis.Dates.Dates))
	for _, d := range analysis.Dates.Dates {
		dates = append(dates, model.ExtractedDate{
			EmailID:   e.ID,
			UserID:    e.UserID,
			Date:      d.Date,
			Kind:      d.Kind,
			Context:   d.Context,
			CreatedAt: at,
		})
	}
	return dates
}
