package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	mqcontracts "github.com/sortdesk/mailpilot/contracts/mq"
	"github.com/sortdesk/mailpilot/internal/invalidate"
	"github.com/sortdesk/mailpilot/internal/model"
	"github.com/sortdesk/mailpilot/internal/pipeline"
	"github.com/sortdesk/mailpilot/pkg/logger"
	"github.com/sortdesk/mailpilot/pkg/trace"
)

// BatchRunner is the slice of the processor this handler drives.
type BatchRunner interface {
	ProcessBatch(ctx context.Context, emailIDs []int64, uc *model.UserContext, opts pipeline.Options) (*model.BatchRun, error)
}

// Invalidator clears prior analysis state before the forced rescan.
type Invalidator interface {
	Invalidate(ctx context.Context, emailIDs []int64) (*invalidate.Report, error)
}

// ContextProvider loads the user context analyzers run against.
type ContextProvider interface {
	GetByUserID(ctx context.Context, userID int64) (*model.UserContext, error)
}

// CompletionPublisher emits the batch-completed event.
type CompletionPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// RescanHandler consumes analysis.rescan.requested events: invalidate, then
// re-analyze with SkipAnalyzed off.
type RescanHandler struct {
	processor   BatchRunner
	invalidator Invalidator
	contexts    ContextProvider
	publisher   CompletionPublisher
	logger      *zap.Logger
	now         func() time.Time
}

func NewRescanHandler(processor BatchRunner, invalidator Invalidator, contexts ContextProvider, publisher CompletionPublisher, log *zap.Logger) *RescanHandler {
	return &RescanHandler{
		processor:   processor,
		invalidator: invalidator,
		contexts:    contexts,
		publisher:   publisher,
		logger:      log,
		now:         time.Now,
	}
}

// HandleRescanRequested processes one rescan event. Terminal problems
// (malformed payload, invalid ids) are logged and acked so a poison message
// cannot wedge the queue; store errors are returned for nack and retry.
func (h *RescanHandler) HandleRescanRequested(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.RescanRequestedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal rescan payload, dropping",
			zap.Error(err),
			zap.String("raw_payload", string(raw)),
		)
		return nil
	}

	if p.TraceID != "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}
	log := logger.WithTrace(ctx, h.logger)

	log.Info("Processing rescan request",
		zap.Int64("user_id", p.UserID),
		zap.Int("emails", len(p.EmailIDs)),
		zap.String("reason", p.Reason),
	)

	report, err := h.invalidator.Invalidate(ctx, p.EmailIDs)
	if err != nil {
		var vErr *model.ValidationError
		if errors.As(err, &vErr) {
			log.Error("Rescan request invalid, dropping", zap.Error(err))
			return nil
		}
		// Store trouble is worth a retry.
		return err
	}
	for _, w := range report.Warnings {
		log.Warn("Derived cleanup warning during rescan",
			zap.String("table", w.Table),
			zap.Error(w.Err),
		)
	}

	uc, err := h.contexts.GetByUserID(ctx, p.UserID)
	if err != nil {
		return err
	}

	run, err := h.processor.ProcessBatch(ctx, p.EmailIDs, uc, pipeline.Options{SkipAnalyzed: false})
	if err != nil {
		var vErr *model.ValidationError
		if errors.As(err, &vErr) {
			log.Error("Rescan batch rejected, dropping", zap.Error(err))
			return nil
		}
		return err
	}

	if h.publisher != nil {
		payload := mqcontracts.BatchCompletedPayload{
			UserID:       p.UserID,
			BatchID:      run.ID,
			Succeeded:    run.Succeeded,
			Failed:       run.Failed,
			SkippedQuota: run.SkippedQuota,
			CostUSD:      run.EstimatedCostUSD,
			DurationMS:   run.Duration.Milliseconds(),
			TraceID:      p.TraceID,
			CompletedAt:  h.now(),
		}
		if err := h.publisher.Publish(ctx, mqcontracts.RoutingKeyBatchCompleted, payload); err != nil {
			// The rescan itself succeeded; losing the event is not worth
			// re-running the batch.
			log.Error("Failed to publish batch-completed event", zap.Error(err))
		}
	}

	log.Info("Rescan finished",
		zap.String("batch_id", run.ID),
		zap.Int("succeeded", run.Succeeded),
		zap.Int("failed", run.Failed),
	)

	return nil
}
