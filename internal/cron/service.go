// Package cron schedules the nightly analysis sweep: every user's
// not-yet-analyzed emails are pushed through the pipeline while nobody is
// watching the inbox.
package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/sortdesk/mailpilot/internal/model"
	"github.com/sortdesk/mailpilot/internal/pipeline"
)

// EmailLister provides the sweep's work discovery.
type EmailLister interface {
	ListUserIDs(ctx context.Context) ([]int64, error)
	ListUnanalyzedIDs(ctx context.Context, userID int64, limit int) ([]int64, error)
}

// ContextProvider loads per-user analysis context.
type ContextProvider interface {
	GetByUserID(ctx context.Context, userID int64) (*model.UserContext, error)
}

// BatchRunner runs the actual analysis.
type BatchRunner interface {
	ProcessBatch(ctx context.Context, emailIDs []int64, uc *model.UserContext, opts pipeline.Options) (*model.BatchRun, error)
}

type Service struct {
	c          *cron.Cron
	schedule   string
	batchLimit int
	emails     EmailLister
	contexts   ContextProvider
	processor  BatchRunner
	logger     *zap.Logger
}

func NewService(schedule string, batchLimit int, emails EmailLister, contexts ContextProvider, processor BatchRunner, logger *zap.Logger) *Service {
	if schedule == "" {
		schedule = "0 3 * * *"
	}
	if batchLimit <= 0 {
		batchLimit = 100
	}
	return &Service{
		c:          cron.New(),
		schedule:   schedule,
		batchLimit: batchLimit,
		emails:     emails,
		contexts:   contexts,
		processor:  processor,
		logger:     logger,
	}
}

// Start registers the sweep and starts the scheduler.
func (s *Service) Start() error {
	if _, err := s.c.AddFunc(s.schedule, s.Sweep); err != nil {
		return err
	}
	s.c.Start()
	s.logger.Info("Nightly sweep scheduled", zap.String("schedule", s.schedule))
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Service) Stop() {
	ctx := s.c.Stop()
	<-ctx.Done()
}

// Sweep analyzes every user's backlog of unanalyzed emails. Exported so an
// operator can trigger it out of schedule.
func (s *Service) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	userIDs, err := s.emails.ListUserIDs(ctx)
	if err != nil {
		s.logger.Error("Sweep failed to list users", zap.Error(err))
		return
	}

	for _, userID := range userIDs {
		ids, err := s.emails.ListUnanalyzedIDs(ctx, userID, s.batchLimit)
		if err != nil {
			s.logger.Error("Sweep failed to list unanalyzed emails",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
			continue
		}
		if len(ids) == 0 {
			continue
		}

		uc, err := s.contexts.GetByUserID(ctx, userID)
		if err != nil {
			s.logger.Error("Sweep failed to load user context",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
			continue
		}

		run, err := s.processor.ProcessBatch(ctx, ids, uc, pipeline.Options{SkipAnalyzed: true})
		if err != nil {
			s.logger.Error("Sweep batch failed",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
			continue
		}

		s.logger.Info("Sweep batch finished",
			zap.Int64("user_id", userID),
			zap.String("batch_id", run.ID),
			zap.Int("succeeded", run.Succeeded),
			zap.Int("failed", run.Failed),
			zap.Int("skipped_quota", run.SkippedQuota),
		)
	}
}
