package pipeline

import (
	"context"

	"github.com/sortdesk/mailpilot/internal/ledger"
	"github.com/sortdesk/mailpilot/internal/model"
)

// EmailStore is everything the processor needs from the relational store.
// The pgx implementation lives in internal/repository.
type EmailStore interface {
	FetchByIDs(ctx context.Context, ids []int64) ([]model.Email, error)
	UpdateTriageFields(ctx context.Context, emailID int64, f model.TriageFields) error
	UpsertAnalysis(ctx context.Context, row *model.RawAnalysisRow) error
	DeleteWhereEmailIDIn(ctx context.Context, table string, emailIDs []int64) (int64, error)
	InsertActionItems(ctx context.Context, items []model.ActionItem) error
	InsertExtractedDates(ctx context.Context, dates []model.ExtractedDate) error
}

// CostLedger is the budget gate consulted before each email is dispatched.
type CostLedger interface {
	Reserve(ctx context.Context, userID int64, estimatedTokens int) (*ledger.Permit, error)
	Commit(ctx context.Context, p *ledger.Permit, actualTokens int, actualCostUSD float64) error
	Release(ctx context.Context, p *ledger.Permit) error
}
