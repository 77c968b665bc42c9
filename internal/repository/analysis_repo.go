package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sortdesk/mailpilot/internal/model"
)

// ErrAnalysisNotFound is returned when an email has no persisted analysis.
var ErrAnalysisNotFound = errors.New("analysis not found")

type AnalysisRepository struct {
	db *pgxpool.Pool
}

func NewAnalysisRepository(db *pgxpool.Pool) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// UpsertAnalysis replaces the canonical analysis row for one email
// wholesale; there is never more than one row per email.
func (r *AnalysisRepository) UpsertAnalysis(ctx context.Context, row *model.RawAnalysisRow) error {
	slots, err := json.Marshal(row.Slots)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO email_analyses
            (email_id, slots, failed_slots, total_tokens, processing_ms, analyzer_version, analyzed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (email_id) DO UPDATE
        SET slots = EXCLUDED.slots,
            failed_slots = EXCLUDED.failed_slots,
            total_tokens = EXCLUDED.total_tokens,
            processing_ms = EXCLUDED.processing_ms,
            analyzer_version = EXCLUDED.analyzer_version,
            analyzed_at = EXCLUDED.analyzed_at
    `
	_, err = r.db.Exec(ctx, query,
		row.EmailID, slots, row.FailedSlots,
		row.TotalTokens, row.ProcessingMS, row.AnalyzerVersion, row.AnalyzedAt,
	)
	return err
}

// GetByEmailID loads the raw analysis row for one email. Callers normalize
// it before use; rows written by older analyzer versions stay readable that
// way.
func (r *AnalysisRepository) GetByEmailID(ctx context.Context, emailID int64) (*model.RawAnalysisRow, error) {
	query := `
        SELECT email_id, slots, failed_slots, total_tokens, processing_ms, analyzer_version, analyzed_at
        FROM email_analyses
        WHERE email_id = $1
    `
	var row model.RawAnalysisRow
	var slots []byte
	err := r.db.QueryRow(ctx, query, emailID).Scan(
		&row.EmailID, &slots, &row.FailedSlots,
		&row.TotalTokens, &row.ProcessingMS, &row.AnalyzerVersion, &row.AnalyzedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAnalysisNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(slots, &row.Slots); err != nil {
		return nil, err
	}
	return &row, nil
}
