package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sortdesk/mailpilot/internal/model"
)

type EmailRepository struct {
	db *pgxpool.Pool
}

func NewEmailRepository(db *pgxpool.Pool) *EmailRepository {
	return &EmailRepository{db: db}
}

const emailColumns = `
        id, user_id, subject, sender, sender_email, body, received_at,
        is_read, is_starred, is_archived,
        category, summary, quick_action, labels,
        signal_strength, reply_worthiness, analysis_error,
        analyzed_at, reviewed_at
`

// FetchByIDs returns full email records for the given ids. Missing ids are
// simply absent from the result.
func (r *EmailRepository) FetchByIDs(ctx context.Context, ids []int64) ([]model.Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails WHERE id = ANY($1)`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []model.Email
	for rows.Next() {
		var e model.Email
		var category, summary, quickAction, signal, reply, analysisErr *string
		err := rows.Scan(
			&e.ID, &e.UserID, &e.Subject, &e.Sender, &e.SenderEmail, &e.Body, &e.ReceivedAt,
			&e.IsRead, &e.IsStarred, &e.IsArchived,
			&category, &summary, &quickAction, &e.Labels,
			&signal, &reply, &analysisErr,
			&e.AnalyzedAt, &e.ReviewedAt,
		)
		if err != nil {
			return nil, err
		}
		e.Category = deref(category)
		e.Summary = deref(summary)
		e.QuickAction = deref(quickAction)
		e.SignalStrength = model.SignalStrength(deref(signal))
		e.ReplyWorthiness = model.ReplyWorthiness(deref(reply))
		e.AnalysisError = deref(analysisErr)
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

// UpdateTriageFields writes the analysis-derived fields for one email,
// content fields untouched.
func (r *EmailRepository) UpdateTriageFields(ctx context.Context, emailID int64, f model.TriageFields) error {
	query := `
        UPDATE emails
        SET category = NULLIF($2, ''),
            summary = NULLIF($3, ''),
            quick_action = NULLIF($4, ''),
            labels = $5,
            signal_strength = NULLIF($6, ''),
            reply_worthiness = NULLIF($7, ''),
            analysis_error = NULLIF($8, ''),
            analyzed_at = $9
        WHERE id = $1
    `
	tag, err := r.db.Exec(ctx, query,
		emailID, f.Category, f.Summary, f.QuickAction, f.Labels,
		string(f.SignalStrength), string(f.ReplyWorthiness), f.AnalysisError, f.AnalyzedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("email %d not found", emailID)
	}
	return nil
}

// ClearTriageFields nulls the analysis-derived fields for the given emails
// ahead of a forced rescan.
func (r *EmailRepository) ClearTriageFields(ctx context.Context, emailIDs []int64) error {
	query := `
        UPDATE emails
        SET category = NULL,
            summary = NULL,
            quick_action = NULL,
            labels = NULL,
            signal_strength = NULL,
            reply_worthiness = NULL,
            analysis_error = NULL,
            analyzed_at = NULL
        WHERE id = ANY($1)
    `
	_, err := r.db.Exec(ctx, query, emailIDs)
	return err
}

// SetReviewedAt stamps one email as reviewed, scoped to the owning user.
func (r *EmailRepository) SetReviewedAt(ctx context.Context, userID, emailID int64, at time.Time) error {
	query := `UPDATE emails SET reviewed_at = $3 WHERE id = $1 AND user_id = $2`
	tag, err := r.db.Exec(ctx, query, emailID, userID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("email %d not found for user %d", emailID, userID)
	}
	return nil
}

// ListCandidates returns the review-queue projection for non-archived,
// analyzed emails received at or after since. Signal and review-window gates
// are applied by the ranker.
func (r *EmailRepository) ListCandidates(ctx context.Context, userID int64, since time.Time) ([]model.ReviewQueueEntry, error) {
	query := `
        SELECT id, subject, sender, received_at,
               COALESCE(category, ''), COALESCE(summary, ''), COALESCE(quick_action, ''),
               COALESCE(signal_strength, ''), COALESCE(reply_worthiness, ''),
               is_read, reviewed_at
        FROM emails
        WHERE user_id = $1
          AND is_archived = FALSE
          AND analyzed_at IS NOT NULL
          AND received_at >= $2
        ORDER BY received_at DESC
    `
	rows, err := r.db.Query(ctx, query, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.ReviewQueueEntry
	for rows.Next() {
		var e model.ReviewQueueEntry
		err := rows.Scan(
			&e.EmailID, &e.Subject, &e.Sender, &e.ReceivedAt,
			&e.Category, &e.Summary, &e.QuickAction,
			&e.SignalStrength, &e.ReplyWorthiness,
			&e.IsRead, &e.ReviewedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListUnanalyzedIDs returns ids of emails with no analysis yet, newest
// first, for the nightly sweep.
func (r *EmailRepository) ListUnanalyzedIDs(ctx context.Context, userID int64, limit int) ([]int64, error) {
	query := `
        SELECT id FROM emails
        WHERE user_id = $1 AND analyzed_at IS NULL
        ORDER BY received_at DESC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListUserIDs returns every user with at least one email, for the nightly
// sweep.
func (r *EmailRepository) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT user_id FROM emails`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
