package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sortdesk/mailpilot/internal/model"
)

// DerivedRepository manages the rows whose existence is owed entirely to an
// analysis pass: action items and extracted dates.
type DerivedRepository struct {
	db *pgxpool.Pool
}

func NewDerivedRepository(db *pgxpool.Pool) *DerivedRepository {
	return &DerivedRepository{db: db}
}

// DeleteWhereEmailIDIn removes every derived row in table keyed to the given
// emails. The table name is checked against the known derived tables; it is
// never interpolated from caller input beyond that.
func (r *DerivedRepository) DeleteWhereEmailIDIn(ctx context.Context, table string, emailIDs []int64) (int64, error) {
	switch table {
	case model.TableActionItems, model.TableExtractedDates:
	default:
		return 0, fmt.Errorf("not a derived table: %s", table)
	}
	tag, err := r.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE email_id = ANY($1)`, table), emailIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *DerivedRepository) InsertActionItems(ctx context.Context, items []model.ActionItem) error {
	query := `
        INSERT INTO action_items
            (email_id, user_id, type, title, notes, deadline, priority, is_primary, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	for _, it := range items {
		_, err := r.db.Exec(ctx, query,
			it.EmailID, it.UserID, it.Type, it.Title, it.Notes,
			it.Deadline, it.Priority, it.IsPrimary, it.CreatedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *DerivedRepository) InsertExtractedDates(ctx context.Context, dates []model.ExtractedDate) error {
	query := `
        INSERT INTO extracted_dates
            (email_id, user_id, date, kind, context, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	for _, d := range dates {
		_, err := r.db.Exec(ctx, query,
			d.EmailID, d.UserID, d.Date, d.Kind, d.Context, d.CreatedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}
