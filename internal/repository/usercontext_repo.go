package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sortdesk/mailpilot/internal/model"
)

type UserContextRepository struct {
	db *pgxpool.Pool
}

func NewUserContextRepository(db *pgxpool.Pool) *UserContextRepository {
	return &UserContextRepository{db: db}
}

// GetByUserID returns the user's analysis context. A user without a stored
// context gets an empty one rather than an error.
func (r *UserContextRepository) GetByUserID(ctx context.Context, userID int64) (*model.UserContext, error) {
	query := `
        SELECT user_id, role, priorities, clients, vip_emails, interests
        FROM user_contexts
        WHERE user_id = $1
    `
	var uc model.UserContext
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&uc.UserID, &uc.Role, &uc.Priorities, &uc.Clients, &uc.VIPEmails, &uc.Interests,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.UserContext{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &uc, nil
}
