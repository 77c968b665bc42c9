// Package queue builds the daily review queue: the small, rotating,
// recency-ordered subset of analyzed emails worth a human scan.
package queue

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sortdesk/mailpilot/internal/model"
)

const (
	// DefaultLimit applies when the caller passes no limit.
	DefaultLimit = 10
	// MaxLimit is the hard page-size ceiling.
	MaxLimit = 25

	// eligibilityWindow bounds how far back the queue looks.
	eligibilityWindow = 7 * 24 * time.Hour
	// reviewCooldown is how long a reviewed email stays out of the queue
	// before it re-surfaces.
	reviewCooldown = 24 * time.Hour
)

// Store is the read/write slice of the email store the ranker needs.
// ListCandidates returns non-archived emails for the user received at or
// after since; the remaining gates are applied here.
type Store interface {
	ListCandidates(ctx context.Context, userID int64, since time.Time) ([]model.ReviewQueueEntry, error)
	SetReviewedAt(ctx context.Context, userID, emailID int64, at time.Time) error
}

// Ranker selects and orders review-queue pages.
type Ranker struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

func NewRanker(store Store, logger *zap.Logger) *Ranker {
	return &Ranker{store: store, now: time.Now, logger: logger}
}

// SelectQueue applies the eligibility gates in order — not archived, signal
// high or medium, received within the last seven days, and (unless
// includeReviewed) not reviewed within the last 24 hours — then orders the
// survivors most-recent first. Signal and reply-worthiness are hard gates,
// never blended into a score: recency is the sole ranking key.
func (r *Ranker) SelectQueue(ctx context.Context, userID int64, limit int, includeReviewed bool) (*model.Queue, error) {
	if userID <= 0 {
		return nil, &model.ValidationError{Reason: "invalid user id"}
	}
	limit = clampLimit(limit)

	now := r.now()
	candidates, err := r.store.ListCandidates(ctx, userID, now.Add(-eligibilityWindow))
	if err != nil {
		return nil, &model.PersistenceError{Op: "list queue candidates", Err: err}
	}

	eligible := make([]model.ReviewQueueEntry, 0, len(candidates))
	for _, e := range candidates {
		if e.SignalStrength != model.SignalHigh && e.SignalStrength != model.SignalMedium {
			continue
		}
		if now.Sub(e.ReceivedAt) > eligibilityWindow {
			continue
		}
		if !includeReviewed && e.ReviewedAt != nil && now.Sub(*e.ReviewedAt) < reviewCooldown {
			continue
		}
		eligible = append(eligible, e)
	}

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].ReceivedAt.After(eligible[j].ReceivedAt)
	})

	page := eligible
	if len(page) > limit {
		page = page[:limit]
	}

	return &model.Queue{
		Items:        page,
		Stats:        pageStats(page),
		TotalInQueue: len(eligible),
		GeneratedAt:  now,
	}, nil
}

// MarkReviewed stamps the email as reviewed now, scoped to the owning user.
// The email drops out of the queue until the cooldown passes.
func (r *Ranker) MarkReviewed(ctx context.Context, userID, emailID int64) error {
	if userID <= 0 || emailID <= 0 {
		return &model.ValidationError{Reason: "invalid user or email id"}
	}
	if err := r.store.SetReviewedAt(ctx, userID, emailID, r.now()); err != nil {
		return &model.PersistenceError{Op: "mark reviewed", Err: err}
	}
	r.logger.Debug("Marked email reviewed",
		zap.Int64("user_id", userID),
		zap.Int64("email_id", emailID),
	)
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// pageStats counts over the returned page only; TotalInQueue covers the
// full eligible set.
func pageStats(page []model.ReviewQueueEntry) model.QueueStats {
	var s model.QueueStats
	for _, e := range page {
		switch e.SignalStrength {
		case model.SignalHigh:
			s.HighSignal++
		case model.SignalMedium:
			s.MediumSignal++
		}
		if e.ReplyWorthiness == model.ReplyUrgent || e.ReplyWorthiness == model.ReplyNeeded {
			s.NeedsReply++
		}
		if !e.IsRead {
			s.Unread++
		}
	}
	return s
}
