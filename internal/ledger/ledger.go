// Package ledger tracks model spend per user and enforces daily and monthly
// USD budgets. Reservations are accounted atomically through the spend
// store, so concurrent dispatch can never push spend past a cap.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrQuotaExceeded is returned by Reserve when a reservation would push the
// user past a configured cap.
var ErrQuotaExceeded = errors.New("cost budget exhausted")

// SpendStore is the counter backend. IncrBy must be atomic: the returned
// value is the counter after the increment, observed by no one else in
// between.
type SpendStore interface {
	IncrBy(ctx context.Context, key string, usd float64, ttl time.Duration) (float64, error)
	Get(ctx context.Context, key string) (float64, error)
}

// Budget holds the per-user caps in USD. A zero cap disables that window.
type Budget struct {
	DailyUSD   float64
	MonthlyUSD float64
}

// Permit is one granted reservation. It must be settled exactly once, with
// Commit on success or Release on failure.
type Permit struct {
	userID      int64
	reservedUSD float64
	dayKey      string
	monthKey    string
}

// Ledger enforces the budget. Estimation uses a flat per-1K-token rate;
// Commit replaces the estimate with actuals.
type Ledger struct {
	store    SpendStore
	budget   Budget
	estPer1K float64
	now      func() time.Time
	logger   *zap.Logger
}

const (
	dayTTL   = 48 * time.Hour
	monthTTL = 35 * 24 * time.Hour
)

func New(store SpendStore, budget Budget, estPer1K float64, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:    store,
		budget:   budget,
		estPer1K: estPer1K,
		now:      time.Now,
		logger:   logger,
	}
}

func (l *Ledger) dayKey(userID int64) string {
	return fmt.Sprintf("spend:daily:%d:%s", userID, l.now().UTC().Format("2006-01-02"))
}

func (l *Ledger) monthKey(userID int64) string {
	return fmt.Sprintf("spend:monthly:%d:%s", userID, l.now().UTC().Format("2006-01"))
}

// Reserve books the estimated cost of estimatedTokens against both windows.
// On ErrQuotaExceeded no spend is left booked.
func (l *Ledger) Reserve(ctx context.Context, userID int64, estimatedTokens int) (*Permit, error) {
	est := float64(estimatedTokens) / 1000 * l.estPer1K
	dayKey := l.dayKey(userID)
	monthKey := l.monthKey(userID)

	day, err := l.store.IncrBy(ctx, dayKey, est, dayTTL)
	if err != nil {
		return nil, fmt.Errorf("reserve daily spend: %w", err)
	}
	if l.budget.DailyUSD > 0 && day > l.budget.DailyUSD {
		if _, err := l.store.IncrBy(ctx, dayKey, -est, dayTTL); err != nil {
			l.logger.Error("Failed to roll back daily reservation", zap.Int64("user_id", userID), zap.Error(err))
		}
		return nil, ErrQuotaExceeded
	}

	month, err := l.store.IncrBy(ctx, monthKey, est, monthTTL)
	if err != nil {
		if _, rbErr := l.store.IncrBy(ctx, dayKey, -est, dayTTL); rbErr != nil {
			l.logger.Error("Failed to roll back daily reservation", zap.Int64("user_id", userID), zap.Error(rbErr))
		}
		return nil, fmt.Errorf("reserve monthly spend: %w", err)
	}
	if l.budget.MonthlyUSD > 0 && month > l.budget.MonthlyUSD {
		if _, err := l.store.IncrBy(ctx, monthKey, -est, monthTTL); err != nil {
			l.logger.Error("Failed to roll back monthly reservation", zap.Int64("user_id", userID), zap.Error(err))
		}
		if _, err := l.store.IncrBy(ctx, dayKey, -est, dayTTL); err != nil {
			l.logger.Error("Failed to roll back daily reservation", zap.Int64("user_id", userID), zap.Error(err))
		}
		return nil, ErrQuotaExceeded
	}

	return &Permit{userID: userID, reservedUSD: est, dayKey: dayKey, monthKey: monthKey}, nil
}

// Commit replaces the permit's reservation with the actual cost of the
// completed calls.
func (l *Ledger) Commit(ctx context.Context, p *Permit, actualTokens int, actualCostUSD float64) error {
	delta := actualCostUSD - p.reservedUSD
	if _, err := l.store.IncrBy(ctx, p.dayKey, delta, dayTTL); err != nil {
		return fmt.Errorf("commit daily spend: %w", err)
	}
	if _, err := l.store.IncrBy(ctx, p.monthKey, delta, monthTTL); err != nil {
		return fmt.Errorf("commit monthly spend: %w", err)
	}
	return nil
}

// Release returns the permit's reservation unspent.
func (l *Ledger) Release(ctx context.Context, p *Permit) error {
	if _, err := l.store.IncrBy(ctx, p.dayKey, -p.reservedUSD, dayTTL); err != nil {
		return fmt.Errorf("release daily reservation: %w", err)
	}
	if _, err := l.store.IncrBy(ctx, p.monthKey, -p.reservedUSD, monthTTL); err != nil {
		return fmt.Errorf("release monthly reservation: %w", err)
	}
	return nil
}

// DailySpend reads the user's booked spend for today.
func (l *Ledger) DailySpend(ctx context.Context, userID int64) (float64, error) {
	return l.store.Get(ctx, l.dayKey(userID))
}
