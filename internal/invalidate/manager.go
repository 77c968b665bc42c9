// Package invalidate clears stale analysis state ahead of a forced rescan.
package invalidate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sortdesk/mailpilot/internal/model"
)

// Store is the slice of the email store invalidation needs.
type Store interface {
	ClearTriageFields(ctx context.Context, emailIDs []int64) error
	DeleteWhereEmailIDIn(ctx context.Context, table string, emailIDs []int64) (int64, error)
}

// Warning records one derived-table cleanup that failed. Stale derived rows
// are a recoverable inconsistency, so cleanup failures never abort the
// invalidation.
type Warning struct {
	Table string
	Err   error
}

// Report is the explicit outcome of one invalidation: the primary clear
// either succeeded for all ids or the whole call errored, and each
// best-effort cleanup failure surfaces as a warning.
type Report struct {
	EmailCount  int
	DeletedRows int64
	Warnings    []Warning
}

// Manager performs pre-rescan invalidation.
type Manager struct {
	store  Store
	logger *zap.Logger
}

func NewManager(store Store, logger *zap.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// Invalidate nulls the analysis-derived triage fields for the given emails,
// then deletes their derived action-item and extracted-date rows. The field
// clear is the hard step: if it fails nothing else runs and the error is
// returned. Derived-row deletion is best-effort by design — a stuck email is
// worse than a stale derived row.
func (m *Manager) Invalidate(ctx context.Context, emailIDs []int64) (*Report, error) {
	if len(emailIDs) == 0 {
		return nil, &model.ValidationError{Reason: "no email ids given"}
	}
	for _, id := range emailIDs {
		if id <= 0 {
			return nil, &model.ValidationError{Reason: fmt.Sprintf("invalid email id %d", id)}
		}
	}

	if err := m.store.ClearTriageFields(ctx, emailIDs); err != nil {
		return nil, &model.PersistenceError{Op: "clear triage fields", Err: err}
	}

	report := &Report{EmailCount: len(emailIDs)}
	for _, table := range []string{model.TableActionItems, model.TableExtractedDates} {
		deleted, err := m.store.DeleteWhereEmailIDIn(ctx, table, emailIDs)
		if err != nil {
			m.logger.Warn("Derived-row cleanup failed, continuing",
				zap.String("table", table),
				zap.Int("emails", len(emailIDs)),
				zap.Error(err),
			)
			report.Warnings = append(report.Warnings, Warning{Table: table, Err: err})
			continue
		}
		report.DeletedRows += deleted
	}

	m.logger.Info("Invalidated analysis state",
		zap.Int("emails", report.EmailCount),
		zap.Int64("derived_rows_deleted", report.DeletedRows),
		zap.Int("warnings", len(report.Warnings)),
	)

	return report, nil
}
