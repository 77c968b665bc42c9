package invalidate

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/sortdesk/mailpilot/internal/model"
)

type fakeStore struct {
	clearedIDs   []int64
	clearErr     error
	deleteErr    map[string]error
	deletedRows  map[string]int64
	deleteCalled []string
}

func newStore() *fakeStore {
	return &fakeStore{
		deleteErr:   map[string]error{},
		deletedRows: map[string]int64{},
	}
}

func (s *fakeStore) ClearTriageFields(_ context.Context, emailIDs []int64) error {
	if s.clearErr != nil {
		return s.clearErr
	}
	s.clearedIDs = emailIDs
	return nil
}

func (s *fakeStore) DeleteWhereEmailIDIn(_ context.Context, table string, _ []int64) (int64, error) {
	s.deleteCalled = append(s.deleteCalled, table)
	if err := s.deleteErr[table]; err != nil {
		return 0, err
	}
	return s.deletedRows[table], nil
}

func TestInvalidateClearsAndDeletes(t *testing.T) {
	store := newStore()
	store.deletedRows[model.TableActionItems] = 3
	store.deletedRows[model.TableExtractedDates] = 2
	m := NewManager(store, zap.NewNop())

	report, err := m.Invalidate(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if report.EmailCount != 2 || report.DeletedRows != 5 || len(report.Warnings) != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(store.clearedIDs) != 2 {
		t.Fatalf("cleared = %v", store.clearedIDs)
	}
	if len(store.deleteCalled) != 2 {
		t.Fatalf("delete called for %v, want both derived tables", store.deleteCalled)
	}
}

func TestInvalidateValidation(t *testing.T) {
	m := NewManager(newStore(), zap.NewNop())

	for _, ids := range [][]int64{nil, {}, {0}, {1, -4}} {
		_, err := m.Invalidate(context.Background(), ids)
		var ve *model.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("ids %v: err = %v, want ValidationError", ids, err)
		}
	}
}

func TestInvalidateClearFailureIsFatal(t *testing.T) {
	store := newStore()
	store.clearErr = errors.New("db down")
	m := NewManager(store, zap.NewNop())

	_, err := m.Invalidate(context.Background(), []int64{1})
	var pe *model.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
	if len(store.deleteCalled) != 0 {
		t.Fatal("derived cleanup must not run after a failed clear")
	}
}

func TestInvalidateDerivedFailureIsWarning(t *testing.T) {
	store := newStore()
	store.deleteErr[model.TableActionItems] = errors.New("lock timeout")
	store.deletedRows[model.TableExtractedDates] = 4
	m := NewManager(store, zap.NewNop())

	report, err := m.Invalidate(context.Background(), []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if len(report.Warnings) != 1 || report.Warnings[0].Table != model.TableActionItems {
		t.Fatalf("warnings = %+v", report.Warnings)
	}
	// The second table is still attempted after the first one failed.
	if report.DeletedRows != 4 {
		t.Fatalf("deleted rows = %d, want 4", report.DeletedRows)
	}
	if len(store.deleteCalled) != 2 {
		t.Fatalf("delete called for %v", store.deleteCalled)
	}
}
