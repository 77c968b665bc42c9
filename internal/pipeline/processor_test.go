package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sortdesk/mailpilot/internal/analyzer"
	"github.com/sortdesk/mailpilot/internal/ledger"
	"github.com/sortdesk/mailpilot/internal/model"
)

// fakeTransport answers every analyzer from a per-slot payload table. Slots
// in hangSlots block until the call context expires, but only for prompts
// mentioning hangSubject, so a single email can be made to time out.
type fakeTransport struct {
	mu          sync.Mutex
	payloads    map[string]string
	hangSlots   map[string]bool
	hangSubject string
	started     chan struct{}
	startedOnce sync.Once
	blockAll    bool
}

func newPipelineTransport() *fakeTransport {
	return &fakeTransport{
		payloads: map[string]string{
			model.SlotCategorization: `{"category":"work","signal_strength":"high","reply_worthiness":"needed","summary":"s"}`,
			model.SlotActions:        `{"actions":[{"type":"reply","title":"answer"}],"primary_action_index":0}`,
			model.SlotDates:          `{"dates":[{"date":"2026-08-10","kind":"deadline","context":"pay by"}]}`,
			model.SlotRelationship:   `{"client":"Acme","is_vip":true}`,
		},
		hangSlots: map[string]bool{},
		started:   make(chan struct{}),
	}
}

func (f *fakeTransport) Invoke(ctx context.Context, an string, prompt string) (*analyzer.Invocation, error) {
	f.startedOnce.Do(func() { close(f.started) })

	f.mu.Lock()
	hang := f.blockAll || (f.hangSlots[an] && strings.Contains(prompt, f.hangSubject))
	payload, ok := f.payloads[an]
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if !ok {
		payload = `{}`
	}
	return &analyzer.Invocation{RawJSON: []byte(payload), Tokens: 100, CostUSD: 0.001}, nil
}

// fakeStore is an in-memory EmailStore recording everything the processor
// persists.
type fakeStore struct {
	mu         sync.Mutex
	emails     map[int64]model.Email
	rows       map[int64]*model.RawAnalysisRow
	triage     map[int64]model.TriageFields
	actions    map[int64][]model.ActionItem
	dates      map[int64][]model.ExtractedDate
	failUpsert map[int64]error
}

func newFakeStore(emails ...model.Email) *fakeStore {
	s := &fakeStore{
		emails:     make(map[int64]model.Email),
		rows:       make(map[int64]*model.RawAnalysisRow),
		triage:     make(map[int64]model.TriageFields),
		actions:    make(map[int64][]model.ActionItem),
		dates:      make(map[int64][]model.ExtractedDate),
		failUpsert: make(map[int64]error),
	}
	for _, e := range emails {
		s.emails[e.ID] = e
	}
	return s
}

func (s *fakeStore) FetchByIDs(_ context.Context, ids []int64) ([]model.Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Email
	for _, id := range ids {
		if e, ok := s.emails[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateTriageFields(_ context.Context, emailID int64, f model.TriageFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triage[emailID] = f
	return nil
}

func (s *fakeStore) UpsertAnalysis(_ context.Context, row *model.RawAnalysisRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failUpsert[row.EmailID]; err != nil {
		return err
	}
	s.rows[row.EmailID] = row
	return nil
}

func (s *fakeStore) DeleteWhereEmailIDIn(_ context.Context, table string, ids []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		switch table {
		case model.TableActionItems:
			n += int64(len(s.actions[id]))
			delete(s.actions, id)
		case model.TableExtractedDates:
			n += int64(len(s.dates[id]))
			delete(s.dates, id)
		}
	}
	return n, nil
}

func (s *fakeStore) InsertActionItems(_ context.Context, items []model.ActionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.actions[it.EmailID] = append(s.actions[it.EmailID], it)
	}
	return nil
}

func (s *fakeStore) InsertExtractedDates(_ context.Context, dates []model.ExtractedDate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range dates {
		s.dates[d.EmailID] = append(s.dates[d.EmailID], d)
	}
	return nil
}

// fakeLedger grants a fixed number of permits and then reports quota
// exhaustion.
type fakeLedger struct {
	mu       sync.Mutex
	grants   int
	reserves int
	commits  int
	releases int
}

func (l *fakeLedger) Reserve(context.Context, int64, int) (*ledger.Permit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reserves++
	if l.grants == 0 {
		return nil, ledger.ErrQuotaExceeded
	}
	l.grants--
	return &ledger.Permit{}, nil
}

func (l *fakeLedger) Commit(context.Context, *ledger.Permit, int, float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commits++
	return nil
}

func (l *fakeLedger) Release(context.Context, *ledger.Permit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	return nil
}

func email(id int64, subject string) model.Email {
	return model.Email{ID: id, UserID: 7, Subject: subject, Body: "body", ReceivedAt: time.Now()}
}

func analyzedEmail(id int64, subject string) model.Email {
	e := email(id, subject)
	at := time.Now().Add(-time.Hour)
	e.AnalyzedAt = &at
	return e
}

func testProcessor(store *fakeStore, ft *fakeTransport, l CostLedger, timeout time.Duration) *Processor {
	set := analyzer.NewSet(ft, analyzer.Config{Timeout: timeout, Version: "v3"}, zap.NewNop())
	return NewProcessor(store, set, l, 5, 8000, zap.NewNop())
}

func userCtx() *model.UserContext {
	return &model.UserContext{UserID: 7, Role: "consultant"}
}

func TestProcessBatchAllSucceed(t *testing.T) {
	store := newFakeStore(email(1, "a"), email(2, "b"), email(3, "c"))
	lg := &fakeLedger{grants: 10}
	p := testProcessor(store, newPipelineTransport(), lg, time.Second)

	run, err := p.ProcessBatch(context.Background(), []int64{1, 2, 3}, userCtx(), Options{})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if run.Succeeded != 3 || run.Failed != 0 || run.Settled() != 3 {
		t.Fatalf("run = %+v", run)
	}
	if run.Categorized["work"] != 3 {
		t.Fatalf("categorized = %v", run.Categorized)
	}
	if run.WithActions != 3 {
		t.Fatalf("with actions = %d", run.WithActions)
	}
	if run.TotalTokens != 3*1000 {
		t.Fatalf("tokens = %d", run.TotalTokens)
	}

	for id := int64(1); id <= 3; id++ {
		row, ok := store.rows[id]
		if !ok {
			t.Fatalf("no analysis row for email %d", id)
		}
		if len(row.FailedSlots) != 0 {
			t.Fatalf("email %d failed slots: %v", id, row.FailedSlots)
		}
		tf := store.triage[id]
		if tf.Category != "work" || tf.SignalStrength != model.SignalHigh {
			t.Fatalf("email %d triage = %+v", id, tf)
		}
		if len(tf.Labels) != 2 {
			t.Fatalf("email %d labels = %v, want client + vip", id, tf.Labels)
		}
		if len(store.actions[id]) != 1 || !store.actions[id][0].IsPrimary {
			t.Fatalf("email %d actions = %+v", id, store.actions[id])
		}
		if len(store.dates[id]) != 1 {
			t.Fatalf("email %d dates = %+v", id, store.dates[id])
		}
	}
	if lg.commits != 3 {
		t.Fatalf("commits = %d, want 3", lg.commits)
	}
}

func TestProcessBatchValidation(t *testing.T) {
	store := newFakeStore(email(1, "a"))
	p := testProcessor(store, newPipelineTransport(), &fakeLedger{grants: 10}, time.Second)

	cases := []struct {
		name string
		ids  []int64
		uc   *model.UserContext
	}{
		{"nil user context", []int64{1}, nil},
		{"zero user id", []int64{1}, &model.UserContext{}},
		{"empty ids", nil, userCtx()},
		{"non-positive id", []int64{0}, userCtx()},
		{"unknown id", []int64{1, 99}, userCtx()},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := p.ProcessBatch(context.Background(), c.ids, c.uc, Options{})
			var ve *model.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestProcessBatchTimeoutFailsOnlyThatEmail(t *testing.T) {
	ft := newPipelineTransport()
	ft.hangSlots[model.SlotDates] = true
	ft.hangSubject = "beta"

	store := newFakeStore(email(1, "alpha"), email(2, "beta"), email(3, "gamma"))
	p := testProcessor(store, ft, &fakeLedger{grants: 10}, 30*time.Millisecond)

	var failedIDs []int64
	run, err := p.ProcessBatch(context.Background(), []int64{1, 2, 3}, userCtx(), Options{
		OnError: func(emailID int64, err error) { failedIDs = append(failedIDs, emailID) },
	})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if run.Succeeded != 2 || run.Failed != 1 {
		t.Fatalf("run = %+v", run)
	}
	if len(failedIDs) != 1 || failedIDs[0] != 2 {
		t.Fatalf("failed ids = %v, want [2]", failedIDs)
	}
	if len(run.Errors) != 1 || !strings.Contains(run.Errors[0].Message, model.SlotDates) {
		t.Fatalf("errors = %+v", run.Errors)
	}

	// The timed-out slot is recorded on the failed email but the other nine
	// slots are still persisted.
	row := store.rows[2]
	if row == nil {
		t.Fatal("failed email must still persist its partial analysis")
	}
	if len(row.FailedSlots) != 1 || row.FailedSlots[0] != model.SlotDates {
		t.Fatalf("failed slots = %v", row.FailedSlots)
	}
	if len(row.Slots) != 9 {
		t.Fatalf("persisted slots = %d, want 9", len(row.Slots))
	}
	if got := store.triage[2].AnalysisError; !strings.Contains(got, model.SlotDates) {
		t.Fatalf("analysis error = %q", got)
	}
	for _, id := range []int64{1, 3} {
		if store.triage[id].AnalysisError != "" {
			t.Fatalf("email %d carries analysis error %q", id, store.triage[id].AnalysisError)
		}
	}
}

func TestProcessBatchQuotaMidBatch(t *testing.T) {
	store := newFakeStore(email(1, "a"), email(2, "b"), email(3, "c"), email(4, "d"))
	lg := &fakeLedger{grants: 2}
	p := testProcessor(store, newPipelineTransport(), lg, time.Second)

	run, err := p.ProcessBatch(context.Background(), []int64{1, 2, 3, 4}, userCtx(), Options{})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if run.Succeeded != 2 || run.SkippedQuota != 2 || run.Failed != 0 {
		t.Fatalf("run = %+v", run)
	}
	if run.Settled() != 4 {
		t.Fatalf("settled = %d, want 4", run.Settled())
	}
	// Dispatch stops at the first quota refusal.
	if lg.reserves != 3 {
		t.Fatalf("reserves = %d, want 3", lg.reserves)
	}
}

func TestProcessBatchQuotaCountsAnalyzedRemainder(t *testing.T) {
	store := newFakeStore(email(1, "a"), email(2, "b"), email(3, "c"), analyzedEmail(4, "d"))
	p := testProcessor(store, newPipelineTransport(), &fakeLedger{grants: 2}, time.Second)

	run, err := p.ProcessBatch(context.Background(), []int64{1, 2, 3, 4}, userCtx(), Options{SkipAnalyzed: true})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if run.Succeeded != 2 || run.SkippedQuota != 1 || run.SkippedAnalyzed != 1 {
		t.Fatalf("run = %+v", run)
	}
	if run.Settled() != 4 {
		t.Fatalf("settled = %d, want 4", run.Settled())
	}
}

func TestProcessBatchSkipAnalyzed(t *testing.T) {
	store := newFakeStore(email(1, "a"), analyzedEmail(2, "b"), email(3, "c"))
	lg := &fakeLedger{grants: 10}
	p := testProcessor(store, newPipelineTransport(), lg, time.Second)

	run, err := p.ProcessBatch(context.Background(), []int64{1, 2, 3}, userCtx(), Options{SkipAnalyzed: true})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if run.Succeeded != 2 || run.SkippedAnalyzed != 1 {
		t.Fatalf("run = %+v", run)
	}
	// No budget is reserved for skipped emails.
	if lg.reserves != 2 {
		t.Fatalf("reserves = %d, want 2", lg.reserves)
	}
	if _, ok := store.rows[2]; ok {
		t.Fatal("skipped email must not be re-analyzed")
	}
}

func TestProcessBatchProgressMonotonic(t *testing.T) {
	store := newFakeStore(email(1, "a"), email(2, "b"), email(3, "c"), email(4, "d"))
	p := testProcessor(store, newPipelineTransport(), &fakeLedger{grants: 10}, time.Second)

	var progress []int
	_, err := p.ProcessBatch(context.Background(), []int64{1, 2, 3, 4}, userCtx(), Options{
		OnProgress: func(completed, total int) {
			if total != 4 {
				t.Errorf("total = %d, want 4", total)
			}
			progress = append(progress, completed)
		},
	})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if len(progress) != 4 {
		t.Fatalf("progress fired %d times, want 4", len(progress))
	}
	for i, c := range progress {
		if c != i+1 {
			t.Fatalf("progress = %v, want strictly increasing to 4", progress)
		}
	}
}

func TestProcessBatchPersistFailure(t *testing.T) {
	store := newFakeStore(email(1, "a"), email(2, "b"))
	store.failUpsert[2] = errors.New("disk full")
	p := testProcessor(store, newPipelineTransport(), &fakeLedger{grants: 10}, time.Second)

	run, err := p.ProcessBatch(context.Background(), []int64{1, 2}, userCtx(), Options{})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if run.Succeeded != 1 || run.Failed != 1 {
		t.Fatalf("run = %+v", run)
	}
	if len(run.Errors) != 1 || run.Errors[0].EmailID != 2 || !strings.Contains(run.Errors[0].Message, "upsert analysis") {
		t.Fatalf("errors = %+v, want upsert failure for email 2", run.Errors)
	}
	if _, ok := store.rows[2]; ok {
		t.Fatal("failed upsert must not leave a row behind")
	}
}

func TestProcessBatchCancelStopsDispatch(t *testing.T) {
	ft := newPipelineTransport()
	ft.blockAll = true

	store := newFakeStore(email(1, "a"), email(2, "b"), email(3, "c"))
	p := testProcessor(store, ft, &fakeLedger{grants: 10}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-ft.started
		cancel()
	}()

	run, err := p.ProcessBatch(ctx, []int64{1, 2, 3}, userCtx(), Options{BatchSize: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	// Only the in-flight email settles; the rest were never dispatched.
	if run.Settled() >= 3 {
		t.Fatalf("settled = %d, want fewer than 3", run.Settled())
	}
	if run.Succeeded != 0 {
		t.Fatalf("succeeded = %d, want 0 after cancellation", run.Succeeded)
	}
}
