package normalize

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/sortdesk/mailpilot/internal/model"
)

func row(slots map[string]string) *model.RawAnalysisRow {
	r := &model.RawAnalysisRow{
		EmailID:         42,
		Slots:           make(map[string]json.RawMessage, len(slots)),
		TotalTokens:     1200,
		ProcessingMS:    800,
		AnalyzerVersion: "v3",
		AnalyzedAt:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	for k, v := range slots {
		r.Slots[k] = json.RawMessage(v)
	}
	return r
}

func TestNormalizeAliasInvariant(t *testing.T) {
	snake := row(map[string]string{
		model.SlotCategorization: `{"category":"work","signal_strength":"high","reply_worthiness":"needed","quick_action":"respond","summary":"s","confidence":0.9,"reasoning":"r"}`,
	})
	camel := row(map[string]string{
		model.SlotCategorization: `{"category":"work","signalStrength":"high","replyWorthiness":"needed","quickAction":"respond","summary":"s","confidence":0.9,"reasoning":"r"}`,
	})

	a := Normalize(snake)
	b := Normalize(camel)
	if !reflect.DeepEqual(a.Categorization, b.Categorization) {
		t.Fatalf("snake and camel payloads normalized differently:\n%+v\n%+v", a.Categorization, b.Categorization)
	}
	if a.Categorization.SignalStrength != model.SignalHigh {
		t.Fatalf("signal = %q, want high", a.Categorization.SignalStrength)
	}
}

func TestNormalizePrefersCurrentName(t *testing.T) {
	r := row(map[string]string{
		model.SlotCategorization: `{"category":"work","signal_strength":"high","signalStrength":"low"}`,
	})
	a := Normalize(r)
	if a.Categorization.SignalStrength != model.SignalHigh {
		t.Fatalf("signal = %q, want current-name value high", a.Categorization.SignalStrength)
	}
}

func TestNormalizeIsPure(t *testing.T) {
	r := row(map[string]string{
		model.SlotCategorization: `{"category":"finance","signal_strength":"medium"}`,
		model.SlotDigest:         `{"gist":"g","key_points":["a","b"],"links":[{"url":"https://x","label":"x","kind":"doc"}]}`,
	})
	first := Normalize(r)
	second := Normalize(r)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("normalize not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestNormalizeLegacyNeedsReplyBool(t *testing.T) {
	r := row(map[string]string{
		model.SlotCategorization: `{"category":"work","importance":"high","needs_reply":true}`,
	})
	a := Normalize(r)
	if a.Categorization.ReplyWorthiness != model.ReplyNeeded {
		t.Fatalf("reply = %q, want needed from legacy bool", a.Categorization.ReplyWorthiness)
	}
	if a.Categorization.SignalStrength != model.SignalHigh {
		t.Fatalf("signal = %q, want high from legacy importance", a.Categorization.SignalStrength)
	}
}

func TestNormalizeActionsMultiList(t *testing.T) {
	r := row(map[string]string{
		model.SlotActions: `{"actions":[{"type":"reply","title":"answer Kim","deadline":"2026-08-05","priority":"high"},{"type":"task","title":"send deck"}],"primary_action_index":1}`,
	})
	a := Normalize(r)
	if len(a.Actions.Actions) != 2 {
		t.Fatalf("actions = %d, want 2", len(a.Actions.Actions))
	}
	if a.Actions.PrimaryIndex != 1 {
		t.Fatalf("primary index = %d, want 1", a.Actions.PrimaryIndex)
	}
	want := time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC)
	if a.Actions.Actions[0].Deadline == nil || !a.Actions.Actions[0].Deadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", a.Actions.Actions[0].Deadline, want)
	}
}

func TestNormalizeActionsLegacySingle(t *testing.T) {
	r := row(map[string]string{
		model.SlotActions: `{"actionType":"reply","actionTitle":"answer Kim","actionDeadline":"2026-08-05"}`,
	})
	a := Normalize(r)
	if len(a.Actions.Actions) != 1 {
		t.Fatalf("actions = %d, want 1 from legacy single-action fields", len(a.Actions.Actions))
	}
	if a.Actions.Actions[0].Title != "answer Kim" {
		t.Fatalf("title = %q", a.Actions.Actions[0].Title)
	}
	if a.Actions.PrimaryIndex != 0 {
		t.Fatalf("primary index = %d, want 0", a.Actions.PrimaryIndex)
	}
}

func TestNormalizePrimaryIndexOutOfRange(t *testing.T) {
	r := row(map[string]string{
		model.SlotActions: `{"actions":[{"type":"reply","title":"t"}],"primary_action_index":7}`,
	})
	a := Normalize(r)
	if a.Actions.PrimaryIndex != 0 {
		t.Fatalf("primary index = %d, want clamped 0", a.Actions.PrimaryIndex)
	}
}

func TestNormalizeAbsentSlotsStayNil(t *testing.T) {
	r := row(map[string]string{
		model.SlotCategorization: `{"category":"work"}`,
	})
	a := Normalize(r)
	if a.Actions != nil || a.Event != nil || a.News != nil || a.Ideas != nil {
		t.Fatal("absent slots must stay nil, not default to empty objects")
	}
}

func TestNormalizeNeutralDefaults(t *testing.T) {
	r := row(map[string]string{
		model.SlotCategorization: `{}`,
		model.SlotDigest:         `{}`,
		model.SlotRelationship:   `{}`,
	})
	a := Normalize(r)
	if a.Categorization.Confidence != 0 || a.Categorization.Category != "" {
		t.Fatalf("want zero defaults, got %+v", a.Categorization)
	}
	if a.Categorization.SignalStrength != model.SignalLow {
		t.Fatalf("signal default = %q, want low", a.Categorization.SignalStrength)
	}
	if a.Categorization.ReplyWorthiness != model.ReplyNone {
		t.Fatalf("reply default = %q, want none", a.Categorization.ReplyWorthiness)
	}
	if a.Digest.KeyPoints == nil || len(a.Digest.KeyPoints) != 0 {
		t.Fatalf("key points = %#v, want empty list", a.Digest.KeyPoints)
	}
	if a.Relationship.IsVIP {
		t.Fatal("is_vip default must be false")
	}
}

func TestNormalizeEvents(t *testing.T) {
	r := row(map[string]string{
		model.SlotEvent:  `{"hasEvent":true,"eventTitle":"standup","startTime":"2026-08-03T09:00:00Z","location":"zoom"}`,
		model.SlotEvents: `{"events":[{"title":"a","starts_at":"2026-08-03T09:00:00Z"},{"title":"b"}]}`,
	})
	a := Normalize(r)
	if !a.Event.HasEvent || a.Event.Event.Title != "standup" {
		t.Fatalf("event = %+v", a.Event)
	}
	if a.Event.Event.StartsAt == nil {
		t.Fatal("startTime alias not read")
	}
	if len(a.Events.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(a.Events.Events))
	}
}

func TestNormalizeDatesSkipsUnparseable(t *testing.T) {
	r := row(map[string]string{
		model.SlotDates: `{"dates":[{"date":"2026-08-10","kind":"deadline","context":"pay by"},{"date":"next tuesday","kind":"other"}]}`,
	})
	a := Normalize(r)
	if len(a.Dates.Dates) != 1 {
		t.Fatalf("dates = %d, want 1 (unparseable dropped)", len(a.Dates.Dates))
	}
	if a.Dates.Dates[0].Kind != "deadline" {
		t.Fatalf("kind = %q", a.Dates.Dates[0].Kind)
	}
}

func TestNormalizeIdeasStringList(t *testing.T) {
	r := row(map[string]string{
		model.SlotIdeas: `{"ideas":["write a post","ping legal"]}`,
	})
	a := Normalize(r)
	if len(a.Ideas.Sparks) != 2 || a.Ideas.Sparks[0].Title != "write a post" {
		t.Fatalf("sparks = %+v", a.Ideas.Sparks)
	}
}

func TestNormalizeUnparseableSlotBehavesAbsent(t *testing.T) {
	r := row(map[string]string{
		model.SlotNews: `not json at all`,
	})
	a := Normalize(r)
	if a.News != nil {
		t.Fatal("unparseable slot must behave like an absent slot")
	}
}

func TestNormalizeCarriesRunMetadata(t *testing.T) {
	r := row(nil)
	a := Normalize(r)
	if a.EmailID != 42 || a.TotalTokens != 1200 || a.AnalyzerVersion != "v3" {
		t.Fatalf("metadata not carried: %+v", a)
	}
}
