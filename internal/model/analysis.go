package model

import (
	"encoding/json"
	"time"
)

// Analyzer slot names. These double as the keys of the persisted raw
// analysis row, so they never change once shipped.
const (
	SlotCategorization = "categorization"
	SlotActions        = "actions"
	SlotRelationship   = "relationship"
	SlotEvent          = "event"
	SlotEvents         = "events"
	SlotDates          = "dates"
	SlotDigest         = "digest"
	SlotIdeas          = "ideas"
	SlotInsights       = "insights"
	SlotNews           = "news"
)

// RawAnalysisRow is the persisted per-email analysis record as written by the
// pipeline: one raw model payload per successful analyzer slot plus run
// metadata. Old rows may carry payloads in legacy field casing; the
// normalizer owns that tolerance.
type RawAnalysisRow struct {
	EmailID         int64
	Slots           map[string]json.RawMessage
	FailedSlots     []string
	TotalTokens     int
	ProcessingMS    int64
	AnalyzerVersion string
	AnalyzedAt      time.Time
}

// Categorization is the canonical output of the categorization analyzer.
type Categorization struct {
	Category        string
	SignalStrength  SignalStrength
	ReplyWorthiness ReplyWorthiness
	QuickAction     string
	Summary         string
	Confidence      float64
	Reasoning       string
}

// EmailAction is one extracted action, canonical form.
type EmailAction struct {
	Type     string
	Title    string
	Deadline *time.Time
	Priority string
	Notes    string
}

// ActionExtraction holds every action found in one email. PrimaryIndex
// points at the action the UI should surface first; legacy single-action
// payloads normalize to a one-element list with PrimaryIndex 0.
type ActionExtraction struct {
	Actions      []EmailAction
	PrimaryIndex int
}

// RelationshipTag links an email to a known client or contact.
type RelationshipTag struct {
	Client       string
	Relationship string
	IsVIP        bool
	Confidence   float64
}

// DetectedEvent is one calendar-worthy event.
type DetectedEvent struct {
	Title    string
	StartsAt *time.Time
	EndsAt   *time.Time
	Location string
	AllDay   bool
}

// EventDetection is the single-event analyzer's canonical output.
type EventDetection struct {
	HasEvent bool
	Event    DetectedEvent
}

// MultiEventDetection is the multi-event analyzer's canonical output.
type MultiEventDetection struct {
	Events []DetectedEvent
}

// DateMention is one date the date-extraction analyzer pulled from the body.
type DateMention struct {
	Date    time.Time
	Kind    string
	Context string
}

// DateExtraction holds every extracted date mention.
type DateExtraction struct {
	Dates []DateMention
}

// EmailLink is one link found in the email body.
type EmailLink struct {
	URL   string
	Label string
	Kind  string
}

// ContentDigest is the gist / key points / links summary slot.
type ContentDigest struct {
	Gist      string
	KeyPoints []string
	Links     []EmailLink
}

// IdeaSpark is one idea or follow-up thought prompted by the email.
type IdeaSpark struct {
	Title string
	Note  string
}

// IdeaSparks holds the idea-spark analyzer's output.
type IdeaSparks struct {
	Sparks []IdeaSpark
}

// InsightExtraction holds free-form insights and recurring themes.
type InsightExtraction struct {
	Insights []string
	Themes   []string
}

// NewsBrief summarizes a newsletter-style email.
type NewsBrief struct {
	Headline string
	Summary  string
	Topics   []string
}

// EmailAnalysis is the canonical per-email aggregate of all analyzer
// outputs. Exactly one exists per email; re-analysis replaces it wholesale.
// A nil slot means that analyzer produced nothing for this email.
type EmailAnalysis struct {
	EmailID int64

	Categorization *Categorization
	Actions        *ActionExtraction
	Relationship   *RelationshipTag
	Event          *EventDetection
	Events         *MultiEventDetection
	Dates          *DateExtraction
	Digest         *ContentDigest
	Ideas          *IdeaSparks
	Insights       *InsightExtraction
	News           *NewsBrief

	TotalTokens     int
	ProcessingMS    int64
	AnalyzerVersion string
	AnalyzedAt      time.Time
}
