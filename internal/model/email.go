package model

import "time"

// SignalStrength is the coarse importance label assigned by the
// categorization analyzer.
type SignalStrength string

const (
	SignalHigh   SignalStrength = "high"
	SignalMedium SignalStrength = "medium"
	SignalLow    SignalStrength = "low"
	SignalNoise  SignalStrength = "noise"
)

// ReplyWorthiness is the urgency-to-respond label, distinct from signal
// strength.
type ReplyWorthiness string

const (
	ReplyUrgent   ReplyWorthiness = "urgent"
	ReplyNeeded   ReplyWorthiness = "needed"
	ReplyOptional ReplyWorthiness = "optional"
	ReplyNone     ReplyWorthiness = "none"
)

// Email is one mail record: immutable content owned by ingestion, plus the
// triage fields the analysis pipeline writes.
type Email struct {
	ID          int64
	UserID      int64
	Subject     string
	Sender      string
	SenderEmail string
	Body        string
	ReceivedAt  time.Time

	IsRead     bool
	IsStarred  bool
	IsArchived bool

	Category        string
	Summary         string
	QuickAction     string
	Labels          []string
	SignalStrength  SignalStrength
	ReplyWorthiness ReplyWorthiness
	AnalysisError   string
	AnalyzedAt      *time.Time
	ReviewedAt      *time.Time
}

// TriageFields is the mutable, analysis-derived portion of an email row.
// A zero value clears every field (used by invalidation).
type TriageFields struct {
	Category        string
	Summary         string
	QuickAction     string
	Labels          []string
	SignalStrength  SignalStrength
	ReplyWorthiness ReplyWorthiness
	AnalysisError   string
	AnalyzedAt      *time.Time
}

// UserContext is the read-only per-user context fed to every analyzer.
type UserContext struct {
	UserID     int64
	Role       string
	Priorities []string
	Clients    []string
	VIPEmails  []string
	Interests  []string
}
