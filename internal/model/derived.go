package model

import "time"

// Derived tables. Rows here exist only because of an analysis pass and are
// replaced wholesale whenever their source email is re-analyzed.
const (
	TableActionItems    = "action_items"
	TableExtractedDates = "extracted_dates"
)

// ActionItem is a derived row created from an ActionExtraction slot.
type ActionItem struct {
	ID        int64
	EmailID   int64
	UserID    int64
	Type      string
	Title     string
	Notes     string
	Deadline  *time.Time
	Priority  string
	IsPrimary bool
	CreatedAt time.Time
}

// ExtractedDate is a derived row created from a DateExtraction slot.
type ExtractedDate struct {
	ID        int64
	EmailID   int64
	UserID    int64
	Date      time.Time
	Kind      string
	Context   string
	CreatedAt time.Time
}
