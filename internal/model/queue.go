package model

import "time"

// ReviewQueueEntry is a read-only projection of an email and its analysis,
// computed on demand for the daily review queue.
type ReviewQueueEntry struct {
	EmailID         int64           `json:"emailId"`
	Subject         string          `json:"subject"`
	Sender          string          `json:"sender"`
	ReceivedAt      time.Time       `json:"receivedAt"`
	Category        string          `json:"category"`
	Summary         string          `json:"summary"`
	QuickAction     string          `json:"quickAction"`
	SignalStrength  SignalStrength  `json:"signalStrength"`
	ReplyWorthiness ReplyWorthiness `json:"replyWorthiness"`
	IsRead          bool            `json:"isRead"`
	ReviewedAt      *time.Time      `json:"reviewedAt,omitempty"`
}

// QueueStats are counts over one returned queue page, not the full eligible
// set.
type QueueStats struct {
	HighSignal   int `json:"highSignal"`
	MediumSignal int `json:"mediumSignal"`
	NeedsReply   int `json:"needsReply"`
	Unread       int `json:"unread"`
}

// Queue is one review-queue selection.
type Queue struct {
	Items []ReviewQueueEntry
	Stats QueueStats
	// TotalInQueue is the size of the full eligible set, which may exceed
	// len(Items).
	TotalInQueue int
	GeneratedAt  time.Time
}
