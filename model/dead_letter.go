package model

import (
	"database/sql"
	"time"
)

// DeadLetter represents a message that exhausted its retry budget and was
// moved out of the active queues. Entries keep the original priority class
// so a replay re-enters the queue the message came from.
//
// The dead-letter store serves as:
//   - Failure audit log with the last delivery error
//   - Manual intervention queue pending explicit replay
//
// Business logic methods:
//   - Replay: Produce a reset QueuedMessage for re-enqueueing
//   - GetAge: Time since the item was dead-lettered
//   - IsOld: Check if the item needs attention
type DeadLetter struct {
	Message

	Priority   Priority  `json:"priority" db:"priority"`
	RetryCount int       `json:"retryCount" db:"retry_count"`
	MaxRetries int       `json:"maxRetries" db:"max_retries"`
	EnqueuedAt time.Time `json:"enqueuedAt" db:"enqueued_at"`

	// Failure information
	FailedAt      time.Time `json:"failedAt" db:"failed_at"`
	LastError     string    `json:"lastError" db:"last_error"`
	FailureReason string    `json:"failureReason" db:"failure_reason"`
}

// NewDeadLetter creates a dead-letter entry from an exhausted queue item.
// Called by the queue worker when RetryCount reaches MaxRetries.
func NewDeadLetter(q QueuedMessage, reason string) DeadLetter {
	return DeadLetter{
		Message:       q.Message,
		Priority:      q.Priority,
		RetryCount:    q.RetryCount,
		MaxRetries:    q.MaxRetries,
		EnqueuedAt:    q.EnqueuedAt,
		FailedAt:      time.Now(),
		LastError:     q.LastError.String,
		FailureReason: reason,
	}
}

// Replay produces a queued message with retry state reset to zero,
// targeting the original priority class.
func (d DeadLetter) Replay() QueuedMessage {
	q := NewQueuedMessage(d.Message, d.Priority, d.MaxRetries)
	q.LastError = sql.NullString{}
	return q
}

// GetAge returns how long the item has been dead-lettered.
func (d DeadLetter) GetAge() time.Duration {
	return time.Since(d.FailedAt)
}

// IsOld reports whether the item has been dead-lettered longer than the
// threshold. Used to identify stuck items that need urgent attention.
func (d DeadLetter) IsOld(threshold time.Duration) bool {
	return d.GetAge() > threshold
}

// DeadLetterStats represents aggregate statistics for the dead-letter store.
// Used for monitoring dashboards and operational visibility.
type DeadLetterStats struct {
	TotalItems    int       `json:"totalItems"`
	OldestItemAge int64     `json:"oldestItemAge"` // Seconds
	NewestItemAge int64     `json:"newestItemAge"` // Seconds
	TopReason     string    `json:"topReason"`
	LastUpdated   time.Time `json:"lastUpdated"`
}
