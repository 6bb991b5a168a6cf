package model

import (
	"database/sql"
	"time"
)

// QueuedMessage represents a message queued for delivery together with its
// retry state. It is the unit the queue worker operates on and the record
// persisted by a MessageStore.
//
// Queue items follow this lifecycle:
//  1. Created by Enqueue with RetryCount=0, ready immediately
//  2. Delivery attempted - removed on success, MarkFailed on failure
//  3. Failed items are rescheduled with exponential backoff
//  4. After MaxRetries failures the item moves (not copies) to the
//     dead-letter store
//
// Business logic methods:
//   - MarkFailed: Record a failed attempt and schedule the next one
//   - ReadyForDelivery: Check whether the backoff delay has elapsed
//   - ShouldDeadLetter: Check whether retries are exhausted
//   - ResetForReplay: Clear retry state for dead-letter replay
type QueuedMessage struct {
	Message

	Priority      Priority       `json:"priority" db:"priority"`
	EnqueuedAt    time.Time      `json:"enqueuedAt" db:"enqueued_at"`
	RetryCount    int            `json:"retryCount" db:"retry_count"`
	MaxRetries    int            `json:"maxRetries" db:"max_retries"`
	NextAttemptAt time.Time      `json:"nextAttemptAt" db:"next_attempt_at"`
	LastError     sql.NullString `json:"lastError" db:"last_error"`

	// SequenceNumber preserves FIFO order within a priority class across
	// a persistence round-trip.
	SequenceNumber int64 `json:"sequenceNumber" db:"sequence_number"`
}

// NewQueuedMessage wraps a message for queueing in the given priority class.
// Initial state: RetryCount=0, NextAttemptAt=now (ready immediately).
func NewQueuedMessage(msg Message, priority Priority, maxRetries int) QueuedMessage {
	now := time.Now()

	return QueuedMessage{
		Message:       msg,
		Priority:      priority,
		EnqueuedAt:    now,
		RetryCount:    0,
		MaxRetries:    maxRetries,
		NextAttemptAt: now,
		LastError:     sql.NullString{},
	}
}

// MarkFailed records a failed delivery attempt and schedules the next one.
// Increments the retry count, stores the error, and refreshes the enqueue
// timestamp so statistics reflect the latest activity.
//
// Parameters:
//   - err: The delivery error (stored in LastError)
//   - retryAfter: Backoff delay before the next attempt
func (q *QueuedMessage) MarkFailed(err error, retryAfter time.Duration) {
	now := time.Now()
	q.RetryCount++
	q.NextAttemptAt = now.Add(retryAfter)
	q.EnqueuedAt = now
	if err != nil {
		q.LastError = sql.NullString{String: err.Error(), Valid: true}
	}
}

// ReadyForDelivery reports whether the backoff delay has elapsed and the
// item may be attempted.
func (q *QueuedMessage) ReadyForDelivery() bool {
	return !time.Now().Before(q.NextAttemptAt)
}

// ShouldDeadLetter reports whether the item has exhausted its retry budget
// and must move to the dead-letter store.
func (q *QueuedMessage) ShouldDeadLetter() bool {
	return q.RetryCount >= q.MaxRetries
}

// ResetForReplay clears retry state so a dead-lettered item can re-enter
// its original priority class.
func (q *QueuedMessage) ResetForReplay() {
	now := time.Now()
	q.RetryCount = 0
	q.NextAttemptAt = now
	q.EnqueuedAt = now
	q.LastError = sql.NullString{}
}

// TimeUntilAttempt returns the duration until the next delivery attempt.
// Zero means the item is ready now.
func (q *QueuedMessage) TimeUntilAttempt() time.Duration {
	d := time.Until(q.NextAttemptAt)
	if d < 0 {
		return 0
	}
	return d
}

// GetAge returns how long the item has been queued since its last
// (re-)enqueue.
func (q *QueuedMessage) GetAge() time.Duration {
	return time.Since(q.EnqueuedAt)
}

// QueueStats represents aggregate statistics for the delivery queue.
// Returned by the public GetQueueStatistics surface for monitoring.
type QueueStats struct {
	HighPriorityCount   int       `json:"highPriorityCount"`
	NormalPriorityCount int       `json:"normalPriorityCount"`
	LowPriorityCount    int       `json:"lowPriorityCount"`
	DeadLetterCount     int       `json:"deadLetterCount"`
	OldestEnqueuedAt    time.Time `json:"oldestEnqueuedAt"` // Zero when queue is empty
	NewestEnqueuedAt    time.Time `json:"newestEnqueuedAt"` // Zero when queue is empty
	LastUpdated         time.Time `json:"lastUpdated"`
}

// TotalQueued returns the number of messages across all active priority
// classes, excluding the dead-letter store.
func (s QueueStats) TotalQueued() int {
	return s.HighPriorityCount + s.NormalPriorityCount + s.LowPriorityCount
}
