package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewQueuedMessage(t *testing.T) {
	msg := NewMessage("order.created", []byte("payload"))

	beforeCreate := time.Now()
	q := NewQueuedMessage(msg, PriorityHigh, 5)
	afterCreate := time.Now()

	assert.Equal(t, msg.ID, q.ID)
	assert.Equal(t, PriorityHigh, q.Priority)
	assert.Equal(t, 0, q.RetryCount)
	assert.Equal(t, 5, q.MaxRetries)
	assert.False(t, q.LastError.Valid)

	// Ready immediately after creation
	assert.True(t, q.ReadyForDelivery())
	assert.False(t, q.ShouldDeadLetter())

	assert.WithinDuration(t, beforeCreate, q.EnqueuedAt, 1*time.Second)
	assert.True(t, q.NextAttemptAt.Before(afterCreate.Add(1*time.Second)))
}

func TestQueuedMessage_MarkFailed(t *testing.T) {
	tests := []struct {
		name             string
		initialRetries   int
		err              error
		retryAfter       time.Duration
		expectedRetries  int
		expectError      bool
		expectDeadLetter bool
	}{
		{
			name:            "First failure with error",
			initialRetries:  0,
			err:             errors.New("connection reset"),
			retryAfter:      1 * time.Second,
			expectedRetries: 1,
			expectError:     true,
		},
		{
			name:            "Second failure without error",
			initialRetries:  1,
			err:             nil,
			retryAfter:      2 * time.Second,
			expectedRetries: 2,
			expectError:     false,
		},
		{
			name:             "Fifth failure exhausts retry budget",
			initialRetries:   4,
			err:              errors.New("send timeout"),
			retryAfter:       16 * time.Second,
			expectedRetries:  5,
			expectError:      true,
			expectDeadLetter: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueuedMessage(NewMessage("t", []byte("x")), PriorityNormal, 5)
			q.RetryCount = tt.initialRetries

			beforeMark := time.Now()
			q.MarkFailed(tt.err, tt.retryAfter)

			assert.Equal(t, tt.expectedRetries, q.RetryCount)
			assert.WithinDuration(t, beforeMark.Add(tt.retryAfter), q.NextAttemptAt, 1*time.Second)
			assert.WithinDuration(t, beforeMark, q.EnqueuedAt, 1*time.Second)

			if tt.expectError {
				assert.True(t, q.LastError.Valid)
				assert.Equal(t, tt.err.Error(), q.LastError.String)
			} else {
				assert.False(t, q.LastError.Valid)
			}

			assert.Equal(t, tt.expectDeadLetter, q.ShouldDeadLetter())

			// Backoff not yet elapsed
			assert.False(t, q.ReadyForDelivery())
			assert.Greater(t, q.TimeUntilAttempt(), time.Duration(0))
		})
	}
}

func TestQueuedMessage_ResetForReplay(t *testing.T) {
	q := NewQueuedMessage(NewMessage("t", []byte("x")), PriorityLow, 3)
	q.MarkFailed(errors.New("boom"), time.Minute)
	q.MarkFailed(errors.New("boom again"), time.Minute)

	q.ResetForReplay()

	assert.Equal(t, 0, q.RetryCount)
	assert.False(t, q.LastError.Valid)
	assert.True(t, q.ReadyForDelivery())
	assert.Equal(t, time.Duration(0), q.TimeUntilAttempt())
}

func TestQueuedMessage_TimeUntilAttempt(t *testing.T) {
	q := NewQueuedMessage(NewMessage("t", []byte("x")), PriorityNormal, 5)

	// Ready item reports zero, never negative
	q.NextAttemptAt = time.Now().Add(-1 * time.Minute)
	assert.Equal(t, time.Duration(0), q.TimeUntilAttempt())

	q.NextAttemptAt = time.Now().Add(10 * time.Second)
	remaining := q.TimeUntilAttempt()
	assert.Greater(t, remaining, 9*time.Second)
	assert.LessOrEqual(t, remaining, 10*time.Second)
}

func TestQueueStats_TotalQueued(t *testing.T) {
	stats := QueueStats{
		HighPriorityCount:   2,
		NormalPriorityCount: 5,
		LowPriorityCount:    1,
		DeadLetterCount:     7,
	}

	// Dead letters are not part of the active total
	assert.Equal(t, 8, stats.TotalQueued())
}
