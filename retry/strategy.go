// Package retry provides exponential backoff strategies for message delivery
// and connection re-establishment.
package retry

import (
	"fmt"
	"math"
	"time"
)

// Strategy defines exponential backoff behavior for repeated attempts.
//
// The schedule follows: delay = min(BaseDelay * Multiplier^(attempt-1), MaxDelay)
//
// Example with the delivery defaults (1s base, 2.0 multiplier, 30s max):
//
//	Attempt 1: 1s
//	Attempt 2: 2s
//	Attempt 3: 4s
//	Attempt 4: 8s
//	Attempt 5: 16s (last before dead-letter)
type Strategy struct {
	BaseDelay  time.Duration // Delay before the first retry
	MaxDelay   time.Duration // Upper bound on any single delay
	Multiplier float64       // Backoff multiplier (e.g. 2.0 for doubling)
	MaxRetries int           // Attempts before giving up
}

// DefaultStrategy returns the delivery retry defaults: 5 retries,
// 1s base delay doubling up to 30s.
func DefaultStrategy() Strategy {
	return Strategy{
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		MaxRetries: 5,
	}
}

// ReconnectStrategy returns the connection re-establishment defaults:
// 10 attempts, 1s base delay doubling up to 1m.
func ReconnectStrategy() Strategy {
	return Strategy{
		BaseDelay:  1 * time.Second,
		MaxDelay:   1 * time.Minute,
		Multiplier: 2.0,
		MaxRetries: 10,
	}
}

// Delay returns the backoff delay preceding the given attempt.
// Attempt numbers are 1-based; values below 2 yield BaseDelay.
func (s Strategy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return s.BaseDelay
	}

	delay := float64(s.BaseDelay) * math.Pow(s.Multiplier, float64(attempt-1))

	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}

	return time.Duration(delay)
}

// IsRetryable reports whether another attempt is allowed after the given
// number of completed attempts.
func (s Strategy) IsRetryable(attempts int) bool {
	return attempts < s.MaxRetries
}

// Schedule returns a human-readable description of the backoff schedule.
// Useful for logs and startup diagnostics.
func (s Strategy) Schedule() string {
	out := "Retry Schedule:\n"
	for i := 1; i <= s.MaxRetries; i++ {
		out += fmt.Sprintf("  Attempt %d: after %v\n", i, s.Delay(i))
	}
	out += "  -> give up\n"
	return out
}
