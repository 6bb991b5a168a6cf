package msgrelay

import (
	"fmt"
	"time"

	"github.com/coregx/msgrelay/retry"
)

// Option is a function that configures a MessageQueue.
//
// Example:
//
//	queue, err := msgrelay.NewMessageQueue(
//	    msgrelay.WithStores(msgStore, dlqStore),
//	    msgrelay.WithDelivery(pool),
//	    msgrelay.WithLogger(logger),
//	    msgrelay.WithCapacity(10000), // optional
//	)
type Option func(*MessageQueue) error

// WithStores sets the required persistence dependencies for the queue.
// Both stores are required and must not be nil.
//
// Parameters:
//   - store: Active queue state persistence
//   - dlqStore: Dead-letter persistence
func WithStores(store MessageStore, dlqStore DeadLetterStore) Option {
	return func(q *MessageQueue) error {
		if store == nil {
			return fmt.Errorf("store cannot be nil")
		}
		if dlqStore == nil {
			return fmt.Errorf("dlqStore cannot be nil")
		}
		q.store = store
		q.dlqStore = dlqStore
		return nil
	}
}

// WithDelivery sets the sender selector the worker asks for the best
// connection on every attempt. Typically the connection pool.
//
// This is a required option for NewMessageQueue.
func WithDelivery(selector SenderSelector) Option {
	return func(q *MessageQueue) error {
		if selector == nil {
			return fmt.Errorf("selector cannot be nil")
		}
		q.selector = selector
		return nil
	}
}

// WithLogger sets the logger instance for the queue.
//
// Use NoopLogger for silent operation or implement Logger to integrate
// with your logging system (logrus, zap, etc.).
func WithLogger(logger Logger) Option {
	return func(q *MessageQueue) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		q.logger = logger
		return nil
	}
}

// WithRetryStrategy sets a custom delivery retry strategy.
// This is an optional configuration - if not provided, retry.DefaultStrategy()
// will be used (1s base delay doubling up to 30s, 5 retries).
func WithRetryStrategy(strategy retry.Strategy) Option {
	return func(q *MessageQueue) error {
		q.strategy = strategy
		return nil
	}
}

// WithCapacity limits the total number of queued messages across all
// priority classes. Enqueue returns ErrQueueFull at the limit.
// This is an optional configuration - default is unlimited.
func WithCapacity(capacity int) Option {
	return func(q *MessageQueue) error {
		if capacity < 0 {
			return fmt.Errorf("capacity must be >= 0, got %d", capacity)
		}
		q.capacity = capacity
		return nil
	}
}

// WithSendTimeout bounds each in-flight delivery attempt.
// This is an optional configuration - default is 10 seconds.
func WithSendTimeout(timeout time.Duration) Option {
	return func(q *MessageQueue) error {
		if timeout <= 0 {
			return fmt.Errorf("send timeout must be > 0")
		}
		q.sendTimeout = timeout
		return nil
	}
}

// WithIdleBackoff sets the pause applied when the queue is idle or no
// connected endpoint is available.
// This is an optional configuration - default is 500 milliseconds.
func WithIdleBackoff(backoff time.Duration) Option {
	return func(q *MessageQueue) error {
		if backoff <= 0 {
			return fmt.Errorf("idle backoff must be > 0")
		}
		q.idleBackoff = backoff
		return nil
	}
}

// WithNotifications sets an optional notification sink for the queue.
// This is an optional configuration - if not provided, NoOpNotificationService
// will be used (no notifications).
//
// The sink receives callbacks for delivery failures (every failed attempt)
// and dead-letter moves (when a message exhausts its retries).
func WithNotifications(service NotificationService) Option {
	return func(q *MessageQueue) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		q.notifier = service
		return nil
	}
}
