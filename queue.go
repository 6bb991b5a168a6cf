package msgrelay

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coregx/msgrelay/model"
	"github.com/coregx/msgrelay/retry"
)

// MessageQueue is a durable, priority-ordered queue of outbound messages
// with retry, backoff, and dead-lettering.
//
// A single background worker drains the queue in strict priority order:
// high before normal before low, FIFO within a class. Urgent traffic
// therefore preempts background traffic, and sustained high-priority load
// can starve low-priority messages - a known trade-off, not a bug.
//
// Exactly one delivery attempt is in flight at any time; the worker does
// not advance until the current attempt resolves. This bounded concurrency
// preserves relative ordering across retries and priority classes at the
// cost of throughput.
//
// Every message is in exactly one of: an active priority queue, in-flight
// delivery, or the dead-letter store. Messages are never duplicated and
// never silently dropped.
//
// Key responsibilities:
//   - Persist enqueued messages and restore them after restart
//   - Deliver via the best pool connection, backing off when none exists
//   - Retry failed deliveries with exponential backoff
//   - Move exhausted messages to the dead-letter store
//   - Replay dead-lettered messages on request
type MessageQueue struct {
	store    MessageStore
	dlqStore DeadLetterStore
	selector SenderSelector
	strategy retry.Strategy
	logger   Logger
	notifier NotificationService

	capacity    int           // 0 = unlimited
	maxRetries  int           // Default retry budget for new messages
	sendTimeout time.Duration // Bound on one in-flight delivery
	idleBackoff time.Duration // Pause when idle or without a connection

	mu          sync.Mutex
	queues      map[model.Priority][]*model.QueuedMessage
	deadLetters map[string]model.DeadLetter
	seq         int64

	// wake nudges the worker after an enqueue or replay.
	wake chan struct{}
}

// NewMessageQueue creates a message queue with the provided options.
//
// Required options:
//   - WithStores: active and dead-letter persistence
//   - WithDelivery: sender selector (typically the connection pool)
//   - WithLogger: logger instance
//
// Optional options:
//   - WithRetryStrategy: backoff schedule (default retry.DefaultStrategy())
//   - WithCapacity: maximum queued messages across all classes (default unlimited)
//   - WithSendTimeout: per-attempt delivery bound (default 10s)
//   - WithNotifications: notification sink (default no-op)
func NewMessageQueue(opts ...Option) (*MessageQueue, error) {
	q := &MessageQueue{
		strategy:    retry.DefaultStrategy(),
		sendTimeout: 10 * time.Second,
		idleBackoff: 500 * time.Millisecond,
		notifier:    &NoOpNotificationService{},
		queues: map[model.Priority][]*model.QueuedMessage{
			model.PriorityHigh:   {},
			model.PriorityNormal: {},
			model.PriorityLow:    {},
		},
		deadLetters: make(map[string]model.DeadLetter),
		wake:        make(chan struct{}, 1),
	}

	for _, opt := range opts {
		if err := opt(q); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply option", err)
		}
	}

	if q.store == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageStore is required (use WithStores)")
	}
	if q.dlqStore == nil {
		return nil, NewError(ErrCodeConfiguration, "DeadLetterStore is required (use WithStores)")
	}
	if q.selector == nil {
		return nil, NewError(ErrCodeConfiguration, "SenderSelector is required (use WithDelivery)")
	}
	if q.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithLogger)")
	}
	if q.maxRetries == 0 {
		q.maxRetries = q.strategy.MaxRetries
	}

	return q, nil
}

// Restore reloads persisted queue state. In-memory queues are rebuilt with
// identical membership and relative order within each priority class, so a
// restart resumes without loss or duplication.
func (q *MessageQueue) Restore(ctx context.Context) error {
	records, err := q.store.Load(ctx)
	if err != nil {
		return NewErrorWithCause(ErrCodeStorage, "failed to load queue state", err)
	}

	letters, err := q.dlqStore.Load(ctx)
	if err != nil {
		return NewErrorWithCause(ErrCodeStorage, "failed to load dead-letter state", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for p := range q.queues {
		q.queues[p] = q.queues[p][:0]
	}
	for i := range records {
		rec := records[i]
		if !rec.Priority.Valid() {
			rec.Priority = model.PriorityNormal
		}
		q.queues[rec.Priority] = append(q.queues[rec.Priority], &rec)
		if rec.SequenceNumber >= q.seq {
			q.seq = rec.SequenceNumber + 1
		}
	}
	for _, p := range model.Priorities() {
		items := q.queues[p]
		sort.Slice(items, func(i, j int) bool {
			return items[i].SequenceNumber < items[j].SequenceNumber
		})
	}

	q.deadLetters = make(map[string]model.DeadLetter, len(letters))
	for _, d := range letters {
		q.deadLetters[d.ID] = d
	}

	q.logger.Infof("Restored queue state: %d active, %d dead-lettered", len(records), len(letters))
	return nil
}

// Enqueue persists the message and inserts it into the matching priority
// queue. Safe for concurrent use from many producers; a single mutex
// serializes access so FIFO order within a class is preserved.
//
// Returns ErrQueueFull when a capacity limit is configured and reached,
// and an INVALID_MESSAGE error when validation fails. A persistence
// failure is logged and degrades to best-effort in-memory delivery for
// that message.
func (q *MessageQueue) Enqueue(ctx context.Context, msg model.Message, priority model.Priority) error {
	if err := msg.Validate(); err != nil {
		return NewErrorWithCause(ErrCodeInvalidMessage, "message validation failed", err)
	}
	if !priority.Valid() {
		return NewError(ErrCodeInvalidMessage, fmt.Sprintf("unknown priority %q", priority))
	}

	q.mu.Lock()
	if q.capacity > 0 && q.totalQueuedLocked() >= q.capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}

	item := model.NewQueuedMessage(msg, priority, q.maxRetries)
	item.SequenceNumber = q.seq
	q.seq++

	if err := q.store.Save(ctx, item); err != nil {
		// At-most-once fallback: the message is still attempted in memory.
		q.logger.Errorf("Failed to persist message %s, degrading to in-memory delivery: %v", msg.ID, err)
	}

	q.queues[priority] = append(q.queues[priority], &item)
	q.mu.Unlock()

	q.signal()
	q.logger.Debugf("Enqueued message %s (priority=%s, seq=%d)", msg.ID, priority, item.SequenceNumber)
	return nil
}

// Run starts the queue worker loop. It blocks until the context is canceled
// and should typically be run in a goroutine.
//
// Stopping lets the in-flight delivery attempt complete (bounded by the
// send timeout); unprocessed messages remain persisted for the next start.
func (q *MessageQueue) Run(ctx context.Context) {
	q.logger.Info("Queue worker started")

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("Queue worker stopped")
			return
		default:
		}

		item, wait := q.popNextReady()
		if item == nil {
			q.sleep(ctx, wait)
			continue
		}

		if backoff := q.deliver(ctx, item); backoff {
			q.sleep(ctx, q.idleBackoff)
		}
	}
}

// deliver attempts one delivery. Returns true when the worker should back
// off before the next selection (no connected endpoint).
func (q *MessageQueue) deliver(ctx context.Context, item *model.QueuedMessage) bool {
	sender, err := q.selector.BestSender()
	if err != nil {
		// No connection: the message returns to the front of its queue.
		q.requeue(item)
		q.logger.Debugf("No connected endpoint, requeued message %s", item.ID)
		return true
	}

	env := model.NewEnvelope(item.Message)
	data, err := env.Encode()
	if err != nil {
		q.handleFailure(ctx, item, NewErrorWithCause(ErrCodeSerialization, "failed to encode envelope", err))
		return false
	}

	// Detached from the worker context so shutdown lets the attempt
	// resolve, bounded by the send timeout.
	sendCtx, cancel := context.WithTimeout(context.Background(), q.sendTimeout)
	err = sender.Send(sendCtx, data)
	cancel()

	if err != nil {
		if IsNoConnection(err) {
			// The endpoint dropped between selection and send; no retry
			// budget is consumed, same as when no sender was available.
			q.requeue(item)
			q.logger.Debugf("Connection lost before send, requeued message %s", item.ID)
			return true
		}
		q.handleFailure(ctx, item, err)
		return false
	}

	if err := q.store.Remove(ctx, item.ID); err != nil {
		q.logger.Errorf("Failed to un-persist delivered message %s: %v", item.ID, err)
	}
	q.logger.Infof("Delivered message %s via endpoint %s (priority=%s, attempts=%d)",
		item.ID, sender.ID(), item.Priority, item.RetryCount+1)
	return false
}

// handleFailure records a failed attempt: reschedule with backoff or, once
// the retry budget is exhausted, move the message to the dead-letter store.
// Transient failures are not surfaced per attempt; only exhaustion is.
func (q *MessageQueue) handleFailure(ctx context.Context, item *model.QueuedMessage, deliveryErr error) {
	retryAfter := q.strategy.Delay(item.RetryCount + 1)
	item.MarkFailed(deliveryErr, retryAfter)

	if err := q.notifier.NotifyDeliveryFailure(ctx, item, deliveryErr); err != nil {
		q.logger.Warnf("Failed to send delivery failure notification: %v", err)
	}

	if item.ShouldDeadLetter() {
		q.moveToDeadLetter(ctx, item)
		return
	}

	if err := q.store.Save(ctx, *item); err != nil {
		q.logger.Errorf("Failed to persist retry state for message %s: %v", item.ID, err)
	}
	q.requeue(item)

	q.logger.Warnf("Delivery failed for message %s (priority=%s, retry=%d/%d, next in %v): %v",
		item.ID, item.Priority, item.RetryCount, item.MaxRetries, retryAfter, deliveryErr)
}

// moveToDeadLetter moves (not copies) an exhausted message to the
// dead-letter store.
func (q *MessageQueue) moveToDeadLetter(ctx context.Context, item *model.QueuedMessage) {
	reason := fmt.Sprintf("max retry attempts exceeded (%d >= %d)", item.RetryCount, item.MaxRetries)
	letter := model.NewDeadLetter(*item, reason)

	if err := q.dlqStore.Save(ctx, letter); err != nil {
		q.logger.Errorf("Failed to persist dead-letter entry %s: %v", letter.ID, err)
	}
	if err := q.store.Remove(ctx, item.ID); err != nil {
		q.logger.Errorf("Failed to remove dead-lettered message %s from active store: %v", item.ID, err)
	}

	q.mu.Lock()
	q.deadLetters[letter.ID] = letter
	q.mu.Unlock()

	q.logger.Warnf("Moved message %s to dead-letter store (priority=%s, attempts=%d)",
		item.ID, item.Priority, item.RetryCount)

	if err := q.notifier.NotifyDeadLettered(ctx, letter); err != nil {
		q.logger.Warnf("Failed to send dead-letter notification: %v", err)
	}
}

// RetryDeadLettered re-enqueues dead-lettered messages with retry count
// reset to zero, back into their original priority class. With no ids it
// replays every dead-lettered message. Returns the number replayed.
func (q *MessageQueue) RetryDeadLettered(ctx context.Context, ids ...string) (int, error) {
	q.mu.Lock()
	targets := make([]model.DeadLetter, 0, len(ids))
	if len(ids) == 0 {
		for _, d := range q.deadLetters {
			targets = append(targets, d)
		}
		sort.Slice(targets, func(i, j int) bool {
			return targets[i].FailedAt.Before(targets[j].FailedAt)
		})
	} else {
		for _, id := range ids {
			d, ok := q.deadLetters[id]
			if !ok {
				q.mu.Unlock()
				return 0, ErrNoData
			}
			targets = append(targets, d)
		}
	}
	q.mu.Unlock()

	replayed := 0
	for _, d := range targets {
		item := d.Replay()

		q.mu.Lock()
		item.SequenceNumber = q.seq
		q.seq++
		if err := q.store.Save(ctx, item); err != nil {
			q.logger.Errorf("Failed to persist replayed message %s: %v", item.ID, err)
		}
		if err := q.dlqStore.Remove(ctx, d.ID); err != nil {
			q.logger.Errorf("Failed to remove replayed message %s from dead-letter store: %v", d.ID, err)
		}
		delete(q.deadLetters, d.ID)
		q.queues[item.Priority] = append(q.queues[item.Priority], &item)
		q.mu.Unlock()

		q.logger.Infof("Replayed dead-lettered message %s into %s queue", item.ID, item.Priority)
		replayed++
	}

	if replayed > 0 {
		q.signal()
	}
	return replayed, nil
}

// GetStatistics reports per-priority counts, the dead-letter count, and the
// oldest/newest enqueue timestamps across the active queues.
func (q *MessageQueue) GetStatistics() model.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := model.QueueStats{
		HighPriorityCount:   len(q.queues[model.PriorityHigh]),
		NormalPriorityCount: len(q.queues[model.PriorityNormal]),
		LowPriorityCount:    len(q.queues[model.PriorityLow]),
		DeadLetterCount:     len(q.deadLetters),
		LastUpdated:         time.Now(),
	}

	for _, p := range model.Priorities() {
		for _, item := range q.queues[p] {
			if stats.OldestEnqueuedAt.IsZero() || item.EnqueuedAt.Before(stats.OldestEnqueuedAt) {
				stats.OldestEnqueuedAt = item.EnqueuedAt
			}
			if item.EnqueuedAt.After(stats.NewestEnqueuedAt) {
				stats.NewestEnqueuedAt = item.EnqueuedAt
			}
		}
	}

	return stats
}

// DeadLetters returns a snapshot of the dead-letter store ordered by
// failure time (oldest first).
func (q *MessageQueue) DeadLetters() []model.DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]model.DeadLetter, 0, len(q.deadLetters))
	for _, d := range q.deadLetters {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FailedAt.Before(out[j].FailedAt)
	})
	return out
}

// GetDeadLetterStats aggregates dead-letter figures for monitoring.
func (q *MessageQueue) GetDeadLetterStats() model.DeadLetterStats {
	letters := q.DeadLetters()

	stats := model.DeadLetterStats{
		TotalItems:  len(letters),
		LastUpdated: time.Now(),
	}
	if len(letters) == 0 {
		return stats
	}

	stats.OldestItemAge = int64(letters[0].GetAge().Seconds())
	stats.NewestItemAge = int64(letters[len(letters)-1].GetAge().Seconds())

	reasons := make(map[string]int)
	for _, d := range letters {
		reasons[d.FailureReason]++
	}
	top := 0
	for reason, count := range reasons {
		if count > top {
			top = count
			stats.TopReason = reason
		}
	}
	return stats
}

// popNextReady removes and returns the next deliverable message in strict
// priority order, FIFO within a class. When nothing is ready it returns nil
// and the duration to wait before the earliest scheduled retry.
func (q *MessageQueue) popNextReady() (*model.QueuedMessage, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var minWait time.Duration
	haveWait := false

	for _, p := range model.Priorities() {
		items := q.queues[p]
		for i, item := range items {
			if item.ReadyForDelivery() {
				q.queues[p] = append(items[:i], items[i+1:]...)
				return item, 0
			}
			if wait := item.TimeUntilAttempt(); !haveWait || wait < minWait {
				minWait = wait
				haveWait = true
			}
		}
	}

	if !haveWait {
		// Empty queue: park until an enqueue signals.
		minWait = time.Hour
	}
	return nil, minWait
}

// requeue reinserts an in-flight message into its priority class, keeping
// the class ordered by sequence number so FIFO order survives retries.
func (q *MessageQueue) requeue(item *model.QueuedMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.queues[item.Priority]
	pos := sort.Search(len(items), func(i int) bool {
		return items[i].SequenceNumber > item.SequenceNumber
	})
	items = append(items, nil)
	copy(items[pos+1:], items[pos:])
	items[pos] = item
	q.queues[item.Priority] = items
}

// totalQueuedLocked counts active messages. Caller holds q.mu.
func (q *MessageQueue) totalQueuedLocked() int {
	total := 0
	for _, items := range q.queues {
		total += len(items)
	}
	return total
}

// signal nudges the worker without blocking.
func (q *MessageQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// sleep pauses the worker until the wait elapses, an enqueue signals, or
// the context is canceled.
func (q *MessageQueue) sleep(ctx context.Context, wait time.Duration) {
	if wait <= 0 {
		wait = q.idleBackoff
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-q.wake:
	case <-timer.C:
	}
}
