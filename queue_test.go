package msgrelay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/msgrelay/adapters/memory"
	"github.com/coregx/msgrelay/model"
	"github.com/coregx/msgrelay/retry"
)

// fakeSender records delivered envelopes and can fail a scripted number of
// leading attempts, optionally with a specific error.
type fakeSender struct {
	mu           sync.Mutex
	failures     int   // fail this many attempts before succeeding
	failErr      error // error for failed attempts (default: generic refusal)
	attempts     int
	attemptTimes []time.Time
	delivered    []model.Envelope
}

func (s *fakeSender) ID() string { return "fake-sender" }

func (s *fakeSender) Send(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	s.attemptTimes = append(s.attemptTimes, time.Now())
	if s.attempts <= s.failures {
		if s.failErr != nil {
			return s.failErr
		}
		return errors.New("delivery refused")
	}
	env, err := model.DecodeEnvelope(data)
	if err != nil {
		return err
	}
	s.delivered = append(s.delivered, env)
	return nil
}

func (s *fakeSender) attemptSchedule() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Time, len(s.attemptTimes))
	copy(out, s.attemptTimes)
	return out
}

func (s *fakeSender) deliveredIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.delivered))
	for i, env := range s.delivered {
		out[i] = env.ID
	}
	return out
}

// fakeSelector hands out a single sender, or ErrNoConnection when offline.
type fakeSelector struct {
	mu      sync.Mutex
	sender  *fakeSender
	offline bool
}

func (f *fakeSelector) BestSender() (Sender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline || f.sender == nil {
		return nil, ErrNoConnection
	}
	return f.sender, nil
}

func (f *fakeSelector) setOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

type queueFixture struct {
	queue    *MessageQueue
	sender   *fakeSender
	selector *fakeSelector
	store    *memory.MessageStore
	dlqStore *memory.DeadLetterStore
	notifier *recordingNotifier
}

func newQueueFixture(t *testing.T, opts ...Option) *queueFixture {
	t.Helper()
	f := &queueFixture{
		sender:   &fakeSender{},
		store:    memory.NewMessageStore(),
		dlqStore: memory.NewDeadLetterStore(),
		notifier: newRecordingNotifier(),
	}
	f.selector = &fakeSelector{sender: f.sender}

	base := []Option{
		WithStores(f.store, f.dlqStore),
		WithDelivery(f.selector),
		WithLogger(&NoopLogger{}),
		WithNotifications(f.notifier),
		WithIdleBackoff(5 * time.Millisecond),
	}
	q, err := NewMessageQueue(append(base, opts...)...)
	require.NoError(t, err)
	f.queue = q
	return f
}

// runWorker starts the worker loop and returns its stop function.
func (f *queueFixture) runWorker() (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.queue.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func fastStrategy(maxRetries int) retry.Strategy {
	return retry.Strategy{
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
		MaxRetries: maxRetries,
	}
}

func TestNewMessageQueue_Validation(t *testing.T) {
	store := memory.NewMessageStore()
	dlqStore := memory.NewDeadLetterStore()
	selector := &fakeSelector{sender: &fakeSender{}}

	tests := []struct {
		name string
		opts []Option
	}{
		{
			name: "Missing stores",
			opts: []Option{WithDelivery(selector), WithLogger(&NoopLogger{})},
		},
		{
			name: "Missing selector",
			opts: []Option{WithStores(store, dlqStore), WithLogger(&NoopLogger{})},
		},
		{
			name: "Missing logger",
			opts: []Option{WithStores(store, dlqStore), WithDelivery(selector)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMessageQueue(tt.opts...)

			assert.Error(t, err)
		})
	}
}

func TestMessageQueue_Enqueue_Validation(t *testing.T) {
	f := newQueueFixture(t)

	// Invalid message
	err := f.queue.Enqueue(context.Background(), model.Message{}, model.PriorityNormal)
	require.Error(t, err)
	var relayErr *Error
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, ErrCodeInvalidMessage, relayErr.Code)

	// Unknown priority
	msg := model.NewMessage("t", []byte("x"))
	err = f.queue.Enqueue(context.Background(), msg, model.Priority("urgent"))
	require.Error(t, err)
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, ErrCodeInvalidMessage, relayErr.Code)

	assert.Equal(t, 0, f.queue.GetStatistics().TotalQueued())
}

func TestMessageQueue_Enqueue_Persists(t *testing.T) {
	f := newQueueFixture(t)

	msg := model.NewMessage("order.created", []byte("x"))
	require.NoError(t, f.queue.Enqueue(context.Background(), msg, model.PriorityHigh))

	stats := f.queue.GetStatistics()
	assert.Equal(t, 1, stats.HighPriorityCount)
	assert.Equal(t, 1, f.store.Len())

	records, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, msg.ID, records[0].ID)
	assert.Equal(t, model.PriorityHigh, records[0].Priority)
}

func TestMessageQueue_Enqueue_CapacityLimit(t *testing.T) {
	f := newQueueFixture(t, WithCapacity(2))

	require.NoError(t, f.queue.Enqueue(context.Background(), model.NewMessage("t", []byte("1")), model.PriorityNormal))
	require.NoError(t, f.queue.Enqueue(context.Background(), model.NewMessage("t", []byte("2")), model.PriorityLow))

	err := f.queue.Enqueue(context.Background(), model.NewMessage("t", []byte("3")), model.PriorityHigh)

	assert.True(t, IsQueueFull(err))
	assert.Equal(t, 2, f.queue.GetStatistics().TotalQueued())
}

func TestMessageQueue_PriorityOrdering(t *testing.T) {
	f := newQueueFixture(t)

	// Enqueued normal, low, high - must deliver high, normal, low
	m1 := model.NewMessage("t", []byte("normal"))
	m2 := model.NewMessage("t", []byte("low"))
	m3 := model.NewMessage("t", []byte("high"))
	require.NoError(t, f.queue.Enqueue(context.Background(), m1, model.PriorityNormal))
	require.NoError(t, f.queue.Enqueue(context.Background(), m2, model.PriorityLow))
	require.NoError(t, f.queue.Enqueue(context.Background(), m3, model.PriorityHigh))

	stop := f.runWorker()
	defer stop()

	assert.Eventually(t, func() bool {
		return len(f.sender.deliveredIDs()) == 3
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{m3.ID, m1.ID, m2.ID}, f.sender.deliveredIDs())
	assert.Equal(t, 0, f.queue.GetStatistics().TotalQueued())
	assert.Equal(t, 0, f.store.Len())
}

func TestMessageQueue_FIFOWithinClass(t *testing.T) {
	f := newQueueFixture(t)

	var ids []string
	for i := 0; i < 5; i++ {
		msg := model.NewMessage("t", []byte(fmt.Sprintf("m%d", i)))
		ids = append(ids, msg.ID)
		require.NoError(t, f.queue.Enqueue(context.Background(), msg, model.PriorityNormal))
	}

	stop := f.runWorker()
	defer stop()

	assert.Eventually(t, func() bool {
		return len(f.sender.deliveredIDs()) == 5
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, ids, f.sender.deliveredIDs())
}

func TestMessageQueue_RetriesWithBackoffThenDelivers(t *testing.T) {
	f := newQueueFixture(t, WithRetryStrategy(fastStrategy(5)))
	f.sender.failures = 2

	msg := model.NewMessage("t", []byte("x"))
	require.NoError(t, f.queue.Enqueue(context.Background(), msg, model.PriorityNormal))

	stop := f.runWorker()
	defer stop()

	assert.Eventually(t, func() bool {
		return len(f.sender.deliveredIDs()) == 1
	}, time.Second, 5*time.Millisecond)

	f.notifier.mu.Lock()
	failures := f.notifier.deliveryFailures
	f.notifier.mu.Unlock()
	assert.Equal(t, 2, failures)

	// Delivered after retries, never dead-lettered
	stats := f.queue.GetStatistics()
	assert.Equal(t, 0, stats.TotalQueued())
	assert.Equal(t, 0, stats.DeadLetterCount)
	assert.Equal(t, 0, f.store.Len())
}

func TestMessageQueue_BackoffDelaysBetweenAttempts(t *testing.T) {
	strategy := retry.Strategy{
		BaseDelay:  40 * time.Millisecond,
		MaxDelay:   200 * time.Millisecond,
		Multiplier: 2.0,
		MaxRetries: 5,
	}
	f := newQueueFixture(t, WithRetryStrategy(strategy))
	f.sender.failures = 2

	msg := model.NewMessage("t", []byte("x"))
	require.NoError(t, f.queue.Enqueue(context.Background(), msg, model.PriorityNormal))

	stop := f.runWorker()
	defer stop()

	require.Eventually(t, func() bool {
		return len(f.sender.deliveredIDs()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// The worker must actually wait the scheduled backoff between attempts:
	// base delay after the first failure, doubled after the second.
	times := f.sender.attemptSchedule()
	require.Len(t, times, 3)
	assert.GreaterOrEqual(t, times[1].Sub(times[0]), 40*time.Millisecond)
	assert.GreaterOrEqual(t, times[2].Sub(times[1]), 80*time.Millisecond)
}

func TestMessageQueue_SendNoConnection_NoRetryPenalty(t *testing.T) {
	// A slow schedule makes the failure mode visible: a message that burned
	// a retry would not deliver within the test window.
	f := newQueueFixture(t, WithRetryStrategy(retry.Strategy{
		BaseDelay:  10 * time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 1.0,
		MaxRetries: 3,
	}))
	f.sender.failures = 1
	f.sender.failErr = ErrNoConnection

	msg := model.NewMessage("t", []byte("x"))
	require.NoError(t, f.queue.Enqueue(context.Background(), msg, model.PriorityNormal))

	stop := f.runWorker()
	defer stop()

	// The connection dropping between selection and send consumes no retry
	// budget; the message is requeued and delivers on the next pass.
	assert.Eventually(t, func() bool {
		return len(f.sender.deliveredIDs()) == 1
	}, time.Second, 5*time.Millisecond)

	f.notifier.mu.Lock()
	failures := f.notifier.deliveryFailures
	f.notifier.mu.Unlock()
	assert.Equal(t, 0, failures)
	assert.Equal(t, 0, f.queue.GetStatistics().DeadLetterCount)
}

func TestNewMessageQueue_MaxRetriesFollowsStrategy(t *testing.T) {
	f := newQueueFixture(t, WithRetryStrategy(fastStrategy(7)))

	assert.Equal(t, 7, f.queue.maxRetries)
}

func TestMessageQueue_DeadLettersAfterExhaustion(t *testing.T) {
	f := newQueueFixture(t, WithRetryStrategy(fastStrategy(2)))
	f.sender.failures = 1000 // never succeeds

	msg := model.NewMessage("t", []byte("x"))
	require.NoError(t, f.queue.Enqueue(context.Background(), msg, model.PriorityHigh))

	stop := f.runWorker()
	defer stop()

	assert.Eventually(t, func() bool {
		return f.queue.GetStatistics().DeadLetterCount == 1
	}, time.Second, 5*time.Millisecond)

	// Moved, not copied: gone from the active queue and store
	stats := f.queue.GetStatistics()
	assert.Equal(t, 0, stats.TotalQueued())
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, 1, f.dlqStore.Len())

	letters := f.queue.DeadLetters()
	require.Len(t, letters, 1)
	assert.Equal(t, msg.ID, letters[0].ID)
	assert.Equal(t, model.PriorityHigh, letters[0].Priority)
	assert.Equal(t, 2, letters[0].RetryCount)
	assert.Contains(t, letters[0].FailureReason, "max retry attempts exceeded")

	f.notifier.mu.Lock()
	deadLettered := len(f.notifier.deadLettered)
	f.notifier.mu.Unlock()
	assert.Equal(t, 1, deadLettered)

	dlStats := f.queue.GetDeadLetterStats()
	assert.Equal(t, 1, dlStats.TotalItems)
	assert.Contains(t, dlStats.TopReason, "max retry attempts exceeded")
}

func TestMessageQueue_RetryDeadLettered(t *testing.T) {
	f := newQueueFixture(t, WithRetryStrategy(fastStrategy(2)))
	f.sender.failures = 2 // exactly exhausts the budget, then succeeds

	msg := model.NewMessage("t", []byte("x"))
	require.NoError(t, f.queue.Enqueue(context.Background(), msg, model.PriorityLow))

	stop := f.runWorker()
	defer stop()

	require.Eventually(t, func() bool {
		return f.queue.GetStatistics().DeadLetterCount == 1
	}, time.Second, 5*time.Millisecond)

	count, err := f.queue.RetryDeadLettered(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Replay re-enters the original class and now delivers
	assert.Eventually(t, func() bool {
		return len(f.sender.deliveredIDs()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, msg.ID, f.sender.deliveredIDs()[0])
	assert.Equal(t, 0, f.queue.GetStatistics().DeadLetterCount)
	assert.Equal(t, 0, f.dlqStore.Len())
}

func TestMessageQueue_RetryDeadLettered_UnknownID(t *testing.T) {
	f := newQueueFixture(t)

	_, err := f.queue.RetryDeadLettered(context.Background(), "no-such-id")

	assert.True(t, IsNoData(err))
}

func TestMessageQueue_NoConnection_RetainsMessages(t *testing.T) {
	f := newQueueFixture(t)
	f.selector.setOffline(true)

	msg := model.NewMessage("t", []byte("x"))
	require.NoError(t, f.queue.Enqueue(context.Background(), msg, model.PriorityNormal))

	stop := f.runWorker()

	// Give the worker time to spin against the missing connection
	time.Sleep(50 * time.Millisecond)
	stop()

	// Absence of a connection consumes no retry budget
	stats := f.queue.GetStatistics()
	assert.Equal(t, 1, stats.NormalPriorityCount)
	assert.Equal(t, 0, stats.DeadLetterCount)
	f.notifier.mu.Lock()
	failures := f.notifier.deliveryFailures
	f.notifier.mu.Unlock()
	assert.Equal(t, 0, failures)

	// Back online, the retained message delivers
	f.selector.setOffline(false)
	stop = f.runWorker()
	defer stop()

	assert.Eventually(t, func() bool {
		return len(f.sender.deliveredIDs()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestMessageQueue_RestoreRoundTrip(t *testing.T) {
	f := newQueueFixture(t)
	f.selector.setOffline(true)

	var ids []string
	for i := 0; i < 3; i++ {
		msg := model.NewMessage("t", []byte(fmt.Sprintf("m%d", i)))
		ids = append(ids, msg.ID)
		require.NoError(t, f.queue.Enqueue(context.Background(), msg, model.PriorityNormal))
	}
	require.NoError(t, f.queue.Enqueue(context.Background(), model.NewMessage("t", []byte("urgent")), model.PriorityHigh))

	// A second queue over the same stores simulates a process restart
	restored := newQueueFixtureWithStores(t, f.store, f.dlqStore)
	require.NoError(t, restored.queue.Restore(context.Background()))

	stats := restored.queue.GetStatistics()
	assert.Equal(t, 1, stats.HighPriorityCount)
	assert.Equal(t, 3, stats.NormalPriorityCount)

	stop := restored.runWorker()
	defer stop()

	assert.Eventually(t, func() bool {
		return len(restored.sender.deliveredIDs()) == 4
	}, time.Second, 5*time.Millisecond)

	// High first, then the normal class in original FIFO order
	delivered := restored.sender.deliveredIDs()
	assert.Equal(t, ids, delivered[1:])
	assert.Equal(t, 0, restored.store.Len())
}

func TestMessageQueue_Restore_DeadLetters(t *testing.T) {
	f := newQueueFixture(t, WithRetryStrategy(fastStrategy(1)))
	f.sender.failures = 1000

	msg := model.NewMessage("t", []byte("x"))
	require.NoError(t, f.queue.Enqueue(context.Background(), msg, model.PriorityNormal))

	stop := f.runWorker()
	require.Eventually(t, func() bool {
		return f.queue.GetStatistics().DeadLetterCount == 1
	}, time.Second, 5*time.Millisecond)
	stop()

	restored := newQueueFixtureWithStores(t, f.store, f.dlqStore)
	require.NoError(t, restored.queue.Restore(context.Background()))

	assert.Equal(t, 1, restored.queue.GetStatistics().DeadLetterCount)
	letters := restored.queue.DeadLetters()
	require.Len(t, letters, 1)
	assert.Equal(t, msg.ID, letters[0].ID)
}

func TestMessageQueue_ConcurrentEnqueue(t *testing.T) {
	f := newQueueFixture(t)
	f.selector.setOffline(true)

	const producers = 10
	const perProducer = 20

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				msg := model.NewMessage("t", []byte("x"))
				assert.NoError(t, f.queue.Enqueue(context.Background(), msg, model.PriorityNormal))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, f.queue.GetStatistics().TotalQueued())
	assert.Equal(t, producers*perProducer, f.store.Len())
}

func TestMessageQueue_GetStatistics_Timestamps(t *testing.T) {
	f := newQueueFixture(t)

	empty := f.queue.GetStatistics()
	assert.True(t, empty.OldestEnqueuedAt.IsZero())
	assert.True(t, empty.NewestEnqueuedAt.IsZero())

	require.NoError(t, f.queue.Enqueue(context.Background(), model.NewMessage("t", []byte("x")), model.PriorityNormal))

	stats := f.queue.GetStatistics()
	assert.WithinDuration(t, time.Now(), stats.OldestEnqueuedAt, time.Second)
	assert.WithinDuration(t, time.Now(), stats.NewestEnqueuedAt, time.Second)
	assert.False(t, stats.NewestEnqueuedAt.Before(stats.OldestEnqueuedAt))
}

// newQueueFixtureWithStores builds a fixture over pre-existing stores,
// used by the restart tests.
func newQueueFixtureWithStores(t *testing.T, store *memory.MessageStore, dlqStore *memory.DeadLetterStore) *queueFixture {
	t.Helper()
	f := &queueFixture{
		sender:   &fakeSender{},
		store:    store,
		dlqStore: dlqStore,
		notifier: newRecordingNotifier(),
	}
	f.selector = &fakeSelector{sender: f.sender}

	q, err := NewMessageQueue(
		WithStores(store, dlqStore),
		WithDelivery(f.selector),
		WithLogger(&NoopLogger{}),
		WithNotifications(f.notifier),
		WithIdleBackoff(5*time.Millisecond),
	)
	require.NoError(t, err)
	f.queue = q
	return f
}
