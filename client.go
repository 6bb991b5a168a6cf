package msgrelay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coregx/msgrelay/model"
)

// Handler processes one inbound message of a registered type.
// Invoked from transport goroutines; implementations must be safe for
// concurrent use.
type Handler func(ctx context.Context, msg model.Message)

// Client is the public surface of the reliable-delivery layer. It ties a
// connection pool and a message queue together: Connect brings every
// registered endpoint up and starts the background workers, Enqueue submits
// outbound traffic, and RegisterHandler receives inbound messages keyed by
// type.
//
// All collaborators (transport provider, stores, logger, notification sink)
// are injected at construction - there is no ambient shared state.
type Client struct {
	pool   *ConnectionPool
	queue  *MessageQueue
	logger Logger

	healthInterval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	hmu      sync.RWMutex
	handlers map[string]Handler
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// NewClient creates a client over the given pool and queue.
//
// Required options:
//   - WithClientPool: connection pool with registered endpoints
//   - WithClientQueue: message queue wired to the same pool
//   - WithClientLogger: logger instance
//
// Optional options:
//   - WithClientHealthCheckInterval: pool health-check period (default 10s)
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		healthInterval: 10 * time.Second,
		handlers:       make(map[string]Handler),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply client option", err)
		}
	}

	if c.pool == nil {
		return nil, NewError(ErrCodeConfiguration, "ConnectionPool is required (use WithClientPool)")
	}
	if c.queue == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageQueue is required (use WithClientQueue)")
	}
	if c.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithClientLogger)")
	}

	return c, nil
}

// WithClientPool sets the connection pool.
func WithClientPool(pool *ConnectionPool) ClientOption {
	return func(c *Client) error {
		if pool == nil {
			return fmt.Errorf("pool cannot be nil")
		}
		c.pool = pool
		return nil
	}
}

// WithClientQueue sets the message queue.
func WithClientQueue(queue *MessageQueue) ClientOption {
	return func(c *Client) error {
		if queue == nil {
			return fmt.Errorf("queue cannot be nil")
		}
		c.queue = queue
		return nil
	}
}

// WithClientLogger sets the logger instance for the client.
func WithClientLogger(logger Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithClientHealthCheckInterval sets the pool health-check period.
func WithClientHealthCheckInterval(interval time.Duration) ClientOption {
	return func(c *Client) error {
		if interval <= 0 {
			return fmt.Errorf("health check interval must be > 0")
		}
		c.healthInterval = interval
		return nil
	}
}

// Connect restores persisted queue state, connects every registered
// endpoint, and starts the delivery worker and health-check loops.
// Returns an error when queue state cannot be restored or when no endpoint
// could be connected; individual endpoint failures are logged and left to
// the reconnection machinery.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.queue.Restore(ctx); err != nil {
		return err
	}

	connected := 0
	for _, e := range c.pool.Endpoints() {
		e.SetInboundHandler(c.dispatch)
		if _, err := e.Connect(ctx); err != nil {
			c.logger.Warnf("Endpoint %s failed to connect: %v", e.ID(), err)
			continue
		}
		connected++
	}
	if connected == 0 && len(c.pool.Endpoints()) > 0 {
		return NewError(ErrCodeNoConnection, "no endpoint could be connected")
	}

	runCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.queue.Run(runCtx)
	}()
	go func() {
		defer c.wg.Done()
		c.pool.Run(runCtx, c.healthInterval)
	}()

	c.logger.Infof("Client connected (%d/%d endpoints up)", connected, len(c.pool.Endpoints()))
	return nil
}

// Disconnect stops the background loops and tears down every endpoint.
// The in-flight delivery attempt completes first, bounded by the queue's
// send timeout; unprocessed messages remain persisted.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.cancel = nil
	c.running = false
	c.mu.Unlock()

	cancel()
	c.wg.Wait()

	var firstErr error
	for _, e := range c.pool.Endpoints() {
		if err := e.Disconnect(ctx); err != nil {
			c.logger.Errorf("Endpoint %s disconnect failed: %v", e.ID(), err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	c.logger.Info("Client disconnected")
	return firstErr
}

// Enqueue submits an outbound message for reliable delivery in the given
// priority class. Safe for concurrent use.
func (c *Client) Enqueue(ctx context.Context, msg model.Message, priority model.Priority) error {
	return c.queue.Enqueue(ctx, msg, priority)
}

// RegisterHandler registers the handler invoked for inbound messages of
// the given type, replacing any previous registration.
func (c *Client) RegisterHandler(msgType string, handler Handler) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.handlers[msgType] = handler
}

// GetQueueStatistics reports per-priority counts, the dead-letter count,
// and oldest/newest enqueue timestamps.
func (c *Client) GetQueueStatistics() model.QueueStats {
	return c.queue.GetStatistics()
}

// GetHealthMetrics returns aggregate connection health across the pool.
func (c *Client) GetHealthMetrics() model.HealthMetrics {
	return c.pool.GetHealthMetrics()
}

// GetDeadLetterStats aggregates dead-letter figures for monitoring.
func (c *Client) GetDeadLetterStats() model.DeadLetterStats {
	return c.queue.GetDeadLetterStats()
}

// RetryDeadLettered replays one or all dead-lettered messages back into
// their original priority classes with retry counts reset.
func (c *Client) RetryDeadLettered(ctx context.Context, ids ...string) (int, error) {
	return c.queue.RetryDeadLettered(ctx, ids...)
}

// DeadLetters returns a snapshot of all dead-lettered messages, oldest
// failure first.
func (c *Client) DeadLetters() []model.DeadLetter {
	return c.queue.DeadLetters()
}

// dispatch routes one decoded inbound envelope to the registered handler
// for its type. Unhandled types are logged at debug level and dropped.
func (c *Client) dispatch(endpointID string, env model.Envelope) {
	c.hmu.RLock()
	handler := c.handlers[env.Type]
	c.hmu.RUnlock()

	if handler == nil {
		c.logger.Debugf("No handler for inbound message type %q (endpoint=%s)", env.Type, endpointID)
		return
	}

	handler(context.Background(), env.ToMessage())
}
