package msgrelay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coregx/msgrelay/model"
)

// Sender delivers one encoded frame over an established connection.
// Implemented by *Endpoint; the queue depends on this narrow contract.
type Sender interface {
	ID() string
	Send(ctx context.Context, data []byte) error
}

// SenderSelector yields the best available sender for a delivery attempt.
// Implemented by *ConnectionPool.
type SenderSelector interface {
	BestSender() (Sender, error)
}

// ConnectionPool tracks a set of endpoints, health-checks them periodically,
// selects the lowest-latency connected endpoint for deliveries, and fails
// over to an alternative when an endpoint drops.
//
// Pool composition is owned by the caller: the pool never creates or
// destroys endpoints on its own. Failover is a linear scan by latency,
// which is cheap for the expected small pool sizes.
//
// Thread safety: safe for concurrent use. Readers asking for the best
// connection and the health-check writer synchronize on a reader/writer
// lock so no half-updated endpoint is ever observed.
type ConnectionPool struct {
	logger   Logger
	notifier NotificationService

	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	metrics   model.HealthMetrics
}

// PoolOption configures a ConnectionPool.
type PoolOption func(*ConnectionPool) error

// NewConnectionPool creates an empty pool.
//
// Required options:
//   - WithPoolLogger: logger instance
//
// Optional options:
//   - WithPoolNotifications: notification sink (default no-op)
func NewConnectionPool(opts ...PoolOption) (*ConnectionPool, error) {
	p := &ConnectionPool{
		endpoints: make(map[string]*Endpoint),
		notifier:  &NoOpNotificationService{},
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply pool option", err)
		}
	}

	if p.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithPoolLogger)")
	}

	return p, nil
}

// WithPoolLogger sets the logger instance for the pool.
func WithPoolLogger(logger Logger) PoolOption {
	return func(p *ConnectionPool) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// WithPoolNotifications sets the notification sink for pool events.
func WithPoolNotifications(service NotificationService) PoolOption {
	return func(p *ConnectionPool) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		p.notifier = service
		return nil
	}
}

// AddEndpoint registers an endpoint with the pool and hooks its status
// transitions into failover handling.
func (p *ConnectionPool) AddEndpoint(e *Endpoint) {
	p.mu.Lock()
	p.endpoints[e.ID()] = e
	p.mu.Unlock()

	e.setTransitionHook(p.handleTransition)
	p.logger.Infof("Pool registered endpoint %s (%s)", e.ID(), e.Address())
}

// RemoveEndpoint removes an endpoint from the tracked set. The endpoint is
// not disconnected; its lifecycle remains owned by the caller.
func (p *ConnectionPool) RemoveEndpoint(id string) {
	p.mu.Lock()
	e, ok := p.endpoints[id]
	delete(p.endpoints, id)
	p.mu.Unlock()

	if ok {
		e.setTransitionHook(nil)
		p.logger.Infof("Pool removed endpoint %s", id)
	}
}

// Endpoints returns a snapshot of the tracked endpoints.
func (p *ConnectionPool) Endpoints() []*Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Endpoint, 0, len(p.endpoints))
	for _, e := range p.endpoints {
		out = append(out, e)
	}
	return out
}

// GetBestConnection returns the connected endpoint with the lowest latency,
// or ErrNoConnection when no endpoint is connected. Disconnected, unhealthy,
// and failed endpoints are never returned.
func (p *ConnectionPool) GetBestConnection() (*Endpoint, error) {
	return p.bestExcluding("")
}

// GetAlternative returns the next-best connected endpoint excluding the
// given one, or ErrNoConnection.
func (p *ConnectionPool) GetAlternative(excludeID string) (*Endpoint, error) {
	return p.bestExcluding(excludeID)
}

// BestSender implements SenderSelector for the queue worker.
func (p *ConnectionPool) BestSender() (Sender, error) {
	e, err := p.GetBestConnection()
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (p *ConnectionPool) bestExcluding(excludeID string) (*Endpoint, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var best *Endpoint
	var bestLatency time.Duration
	for id, e := range p.endpoints {
		if id == excludeID || !e.IsConnected() {
			continue
		}
		latency := e.Metrics().Latency
		if best == nil || latency < bestLatency {
			best = e
			bestLatency = latency
		}
	}

	if best == nil {
		return nil, ErrNoConnection
	}
	return best, nil
}

// PerformHealthCheck iterates all endpoints, reclassifying status from
// heartbeat data, and recomputes the aggregate health metrics.
func (p *ConnectionPool) PerformHealthCheck() model.HealthMetrics {
	for _, e := range p.Endpoints() {
		e.CheckHealth()
	}
	return p.updateMetrics()
}

// HandleFailure marks the endpoint failed, records the failure, and runs
// failover selection through the transition hook. It never creates new
// endpoints; when no alternative is connected the absence is surfaced as an
// error event.
func (p *ConnectionPool) HandleFailure(e *Endpoint, cause error) {
	e.failFromTransport(cause)
}

// HandleRecovery records that a previously failed endpoint reconnected.
func (p *ConnectionPool) HandleRecovery(e *Endpoint) {
	if err := p.notifier.NotifyEndpointRecovered(context.Background(), e.ID()); err != nil {
		p.logger.Warnf("Failed to send endpoint recovery notification: %v", err)
	}
	p.logger.Infof("Endpoint %s recovered", e.ID())
	p.updateMetrics()
}

// GetHealthMetrics returns the last computed aggregate metrics.
func (p *ConnectionPool) GetHealthMetrics() model.HealthMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metrics
}

// Run starts the periodic health-check loop. It blocks until the context is
// canceled and should typically be run in a goroutine.
func (p *ConnectionPool) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("Connection pool health checker started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Connection pool health checker stopped")
			return
		case <-ticker.C:
			p.PerformHealthCheck()
		}
	}
}

// handleTransition reacts to endpoint status changes reported via the
// transition hook registered in AddEndpoint. A transition to failed runs
// failover selection; a transition to connected is treated as a recovery.
func (p *ConnectionPool) handleTransition(e *Endpoint, from, to model.EndpointStatus, cause error) {
	switch {
	case to == model.StatusFailed && from != model.StatusFailed:
		if err := p.notifier.NotifyEndpointFailed(context.Background(), e.ID(), cause); err != nil {
			p.logger.Warnf("Failed to send endpoint failure notification: %v", err)
		}
		if alt, err := p.GetAlternative(e.ID()); err != nil {
			p.logger.Errorf("Failover from endpoint %s found no connected alternative: %v", e.ID(), err)
		} else {
			p.logger.Infof("Failover from endpoint %s to %s (latency=%v)", e.ID(), alt.ID(), alt.Metrics().Latency)
		}
	case to == model.StatusConnected && from != model.StatusConnected:
		p.HandleRecovery(e)
		return
	}
	p.updateMetrics()
}

// updateMetrics recomputes the aggregate health metrics from the endpoint
// set. Aggregate error rate is failed endpoints over total endpoints.
func (p *ConnectionPool) updateMetrics() model.HealthMetrics {
	endpoints := p.Endpoints()

	var (
		connected  int
		failed     int
		latencySum time.Duration
		throughput float64
	)
	for _, e := range endpoints {
		switch e.Status() {
		case model.StatusConnected:
			connected++
			m := e.Metrics()
			latencySum += m.Latency
			throughput += m.Throughput
		case model.StatusFailed:
			failed++
		}
	}

	metrics := model.HealthMetrics{
		EndpointCount:  len(endpoints),
		ConnectedCount: connected,
		OverallStatus:  model.StatusDisconnected,
		LastUpdated:    time.Now(),
	}
	if len(endpoints) > 0 {
		metrics.ErrorRate = float64(failed) / float64(len(endpoints))
	}
	if connected > 0 {
		metrics.OverallStatus = model.StatusConnected
		metrics.AverageLatency = latencySum / time.Duration(connected)
		metrics.AverageThroughput = throughput / float64(connected)
	} else if failed == len(endpoints) && len(endpoints) > 0 {
		metrics.OverallStatus = model.StatusFailed
	}

	p.mu.Lock()
	p.metrics = metrics
	p.mu.Unlock()

	return metrics
}
