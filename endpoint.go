package msgrelay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coregx/msgrelay/model"
	"github.com/coregx/msgrelay/retry"
)

// transitionHook observes endpoint status transitions. Registered by the
// pool when an endpoint is added; invoked outside the endpoint lock.
type transitionHook func(e *Endpoint, from, to model.EndpointStatus, cause error)

// inboundHandler receives decoded non-heartbeat envelopes from an endpoint.
type inboundHandler func(endpointID string, env model.Envelope)

// Endpoint manages one logical connection: establishment, heartbeat
// keep-alive, automatic reconnection with exponential backoff, and byte-level
// send delegation to the injected transport.
//
// State machine:
//
//	disconnected → connecting → connected
//	connected → unhealthy (heartbeat timeout) or → failed (transport error/close)
//	unhealthy/failed → connecting (scheduled reconnect, capped attempts)
//
// An explicit Disconnect from any state moves to disconnected, cancels any
// pending reconnect timer, and resets the attempt counter. Exceeding the
// reconnect cap leaves the endpoint failed and surfaces the exhaustion via
// the notification service; no further automatic retry happens.
//
// Thread safety: safe for concurrent use. Exactly one Send may be
// outstanding at a time; concurrent callers serialize on an internal mutex.
type Endpoint struct {
	id       string
	addr     string
	provider TransportProvider
	logger   Logger
	notifier NotificationService

	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	connectTimeout    time.Duration
	sendTimeout       time.Duration
	reconnect         retry.Strategy

	// sendMu serializes outbound sends - one outstanding send per endpoint.
	sendMu sync.Mutex

	mu                sync.Mutex
	status            model.EndpointStatus
	epoch             uint64 // bumped by Connect and Disconnect; stale dials abort
	transport         Transport
	sessionID         string
	metrics           model.EndpointMetrics
	reconnectAttempts int
	reconnectTimer    *time.Timer
	heartbeatStop     chan struct{}
	heartbeatSentAt   time.Time
	connectedAt       time.Time
	sentCount         int64
	failedCount       int64

	onTransition transitionHook
	onInbound    inboundHandler
}

// EndpointOption configures an Endpoint.
type EndpointOption func(*Endpoint) error

// NewEndpoint creates an endpoint for the given target address.
//
// Required options:
//   - WithEndpointTransport: transport provider used to dial the address
//   - WithEndpointLogger: logger instance
//
// Optional options:
//   - WithHeartbeat: keep-alive interval and ack timeout (default 15s/45s)
//   - WithReconnectStrategy: backoff schedule (default retry.ReconnectStrategy())
//   - WithEndpointTimeouts: connect and send timeouts (default 10s/10s)
//   - WithEndpointNotifications: notification sink (default no-op)
func NewEndpoint(id, addr string, opts ...EndpointOption) (*Endpoint, error) {
	e := &Endpoint{
		id:                id,
		addr:              addr,
		status:            model.StatusDisconnected,
		heartbeatInterval: 15 * time.Second,
		heartbeatTimeout:  45 * time.Second,
		connectTimeout:    10 * time.Second,
		sendTimeout:       10 * time.Second,
		reconnect:         retry.ReconnectStrategy(),
		notifier:          &NoOpNotificationService{},
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply endpoint option", err)
		}
	}

	if e.id == "" {
		return nil, NewError(ErrCodeConfiguration, "endpoint id is required")
	}
	if e.addr == "" {
		return nil, NewError(ErrCodeConfiguration, "endpoint address is required")
	}
	if e.provider == nil {
		return nil, NewError(ErrCodeConfiguration, "TransportProvider is required (use WithEndpointTransport)")
	}
	if e.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithEndpointLogger)")
	}

	return e, nil
}

// WithEndpointTransport sets the transport provider used to dial the target.
func WithEndpointTransport(provider TransportProvider) EndpointOption {
	return func(e *Endpoint) error {
		if provider == nil {
			return fmt.Errorf("provider cannot be nil")
		}
		e.provider = provider
		return nil
	}
}

// WithEndpointLogger sets the logger instance for the endpoint.
func WithEndpointLogger(logger Logger) EndpointOption {
	return func(e *Endpoint) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		e.logger = logger
		return nil
	}
}

// WithEndpointNotifications sets the notification sink for endpoint events.
func WithEndpointNotifications(service NotificationService) EndpointOption {
	return func(e *Endpoint) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		e.notifier = service
		return nil
	}
}

// WithHeartbeat sets the keep-alive send interval and the ack timeout after
// which the endpoint is considered unhealthy.
func WithHeartbeat(interval, timeout time.Duration) EndpointOption {
	return func(e *Endpoint) error {
		if interval <= 0 || timeout <= 0 {
			return fmt.Errorf("heartbeat interval and timeout must be > 0")
		}
		if timeout <= interval {
			return fmt.Errorf("heartbeat timeout must exceed the interval")
		}
		e.heartbeatInterval = interval
		e.heartbeatTimeout = timeout
		return nil
	}
}

// WithReconnectStrategy sets the reconnection backoff schedule and attempt cap.
func WithReconnectStrategy(strategy retry.Strategy) EndpointOption {
	return func(e *Endpoint) error {
		e.reconnect = strategy
		return nil
	}
}

// WithEndpointTimeouts sets the connect and send timeouts.
func WithEndpointTimeouts(connect, send time.Duration) EndpointOption {
	return func(e *Endpoint) error {
		if connect <= 0 || send <= 0 {
			return fmt.Errorf("timeouts must be > 0")
		}
		e.connectTimeout = connect
		e.sendTimeout = send
		return nil
	}
}

// ID returns the endpoint identity.
func (e *Endpoint) ID() string { return e.id }

// Address returns the target address.
func (e *Endpoint) Address() string { return e.addr }

// Status returns the current lifecycle state.
func (e *Endpoint) Status() model.EndpointStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// IsConnected reports whether the endpoint can carry traffic right now.
func (e *Endpoint) IsConnected() bool {
	return e.Status() == model.StatusConnected
}

// SessionID returns the identifier of the current session, or "" when
// disconnected.
func (e *Endpoint) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// Metrics returns a snapshot of the endpoint health figures.
func (e *Endpoint) Metrics() model.EndpointMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.metrics
	if !e.connectedAt.IsZero() {
		if elapsed := time.Since(e.connectedAt).Seconds(); elapsed > 0 {
			m.Throughput = float64(e.sentCount) / elapsed
		}
	}
	if total := e.sentCount + e.failedCount; total > 0 {
		m.ErrorRate = float64(e.failedCount) / float64(total)
	}
	return m
}

// setTransitionHook registers the pool observer. Pool-internal.
func (e *Endpoint) setTransitionHook(hook transitionHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTransition = hook
}

// SetInboundHandler registers the receiver for decoded inbound envelopes.
// Heartbeat acks are consumed by the endpoint and never forwarded.
func (e *Endpoint) SetInboundHandler(h func(endpointID string, env model.Envelope)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onInbound = h
}

// Connect attempts to establish the underlying transport connection.
// On success it returns the new session identifier, starts the heartbeat
// loop, and resets the reconnection attempt counter. Calling Connect while
// another attempt is already in flight returns a CONNECTION_FAILED error.
func (e *Endpoint) Connect(ctx context.Context) (string, error) {
	e.mu.Lock()
	if e.status == model.StatusConnected {
		session := e.sessionID
		e.mu.Unlock()
		return session, nil
	}
	if e.status == model.StatusConnecting {
		e.mu.Unlock()
		return "", NewError(ErrCodeConnectionFailed, "connection attempt already in progress")
	}
	from := e.status
	e.status = model.StatusConnecting
	e.epoch++
	myEpoch := e.epoch
	e.stopReconnectTimerLocked()
	e.mu.Unlock()
	e.notifyTransition(from, model.StatusConnecting, nil)

	return e.dial(ctx, from, myEpoch)
}

// dial performs one connection attempt for the given epoch. Disconnect bumps
// the epoch, so an attempt whose dial outlived a deliberate disconnect aborts
// instead of resurrecting the connection.
func (e *Endpoint) dial(ctx context.Context, from model.EndpointStatus, myEpoch uint64) (string, error) {
	dialCtx, cancel := context.WithTimeout(ctx, e.connectTimeout)
	defer cancel()

	transport, err := e.provider.Dial(dialCtx, e.addr)
	if err != nil {
		connErr := e.classifyDialError(err)
		e.mu.Lock()
		if e.epoch != myEpoch || e.status != model.StatusConnecting {
			e.mu.Unlock()
			return "", connErr
		}
		e.status = model.StatusFailed
		e.metrics.LastFailureAt = time.Now()
		e.mu.Unlock()
		e.notifyTransition(model.StatusConnecting, model.StatusFailed, connErr)
		return "", connErr
	}

	transport.SetCallbacks(TransportCallbacks{
		OnMessage: e.handleInbound,
		OnClose:   e.handleTransportClose,
		OnError:   e.handleTransportError,
	})

	session := uuid.NewString()
	now := time.Now()

	e.mu.Lock()
	if e.epoch != myEpoch || e.status != model.StatusConnecting {
		e.mu.Unlock()
		_ = transport.Close()
		return "", NewError(ErrCodeConnectionFailed, "connection attempt superseded by disconnect")
	}
	recovered := from == model.StatusFailed || from == model.StatusUnhealthy
	e.transport = transport
	e.sessionID = session
	e.status = model.StatusConnected
	e.reconnectAttempts = 0
	e.connectedAt = now
	e.sentCount = 0
	e.failedCount = 0
	e.metrics.LastHeartbeat = now
	if recovered {
		e.metrics.LastRecoveryAt = now
	}
	stop := make(chan struct{})
	e.heartbeatStop = stop
	e.mu.Unlock()

	go e.heartbeatLoop(stop)

	e.notifyTransition(model.StatusConnecting, model.StatusConnected, nil)
	e.logger.Infof("Endpoint %s connected to %s (session=%s)", e.id, e.addr, session)
	return session, nil
}

// Disconnect tears the connection down cleanly. It cancels any pending
// reconnect timer, stops the heartbeat loop, and resets the attempt counter.
// Terminal until Connect is called again.
func (e *Endpoint) Disconnect(_ context.Context) error {
	e.mu.Lock()
	from := e.status
	e.epoch++
	e.stopReconnectTimerLocked()
	e.stopHeartbeatLocked()
	transport := e.transport
	e.transport = nil
	e.sessionID = ""
	e.status = model.StatusDisconnected
	e.reconnectAttempts = 0
	e.mu.Unlock()

	if from != model.StatusDisconnected {
		e.notifyTransition(from, model.StatusDisconnected, nil)
	}

	if transport != nil {
		if err := transport.Close(); err != nil {
			return NewErrorWithCause(ErrCodeDisconnectionFailed, "failed to close transport", err)
		}
	}

	e.logger.Infof("Endpoint %s disconnected", e.id)
	return nil
}

// Send forwards one already-encoded frame to the transport.
// Exactly one send is outstanding at a time; the call resolves to nil or a
// typed message error within the configured send timeout.
func (e *Endpoint) Send(ctx context.Context, data []byte) error {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	e.mu.Lock()
	transport := e.transport
	connected := e.status == model.StatusConnected
	e.mu.Unlock()

	if !connected || transport == nil {
		return ErrNoConnection
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()

	start := time.Now()
	err := transport.Send(sendCtx, data)
	elapsed := time.Since(start)

	e.mu.Lock()
	if err != nil {
		e.failedCount++
	} else {
		e.sentCount++
		e.metrics.Latency = elapsed
	}
	e.mu.Unlock()

	if err != nil {
		if sendCtx.Err() != nil {
			return NewErrorWithCause(ErrCodeTimeout, "send timed out", err)
		}
		return NewErrorWithCause(ErrCodeSendFailed, "transport send failed", err)
	}
	return nil
}

// CheckHealth reclassifies the endpoint from heartbeat data. A connected
// endpoint with no heartbeat ack inside the timeout window transitions to
// unhealthy and a reconnect is scheduled. Called by the pool's periodic
// health check.
func (e *Endpoint) CheckHealth() model.EndpointStatus {
	e.mu.Lock()
	if e.status != model.StatusConnected {
		status := e.status
		e.mu.Unlock()
		return status
	}
	if time.Since(e.metrics.LastHeartbeat) <= e.heartbeatTimeout {
		e.mu.Unlock()
		return model.StatusConnected
	}

	e.status = model.StatusUnhealthy
	e.stopHeartbeatLocked()
	transport := e.transport
	e.transport = nil
	e.sessionID = ""
	e.mu.Unlock()

	if transport != nil {
		_ = transport.Close()
	}

	e.logger.Warnf("Endpoint %s missed heartbeat ack for over %v, marking unhealthy", e.id, e.heartbeatTimeout)
	e.notifyTransition(model.StatusConnected, model.StatusUnhealthy, nil)
	e.scheduleReconnect()
	return model.StatusUnhealthy
}

// heartbeatLoop sends keep-alive frames at the configured interval while
// connected. The loop exits when the stop channel closes.
func (e *Endpoint) heartbeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(e.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.sendHeartbeat()
		}
	}
}

// sendHeartbeat transmits one keep-alive frame. Failures are left to the
// transport error callback and the health check; the loop keeps ticking.
func (e *Endpoint) sendHeartbeat() {
	e.mu.Lock()
	transport := e.transport
	if transport == nil || e.status != model.StatusConnected {
		e.mu.Unlock()
		return
	}
	e.heartbeatSentAt = time.Now()
	e.mu.Unlock()

	env := model.Envelope{
		ID:        uuid.NewString(),
		Type:      model.TypeHeartbeat,
		Timestamp: time.Now(),
	}
	data, err := env.Encode()
	if err != nil {
		e.logger.Errorf("Endpoint %s failed to encode heartbeat: %v", e.id, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.sendTimeout)
	defer cancel()

	if err := transport.Send(ctx, data); err != nil {
		e.logger.Debugf("Endpoint %s heartbeat send failed: %v", e.id, err)
	}
}

// handleInbound decodes an inbound frame. Heartbeat acks refresh the
// liveness timestamp and latency; everything else goes to the registered
// inbound handler.
func (e *Endpoint) handleInbound(data []byte) {
	env, err := model.DecodeEnvelope(data)
	if err != nil {
		e.logger.Warnf("Endpoint %s dropped undecodable frame: %v",
			e.id, NewErrorWithCause(ErrCodeDeserialization, "invalid inbound frame", err))
		return
	}

	if env.IsHeartbeat() {
		now := time.Now()
		e.mu.Lock()
		e.metrics.LastHeartbeat = now
		if !e.heartbeatSentAt.IsZero() {
			e.metrics.Latency = now.Sub(e.heartbeatSentAt)
			e.heartbeatSentAt = time.Time{}
		}
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	handler := e.onInbound
	e.mu.Unlock()

	if handler != nil {
		handler(e.id, env)
	}
}

// handleTransportClose marks the endpoint failed when the transport closes
// underneath it. A locally initiated Disconnect already cleared the
// transport, so the late callback becomes a no-op.
func (e *Endpoint) handleTransportClose(err error) {
	e.failFromTransport(NewErrorWithCause(ErrCodeConnectionFailed, "transport closed", err))
}

// handleTransportError marks the endpoint failed on a transport error.
func (e *Endpoint) handleTransportError(err error) {
	e.failFromTransport(NewErrorWithCause(ErrCodeSendFailed, "transport error", err))
}

func (e *Endpoint) failFromTransport(cause error) {
	e.mu.Lock()
	if e.status != model.StatusConnected {
		e.mu.Unlock()
		return
	}
	from := e.status
	e.status = model.StatusFailed
	e.metrics.LastFailureAt = time.Now()
	e.stopHeartbeatLocked()
	transport := e.transport
	e.transport = nil
	e.sessionID = ""
	e.mu.Unlock()

	if transport != nil {
		_ = transport.Close()
	}

	e.logger.Warnf("Endpoint %s failed: %v", e.id, cause)
	e.notifyTransition(from, model.StatusFailed, cause)
	e.scheduleReconnect()
}

// scheduleReconnect arms a cancellable delayed reconnect with exponential
// backoff. Exceeding the attempt cap leaves the endpoint failed and
// surfaces exhaustion through the notification service.
func (e *Endpoint) scheduleReconnect() {
	e.mu.Lock()
	if e.status != model.StatusFailed && e.status != model.StatusUnhealthy {
		e.mu.Unlock()
		return
	}
	if !e.reconnect.IsRetryable(e.reconnectAttempts) {
		attempts := e.reconnectAttempts
		e.status = model.StatusFailed
		e.mu.Unlock()
		e.logger.Errorf("Endpoint %s exhausted %d reconnection attempts, giving up", e.id, attempts)
		if err := e.notifier.NotifyReconnectExhausted(context.Background(), e.id, attempts); err != nil {
			e.logger.Warnf("Failed to send reconnect exhaustion notification: %v", err)
		}
		return
	}

	e.reconnectAttempts++
	attempt := e.reconnectAttempts
	delay := e.reconnect.Delay(attempt)
	armedEpoch := e.epoch
	e.stopReconnectTimerLocked()
	e.reconnectTimer = time.AfterFunc(delay, func() {
		e.mu.Lock()
		stale := e.epoch != armedEpoch ||
			(e.status != model.StatusFailed && e.status != model.StatusUnhealthy)
		if stale {
			// A disconnect or a manual reconnect won the race.
			e.mu.Unlock()
			return
		}
		from := e.status
		e.status = model.StatusConnecting
		e.epoch++
		myEpoch := e.epoch
		e.reconnectTimer = nil
		e.mu.Unlock()

		e.notifyTransition(from, model.StatusConnecting, nil)
		e.logger.Infof("Endpoint %s reconnecting (attempt %d)", e.id, attempt)
		if _, err := e.dial(context.Background(), from, myEpoch); err != nil {
			e.scheduleReconnect()
		}
	})
	e.mu.Unlock()

	e.logger.Infof("Endpoint %s scheduled reconnect attempt %d in %v", e.id, attempt, delay)
}

// stopReconnectTimerLocked cancels a pending reconnect. Caller holds e.mu.
func (e *Endpoint) stopReconnectTimerLocked() {
	if e.reconnectTimer != nil {
		e.reconnectTimer.Stop()
		e.reconnectTimer = nil
	}
}

// stopHeartbeatLocked stops the heartbeat loop. Caller holds e.mu.
func (e *Endpoint) stopHeartbeatLocked() {
	if e.heartbeatStop != nil {
		close(e.heartbeatStop)
		e.heartbeatStop = nil
	}
}

// notifyTransition invokes the pool hook outside the endpoint lock.
func (e *Endpoint) notifyTransition(from, to model.EndpointStatus, cause error) {
	e.mu.Lock()
	hook := e.onTransition
	e.mu.Unlock()

	if hook != nil {
		hook(e, from, to, cause)
	}
}

// classifyDialError maps dial failures onto the connection error taxonomy.
// Transports may already return typed errors; those pass through untouched.
func (e *Endpoint) classifyDialError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewErrorWithCause(ErrCodeTimeout, "connect timed out", err)
	}
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return err
	}
	return NewErrorWithCause(ErrCodeConnectionFailed, fmt.Sprintf("failed to connect to %s", e.addr), err)
}
