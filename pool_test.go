package msgrelay

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/msgrelay/model"
	"github.com/coregx/msgrelay/retry"
)

func newTestPool(t *testing.T, opts ...PoolOption) *ConnectionPool {
	t.Helper()
	base := []PoolOption{WithPoolLogger(&NoopLogger{})}
	p, err := NewConnectionPool(append(base, opts...)...)
	require.NoError(t, err)
	return p
}

// addConnectedEndpoint creates, registers, and connects an endpoint backed by
// its own fake provider. sendDelay shapes the measured latency.
func addConnectedEndpoint(t *testing.T, p *ConnectionPool, id string, sendDelay time.Duration) (*Endpoint, *fakeProvider) {
	t.Helper()
	provider := &fakeProvider{}
	e, err := NewEndpoint(id, fmt.Sprintf("ws://host/%s", id),
		WithEndpointTransport(provider),
		WithEndpointLogger(&NoopLogger{}),
		WithReconnectStrategy(retry.Strategy{
			BaseDelay:  time.Hour,
			MaxDelay:   time.Hour,
			Multiplier: 2.0,
			MaxRetries: 1,
		}),
	)
	require.NoError(t, err)
	p.AddEndpoint(e)

	_, err = e.Connect(context.Background())
	require.NoError(t, err)

	if sendDelay > 0 {
		transport := provider.lastTransport()
		transport.mu.Lock()
		transport.sendDelay = sendDelay
		transport.mu.Unlock()
	}
	// One measured send establishes the endpoint's latency figure
	require.NoError(t, e.Send(context.Background(), []byte("probe")))
	return e, provider
}

func TestNewConnectionPool_RequiresLogger(t *testing.T) {
	_, err := NewConnectionPool()

	assert.Error(t, err)
}

func TestConnectionPool_GetBestConnection_Empty(t *testing.T) {
	p := newTestPool(t)

	_, err := p.GetBestConnection()

	assert.True(t, IsNoConnection(err))
}

func TestConnectionPool_GetBestConnection_PrefersLowLatency(t *testing.T) {
	p := newTestPool(t)
	slow, _ := addConnectedEndpoint(t, p, "slow", 30*time.Millisecond)
	fast, _ := addConnectedEndpoint(t, p, "fast", 0)

	best, err := p.GetBestConnection()
	require.NoError(t, err)

	assert.Equal(t, fast.ID(), best.ID())
	assert.NotEqual(t, slow.ID(), best.ID())
}

func TestConnectionPool_GetBestConnection_SkipsDisconnected(t *testing.T) {
	p := newTestPool(t)
	fast, _ := addConnectedEndpoint(t, p, "fast", 0)
	slow, _ := addConnectedEndpoint(t, p, "slow", 30*time.Millisecond)

	require.NoError(t, fast.Disconnect(context.Background()))

	best, err := p.GetBestConnection()
	require.NoError(t, err)

	assert.Equal(t, slow.ID(), best.ID())
}

func TestConnectionPool_GetAlternative(t *testing.T) {
	p := newTestPool(t)
	a, _ := addConnectedEndpoint(t, p, "a", 0)
	b, _ := addConnectedEndpoint(t, p, "b", 10*time.Millisecond)

	alt, err := p.GetAlternative(a.ID())
	require.NoError(t, err)
	assert.Equal(t, b.ID(), alt.ID())

	// Excluding the only other endpoint leaves nothing
	require.NoError(t, b.Disconnect(context.Background()))
	_, err = p.GetAlternative(a.ID())
	assert.True(t, IsNoConnection(err))
}

func TestConnectionPool_BestSender(t *testing.T) {
	p := newTestPool(t)

	sender, err := p.BestSender()
	assert.True(t, IsNoConnection(err))
	assert.Nil(t, sender)

	e, _ := addConnectedEndpoint(t, p, "a", 0)

	sender, err = p.BestSender()
	require.NoError(t, err)
	assert.Equal(t, e.ID(), sender.ID())
}

func TestConnectionPool_RemoveEndpoint(t *testing.T) {
	p := newTestPool(t)
	e, _ := addConnectedEndpoint(t, p, "a", 0)

	p.RemoveEndpoint(e.ID())

	_, err := p.GetBestConnection()
	assert.True(t, IsNoConnection(err))
	assert.Empty(t, p.Endpoints())
}

func TestConnectionPool_PerformHealthCheck_Metrics(t *testing.T) {
	p := newTestPool(t)
	addConnectedEndpoint(t, p, "a", 0)
	addConnectedEndpoint(t, p, "b", 0)

	metrics := p.PerformHealthCheck()

	assert.Equal(t, 2, metrics.EndpointCount)
	assert.Equal(t, 2, metrics.ConnectedCount)
	assert.Equal(t, model.StatusConnected, metrics.OverallStatus)
	assert.Equal(t, 0.0, metrics.ErrorRate)
	assert.WithinDuration(t, time.Now(), metrics.LastUpdated, time.Second)

	// Cached snapshot matches the computed one
	assert.Equal(t, metrics.ConnectedCount, p.GetHealthMetrics().ConnectedCount)
}

func TestConnectionPool_FailureNotifiesAndUpdatesMetrics(t *testing.T) {
	notifier := newRecordingNotifier()
	p := newTestPool(t, WithPoolNotifications(notifier))
	a, _ := addConnectedEndpoint(t, p, "a", 0)
	addConnectedEndpoint(t, p, "b", 0)

	p.HandleFailure(a, errors.New("transport torn down"))

	assert.Eventually(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return len(notifier.endpointFailed) == 1 && notifier.endpointFailed[0] == "a"
	}, time.Second, 5*time.Millisecond)

	metrics := p.GetHealthMetrics()
	assert.Equal(t, 1, metrics.ConnectedCount)
	assert.Equal(t, model.StatusConnected, metrics.OverallStatus)
	assert.InDelta(t, 0.5, metrics.ErrorRate, 0.001)

	// Failover target is the surviving endpoint
	best, err := p.GetBestConnection()
	require.NoError(t, err)
	assert.Equal(t, "b", best.ID())
}

func TestConnectionPool_AllFailed_OverallStatus(t *testing.T) {
	p := newTestPool(t)
	a, _ := addConnectedEndpoint(t, p, "a", 0)

	p.HandleFailure(a, errors.New("gone"))

	metrics := p.PerformHealthCheck()
	assert.Equal(t, model.StatusFailed, metrics.OverallStatus)
	assert.Equal(t, 0, metrics.ConnectedCount)
	assert.Equal(t, 1.0, metrics.ErrorRate)
}

func TestConnectionPool_RecoveryNotifies(t *testing.T) {
	notifier := newRecordingNotifier()
	p := newTestPool(t, WithPoolNotifications(notifier))
	a, _ := addConnectedEndpoint(t, p, "a", 0)

	require.NoError(t, a.Disconnect(context.Background()))
	_, err := a.Connect(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return len(notifier.recovered) > 0 && notifier.recovered[len(notifier.recovered)-1] == "a"
	}, time.Second, 5*time.Millisecond)
}

func TestConnectionPool_Run_PeriodicHealthChecks(t *testing.T) {
	p := newTestPool(t)
	addConnectedEndpoint(t, p, "a", 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx, 10*time.Millisecond)
	}()

	assert.Eventually(t, func() bool {
		return p.GetHealthMetrics().ConnectedCount == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("health check loop did not stop on context cancel")
	}
}
