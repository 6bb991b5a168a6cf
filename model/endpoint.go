package model

import "time"

// EndpointStatus represents the lifecycle state of a connection endpoint.
type EndpointStatus string

const (
	// StatusDisconnected indicates no connection and no pending reconnect.
	StatusDisconnected EndpointStatus = "disconnected"

	// StatusConnecting indicates a connection attempt is in progress.
	StatusConnecting EndpointStatus = "connecting"

	// StatusConnected indicates an established, healthy connection.
	StatusConnected EndpointStatus = "connected"

	// StatusUnhealthy indicates the connection is up but heartbeat
	// acknowledgments stopped arriving.
	StatusUnhealthy EndpointStatus = "unhealthy"

	// StatusFailed indicates the transport reported an error or closed.
	StatusFailed EndpointStatus = "failed"
)

// Usable reports whether the endpoint can carry traffic.
func (s EndpointStatus) Usable() bool {
	return s == StatusConnected
}

// EndpointMetrics holds the per-endpoint health figures maintained by the
// endpoint itself and read by the pool during health checks.
type EndpointMetrics struct {
	Latency        time.Duration `json:"latency"`
	Throughput     float64       `json:"throughput"` // Messages per second
	ErrorRate      float64       `json:"errorRate"`  // Failed sends / total sends
	LastHeartbeat  time.Time     `json:"lastHeartbeat"`
	LastFailureAt  time.Time     `json:"lastFailureAt"`
	LastRecoveryAt time.Time     `json:"lastRecoveryAt"`
}

// HealthMetrics represents aggregate connection health across the pool.
// Recomputed by every health check pass.
type HealthMetrics struct {
	OverallStatus     EndpointStatus `json:"overallStatus"`
	ConnectedCount    int            `json:"connectedCount"`
	EndpointCount     int            `json:"endpointCount"`
	AverageLatency    time.Duration  `json:"averageLatency"`
	AverageThroughput float64        `json:"averageThroughput"`
	ErrorRate         float64        `json:"errorRate"` // Failed endpoints / total endpoints
	LastUpdated       time.Time      `json:"lastUpdated"`
}
