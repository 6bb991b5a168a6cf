package msgrelay

import "context"

// TransportCallbacks carries the callbacks a Transport invokes for inbound
// traffic and lifecycle events. All callbacks may be invoked from the
// transport's own goroutines; registrants must synchronize accordingly.
type TransportCallbacks struct {
	// OnMessage is invoked for every inbound frame.
	OnMessage func(data []byte)

	// OnClose is invoked exactly once when the connection terminates.
	// The error is nil for a clean local close.
	OnClose func(err error)

	// OnError is invoked for transport-level errors that do not
	// immediately terminate the connection.
	OnError func(err error)
}

// Transport represents one established connection to a target address.
// Implementations own wire framing; the core only moves opaque byte frames.
//
// Implementations must support at most one concurrent Send call per
// connection - the endpoint serializes sends on its side as well.
type Transport interface {
	// Send transmits one frame. It must honor the context deadline and
	// return an error rather than block indefinitely.
	Send(ctx context.Context, data []byte) error

	// SetCallbacks registers the inbound and lifecycle callbacks.
	// Must be called before traffic is expected; replacing callbacks
	// after the connection is active is not supported.
	SetCallbacks(cb TransportCallbacks)

	// Close tears the connection down. Triggers OnClose with a nil error.
	Close() error
}

// TransportProvider establishes transport connections to target addresses.
// Injected into endpoints at construction (no ambient transport state).
type TransportProvider interface {
	// Dial connects to the target address, honoring the context deadline.
	Dial(ctx context.Context, addr string) (Transport, error)
}
