// Package ws provides a WebSocket transport adapter for msgrelay built on
// gorilla/websocket.
//
// Frames pass through opaquely as binary messages; the adapter owns only
// connection establishment, deadlines, and the read pump.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coregx/msgrelay"
)

// Provider implements msgrelay.TransportProvider over WebSocket.
type Provider struct {
	dialer *websocket.Dialer
	header http.Header
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithHandshakeTimeout sets the WebSocket handshake timeout (default 10s).
func WithHandshakeTimeout(timeout time.Duration) ProviderOption {
	return func(p *Provider) {
		p.dialer.HandshakeTimeout = timeout
	}
}

// WithHeader sets extra headers sent with the handshake request, e.g. for
// authentication tokens.
func WithHeader(header http.Header) ProviderOption {
	return func(p *Provider) {
		p.header = header
	}
}

// NewProvider creates a WebSocket transport provider.
func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dial connects to a ws:// or wss:// address.
func (p *Provider) Dial(ctx context.Context, addr string) (msgrelay.Transport, error) {
	conn, resp, err := p.dialer.DialContext(ctx, addr, p.header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, msgrelay.NewErrorWithCause(msgrelay.ErrCodeAuthenticationFailed, "websocket handshake rejected", err)
		}
		if ctx.Err() != nil {
			return nil, msgrelay.NewErrorWithCause(msgrelay.ErrCodeTimeout, "websocket dial timed out", err)
		}
		return nil, msgrelay.NewErrorWithCause(msgrelay.ErrCodeServerUnreachable, "websocket dial failed", err)
	}
	return &transport{conn: conn}, nil
}

// transport wraps one WebSocket connection.
type transport struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	cb        msgrelay.TransportCallbacks
}

// Send writes one binary frame, honoring the context deadline.
func (t *transport) Send(ctx context.Context, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, data)
}

// SetCallbacks registers the callbacks and starts the read pump.
func (t *transport) SetCallbacks(cb msgrelay.TransportCallbacks) {
	t.cb = cb
	go t.readPump()
}

// Close tears the connection down, sending a close frame best-effort.
func (t *transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}

// readPump forwards inbound frames until the connection terminates.
func (t *transport) readPump() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if t.cb.OnClose != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					t.cb.OnClose(nil)
				} else {
					t.cb.OnClose(err)
				}
			}
			return
		}
		if t.cb.OnMessage != nil {
			t.cb.OnMessage(data)
		}
	}
}
