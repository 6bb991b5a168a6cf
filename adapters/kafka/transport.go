// Package kafka provides a Kafka-backed transport adapter for msgrelay built
// on segmentio/kafka-go.
//
// Outbound frames go to a producer topic; inbound frames are consumed from a
// separate topic with a consumer group, so several relay instances can share
// the inbound stream. The endpoint address passed to Dial is the broker
// address (host:port).
package kafka

import (
	"context"
	"strings"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/coregx/msgrelay"
)

// Provider implements msgrelay.TransportProvider over Kafka topics.
type Provider struct {
	outboundTopic string
	inboundTopic  string
	groupID       string
	batchTimeout  time.Duration
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithTopics sets the producer and consumer topics.
func WithTopics(outbound, inbound string) ProviderOption {
	return func(p *Provider) {
		p.outboundTopic = outbound
		p.inboundTopic = inbound
	}
}

// WithGroupID sets the consumer group for the inbound topic.
func WithGroupID(groupID string) ProviderOption {
	return func(p *Provider) {
		p.groupID = groupID
	}
}

// WithBatchTimeout sets how long the writer may buffer before flushing
// (default 50ms; deliveries are latency-sensitive, not throughput-bound).
func WithBatchTimeout(timeout time.Duration) ProviderOption {
	return func(p *Provider) {
		p.batchTimeout = timeout
	}
}

// NewProvider creates a Kafka transport provider.
func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{
		outboundTopic: "relay.outbound",
		inboundTopic:  "relay.inbound",
		groupID:       "msgrelay",
		batchTimeout:  50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dial starts a writer and a reader against the broker address. Kafka has no
// handshake to fail fast on, so reachability surfaces on the first send or
// fetch.
func (p *Provider) Dial(ctx context.Context, addr string) (msgrelay.Transport, error) {
	brokers := strings.Split(addr, ",")

	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        p.outboundTopic,
		Balancer:     &kafkago.LeastBytes{},
		BatchTimeout: p.batchTimeout,
		RequiredAcks: kafkago.RequireOne,
	}
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: brokers,
		Topic:   p.inboundTopic,
		GroupID: p.groupID,
	})

	pumpCtx, cancel := context.WithCancel(context.Background())
	return &transport{
		writer: writer,
		reader: reader,
		cancel: cancel,
		ctx:    pumpCtx,
	}, nil
}

// transport bridges one writer/reader pair to the Transport contract.
type transport struct {
	writer *kafkago.Writer
	reader *kafkago.Reader

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	cb        msgrelay.TransportCallbacks
}

// Send produces one frame to the outbound topic.
func (t *transport) Send(ctx context.Context, data []byte) error {
	err := t.writer.WriteMessages(ctx, kafkago.Message{Value: data})
	if err != nil {
		return msgrelay.NewErrorWithCause(msgrelay.ErrCodeSendFailed, "kafka produce failed", err)
	}
	return nil
}

// SetCallbacks registers the callbacks and starts the consume pump.
func (t *transport) SetCallbacks(cb msgrelay.TransportCallbacks) {
	t.cb = cb
	go t.consumePump()
}

// Close stops the pump and releases the writer and reader.
func (t *transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.cancel()
		if werr := t.writer.Close(); werr != nil {
			err = werr
		}
		if rerr := t.reader.Close(); rerr != nil && err == nil {
			err = rerr
		}
	})
	return err
}

// consumePump forwards inbound records until the transport closes.
func (t *transport) consumePump() {
	for {
		msg, err := t.reader.ReadMessage(t.ctx)
		if err != nil {
			if t.cb.OnClose != nil {
				if t.ctx.Err() != nil {
					t.cb.OnClose(nil)
				} else {
					t.cb.OnClose(err)
				}
			}
			return
		}
		if t.cb.OnMessage != nil {
			t.cb.OnMessage(msg.Value)
		}
	}
}
