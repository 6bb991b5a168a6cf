package model

import (
	"encoding/json"
	"time"
)

// Envelope is the JSON frame exchanged with the transport for both outbound
// deliveries and inbound traffic. The payload travels base64-encoded via the
// standard json []byte encoding; the transport itself never inspects it.
//
// Heartbeat frames use TypeHeartbeat / TypeHeartbeatAck with an empty payload.
type Envelope struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Payload   []byte    `json:"payload,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Reserved envelope types used by the connection layer itself.
const (
	TypeHeartbeat    = "relay.heartbeat"
	TypeHeartbeatAck = "relay.heartbeat.ack"
)

// NewEnvelope wraps a message for transmission.
func NewEnvelope(m Message) Envelope {
	return Envelope{
		ID:        m.ID,
		Type:      m.Type,
		Payload:   m.Payload,
		Sender:    m.Sender,
		Recipient: m.Recipient,
		Timestamp: time.Now(),
	}
}

// ToMessage converts an inbound envelope back into a domain message.
func (e Envelope) ToMessage() Message {
	return Message{
		ID:        e.ID,
		Type:      e.Type,
		Payload:   e.Payload,
		Sender:    e.Sender,
		Recipient: e.Recipient,
		CreatedAt: e.Timestamp,
	}
}

// Encode serializes the envelope to its wire representation.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses an inbound frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(data, &e)
	return e, err
}

// IsHeartbeat reports whether the envelope is a keep-alive frame.
func (e Envelope) IsHeartbeat() bool {
	return e.Type == TypeHeartbeat || e.Type == TypeHeartbeatAck
}
