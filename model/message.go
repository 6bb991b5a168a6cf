// Package model contains the domain models for the msgrelay reliable-delivery core.
package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// Priority classifies outbound messages into one of three fixed delivery
// classes. The queue drains High before Normal before Low, FIFO within a
// class.
type Priority string

const (
	// PriorityHigh is drained before all other classes.
	PriorityHigh Priority = "high"

	// PriorityNormal is the default delivery class.
	PriorityNormal Priority = "normal"

	// PriorityLow is drained only when no higher class has pending messages.
	PriorityLow Priority = "low"
)

// Priorities lists all classes in drain order (highest first).
func Priorities() []Priority {
	return []Priority{PriorityHigh, PriorityNormal, PriorityLow}
}

// Valid reports whether p is one of the three known classes.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// String returns the priority class name.
func (p Priority) String() string {
	return string(p)
}

// Message represents one outbound payload submitted by a producer.
// Messages are immutable once created; retry state lives on QueuedMessage.
//
// The payload is opaque to the core - wire framing belongs to the transport
// and protocol semantics belong to the adapters that produce messages.
type Message struct {
	ID        string    `json:"id" db:"id"`                // Unique message ID (UUID)
	Type      string    `json:"type" db:"type"`            // Message type tag for handler routing
	Payload   []byte    `json:"payload" db:"payload"`      // Opaque payload bytes
	Sender    string    `json:"sender" db:"sender"`        // Optional sender identity
	Recipient string    `json:"recipient" db:"recipient"`  // Optional recipient identity
	CreatedAt time.Time `json:"createdAt" db:"created_at"` // Creation timestamp
}

// NewMessage creates a new message with a generated ID and creation timestamp.
//
// Parameters:
//   - msgType: Type tag used for routing inbound replies and diagnostics
//   - payload: Opaque payload bytes
func NewMessage(msgType string, payload []byte) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// Validate checks that the message is well-formed enough to enqueue.
func (m Message) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ID, validation.Required),
		validation.Field(&m.Type, validation.Required, validation.Length(1, 255)),
		validation.Field(&m.Payload, validation.Required),
	)
}
