package msgrelay

import (
	"context"

	"github.com/coregx/msgrelay/model"
)

// MessageStore defines the persistence contract for active queue state.
// The queue mirrors its in-memory priority queues into the store so a
// restart reconstructs identical membership and per-class order.
//
// The contract is deliberately narrow - any storage engine can implement it.
// Implementations must be safe for concurrent use. The store is assumed to
// be owned by a single process; shared stores need an engine with proper
// write isolation.
type MessageStore interface {
	// Save creates or replaces the record keyed by m.ID.
	Save(ctx context.Context, m model.QueuedMessage) error

	// Load returns all persisted records. Order across records is not
	// significant; the queue orders by priority class and sequence number.
	Load(ctx context.Context) ([]model.QueuedMessage, error)

	// Remove deletes the record keyed by id. Removing an absent id is not
	// an error.
	Remove(ctx context.Context, id string) error

	// Clear deletes all records.
	Clear(ctx context.Context) error
}

// DeadLetterStore defines the persistence contract for dead-lettered
// messages. Same narrow key/record shape as MessageStore; entries
// additionally carry the failure timestamp and last error.
type DeadLetterStore interface {
	// Save creates or replaces the entry keyed by d.ID.
	Save(ctx context.Context, d model.DeadLetter) error

	// Load returns all dead-lettered entries.
	Load(ctx context.Context) ([]model.DeadLetter, error)

	// Remove deletes the entry keyed by id.
	Remove(ctx context.Context, id string) error

	// Clear deletes all entries.
	Clear(ctx context.Context) error
}
