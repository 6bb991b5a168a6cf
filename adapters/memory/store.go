// Package memory provides in-memory store adapters for msgrelay.
//
// Useful for tests and for deployments that accept losing queue state on
// restart. Both stores are safe for concurrent use.
package memory

import (
	"context"
	"sync"

	"github.com/coregx/msgrelay/model"
)

// MessageStore implements msgrelay.MessageStore in memory.
type MessageStore struct {
	mu      sync.Mutex
	records map[string]model.QueuedMessage
}

// NewMessageStore creates an empty in-memory message store.
func NewMessageStore() *MessageStore {
	return &MessageStore{records: make(map[string]model.QueuedMessage)}
}

// Save creates or replaces the record keyed by m.ID.
func (s *MessageStore) Save(_ context.Context, m model.QueuedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[m.ID] = m
	return nil
}

// Load returns all records.
func (s *MessageStore) Load(_ context.Context) ([]model.QueuedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.QueuedMessage, 0, len(s.records))
	for _, m := range s.records {
		out = append(out, m)
	}
	return out, nil
}

// Remove deletes the record keyed by id.
func (s *MessageStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// Clear deletes all records.
func (s *MessageStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]model.QueuedMessage)
	return nil
}

// Len returns the number of stored records.
func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// DeadLetterStore implements msgrelay.DeadLetterStore in memory.
type DeadLetterStore struct {
	mu      sync.Mutex
	entries map[string]model.DeadLetter
}

// NewDeadLetterStore creates an empty in-memory dead-letter store.
func NewDeadLetterStore() *DeadLetterStore {
	return &DeadLetterStore{entries: make(map[string]model.DeadLetter)}
}

// Save creates or replaces the entry keyed by d.ID.
func (s *DeadLetterStore) Save(_ context.Context, d model.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[d.ID] = d
	return nil
}

// Load returns all entries.
func (s *DeadLetterStore) Load(_ context.Context) ([]model.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.DeadLetter, 0, len(s.entries))
	for _, d := range s.entries {
		out = append(out, d)
	}
	return out, nil
}

// Remove deletes the entry keyed by id.
func (s *DeadLetterStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// Clear deletes all entries.
func (s *DeadLetterStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]model.DeadLetter)
	return nil
}

// Len returns the number of stored entries.
func (s *DeadLetterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
