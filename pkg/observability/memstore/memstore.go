// Package memstore is an in-memory observability.EventStore used by
// tests and as cmd/gateway's default when no external store is
// configured. The durable, Postgres-backed store this stands in for is
// out of scope for this repository.
package memstore

import (
	"sync"

	"github.com/luthien/gateway/pkg/observability"
)

// Store accumulates events in memory in a single slice, in append order;
// ForTransaction filters it by transaction id.
type Store struct {
	mu     sync.Mutex
	events []observability.Event
}

// New creates an empty Store.
func New() *Store {
	return &Store{}
}

// Append implements observability.EventStore.
func (s *Store) Append(e observability.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// All returns a snapshot of every event appended so far, in append order.
func (s *Store) All() []observability.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]observability.Event, len(s.events))
	copy(out, s.events)
	return out
}

// ForTransaction returns the events recorded for a single transaction id,
// in append order.
func (s *Store) ForTransaction(id string) []observability.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []observability.Event
	for _, e := range s.events {
		if e.TransactionID == id {
			out = append(out, e)
		}
	}
	return out
}
