// Package memstore provides an in-memory implementation of outbreak.Store.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/arogyalabs/sahay/internal/outbreak"
)

// Store holds outbreak events in memory. Append-only, retained for the
// process lifetime. Suitable for dev/testing and single-instance setups.
type Store struct {
	mu     sync.RWMutex
	events []outbreak.Event
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{}
}

// Insert appends a copy of the event.
func (s *Store) Insert(_ context.Context, e outbreak.Event) error {
	cp := e
	cp.Tokens = append([]string(nil), e.Tokens...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, cp)
	return nil
}

// QueryRange returns events inside the box created at or after since.
func (s *Store) QueryRange(_ context.Context, box outbreak.BBox, since time.Time) ([]outbreak.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []outbreak.Event
	for _, e := range s.events {
		if e.CreatedAt.Before(since) || !box.Contains(e.Lat, e.Lng) {
			continue
		}
		cp := e
		cp.Tokens = append([]string(nil), e.Tokens...)
		out = append(out, cp)
	}
	return out, nil
}

// Len reports the corpus size.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
