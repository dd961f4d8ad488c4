// Package memstore provides in-memory implementations of
// triage.HistoryStore and triage.SessionStore.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/arogyalabs/sahay/internal/triage"
)

// HistoryStore keeps per-patient history in memory. Appends for the same
// patient serialize on a per-patient lock so concurrent analyses cannot
// lose updates; different patients never contend.
type HistoryStore struct {
	mu       sync.Mutex // guards the patients map, not entry slices
	patients map[string]*patientHistory
	now      func() time.Time
}

type patientHistory struct {
	mu      sync.Mutex
	entries []triage.HistoryEntry
}

// NewHistoryStore initializes an empty in-memory history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		patients: make(map[string]*patientHistory),
		now:      time.Now,
	}
}

func (s *HistoryStore) patient(patientID string) *patientHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[patientID]
	if !ok {
		p = &patientHistory{}
		s.patients[patientID] = p
	}
	return p
}

// History returns copies of the patient's entries no older than maxAge,
// oldest first.
func (s *HistoryStore) History(_ context.Context, patientID string, maxAge time.Duration) ([]triage.HistoryEntry, error) {
	p := s.patient(patientID)
	cutoff := s.now().Add(-maxAge)

	p.mu.Lock()
	defer p.mu.Unlock()

	var out []triage.HistoryEntry
	for _, e := range p.entries {
		if e.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Append stores the entry and prunes everything older than the retention
// window in the same critical section.
func (s *HistoryStore) Append(_ context.Context, patientID string, entry triage.HistoryEntry) error {
	p := s.patient(patientID)
	cutoff := s.now().Add(-triage.HistoryWindow)

	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.entries[:0]
	for _, e := range p.entries {
		if !e.CreatedAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	p.entries = append(kept, entry)
	return nil
}

// SessionStore keeps finalized decisions in memory. Suitable for
// dev/testing.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*triage.Decision
}

// NewSessionStore initializes an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*triage.Decision)}
}

// Save stores a copy of the decision keyed by its session id.
func (s *SessionStore) Save(_ context.Context, d *triage.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.sessions[d.SessionID] = &cp
	return nil
}

// Get retrieves a decision by session id. Returns a copy.
func (s *SessionStore) Get(_ context.Context, sessionID string) (*triage.Decision, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.sessions[sessionID]
	if !ok {
		return nil, false, nil
	}
	cp := *d
	return &cp, true, nil
}
