package triage

import (
	"context"
	"time"
)

// HistoryWindow bounds how much per-patient history is retained and
// consulted for trend analysis.
const HistoryWindow = 7 * 24 * time.Hour

// HistoryStore is the persistence interface for per-patient severity
// history. Implementations must serialize Append calls for the same
// patient (read-modify-write with pruning) while keeping different
// patients independent.
type HistoryStore interface {
	// History returns the entries for a patient no older than maxAge,
	// oldest first.
	History(ctx context.Context, patientID string, maxAge time.Duration) ([]HistoryEntry, error)
	// Append stores a new entry and prunes entries older than
	// HistoryWindow in the same write.
	Append(ctx context.Context, patientID string, entry HistoryEntry) error
}

// SessionStore persists finalized triage decisions. Save failures are
// swallowed by the service; the decision is still returned to the caller.
type SessionStore interface {
	Save(ctx context.Context, d *Decision) error
	Get(ctx context.Context, sessionID string) (*Decision, bool, error)
}
