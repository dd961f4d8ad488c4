package advisory

import (
	"context"
	"fmt"
	"sync"

	"github.com/arogyalabs/sahay/internal/report"
	"github.com/arogyalabs/sahay/internal/triage"
)

// Cache stores post-processed assessments keyed by CacheKey. Entries are
// immutable once written; implementations only need per-key atomicity.
type Cache interface {
	Get(ctx context.Context, key string) (*triage.Assessment, bool, error)
	Set(ctx context.Context, key string, a *triage.Assessment) error
}

// CacheKey identifies an assessment by exact symptom text plus the
// profile fields that shape the prompt.
func CacheKey(symptoms string, profile report.Profile) string {
	return fmt.Sprintf("%s|%d|%s", symptoms, profile.Age, profile.Gender)
}

// MapCache is the in-process cache: unbounded, never invalidated, alive
// for the process lifetime.
type MapCache struct {
	mu      sync.RWMutex
	entries map[string]*triage.Assessment
}

// NewMapCache initializes an empty in-process cache.
func NewMapCache() *MapCache {
	return &MapCache{entries: make(map[string]*triage.Assessment)}
}

// Get returns a copy of the cached assessment.
func (c *MapCache) Get(_ context.Context, key string) (*triage.Assessment, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	cp := *a
	return &cp, true, nil
}

// Set stores a copy of the assessment.
func (c *MapCache) Set(_ context.Context, key string, a *triage.Assessment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *a
	c.entries[key] = &cp
	return nil
}
