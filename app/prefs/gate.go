package prefs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/go-pkgz/lgr"
)

// Gate flushes preferences to the store exactly once. The first Flush call persists,
// any later call is a no-op, even if the first one failed.
type Gate struct {
	store   Store
	mu      sync.Mutex
	flushed bool
}

// NewGate makes gate for store
func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

// Flush upserts every category of p. Errors of all categories are joined, a failed category
// doesn't prevent others from being written.
func (g *Gate) Flush(ctx context.Context, p Preferences) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.flushed {
		log.Printf("[DEBUG] preferences already flushed, skip")
		return nil
	}
	g.flushed = true

	var errs []error
	for _, category := range p.Categories() {
		if err := g.store.Upsert(ctx, category, p.Category(category)); err != nil {
			errs = append(errs, fmt.Errorf("can't flush %s preferences: %w", category, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	log.Printf("[INFO] preferences flushed, %d keys", len(p))
	return nil
}

// Flushed reports if Flush was called
func (g *Gate) Flushed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.flushed
}
