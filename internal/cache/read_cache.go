// Package cache holds the process-wide read view of the vehicle set.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/Mossos12/AlemAuto/internal/model"
	"github.com/Mossos12/AlemAuto/internal/storage"
)

// ReadCache caches the last successful LoadAll. Get serves the cached
// value while it is younger than the TTL (TTL 0 = no expiry) and has not
// been invalidated; otherwise it reloads through the adapter. The store
// invalidates synchronously after every successful write, so readers
// never observe state older than a completed mutation.
type ReadCache struct {
	adapter storage.Adapter
	ttl     time.Duration

	mu       sync.RWMutex
	vehicles []model.Vehicle
	loadedAt time.Time
	valid    bool

	now func() time.Time // stubbed in tests
}

func New(adapter storage.Adapter, ttl time.Duration) *ReadCache {
	return &ReadCache{adapter: adapter, ttl: ttl, now: time.Now}
}

// Get returns the current record set. Callers receive a copy of the
// slice; records are value types, so mutating the result never leaks
// back into the cache.
func (c *ReadCache) Get(ctx context.Context) ([]model.Vehicle, error) {
	c.mu.RLock()
	if c.fresh() {
		out := make([]model.Vehicle, len(c.vehicles))
		copy(out, c.vehicles)
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fresh() { // another reader refreshed while we waited
		out := make([]model.Vehicle, len(c.vehicles))
		copy(out, c.vehicles)
		return out, nil
	}

	vehicles, err := c.adapter.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	c.vehicles = vehicles
	c.loadedAt = c.now()
	c.valid = true

	out := make([]model.Vehicle, len(vehicles))
	copy(out, vehicles)
	return out, nil
}

// Invalidate forces the next Get to reload from the adapter.
func (c *ReadCache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

// fresh must be called with at least the read lock held.
func (c *ReadCache) fresh() bool {
	if !c.valid {
		return false
	}
	if c.ttl <= 0 {
		return true
	}
	return c.now().Sub(c.loadedAt) < c.ttl
}
