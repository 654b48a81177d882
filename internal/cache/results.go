package cache

import "sync"

type entry[V any] struct {
	version uint64
	value   V
}

// Versioned maps keys to values computed from a data source at a known version.
// A lookup with a newer version misses, so callers recompute after a mutation.
type Versioned[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
}

// NewVersioned creates an empty cache
func NewVersioned[K comparable, V any]() *Versioned[K, V] {
	return &Versioned[K, V]{
		entries: make(map[K]entry[V]),
	}
}

// Get returns the value stored for key if it was computed at version
func (c *Versioned[K, V]) Get(key K, version uint64) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || e.version != version {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores the value computed for key at version
func (c *Versioned[K, V]) Set(key K, version uint64, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{version: version, value: value}
}

// Delete removes a key
func (c *Versioned[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of stored entries, stale or not
func (c *Versioned[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset clears all entries
func (c *Versioned[K, V]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
}
