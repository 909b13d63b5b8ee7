// Package cache provides short-lived request caches for the chat read path.
package cache

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultMaxItems bounds a cache when no capacity is configured.
	DefaultMaxItems = 1000
	// DefaultTTL is used when a cache is built without a TTL.
	DefaultTTL = time.Minute
)

// Options configures a TTLCache.
type Options struct {
	// TTL is the lifetime of an entry after Set.
	TTL time.Duration
	// MaxItems caps the number of entries. The least recently used entry is evicted first.
	MaxItems int
	// SweepInterval is the minimum time between two inline sweeps. Defaults to TTL.
	SweepInterval time.Duration
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// TTLCache is an LRU cache whose entries expire after a fixed TTL.
// Expired entries are misses on read and are removed by an inline sweep
// that runs on access once SweepInterval has elapsed since the last one.
type TTLCache[K comparable, V any] struct {
	ttl           time.Duration
	maxItems      int
	sweepInterval time.Duration
	now           func() time.Time

	mu        sync.Mutex
	items     map[K]*entry[K, V]
	order     *list.List // front is most recently used
	lastSweep time.Time
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
	element   *list.Element
}

// NewTTLCache creates a new cache.
func NewTTLCache[K comparable, V any](opts Options) *TTLCache[K, V] {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = opts.TTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &TTLCache[K, V]{
		ttl:           opts.TTL,
		maxItems:      opts.MaxItems,
		sweepInterval: opts.SweepInterval,
		now:           opts.Now,
		items:         make(map[K]*entry[K, V]),
		order:         list.New(),
		lastSweep:     opts.Now(),
	}
}

// Get returns the value for key. An expired entry is a miss.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.maybeSweep(now)

	var zero V
	e, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if !now.Before(e.expiresAt) {
		c.removeEntry(e)
		return zero, false
	}

	c.order.MoveToFront(e.element)
	return e.value, true
}

// Set stores value under key. The last writer wins.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.maybeSweep(now)

	if e, ok := c.items[key]; ok {
		e.value = value
		e.expiresAt = now.Add(c.ttl)
		c.order.MoveToFront(e.element)
		return
	}

	for len(c.items) >= c.maxItems {
		c.evictOldest()
	}

	e := &entry[K, V]{
		key:       key,
		value:     value,
		expiresAt: now.Add(c.ttl),
	}
	e.element = c.order.PushFront(e)
	c.items[key] = e
}

// Delete removes key from the cache.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		c.removeEntry(e)
	}
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Sweep removes all expired entries and returns how many were removed.
func (c *TTLCache[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweep(c.now())
}

// maybeSweep sweeps when the sweep interval has elapsed.
// Must be called with lock held.
func (c *TTLCache[K, V]) maybeSweep(now time.Time) {
	if now.Sub(c.lastSweep) < c.sweepInterval {
		return
	}
	c.sweep(now)
}

// Must be called with lock held.
func (c *TTLCache[K, V]) sweep(now time.Time) int {
	c.lastSweep = now

	var expired []*entry[K, V]
	for _, e := range c.items {
		if !now.Before(e.expiresAt) {
			expired = append(expired, e)
		}
	}
	for _, e := range expired {
		c.removeEntry(e)
	}
	return len(expired)
}

// evictOldest removes the least recently used entry.
// Must be called with lock held.
func (c *TTLCache[K, V]) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	c.removeEntry(oldest.Value.(*entry[K, V]))
}

// Must be called with lock held.
func (c *TTLCache[K, V]) removeEntry(e *entry[K, V]) {
	c.order.Remove(e.element)
	delete(c.items, e.key)
}
