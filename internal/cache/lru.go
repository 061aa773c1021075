package cache

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUWithTTL is a size-bounded, thread-safe LRU cache whose entries expire
// after a fixed TTL. A zero TTL disables expiry.
type LRUWithTTL[K comparable, V any] struct {
	cache   *lru.Cache[K, *ttlEntry[V]]
	ttl     time.Duration
	mu      sync.Mutex
	hits    atomic.Uint64
	misses  atomic.Uint64
	evicted atomic.Uint64
}

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewLRUWithTTL creates a cache holding at most size entries
func NewLRUWithTTL[K comparable, V any](size int, ttl time.Duration) (*LRUWithTTL[K, V], error) {
	cache, err := lru.New[K, *ttlEntry[V]](size)
	if err != nil {
		return nil, err
	}
	return &LRUWithTTL[K, V]{cache: cache, ttl: ttl}, nil
}

// Get returns the value and true if present and not expired
func (c *LRUWithTTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache.Get(key)
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.cache.Remove(key)
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	return entry.value, true
}

// Set stores a value, evicting the least recently used entry when full
func (c *LRUWithTTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}
	if c.cache.Add(key, &ttlEntry[V]{value: value, expiresAt: expiresAt}) {
		c.evicted.Add(1)
	}
}

// Delete removes a key
func (c *LRUWithTTL[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(key)
}

// Purge removes every entry
func (c *LRUWithTTL[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}

// Len returns the number of entries, including expired ones not yet removed
func (c *LRUWithTTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

// Stats reports cache effectiveness
type Stats struct {
	Hits    uint64
	Misses  uint64
	Evicted uint64
	Size    int
}

// HitRate is hits over lookups, 0 before the first lookup
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns a snapshot of the counters
func (c *LRUWithTTL[K, V]) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Evicted: c.evicted.Load(),
		Size:    c.Len(),
	}
}
