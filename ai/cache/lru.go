// Package cache provides a bounded in-memory LRU with expiry, used to
// memoize routing decisions.
package cache

import (
	"container/list"
	"sync"
	"time"
)

const (
	DefaultCapacity = 1024
	DefaultTTL      = 10 * time.Minute
)

// LRU is a size-bounded, TTL-aware least-recently-used map. Safe for
// concurrent use.
type LRU[K comparable, V any] struct {
	now      func() time.Time
	items    map[K]*list.Element
	order    *list.List
	ttl      time.Duration
	capacity int
	hits     uint64
	misses   uint64
	mu       sync.Mutex
}

type item[K comparable, V any] struct {
	expiresAt time.Time
	key       K
	value     V
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// New creates an LRU. Non-positive arguments select the defaults.
func New[K comparable, V any](capacity int, ttl time.Duration) *LRU[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LRU[K, V]{
		now:      time.Now,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
		ttl:      ttl,
		capacity: capacity,
	}
}

// Get returns the value for key if present and not expired.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	it := el.Value.(*item[K, V])
	if c.now().After(it.expiresAt) {
		c.remove(el)
		c.misses++
		return zero, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return it.value, true
}

// Put stores value under key, evicting the least recently used entry when full.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		it := el.Value.(*item[K, V])
		it.value = value
		it.expiresAt = expires
		c.order.MoveToFront(el)
		return
	}
	for c.order.Len() >= c.capacity {
		c.remove(c.order.Back())
	}
	c.items[key] = c.order.PushFront(&item[K, V]{key: key, value: value, expiresAt: expires})
}

// Delete removes key and reports whether it was present.
func (c *LRU[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if ok {
		c.remove(el)
	}
	return ok
}

// Len returns the number of stored entries, expired ones included.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit and miss counters.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: c.order.Len()}
}

// remove must be called with mu held.
func (c *LRU[K, V]) remove(el *list.Element) {
	it := c.order.Remove(el).(*item[K, V])
	delete(c.items, it.key)
}
