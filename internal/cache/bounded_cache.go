package cache

import (
	"sync"
	"time"
)

// BoundedCacheConfig holds configuration for a BoundedCache
type BoundedCacheConfig[K comparable, V any] struct {
	Name     string
	Capacity int
	// TTL bounds entry lifetime; zero disables expiry.
	TTL time.Duration
	// OnEvict is called for entries removed by capacity, Trim or expiry,
	// never for Delete or Clear. It runs under the cache lock and must not
	// call back into the same cache.
	OnEvict func(key K, value V)
	// Now overrides the clock (tests).
	Now func() time.Time
}

// BoundedCache is a fixed-capacity key/value map with least-recently-used eviction.
// Get and Set are O(1): values live in a map, recency in an EvictionPolicy list.
type BoundedCache[K comparable, V any] struct {
	name     string
	capacity int
	ttl      time.Duration
	onEvict  func(key K, value V)
	now      func() time.Time

	items  map[K]*Entry[K, V]
	policy EvictionPolicy[K, V]
	mutex  sync.Mutex

	hits      uint64
	misses    uint64
	evictions uint64
	expired   uint64
}

// NewBoundedCache creates a new LRU cache. Capacity must be positive.
func NewBoundedCache[K comparable, V any](config BoundedCacheConfig[K, V]) (*BoundedCache[K, V], error) {
	if config.Capacity <= 0 {
		return nil, configError("bounded_cache", "capacity", "must be greater than 0")
	}
	if config.TTL < 0 {
		return nil, configError("bounded_cache", "ttl", "cannot be negative")
	}

	now := config.Now
	if now == nil {
		now = time.Now
	}

	return &BoundedCache[K, V]{
		name:     config.Name,
		capacity: config.Capacity,
		ttl:      config.TTL,
		onEvict:  config.OnEvict,
		now:      now,
		items:    make(map[K]*Entry[K, V], initialSize(config.Capacity)),
		policy:   NewLRUPolicy[K, V](),
	}, nil
}

// Get returns the value for key and marks it most recently used
func (c *BoundedCache[K, V]) Get(key K) (V, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.liveEntry(key)
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}

	entry.AccessedAt = c.now()
	c.policy.OnAccess(entry)
	c.hits++
	return entry.Value, true
}

// Peek returns the value for key without touching recency or statistics
func (c *BoundedCache[K, V]) Peek(key K) (V, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.items[key]
	if !ok || entry.IsExpired(c.now()) {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

// Set inserts or updates key. Inserting a new key into a full cache evicts
// the least recently used key first.
func (c *BoundedCache[K, V]) Set(key K, value V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	if entry, ok := c.items[key]; ok {
		entry.Value = value
		entry.AccessedAt = now
		entry.ExpiresAt = c.expiry(now)
		c.policy.OnAccess(entry)
		return
	}

	if len(c.items) >= c.capacity {
		c.evictOldest()
	}

	entry := &Entry[K, V]{
		Key:        key,
		Value:      value,
		InsertedAt: now,
		AccessedAt: now,
		ExpiresAt:  c.expiry(now),
	}
	c.items[key] = entry
	c.policy.OnInsert(entry)
}

// Has reports whether a live entry exists for key without touching recency
func (c *BoundedCache[K, V]) Has(key K) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, ok := c.liveEntry(key)
	return ok
}

// Delete removes key and reports whether it was present
func (c *BoundedCache[K, V]) Delete(key K) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.items[key]
	if !ok {
		return false
	}
	delete(c.items, key)
	c.policy.OnDelete(entry)
	return true
}

// Clear removes every entry. OnEvict is not invoked.
func (c *BoundedCache[K, V]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[K]*Entry[K, V], initialSize(c.capacity))
	c.policy.Reset()
}

// Size returns the number of stored entries, including expired ones not yet dropped
func (c *BoundedCache[K, V]) Size() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.items)
}

// Capacity returns the configured capacity
func (c *BoundedCache[K, V]) Capacity() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.capacity
}

// Keys returns keys from least to most recently used
func (c *BoundedCache[K, V]) Keys() []K {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.policy.Keys()
}

// Trim evicts least recently used entries until at most n remain.
// Returns the number of evicted entries.
func (c *BoundedCache[K, V]) Trim(n int) int {
	if n < 0 {
		n = 0
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	evicted := 0
	for len(c.items) > n {
		if !c.evictOldest() {
			break
		}
		evicted++
	}
	return evicted
}

// Resize changes the capacity, evicting down to it if needed
func (c *BoundedCache[K, V]) Resize(capacity int) error {
	if capacity <= 0 {
		return configError("bounded_cache", "capacity", "must be greater than 0")
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.capacity = capacity
	for len(c.items) > c.capacity {
		if !c.evictOldest() {
			break
		}
	}
	return nil
}

// PurgeExpired drops every expired entry and returns how many were removed
func (c *BoundedCache[K, V]) PurgeExpired() int {
	if c.ttl == 0 {
		return 0
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	purged := 0
	for key, entry := range c.items {
		if entry.IsExpired(now) {
			c.dropExpired(key, entry)
			purged++
		}
	}
	return purged
}

// Stats returns a snapshot of cache statistics
func (c *BoundedCache[K, V]) Stats() Stats {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return Stats{
		Name:      c.name,
		Policy:    c.policy.PolicyName(),
		Size:      len(c.items),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
	}
}

// liveEntry returns the entry for key, dropping it if expired (caller must hold lock)
func (c *BoundedCache[K, V]) liveEntry(key K) (*Entry[K, V], bool) {
	entry, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if entry.IsExpired(c.now()) {
		c.dropExpired(key, entry)
		return nil, false
	}
	return entry, true
}

func (c *BoundedCache[K, V]) dropExpired(key K, entry *Entry[K, V]) {
	delete(c.items, key)
	c.policy.OnDelete(entry)
	c.expired++
	if c.onEvict != nil {
		c.onEvict(entry.Key, entry.Value)
	}
}

// evictOldest removes the least recently used entry (caller must hold lock)
func (c *BoundedCache[K, V]) evictOldest() bool {
	candidate := c.policy.NextEvictionCandidate()
	if candidate == nil {
		return false
	}

	delete(c.items, candidate.Key)
	c.policy.OnDelete(candidate)
	c.evictions++
	if c.onEvict != nil {
		c.onEvict(candidate.Key, candidate.Value)
	}
	return true
}

// initialSize caps map preallocation for large capacities
func initialSize(capacity int) int {
	if capacity > 1024 {
		return 1024
	}
	return capacity
}

func (c *BoundedCache[K, V]) expiry(now time.Time) time.Time {
	if c.ttl == 0 {
		return time.Time{}
	}
	return now.Add(c.ttl)
}
