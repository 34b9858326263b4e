package cache

import (
	"time"
)

// Entry represents a cache entry with metadata
type Entry[K comparable, V any] struct {
	Key        K
	Value      V
	InsertedAt time.Time
	AccessedAt time.Time
	ExpiresAt  time.Time // zero means no expiry
}

// IsExpired checks if the entry has expired at the given instant
func (e *Entry[K, V]) IsExpired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// EvictionPolicy tracks access order for a BoundedCache.
// Every method must be O(1); the cache holds its own lock while calling them.
type EvictionPolicy[K comparable, V any] interface {
	OnAccess(entry *Entry[K, V]) // Update access patterns
	OnInsert(entry *Entry[K, V]) // Handle new entries
	OnDelete(entry *Entry[K, V]) // Clean up tracking

	// Get next eviction candidate - MUST be O(1)
	NextEvictionCandidate() *Entry[K, V]

	// Keys returns tracked keys in eviction order (next candidate first)
	Keys() []K

	// Reset drops all tracking state
	Reset()

	// Policy metadata
	PolicyName() string
}

// Stats provides metrics about cache usage
type Stats struct {
	Name      string `json:"name"`
	Policy    string `json:"policy"`
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Expired   uint64 `json:"expired"`
}

// HitRate calculates the cache hit rate as a percentage
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}
	return float64(s.Hits) / float64(total) * 100.0
}
