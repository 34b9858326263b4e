// Package filter provides probabilistic data structures for cheap negative lookups.
// A Bloom filter answers "definitely not seen" or "possibly seen"; it never
// forgets an added item and cannot delete one.
package filter

import (
	"fmt"
	"time"

	"walletcache/internal/cache"
)

// MembershipFilter defines the interface for probabilistic membership testing.
// Implementations guarantee no false negatives but may have false positives.
type MembershipFilter interface {
	// Add inserts a key into the filter.
	Add(key []byte)

	// Contains checks if a key might exist in the filter.
	// Returns false only if the key was definitely never added.
	Contains(key []byte) bool

	// Clear removes all items from the filter, resetting it to empty state.
	Clear()

	// Count returns the number of Add calls since the last Clear.
	Count() uint64

	// EstimatedFalsePositiveRate returns (1 - e^(-kn/m))^k for the current n.
	EstimatedFalsePositiveRate() float64

	// GetStats returns detailed statistics about the filter.
	GetStats() *FilterStats
}

// FilterStats contains statistics about filter state and usage.
type FilterStats struct {
	Name              string    `json:"name"`
	HashFunction      string    `json:"hash_function"`
	Bits              uint64    `json:"bits"`
	HashCount         uint32    `json:"hash_count"`
	Items             uint64    `json:"items"`
	BitsSet           uint64    `json:"bits_set"`
	FalsePositiveRate float64   `json:"false_positive_rate"`
	MemoryUsage       uint64    `json:"memory_usage"`
	AddOperations     uint64    `json:"add_operations"`
	LookupOperations  uint64    `json:"lookup_operations"`
	NegativeLookups   uint64    `json:"negative_lookups"`
	ClearOperations   uint64    `json:"clear_operations"`
	CreatedAt         time.Time `json:"created_at"`
	LastModified      time.Time `json:"last_modified"`
}

// FilterConfig contains configuration parameters for filter creation.
// Either Bits and HashCount are set explicitly, or they are derived from
// ExpectedItems and FalsePositiveRate.
type FilterConfig struct {
	Name              string  `yaml:"name"`
	Bits              uint64  `yaml:"bits"`                // m
	HashCount         uint32  `yaml:"hash_count"`          // k
	ExpectedItems     uint64  `yaml:"expected_items"`      // n used for sizing
	FalsePositiveRate float64 `yaml:"false_positive_rate"` // target p used for sizing
	HashFunction      string  `yaml:"hash_function"`       // "xxhash" or "murmur3"
}

// Hash function names
const (
	HashXXHash  = "xxhash"
	HashMurmur3 = "murmur3"
)

// DefaultBloomConfig returns a configuration sized for expectedItems at a 1% false positive rate.
func DefaultBloomConfig(name string, expectedItems uint64) *FilterConfig {
	return &FilterConfig{
		Name:              name,
		ExpectedItems:     expectedItems,
		FalsePositiveRate: 0.01,
		HashFunction:      HashXXHash,
	}
}

// FilterError represents errors that can occur during filter construction.
type FilterError struct {
	Operation string // The operation that failed
	Message   string // Error description
	Cause     error  // Underlying error, if any
}

func (e *FilterError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("filter %s failed: %s (caused by: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("filter %s failed: %s", e.Operation, e.Message)
}

func (e *FilterError) Unwrap() error {
	return e.Cause
}

func invalidConfig(message string) *FilterError {
	return &FilterError{Operation: "create", Message: message, Cause: cache.ErrInvalidConfiguration}
}
