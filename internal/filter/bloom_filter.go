package filter

import (
	"math"
	"math/bits"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// BloomFilter implements a classic Bloom filter over an m-bit array with k hash functions.
//
// Known constraint: there is no Delete. Clearing a bit could erase another
// item's bit and introduce false negatives, so items are only removed by Clear.
//
// The hash family is not collision resistant. The filter is a cache-admission
// hint and must not be used where an adversary chooses the keys.
type BloomFilter struct {
	name         string
	hashFunction string
	words        []uint64 // bit array, len = ceil(m/64)
	m            uint64
	k            uint32
	positions    func(key []byte, visit func(pos uint64) bool) bool

	items     uint64 // atomic
	addOps    uint64
	lookupOps uint64
	negatives uint64
	clearOps  uint64

	createdAt    time.Time
	lastModified time.Time

	mutex sync.RWMutex
}

// NewBloomFilter creates a Bloom filter from config. Bits/HashCount take
// precedence; otherwise they are derived from ExpectedItems and FalsePositiveRate.
func NewBloomFilter(config *FilterConfig) (*BloomFilter, error) {
	if config == nil {
		return nil, invalidConfig("config is nil")
	}

	m, k := config.Bits, config.HashCount
	if m == 0 && k == 0 {
		if config.ExpectedItems == 0 {
			return nil, invalidConfig("either bits/hash_count or expected_items must be set")
		}
		if config.FalsePositiveRate <= 0 || config.FalsePositiveRate >= 1 {
			return nil, invalidConfig("false_positive_rate must be between 0 and 1")
		}
		m, k = OptimalParameters(config.ExpectedItems, config.FalsePositiveRate)
	}
	if m == 0 {
		return nil, invalidConfig("bits must be greater than 0")
	}
	if k == 0 {
		return nil, invalidConfig("hash_count must be greater than 0")
	}

	hashFunction := config.HashFunction
	if hashFunction == "" {
		hashFunction = HashXXHash
	}

	now := time.Now()
	bf := &BloomFilter{
		name:         config.Name,
		hashFunction: hashFunction,
		words:        make([]uint64, (m+63)/64),
		m:            m,
		k:            k,
		createdAt:    now,
		lastModified: now,
	}

	switch hashFunction {
	case HashXXHash:
		bf.positions = bf.xxhashPositions
	case HashMurmur3:
		bf.positions = bf.murmur3Positions
	default:
		return nil, invalidConfig("unsupported hash_function: " + hashFunction)
	}

	return bf, nil
}

// NewBloomFilterForCapacity sizes a filter for expectedItems at false positive rate fpRate.
func NewBloomFilterForCapacity(name string, expectedItems uint64, fpRate float64) (*BloomFilter, error) {
	return NewBloomFilter(&FilterConfig{
		Name:              name,
		ExpectedItems:     expectedItems,
		FalsePositiveRate: fpRate,
		HashFunction:      HashXXHash,
	})
}

// OptimalParameters returns m = -n·ln(p)/ln(2)² and k = (m/n)·ln(2).
func OptimalParameters(n uint64, p float64) (uint64, uint32) {
	m := math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2))
	k := math.Round(m / float64(n) * math.Ln2)
	if k < 1 {
		k = 1
	}
	return uint64(m), uint32(k)
}

// Add sets the k bits for key
func (bf *BloomFilter) Add(key []byte) {
	atomic.AddUint64(&bf.addOps, 1)

	bf.mutex.Lock()
	defer bf.mutex.Unlock()

	bf.positions(key, func(pos uint64) bool {
		bf.words[pos>>6] |= 1 << (pos & 63)
		return true
	})
	atomic.AddUint64(&bf.items, 1)
	bf.lastModified = time.Now()
}

// Contains reports whether all k bits for key are set
func (bf *BloomFilter) Contains(key []byte) bool {
	atomic.AddUint64(&bf.lookupOps, 1)

	bf.mutex.RLock()
	defer bf.mutex.RUnlock()

	found := bf.positions(key, func(pos uint64) bool {
		return bf.words[pos>>6]&(1<<(pos&63)) != 0
	})
	if !found {
		atomic.AddUint64(&bf.negatives, 1)
	}
	return found
}

// Clear resets every bit
func (bf *BloomFilter) Clear() {
	atomic.AddUint64(&bf.clearOps, 1)

	bf.mutex.Lock()
	defer bf.mutex.Unlock()

	clear(bf.words)
	atomic.StoreUint64(&bf.items, 0)
	bf.lastModified = time.Now()
}

// Count returns the number of Add calls since the last Clear
func (bf *BloomFilter) Count() uint64 {
	return atomic.LoadUint64(&bf.items)
}

// Bits returns m
func (bf *BloomFilter) Bits() uint64 {
	return bf.m
}

// HashCount returns k
func (bf *BloomFilter) HashCount() uint32 {
	return bf.k
}

// EstimatedFalsePositiveRate returns (1 - e^(-kn/m))^k
func (bf *BloomFilter) EstimatedFalsePositiveRate() float64 {
	n := float64(atomic.LoadUint64(&bf.items))
	k := float64(bf.k)
	return math.Pow(1-math.Exp(-k*n/float64(bf.m)), k)
}

// GetStats returns detailed statistics about the filter
func (bf *BloomFilter) GetStats() *FilterStats {
	bf.mutex.RLock()
	defer bf.mutex.RUnlock()

	var set uint64
	for _, w := range bf.words {
		set += uint64(bits.OnesCount64(w))
	}

	return &FilterStats{
		Name:              bf.name,
		HashFunction:      bf.hashFunction,
		Bits:              bf.m,
		HashCount:         bf.k,
		Items:             atomic.LoadUint64(&bf.items),
		BitsSet:           set,
		FalsePositiveRate: bf.EstimatedFalsePositiveRate(),
		MemoryUsage:       uint64(len(bf.words))*8 + uint64(unsafe.Sizeof(*bf)),
		AddOperations:     atomic.LoadUint64(&bf.addOps),
		LookupOperations:  atomic.LoadUint64(&bf.lookupOps),
		NegativeLookups:   atomic.LoadUint64(&bf.negatives),
		ClearOperations:   atomic.LoadUint64(&bf.clearOps),
		CreatedAt:         bf.createdAt,
		LastModified:      bf.lastModified,
	}
}

// xxhashPositions derives k positions from one 64-bit xxHash by double
// hashing: g_i = h1 + i·h2 (mod m). h2 is forced odd so it never degenerates to 0.
func (bf *BloomFilter) xxhashPositions(key []byte, visit func(pos uint64) bool) bool {
	h := xxhash.Sum64(key)
	h1 := h
	h2 := bits.RotateLeft64(h, 32) | 1

	for i := uint64(0); i < uint64(bf.k); i++ {
		if !visit((h1 + i*h2) % bf.m) {
			return false
		}
	}
	return true
}

// murmur3Positions runs murmur3 once per hash function with k distinct seeds
func (bf *BloomFilter) murmur3Positions(key []byte, visit func(pos uint64) bool) bool {
	for i := uint32(0); i < bf.k; i++ {
		seed := i*0x9e3779b9 + 0x7f4a7c15
		if !visit(uint64(murmur3.Sum32WithSeed(key, seed)) % bf.m) {
			return false
		}
	}
	return true
}
