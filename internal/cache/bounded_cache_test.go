package cache

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, capacity int) *BoundedCache[string, int] {
	t.Helper()
	c, err := NewBoundedCache(BoundedCacheConfig[string, int]{Name: "test", Capacity: capacity})
	require.NoError(t, err)
	return c
}

func TestBoundedCache_InvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		_, err := NewBoundedCache(BoundedCacheConfig[string, int]{Capacity: capacity})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidConfiguration))

		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "capacity", cfgErr.Field)
	}
}

func TestBoundedCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newTestCache(t, 2)

	c.Set("a", 1)
	c.Set("b", 2)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.Set("c", 3)

	assert.True(t, c.Has("a"))
	assert.True(t, c.Has("c"))
	assert.False(t, c.Has("b"))
	assert.Equal(t, 2, c.Size())
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestBoundedCache_UpdateRefreshesRecency(t *testing.T) {
	c := newTestCache(t, 2)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)
	assert.Equal(t, 2, c.Size())

	c.Set("c", 3)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
	assert.False(t, c.Has("b"))
}

func TestBoundedCache_MissIsAbsent(t *testing.T) {
	c := newTestCache(t, 4)

	v, ok := c.Get("missing")
	assert.False(t, ok)
	assert.Zero(t, v)
	assert.False(t, c.Delete("missing"))
	assert.Equal(t, uint64(1), c.Stats().Misses)
}

func TestBoundedCache_DeleteAndClear(t *testing.T) {
	c := newTestCache(t, 4)
	c.Set("a", 1)
	c.Set("b", 2)

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Has("a"))
	assert.Equal(t, []string{"b"}, c.Keys())

	c.Clear()
	assert.Equal(t, 0, c.Size())
	assert.Empty(t, c.Keys())

	c.Set("x", 9)
	assert.Equal(t, []string{"x"}, c.Keys())
}

func TestBoundedCache_SizeNeverExceedsCapacity(t *testing.T) {
	const capacity = 16
	c := newTestCache(t, capacity)

	// reference model: slice of keys, least recently used first
	var model []string
	touch := func(key string) {
		for i, k := range model {
			if k == key {
				model = append(model[:i], model[i+1:]...)
				break
			}
		}
		model = append(model, key)
	}

	for i := 0; i < 2000; i++ {
		key := fmt.Sprintf("k%d", (i*7919)%41)
		if i%3 == 0 {
			if _, ok := c.Get(key); ok {
				touch(key)
			}
			continue
		}
		exists := c.Has(key)
		c.Set(key, i)
		if !exists && len(model) == capacity {
			model = model[1:]
		}
		touch(key)

		require.LessOrEqual(t, c.Size(), capacity)
		require.Equal(t, model, c.Keys())
	}
}

func TestBoundedCache_OnEvictAndTrim(t *testing.T) {
	var evicted []string
	c, err := NewBoundedCache(BoundedCacheConfig[string, int]{
		Capacity: 3,
		OnEvict:  func(key string, _ int) { evicted = append(evicted, key) },
	})
	require.NoError(t, err)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	c.Set("d", 4)
	assert.Equal(t, []string{"a"}, evicted)

	assert.Equal(t, 2, c.Trim(1))
	assert.Equal(t, []string{"a", "b", "c"}, evicted)
	assert.Equal(t, []string{"d"}, c.Keys())

	// explicit removal does not notify
	c.Delete("d")
	c.Set("e", 5)
	c.Clear()
	assert.Len(t, evicted, 3)
}

func TestBoundedCache_TTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c, err := NewBoundedCache(BoundedCacheConfig[string, int]{
		Capacity: 4,
		TTL:      time.Minute,
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)

	c.Set("a", 1)
	now = now.Add(30 * time.Second)
	c.Set("b", 2)

	_, ok := c.Get("a")
	assert.True(t, ok)

	now = now.Add(45 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok, "a should have expired")
	assert.True(t, c.Has("b"))

	now = now.Add(time.Minute)
	assert.Equal(t, 1, c.PurgeExpired())
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, uint64(2), c.Stats().Expired)
}

func TestBoundedCache_Resize(t *testing.T) {
	c := newTestCache(t, 4)
	for i, k := range []string{"a", "b", "c", "d"} {
		c.Set(k, i)
	}

	require.NoError(t, c.Resize(2))
	assert.Equal(t, []string{"c", "d"}, c.Keys())
	assert.Equal(t, 2, c.Capacity())
	assert.ErrorIs(t, c.Resize(0), ErrInvalidConfiguration)
}

func TestBoundedCache_PeekDoesNotTouchRecency(t *testing.T) {
	c := newTestCache(t, 2)
	c.Set("a", 1)
	c.Set("b", 2)

	v, ok := c.Peek("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.Set("c", 3)
	assert.False(t, c.Has("a"))
}
