package cache

import (
	"sync"
)

// RingBuffer is a fixed-size FIFO. Pushing into a full buffer overwrites the oldest item.
type RingBuffer[T any] struct {
	items []T
	head  int // index of the oldest item
	count int
	mutex sync.RWMutex
}

// NewRingBuffer creates a ring buffer holding at most capacity items
func NewRingBuffer[T any](capacity int) (*RingBuffer[T], error) {
	if capacity <= 0 {
		return nil, configError("ring_buffer", "capacity", "must be greater than 0")
	}
	return &RingBuffer[T]{items: make([]T, capacity)}, nil
}

// Push appends item, dropping the oldest item when full
func (rb *RingBuffer[T]) Push(item T) {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	capacity := len(rb.items)
	if rb.count == capacity {
		rb.items[rb.head] = item
		rb.head = (rb.head + 1) % capacity
		return
	}
	rb.items[(rb.head+rb.count)%capacity] = item
	rb.count++
}

// Pop removes and returns the oldest item
func (rb *RingBuffer[T]) Pop() (T, bool) {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	var zero T
	if rb.count == 0 {
		return zero, false
	}
	item := rb.items[rb.head]
	rb.items[rb.head] = zero
	rb.head = (rb.head + 1) % len(rb.items)
	rb.count--
	return item, true
}

// Peek returns the oldest item without removing it
func (rb *RingBuffer[T]) Peek() (T, bool) {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	if rb.count == 0 {
		var zero T
		return zero, false
	}
	return rb.items[rb.head], true
}

// Last returns the newest item
func (rb *RingBuffer[T]) Last() (T, bool) {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	if rb.count == 0 {
		var zero T
		return zero, false
	}
	return rb.items[(rb.head+rb.count-1)%len(rb.items)], true
}

// ToSlice returns a copy of the contents, oldest first
func (rb *RingBuffer[T]) ToSlice() []T {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	out := make([]T, rb.count)
	for i := 0; i < rb.count; i++ {
		out[i] = rb.items[(rb.head+i)%len(rb.items)]
	}
	return out
}

// Clear empties the buffer and releases references to stored items
func (rb *RingBuffer[T]) Clear() {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	clear(rb.items)
	rb.head = 0
	rb.count = 0
}

// Len returns the number of stored items
func (rb *RingBuffer[T]) Len() int {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return rb.count
}

// Cap returns the fixed capacity
func (rb *RingBuffer[T]) Cap() int {
	return len(rb.items)
}
