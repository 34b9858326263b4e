package cache

import (
	"sync"
	"sync/atomic"
)

// ObjectPool hands out reusable objects to cut allocation churn for
// short-lived records. Unlike sync.Pool it is bounded, deterministic and
// always runs reset before an object is handed out again.
type ObjectPool[T any] struct {
	name    string
	create  func() T
	reset   func(T)
	maxSize int

	free  []T
	mutex sync.Mutex

	created atomic.Uint64
	reused  atomic.Uint64
	dropped atomic.Uint64
}

// ObjectPoolStats holds counters for an ObjectPool
type ObjectPoolStats struct {
	Name    string `json:"name"`
	Pooled  int    `json:"pooled"`
	MaxSize int    `json:"max_size"`
	Created uint64 `json:"created"`
	Reused  uint64 `json:"reused"`
	Dropped uint64 `json:"dropped"`
}

// NewObjectPool creates a pool. create and reset are required and maxSize must be positive.
// reset must clear every piece of mutable state so a reused object carries nothing over.
func NewObjectPool[T any](name string, create func() T, reset func(T), maxSize int) (*ObjectPool[T], error) {
	if create == nil {
		return nil, configError("object_pool", "create", "factory function is required")
	}
	if reset == nil {
		return nil, configError("object_pool", "reset", "reset function is required")
	}
	if maxSize <= 0 {
		return nil, configError("object_pool", "max_size", "must be greater than 0")
	}

	return &ObjectPool[T]{
		name:    name,
		create:  create,
		reset:   reset,
		maxSize: maxSize,
		free:    make([]T, 0, maxSize),
	}, nil
}

// Acquire returns a pooled object or a freshly created one
func (p *ObjectPool[T]) Acquire() T {
	p.mutex.Lock()
	n := len(p.free)
	if n == 0 {
		p.mutex.Unlock()
		p.created.Add(1)
		return p.create()
	}
	obj := p.free[n-1]
	var zero T
	p.free[n-1] = zero
	p.free = p.free[:n-1]
	p.mutex.Unlock()

	p.reused.Add(1)
	return obj
}

// Release resets obj and keeps it for reuse. When the pool is full the
// object is dropped.
func (p *ObjectPool[T]) Release(obj T) {
	p.reset(obj)

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if len(p.free) >= p.maxSize {
		p.dropped.Add(1)
		return
	}
	p.free = append(p.free, obj)
}

// Clear drops every pooled object
func (p *ObjectPool[T]) Clear() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	clear(p.free)
	p.free = p.free[:0]
}

// Len returns the number of idle pooled objects
func (p *ObjectPool[T]) Len() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.free)
}

// Stats returns pool counters
func (p *ObjectPool[T]) Stats() ObjectPoolStats {
	return ObjectPoolStats{
		Name:    p.name,
		Pooled:  p.Len(),
		MaxSize: p.maxSize,
		Created: p.created.Load(),
		Reused:  p.reused.Load(),
		Dropped: p.dropped.Load(),
	}
}
