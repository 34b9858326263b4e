package cache

import (
	"container/list"
)

// LRUPolicy implements strict least-recently-used ordering.
// The list front is the least recently used entry, the back the most recent.
type LRUPolicy[K comparable, V any] struct {
	order    *list.List
	elements map[K]*list.Element
}

// NewLRUPolicy creates an empty LRU policy
func NewLRUPolicy[K comparable, V any]() *LRUPolicy[K, V] {
	return &LRUPolicy[K, V]{
		order:    list.New(),
		elements: make(map[K]*list.Element),
	}
}

// OnAccess moves the entry to the most-recently-used end - O(1)
func (p *LRUPolicy[K, V]) OnAccess(entry *Entry[K, V]) {
	if elem, ok := p.elements[entry.Key]; ok {
		elem.Value = entry
		p.order.MoveToBack(elem)
	}
}

// OnInsert appends a new entry at the most-recently-used end - O(1)
func (p *LRUPolicy[K, V]) OnInsert(entry *Entry[K, V]) {
	if elem, ok := p.elements[entry.Key]; ok {
		elem.Value = entry
		p.order.MoveToBack(elem)
		return
	}
	p.elements[entry.Key] = p.order.PushBack(entry)
}

// OnDelete forgets the entry - O(1)
func (p *LRUPolicy[K, V]) OnDelete(entry *Entry[K, V]) {
	if elem, ok := p.elements[entry.Key]; ok {
		p.order.Remove(elem)
		delete(p.elements, entry.Key)
	}
}

// NextEvictionCandidate returns the least recently used entry - O(1)
func (p *LRUPolicy[K, V]) NextEvictionCandidate() *Entry[K, V] {
	front := p.order.Front()
	if front == nil {
		return nil
	}
	return front.Value.(*Entry[K, V])
}

// Keys returns keys from least to most recently used
func (p *LRUPolicy[K, V]) Keys() []K {
	keys := make([]K, 0, p.order.Len())
	for elem := p.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*Entry[K, V]).Key)
	}
	return keys
}

// Reset drops all tracking state
func (p *LRUPolicy[K, V]) Reset() {
	p.order.Init()
	p.elements = make(map[K]*list.Element)
}

// PolicyName returns the name of this eviction policy
func (p *LRUPolicy[K, V]) PolicyName() string {
	return "lru"
}
