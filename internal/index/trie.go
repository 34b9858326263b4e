// Package index provides a case-insensitive prefix index used for search-as-you-type
// over cached wallet records.
package index

import (
	"strings"
	"sync"
)

// Match is a single prefix search result
type Match[V any] struct {
	Word    string
	Payload V
}

type node[V any] struct {
	children map[rune]*node[V]
	terminal bool
	payload  V
}

func newNode[V any]() *node[V] {
	return &node[V]{children: make(map[rune]*node[V])}
}

// PrefixIndex is a trie mapping words to payloads. Words are lower-cased on
// the way in, so every lookup is case-insensitive and results report the
// normalized word.
type PrefixIndex[V any] struct {
	root  *node[V]
	words int
	mutex sync.RWMutex
}

// NewPrefixIndex creates an empty index
func NewPrefixIndex[V any]() *PrefixIndex[V] {
	return &PrefixIndex[V]{root: newNode[V]()}
}

// Normalize returns the form a word is stored under
func Normalize(word string) string {
	return strings.ToLower(word)
}

// Insert stores payload under word, replacing any previous payload
func (idx *PrefixIndex[V]) Insert(word string, payload V) {
	word = Normalize(word)

	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	current := idx.root
	for _, ch := range word {
		next, ok := current.children[ch]
		if !ok {
			next = newNode[V]()
			current.children[ch] = next
		}
		current = next
	}
	if !current.terminal {
		idx.words++
	}
	current.terminal = true
	current.payload = payload
}

// Lookup returns the payload stored for exactly word
func (idx *PrefixIndex[V]) Lookup(word string) (V, bool) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	n := idx.find(Normalize(word))
	if n == nil || !n.terminal {
		var zero V
		return zero, false
	}
	return n.payload, true
}

// PrefixSearch returns every word starting with prefix. The empty prefix
// matches every word. Result order is unspecified.
func (idx *PrefixIndex[V]) PrefixSearch(prefix string) []Match[V] {
	prefix = Normalize(prefix)

	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	start := idx.find(prefix)
	if start == nil {
		return []Match[V]{}
	}

	results := make([]Match[V], 0)
	var buf strings.Builder
	buf.WriteString(prefix)
	collect(start, &buf, &results)
	return results
}

// Delete removes word and prunes nodes left without words below them.
// Reports whether word was present.
func (idx *PrefixIndex[V]) Delete(word string) bool {
	word = Normalize(word)

	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	runes := []rune(word)
	path := make([]*node[V], 0, len(runes)+1)
	current := idx.root
	path = append(path, current)
	for _, ch := range runes {
		next, ok := current.children[ch]
		if !ok {
			return false
		}
		current = next
		path = append(path, current)
	}
	if !current.terminal {
		return false
	}

	var zero V
	current.terminal = false
	current.payload = zero
	idx.words--

	for i := len(runes); i > 0; i-- {
		n := path[i]
		if n.terminal || len(n.children) > 0 {
			break
		}
		delete(path[i-1].children, runes[i-1])
	}
	return true
}

// Len returns the number of distinct words
func (idx *PrefixIndex[V]) Len() int {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	return idx.words
}

// Clear drops every word
func (idx *PrefixIndex[V]) Clear() {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	idx.root = newNode[V]()
	idx.words = 0
}

// find walks to the node for word (caller must hold lock)
func (idx *PrefixIndex[V]) find(word string) *node[V] {
	current := idx.root
	for _, ch := range word {
		next, ok := current.children[ch]
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

// collect does a depth-first walk below n; buf holds the path so far
func collect[V any](n *node[V], buf *strings.Builder, results *[]Match[V]) {
	if n.terminal {
		*results = append(*results, Match[V]{Word: buf.String(), Payload: n.payload})
	}
	if len(n.children) == 0 {
		return
	}

	base := buf.String()
	for ch, child := range n.children {
		buf.Reset()
		buf.WriteString(base)
		buf.WriteRune(ch)
		collect(child, buf, results)
	}
}
