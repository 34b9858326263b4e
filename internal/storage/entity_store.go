package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/btree"

	"walletcache/internal/cache"
	"walletcache/internal/filter"
	"walletcache/internal/index"
	"walletcache/internal/logging"
)

// ErrMissingID is returned by Add for records whose identifier is empty
var ErrMissingID = errors.New("record id cannot be empty")

// Filter values meaning "no filtering" on an axis
const (
	FilterAll = "all"

	DateToday = "today"
	DateWeek  = "week"
	DateMonth = "month"
	DateYear  = "year"
)

// Schema tells an EntityStore how to read its records
type Schema[T any] struct {
	ID           func(T) string
	Timestamp    func(T) time.Time
	Type         func(T) string
	SearchFields func(T) []string
	// KnownTypes lists accepted type filter values. A filter value outside
	// this list means no type filtering. Empty accepts any value.
	KnownTypes []string
}

// EntityStoreConfig holds configuration for an EntityStore
type EntityStoreConfig struct {
	Name            string
	MaxRecords      int                  // primary map bound; LRU records beyond it are evicted
	QueryCacheSize  int                  // memoized GetFiltered results
	ScratchPoolSize int                  // pooled candidate sets for search
	AdmissionFilter *filter.FilterConfig // optional Bloom filter for early negative GetByID (nil = none)
	Now             func() time.Time
	Logger          logging.Sink
}

// Defaults applied for zero config values
const (
	DefaultMaxRecords      = 100000
	DefaultQueryCacheSize  = 64
	DefaultScratchPoolSize = 8
)

// QueryKey identifies one memoized GetFiltered call
type QueryKey struct {
	Search string
	Type   string
	Date   string
}

// StoreStats holds statistics for an EntityStore
type StoreStats struct {
	Name           string                `json:"name"`
	Records        int                   `json:"records"`
	MaxRecords     int                   `json:"max_records"`
	IndexedTerms   int                   `json:"indexed_terms"`
	Adds           uint64                `json:"adds"`
	Overwrites     uint64                `json:"overwrites"`
	Evictions      uint64                `json:"evictions"`
	Queries        uint64                `json:"queries"`
	QueryCacheHits uint64                `json:"query_cache_hits"`
	Invalidations  uint64                `json:"invalidations"`
	Filtered       uint64                `json:"admission_rejections"`
	QueryCache     cache.Stats           `json:"query_cache"`
	Scratch        cache.ObjectPoolStats `json:"scratch_pool"`
	Admission      *filter.FilterStats   `json:"admission_filter,omitempty"`
}

// sortKey orders records newest first; seq (first insertion order) breaks ties
type sortKey struct {
	ts  int64
	seq uint64
	id  string
}

func lessSortKey(a, b sortKey) bool {
	if a.ts != b.ts {
		return a.ts > b.ts
	}
	if a.seq != b.seq {
		return a.seq < b.seq
	}
	return a.id < b.id
}

type storedRecord[T any] struct {
	record     T
	key        sortKey
	terms      []string
	searchText string
}

// StoreHooks observe the record set. Hooks run with the store lock held and
// must not call back into the store.
type StoreHooks[T any] struct {
	// OnAdd runs after a record is stored
	OnAdd func(record T)
	// OnRemove runs when a record is deleted, evicted or replaced by a newer
	// version. Clear does not call it.
	OnRemove func(record T)
	// OnClear runs when the store is cleared
	OnClear func()
}

type candidateSet struct {
	ids map[string]struct{}
}

// EntityStore is an in-memory indexed cache of externally owned records.
//
// Every mutation clears the memoized query results wholesale. That makes
// invalidation O(1) at the price of recomputing the next query, which is a
// single pass over the sorted index.
type EntityStore[T any] struct {
	name   string
	schema Schema[T]
	known  map[string]struct{}
	now    func() time.Time
	log    logging.Sink

	primary   *cache.BoundedCache[string, *storedRecord[T]]
	sorted    *btree.BTreeG[sortKey]
	search    *index.PrefixIndex[map[string]struct{}]
	results   *cache.BoundedCache[QueryKey, []T]
	scratch   *cache.ObjectPool[*candidateSet]
	admission *filter.BloomFilter
	hooks     StoreHooks[T]

	nextSeq uint64
	mutex   sync.Mutex

	adds          uint64
	overwrites    uint64
	evictions     uint64
	queries       uint64
	queryHits     uint64
	invalidations uint64
	filtered      uint64
}

// NewEntityStore creates a store for records described by schema
func NewEntityStore[T any](schema Schema[T], config EntityStoreConfig) (*EntityStore[T], error) {
	if schema.ID == nil || schema.Timestamp == nil {
		return nil, &cache.ConfigError{Component: "entity_store", Field: "schema", Message: "id and timestamp accessors are required"}
	}
	if config.MaxRecords < 0 || config.QueryCacheSize < 0 || config.ScratchPoolSize < 0 {
		return nil, &cache.ConfigError{Component: "entity_store", Field: "sizes", Message: "cannot be negative"}
	}
	if config.MaxRecords == 0 {
		config.MaxRecords = DefaultMaxRecords
	}
	if config.QueryCacheSize == 0 {
		config.QueryCacheSize = DefaultQueryCacheSize
	}
	if config.ScratchPoolSize == 0 {
		config.ScratchPoolSize = DefaultScratchPoolSize
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	s := &EntityStore[T]{
		name:   config.Name,
		schema: schema,
		known:  make(map[string]struct{}, len(schema.KnownTypes)),
		now:    config.Now,
		log:    logging.OrNop(config.Logger),
		sorted: btree.NewG[sortKey](16, lessSortKey),
		search: index.NewPrefixIndex[map[string]struct{}](),
	}
	for _, typ := range schema.KnownTypes {
		s.known[strings.ToLower(typ)] = struct{}{}
	}

	var err error
	s.primary, err = cache.NewBoundedCache(cache.BoundedCacheConfig[string, *storedRecord[T]]{
		Name:     config.Name + ".records",
		Capacity: config.MaxRecords,
		OnEvict:  s.onEvict,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create record map: %w", err)
	}

	s.results, err = cache.NewBoundedCache(cache.BoundedCacheConfig[QueryKey, []T]{
		Name:     config.Name + ".queries",
		Capacity: config.QueryCacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	s.scratch, err = cache.NewObjectPool(config.Name+".scratch",
		func() *candidateSet { return &candidateSet{ids: make(map[string]struct{})} },
		func(c *candidateSet) { clear(c.ids) },
		config.ScratchPoolSize,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch pool: %w", err)
	}

	if config.AdmissionFilter != nil {
		s.admission, err = filter.NewBloomFilter(config.AdmissionFilter)
		if err != nil {
			return nil, fmt.Errorf("failed to create admission filter: %w", err)
		}
	}

	return s, nil
}

// SetHooks installs record set observers
func (s *EntityStore[T]) SetHooks(hooks StoreHooks[T]) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.hooks = hooks
}

// Name returns the store name
func (s *EntityStore[T]) Name() string {
	return s.name
}

// Add inserts or replaces a record (last write wins) and invalidates every memoized query
func (s *EntityStore[T]) Add(record T) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.addLocked(record); err != nil {
		return err
	}
	s.invalidateLocked()
	return nil
}

// AddMany inserts records in order. Records before a failing one stay added.
func (s *EntityStore[T]) AddMany(records []T) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	defer s.invalidateLocked()
	for i, record := range records {
		if err := s.addLocked(record); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

func (s *EntityStore[T]) addLocked(record T) error {
	id := s.schema.ID(record)
	if id == "" {
		return ErrMissingID
	}

	var seq uint64
	if old, ok := s.primary.Peek(id); ok {
		s.unindexLocked(old)
		s.removedLocked(old)
		seq = old.key.seq
		s.overwrites++
	} else {
		seq = s.nextSeq
		s.nextSeq++
	}

	rec := &storedRecord[T]{
		record: record,
		key:    sortKey{ts: s.schema.Timestamp(record).UnixNano(), seq: seq, id: id},
	}
	var fields []string
	if s.schema.SearchFields != nil {
		fields = s.schema.SearchFields(record)
	}
	rec.terms = searchTerms(fields)
	rec.searchText = strings.ToLower(strings.Join(fields, " "))

	s.sorted.ReplaceOrInsert(rec.key)
	for _, term := range rec.terms {
		s.addTermLocked(term, id)
	}
	s.primary.Set(id, rec)
	if s.admission != nil {
		s.admission.Add([]byte(id))
	}
	if s.hooks.OnAdd != nil {
		s.hooks.OnAdd(record)
	}
	s.adds++
	return nil
}

// GetByID returns the record stored under id
func (s *EntityStore[T]) GetByID(id string) (T, bool) {
	var zero T
	if s.admission != nil && !s.admission.Contains([]byte(id)) {
		s.mutex.Lock()
		s.filtered++
		s.mutex.Unlock()
		return zero, false
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	rec, ok := s.primary.Get(id)
	if !ok {
		return zero, false
	}
	return rec.record, true
}

// Delete removes the record stored under id
func (s *EntityStore[T]) Delete(id string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rec, ok := s.primary.Peek(id)
	if !ok {
		return false
	}
	s.primary.Delete(id)
	s.unindexLocked(rec)
	s.removedLocked(rec)
	s.invalidateLocked()
	return true
}

// GetFiltered returns matching records newest first. Filters apply in order:
// date range, then type, then search term. Unknown date or type values mean
// no filtering on that axis. The returned slice is shared with the query
// cache and must not be modified.
func (s *EntityStore[T]) GetFiltered(searchTerm, typeFilter, dateFilter string) []T {
	key := QueryKey{
		Search: normalizeTerm(searchTerm),
		Type:   strings.ToLower(strings.TrimSpace(typeFilter)),
		Date:   strings.ToLower(strings.TrimSpace(dateFilter)),
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.queries++
	if cached, ok := s.results.Get(key); ok {
		s.queryHits++
		return cached
	}

	out := s.computeLocked(key)
	s.results.Set(key, out)
	return out
}

func (s *EntityStore[T]) computeLocked(key QueryKey) []T {
	cutoff, hasCutoff := s.dateCutoff(key.Date)
	typeActive := s.typeFilterActive(key.Type)

	var candidates *candidateSet
	if key.Search != "" {
		candidates = s.scratch.Acquire()
		defer s.scratch.Release(candidates)
		for _, match := range s.search.PrefixSearch(key.Search) {
			for id := range match.Payload {
				candidates.ids[id] = struct{}{}
			}
		}
	}

	out := make([]T, 0)
	s.sorted.Ascend(func(k sortKey) bool {
		if hasCutoff && k.ts < cutoff {
			// newest first: everything after this is older
			return false
		}
		rec, ok := s.primary.Peek(k.id)
		if !ok {
			return true
		}
		if typeActive && !strings.EqualFold(s.recordType(rec.record), key.Type) {
			return true
		}
		if candidates != nil {
			if _, hit := candidates.ids[k.id]; !hit && !strings.Contains(rec.searchText, key.Search) {
				return true
			}
		}
		out = append(out, rec.record)
		return true
	})
	return out
}

// Sorted returns every record newest first, bypassing the query cache
func (s *EntityStore[T]) Sorted() []T {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := make([]T, 0, s.sorted.Len())
	s.sorted.Ascend(func(k sortKey) bool {
		if rec, ok := s.primary.Peek(k.id); ok {
			out = append(out, rec.record)
		}
		return true
	})
	return out
}

// Clear drops every record, index entry and memoized query
func (s *EntityStore[T]) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	records := s.primary.Size()
	s.primary.Clear()
	s.sorted.Clear(false)
	s.search.Clear()
	s.scratch.Clear()
	if s.admission != nil {
		s.admission.Clear()
	}
	if s.hooks.OnClear != nil {
		s.hooks.OnClear()
	}
	s.invalidateLocked()

	s.log.Info(context.Background(), logging.ComponentStorage, logging.ActionCleanup, "Entity store cleared", logging.Fields{
		"store":   s.name,
		"records": records,
	})
}

// ClearQueryCache drops memoized query results only
func (s *EntityStore[T]) ClearQueryCache() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	n := s.results.Size()
	s.invalidateLocked()
	return n
}

// Trim evicts least recently used records until at most n remain
func (s *EntityStore[T]) Trim(n int) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	evicted := s.primary.Trim(n)
	if evicted > 0 {
		s.invalidateLocked()
	}
	return evicted
}

// Size returns the number of records
func (s *EntityStore[T]) Size() int {
	return s.primary.Size()
}

// Stats returns store statistics
func (s *EntityStore[T]) Stats() StoreStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stats := StoreStats{
		Name:           s.name,
		Records:        s.primary.Size(),
		MaxRecords:     s.primary.Capacity(),
		IndexedTerms:   s.search.Len(),
		Adds:           s.adds,
		Overwrites:     s.overwrites,
		Evictions:      s.evictions,
		Queries:        s.queries,
		QueryCacheHits: s.queryHits,
		Invalidations:  s.invalidations,
		Filtered:       s.filtered,
		QueryCache:     s.results.Stats(),
		Scratch:        s.scratch.Stats(),
	}
	if s.admission != nil {
		stats.Admission = s.admission.GetStats()
	}
	return stats
}

// onEvict runs inside primary.Set, which only happens with s.mutex held
func (s *EntityStore[T]) onEvict(id string, rec *storedRecord[T]) {
	s.unindexLocked(rec)
	s.removedLocked(rec)
	s.evictions++
	s.log.Debug(context.Background(), logging.ComponentStorage, logging.ActionEvict, "Record evicted from store", logging.Fields{
		"store": s.name,
		"id":    id,
	})
}

func (s *EntityStore[T]) unindexLocked(rec *storedRecord[T]) {
	s.sorted.Delete(rec.key)
	for _, term := range rec.terms {
		ids, ok := s.search.Lookup(term)
		if !ok {
			continue
		}
		delete(ids, rec.key.id)
		if len(ids) == 0 {
			s.search.Delete(term)
		}
	}
}

func (s *EntityStore[T]) removedLocked(rec *storedRecord[T]) {
	if s.hooks.OnRemove != nil {
		s.hooks.OnRemove(rec.record)
	}
}

func (s *EntityStore[T]) addTermLocked(term, id string) {
	ids, ok := s.search.Lookup(term)
	if !ok {
		ids = make(map[string]struct{}, 1)
		s.search.Insert(term, ids)
	}
	ids[id] = struct{}{}
}

func (s *EntityStore[T]) invalidateLocked() {
	s.results.Clear()
	s.invalidations++
}

func (s *EntityStore[T]) recordType(record T) string {
	if s.schema.Type == nil {
		return ""
	}
	return s.schema.Type(record)
}

func (s *EntityStore[T]) typeFilterActive(typ string) bool {
	if typ == "" || typ == FilterAll || s.schema.Type == nil {
		return false
	}
	if len(s.known) == 0 {
		return true
	}
	_, ok := s.known[typ]
	return ok
}

// dateCutoff returns the oldest accepted timestamp for a date filter
func (s *EntityStore[T]) dateCutoff(date string) (int64, bool) {
	now := s.now()
	switch date {
	case DateToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).UnixNano(), true
	case DateWeek:
		return now.AddDate(0, 0, -7).UnixNano(), true
	case DateMonth:
		return now.AddDate(0, 0, -30).UnixNano(), true
	case DateYear:
		return now.AddDate(0, 0, -365).UnixNano(), true
	default:
		return 0, false
	}
}

func normalizeTerm(term string) string {
	return index.Normalize(strings.TrimSpace(term))
}

// searchTerms returns the distinct lower-cased words and whole fields to index
func searchTerms(fields []string) []string {
	seen := make(map[string]struct{})
	terms := make([]string, 0, len(fields)*2)
	add := func(term string) {
		if term == "" {
			return
		}
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}

	for _, field := range fields {
		field = normalizeTerm(field)
		add(field)
		for _, word := range strings.FieldsFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			add(word)
		}
	}
	return terms
}
