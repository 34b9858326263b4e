// Package session owns every cache of one wallet client session and wires
// them to the pressure monitor.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"walletcache/internal/cache"
	"walletcache/internal/logging"
	"walletcache/internal/monitor"
	"walletcache/internal/storage"
)

var (
	// ErrDestroyed is returned by Init after Destroy
	ErrDestroyed = errors.New("session destroyed")
	// ErrAlreadyInitialized is returned by a second Init
	ErrAlreadyInitialized = errors.New("session already initialized")
)

// Config holds sizes for everything a Session owns
type Config struct {
	ID                string
	Transactions      storage.EntityStoreConfig
	Users             storage.EntityStoreConfig
	ResponseCacheSize int
	ResponseCacheTTL  time.Duration
	BufferPoolSize    int
	Monitor           monitor.Config
}

// DefaultConfig returns a Session configuration with default sizes
func DefaultConfig(id string) Config {
	return Config{
		ID:                id,
		Transactions:      storage.EntityStoreConfig{Name: "transactions"},
		Users:             storage.EntityStoreConfig{Name: "users"},
		ResponseCacheSize: 256,
		ResponseCacheTTL:  30 * time.Second,
		BufferPoolSize:    16,
		Monitor:           monitor.DefaultConfig(),
	}
}

// Options holds the collaborators of a Session
type Options struct {
	Logger    logging.Sink
	Provider  monitor.MemoryProvider
	NewTicker monitor.TickerFactory
	Now       func() time.Time
	// ForceReclaim asks the host to give memory back; default no-op
	ForceReclaim func()
	// ForceRestart is the last-resort action after a sustained emergency; default no-op
	ForceRestart func(ctx context.Context, reason string)
}

// Session is the composition root for one client session. Code receiving a
// *Session reaches the stores through it; nothing here is global.
type Session struct {
	id  string
	log logging.Sink

	transactions *storage.TransactionStore
	users        *storage.UserStore
	responses    *cache.BoundedCache[string, []byte]
	buffers      *cache.ObjectPool[*bytes.Buffer]
	monitor      *monitor.PressureMonitor
	tracker      *ResourceTracker

	forceReclaim func()
	forceRestart func(ctx context.Context, reason string)

	mutex       sync.Mutex
	initialized bool
	destroyed   bool
	cleanups    map[string]uint64
	createdAt   time.Time
}

// New builds every cache and store of a session. The monitor is not started until Init.
func New(config Config, opts Options) (*Session, error) {
	log := logging.OrNop(opts.Logger)
	if opts.ForceReclaim == nil {
		opts.ForceReclaim = func() {}
	}
	if opts.ForceRestart == nil {
		opts.ForceRestart = func(context.Context, string) {}
	}

	s := &Session{
		id:           config.ID,
		log:          log,
		tracker:      NewResourceTracker(log),
		forceReclaim: opts.ForceReclaim,
		forceRestart: opts.ForceRestart,
		cleanups:     make(map[string]uint64),
		createdAt:    time.Now(),
	}

	var err error
	config.Transactions.Logger, config.Transactions.Now = log, opts.Now
	if s.transactions, err = storage.NewTransactionStore(config.Transactions); err != nil {
		return nil, fmt.Errorf("failed to create transaction store: %w", err)
	}

	config.Users.Logger, config.Users.Now = log, opts.Now
	if s.users, err = storage.NewUserStore(config.Users); err != nil {
		return nil, fmt.Errorf("failed to create user store: %w", err)
	}

	s.responses, err = cache.NewBoundedCache(cache.BoundedCacheConfig[string, []byte]{
		Name:     "responses",
		Capacity: config.ResponseCacheSize,
		TTL:      config.ResponseCacheTTL,
		Now:      opts.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create response cache: %w", err)
	}

	s.buffers, err = cache.NewObjectPool("buffers",
		func() *bytes.Buffer { return new(bytes.Buffer) },
		func(b *bytes.Buffer) { b.Reset() },
		config.BufferPoolSize,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer pool: %w", err)
	}

	s.monitor, err = monitor.NewPressureMonitor(config.Monitor, opts.Provider, monitor.Options{
		Handlers: monitor.Handlers{
			OnWarning:         func(ctx context.Context, _ monitor.MemorySample) { s.LightCleanup(ctx) },
			OnCritical:        func(ctx context.Context, _ monitor.MemorySample) { s.CriticalCleanup(ctx) },
			OnEmergency:       func(ctx context.Context, _ monitor.MemorySample) { s.EmergencyTeardown(ctx) },
			OnRestartRequired: func(ctx context.Context, _ monitor.MemorySample) { s.RequestRestart(ctx) },
		},
		Logger:    log,
		NewTicker: opts.NewTicker,
		Now:       opts.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pressure monitor: %w", err)
	}

	return s, nil
}

// Init starts the pressure monitor
func (s *Session) Init(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.destroyed {
		return ErrDestroyed
	}
	if s.initialized {
		return ErrAlreadyInitialized
	}
	if err := s.monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pressure monitor: %w", err)
	}
	s.initialized = true

	s.log.Info(ctx, logging.ComponentSession, logging.ActionStart, "Session initialized", logging.Fields{"session_id": s.id})
	return nil
}

// Destroy stops the monitor and drops everything the session holds. Safe to call more than once.
func (s *Session) Destroy() {
	s.mutex.Lock()
	if s.destroyed {
		s.mutex.Unlock()
		return
	}
	s.destroyed = true
	s.mutex.Unlock()

	ctx := context.Background()
	s.monitor.Stop()
	s.teardown(ctx)
	s.log.Info(ctx, logging.ComponentSession, logging.ActionStop, "Session destroyed", logging.Fields{"session_id": s.id})
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

// Transactions returns the transaction store
func (s *Session) Transactions() *storage.TransactionStore { return s.transactions }

// Users returns the user store
func (s *Session) Users() *storage.UserStore { return s.users }

// Responses returns the encoded response cache
func (s *Session) Responses() *cache.BoundedCache[string, []byte] { return s.responses }

// Buffers returns the encoding buffer pool
func (s *Session) Buffers() *cache.ObjectPool[*bytes.Buffer] { return s.buffers }

// Monitor returns the pressure monitor
func (s *Session) Monitor() *monitor.PressureMonitor { return s.monitor }

// Tracker returns the transient resource tracker
func (s *Session) Tracker() *ResourceTracker { return s.tracker }

// Cleanup runs the cleanup for level by hand. LevelNormal does nothing.
func (s *Session) Cleanup(ctx context.Context, level monitor.Level) {
	switch level {
	case monitor.LevelWarning:
		s.LightCleanup(ctx)
	case monitor.LevelCritical:
		s.CriticalCleanup(ctx)
	case monitor.LevelEmergency:
		s.EmergencyTeardown(ctx)
	}
}

// LightCleanup drops memoized query results and halves the response cache
func (s *Session) LightCleanup(ctx context.Context) {
	s.count("light")
	s.step(ctx, "transactions.queries", func() { s.transactions.ClearQueryCache() }, s.transactions.Clear)
	s.step(ctx, "users.queries", func() { s.users.ClearQueryCache() }, s.users.Clear)
	s.step(ctx, "responses", func() {
		s.responses.PurgeExpired()
		s.responses.Trim(s.responses.Capacity() / 2)
	}, s.responses.Clear)

	s.log.Info(ctx, logging.ComponentSession, logging.ActionCleanup, "Light cleanup done", logging.Fields{
		"responses": s.responses.Size(),
	})
}

// CriticalCleanup runs the light cleanup, clears stores and pools,
// revokes tracked resources and asks the host to reclaim memory
func (s *Session) CriticalCleanup(ctx context.Context) {
	s.LightCleanup(ctx)
	s.count("critical")

	s.clearRecords(ctx)
	s.step(ctx, "buffers", s.buffers.Clear, nil)
	revoked := s.revokeTracked(ctx)
	s.step(ctx, "reclaim", s.forceReclaim, nil)

	s.log.Warn(ctx, logging.ComponentSession, logging.ActionCleanup, "Critical cleanup done, stores cleared", logging.Fields{
		"revoked": revoked,
	})
}

// EmergencyTeardown drops every cache, store, pool and the monitor history
func (s *Session) EmergencyTeardown(ctx context.Context) {
	s.count("emergency")
	revoked := s.teardown(ctx)
	s.step(ctx, "reclaim", s.forceReclaim, nil)
	s.log.Error(ctx, logging.ComponentSession, logging.ActionTeardown, "Emergency teardown done, every cache dropped", nil, logging.Fields{
		"revoked": revoked,
	})
}

// RequestRestart invokes the host's restart action. It is only reached
// after an emergency outlasted its grace period.
func (s *Session) RequestRestart(ctx context.Context) {
	s.count("restart")
	reason := "memory above critical threshold after emergency grace period"
	s.log.Error(ctx, logging.ComponentSession, logging.ActionRestart,
		"Last-resort restart requested, this is a fallback and not routine", nil,
		logging.Fields{"session_id": s.id, "reason": reason})
	s.step(ctx, "restart", func() { s.forceRestart(ctx, reason) }, nil)
}

func (s *Session) teardown(ctx context.Context) int {
	s.clearRecords(ctx)
	s.step(ctx, "buffers", s.buffers.Clear, nil)
	revoked := s.revokeTracked(ctx)
	s.step(ctx, "monitor.history", s.monitor.ClearHistory, nil)
	return revoked
}

// clearRecords empties both stores and every response rendered from them
func (s *Session) clearRecords(ctx context.Context) {
	s.step(ctx, "transactions", s.transactions.Clear, nil)
	s.step(ctx, "users", s.users.Clear, nil)
	s.step(ctx, "responses", s.responses.Clear, nil)
}

// revokeTracked revokes tracked resources; failures are logged by the tracker
func (s *Session) revokeTracked(ctx context.Context) int {
	revoked := 0
	s.step(ctx, "tracked_resources", func() {
		revoked, _ = s.tracker.RevokeAll(ctx)
	}, nil)
	return revoked
}

// step runs fn, and on panic logs it and runs fallback to clear the affected cache
func (s *Session) step(ctx context.Context, name string, fn func(), fallback func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		s.log.Error(ctx, logging.ComponentSession, logging.ActionRecover, "Cleanup step panicked",
			fmt.Errorf("%v", r), logging.Fields{"step": name})
		if fallback != nil {
			s.step(ctx, name+".fallback", fallback, nil)
		}
	}()
	fn()
}

func (s *Session) count(kind string) {
	s.mutex.Lock()
	s.cleanups[kind]++
	s.mutex.Unlock()
}

// Stats is an aggregate snapshot of a session
type Stats struct {
	ID               string                `json:"id"`
	Initialized      bool                  `json:"initialized"`
	Destroyed        bool                  `json:"destroyed"`
	Uptime           string                `json:"uptime"`
	Transactions     storage.StoreStats    `json:"transactions"`
	Users            storage.StoreStats    `json:"users"`
	ResponseCache    cache.Stats           `json:"response_cache"`
	Buffers          cache.ObjectPoolStats `json:"buffers"`
	Monitor          monitor.Status        `json:"monitor"`
	TrackedResources int                   `json:"tracked_resources"`
	RevokedResources uint64                `json:"revoked_resources"`
	Cleanups         map[string]uint64     `json:"cleanups"`
}

// Stats returns an aggregate snapshot
func (s *Session) Stats() Stats {
	s.mutex.Lock()
	cleanups := make(map[string]uint64, len(s.cleanups))
	for k, v := range s.cleanups {
		cleanups[k] = v
	}
	initialized, destroyed := s.initialized, s.destroyed
	s.mutex.Unlock()

	return Stats{
		ID:               s.id,
		Initialized:      initialized,
		Destroyed:        destroyed,
		Uptime:           time.Since(s.createdAt).Round(time.Second).String(),
		Transactions:     s.transactions.Stats(),
		Users:            s.users.Stats(),
		ResponseCache:    s.responses.Stats(),
		Buffers:          s.buffers.Stats(),
		Monitor:          s.monitor.Status(),
		TrackedResources: s.tracker.Len(),
		RevokedResources: s.tracker.Revoked(),
		Cleanups:         cleanups,
	}
}
