package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"walletcache/internal/cache"
	"walletcache/internal/logging"
)

// ErrAlreadyRunning is returned by Start on a running monitor
var ErrAlreadyRunning = errors.New("pressure monitor already running")

// Config holds configuration for a PressureMonitor
type Config struct {
	PollInterval   time.Duration
	WarningBytes   uint64
	CriticalBytes  uint64
	EmergencyBytes uint64
	// EmergencyGrace is how long usage may stay at or above CriticalBytes
	// after entering Emergency before a restart is requested.
	EmergencyGrace time.Duration
	HistorySize    int
}

// DefaultConfig returns thresholds suited to a small client process
func DefaultConfig() Config {
	return Config{
		PollInterval:   30 * time.Second,
		WarningBytes:   256 << 20,
		CriticalBytes:  384 << 20,
		EmergencyBytes: 512 << 20,
		EmergencyGrace: 2 * time.Minute,
		HistorySize:    60,
	}
}

// Validate checks that thresholds are positive and strictly increasing
func (c Config) Validate() error {
	switch {
	case c.PollInterval <= 0:
		return &cache.ConfigError{Component: "monitor", Field: "poll_interval", Message: "must be greater than 0"}
	case c.WarningBytes == 0:
		return &cache.ConfigError{Component: "monitor", Field: "warning", Message: "must be greater than 0"}
	case c.WarningBytes >= c.CriticalBytes || c.CriticalBytes >= c.EmergencyBytes:
		return &cache.ConfigError{Component: "monitor", Field: "thresholds", Message: "must be ordered: warning < critical < emergency"}
	case c.EmergencyGrace < 0:
		return &cache.ConfigError{Component: "monitor", Field: "emergency_grace", Message: "cannot be negative"}
	case c.HistorySize <= 0:
		return &cache.ConfigError{Component: "monitor", Field: "history_size", Message: "must be greater than 0"}
	}
	return nil
}

func (c Config) levelFor(used uint64) Level {
	switch {
	case used >= c.EmergencyBytes:
		return LevelEmergency
	case used >= c.CriticalBytes:
		return LevelCritical
	case used >= c.WarningBytes:
		return LevelWarning
	default:
		return LevelNormal
	}
}

// Handler reacts to a pressure level
type Handler func(ctx context.Context, sample MemorySample)

// Handlers are called synchronously from the poll goroutine, only for the
// current level. They must not call Stop.
type Handlers struct {
	OnWarning   Handler
	OnCritical  Handler
	OnEmergency Handler
	// OnRestartRequired is signalled once per emergency episode
	OnRestartRequired Handler
}

// Options holds the collaborators of a PressureMonitor
type Options struct {
	Handlers  Handlers
	Logger    logging.Sink
	NewTicker TickerFactory
	Now       func() time.Time
}

// Status is a snapshot of monitor state
type Status struct {
	Level            Level          `json:"level"`
	Running          bool           `json:"running"`
	Unavailable      bool           `json:"unavailable"`
	Polls            uint64         `json:"polls"`
	HandlerPanics    uint64         `json:"handler_panics"`
	LastSample       *MemorySample  `json:"last_sample,omitempty"`
	History          []MemorySample `json:"history"`
	WarningBytes     uint64         `json:"warning_bytes"`
	CriticalBytes    uint64         `json:"critical_bytes"`
	EmergencyBytes   uint64         `json:"emergency_bytes"`
	EmergencySince   *time.Time     `json:"emergency_since,omitempty"`
	RestartSignalled bool           `json:"restart_signalled"`
}

// PressureMonitor polls a MemoryProvider and escalates Normal → Warning → Critical → Emergency.
// Levels are re-evaluated on every poll so a sustained breach re-invokes
// the same handler. The monitor only signals; handlers decide what to free.
type PressureMonitor struct {
	provider  MemoryProvider
	handlers  Handlers
	log       logging.Sink
	newTicker TickerFactory
	now       func() time.Time

	mutex            sync.Mutex
	config           Config
	level            Level
	history          *cache.RingBuffer[MemorySample]
	polls            uint64
	handlerPanics    uint64
	unavailable      bool
	emergencySince   time.Time
	restartSignalled bool

	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// serializes evaluations from the poll loop and CheckNow
	evalMutex sync.Mutex
}

// NewPressureMonitor creates a stopped monitor. A nil provider means
// monitoring is unavailable.
func NewPressureMonitor(config Config, provider MemoryProvider, opts Options) (*PressureMonitor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	history, err := cache.NewRingBuffer[MemorySample](config.HistorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create sample history: %w", err)
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTimeTicker
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &PressureMonitor{
		provider:  provider,
		handlers:  opts.Handlers,
		log:       logging.OrNop(opts.Logger),
		newTicker: opts.NewTicker,
		now:       opts.Now,
		config:    config,
		history:   history,
	}, nil
}

// Start begins polling until ctx is cancelled or Stop is called
func (m *PressureMonitor) Start(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	ticker := m.newTicker(m.config.PollInterval)
	done := make(chan struct{})
	m.running = true
	m.cancel = cancel
	m.done = done

	go m.loop(loopCtx, ticker, done)

	m.log.Info(ctx, logging.ComponentMonitor, logging.ActionStart, "Pressure monitor started", logging.Fields{
		"poll_interval": m.config.PollInterval.String(),
		"warning":       m.config.WarningBytes,
		"critical":      m.config.CriticalBytes,
		"emergency":     m.config.EmergencyBytes,
	})
	return nil
}

func (m *PressureMonitor) loop(ctx context.Context, ticker Ticker, done chan struct{}) {
	defer func() {
		ticker.Stop()
		m.mutex.Lock()
		if m.done == done {
			m.running = false
			m.cancel = nil
		}
		m.mutex.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			m.CheckNow(ctx)
		}
	}
}

// Stop ends polling, releases the ticker and waits for the poll goroutine.
// Calling Stop on a stopped monitor does nothing.
func (m *PressureMonitor) Stop() {
	m.mutex.Lock()
	if !m.running {
		m.mutex.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.mutex.Unlock()

	cancel()
	<-done

	m.log.Info(context.Background(), logging.ComponentMonitor, logging.ActionStop, "Pressure monitor stopped")
}

// Running reports whether the poll loop is active
func (m *PressureMonitor) Running() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.running
}

// CheckNow takes one sample, updates the level and calls its handler
func (m *PressureMonitor) CheckNow(ctx context.Context) Level {
	m.evalMutex.Lock()
	defer m.evalMutex.Unlock()

	m.mutex.Lock()
	if m.unavailable {
		m.polls++
		m.mutex.Unlock()
		return LevelNormal
	}
	m.mutex.Unlock()

	sample, err := m.sample()
	if err != nil {
		return m.sampleFailed(ctx, err)
	}

	now := m.now()
	m.mutex.Lock()
	m.polls++
	m.history.Push(sample)
	config := m.config
	previous := m.level
	level := config.levelFor(sample.UsedBytes)
	m.level = level
	restart := m.trackEmergencyLocked(level, sample.UsedBytes, config, now)
	m.mutex.Unlock()

	m.log.Debug(ctx, logging.ComponentMonitor, logging.ActionSample, "Memory sampled", logging.Fields{
		"used_bytes":  sample.UsedBytes,
		"total_bytes": sample.TotalBytes,
		"level":       level.String(),
	})

	if level != previous {
		fields := logging.Fields{"from": previous.String(), "to": level.String(), "used_bytes": sample.UsedBytes}
		if level > previous {
			m.log.Warn(ctx, logging.ComponentMonitor, logging.ActionTransition, "Memory pressure rising", fields)
		} else {
			m.log.Info(ctx, logging.ComponentMonitor, logging.ActionTransition, "Memory pressure easing", fields)
		}
	}

	switch level {
	case LevelWarning:
		m.invoke(ctx, "warning", m.handlers.OnWarning, sample)
	case LevelCritical:
		m.invoke(ctx, "critical", m.handlers.OnCritical, sample)
	case LevelEmergency:
		m.invoke(ctx, "emergency", m.handlers.OnEmergency, sample)
	}

	if restart {
		m.log.Error(ctx, logging.ComponentMonitor, logging.ActionRestart,
			"Memory still above critical after emergency grace period, requesting restart as last resort", nil,
			logging.Fields{"used_bytes": sample.UsedBytes, "grace": config.EmergencyGrace.String()})
		m.invoke(ctx, "restart_required", m.handlers.OnRestartRequired, sample)
	}

	return level
}

func (m *PressureMonitor) sample() (sample MemorySample, err error) {
	if m.provider == nil {
		return MemorySample{}, ErrMonitoringUnavailable
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("memory provider panicked: %v", r)
		}
	}()
	return m.provider.Sample()
}

func (m *PressureMonitor) sampleFailed(ctx context.Context, err error) Level {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.polls++
	if errors.Is(err, ErrMonitoringUnavailable) {
		m.unavailable = true
		m.level = LevelNormal
		m.log.Warn(ctx, logging.ComponentMonitor, logging.ActionUnavailable,
			"Memory monitoring unavailable, staying at normal level", logging.Fields{"error": err.Error()})
		return LevelNormal
	}

	m.log.Error(ctx, logging.ComponentMonitor, logging.ActionSample, "Memory sample failed", err)
	return m.level
}

// trackEmergencyLocked returns true when a restart should be signalled.
// An episode starts on entering Emergency and ends when usage drops below CriticalBytes.
func (m *PressureMonitor) trackEmergencyLocked(level Level, used uint64, config Config, now time.Time) bool {
	if used < config.CriticalBytes {
		m.emergencySince = time.Time{}
		m.restartSignalled = false
		return false
	}
	if level == LevelEmergency && m.emergencySince.IsZero() {
		m.emergencySince = now
	}
	if m.emergencySince.IsZero() || m.restartSignalled {
		return false
	}
	if now.Sub(m.emergencySince) >= config.EmergencyGrace {
		m.restartSignalled = true
		return true
	}
	return false
}

func (m *PressureMonitor) invoke(ctx context.Context, name string, handler Handler, sample MemorySample) {
	if handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.mutex.Lock()
			m.handlerPanics++
			m.mutex.Unlock()
			m.log.Error(ctx, logging.ComponentMonitor, logging.ActionRecover, "Pressure handler panicked",
				fmt.Errorf("%v", r), logging.Fields{"handler": name})
		}
	}()
	handler(ctx, sample)
}

// UpdateThresholds replaces the thresholds and grace period. PollInterval
// and HistorySize take effect on the next Start and are otherwise ignored.
func (m *PressureMonitor) UpdateThresholds(config Config) error {
	m.mutex.Lock()
	updated := m.config
	updated.WarningBytes = config.WarningBytes
	updated.CriticalBytes = config.CriticalBytes
	updated.EmergencyBytes = config.EmergencyBytes
	updated.EmergencyGrace = config.EmergencyGrace
	if config.PollInterval > 0 {
		updated.PollInterval = config.PollInterval
	}
	if err := updated.Validate(); err != nil {
		m.mutex.Unlock()
		return err
	}
	m.config = updated
	m.mutex.Unlock()

	m.log.Info(context.Background(), logging.ComponentMonitor, logging.ActionReload, "Pressure thresholds updated", logging.Fields{
		"warning":   updated.WarningBytes,
		"critical":  updated.CriticalBytes,
		"emergency": updated.EmergencyBytes,
	})
	return nil
}

// Level returns the level from the last evaluation
func (m *PressureMonitor) Level() Level {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.level
}

// ClearHistory drops stored samples
func (m *PressureMonitor) ClearHistory() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.history.Clear()
}

// Status returns a snapshot of monitor state
func (m *PressureMonitor) Status() Status {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	status := Status{
		Level:            m.level,
		Running:          m.running,
		Unavailable:      m.unavailable,
		Polls:            m.polls,
		HandlerPanics:    m.handlerPanics,
		History:          m.history.ToSlice(),
		WarningBytes:     m.config.WarningBytes,
		CriticalBytes:    m.config.CriticalBytes,
		EmergencyBytes:   m.config.EmergencyBytes,
		RestartSignalled: m.restartSignalled,
	}
	if last, ok := m.history.Last(); ok {
		status.LastSample = &last
	}
	if !m.emergencySince.IsZero() {
		since := m.emergencySince
		status.EmergencySince = &since
	}
	return status
}
