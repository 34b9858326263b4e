// Package monitor samples process memory and escalates through pressure
// levels, calling a handler for the current level on every poll.
package monitor

import (
	"errors"
	"math"
	"runtime"
	"runtime/debug"
	"time"
)

// ErrMonitoringUnavailable is returned by a MemoryProvider that cannot read memory usage
var ErrMonitoringUnavailable = errors.New("memory monitoring unavailable")

// MemorySample is one memory reading
type MemorySample struct {
	Timestamp  time.Time `json:"timestamp"`
	UsedBytes  uint64    `json:"used_bytes"`
	TotalBytes uint64    `json:"total_bytes"`
	LimitBytes uint64    `json:"limit_bytes"` // 0 = no limit
}

//go:generate moq -rm -out monitor_mocks_test.go . MemoryProvider Ticker

// MemoryProvider reads current memory usage
type MemoryProvider interface {
	Sample() (MemorySample, error)
}

// RuntimeProvider samples the Go runtime heap
type RuntimeProvider struct {
	Now func() time.Time
}

// Sample reads HeapAlloc as used and Sys as total; the soft memory limit is reported as the limit
func (p RuntimeProvider) Sample() (MemorySample, error) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	var limit uint64
	if l := debug.SetMemoryLimit(-1); l > 0 && l != math.MaxInt64 {
		limit = uint64(l)
	}

	return MemorySample{
		Timestamp:  now(),
		UsedBytes:  stats.HeapAlloc,
		TotalBytes: stats.Sys,
		LimitBytes: limit,
	}, nil
}

// Ticker delivers poll ticks
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker firing every interval
type TickerFactory func(interval time.Duration) Ticker

type timeTicker struct {
	ticker *time.Ticker
}

func (t *timeTicker) C() <-chan time.Time { return t.ticker.C }
func (t *timeTicker) Stop()               { t.ticker.Stop() }

// NewTimeTicker is the TickerFactory backed by time.Ticker
func NewTimeTicker(interval time.Duration) Ticker {
	return &timeTicker{ticker: time.NewTicker(interval)}
}
