package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"walletcache/internal/filter"
	"walletcache/internal/logging"
	"walletcache/internal/monitor"
	"walletcache/internal/session"
	"walletcache/internal/storage"
)

// Config represents the main configuration structure
type Config struct {
	Session       SessionConfig       `yaml:"session"`
	HTTP          HTTPConfig          `yaml:"http"`
	Stores        StoresConfig        `yaml:"stores"`
	ResponseCache ResponseCacheConfig `yaml:"response_cache"`
	Pool          PoolConfig          `yaml:"pool"`
	Monitor       MonitorConfig       `yaml:"monitor"`
	Logging       LoggingConfig       `yaml:"logging"`

	// Path is the file the config was read from; empty when defaults were used
	Path string `yaml:"-"`
}

// SessionConfig identifies the client session
type SessionConfig struct {
	ID string `yaml:"id"`
}

// HTTPConfig contains the admin/ingest API configuration
type HTTPConfig struct {
	BindAddr        string        `yaml:"bind_addr"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoresConfig contains per-store configuration
type StoresConfig struct {
	Transactions StoreConfig `yaml:"transactions"`
	Users        StoreConfig `yaml:"users"`
}

// StoreConfig represents configuration for one entity store
type StoreConfig struct {
	MaxRecords      int                   `yaml:"max_records"`
	QueryCacheSize  int                   `yaml:"query_cache_size"`
	ScratchPoolSize int                   `yaml:"scratch_pool_size"`
	AdmissionFilter AdmissionFilterConfig `yaml:"admission_filter"`
}

// AdmissionFilterConfig configures the optional Bloom filter in front of id lookups
type AdmissionFilterConfig struct {
	Enabled           bool    `yaml:"enabled"`
	ExpectedItems     uint64  `yaml:"expected_items"`
	FalsePositiveRate float64 `yaml:"false_positive_rate"`
	HashFunction      string  `yaml:"hash_function"` // "xxhash" or "murmur3"
}

// ResponseCacheConfig configures the encoded API response cache
type ResponseCacheConfig struct {
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
}

// PoolConfig configures reuse pools
type PoolConfig struct {
	BufferPoolSize int `yaml:"buffer_pool_size"`
}

// MonitorConfig configures the memory pressure monitor. Sizes are human readable ("512MB").
type MonitorConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	Warning        string        `yaml:"warning"`
	Critical       string        `yaml:"critical"`
	Emergency      string        `yaml:"emergency"`
	EmergencyGrace time.Duration `yaml:"emergency_grace"`
	HistorySize    int           `yaml:"history_size"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level         string `yaml:"level"`          // debug, info, warn, error, fatal
	EnableConsole bool   `yaml:"enable_console"` // Enable console output
	EnableFile    bool   `yaml:"enable_file"`    // Enable file output
	LogFile       string `yaml:"log_file"`       // Log file path
	BufferSize    int    `yaml:"buffer_size"`    // Async log buffer size
	LogDir        string `yaml:"log_dir"`        // Log directory
	MaxFileSize   string `yaml:"max_file_size"`  // Maximum log file size before rotation
	MaxFiles      int    `yaml:"max_files"`      // Maximum number of log files to keep
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			ID: "walletcache-session-1",
		},
		HTTP: HTTPConfig{
			BindAddr:        "127.0.0.1",
			Port:            9080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Stores: StoresConfig{
			Transactions: StoreConfig{
				MaxRecords:      storage.DefaultMaxRecords,
				QueryCacheSize:  storage.DefaultQueryCacheSize,
				ScratchPoolSize: storage.DefaultScratchPoolSize,
				AdmissionFilter: AdmissionFilterConfig{
					Enabled:           true,
					ExpectedItems:     storage.DefaultMaxRecords,
					FalsePositiveRate: 0.01,
					HashFunction:      filter.HashXXHash,
				},
			},
			Users: StoreConfig{
				MaxRecords:      10000,
				QueryCacheSize:  storage.DefaultQueryCacheSize,
				ScratchPoolSize: storage.DefaultScratchPoolSize,
			},
		},
		ResponseCache: ResponseCacheConfig{
			Capacity: 256,
			TTL:      30 * time.Second,
		},
		Pool: PoolConfig{
			BufferPoolSize: 16,
		},
		Monitor: MonitorConfig{
			PollInterval:   30 * time.Second,
			Warning:        "256MB",
			Critical:       "384MB",
			Emergency:      "512MB",
			EmergencyGrace: 2 * time.Minute,
			HistorySize:    60,
		},
		Logging: LoggingConfig{
			Level:         "info",
			EnableConsole: true,
			EnableFile:    false,
			LogFile:       "", // Will be set based on session ID
			BufferSize:    1000,
			LogDir:        "logs",
			MaxFileSize:   "100MB",
			MaxFiles:      10,
		},
	}
}

// Load reads and parses the configuration file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	// Try to read file
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.Path = path

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Session.ID == "" {
		return fmt.Errorf("session.id cannot be empty")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535")
	}
	if c.ResponseCache.Capacity <= 0 {
		return fmt.Errorf("response_cache.capacity must be > 0")
	}
	if c.ResponseCache.TTL < 0 {
		return fmt.Errorf("response_cache.ttl cannot be negative")
	}
	if c.Pool.BufferPoolSize <= 0 {
		return fmt.Errorf("pool.buffer_pool_size must be > 0")
	}

	for name, store := range map[string]StoreConfig{
		"transactions": c.Stores.Transactions,
		"users":        c.Stores.Users,
	} {
		if err := store.validate(); err != nil {
			return fmt.Errorf("stores.%s: %w", name, err)
		}
	}

	if _, err := c.Monitor.toMonitorConfig(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	if c.Logging.MaxFileSize != "" {
		if _, err := humanize.ParseBytes(c.Logging.MaxFileSize); err != nil {
			return fmt.Errorf("invalid logging.max_file_size: %w", err)
		}
	}

	return nil
}

func (s StoreConfig) validate() error {
	if s.MaxRecords < 0 || s.QueryCacheSize < 0 || s.ScratchPoolSize < 0 {
		return fmt.Errorf("sizes cannot be negative")
	}
	if !s.AdmissionFilter.Enabled {
		return nil
	}
	if !isValidHashFunction(s.AdmissionFilter.HashFunction) {
		return fmt.Errorf("invalid admission_filter.hash_function: %s", s.AdmissionFilter.HashFunction)
	}
	if p := s.AdmissionFilter.FalsePositiveRate; p <= 0 || p >= 1 {
		return fmt.Errorf("admission_filter.false_positive_rate must be between 0 and 1")
	}
	return nil
}

// isValidHashFunction checks if the Bloom hash family is supported
func isValidHashFunction(name string) bool {
	validFunctions := map[string]bool{
		"":                 true, // default
		filter.HashXXHash:  true,
		filter.HashMurmur3: true,
	}
	return validFunctions[name]
}

// ToMonitorConfig converts the monitor section to the monitor package config
func (c *Config) ToMonitorConfig() (monitor.Config, error) {
	return c.Monitor.toMonitorConfig()
}

func (m MonitorConfig) toMonitorConfig() (monitor.Config, error) {
	warning, err := humanize.ParseBytes(m.Warning)
	if err != nil {
		return monitor.Config{}, fmt.Errorf("invalid warning size %q: %w", m.Warning, err)
	}
	critical, err := humanize.ParseBytes(m.Critical)
	if err != nil {
		return monitor.Config{}, fmt.Errorf("invalid critical size %q: %w", m.Critical, err)
	}
	emergency, err := humanize.ParseBytes(m.Emergency)
	if err != nil {
		return monitor.Config{}, fmt.Errorf("invalid emergency size %q: %w", m.Emergency, err)
	}

	config := monitor.Config{
		PollInterval:   m.PollInterval,
		WarningBytes:   warning,
		CriticalBytes:  critical,
		EmergencyBytes: emergency,
		EmergencyGrace: m.EmergencyGrace,
		HistorySize:    m.HistorySize,
	}
	if err := config.Validate(); err != nil {
		return monitor.Config{}, err
	}
	return config, nil
}

// ToStoreConfig converts a store section to the storage package config
func (s StoreConfig) ToStoreConfig(name string) storage.EntityStoreConfig {
	config := storage.EntityStoreConfig{
		Name:            name,
		MaxRecords:      s.MaxRecords,
		QueryCacheSize:  s.QueryCacheSize,
		ScratchPoolSize: s.ScratchPoolSize,
	}
	if s.AdmissionFilter.Enabled {
		expected := s.AdmissionFilter.ExpectedItems
		if expected == 0 {
			expected = uint64(s.MaxRecords)
		}
		if expected == 0 {
			expected = storage.DefaultMaxRecords
		}
		config.AdmissionFilter = &filter.FilterConfig{
			Name:              name + ".admission",
			ExpectedItems:     expected,
			FalsePositiveRate: s.AdmissionFilter.FalsePositiveRate,
			HashFunction:      s.AdmissionFilter.HashFunction,
		}
	}
	return config
}

// ToSessionConfig converts the application config to a session config
func (c *Config) ToSessionConfig() (session.Config, error) {
	monitorConfig, err := c.ToMonitorConfig()
	if err != nil {
		return session.Config{}, err
	}
	return session.Config{
		ID:                c.Session.ID,
		Transactions:      c.Stores.Transactions.ToStoreConfig("transactions"),
		Users:             c.Stores.Users.ToStoreConfig("users"),
		ResponseCacheSize: c.ResponseCache.Capacity,
		ResponseCacheTTL:  c.ResponseCache.TTL,
		BufferPoolSize:    c.Pool.BufferPoolSize,
		Monitor:           monitorConfig,
	}, nil
}

// ToLogConfig converts the logging section to the logging package config
func (c *Config) ToLogConfig() logging.LogConfig {
	return logging.LogConfig{
		Level:         c.Logging.Level,
		EnableConsole: c.Logging.EnableConsole,
		EnableFile:    c.Logging.EnableFile,
		LogFile:       c.Logging.LogFile,
		BufferSize:    c.Logging.BufferSize,
		LogDir:        c.Logging.LogDir,
		MaxFileSize:   c.Logging.MaxFileSize,
		MaxFiles:      c.Logging.MaxFiles,
	}
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.BindAddr, c.HTTP.Port)
}
