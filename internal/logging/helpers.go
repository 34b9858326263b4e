package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// LogLevelFromString converts string to LogLevel
func LogLevelFromString(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// InitializeFromConfig builds a logger from configuration
func InitializeFromConfig(sessionID string, logConfig LogConfig) (*Logger, error) {
	// Ensure log directory exists
	if logConfig.EnableFile && logConfig.LogDir != "" {
		if err := os.MkdirAll(logConfig.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	// Set log file path if not specified
	logFile := logConfig.LogFile
	if logFile == "" && logConfig.EnableFile {
		logFile = filepath.Join(logConfig.LogDir, fmt.Sprintf("%s.log", sessionID))
	}

	maxSizeMB := 0
	if logConfig.MaxFileSize != "" {
		size, err := humanize.ParseBytes(logConfig.MaxFileSize)
		if err != nil {
			return nil, fmt.Errorf("invalid max_file_size %q: %w", logConfig.MaxFileSize, err)
		}
		maxSizeMB = int(size / humanize.MiByte)
		if maxSizeMB == 0 {
			maxSizeMB = 1
		}
	}

	return NewLogger(Config{
		Level:         LogLevelFromString(logConfig.Level),
		SessionID:     sessionID,
		LogFile:       logFile,
		EnableConsole: logConfig.EnableConsole,
		EnableFile:    logConfig.EnableFile,
		BufferSize:    logConfig.BufferSize,
		MaxFileSizeMB: maxSizeMB,
		MaxFiles:      logConfig.MaxFiles,
	}), nil
}

// LogConfig represents logging configuration (matching the YAML structure)
type LogConfig struct {
	Level         string `yaml:"level"`
	EnableConsole bool   `yaml:"enable_console"`
	EnableFile    bool   `yaml:"enable_file"`
	LogFile       string `yaml:"log_file"`
	BufferSize    int    `yaml:"buffer_size"`
	LogDir        string `yaml:"log_dir"`
	MaxFileSize   string `yaml:"max_file_size"`
	MaxFiles      int    `yaml:"max_files"`
}

// ComponentNames for structured logging
const (
	ComponentHTTP        = "http"
	ComponentCache       = "cache"
	ComponentFilter      = "filter"
	ComponentStorage     = "storage"
	ComponentMonitor     = "monitor"
	ComponentSession     = "session"
	ComponentConfig      = "config"
	ComponentConfigWatch = "config_watch"
	ComponentMain        = "main"
)

// ActionNames for structured logging
const (
	ActionStart       = "start"
	ActionStop        = "stop"
	ActionRequest     = "request"
	ActionResponse    = "response"
	ActionIngest      = "ingest"
	ActionQuery       = "query"
	ActionInvalidate  = "invalidate"
	ActionEvict       = "evict"
	ActionSample      = "sample"
	ActionTransition  = "transition"
	ActionCleanup     = "cleanup"
	ActionTeardown    = "teardown"
	ActionRestart     = "restart"
	ActionReload      = "reload"
	ActionValidation  = "validation"
	ActionUnavailable = "unavailable"
	ActionRecover     = "recover"
)
