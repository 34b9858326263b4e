package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity of a log entry
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Fields carries structured key/value context for a log entry
type Fields = map[string]interface{}

// Sink is the logging capability handed to every component.
// *Logger implements it; Nop() discards everything.
type Sink interface {
	Debug(ctx context.Context, component, action, message string, fields ...Fields)
	Info(ctx context.Context, component, action, message string, fields ...Fields)
	Warn(ctx context.Context, component, action, message string, fields ...Fields)
	Error(ctx context.Context, component, action, message string, err error, fields ...Fields)
}

type nopSink struct{}

func (nopSink) Debug(context.Context, string, string, string, ...Fields)        {}
func (nopSink) Info(context.Context, string, string, string, ...Fields)         {}
func (nopSink) Warn(context.Context, string, string, string, ...Fields)         {}
func (nopSink) Error(context.Context, string, string, string, error, ...Fields) {}

// Nop returns a Sink that drops every entry
func Nop() Sink {
	return nopSink{}
}

// OrNop returns s, or a no-op sink when s is nil
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop()
	}
	return s
}

// ContextKey for correlation ID
type contextKey string

const CorrelationIDKey contextKey = "correlation_id"

// LogEntry represents a structured log entry for JSON serialization
type LogEntry struct {
	Timestamp     time.Time `json:"@timestamp"`
	Level         string    `json:"level"`
	Message       string    `json:"message"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
	Component     string    `json:"component,omitempty"`
	Action        string    `json:"action,omitempty"`
	Duration      *int64    `json:"duration_ms,omitempty"`
	Error         string    `json:"error,omitempty"`
	Fields        Fields    `json:"fields,omitempty"`
	File          string    `json:"file,omitempty"`
	Line          int       `json:"line,omitempty"`
	Function      string    `json:"function,omitempty"`
}

// Logger represents the structured logger
type Logger struct {
	level     LogLevel
	sessionID string
	writers   []io.Writer
	mu        sync.RWMutex
	logChan   chan LogEntry
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Config for logger initialization
type Config struct {
	Level         LogLevel
	SessionID     string
	LogFile       string
	EnableConsole bool
	EnableFile    bool
	BufferSize    int
	MaxFileSizeMB int // rotation size, 0 means lumberjack's default
	MaxFiles      int // rotated files to keep, 0 keeps all
}

// NewLogger creates a new structured logger instance
func NewLogger(config Config) *Logger {
	logger := &Logger{
		level:     config.Level,
		sessionID: config.SessionID,
		writers:   make([]io.Writer, 0),
		logChan:   make(chan LogEntry, config.BufferSize),
		done:      make(chan struct{}),
	}

	// Add console writer if enabled
	if config.EnableConsole {
		logger.writers = append(logger.writers, os.Stdout)
	}

	// Add rotating file writer if enabled
	if config.EnableFile && config.LogFile != "" {
		logger.writers = append(logger.writers, &lumberjack.Logger{
			Filename:   config.LogFile,
			MaxSize:    config.MaxFileSizeMB,
			MaxBackups: config.MaxFiles,
		})
	}

	// Start log processor goroutine
	logger.wg.Add(1)
	go logger.processLogs()

	return logger
}

// processLogs handles asynchronous log writing
func (l *Logger) processLogs() {
	defer l.wg.Done()

	for {
		select {
		case entry := <-l.logChan:
			l.writeEntry(entry)
		case <-l.done:
			// Flush remaining entries
			for {
				select {
				case entry := <-l.logChan:
					l.writeEntry(entry)
				default:
					return
				}
			}
		}
	}
}

// writeEntry writes a log entry to all configured writers
func (l *Logger) writeEntry(entry LogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal log entry: %v\n", err)
		return
	}
	data = append(data, '\n')

	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, writer := range l.writers {
		writer.Write(data)
	}
}

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// NewCorrelationID generates a new correlation ID
func NewCorrelationID() string {
	return uuid.New().String()
}

// GetCorrelationID retrieves the correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// log is the internal logging method
func (l *Logger) log(ctx context.Context, level LogLevel, component, action, message string, fields Fields, err error, duration *time.Duration) {
	if level < l.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level.String(),
		Message:   message,
		SessionID: l.sessionID,
		Component: component,
		Action:    action,
		Fields:    fields,
		File:      "unknown",
		Function:  "unknown",
	}

	// Get caller information
	if pc, file, line, ok := runtime.Caller(2); ok {
		entry.File = file
		entry.Line = line
		if fn := runtime.FuncForPC(pc); fn != nil {
			entry.Function = fn.Name()
		}
	}

	// Add correlation ID if available
	if correlationID := GetCorrelationID(ctx); correlationID != "" {
		entry.CorrelationID = correlationID
	}

	// Add error if provided
	if err != nil {
		entry.Error = err.Error()
	}

	// Add duration if provided
	if duration != nil {
		durationMs := duration.Milliseconds()
		entry.Duration = &durationMs
	}

	// Send to log channel (non-blocking)
	select {
	case l.logChan <- entry:
	default:
		// Log channel is full, write directly (fallback)
		l.writeEntry(entry)
	}
}

func firstFields(fields []Fields) Fields {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// Debug logs a debug message
func (l *Logger) Debug(ctx context.Context, component, action, message string, fields ...Fields) {
	l.log(ctx, DEBUG, component, action, message, firstFields(fields), nil, nil)
}

// Info logs an info message
func (l *Logger) Info(ctx context.Context, component, action, message string, fields ...Fields) {
	l.log(ctx, INFO, component, action, message, firstFields(fields), nil, nil)
}

// Warn logs a warning message
func (l *Logger) Warn(ctx context.Context, component, action, message string, fields ...Fields) {
	l.log(ctx, WARN, component, action, message, firstFields(fields), nil, nil)
}

// Error logs an error message
func (l *Logger) Error(ctx context.Context, component, action, message string, err error, fields ...Fields) {
	l.log(ctx, ERROR, component, action, message, firstFields(fields), err, nil)
}

// Fatal logs a fatal message
func (l *Logger) Fatal(ctx context.Context, component, action, message string, err error, fields ...Fields) {
	l.log(ctx, FATAL, component, action, message, firstFields(fields), err, nil)
}

// WithDuration logs with timing information
func (l *Logger) WithDuration(ctx context.Context, level LogLevel, component, action, message string, duration time.Duration, fields ...Fields) {
	l.log(ctx, level, component, action, message, firstFields(fields), nil, &duration)
}

// StartTimer returns a function that logs duration when called
func (l *Logger) StartTimer(ctx context.Context, component, action, message string) func() {
	start := time.Now()
	return func() {
		l.WithDuration(ctx, DEBUG, component, action, message, time.Since(start))
	}
}

// Close flushes pending entries and closes file writers. Safe to call twice.
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.wg.Wait()

		l.mu.Lock()
		defer l.mu.Unlock()

		for _, writer := range l.writers {
			if closer, ok := writer.(io.Closer); ok && writer != os.Stdout && writer != os.Stderr {
				closer.Close()
			}
		}
	})
}

// AddWriter adds a new writer to the logger
func (l *Logger) AddWriter(writer io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writers = append(l.writers, writer)
}
