// Package logging provides the leveled logger used across the engine.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	// LogLevelDebug is for detailed measurement traces.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is for general informational messages.
	LogLevelInfo
	// LogLevelWarn is for warning messages.
	LogLevelWarn
	// LogLevelError is for error messages.
	LogLevelError
	// LogLevelOff disables all logging.
	LogLevelOff
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a config string to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	case "off":
		return LogLevelOff, nil
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Fields is a set of structured key/value pairs.
type Fields = logrus.Fields

// Logger is a leveled printf-style logger with structured fields.
type Logger struct {
	mu     sync.Mutex
	base   *logrus.Logger
	entry  *logrus.Entry
	prefix string
}

// New creates a logger writing text lines to output.
func New(output io.Writer, prefix string) *Logger {
	base := logrus.New()
	base.SetOutput(output)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	l := &Logger{base: base, prefix: prefix}
	l.entry = logrus.NewEntry(base)
	l.SetLevel(LogLevelInfo)
	return l
}

// NewJSON creates a logger that emits one JSON object per line.
func NewJSON(output io.Writer, prefix string) *Logger {
	l := New(output, prefix)
	l.base.SetFormatter(&logrus.JSONFormatter{})
	return l
}

// NewFormat creates a logger writing to output in format "text" (or
// empty) or "json".
func NewFormat(output io.Writer, prefix, format string) (*Logger, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return New(output, prefix), nil
	case "json":
		return NewJSON(output, prefix), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// NewFileLogger creates a logger that appends to a file, creating its
// directory when needed.
func NewFileLogger(filename, prefix, format string) (*Logger, error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l, err := NewFormat(file, prefix, format)
	if err != nil {
		file.Close()
		return nil, err
	}
	return l, nil
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	l := New(io.Discard, "")
	l.SetLevel(LogLevelOff)
	return l
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level LogLevel) {
	switch level {
	case LogLevelDebug:
		l.base.SetLevel(logrus.DebugLevel)
	case LogLevelInfo:
		l.base.SetLevel(logrus.InfoLevel)
	case LogLevelWarn:
		l.base.SetLevel(logrus.WarnLevel)
	case LogLevelError:
		l.base.SetLevel(logrus.ErrorLevel)
	default:
		l.base.SetLevel(logrus.PanicLevel)
	}
}

// WithFields returns a child logger that attaches fields to every line.
// The child shares output and level with its parent.
func (l *Logger) WithFields(fields Fields) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{
		base:   l.base,
		entry:  l.entry.WithFields(fields),
		prefix: l.prefix,
	}
}

// WithField is WithFields for a single pair.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(Fields{key: value})
}

func (l *Logger) log(level logrus.Level, format string, args ...interface{}) {
	l.mu.Lock()
	entry, prefix := l.entry, l.prefix
	l.mu.Unlock()

	if !l.base.IsLevelEnabled(level) {
		return
	}
	if prefix != "" {
		entry = entry.WithField("component", prefix)
	}
	entry.Logf(level, format, args...)
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(logrus.DebugLevel, format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(logrus.InfoLevel, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(logrus.WarnLevel, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(logrus.ErrorLevel, format, args...)
}
