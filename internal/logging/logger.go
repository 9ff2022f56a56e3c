// Package logging provides structured, leveled logging for the feed
// subsystem. Loggers carry a fixed field set and can be attached to a
// context so background sweeps and request paths share one instance.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	// LevelDebug is for detailed debugging information.
	LevelDebug Level = iota
	// LevelInfo is for general information messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string to a Level. Unknown strings map to info.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format represents the output format for log messages.
type Format int

const (
	// FormatJSON outputs logs as JSON objects, one per line.
	FormatJSON Format = iota
	// FormatText outputs logs as human-readable text.
	FormatText
)

// ParseFormat converts a string to a Format. Unknown strings map to JSON.
func ParseFormat(s string) Format {
	switch s {
	case "text":
		return FormatText
	default:
		return FormatJSON
	}
}

// Entry is the serialized form of a single log line.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Logger writes structured log entries at or above a minimum level.
// All methods are safe for concurrent use.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	level  Level
	format Format
	fields map[string]any
}

// Config holds configuration for a Logger.
type Config struct {
	Level  Level
	Format Format
	Output io.Writer
}

// New creates a Logger. A nil Output defaults to stderr.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	return &Logger{
		out:    out,
		level:  cfg.Level,
		format: cfg.Format,
		fields: make(map[string]any),
	}
}

// DefaultLogger returns a JSON logger at info level writing to stderr.
func DefaultLogger() *Logger {
	return New(Config{Level: LevelInfo, Format: FormatJSON})
}

// SetLevel updates the minimum logging level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// With returns a child logger that includes the given fields on every entry.
// The receiver is not modified.
func (l *Logger) With(fields map[string]any) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	merged := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{
		out:    l.out,
		level:  l.level,
		format: l.format,
		fields: merged,
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) { l.log(LevelDebug, msg, nil) }

// Debugf logs a debug message with fields.
func (l *Logger) Debugf(msg string, fields map[string]any) { l.log(LevelDebug, msg, fields) }

// Info logs an info message.
func (l *Logger) Info(msg string) { l.log(LevelInfo, msg, nil) }

// Infof logs an info message with fields.
func (l *Logger) Infof(msg string, fields map[string]any) { l.log(LevelInfo, msg, fields) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string) { l.log(LevelWarn, msg, nil) }

// Warnf logs a warning message with fields.
func (l *Logger) Warnf(msg string, fields map[string]any) { l.log(LevelWarn, msg, fields) }

// Error logs an error message.
func (l *Logger) Error(msg string) { l.log(LevelError, msg, nil) }

// Errorf logs an error message with fields.
func (l *Logger) Errorf(msg string, fields map[string]any) { l.log(LevelError, msg, fields) }

func (l *Logger) log(level Level, msg string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	entry := Entry{
		Timestamp: time.Now().UTC(),
		Level:     level.String(),
		Message:   msg,
	}
	if len(l.fields) > 0 || len(fields) > 0 {
		entry.Fields = make(map[string]any, len(l.fields)+len(fields))
		for k, v := range l.fields {
			entry.Fields[k] = v
		}
		for k, v := range fields {
			entry.Fields[k] = v
		}
	}

	switch l.format {
	case FormatText:
		l.writeText(entry)
	default:
		l.writeJSON(entry)
	}
}

func (l *Logger) writeJSON(entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(l.out, `{"level":"error","message":"log marshal failed: %v"}`+"\n", err)
		return
	}
	l.out.Write(append(data, '\n'))
}

func (l *Logger) writeText(entry Entry) {
	var b strings.Builder
	b.WriteString(entry.Timestamp.Format(time.RFC3339))
	b.WriteByte(' ')
	b.WriteString(strings.ToUpper(entry.Level))
	b.WriteByte(' ')
	b.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
		}
	}
	b.WriteByte('\n')
	l.out.Write([]byte(b.String()))
}
