package observe

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"slices"
	"sync"
	"time"
)

// Logger is a minimal structured logging interface.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: logging is best-effort and must not panic.
type Logger interface {
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)

	// WithAction returns a logger that tags every record with the action.
	WithAction(meta ActionMeta) Logger
}

// Field represents a structured log field.
type Field struct {
	Key   string
	Value any
}

// LogLevel represents a logging level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLogLevel parses a string log level. Unknown levels map to info.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// jsonLogger writes one JSON object per record.
type jsonLogger struct {
	level     LogLevel
	mu        *sync.Mutex
	writer    io.Writer
	baseAttrs map[string]any
}

// NewLogger creates a JSON logger writing to stderr.
func NewLogger(level string) Logger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter creates a JSON logger with a custom writer.
func NewLoggerWithWriter(level string, w io.Writer) Logger {
	return &jsonLogger{
		level:     ParseLogLevel(level),
		mu:        &sync.Mutex{},
		writer:    w,
		baseAttrs: make(map[string]any),
	}
}

// WithAction returns a logger with action attributes attached. The returned
// logger shares the writer and its lock.
func (l *jsonLogger) WithAction(meta ActionMeta) Logger {
	attrs := make(map[string]any, len(l.baseAttrs)+2)
	for k, v := range l.baseAttrs {
		attrs[k] = v
	}
	attrs["action.name"] = meta.Name
	if meta.Key != "" {
		attrs["cache.key"] = meta.Key
	}

	return &jsonLogger{
		level:     l.level,
		mu:        l.mu,
		writer:    l.writer,
		baseAttrs: attrs,
	}
}

func (l *jsonLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelInfo, msg, fields)
}

func (l *jsonLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelWarn, msg, fields)
}

func (l *jsonLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelError, msg, fields)
}

func (l *jsonLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelDebug, msg, fields)
}

func (l *jsonLogger) log(_ context.Context, level LogLevel, msg string, fields []Field) {
	if level < l.level {
		return
	}

	entry := make(map[string]any, len(l.baseAttrs)+len(fields)+3)
	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["msg"] = msg

	for k, v := range l.baseAttrs {
		entry[k] = v
	}

	for _, f := range fields {
		if slices.Contains(RedactedFields, f.Key) {
			entry[f.Key] = "[REDACTED]"
		} else {
			entry[f.Key] = f.Value
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return // Silently drop malformed log entries
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.writer.Write(data)
}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Info(context.Context, string, ...Field)  {}
func (nopLogger) Warn(context.Context, string, ...Field)  {}
func (nopLogger) Error(context.Context, string, ...Field) {}
func (nopLogger) Debug(context.Context, string, ...Field) {}
func (l nopLogger) WithAction(ActionMeta) Logger          { return l }

var (
	_ Logger = (*jsonLogger)(nil)
	_ Logger = nopLogger{}
)
