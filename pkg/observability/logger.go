package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// LogLevel is the minimum severity a logger emits.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger emits structured JSON log lines. It wraps slog so fields attached
// with WithField travel with every subsequent line.
type Logger struct {
	slog  *slog.Logger
	level LogLevel
}

// NewLogger creates a JSON logger writing to output at the given level.
// A nil output defaults to stdout.
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level.slogLevel()})
	return &Logger{slog: slog.New(handler), level: level}
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), level: l.level}
}

// WithField returns a logger that includes key=value on every line.
func (l *Logger) WithField(key string, value any) *Logger {
	return l.with(key, value)
}

// WithFields returns a logger that includes all given fields on every line.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.with(args...)
}

// WithError returns a logger carrying the error message as a field. A nil
// error returns the receiver unchanged.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

func (l *Logger) logf(level slog.Level, format string, args []any) {
	if len(args) == 0 {
		l.slog.Log(context.Background(), level, format)
		return
	}
	l.slog.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

// Debug logs at debug level.
func (l *Logger) Debug(message string) { l.logf(slog.LevelDebug, message, nil) }

// Debugf logs a formatted message at debug level.
func (l *Logger) Debugf(format string, args ...any) { l.logf(slog.LevelDebug, format, args) }

// Info logs at info level.
func (l *Logger) Info(message string) { l.logf(slog.LevelInfo, message, nil) }

// Infof logs a formatted message at info level.
func (l *Logger) Infof(format string, args ...any) { l.logf(slog.LevelInfo, format, args) }

// Warn logs at warn level.
func (l *Logger) Warn(message string) { l.logf(slog.LevelWarn, message, nil) }

// Warnf logs a formatted message at warn level.
func (l *Logger) Warnf(format string, args ...any) { l.logf(slog.LevelWarn, format, args) }

// Error logs at error level.
func (l *Logger) Error(message string) { l.logf(slog.LevelError, message, nil) }

// Errorf logs a formatted message at error level.
func (l *Logger) Errorf(format string, args ...any) { l.logf(slog.LevelError, format, args) }

type contextKey string

// Context keys for request-scoped values threaded through handlers and
// background tasks.
const (
	RequestIDKey contextKey = "request_id"
	TenantKey    contextKey = "tenant"
	LoggerKey    contextKey = "logger"
)

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID returns the request ID from the context, or "".
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

// WithTenant stores the tenant scope in the context.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, TenantKey, tenant)
}

// GetTenant returns the tenant scope from the context, or "".
func GetTenant(ctx context.Context) string {
	v, _ := ctx.Value(TenantKey).(string)
	return v
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetLogger returns the logger from the context, or a default info-level
// logger when none was stored.
func GetLogger(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerKey).(*Logger); ok {
		return logger
	}
	return NewLogger(InfoLevel, os.Stdout)
}

// FromContext returns the context's logger annotated with the request ID and
// tenant when present.
func FromContext(ctx context.Context) *Logger {
	logger := GetLogger(ctx)
	if requestID := GetRequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}
	if tenant := GetTenant(ctx); tenant != "" {
		logger = logger.WithField("tenant", tenant)
	}
	return logger
}
