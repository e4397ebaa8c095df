package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/platinummonkey/subscriptions/pkg/contextkeys"
)

// LogLevel is the minimum severity a Logger writes
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var slogLevels = map[LogLevel]slog.Level{
	DebugLevel: slog.LevelDebug,
	InfoLevel:  slog.LevelInfo,
	WarnLevel:  slog.LevelWarn,
	ErrorLevel: slog.LevelError,
}

func (l LogLevel) String() string {
	if lvl, ok := slogLevels[l]; ok {
		return lvl.String()
	}
	return fmt.Sprintf("LogLevel(%d)", int(l))
}

// ParseLogLevel reads LOG_LEVEL values; an empty value means info
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// Logger writes JSON lines through log/slog. The With* methods return a
// child logger and leave the receiver untouched.
type Logger struct {
	slog *slog.Logger
}

// NewLogger writes to output, or stdout when output is nil
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	lvl, ok := slogLevels[level]
	if !ok {
		lvl = slog.LevelInfo
	}
	return &Logger{slog: slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: lvl}))}
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(key, value)
}

func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]any, 0, 2*len(fields))
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.with(args...)
}

// WithError attaches err as the "error" field; a nil err is a no-op
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

func (l *Logger) Debug(msg string) { l.slog.Debug(msg) }
func (l *Logger) Info(msg string)  { l.slog.Info(msg) }
func (l *Logger) Warn(msg string)  { l.slog.Warn(msg) }
func (l *Logger) Error(msg string) { l.slog.Error(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.slog.Debug(fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...interface{})  { l.slog.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.slog.Warn(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.slog.Error(fmt.Sprintf(format, args...)) }

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return contextkeys.WithRequestID(ctx, requestID)
}

func GetRequestID(ctx context.Context) string {
	return contextkeys.GetRequestID(ctx)
}

// WithStaffID records the authenticated staff user for log lines
func WithStaffID(ctx context.Context, staffID string) context.Context {
	return contextkeys.WithStaffID(ctx, staffID)
}

func GetStaffID(ctx context.Context) string {
	return contextkeys.GetStaffID(ctx)
}

func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextkeys.LoggerKey, logger)
}

// GetLogger returns the logger stored in ctx, or an info-level stdout logger
func GetLogger(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextkeys.LoggerKey).(*Logger); ok && logger != nil {
		return logger
	}
	return NewLogger(InfoLevel, os.Stdout)
}

// FromContext is GetLogger tagged with the request and staff ids, when set
func FromContext(ctx context.Context) *Logger {
	logger := GetLogger(ctx)
	var args []any
	if id := GetRequestID(ctx); id != "" {
		args = append(args, "request_id", id)
	}
	if id := GetStaffID(ctx); id != "" {
		args = append(args, "staff_id", id)
	}
	if len(args) == 0 {
		return logger
	}
	return logger.with(args...)
}
