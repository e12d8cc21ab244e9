// Package log provides the structured logging used across the engine: the
// transaction manager and the audit stream (internal/audit) log through the
// Logger interface rather than calling slog directly; the query compiler and
// CRUD executor do not log.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-colorable"
)

// Logger is implemented by both the human-readable and structured loggers.
type Logger interface {
	DebugContext(ctx context.Context, msg string, keysAndValues ...any)
	InfoContext(ctx context.Context, msg string, keysAndValues ...any)
	WarnContext(ctx context.Context, msg string, keysAndValues ...any)
	ErrorContext(ctx context.Context, msg string, keysAndValues ...any)
}

// NewLogger creates a new logger based on the provided format and level.
func NewLogger(format, level string, out, err io.Writer) (Logger, error) {
	switch strings.ToLower(format) {
	case "json":
		return NewStructuredLogger(out, err, level)
	case "standard":
		return NewStdLogger(out, err, level)
	default:
		return nil, fmt.Errorf("logging format invalid: %s", format)
	}
}

const (
	Debug = "DEBUG"
	Info  = "INFO"
	Warn  = "WARN"
	Error = "ERROR"
)

// SeverityToLevel returns the slog.Level for a severity string.
func SeverityToLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(s) {
	case Debug:
		return slog.LevelDebug, nil
	case Info:
		return slog.LevelInfo, nil
	case Warn:
		return slog.LevelWarn, nil
	case Error:
		return slog.LevelError, nil
	default:
		return slog.Level(-5), fmt.Errorf("invalid log level %q", s)
	}
}

// StdLogger is the human-readable logger, informational output on out and
// warnings/errors on err.
type StdLogger struct {
	outLogger *slog.Logger
	errLogger *slog.Logger
}

var _ Logger = &StdLogger{}

// colorableWriter wraps w with go-colorable when w is a file handle (e.g.
// os.Stdout/os.Stderr), so the text handler's ANSI sequences render
// correctly on Windows consoles instead of leaking escape codes; any other
// io.Writer (a bytes.Buffer in tests, a log file) is returned unchanged.
func colorableWriter(w io.Writer) io.Writer {
	if f, ok := w.(*os.File); ok {
		return colorable.NewColorable(f)
	}
	return w
}

// NewStdLogger creates a Logger that writes text-formatted records to out and err.
func NewStdLogger(outW, errW io.Writer, logLevel string) (Logger, error) {
	programLevel := new(slog.LevelVar)
	slogLevel, err := SeverityToLevel(logLevel)
	if err != nil {
		return nil, err
	}
	programLevel.Set(slogLevel)

	handlerOptions := &slog.HandlerOptions{Level: programLevel}
	return &StdLogger{
		outLogger: slog.New(slog.NewTextHandler(colorableWriter(outW), handlerOptions)),
		errLogger: slog.New(slog.NewTextHandler(colorableWriter(errW), handlerOptions)),
	}, nil
}

func (sl *StdLogger) DebugContext(ctx context.Context, msg string, kv ...any) {
	sl.outLogger.DebugContext(ctx, msg, kv...)
}

func (sl *StdLogger) InfoContext(ctx context.Context, msg string, kv ...any) {
	sl.outLogger.InfoContext(ctx, msg, kv...)
}

func (sl *StdLogger) WarnContext(ctx context.Context, msg string, kv ...any) {
	sl.errLogger.WarnContext(ctx, msg, kv...)
}

func (sl *StdLogger) ErrorContext(ctx context.Context, msg string, kv ...any) {
	sl.errLogger.ErrorContext(ctx, msg, kv...)
}

// StructuredLogger logs JSON records, one per line.
type StructuredLogger struct {
	outLogger *slog.Logger
	errLogger *slog.Logger
}

var _ Logger = &StructuredLogger{}

// NewStructuredLogger creates a Logger that logs JSON messages.
func NewStructuredLogger(outW, errW io.Writer, logLevel string) (Logger, error) {
	programLevel := new(slog.LevelVar)
	slogLevel, err := SeverityToLevel(logLevel)
	if err != nil {
		return nil, err
	}
	programLevel.Set(slogLevel)

	handlerOptions := &slog.HandlerOptions{Level: programLevel}
	return &StructuredLogger{
		outLogger: slog.New(slog.NewJSONHandler(outW, handlerOptions)),
		errLogger: slog.New(slog.NewJSONHandler(errW, handlerOptions)),
	}, nil
}

func (sl *StructuredLogger) DebugContext(ctx context.Context, msg string, kv ...any) {
	sl.outLogger.DebugContext(ctx, msg, kv...)
}

func (sl *StructuredLogger) InfoContext(ctx context.Context, msg string, kv ...any) {
	sl.outLogger.InfoContext(ctx, msg, kv...)
}

func (sl *StructuredLogger) WarnContext(ctx context.Context, msg string, kv ...any) {
	sl.errLogger.WarnContext(ctx, msg, kv...)
}

func (sl *StructuredLogger) ErrorContext(ctx context.Context, msg string, kv ...any) {
	sl.errLogger.ErrorContext(ctx, msg, kv...)
}

// NewNopLogger returns a Logger that discards everything, used as the default
// when a Database is opened without an explicit logger.
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (nopLogger) DebugContext(context.Context, string, ...any) {}
func (nopLogger) InfoContext(context.Context, string, ...any)  {}
func (nopLogger) WarnContext(context.Context, string, ...any)  {}
func (nopLogger) ErrorContext(context.Context, string, ...any) {}
