package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/levenlabs/go-llog"
)

var (
	defaultLogLevel slog.LevelVar
	defaultLogger   = newLogger(os.Stderr)
)

func init() {
	defaultLogLevel.Set(slog.LevelInfo)
}

// logs go to stderr so command output on stdout stays machine readable
func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     &defaultLogLevel,
	}))
}

type contextKey struct{}

var loggerKey = contextKey{}

// Ctx returns the logger from the context. If no logger is found, it returns the default logger.
func Ctx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return defaultLogger
}

// With returns a new context with the given logger.
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithAttrs returns a new context whose logger carries the given attributes.
func WithAttrs(ctx context.Context, args ...any) context.Context {
	return With(ctx, Ctx(ctx).With(args...))
}

func SetDefaultLogLevel(level slog.Level) {
	defaultLogLevel.Set(level)
}

// LevelFromFlags translates the level lflag configured on llog into a slog
// level. lflag sets llog's level for us but slog needs to be told separately.
func LevelFromFlags() (slog.Level, error) {
	switch llog.GetLevel() {
	case llog.DebugLevel:
		return slog.LevelDebug, nil
	case llog.InfoLevel:
		return slog.LevelInfo, nil
	case llog.WarnLevel:
		return slog.LevelWarn, nil
	case llog.ErrorLevel:
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", llog.GetLevel().String())
	}
}
