// Package logging carries a request-scoped slog logger through context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type loggerKey struct{}

// New returns a JSON logger in prod mode and a text logger otherwise.
func New(w io.Writer, mode, level string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if mode == "prod" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps debug, info, warn and error to slog levels. Unknown is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ToContext stores logger in ctx.
func ToContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// WithSession returns ctx carrying a logger annotated with the session id.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return ToContext(ctx, FromContext(ctx).With("session_id", sessionID))
}
