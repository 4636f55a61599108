package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, ParseLevel(in))
		})
	}
}

func TestContextLogger(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))

	var buf bytes.Buffer
	logger := New(&buf, "prod", "debug")
	ctx := WithSession(ToContext(context.Background(), logger), "s-42")
	FromContext(ctx).Info("hello")

	assert.Contains(t, buf.String(), `"session_id":"s-42"`)
}
