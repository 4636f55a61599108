package strutil

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestClip(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"empty", "", 10, ""},
		{"short", "refund", 10, "refund"},
		{"exact", "refund", 6, "refund"},
		{"cut", "refund please", 6, "refund"},
		{"zero", "refund", 0, ""},
		{"negative", "refund", -3, ""},
		{"multibyte", "café crème", 4, "café"},
		{"emoji", "ok 👍 thanks", 4, "ok 👍"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Clip(tt.input, tt.max)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Where is my...", Truncate("Where is my order?", 11))
	assert.Equal(t, "short", Truncate("short", 40))
	assert.Equal(t, "", Truncate("anything", 0))
	assert.Equal(t, "日本"+Ellipsis, Truncate("日本語です", 2))
}
