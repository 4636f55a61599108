// Package context bounds and persists the conversation history that is fed
// to inference.
package context

import (
	"github.com/hrygo/supportdesk/ai/conversation"
)

// DefaultWindowSize is the number of non-system turns kept for inference.
const DefaultWindowSize = 10

// Window is a sliding window over conversation turns.
type Window struct {
	size int
}

// NewWindow returns a window keeping the last size turns.
// A non-positive size falls back to DefaultWindowSize.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{size: size}
}

// Size returns the number of non-system turns kept.
func (w *Window) Size() int {
	return w.size
}

// Trim returns the leading system turn, if any, followed by the last Size
// remaining turns. The result has at most Size+1 turns and never aliases the
// input slice.
func (w *Window) Trim(turns []conversation.Turn) []conversation.Turn {
	if len(turns) == 0 {
		return nil
	}

	var head []conversation.Turn
	rest := turns
	if turns[0].Role == conversation.RoleSystem {
		head = turns[:1]
		rest = turns[1:]
	}
	if len(rest) > w.size {
		rest = rest[len(rest)-w.size:]
	}

	out := make([]conversation.Turn, 0, len(head)+len(rest))
	out = append(out, head...)
	return append(out, rest...)
}
