package context

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/supportdesk/ai/conversation"
)

func makeTurns(withSystem bool, n int) []conversation.Turn {
	var turns []conversation.Turn
	if withSystem {
		turns = append(turns, conversation.Turn{Role: conversation.RoleSystem, Content: "preamble"})
	}
	for i := 0; i < n; i++ {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAssistant
		}
		turns = append(turns, conversation.Turn{Role: role, Content: fmt.Sprintf("m%d", i), Seq: len(turns)})
	}
	return turns
}

func TestWindow_Trim(t *testing.T) {
	w := NewWindow(10)

	testCases := []struct {
		name       string
		withSystem bool
		n          int
		wantLen    int
		wantFirst  string
		wantLast   string
	}{
		{"empty", false, 0, 0, "", ""},
		{"under limit with system", true, 4, 5, "preamble", "m3"},
		{"exactly at limit", true, 10, 11, "preamble", "m9"},
		{"over limit keeps system", true, 25, 11, "preamble", "m24"},
		{"over limit without system", false, 25, 10, "m15", "m24"},
		{"only system", true, 0, 1, "preamble", "preamble"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := w.Trim(makeTurns(tc.withSystem, tc.n))
			require.Len(t, out, tc.wantLen)
			if tc.wantLen == 0 {
				return
			}
			assert.Equal(t, tc.wantFirst, out[0].Content)
			assert.Equal(t, tc.wantLast, out[len(out)-1].Content)
		})
	}
}

func TestWindow_TrimBoundsAllLengths(t *testing.T) {
	for size := 1; size <= 12; size++ {
		w := NewWindow(size)
		for n := 0; n <= 40; n++ {
			in := makeTurns(true, n)
			out := w.Trim(in)
			assert.LessOrEqual(t, len(out), size+1)
			require.NotEmpty(t, out)
			assert.Equal(t, conversation.RoleSystem, out[0].Role)

			// The tail is a contiguous, unaltered suffix of the input.
			tail := out[1:]
			assert.Equal(t, in[len(in)-len(tail):], tail)
		}
	}
}

func TestWindow_TrimDoesNotMutate(t *testing.T) {
	in := makeTurns(true, 15)
	snapshot := append([]conversation.Turn(nil), in...)

	out := NewWindow(3).Trim(in)
	out[0].Content = "changed"

	assert.Equal(t, snapshot, in)
}

func TestNewWindow_Default(t *testing.T) {
	assert.Equal(t, DefaultWindowSize, NewWindow(0).Size())
	assert.Equal(t, 4, NewWindow(4).Size())
}
