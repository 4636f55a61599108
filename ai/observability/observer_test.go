package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	Nop
	attempts []AttemptEvent
	failures []FailureEvent
}

func (r *recorder) InferenceAttempt(_ context.Context, e AttemptEvent) {
	r.attempts = append(r.attempts, e)
}

func (r *recorder) Failed(_ context.Context, e FailureEvent) {
	r.failures = append(r.failures, e)
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, b}
	ctx := context.Background()

	m.InferenceAttempt(ctx, AttemptEvent{Backend: "primary", Outcome: OutcomeTimeout})
	m.Failed(ctx, FailureEvent{Stage: StageTicket, Err: errors.New("down")})
	m.TurnCompleted(ctx, TurnEvent{})

	for _, r := range []*recorder{a, b} {
		assert.Len(t, r.attempts, 1)
		assert.Len(t, r.failures, 1)
	}
}

func TestOrNop(t *testing.T) {
	assert.Equal(t, Nop{}, OrNop(nil))
	r := &recorder{}
	assert.Same(t, r, OrNop(r))
}

func TestSlogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	o := NewSlogObserver(logger)
	ctx := context.Background()

	o.InferenceAttempt(ctx, AttemptEvent{Backend: "fallback", Outcome: OutcomeRateLimited, Latency: 20 * time.Millisecond})
	o.Sanitized(ctx, SanitizeEvent{SessionID: "s1", Matches: map[string]int{"email": 1}})
	o.Escalated(ctx, EscalationEvent{SessionID: "s1", TicketID: "TICK-1"})
	o.Failed(ctx, FailureEvent{SessionID: "s1", Stage: StagePersistence, Err: errors.New("disk full")})

	out := buf.String()
	assert.Contains(t, out, `"backend":"fallback"`)
	assert.Contains(t, out, `"outcome":"rate_limited"`)
	assert.Contains(t, out, `"ticket_id":"TICK-1"`)
	assert.Contains(t, out, `"stage":"persistence"`)
	assert.Contains(t, out, `"component":"observer"`)
}
