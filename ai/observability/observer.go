// Package observability defines the events the support pipeline emits and
// the Observer collaborator that receives them.
package observability

import (
	"context"
	"time"
)

// Attempt outcomes reported by the inference gateway.
const (
	OutcomeSuccess        = "success"
	OutcomeTimeout        = "timeout"
	OutcomeRateLimited    = "rate_limited"
	OutcomeTransport      = "transport"
	OutcomeServer         = "server"
	OutcomeEmpty          = "empty"
	OutcomeInvalidRequest = "invalid_request"
	OutcomeAuth           = "auth"
	OutcomeCanceled       = "canceled"
)

// AttemptEvent describes one call to one inference backend.
type AttemptEvent struct {
	Err     error
	Backend string
	Model   string
	Outcome string
	Latency time.Duration
	Tokens  int
}

// RoutingEvent describes a dispatcher decision.
type RoutingEvent struct {
	SessionID  string
	Target     string
	Method     string
	Confidence float64
}

// SanitizeEvent describes one scrub of inbound text.
type SanitizeEvent struct {
	Matches   map[string]int
	SessionID string
	Malformed bool
}

// EscalationEvent describes a completed hand-off.
type EscalationEvent struct {
	SessionID string
	Trigger   string
	Reason    string
	TicketID  string
}

// Failure stages.
const (
	StageTicket      = "ticket"
	StagePersistence = "persistence"
	StageHandler     = "handler"
)

// FailureEvent reports a non-fatal failure that needs operator attention.
type FailureEvent struct {
	Err       error
	SessionID string
	Stage     string
}

// TurnEvent summarizes one completed turn.
type TurnEvent struct {
	SessionID  string
	Specialist string
	Latency    time.Duration
	Tokens     int
	Escalated  bool
	Locked     bool
}

// Observer receives pipeline events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	InferenceAttempt(ctx context.Context, e AttemptEvent)
	RoutingDecided(ctx context.Context, e RoutingEvent)
	Sanitized(ctx context.Context, e SanitizeEvent)
	Escalated(ctx context.Context, e EscalationEvent)
	Failed(ctx context.Context, e FailureEvent)
	TurnCompleted(ctx context.Context, e TurnEvent)
}

// Nop discards every event.
type Nop struct{}

func (Nop) InferenceAttempt(context.Context, AttemptEvent) {}
func (Nop) RoutingDecided(context.Context, RoutingEvent)   {}
func (Nop) Sanitized(context.Context, SanitizeEvent)       {}
func (Nop) Escalated(context.Context, EscalationEvent)     {}
func (Nop) Failed(context.Context, FailureEvent)           {}
func (Nop) TurnCompleted(context.Context, TurnEvent)       {}

// Multi fans every event out to each observer in order.
type Multi []Observer

func (m Multi) InferenceAttempt(ctx context.Context, e AttemptEvent) {
	for _, o := range m {
		o.InferenceAttempt(ctx, e)
	}
}

func (m Multi) RoutingDecided(ctx context.Context, e RoutingEvent) {
	for _, o := range m {
		o.RoutingDecided(ctx, e)
	}
}

func (m Multi) Sanitized(ctx context.Context, e SanitizeEvent) {
	for _, o := range m {
		o.Sanitized(ctx, e)
	}
}

func (m Multi) Escalated(ctx context.Context, e EscalationEvent) {
	for _, o := range m {
		o.Escalated(ctx, e)
	}
}

func (m Multi) Failed(ctx context.Context, e FailureEvent) {
	for _, o := range m {
		o.Failed(ctx, e)
	}
}

func (m Multi) TurnCompleted(ctx context.Context, e TurnEvent) {
	for _, o := range m {
		o.TurnCompleted(ctx, e)
	}
}

// OrNop returns o, or Nop when o is nil.
func OrNop(o Observer) Observer {
	if o == nil {
		return Nop{}
	}
	return o
}
