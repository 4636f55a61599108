package observability

import (
	"context"
	"log/slog"
)

// SlogObserver writes every event as a structured log record.
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver creates an observer logging through logger.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogObserver{logger: logger.With("component", "observer")}
}

func (o *SlogObserver) InferenceAttempt(ctx context.Context, e AttemptEvent) {
	level := slog.LevelDebug
	if e.Outcome != OutcomeSuccess {
		level = slog.LevelWarn
	}
	attrs := []any{"backend", e.Backend, "model", e.Model, "outcome", e.Outcome, "latency_ms", e.Latency.Milliseconds(), "tokens", e.Tokens}
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err)
	}
	o.logger.Log(ctx, level, "inference attempt", attrs...)
}

func (o *SlogObserver) RoutingDecided(ctx context.Context, e RoutingEvent) {
	o.logger.DebugContext(ctx, "routing decided",
		"session_id", e.SessionID, "target", e.Target, "method", e.Method, "confidence", e.Confidence)
}

func (o *SlogObserver) Sanitized(ctx context.Context, e SanitizeEvent) {
	if e.Malformed {
		o.logger.WarnContext(ctx, "malformed input passed through sanitizer", "session_id", e.SessionID)
		return
	}
	if len(e.Matches) > 0 {
		o.logger.InfoContext(ctx, "sensitive data masked", "session_id", e.SessionID, "matches", e.Matches)
	}
}

func (o *SlogObserver) Escalated(ctx context.Context, e EscalationEvent) {
	o.logger.InfoContext(ctx, "conversation escalated",
		"session_id", e.SessionID, "trigger", e.Trigger, "reason", e.Reason, "ticket_id", e.TicketID)
}

func (o *SlogObserver) Failed(ctx context.Context, e FailureEvent) {
	o.logger.ErrorContext(ctx, "pipeline failure", "session_id", e.SessionID, "stage", e.Stage, "error", e.Err)
}

func (o *SlogObserver) TurnCompleted(ctx context.Context, e TurnEvent) {
	o.logger.InfoContext(ctx, "turn completed",
		"session_id", e.SessionID,
		"specialist", e.Specialist,
		"latency_ms", e.Latency.Milliseconds(),
		"tokens", e.Tokens,
		"escalated", e.Escalated,
		"locked", e.Locked,
	)
}

var _ Observer = (*SlogObserver)(nil)
