package llm

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hrygo/supportdesk/ai/observability"
	"github.com/hrygo/supportdesk/ai/observability/tracing"
)

// DefaultAttemptTimeout bounds a single backend call.
const DefaultAttemptTimeout = 20 * time.Second

// Gateway tries an ordered list of backends, each at most once per request.
type Gateway struct {
	observer       observability.Observer
	logger         *slog.Logger
	backends       []Backend
	attemptTimeout time.Duration
}

var _ Completer = (*Gateway)(nil)

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithObserver reports every attempt to o.
func WithObserver(o observability.Observer) GatewayOption {
	return func(g *Gateway) { g.observer = observability.OrNop(o) }
}

// WithAttemptTimeout sets the per-backend deadline.
func WithAttemptTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.attemptTimeout = d
		}
	}
}

// WithLogger sets the gateway logger.
func WithLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGateway creates a gateway over backends in fallback order.
func NewGateway(backends []Backend, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		backends:       backends,
		attemptTimeout: DefaultAttemptTimeout,
		observer:       observability.Nop{},
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "llm_gateway")
	return g
}

// Backends returns the configured backend names in order.
func (g *Gateway) Backends() []string {
	names := make([]string, len(g.backends))
	for i, b := range g.backends {
		names[i] = b.Name()
	}
	return names
}

// Complete returns the first non-empty completion. Every failure is an
// *InferenceError: Retriable=false stops at the first permanent rejection and
// Exhausted=true means every backend failed transiently.
func (g *Gateway) Complete(ctx context.Context, req *Request) (*Response, error) {
	if len(g.backends) == 0 {
		return nil, &InferenceError{
			Attempts:  []*BackendError{{Backend: "none", Class: ClassServer, Err: ErrNoBackends}},
			Retriable: true,
			Exhausted: true,
		}
	}

	ierr := &InferenceError{Retriable: true}
	for _, b := range g.backends {
		resp, err := g.attempt(ctx, b, req)
		if err == nil {
			return resp, nil
		}
		ierr.Attempts = append(ierr.Attempts, err)

		if err.Class == ClassCanceled || ctx.Err() != nil {
			// The caller is gone; later backends would fail the same way.
			return nil, ierr
		}
		if !err.Class.Retriable() {
			ierr.Retriable = false
			return nil, ierr
		}
		g.logger.WarnContext(ctx, "backend failed, trying next",
			"backend", b.Name(),
			"outcome", err.Class.String(),
			"error", err.Err,
		)
	}
	ierr.Exhausted = true
	return nil, ierr
}

func (g *Gateway) attempt(ctx context.Context, b Backend, req *Request) (*Response, *BackendError) {
	ctx, span := tracing.Start(ctx, "llm.attempt", attribute.String("llm.backend", b.Name()))
	actx, cancel := context.WithTimeout(ctx, g.attemptTimeout)
	defer cancel()

	start := time.Now()
	resp, err := b.Complete(actx, req)
	if err == nil && (resp == nil || resp.Content == "") {
		err = ErrEmptyCompletion
	}

	event := observability.AttemptEvent{
		Backend: b.Name(),
		Latency: time.Since(start),
	}
	if err != nil {
		class := ClassifyError(err)
		// A deadline from our own attempt timeout is a timeout even when the
		// client library reports it as a cancellation.
		if class == ClassCanceled && ctx.Err() == nil && actx.Err() == context.DeadlineExceeded {
			class = ClassTimeout
		}
		event.Err = err
		event.Outcome = class.String()
		g.observer.InferenceAttempt(ctx, event)
		tracing.End(span, err)
		return nil, &BackendError{Backend: b.Name(), Class: class, Err: err}
	}

	if resp.Backend == "" {
		resp.Backend = b.Name()
	}
	if resp.Latency == 0 {
		resp.Latency = event.Latency
	}
	event.Model = resp.Model
	event.Outcome = observability.OutcomeSuccess
	event.Tokens = resp.Stats.TotalTokens
	g.observer.InferenceAttempt(ctx, event)
	span.SetAttributes(
		attribute.String("llm.model", resp.Model),
		attribute.Int("llm.total_tokens", resp.Stats.TotalTokens),
	)
	tracing.End(span, nil)
	return resp, nil
}
