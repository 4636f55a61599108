// Package orchestrator runs one customer turn through identification,
// sanitization, escalation checks, routing, the specialist handler and
// persistence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	agent "github.com/hrygo/supportdesk/ai/agents"
	ctxpkg "github.com/hrygo/supportdesk/ai/context"
	"github.com/hrygo/supportdesk/ai/conversation"
	"github.com/hrygo/supportdesk/ai/core/llm"
	"github.com/hrygo/supportdesk/ai/escalation"
	"github.com/hrygo/supportdesk/ai/filter"
	"github.com/hrygo/supportdesk/ai/observability"
	"github.com/hrygo/supportdesk/ai/observability/logging"
	"github.com/hrygo/supportdesk/ai/observability/tracing"
	"github.com/hrygo/supportdesk/ai/routing"
	"github.com/hrygo/supportdesk/ai/session"
	"github.com/hrygo/supportdesk/store"
)

// WelcomeMessage opens every new session.
const WelcomeMessage = "Welcome to Enterprise Support. How can I help today?"

const handlerFailureReply = "Sorry, I couldn't look that up right now. Please try again shortly."

// ErrEmptyMessage is returned for blank inbound text.
var ErrEmptyMessage = errors.New("message text is empty")

// StateStore loads and persists conversation state.
type StateStore interface {
	Load(ctx context.Context, sessionID string) (*conversation.State, error)
	Append(ctx context.Context, sessionID string, turn conversation.Turn) error
	Save(ctx context.Context, state *conversation.State) error
}

// CustomerDirectory resolves customer identities.
type CustomerDirectory interface {
	GetCustomer(ctx context.Context, find *store.FindCustomer) (*store.Customer, error)
}

// Inbound is one customer message.
type Inbound struct {
	SessionID string
	Text      string
	// CustomerRef is an optional customer id or email supplied by the caller.
	CustomerRef string
}

// Outbound is the result of one turn.
type Outbound struct {
	SessionID        string
	Reply            string
	ActiveSpecialist conversation.Specialist
	EscalationState  conversation.EscalationState
	TicketID         string
	TurnUsage        conversation.Usage
	Usage            conversation.Usage
	IsHumanTakeover  bool
	Escalated        bool
	// Inconsistent is set when the reply was produced but not persisted.
	Inconsistent bool
}

// Config wires the collaborators of a Service.
type Config struct {
	Sanitizer    *filter.Filter
	Window       *ctxpkg.Window
	Dispatcher   *routing.Dispatcher
	Handlers     *agent.Registry
	Escalation   *escalation.Controller
	States       StateStore
	Customers    CustomerDirectory
	Sessions     *session.Registry
	Observer     observability.Observer
	Logger       *slog.Logger
	NewSessionID func() string
	Now          func() time.Time
	// CostPerToken converts token counts into the cost estimate.
	CostPerToken float64
	// TurnTimeout bounds a whole turn. Zero means no limit beyond the caller's.
	TurnTimeout  time.Duration
	StoreTimeout time.Duration
}

// Service is the conversation orchestration core.
type Service struct {
	sanitizer    *filter.Filter
	window       *ctxpkg.Window
	dispatcher   *routing.Dispatcher
	handlers     *agent.Registry
	escalation   *escalation.Controller
	states       StateStore
	customers    CustomerDirectory
	sessions     *session.Registry
	observer     observability.Observer
	logger       *slog.Logger
	newSessionID func() string
	now          func() time.Time
	costPerToken float64
	turnTimeout  time.Duration
	storeTimeout time.Duration
}

// New validates cfg and creates a Service.
func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Dispatcher == nil:
		return nil, errors.New("orchestrator: dispatcher is required")
	case cfg.Handlers == nil:
		return nil, errors.New("orchestrator: handler registry is required")
	case cfg.Escalation == nil:
		return nil, errors.New("orchestrator: escalation controller is required")
	case cfg.States == nil:
		return nil, errors.New("orchestrator: state store is required")
	}

	s := &Service{
		sanitizer:    cfg.Sanitizer,
		window:       cfg.Window,
		dispatcher:   cfg.Dispatcher,
		handlers:     cfg.Handlers,
		escalation:   cfg.Escalation,
		states:       cfg.States,
		customers:    cfg.Customers,
		sessions:     cfg.Sessions,
		observer:     observability.OrNop(cfg.Observer),
		logger:       cfg.Logger,
		newSessionID: cfg.NewSessionID,
		now:          cfg.Now,
		costPerToken: cfg.CostPerToken,
		turnTimeout:  cfg.TurnTimeout,
		storeTimeout: cfg.StoreTimeout,
	}
	if s.sanitizer == nil {
		s.sanitizer = filter.DefaultFilter()
	}
	if s.window == nil {
		s.window = ctxpkg.NewWindow(ctxpkg.DefaultWindowSize)
	}
	if s.sessions == nil {
		s.sessions = session.NewRegistry(session.PolicyQueue, 0, cfg.Logger)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "orchestrator")
	if s.newSessionID == nil {
		s.newSessionID = uuid.NewString
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.storeTimeout <= 0 {
		s.storeTimeout = 5 * time.Second
	}
	return s, nil
}

// HandleMessage runs one customer turn. Turns of the same session are
// serialized; a busy session fails with session.ErrBusy under the reject
// policy. A persistence failure after the reply was produced does not fail
// the call: the outbound is flagged Inconsistent instead.
func (s *Service) HandleMessage(ctx context.Context, in Inbound) (*Outbound, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrEmptyMessage
	}
	if in.SessionID == "" {
		in.SessionID = s.newSessionID()
	}

	release, err := s.sessions.Acquire(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	if s.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.turnTimeout)
		defer cancel()
	}
	ctx = logging.WithSession(ctx, in.SessionID)
	ctx, span := tracing.Start(ctx, "orchestrator.turn", attribute.String("session.id", in.SessionID))

	start := s.now()
	out, err := s.turn(ctx, in)
	tracing.End(span, err)
	if err != nil {
		return nil, err
	}

	s.observer.TurnCompleted(ctx, observability.TurnEvent{
		SessionID:  out.SessionID,
		Specialist: string(out.ActiveSpecialist),
		Latency:    s.now().Sub(start),
		Tokens:     out.TurnUsage.TotalTokens,
		Escalated:  out.Escalated,
		Locked:     out.IsHumanTakeover,
	})
	return out, nil
}

func (s *Service) turn(ctx context.Context, in Inbound) (*Outbound, error) {
	state, isNew, err := s.loadOrCreate(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}

	s.identify(ctx, state, in)
	clean := s.scrub(ctx, state.SessionID, in.Text)

	userTurn, err := state.Append(conversation.Turn{Role: conversation.RoleUser, Content: clean, Timestamp: s.now()})
	if err != nil {
		return nil, fmt.Errorf("append user turn: %w", err)
	}
	if !isNew {
		s.appendTurn(ctx, state, userTurn)
	}

	if state.IsHumanTakeover {
		// The operator owns the session; record the message only.
		return s.finish(ctx, state, conversation.Usage{}, ""), nil
	}

	if trigger, ok := s.escalation.Precheck(ctx, state, clean); ok {
		return s.escalate(ctx, state, conversation.Usage{}, trigger), nil
	}

	dec := s.dispatcher.Route(ctx, state)
	turnUsage := s.priced(dec.Usage)

	handler := s.handlers.Get(dec.Target)
	state.ActiveSpecialist = handler.Specialist()

	res, err := handler.Handle(ctx, &agent.Request{
		State:  state.Clone(),
		Text:   clean,
		Window: s.window.Trim(state.Turns),
	})
	if err != nil && ctx.Err() != nil {
		// The caller is gone. Nothing is escalated and the reply is dropped.
		s.logger.WarnContext(ctx, "turn abandoned", "session_id", state.SessionID, "specialist", handler.Specialist(), "error", err)
		return nil, err
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "handler failed", "session_id", state.SessionID, "specialist", handler.Specialist(), "error", err)
		s.observer.Failed(ctx, observability.FailureEvent{Err: err, SessionID: state.SessionID, Stage: observability.StageHandler})
		res = &agent.Result{Reply: handlerFailureReply, LowConfidence: true}
	}
	turnUsage = turnUsage.Add(s.priced(res.Usage))

	if trigger, ok := s.escalation.PostCheck(state, res); ok {
		return s.escalate(ctx, state, turnUsage, trigger), nil
	}

	reply := s.sanitizer.Scrub(filter.Repair(res.Reply))
	if _, err := state.Append(conversation.Turn{
		Role:       conversation.RoleAssistant,
		Content:    reply,
		Specialist: handler.Specialist(),
		Timestamp:  s.now(),
	}); err != nil {
		return nil, fmt.Errorf("append reply: %w", err)
	}
	return s.finish(ctx, state, turnUsage, reply), nil
}

func (s *Service) loadOrCreate(ctx context.Context, sessionID string) (*conversation.State, bool, error) {
	lctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	state, err := s.states.Load(lctx, sessionID)
	if err == nil {
		return state, false, nil
	}
	if !errors.Is(err, ctxpkg.ErrNotFound) {
		return nil, false, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	now := s.now()
	state = conversation.New(sessionID, now)
	if _, err := state.Append(conversation.Turn{Role: conversation.RoleSystem, Content: WelcomeMessage, Timestamp: now}); err != nil {
		return nil, false, err
	}
	return state, true, nil
}

// identify binds the customer on first contact. Raw emails are read from the
// unscrubbed text here and never stored.
func (s *Service) identify(ctx context.Context, state *conversation.State, in Inbound) {
	if state.CustomerID != "" || s.customers == nil {
		return
	}

	var finds []*store.FindCustomer
	if ref := strings.TrimSpace(in.CustomerRef); ref != "" {
		if strings.Contains(ref, "@") {
			finds = append(finds, &store.FindCustomer{Email: &ref})
		} else {
			finds = append(finds, &store.FindCustomer{ID: &ref})
		}
	}
	for _, email := range s.sanitizer.ExtractEmails(in.Text) {
		finds = append(finds, &store.FindCustomer{Email: &email})
	}

	for _, find := range finds {
		c, err := s.customers.GetCustomer(ctx, find)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.WarnContext(ctx, "customer lookup failed", "session_id", state.SessionID, "error", err)
			return
		}
		if err := state.SetCustomer(c.ID, c.Tier); err != nil {
			s.logger.WarnContext(ctx, "customer already bound", "session_id", state.SessionID, "error", err)
			return
		}
		s.logger.InfoContext(ctx, "customer identified", "session_id", state.SessionID, "customer_id", c.ID, "tier", c.Tier)
		return
	}
}

// scrub masks the inbound text. Malformed input is repaired before masking so
// that raw identifiers never reach the history.
func (s *Service) scrub(ctx context.Context, sessionID, text string) string {
	clean, report, err := s.sanitizer.ScrubWithReport(text)
	malformed := errors.Is(err, filter.ErrMalformedInput)
	if malformed {
		s.logger.WarnContext(ctx, "malformed inbound text", "session_id", sessionID)
		clean, report, _ = s.sanitizer.ScrubWithReport(filter.Repair(text))
	}

	matches := make(map[string]int, len(report.Matches))
	for typ, n := range report.Matches {
		matches[string(typ)] = n
	}
	s.observer.Sanitized(ctx, observability.SanitizeEvent{SessionID: sessionID, Matches: matches, Malformed: malformed})
	return clean
}

func (s *Service) escalate(ctx context.Context, state *conversation.State, usage conversation.Usage, trigger escalation.Trigger) *Outbound {
	state.AddUsage(usage)
	outcome, err := s.escalation.Escalate(ctx, state, trigger)
	if err != nil {
		// The controller already flagged the state and reported the failure.
		s.logger.ErrorContext(ctx, "escalation not persisted", "session_id", state.SessionID, "error", err)
	}
	reply := ""
	if outcome != nil {
		reply = outcome.Handoff.Content
	}
	return s.outbound(state, usage, reply, true)
}

// finish accumulates usage, persists the state and builds the outbound.
func (s *Service) finish(ctx context.Context, state *conversation.State, usage conversation.Usage, reply string) *Outbound {
	if usage.TotalTokens == 0 && !state.IsHumanTakeover {
		usage = s.priced(estimatedUsage(state.LastUserText()))
	}
	state.AddUsage(usage)

	// A completed turn is persisted even if the caller went away.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()
	if err := s.states.Save(sctx, state); err != nil {
		state.Inconsistent = true
		s.observer.Failed(ctx, observability.FailureEvent{Err: err, SessionID: state.SessionID, Stage: observability.StagePersistence})
		s.logger.ErrorContext(ctx, "session not persisted", "session_id", state.SessionID, "error", err)
	}
	return s.outbound(state, usage, reply, false)
}

func (s *Service) appendTurn(ctx context.Context, state *conversation.State, turn conversation.Turn) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()
	if err := s.states.Append(actx, state.SessionID, turn); err != nil {
		state.Inconsistent = true
		s.observer.Failed(ctx, observability.FailureEvent{Err: err, SessionID: state.SessionID, Stage: observability.StagePersistence})
	}
}

func (s *Service) outbound(state *conversation.State, usage conversation.Usage, reply string, escalated bool) *Outbound {
	return &Outbound{
		SessionID:        state.SessionID,
		Reply:            reply,
		ActiveSpecialist: state.ActiveSpecialist,
		EscalationState:  state.EscalationState,
		TicketID:         state.TicketID,
		TurnUsage:        usage,
		Usage:            state.Usage,
		IsHumanTakeover:  state.IsHumanTakeover,
		Escalated:        escalated,
		Inconsistent:     state.Inconsistent,
	}
}

// priced fills the cost estimate from the flat per-token rate.
func (s *Service) priced(u conversation.Usage) conversation.Usage {
	u.CostEstimate = float64(u.TotalTokens) * s.costPerToken
	return u
}

func estimatedUsage(text string) conversation.Usage {
	n := llm.EstimateTokens(text)
	return conversation.Usage{PromptTokens: n, TotalTokens: n}
}

// Session returns the persisted state of a session.
func (s *Service) Session(ctx context.Context, sessionID string) (*conversation.State, error) {
	lctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.states.Load(lctx, sessionID)
}
