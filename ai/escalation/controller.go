// Package escalation detects hand-off conditions and moves a session from
// automated replies to a human operator.
package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	agent "github.com/hrygo/supportdesk/ai/agents"
	"github.com/hrygo/supportdesk/ai/conversation"
	"github.com/hrygo/supportdesk/ai/internal/strutil"
	"github.com/hrygo/supportdesk/ai/observability"
)

// TriggerKind names what caused an escalation.
type TriggerKind string

const (
	TriggerDispute       TriggerKind = "dispute_keyword"
	TriggerLowConfidence TriggerKind = "low_confidence"
	TriggerHandler       TriggerKind = "handler_signal"
	TriggerInference     TriggerKind = "inference_exhausted"
	TriggerRule          TriggerKind = "rule"
)

// Trigger describes one escalation request.
type Trigger struct {
	Kind   TriggerKind
	Reason string
	// Preface is shown before the hand-off notice, e.g. an apology when
	// inference was unavailable.
	Preface string
}

// Priorities assigned to tickets.
const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
)

// Ticket is handed to the ticketing collaborator once per escalation.
type Ticket struct {
	SessionID  string
	CustomerID string
	Priority   string
	Category   string
	Summary    string
	TurnSeq    int
}

// Ticketing creates tickets for human operators.
type Ticketing interface {
	CreateTicket(ctx context.Context, t Ticket) (string, error)
}

// Saver persists a state snapshot.
type Saver interface {
	Save(ctx context.Context, state *conversation.State) error
}

// Policy holds the configurable trigger thresholds.
type Policy struct {
	DisputeKeywords []string
	// LowConfidenceThreshold is the number of consecutive low-confidence
	// replies after which the next turn escalates.
	LowConfidenceThreshold int
	// PremiumTiers raise ticket priority.
	PremiumTiers  []string
	TicketTimeout time.Duration
	SaveTimeout   time.Duration
}

// DefaultPolicy returns the default thresholds.
func DefaultPolicy() Policy {
	return Policy{
		DisputeKeywords:        []string{"refund", "charge", "dispute"},
		LowConfidenceThreshold: 2,
		PremiumTiers:           []string{"premium"},
		TicketTimeout:          5 * time.Second,
		SaveTimeout:            5 * time.Second,
	}
}

// Outcome reports what Escalate did.
type Outcome struct {
	Handoff  conversation.Turn
	TicketID string
	// AlreadyLocked is set when the session was escalated before.
	AlreadyLocked bool
}

// Controller runs the automated -> escalating -> human_locked state machine.
type Controller struct {
	tickets  Ticketing
	saver    Saver
	observer observability.Observer
	logger   *slog.Logger
	rules    *RuleSet
	disputes *agent.DisputeMatcher
	now      func() time.Time
	policy   Policy
}

// Option configures a Controller.
type Option func(*Controller)

func WithRules(rs *RuleSet) Option {
	return func(c *Controller) { c.rules = rs }
}

func WithObserver(o observability.Observer) Option {
	return func(c *Controller) { c.observer = observability.OrNop(o) }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a controller. Zero policy fields take the defaults.
func NewController(policy Policy, tickets Ticketing, saver Saver, opts ...Option) *Controller {
	def := DefaultPolicy()
	if policy.LowConfidenceThreshold <= 0 {
		policy.LowConfidenceThreshold = def.LowConfidenceThreshold
	}
	if policy.DisputeKeywords == nil {
		policy.DisputeKeywords = def.DisputeKeywords
	}
	if policy.PremiumTiers == nil {
		policy.PremiumTiers = def.PremiumTiers
	}
	if policy.TicketTimeout <= 0 {
		policy.TicketTimeout = def.TicketTimeout
	}
	if policy.SaveTimeout <= 0 {
		policy.SaveTimeout = def.SaveTimeout
	}

	c := &Controller{
		tickets:  tickets,
		saver:    saver,
		observer: observability.Nop{},
		logger:   slog.Default(),
		disputes: agent.NewDisputeMatcher(policy.DisputeKeywords),
		now:      time.Now,
		policy:   policy,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "escalation")
	return c
}

// Disputes returns the dispute matcher built from the policy, so handlers
// share the same keyword list.
func (c *Controller) Disputes() *agent.DisputeMatcher {
	return c.disputes
}

// Precheck decides, before any handler runs, whether the turn escalates.
func (c *Controller) Precheck(ctx context.Context, state *conversation.State, text string) (Trigger, bool) {
	if state.IsHumanTakeover {
		return Trigger{}, false
	}
	if kw, ok := c.disputes.Match(text); ok {
		return Trigger{Kind: TriggerDispute, Reason: "dispute keyword: " + kw}, true
	}
	if state.LowConfidenceStreak >= c.policy.LowConfidenceThreshold {
		return Trigger{
			Kind:   TriggerLowConfidence,
			Reason: fmt.Sprintf("%d consecutive low-confidence replies", state.LowConfidenceStreak),
		}, true
	}

	rule, ok, err := c.rules.Evaluate(Facts{
		Tier:                state.CustomerTier,
		Text:                text,
		Specialist:          string(state.ActiveSpecialist),
		LowConfidenceStreak: state.LowConfidenceStreak,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "escalation rule failed", "session_id", state.SessionID, "error", err)
	}
	if ok {
		reason := rule.Reason
		if reason == "" {
			reason = "rule " + rule.Name
		}
		return Trigger{Kind: TriggerRule, Reason: reason}, true
	}
	return Trigger{}, false
}

// PostCheck folds a handler result into the low-confidence streak and
// returns the escalation the handler asked for, if any.
func (c *Controller) PostCheck(state *conversation.State, res *agent.Result) (Trigger, bool) {
	if res.LowConfidence {
		state.LowConfidenceStreak++
	} else {
		state.LowConfidenceStreak = 0
	}
	if !res.Escalate {
		return Trigger{}, false
	}
	if res.Degraded {
		return Trigger{Kind: TriggerInference, Reason: res.Reason, Preface: res.Reply}, true
	}
	return Trigger{Kind: TriggerHandler, Reason: res.Reason}, true
}

// Escalate locks the session for a human. It runs to completion even if ctx
// is canceled: the takeover flag is set, a ticket is requested, the hand-off
// notice is appended and the state is saved, in that order. A ticket failure
// is reported but does not stop the lock. Escalating a locked session is a
// no-op.
func (c *Controller) Escalate(ctx context.Context, state *conversation.State, trigger Trigger) (*Outcome, error) {
	if state.IsHumanTakeover {
		return &Outcome{AlreadyLocked: true, TicketID: state.TicketID}, nil
	}
	ctx = context.WithoutCancel(ctx)

	state.EscalationState = conversation.EscalationEscalating
	previous := state.ActiveSpecialist
	state.MarkTakeover()

	ticketID := c.createTicket(ctx, state, trigger, previous)
	state.TicketID = ticketID

	handoff, err := state.AppendHandoff(handoffNotice(trigger.Preface, ticketID), c.now())
	if err != nil {
		return nil, fmt.Errorf("append hand-off notice: %w", err)
	}

	out := &Outcome{Handoff: handoff, TicketID: ticketID}
	c.observer.Escalated(ctx, observability.EscalationEvent{
		SessionID: state.SessionID,
		Trigger:   string(trigger.Kind),
		Reason:    trigger.Reason,
		TicketID:  ticketID,
	})
	c.logger.InfoContext(ctx, "session escalated",
		"session_id", state.SessionID,
		"trigger", trigger.Kind,
		"reason", trigger.Reason,
		"ticket_id", ticketID,
	)

	if c.saver == nil {
		return out, nil
	}
	sctx, cancel := context.WithTimeout(ctx, c.policy.SaveTimeout)
	defer cancel()
	if err := c.saver.Save(sctx, state); err != nil {
		state.Inconsistent = true
		c.observer.Failed(ctx, observability.FailureEvent{
			Err:       err,
			SessionID: state.SessionID,
			Stage:     observability.StagePersistence,
		})
		return out, fmt.Errorf("save escalated session: %w", err)
	}
	return out, nil
}

func (c *Controller) createTicket(ctx context.Context, state *conversation.State, trigger Trigger, previous conversation.Specialist) string {
	if c.tickets == nil {
		return ""
	}
	ticket := Ticket{
		SessionID:  state.SessionID,
		CustomerID: state.CustomerID,
		Priority:   c.priority(state, trigger),
		Category:   category(trigger, previous),
		Summary:    summarize(trigger.Reason, state.LastUserText()),
		TurnSeq:    state.LastUserSeq(),
	}

	tctx, cancel := context.WithTimeout(ctx, c.policy.TicketTimeout)
	defer cancel()
	id, err := c.tickets.CreateTicket(tctx, ticket)
	if err != nil {
		c.observer.Failed(ctx, observability.FailureEvent{
			Err:       err,
			SessionID: state.SessionID,
			Stage:     observability.StageTicket,
		})
		c.logger.ErrorContext(ctx, "ticket creation failed", "session_id", state.SessionID, "error", err)
		return ""
	}
	return id
}

func (c *Controller) priority(state *conversation.State, trigger Trigger) string {
	if trigger.Kind == TriggerDispute {
		return PriorityHigh
	}
	for _, tier := range c.policy.PremiumTiers {
		if strings.EqualFold(tier, state.CustomerTier) {
			return PriorityHigh
		}
	}
	return PriorityNormal
}

func category(trigger Trigger, previous conversation.Specialist) string {
	if trigger.Kind == TriggerDispute {
		return string(conversation.SpecialistBilling)
	}
	if previous == "" || previous == conversation.SpecialistNone {
		return string(conversation.SpecialistGeneralist)
	}
	return string(previous)
}

const maxSummary = 280

func summarize(reason, lastUser string) string {
	s := reason
	if lastUser != "" {
		s += ": " + lastUser
	}
	return strutil.Clip(s, maxSummary)
}

func handoffNotice(preface, ticketID string) string {
	var b strings.Builder
	if preface != "" {
		b.WriteString(preface)
		b.WriteString("\n")
	}
	if ticketID != "" {
		fmt.Fprintf(&b, "ESCALATION: A human will help you. Ticket #%s. AI is now paused.", ticketID)
	} else {
		b.WriteString("ESCALATION: A human will help you shortly. AI is now paused.")
	}
	return b.String()
}
