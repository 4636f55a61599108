package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agent "github.com/hrygo/supportdesk/ai/agents"
	ctxpkg "github.com/hrygo/supportdesk/ai/context"
	"github.com/hrygo/supportdesk/ai/conversation"
	"github.com/hrygo/supportdesk/ai/core/llm"
	"github.com/hrygo/supportdesk/ai/escalation"
	"github.com/hrygo/supportdesk/ai/filter"
	"github.com/hrygo/supportdesk/ai/observability"
	"github.com/hrygo/supportdesk/ai/routing"
	"github.com/hrygo/supportdesk/ai/session"
	"github.com/hrygo/supportdesk/plugin/ticket"
	"github.com/hrygo/supportdesk/store"
	"github.com/hrygo/supportdesk/store/db/badger"
)

type eventRecorder struct {
	observability.Nop
	mu       sync.Mutex
	failures []observability.FailureEvent
	turns    []observability.TurnEvent
}

func (r *eventRecorder) Failed(_ context.Context, e observability.FailureEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, e)
}

func (r *eventRecorder) TurnCompleted(_ context.Context, e observability.TurnEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, e)
}

type failingSaves struct {
	StateStore
	err error
}

func (f *failingSaves) Save(context.Context, *conversation.State) error {
	return f.err
}

type exhaustedGateway struct{}

func (exhaustedGateway) Complete(context.Context, *llm.Request) (*llm.Response, error) {
	return nil, &llm.InferenceError{Retriable: true, Exhausted: true}
}

type fixedGateway string

func (g fixedGateway) Complete(context.Context, *llm.Request) (*llm.Response, error) {
	return &llm.Response{Content: string(g)}, nil
}

// cancelingGateway answers normally until cancel is set, then cancels the
// caller's context in the middle of the call.
type cancelingGateway struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

func (g *cancelingGateway) arm(cancel context.CancelFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancel = cancel
}

func (g *cancelingGateway) Complete(ctx context.Context, _ *llm.Request) (*llm.Response, error) {
	g.mu.Lock()
	cancel := g.cancel
	g.mu.Unlock()
	if cancel == nil {
		return &llm.Response{Content: "Invoices are issued on the 1st."}, nil
	}
	cancel()
	<-ctx.Done()
	return nil, ctx.Err()
}

type harness struct {
	svc      *Service
	store    *store.Store
	states   *ctxpkg.StoreAdapter
	observer *eventRecorder
}

type harnessOptions struct {
	completer llm.Completer
	states    func(StateStore) StateStore
	sessions  *session.Registry
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	ctx := context.Background()

	driver, err := badger.Open(badger.InMemoryConfig())
	require.NoError(t, err)
	st := store.New(driver, nil)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.Seed(ctx))

	sanitizer := filter.DefaultFilter()
	adapter := ctxpkg.NewStoreAdapter(st, sanitizer)
	var states StateStore = adapter
	if opts.states != nil {
		states = opts.states(adapter)
	}

	obs := &eventRecorder{}
	ctrl := escalation.NewController(escalation.Policy{}, ticket.NewStoreTicketing(st, ""), states, escalation.WithObserver(obs))
	handlers, err := agent.NewRegistry(
		agent.NewGeneralistHandler(opts.completer),
		agent.NewOrderHandler(st),
		agent.NewTechHandler(nil),
		agent.NewBillingHandler(opts.completer, ctrl.Disputes()),
	)
	require.NoError(t, err)

	svc, err := New(Config{
		Sanitizer:    sanitizer,
		Window:       ctxpkg.NewWindow(10),
		Dispatcher:   routing.NewDispatcher(routing.Config{Completer: opts.completer}),
		Handlers:     handlers,
		Escalation:   ctrl,
		States:       states,
		Customers:    st,
		Sessions:     opts.sessions,
		Observer:     obs,
		CostPerToken: 0.001,
	})
	require.NoError(t, err)
	return &harness{svc: svc, store: st, states: adapter, observer: obs}
}

func (h *harness) send(t *testing.T, sessionID, text string) *Outbound {
	t.Helper()
	out, err := h.svc.HandleMessage(context.Background(), Inbound{SessionID: sessionID, Text: text})
	require.NoError(t, err)
	return out
}

func (h *harness) persisted(t *testing.T, sessionID string) *conversation.State {
	t.Helper()
	state, err := h.states.Load(context.Background(), sessionID)
	require.NoError(t, err)
	return state
}

func TestHandleMessageScrubsAndRoutesOrder(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	out := h.send(t, "s-jane", "My email is jane@example.com, where is order #552?")
	assert.Equal(t, conversation.SpecialistOrder, out.ActiveSpecialist)
	assert.Equal(t, "I couldn't find order #552. Could you double-check the order number?", out.Reply)
	assert.False(t, out.IsHumanTakeover)

	state := h.persisted(t, "s-jane")
	require.Len(t, state.Turns, 3)
	assert.Equal(t, conversation.RoleSystem, state.Turns[0].Role)
	assert.Equal(t, WelcomeMessage, state.Turns[0].Content)
	assert.Equal(t, "My email is [EMAIL_MASKED], where is order #552?", state.Turns[1].Content)
	for _, turn := range state.Turns {
		assert.NotContains(t, turn.Content, "jane@example.com")
	}
	assert.Empty(t, state.CustomerID, "unknown email does not bind a customer")
	assert.Positive(t, state.Usage.TotalTokens)
	assert.InDelta(t, float64(state.Usage.TotalTokens)*0.001, state.Usage.CostEstimate, 1e-9)
}

func TestHandleMessageIdentifiesCustomer(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	out := h.send(t, "s-alice", "Hi, this is alice@example.com. Where is my order?")
	assert.Equal(t, "Your latest order ORD-456 (Smart Watch) is currently Processing. Estimated delivery: 2026-02-05.\nAnything else?", out.Reply)

	state := h.persisted(t, "s-alice")
	assert.Equal(t, "C1", state.CustomerID)
	assert.Equal(t, "premium", state.CustomerTier)

	out = h.send(t, "s-alice", "ok")
	assert.Equal(t, conversation.SpecialistOrder, out.ActiveSpecialist, "confirmation sticks to the active specialist")
}

func TestHandleMessageCustomerRef(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	out, err := h.svc.HandleMessage(context.Background(), Inbound{Text: "hello", CustomerRef: "C2"})
	require.NoError(t, err)
	assert.NotEmpty(t, out.SessionID)
	assert.Equal(t, "Generalist here. How can I help you?", out.Reply)
	assert.Equal(t, "standard", h.persisted(t, out.SessionID).CustomerTier)
}

func TestBillingDisputeLocksInOneTurn(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	h.send(t, "s-bill", "I forgot my password")
	out := h.send(t, "s-bill", "Also I need a refund for a double charge")
	assert.True(t, out.Escalated)
	assert.True(t, out.IsHumanTakeover)
	assert.Equal(t, conversation.EscalationHumanLocked, out.EscalationState)
	require.True(t, strings.HasPrefix(out.TicketID, ticket.IDPrefix))
	assert.Equal(t, "ESCALATION: A human will help you. Ticket #"+out.TicketID+". AI is now paused.", out.Reply)

	sessionID := "s-bill"
	tickets, err := h.store.ListTickets(context.Background(), &store.FindTicket{SessionID: &sessionID})
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, escalation.PriorityHigh, tickets[0].Priority)
	assert.Equal(t, "billing", tickets[0].Category)
}

func TestNoAutomatedReplyAfterTakeover(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	h.send(t, "s-lock", "I dispute this payment")
	before := h.persisted(t, "s-lock")
	assistantTurns := func(s *conversation.State) int {
		n := 0
		for _, turn := range s.Turns {
			if turn.Role == conversation.RoleAssistant {
				n++
			}
		}
		return n
	}

	for _, text := range []string{"hello?", "where is order ORD-123", "I forgot my password", "refund again"} {
		out := h.send(t, "s-lock", text)
		assert.Empty(t, out.Reply)
		assert.True(t, out.IsHumanTakeover)
		assert.False(t, out.Escalated)
	}

	after := h.persisted(t, "s-lock")
	assert.Equal(t, assistantTurns(before), assistantTurns(after))
	assert.Len(t, after.Turns, len(before.Turns)+4, "customer messages are still recorded")

	sessionID := "s-lock"
	tickets, err := h.store.ListTickets(context.Background(), &store.FindTicket{SessionID: &sessionID})
	require.NoError(t, err)
	assert.Len(t, tickets, 1)
}

func TestLowConfidenceStreakEscalatesOnThirdTurn(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	out := h.send(t, "s-tech", "The app crashes on startup")
	assert.Equal(t, conversation.SpecialistTech, out.ActiveSpecialist)
	assert.Equal(t, "Please describe your technical issue in more detail.", out.Reply)

	out = h.send(t, "s-tech", "It is still broken")
	assert.Equal(t, conversation.SpecialistTech, out.ActiveSpecialist)
	assert.False(t, out.IsHumanTakeover)
	assert.Equal(t, 2, h.persisted(t, "s-tech").LowConfidenceStreak)

	out = h.send(t, "s-tech", "Anything?")
	assert.True(t, out.Escalated)
	assert.True(t, out.IsHumanTakeover)
	assert.Contains(t, out.Reply, "ESCALATION: A human will help you.")
}

func TestExhaustedGatewayDegradesAndEscalates(t *testing.T) {
	h := newHarness(t, harnessOptions{completer: exhaustedGateway{}})

	out, err := h.svc.HandleMessage(context.Background(), Inbound{SessionID: "s-down", Text: "what are your opening hours", CustomerRef: "alice@example.com"})
	require.NoError(t, err)
	assert.True(t, out.Escalated)
	assert.True(t, out.IsHumanTakeover)
	assert.True(t, strings.HasPrefix(out.Reply, "I'm sorry, I'm having trouble answering right now.\nESCALATION:"))
}

func TestCanceledTurnDoesNotEscalate(t *testing.T) {
	gateway := &cancelingGateway{}
	h := newHarness(t, harnessOptions{completer: gateway})

	out, err := h.svc.HandleMessage(context.Background(), Inbound{SessionID: "s-gone", Text: "when is my next invoice", CustomerRef: "alice@example.com"})
	require.NoError(t, err)
	require.Equal(t, "Invoices are issued on the 1st.", out.Reply)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gateway.arm(cancel)

	out, err = h.svc.HandleMessage(ctx, Inbound{SessionID: "s-gone", Text: "and the one after that invoice?"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)

	state := h.persisted(t, "s-gone")
	assert.False(t, state.IsHumanTakeover)
	assert.Empty(t, state.TicketID)
	assert.Equal(t, conversation.EscalationAutomated, state.EscalationState)
	for _, turn := range state.Turns {
		assert.NotContains(t, turn.Content, "ESCALATION")
	}

	tickets, err := h.store.ListTickets(context.Background(), &store.FindTicket{})
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestMalformedReplyIsRepairedAndScrubbed(t *testing.T) {
	h := newHarness(t, harnessOptions{completer: fixedGateway("Write to billing@example.com \xff\xfe today")})

	out := h.send(t, "s-bytes", "when is my next invoice")
	want := "Write to [EMAIL_MASKED] \uFFFD today"
	assert.Equal(t, want, out.Reply)

	state := h.persisted(t, "s-bytes")
	last := state.Turns[len(state.Turns)-1]
	assert.Equal(t, conversation.RoleAssistant, last.Role)
	assert.Equal(t, want, last.Content)
	for _, turn := range state.Turns {
		assert.NotContains(t, turn.Content, "billing@example.com")
	}
}

func TestPersistenceFailureStillReplies(t *testing.T) {
	h := newHarness(t, harnessOptions{states: func(s StateStore) StateStore {
		return &failingSaves{StateStore: s, err: errors.New("disk full")}
	}})

	out := h.send(t, "s-fail", "I forgot my password")
	assert.Equal(t, "Tech Specialist: Go to login -> Forgot Password.\nDid that help?", out.Reply)
	assert.True(t, out.Inconsistent)
	require.Len(t, h.observer.failures, 1)
	assert.Equal(t, observability.StagePersistence, h.observer.failures[0].Stage)
}

func TestBusySessionRejected(t *testing.T) {
	sessions := session.NewRegistry(session.PolicyReject, time.Minute, nil)
	h := newHarness(t, harnessOptions{sessions: sessions})

	release, err := sessions.Acquire(context.Background(), "s-busy")
	require.NoError(t, err)
	_, err = h.svc.HandleMessage(context.Background(), Inbound{SessionID: "s-busy", Text: "hi"})
	assert.ErrorIs(t, err, session.ErrBusy)
	release()

	out := h.send(t, "s-busy", "hi")
	assert.NotEmpty(t, out.Reply)
}

func TestConcurrentTurnsSameSession(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.HandleMessage(context.Background(), Inbound{SessionID: "s-conc", Text: "where is order ORD-123"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state := h.persisted(t, "s-conc")
	require.Len(t, state.Turns, 11)
	for i, turn := range state.Turns {
		assert.Equal(t, i, turn.Seq)
	}
	assert.Len(t, h.observer.turns, 5)
}

func TestEmptyMessage(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	_, err := h.svc.HandleMessage(context.Background(), Inbound{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}
