package context

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hrygo/supportdesk/ai/conversation"
	"github.com/hrygo/supportdesk/ai/filter"
	"github.com/hrygo/supportdesk/store"
)

// ErrNotFound is returned by Load for an unknown session.
var ErrNotFound = store.ErrNotFound

// ConversationStore is the subset of the store the adapter needs.
type ConversationStore interface {
	SaveConversation(ctx context.Context, conversation *store.Conversation, turns []*store.Turn) error
	GetConversation(ctx context.Context, sessionID string) (*store.Conversation, error)
	AppendTurn(ctx context.Context, turn *store.Turn) error
	ListTurns(ctx context.Context, sessionID string) ([]*store.Turn, error)
}

// Scrubber masks sensitive spans. Scrubbing must be idempotent.
type Scrubber interface {
	Scrub(text string) string
}

// StoreAdapter maps conversation state onto the store.
// Every turn passes through the scrubber on its way in, so nothing
// unsanitized is ever persisted even if a caller forgot to scrub.
type StoreAdapter struct {
	store    ConversationStore
	scrubber Scrubber
}

// NewStoreAdapter creates a new store adapter.
func NewStoreAdapter(s ConversationStore, scrubber Scrubber) *StoreAdapter {
	return &StoreAdapter{store: s, scrubber: scrubber}
}

// Load returns the persisted state for sessionID.
func (a *StoreAdapter) Load(ctx context.Context, sessionID string) (*conversation.State, error) {
	c, err := a.store.GetConversation(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load conversation %s: %w", sessionID, err)
	}
	turns, err := a.store.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load turns %s: %w", sessionID, err)
	}

	state := &conversation.State{
		SessionID:           c.SessionID,
		CustomerID:          c.CustomerID,
		CustomerTier:        c.CustomerTier,
		ActiveSpecialist:    conversation.Specialist(c.ActiveSpecialist),
		EscalationState:     conversation.EscalationState(c.EscalationState),
		TicketID:            c.TicketID,
		LowConfidenceStreak: int(c.LowConfidenceStreak),
		IsHumanTakeover:     c.IsHumanTakeover,
		Inconsistent:        c.Inconsistent,
		Usage: conversation.Usage{
			PromptTokens:     int(c.PromptTokens),
			CompletionTokens: int(c.CompletionTokens),
			TotalTokens:      int(c.TotalTokens),
			CostEstimate:     c.CostEstimate,
		},
		CreatedAt: time.Unix(c.CreatedTs, 0),
		UpdatedAt: time.Unix(c.UpdatedTs, 0),
		Turns:     make([]conversation.Turn, 0, len(turns)),
	}
	for _, t := range turns {
		state.Turns = append(state.Turns, conversation.Turn{
			Seq:        int(t.Seq),
			Role:       conversation.Role(t.Role),
			Content:    t.Content,
			Specialist: conversation.Specialist(t.Specialist),
			Escalation: t.Escalation,
			Timestamp:  time.Unix(t.CreatedTs, 0),
		})
	}
	return state, nil
}

// Append persists a single turn.
func (a *StoreAdapter) Append(ctx context.Context, sessionID string, turn conversation.Turn) error {
	if err := a.store.AppendTurn(ctx, a.toStoreTurn(sessionID, turn)); err != nil {
		return fmt.Errorf("append turn %s/%d: %w", sessionID, turn.Seq, err)
	}
	return nil
}

// Save persists the header and every turn of state. Turns already stored
// are left untouched.
func (a *StoreAdapter) Save(ctx context.Context, state *conversation.State) error {
	c := &store.Conversation{
		SessionID:           state.SessionID,
		CustomerID:          state.CustomerID,
		CustomerTier:        state.CustomerTier,
		ActiveSpecialist:    string(state.ActiveSpecialist),
		EscalationState:     string(state.EscalationState),
		TicketID:            state.TicketID,
		PromptTokens:        int32(state.Usage.PromptTokens),
		CompletionTokens:    int32(state.Usage.CompletionTokens),
		TotalTokens:         int32(state.Usage.TotalTokens),
		CostEstimate:        state.Usage.CostEstimate,
		LowConfidenceStreak: int32(state.LowConfidenceStreak),
		IsHumanTakeover:     state.IsHumanTakeover,
		Inconsistent:        state.Inconsistent,
		CreatedTs:           state.CreatedAt.Unix(),
		UpdatedTs:           state.UpdatedAt.Unix(),
	}
	turns := make([]*store.Turn, 0, len(state.Turns))
	for _, t := range state.Turns {
		turns = append(turns, a.toStoreTurn(state.SessionID, t))
	}
	if err := a.store.SaveConversation(ctx, c, turns); err != nil {
		return fmt.Errorf("save conversation %s: %w", state.SessionID, err)
	}
	return nil
}

func (a *StoreAdapter) toStoreTurn(sessionID string, t conversation.Turn) *store.Turn {
	content := filter.Repair(t.Content)
	if a.scrubber != nil {
		content = a.scrubber.Scrub(content)
	}
	return &store.Turn{
		SessionID:  sessionID,
		Seq:        int32(t.Seq),
		Role:       string(t.Role),
		Content:    content,
		Specialist: string(t.Specialist),
		Escalation: t.Escalation,
		CreatedTs:  t.Timestamp.Unix(),
	}
}
