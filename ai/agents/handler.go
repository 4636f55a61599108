// Package agent implements the specialist handlers that answer customer turns.
// Handlers read conversation state but never persist it.
package agent

import (
	"context"
	"fmt"

	"github.com/hrygo/supportdesk/ai/conversation"
	"github.com/hrygo/supportdesk/ai/core/llm"
)

// Request is the input to a handler for one turn.
type Request struct {
	// State is a read-only view of the session.
	State *conversation.State
	// Text is the sanitized content of the current user turn.
	Text string
	// Window is the trimmed history sent to inference.
	Window []conversation.Turn
}

// Result is a reply, an escalation signal, or a degraded reply.
type Result struct {
	Reply string
	// Reason explains an escalation signal.
	Reason        string
	Usage         conversation.Usage
	Escalate      bool
	LowConfidence bool
	// Degraded is set when inference was unavailable.
	Degraded bool
}

// Handler answers turns for one specialist.
type Handler interface {
	Specialist() conversation.Specialist
	Handle(ctx context.Context, req *Request) (*Result, error)
}

// Registry maps specialists to handlers. Unknown specialists resolve to the
// generalist.
type Registry struct {
	handlers map[conversation.Specialist]Handler
}

// NewRegistry creates a registry. A generalist handler is required.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[conversation.Specialist]Handler, len(handlers))}
	for _, h := range handlers {
		if _, dup := r.handlers[h.Specialist()]; dup {
			return nil, fmt.Errorf("duplicate handler for %s", h.Specialist())
		}
		r.handlers[h.Specialist()] = h
	}
	if _, ok := r.handlers[conversation.SpecialistGeneralist]; !ok {
		return nil, fmt.Errorf("a %s handler is required", conversation.SpecialistGeneralist)
	}
	return r, nil
}

// Get returns the handler for s, or the generalist.
func (r *Registry) Get(s conversation.Specialist) Handler {
	if h, ok := r.handlers[s]; ok {
		return h
	}
	return r.handlers[conversation.SpecialistGeneralist]
}

const degradedReply = "I'm sorry, I'm having trouble answering right now."

// answer asks the gateway for a reply in the voice of systemPrompt.
func answer(ctx context.Context, completer llm.Completer, systemPrompt string, window []conversation.Turn) (string, conversation.Usage, error) {
	messages := []llm.Message{llm.SystemPrompt(systemPrompt)}
	for _, t := range window {
		switch t.Role {
		case conversation.RoleUser:
			messages = append(messages, llm.UserMessage(t.Content))
		case conversation.RoleAssistant:
			messages = append(messages, llm.AssistantMessage(t.Content))
		}
	}

	req := &llm.Request{Messages: messages}
	resp, err := completer.Complete(ctx, req)
	if err != nil {
		return "", conversation.Usage{}, err
	}
	llm.EnsureStats(resp, req)
	return resp.Content, conversation.Usage{
		PromptTokens:     resp.Stats.PromptTokens,
		CompletionTokens: resp.Stats.CompletionTokens,
		TotalTokens:      resp.Stats.TotalTokens,
	}, nil
}

// degraded turns a gateway failure into a result. An abandoned turn returns
// the context error and signals nothing. Only an exhausted fallback chain
// escalates; any other failure answers with the apology and counts as a low
// confidence turn.
func degraded(ctx context.Context, err error) (*Result, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("turn abandoned: %w", ctxErr)
	}
	if llm.IsExhausted(err) {
		return &Result{
			Reply:    degradedReply,
			Escalate: true,
			Degraded: true,
			Reason:   fmt.Sprintf("inference unavailable: %v", err),
		}, nil
	}
	return &Result{
		Reply:         degradedReply,
		Degraded:      true,
		LowConfidence: true,
		Reason:        fmt.Sprintf("inference failed: %v", err),
	}, nil
}
