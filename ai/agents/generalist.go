package agent

import (
	"context"

	"github.com/hrygo/supportdesk/ai/conversation"
	"github.com/hrygo/supportdesk/ai/core/llm"
)

const generalistPrompt = `You are the front desk of a customer support team.
Answer general questions briefly and politely. For orders, technical problems
or billing, ask the customer for the relevant details.`

const qualificationReply = "Generalist here. How can I help you? If this is about your account or an order, please share the email address you registered with."

// GeneralistHandler qualifies unknown customers and answers general questions.
type GeneralistHandler struct {
	completer llm.Completer
}

var _ Handler = (*GeneralistHandler)(nil)

// NewGeneralistHandler creates the default handler. A nil completer answers
// with a static greeting.
func NewGeneralistHandler(completer llm.Completer) *GeneralistHandler {
	return &GeneralistHandler{completer: completer}
}

func (*GeneralistHandler) Specialist() conversation.Specialist {
	return conversation.SpecialistGeneralist
}

func (h *GeneralistHandler) Handle(ctx context.Context, req *Request) (*Result, error) {
	if req.State.CustomerID == "" {
		return &Result{Reply: qualificationReply}, nil
	}
	if h.completer == nil {
		return &Result{Reply: "Generalist here. How can I help you?"}, nil
	}

	reply, usage, err := answer(ctx, h.completer, generalistPrompt, req.Window)
	if err != nil {
		return degraded(ctx, err)
	}
	return &Result{Reply: reply, Usage: usage}, nil
}
