// Package conversation defines the conversation state shared by every stage of
// the support pipeline.
package conversation

import (
	"errors"
	"time"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Specialist names a handler that can own a conversation.
type Specialist string

const (
	SpecialistNone       Specialist = "none"
	SpecialistGeneralist Specialist = "generalist"
	SpecialistOrder      Specialist = "order"
	SpecialistTech       Specialist = "tech"
	SpecialistBilling    Specialist = "billing"
)

// Specialists lists the routable specialists in a stable order.
var Specialists = []Specialist{SpecialistOrder, SpecialistTech, SpecialistBilling, SpecialistGeneralist}

// ParseSpecialist maps free text to a specialist.
// Anything unrecognized maps to the generalist.
func ParseSpecialist(s string) Specialist {
	switch Specialist(s) {
	case SpecialistOrder, SpecialistTech, SpecialistBilling, SpecialistGeneralist:
		return Specialist(s)
	default:
		return SpecialistGeneralist
	}
}

// EscalationState is the position of a session in the hand-off state machine.
type EscalationState string

const (
	EscalationAutomated   EscalationState = "automated"
	EscalationEscalating  EscalationState = "escalating"
	EscalationHumanLocked EscalationState = "human_locked"
)

var (
	// ErrHumanLocked is returned when an automated reply is appended after takeover.
	ErrHumanLocked = errors.New("conversation is under human takeover")
	// ErrTierAlreadySet is returned when the customer tier is changed after it was set.
	ErrTierAlreadySet = errors.New("customer tier already set")
	// ErrHandoffRecorded is returned when a second hand-off notice is appended.
	ErrHandoffRecorded = errors.New("hand-off notice already recorded")
)

// Turn is one message in the history. Turns are immutable once appended.
type Turn struct {
	Timestamp  time.Time  `json:"timestamp"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Specialist Specialist `json:"specialist,omitempty"`
	Seq        int        `json:"seq"`
	Escalation bool       `json:"escalation,omitempty"`
}

// Usage accumulates token counts and the derived cost estimate.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostEstimate     float64 `json:"cost_estimate"`
}

// Add returns the sum of two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
		CostEstimate:     u.CostEstimate + o.CostEstimate,
	}
}
