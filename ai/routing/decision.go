// Package routing selects the specialist that handles each customer turn.
package routing

import (
	"github.com/hrygo/supportdesk/ai/conversation"
)

// Method records how a decision was reached.
type Method string

const (
	MethodRule    Method = "rule"
	MethodLLM     Method = "llm"
	MethodSticky  Method = "sticky"
	MethodDefault Method = "default"
	MethodCache   Method = "cache"
	MethodLocked  Method = "locked"
)

// Decision is the transient outcome of routing one turn.
type Decision struct {
	Target     conversation.Specialist
	Method     Method
	Rationale  string
	Usage      conversation.Usage
	Confidence float64
}

func routable(s conversation.Specialist) bool {
	switch s {
	case conversation.SpecialistOrder, conversation.SpecialistTech,
		conversation.SpecialistBilling, conversation.SpecialistGeneralist:
		return true
	default:
		return false
	}
}
