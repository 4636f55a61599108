package store

// Conversation is the persisted header of a support session.
type Conversation struct {
	SessionID           string
	CustomerID          string
	CustomerTier        string
	ActiveSpecialist    string
	EscalationState     string
	TicketID            string
	CostEstimate        float64
	CreatedTs           int64
	UpdatedTs           int64
	PromptTokens        int32
	CompletionTokens    int32
	TotalTokens         int32
	LowConfidenceStreak int32
	IsHumanTakeover     bool
	Inconsistent        bool
}

// Turn is one persisted, already sanitized message.
type Turn struct {
	SessionID  string
	Role       string
	Content    string
	Specialist string
	CreatedTs  int64
	Seq        int32
	Escalation bool
}

type FindConversation struct {
	CustomerID      *string
	IsHumanTakeover *bool
	Limit           int
}
