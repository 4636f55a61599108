package conversation

import (
	"time"
)

// State is the durable record of one support session.
type State struct {
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	SessionID           string          `json:"session_id"`
	CustomerID          string          `json:"customer_id,omitempty"`
	CustomerTier        string          `json:"customer_tier,omitempty"`
	ActiveSpecialist    Specialist      `json:"active_specialist"`
	EscalationState     EscalationState `json:"escalation_state"`
	TicketID            string          `json:"ticket_id,omitempty"`
	Turns               []Turn          `json:"turns"`
	Usage               Usage           `json:"usage"`
	LowConfidenceStreak int             `json:"low_confidence_streak"`
	IsHumanTakeover     bool            `json:"is_human_takeover"`
	Inconsistent        bool            `json:"inconsistent,omitempty"`
}

// New creates an empty automated session owned by the generalist.
func New(sessionID string, now time.Time) *State {
	return &State{
		SessionID:        sessionID,
		ActiveSpecialist: SpecialistGeneralist,
		EscalationState:  EscalationAutomated,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Append adds a turn to the history and returns the stored copy.
// Assistant turns are rejected once the session is under human takeover.
func (s *State) Append(t Turn) (Turn, error) {
	if t.Role == RoleAssistant && s.IsHumanTakeover {
		return Turn{}, ErrHumanLocked
	}
	return s.push(t), nil
}

// AppendHandoff records the single hand-off notice of an escalation.
// It is the only assistant turn accepted after takeover.
func (s *State) AppendHandoff(content string, now time.Time) (Turn, error) {
	for _, t := range s.Turns {
		if t.Escalation {
			return Turn{}, ErrHandoffRecorded
		}
	}
	return s.push(Turn{
		Role:       RoleAssistant,
		Content:    content,
		Specialist: SpecialistNone,
		Escalation: true,
		Timestamp:  now,
	}), nil
}

func (s *State) push(t Turn) Turn {
	t.Seq = len(s.Turns)
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	s.Turns = append(s.Turns, t)
	s.UpdatedAt = t.Timestamp
	return t
}

// SetCustomer binds the customer identity. The tier can only be set once.
func (s *State) SetCustomer(id, tier string) error {
	if s.CustomerTier != "" && s.CustomerTier != tier {
		return ErrTierAlreadySet
	}
	s.CustomerID = id
	s.CustomerTier = tier
	return nil
}

// MarkTakeover flips the takeover flag. It never goes back to false.
func (s *State) MarkTakeover() {
	s.IsHumanTakeover = true
	s.EscalationState = EscalationHumanLocked
	s.ActiveSpecialist = SpecialistNone
}

// LastUserText returns the content of the most recent user turn.
func (s *State) LastUserText() string {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == RoleUser {
			return s.Turns[i].Content
		}
	}
	return ""
}

// LastUserSeq returns the sequence of the most recent user turn, or -1.
func (s *State) LastUserSeq() int {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == RoleUser {
			return s.Turns[i].Seq
		}
	}
	return -1
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	c := *s
	c.Turns = append([]Turn(nil), s.Turns...)
	return &c
}

// AddUsage accumulates token usage.
func (s *State) AddUsage(u Usage) {
	s.Usage = s.Usage.Add(u)
}
