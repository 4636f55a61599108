package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Append(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := New("s1", now)

	first, err := s.Append(Turn{Role: RoleSystem, Content: "welcome", Timestamp: now})
	require.NoError(t, err)
	second, err := s.Append(Turn{Role: RoleUser, Content: "hi", Timestamp: now})
	require.NoError(t, err)

	assert.Equal(t, 0, first.Seq)
	assert.Equal(t, 1, second.Seq)
	assert.Equal(t, "hi", s.LastUserText())
	assert.Equal(t, 1, s.LastUserSeq())
}

func TestState_NoAssistantAfterTakeover(t *testing.T) {
	now := time.Now()
	s := New("s1", now)
	_, err := s.Append(Turn{Role: RoleUser, Content: "refund please"})
	require.NoError(t, err)

	s.MarkTakeover()
	_, err = s.AppendHandoff("a human will help you", now)
	require.NoError(t, err)

	_, err = s.Append(Turn{Role: RoleAssistant, Content: "automated"})
	assert.ErrorIs(t, err, ErrHumanLocked)

	_, err = s.AppendHandoff("again", now)
	assert.ErrorIs(t, err, ErrHandoffRecorded)

	_, err = s.Append(Turn{Role: RoleUser, Content: "hello?"})
	assert.NoError(t, err, "customer turns are still recorded")

	assert.True(t, s.IsHumanTakeover)
	assert.Equal(t, EscalationHumanLocked, s.EscalationState)
}

func TestState_SetCustomer(t *testing.T) {
	s := New("s1", time.Now())
	require.NoError(t, s.SetCustomer("C1", "premium"))
	require.NoError(t, s.SetCustomer("C1", "premium"))
	assert.ErrorIs(t, s.SetCustomer("C1", "standard"), ErrTierAlreadySet)
	assert.Equal(t, "premium", s.CustomerTier)
}

func TestState_Clone(t *testing.T) {
	s := New("s1", time.Now())
	_, _ = s.Append(Turn{Role: RoleUser, Content: "a"})
	c := s.Clone()
	_, _ = c.Append(Turn{Role: RoleUser, Content: "b"})
	assert.Len(t, s.Turns, 1)
	assert.Len(t, c.Turns, 2)
}

func TestParseSpecialist(t *testing.T) {
	tests := []struct {
		in   string
		want Specialist
	}{
		{"order", SpecialistOrder},
		{"tech", SpecialistTech},
		{"billing", SpecialistBilling},
		{"general", SpecialistGeneralist},
		{"", SpecialistGeneralist},
		{"escalate", SpecialistGeneralist},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSpecialist(tt.in))
		})
	}
}

func TestUsage_Add(t *testing.T) {
	u := Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3, CostEstimate: 0.5}
	got := u.Add(Usage{PromptTokens: 4, CompletionTokens: 5, TotalTokens: 9, CostEstimate: 0.25})
	assert.Equal(t, Usage{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12, CostEstimate: 0.75}, got)
}
