package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/supportdesk/ai/conversation"
	"github.com/hrygo/supportdesk/ai/orchestrator"
	"github.com/hrygo/supportdesk/internal/profile"
)

func testProfile(t *testing.T) *profile.Profile {
	t.Helper()
	t.Setenv("SUPPORTDESK_LLM_BACKENDS", "deepseek")
	t.Setenv("SUPPORTDESK_LLM_DEEPSEEK_API_KEY", "")
	t.Setenv("SUPPORTDESK_POLICY_DIR", "../../config")

	p := &profile.Profile{Mode: "demo", Driver: "sqlite", Data: t.TempDir()}
	p.FromEnv()
	require.NoError(t, p.Validate())
	return p
}

func TestLoadPolicies(t *testing.T) {
	p := testProfile(t)
	pol, err := loadPolicies(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	assert.Len(t, pol.filter.Patterns, 2)
	assert.Len(t, pol.knowledge.Articles, 3)
	assert.Len(t, pol.escalation.Rules, 2)
	assert.Contains(t, pol.routing.Keywords[conversation.SpecialistOrder], "return")
	// Specialists missing from the file keep their built-in signals.
	assert.Contains(t, pol.routing.Keywords[conversation.SpecialistTech], "password")
}

func TestLoadPoliciesMissingDir(t *testing.T) {
	p := testProfile(t)
	p.PolicyDir = t.TempDir()
	pol, err := loadPolicies(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Len(t, pol.knowledge.Articles, 2)
	assert.Empty(t, pol.escalation.Rules)
}

func TestNewAppOffline(t *testing.T) {
	p := testProfile(t)
	ctx := context.Background()

	a, err := newApp(ctx, p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer a.Close()

	out, err := a.orchestrator.HandleMessage(ctx, orchestrator.Inbound{
		SessionID: "cli-1",
		Text:      "Hi, I'm alice@example.com, where is my order?",
	})
	require.NoError(t, err)
	assert.Equal(t, conversation.SpecialistOrder, out.ActiveSpecialist)
	assert.Contains(t, out.Reply, "ORD-456")

	// The CEL rule from the sample policy escalates before any handler runs.
	out, err = a.orchestrator.HandleMessage(ctx, orchestrator.Inbound{
		SessionID: "cli-1",
		Text:      "I will ask my lawyer about this",
	})
	require.NoError(t, err)
	assert.True(t, out.IsHumanTakeover)
	assert.NotEmpty(t, out.TicketID)

	require.NoError(t, a.store.Ping(ctx))
	text, err := a.metrics.ExportText()
	require.NoError(t, err)
	assert.Contains(t, text, "escalations_total")
}
