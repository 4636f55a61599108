// Package storetest holds a conformance suite shared by every store driver.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/supportdesk/internal/version"
	"github.com/hrygo/supportdesk/store"
)

// RunDriverSuite exercises driver against the behavior the conversation
// pipeline relies on. The driver must be empty and unmigrated.
func RunDriverSuite(t *testing.T, driver store.Driver) {
	ctx := context.Background()
	s := store.New(driver, nil)

	v, err := driver.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx), "migrate is idempotent")
	v, err = driver.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, version.SchemaVersion, v)
	require.NoError(t, s.Seed(ctx))
	require.NoError(t, s.Seed(ctx), "seed is idempotent")

	t.Run("Customers", func(t *testing.T) {
		email := "ALICE@example.com"
		c, err := s.GetCustomer(ctx, &store.FindCustomer{Email: &email})
		require.NoError(t, err)
		assert.Equal(t, "C1", c.ID)
		assert.Equal(t, "premium", c.Tier)

		id := "C2"
		c, err = s.GetCustomer(ctx, &store.FindCustomer{ID: &id})
		require.NoError(t, err)
		assert.Equal(t, "bob@example.com", c.Email)

		missing := "nobody@example.com"
		_, err = s.GetCustomer(ctx, &store.FindCustomer{Email: &missing})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Orders", func(t *testing.T) {
		customer := "C1"
		list, err := s.ListOrders(ctx, &store.FindOrder{CustomerID: &customer})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "ORD-456", list[0].ID, "newest first")

		o, err := s.GetOrder(ctx, "ORD-123")
		require.NoError(t, err)
		assert.Equal(t, "Shipped", o.Status)
		assert.Equal(t, "Wireless Headphones, USB-C Cable", o.Items)

		_, err = s.GetOrder(ctx, "ORD-999")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Conversations", func(t *testing.T) {
		_, err := s.GetConversation(ctx, "s-1")
		assert.ErrorIs(t, err, store.ErrNotFound)

		conv := &store.Conversation{
			SessionID:        "s-1",
			CustomerID:       "C1",
			CustomerTier:     "premium",
			ActiveSpecialist: "order",
			EscalationState:  "automated",
			TotalTokens:      120,
			CostEstimate:     0.0000168,
			CreatedTs:        100,
			UpdatedTs:        100,
		}
		turns := []*store.Turn{
			{SessionID: "s-1", Seq: 0, Role: "system", Content: "welcome", CreatedTs: 100},
			{SessionID: "s-1", Seq: 1, Role: "user", Content: "where is ORD-123?", CreatedTs: 100},
		}
		require.NoError(t, s.SaveConversation(ctx, conv, turns))

		require.NoError(t, s.AppendTurn(ctx, &store.Turn{SessionID: "s-1", Seq: 2, Role: "assistant", Content: "shipped", Specialist: "order", CreatedTs: 101}))
		require.NoError(t, s.AppendTurn(ctx, &store.Turn{SessionID: "s-1", Seq: 2, Role: "assistant", Content: "duplicate", CreatedTs: 102}), "re-appending a seq is a no-op")

		got, err := s.GetConversation(ctx, "s-1")
		require.NoError(t, err)
		assert.Equal(t, "order", got.ActiveSpecialist)
		assert.Equal(t, int32(120), got.TotalTokens)
		assert.False(t, got.IsHumanTakeover)

		list, err := s.ListTurns(ctx, "s-1")
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "shipped", list[2].Content)
		for i, turn := range list {
			assert.Equal(t, int32(i), turn.Seq)
		}

		conv.IsHumanTakeover = true
		conv.EscalationState = "human_locked"
		conv.UpdatedTs = 200
		require.NoError(t, s.SaveConversation(ctx, conv, nil))

		conv.IsHumanTakeover = false
		require.NoError(t, s.SaveConversation(ctx, conv, nil))
		got, err = s.GetConversation(ctx, "s-1")
		require.NoError(t, err)
		assert.True(t, got.IsHumanTakeover, "takeover never reverts")

		locked := true
		convs, err := s.ListConversations(ctx, &store.FindConversation{IsHumanTakeover: &locked})
		require.NoError(t, err)
		require.Len(t, convs, 1)
		assert.Equal(t, "s-1", convs[0].SessionID)
	})

	t.Run("Tickets", func(t *testing.T) {
		_, err := s.CreateTicket(ctx, &store.Ticket{
			ID:         "TICK-1",
			SessionID:  "s-1",
			CustomerID: "C1",
			Status:     store.TicketStatusOpen,
			Priority:   "high",
			Category:   "billing",
			Summary:    "refund requested",
			TurnSeq:    1,
			CreatedTs:  300,
		})
		require.NoError(t, err)

		_, err = s.CreateTicket(ctx, &store.Ticket{ID: "TICK-1", SessionID: "s-1", Status: store.TicketStatusOpen, Priority: "high", Category: "billing", CreatedTs: 301})
		assert.Error(t, err, "ticket ids are unique")

		sid := "s-1"
		list, err := s.ListTickets(ctx, &store.FindTicket{SessionID: &sid})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "refund requested", list[0].Summary)
		assert.Equal(t, store.TicketStatusOpen, list[0].Status)
	})
}
