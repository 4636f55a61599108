// Package ticket provides the ticketing collaborators used on escalation.
package ticket

import (
	"context"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/supportdesk/ai/escalation"
	"github.com/hrygo/supportdesk/plugin/webhook"
	"github.com/hrygo/supportdesk/store"
)

// IDPrefix starts every ticket id.
const IDPrefix = "TICK-"

// NewID returns a short unique ticket id.
func NewID() string {
	return IDPrefix + shortuuid.New()[:8]
}

// TicketStore is the subset of the store that records tickets.
type TicketStore interface {
	CreateTicket(ctx context.Context, t *store.Ticket) (*store.Ticket, error)
}

// StoreTicketing records tickets in the support database and optionally
// notifies a webhook.
type StoreTicketing struct {
	store      TicketStore
	now        func() time.Time
	webhookURL string
}

var _ escalation.Ticketing = (*StoreTicketing)(nil)

// NewStoreTicketing creates a ticketing collaborator. An empty webhookURL
// disables notifications.
func NewStoreTicketing(s TicketStore, webhookURL string) *StoreTicketing {
	return &StoreTicketing{store: s, webhookURL: webhookURL, now: time.Now}
}

// CreateTicket stores an OPEN ticket and returns its id. A configured webhook
// is notified synchronously; a notification failure is logged only, since
// the ticket is already recorded.
func (s *StoreTicketing) CreateTicket(ctx context.Context, t escalation.Ticket) (string, error) {
	created, err := s.store.CreateTicket(ctx, &store.Ticket{
		ID:         NewID(),
		SessionID:  t.SessionID,
		CustomerID: t.CustomerID,
		Status:     store.TicketStatusOpen,
		Priority:   t.Priority,
		Category:   t.Category,
		Summary:    t.Summary,
		TurnSeq:    int32(t.TurnSeq),
		CreatedTs:  s.now().Unix(),
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to create ticket for session %s", t.SessionID)
	}

	if s.webhookURL != "" {
		if _, err := webhook.Post(ctx, s.webhookURL, payload(created)); err != nil {
			slog.WarnContext(ctx, "Failed to notify ticket webhook",
				slog.String("ticketId", created.ID),
				slog.Any("err", err))
		}
	}
	return created.ID, nil
}

// WebhookTicketing delegates ticket creation to an external help desk.
type WebhookTicketing struct {
	now func() time.Time
	url string
}

var _ escalation.Ticketing = (*WebhookTicketing)(nil)

func NewWebhookTicketing(url string) *WebhookTicketing {
	return &WebhookTicketing{url: url, now: time.Now}
}

// CreateTicket posts the ticket and returns the id assigned by the help desk,
// or a local id when the help desk does not assign one.
func (w *WebhookTicketing) CreateTicket(ctx context.Context, t escalation.Ticket) (string, error) {
	p := payload(&store.Ticket{
		ID:         NewID(),
		SessionID:  t.SessionID,
		CustomerID: t.CustomerID,
		Priority:   t.Priority,
		Category:   t.Category,
		Summary:    t.Summary,
		TurnSeq:    int32(t.TurnSeq),
		CreatedTs:  w.now().Unix(),
	})
	resp, err := webhook.Post(ctx, w.url, p)
	if err != nil {
		return "", err
	}
	if resp.TicketID != "" {
		return resp.TicketID, nil
	}
	return p.TicketID, nil
}

func payload(t *store.Ticket) *webhook.TicketPayload {
	return &webhook.TicketPayload{
		TicketID:   t.ID,
		SessionID:  t.SessionID,
		CustomerID: t.CustomerID,
		Priority:   t.Priority,
		Category:   t.Category,
		Summary:    t.Summary,
		TurnSeq:    int(t.TurnSeq),
		CreatedTs:  t.CreatedTs,
	}
}
