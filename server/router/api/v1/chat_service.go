package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/supportdesk/ai/conversation"
	"github.com/hrygo/supportdesk/ai/orchestrator"
	"github.com/hrygo/supportdesk/ai/session"
)

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	SessionID   string `json:"session_id" validate:"omitempty,max=128"`
	Text        string `json:"text" validate:"required,notblank,maxbytes"`
	CustomerRef string `json:"customer_ref" validate:"omitempty,max=254"`
}

// ChatResponse is the result of one turn.
type ChatResponse struct {
	SessionID        string                       `json:"session_id"`
	Reply            string                       `json:"reply"`
	ActiveSpecialist conversation.Specialist      `json:"active_specialist"`
	EscalationState  conversation.EscalationState `json:"escalation_state"`
	TicketID         string                       `json:"ticket_id,omitempty"`
	TokenUsage       conversation.Usage           `json:"token_usage"`
	SessionUsage     conversation.Usage           `json:"session_usage"`
	IsHumanTakeover  bool                         `json:"is_human_takeover"`
	Inconsistent     bool                         `json:"inconsistent,omitempty"`
}

// Chat runs one customer message through the support pipeline.
func (s *APIV1Service) Chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	out, err := s.Orchestrator.HandleMessage(c.Request().Context(), orchestrator.Inbound{
		SessionID:   req.SessionID,
		Text:        req.Text,
		CustomerRef: req.CustomerRef,
	})
	if err != nil {
		return s.chatError(c, req.SessionID, err)
	}

	return c.JSON(http.StatusOK, ChatResponse{
		SessionID:        out.SessionID,
		Reply:            out.Reply,
		ActiveSpecialist: out.ActiveSpecialist,
		EscalationState:  out.EscalationState,
		TicketID:         out.TicketID,
		TokenUsage:       out.TurnUsage,
		SessionUsage:     out.Usage,
		IsHumanTakeover:  out.IsHumanTakeover,
		Inconsistent:     out.Inconsistent,
	})
}

func (s *APIV1Service) chatError(c echo.Context, sessionID string, err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyMessage):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrBusy):
		return echo.NewHTTPError(http.StatusConflict, "session is busy with another message").SetInternal(err)
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "turn timed out").SetInternal(err)
	case errors.Is(err, context.Canceled):
		// The client went away; nobody reads this response.
		return echo.NewHTTPError(http.StatusRequestTimeout).SetInternal(err)
	}
	s.Logger.Error("failed to handle message", "session_id", sessionID, "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "failed to handle message").SetInternal(err)
}
