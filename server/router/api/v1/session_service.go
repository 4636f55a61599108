package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	ctxpkg "github.com/hrygo/supportdesk/ai/context"
)

// GetSession returns the sanitized history and escalation status of a session.
func (s *APIV1Service) GetSession(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	state, err := s.Orchestrator.Session(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ctxpkg.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		s.Logger.Error("failed to load session", "session_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load session").SetInternal(err)
	}
	return c.JSON(http.StatusOK, state)
}
