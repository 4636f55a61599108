package v1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	ctxpkg "github.com/hrygo/supportdesk/ai/context"
	"github.com/hrygo/supportdesk/ai/conversation"
	"github.com/hrygo/supportdesk/ai/orchestrator"
	"github.com/hrygo/supportdesk/ai/session"
	"github.com/hrygo/supportdesk/internal/profile"
)

type mockOrchestrator struct {
	mock.Mock
}

func (m *mockOrchestrator) HandleMessage(ctx context.Context, in orchestrator.Inbound) (*orchestrator.Outbound, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*orchestrator.Outbound)
	return out, args.Error(1)
}

func (m *mockOrchestrator) Session(ctx context.Context, sessionID string) (*conversation.State, error) {
	args := m.Called(ctx, sessionID)
	state, _ := args.Get(0).(*conversation.State)
	return state, args.Error(1)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestEcho(t *testing.T, p *profile.Profile, orch Orchestrator, health HealthChecker) *echo.Echo {
	t.Helper()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "supportdesk_turns_total 1")
	})
	api := NewAPIV1Service(p, orch, health, metrics, nil)
	e := echo.New()
	require.NoError(t, api.RegisterGateway(context.Background(), e))
	return e
}

func doJSON(e *echo.Echo, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestChat(t *testing.T) {
	orch := &mockOrchestrator{}
	orch.On("HandleMessage", mock.Anything, orchestrator.Inbound{SessionID: "s1", Text: "Where is #552?", CustomerRef: "jane@example.com"}).
		Return(&orchestrator.Outbound{
			SessionID:        "s1",
			Reply:            "I couldn't find order #552. Could you double-check the order number?",
			ActiveSpecialist: conversation.SpecialistOrder,
			EscalationState:  conversation.EscalationAutomated,
			TurnUsage:        conversation.Usage{PromptTokens: 106, TotalTokens: 106},
			Usage:            conversation.Usage{PromptTokens: 106, TotalTokens: 106},
		}, nil)

	e := newTestEcho(t, &profile.Profile{}, orch, nil)
	rec := doJSON(e, http.MethodPost, "/api/v1/chat",
		`{"session_id":"s1","text":"Where is #552?","customer_ref":"jane@example.com"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, conversation.SpecialistOrder, resp.ActiveSpecialist)
	assert.False(t, resp.IsHumanTakeover)
	assert.Equal(t, 106, resp.TokenUsage.TotalTokens)
	orch.AssertExpectations(t)
}

func TestChatErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "missing text", body: `{"session_id":"s1"}`, status: http.StatusBadRequest},
		{name: "blank text", body: `{"text":"   "}`, status: http.StatusBadRequest},
		{name: "oversized text", body: `{"text":"` + strings.Repeat("a", MaxMessageBytes+1) + `"}`, status: http.StatusBadRequest},
		{name: "malformed json", body: `{"text":`, status: http.StatusBadRequest},
		{name: "empty message", body: `{"text":"hi"}`, err: orchestrator.ErrEmptyMessage, status: http.StatusBadRequest},
		{name: "busy session", body: `{"text":"hi"}`, err: fmt.Errorf("acquire: %w", session.ErrBusy), status: http.StatusConflict},
		{name: "deadline", body: `{"text":"hi"}`, err: context.DeadlineExceeded, status: http.StatusGatewayTimeout},
		{name: "internal", body: `{"text":"hi"}`, err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch := &mockOrchestrator{}
			if tt.err != nil {
				orch.On("HandleMessage", mock.Anything, mock.Anything).Return(nil, tt.err)
			}
			e := newTestEcho(t, &profile.Profile{}, orch, nil)
			rec := doJSON(e, http.MethodPost, "/api/v1/chat", tt.body, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.err == nil {
				orch.AssertNotCalled(t, "HandleMessage", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestGetSession(t *testing.T) {
	state := conversation.New("s1", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	state.MarkTakeover()
	orch := &mockOrchestrator{}
	orch.On("Session", mock.Anything, "s1").Return(state, nil)
	orch.On("Session", mock.Anything, "missing").Return(nil, ctxpkg.ErrNotFound)
	orch.On("Session", mock.Anything, "broken").Return(nil, errors.New("disk on fire"))

	e := newTestEcho(t, &profile.Profile{}, orch, nil)

	rec := doJSON(e, http.MethodGet, "/api/v1/sessions/s1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got conversation.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "s1", got.SessionID)
	assert.True(t, got.IsHumanTakeover)

	assert.Equal(t, http.StatusNotFound, doJSON(e, http.MethodGet, "/api/v1/sessions/missing", "", nil).Code)
	assert.Equal(t, http.StatusInternalServerError, doJSON(e, http.MethodGet, "/api/v1/sessions/broken", "", nil).Code)
}

func TestAPIKey(t *testing.T) {
	orch := &mockOrchestrator{}
	orch.On("HandleMessage", mock.Anything, mock.Anything).Return(&orchestrator.Outbound{SessionID: "s1"}, nil)
	e := newTestEcho(t, &profile.Profile{APIKey: "secret"}, orch, nil)

	rec := doJSON(e, http.MethodPost, "/api/v1/chat", `{"text":"hi"}`, map[string]string{echo.HeaderAuthorization: "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/v1/chat", `{"text":"hi"}`, nil)
	assert.NotEqual(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/v1/chat", `{"text":"hi"}`, map[string]string{echo.HeaderAuthorization: "Bearer secret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health and metrics stay open.
	assert.Equal(t, http.StatusOK, doJSON(e, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, doJSON(e, http.MethodGet, "/metrics", "", nil).Code)
}

func TestHealthz(t *testing.T) {
	healthy := true
	e := newTestEcho(t, &profile.Profile{Version: "0.1.0"}, &mockOrchestrator{}, pingFunc(func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("store down")
	}))

	rec := doJSON(e, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"0.1.0"`)

	healthy = false
	assert.Equal(t, http.StatusServiceUnavailable, doJSON(e, http.MethodGet, "/healthz", "", nil).Code)
}

func TestMetricsRoute(t *testing.T) {
	e := newTestEcho(t, &profile.Profile{MetricsPath: "/internal/metrics"}, &mockOrchestrator{}, nil)
	rec := doJSON(e, http.MethodGet, "/internal/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "supportdesk_turns_total")
}
