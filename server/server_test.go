package server

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/supportdesk/internal/profile"
	apiv1 "github.com/hrygo/supportdesk/server/router/api/v1"
)

func TestServerMiddleware(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	p := &profile.Profile{Mode: "prod", Port: 0, Version: "0.1.0"}

	s, err := NewServer(context.Background(), p, apiv1.NewAPIV1Service(p, nil, nil, nil, logger), logger)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	assert.Contains(t, logs.String(), `"uri":"/healthz"`)
	assert.Contains(t, logs.String(), `"status":200`)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerShutdownBeforeStart(t *testing.T) {
	p := &profile.Profile{Mode: "prod"}
	s, err := NewServer(context.Background(), p, apiv1.NewAPIV1Service(p, nil, nil, nil, nil), nil)
	require.NoError(t, err)
	assert.NoError(t, s.Shutdown(context.Background()))
}
