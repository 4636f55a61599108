package v1

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/supportdesk/ai/conversation"
	"github.com/hrygo/supportdesk/ai/orchestrator"
	"github.com/hrygo/supportdesk/internal/profile"
)

// Orchestrator is the conversation core behind the REST surface.
type Orchestrator interface {
	HandleMessage(ctx context.Context, in orchestrator.Inbound) (*orchestrator.Outbound, error)
	Session(ctx context.Context, sessionID string) (*conversation.State, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type APIV1Service struct {
	Profile      *profile.Profile
	Orchestrator Orchestrator
	// Health is optional; nil reports healthy.
	Health HealthChecker
	// Metrics serves the Prometheus exposition format; nil disables the route.
	Metrics http.Handler
	Logger  *slog.Logger
}

func NewAPIV1Service(profile *profile.Profile, orch Orchestrator, health HealthChecker, metrics http.Handler, logger *slog.Logger) *APIV1Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIV1Service{
		Profile:      profile,
		Orchestrator: orch,
		Health:       health,
		Metrics:      metrics,
		Logger:       logger.With("component", "api"),
	}
}

// RegisterGateway mounts the REST routes on echoServer.
func (s *APIV1Service) RegisterGateway(_ context.Context, echoServer *echo.Echo) error {
	echoServer.Validator = newRequestValidator()

	echoServer.GET("/healthz", s.Healthz)
	if s.Metrics != nil {
		path := s.Profile.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		echoServer.GET(path, echo.WrapHandler(s.Metrics))
	}

	apiGroup := echoServer.Group("/api/v1")
	apiGroup.Use(middleware.BodyLimit("64K"))
	if s.Profile.APIKey != "" {
		expected := []byte(s.Profile.APIKey)
		apiGroup.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:" + echo.HeaderAuthorization,
			Validator: func(key string, _ echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), expected) == 1, nil
			},
		}))
	}
	apiGroup.POST("/chat", s.Chat)
	apiGroup.GET("/sessions/:id", s.GetSession)
	return nil
}

// Healthz reports liveness and, when configured, store reachability.
func (s *APIV1Service) Healthz(c echo.Context) error {
	if s.Health != nil {
		if err := s.Health.Ping(c.Request().Context()); err != nil {
			s.Logger.Warn("health check failed", "error", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.Profile.Version,
	})
}
