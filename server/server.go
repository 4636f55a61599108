// Package server hosts the REST surface of the support desk.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/supportdesk/internal/profile"
	apiv1 "github.com/hrygo/supportdesk/server/router/api/v1"
)

type Server struct {
	Profile    *profile.Profile
	echoServer *echo.Echo
	logger     *slog.Logger
}

// NewServer builds the echo server and registers the API routes.
func NewServer(ctx context.Context, profile *profile.Profile, api *apiv1.APIV1Service, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Profile: profile,
		logger:  logger.With("component", "server"),
	}

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())
	echoServer.Use(middleware.RequestID())
	echoServer.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			s.logger.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	}))
	echoServer.Debug = profile.IsDev()
	s.echoServer = echoServer

	if err := api.RegisterGateway(ctx, echoServer); err != nil {
		return nil, fmt.Errorf("failed to register api routes: %w", err)
	}
	return s, nil
}

// Start serves until Shutdown is called. It returns http.ErrServerClosed
// after a graceful shutdown.
func (s *Server) Start(_ context.Context) error {
	address := net.JoinHostPort(s.Profile.Addr, fmt.Sprintf("%d", s.Profile.Port))
	s.logger.Info("server listening", "address", address)
	return s.echoServer.Start(address)
}

// Shutdown stops accepting requests and waits for in-flight turns to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.echoServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}
