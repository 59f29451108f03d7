package daemon

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rlopes/wview/internal/api"
	"github.com/rlopes/wview/internal/config"
	"go.uber.org/zap"
)

// Server manages the HTTP server lifecycle.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger *zap.Logger
}

// NewServer builds the Echo instance with all routes registered.
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	conv *api.ConversationHandler,
	webhook *api.WebhookHandler,
	ws *api.WSHandler,
	registry *prometheus.Registry,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.Register(e, conv, webhook, ws, registry)

	return &Server{echo: e, addr: cfg.ListenAddr, logger: logger}
}

// Start begins serving HTTP requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.addr))
	err := s.echo.Start(s.addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	if err := s.echo.Shutdown(ctx); err != nil {
		s.logger.Warn("shutdown error", zap.Error(err))
	}
}
