// Package server exposes the engine's management surface over HTTP:
// running commands, inspecting and cancelling schedules, and clearing the
// conversation history.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// Server runs the management surface on its own listener.
type Server struct {
	echo   *echo.Echo
	listen string
	logger zerolog.Logger
}

func New(listen string, handler *Handler, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	handler.RegisterRoutes(e)
	return &Server{
		echo:   e,
		listen: listen,
		logger: logger.With().Str("component", "server").Logger(),
	}
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("listen", s.listen).Msg("management surface listening")
	if err := s.echo.Start(s.listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
