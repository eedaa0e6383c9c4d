// Package server exposes the WebSocket endpoint and a small read-only HTTP
// API on one echo instance.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/raphaelgruber/wspiernik/internal/metrics"
	"github.com/raphaelgruber/wspiernik/internal/protocol"
	"github.com/raphaelgruber/wspiernik/internal/store"
)

const wsPath = "/ws"

// Sessions reports the number of active conversations.
type Sessions interface {
	Len() int
}

// Options holds the server's collaborators.
type Options struct {
	Version   string
	WebSocket http.Handler
	Facts     store.FactStore
	Sessions  Sessions
	// Connections reports live WebSocket connections; optional.
	Connections Sessions
	Metrics     *metrics.Collector
	Logger      *slog.Logger
}

// Server is the HTTP front of the application.
type Server struct {
	echo   *echo.Echo
	opts   Options
	logger *slog.Logger
}

// New creates the server and registers its routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, opts: opts, logger: logger}

	e.Use(middleware.Recover())
	e.Use(LoggingMiddleware(logger))

	e.GET(wsPath, echo.WrapHandler(opts.WebSocket))
	e.GET("/health", s.handleHealth)
	e.GET("/api/facts", s.handleFacts)
	e.GET("/api/stats", s.handleStats)
	return s
}

// Handler returns the root handler, for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on addr until Shutdown. A clean shutdown returns nil.
func (s *Server) Start(addr string) error {
	s.logger.Info("HTTP server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	body := map[string]any{
		"status":   "ok",
		"version":  s.opts.Version,
		"sessions": s.opts.Sessions.Len(),
	}
	if s.opts.Connections != nil {
		body["connections"] = s.opts.Connections.Len()
	}
	return c.JSON(http.StatusOK, body)
}

func (s *Server) handleFacts(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}

	ctx := c.Request().Context()
	total, err := s.opts.Facts.CountFacts(ctx)
	if err != nil {
		return err
	}
	facts, err := s.opts.Facts.ListFacts(ctx, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, protocol.FactsListPayload{
		Facts:      protocol.NewFactDTOs(facts),
		TotalCount: total,
	})
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.opts.Metrics.Snapshot())
}
