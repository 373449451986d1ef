package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/warden-social/warden/bus"
	"github.com/warden-social/warden/engine"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
)

type Server struct {
	logger *slog.Logger
	engine *engine.Engine
	echo   *echo.Echo
}

func NewServer(eng *engine.Engine, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())

	s := &Server{
		logger: logger,
		engine: eng,
		echo:   e,
	}
	e.GET("/_health", s.handleHealthCheck)
	e.POST("/events", s.handleEvent)
	return s
}

type healthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

func (s *Server) handleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, healthStatus{Status: "ok"})
}

// handleEvent ingests one chat event from the transport sidecar and runs it
// through the moderation pipeline before responding. The sidecar is expected
// to de-duplicate deliveries per event ID.
func (s *Server) handleEvent(c echo.Context) error {
	var evt bus.Event
	if err := c.Bind(&evt); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event payload")
	}
	if err := evt.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.engine.ProcessEvent(c.Request().Context(), evt); err != nil {
		s.logger.Error("event processing failed", "kind", evt.Kind, "chat", evt.ChatID, "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "event processing failed")
	}
	return c.JSON(http.StatusOK, map[string]bool{"processed": true})
}

// Run serves the ingest API until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, listen string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}
