// Package api provides a read-only HTTP API for watching a run: the latest
// day's water statistics from the live simulation and the yearly reports and
// agent events recorded in the run database.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/talgya/farm-agents/internal/engine"
	"github.com/talgya/farm-agents/internal/persistence"
)

// StatusSource reports the statistics of the latest simulated day.
type StatusSource interface {
	Status() engine.SimStats
}

// Server serves the run state over HTTP.
type Server struct {
	Sim   StatusSource
	DB    *persistence.DB
	RunID string

	// Requests per minute and client for the database endpoints. Zero
	// disables the limit.
	RateLimit int

	echo *echo.Echo
}

// Routes builds the router.
func (s *Server) Routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	v1 := e.Group("/api/v1")
	v1.GET("/status", s.handleStatus)

	var limited []echo.MiddlewareFunc
	if s.RateLimit > 0 {
		limited = append(limited, RateLimitMiddleware(NewRateLimiter(s.RateLimit, time.Minute)))
	}
	v1.GET("/run", s.handleRun, limited...)
	v1.GET("/years", s.handleYears, limited...)
	v1.GET("/events", s.handleEvents, limited...)
	return e
}

// Start begins serving on addr in a goroutine.
func (s *Server) Start(addr string) {
	s.echo = s.Routes()
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server failed", "addr", addr, "error", err)
		}
	}()
	slog.Info("api server listening", "addr", addr)
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.echo == nil {
		return nil
	}
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleStatus(c echo.Context) error {
	st := s.Sim.Status()
	return c.JSON(http.StatusOK, map[string]any{
		"run":     s.RunID,
		"started": !st.Date.IsZero(),
		"date":    st.Date.Format(time.DateOnly),
		"stats":   st,
	})
}

func (s *Server) handleRun(c echo.Context) error {
	info, err := s.DB.RunInfo(s.RunID)
	if err != nil {
		return lookupError(err)
	}
	cp, err := s.DB.LatestCheckpoint(s.RunID)
	var checkpoint any
	if err == nil {
		checkpoint = map[string]any{"year": cp.Year, "next_date": cp.NextDate, "dir": cp.Dir}
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":         info.ID,
		"started_at": info.StartedAt,
		"seed":       info.Seed,
		"start_year": info.StartYear,
		"years":      info.Years,
		"status":     info.Status,
		"checkpoint": checkpoint,
	})
}

func (s *Server) handleYears(c echo.Context) error {
	reports, err := s.DB.YearlyStats(s.RunID)
	if err != nil {
		return err
	}
	if from := c.QueryParam("from"); from != "" {
		year, err := strconv.Atoi(from)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "from must be a year")
		}
		for len(reports) > 0 && reports[0].Year < year {
			reports = reports[1:]
		}
	}
	return c.JSON(http.StatusOK, reports)
}

func (s *Server) handleEvents(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 1000")
		}
		limit = n
	}
	events, err := s.DB.RecentEvents(s.RunID, c.QueryParam("kind"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, events)
}

func lookupError(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return err
}
