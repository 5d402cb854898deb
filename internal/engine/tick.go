// Package engine provides the day-based simulation loop and the wiring of the
// farmer population to its weather, water and market collaborators.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Engine drives the simulation forward one day at a time.
type Engine struct {
	Date time.Time // next day to run
	End  time.Time // first day not run

	// Callbacks populated during setup. OnYear runs on the first day of a
	// year, before OnDay, with the year that just ended. It also runs once
	// after the last day when the run ends on a year boundary.
	OnDay  func(date time.Time) error
	OnYear func(year int) error

	days    int
	stopped atomic.Bool
}

// NewEngine creates an engine running the days from start up to end.
func NewEngine(start, end time.Time) *Engine {
	return &Engine{Date: start, End: end}
}

// Days returns the number of days run so far.
func (e *Engine) Days() int { return e.days }

// Run steps through the days until End, Stop or the cancellation of ctx. A
// callback error aborts the run.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("simulation engine started", "date", e.Date.Format(time.DateOnly), "end", e.End.Format(time.DateOnly))

	for {
		if e.days > 0 && e.Date.YearDay() == 1 && e.OnYear != nil {
			if err := e.OnYear(e.Date.Year() - 1); err != nil {
				return fmt.Errorf("year %d: %w", e.Date.Year()-1, err)
			}
		}
		if !e.Date.Before(e.End) {
			break
		}
		if e.stopped.Load() {
			slog.Info("simulation engine stopped", "date", e.Date.Format(time.DateOnly))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if e.OnDay != nil {
			if err := e.OnDay(e.Date); err != nil {
				return fmt.Errorf("day %s: %w", e.Date.Format(time.DateOnly), err)
			}
		}
		e.days++
		e.Date = e.Date.AddDate(0, 0, 1)
	}

	slog.Info("simulation engine finished", "days", e.days)
	return nil
}

// Stop halts the loop before the next day. It is safe to call from another
// goroutine.
func (e *Engine) Stop() {
	e.stopped.Store(true)
}
