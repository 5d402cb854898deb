// Package cli implements the farmsim commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/talgya/farm-agents/internal/config"
	"github.com/talgya/farm-agents/internal/farmers"
	"github.com/talgya/farm-agents/internal/persistence"
)

// setupLogging installs the default logger at the level named by --log-level.
func setupLogging(cmd *cobra.Command) error {
	name, _ := cmd.Flags().GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("log level %q: %w", name, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}

// loadConfig reads --config, or returns the defaults when it is empty.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.Load(path)
}

// openDB opens the run database named by --db, falling back to the one in
// the configuration.
func openDB(cmd *cobra.Command, cfg config.Config) (*persistence.DB, error) {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		path = cfg.Output.Database
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := persistence.Open(path)
	if err != nil {
		return nil, err
	}
	slog.Debug("database opened", "path", path)
	return db, nil
}

func share(v float64) string {
	s := fmt.Sprintf("%5.1f%%", 100*v)
	if v > 0 {
		return color.New(color.FgGreen).Sprint(s)
	}
	return s
}

func volume(m3 float64) string {
	return humanize.SIWithDigits(m3, 1, "m³")
}

// printYear writes one line per model year.
func printYear(rep farmers.YearReport, spinup bool) {
	year := color.New(color.FgCyan, color.Bold).Sprint(rep.Year)
	if spinup {
		year += color.New(color.FgYellow).Sprint("*")
	} else {
		year += " "
	}
	credit := fmt.Sprint(rep.Microcredits)
	if rep.Microcredits > 0 {
		credit = color.New(color.FgRed).Sprint(credit)
	}
	fmt.Printf("%s agents %s  wells %s  efficiency %s  expansion %s  switches %d  microcredit %s  yield %.2f  groundwater %s\n",
		year,
		humanize.Comma(int64(rep.Population)),
		share(rep.AdoptionShare[farmers.Well]),
		share(rep.AdoptionShare[farmers.IrrigationEfficiency]),
		share(rep.AdoptionShare[farmers.IrrigationExpansion]),
		rep.Adoptions[farmers.CropSwitching],
		credit,
		rep.MeanYieldRatio,
		volume(rep.Groundwater),
	)
}

func statusColor(status string) string {
	switch status {
	case persistence.StatusFinished:
		return color.New(color.FgGreen).Sprint(status)
	case persistence.StatusFailed:
		return color.New(color.FgRed).Sprint(status)
	case persistence.StatusStopped, persistence.StatusRunning:
		return color.New(color.FgYellow).Sprint(status)
	}
	return status
}
