package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/talgya/farm-agents/internal/api"
	"github.com/talgya/farm-agents/internal/config"
	"github.com/talgya/farm-agents/internal/engine"
	"github.com/talgya/farm-agents/internal/farmers"
	"github.com/talgya/farm-agents/internal/persistence"
)

// RunCmd returns the run command
func RunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a new simulation",
		Long: `Build the catchment and its farming households from the configuration and
simulate them day by day. Yearly statistics and agent events go to the run
database and a checkpoint is written after every year, so an interrupted run
can be continued with "farmsim resume".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogging(cmd); err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("years") {
				cfg.General.Years, _ = cmd.Flags().GetInt("years")
			}
			if cmd.Flags().Changed("seed") {
				cfg.General.Seed, _ = cmd.Flags().GetUint64("seed")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			raw, err := cfg.YAML()
			if err != nil {
				return err
			}

			db, err := openDB(cmd, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			sim, err := engine.Setup(cfg)
			if err != nil {
				return err
			}
			run, err := db.StartRun(cfg.General.Seed, cfg.General.StartYear, cfg.General.Years, raw)
			if err != nil {
				return err
			}
			sim.CheckpointDir = filepath.Join(cfg.Output.CheckpointDir, run.ID)

			fmt.Printf("Run %s: %d households on %d fields, %d years from %d\n",
				color.New(color.Bold).Sprint(run.ID), sim.Farmers.N(), sim.Land.N(),
				cfg.General.Years, cfg.General.StartYear)
			start, end := engine.Period(cfg.General)
			stop := serve(cmd, sim, db, run.ID)
			defer stop()
			return execute(cmd.Context(), sim, run, cfg, start, end)
		},
	}

	cmd.Flags().Int("years", 0, "number of years to simulate (overrides general.years)")
	cmd.Flags().Uint64("seed", 0, "random seed (overrides general.seed)")
	addServeFlags(cmd)
	return cmd
}

// ResumeCmd returns the resume command
func ResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume [run-id]",
		Short: "Continue a run from its latest checkpoint",
		Long: `Rebuild a run from the configuration stored with it, restore its latest
checkpoint and simulate the remaining years. Without an id the most recently
started run is resumed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogging(cmd); err != nil {
				return err
			}
			local, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := openDB(cmd, local)
			if err != nil {
				return err
			}
			defer db.Close()

			id, err := runID(db, args)
			if err != nil {
				return err
			}
			info, err := db.RunInfo(id)
			if err != nil {
				return err
			}
			cfg, err := config.Parse([]byte(info.Config))
			if err != nil {
				return fmt.Errorf("config of run %s: %w", id, err)
			}
			cp, err := db.LatestCheckpoint(id)
			if err != nil {
				return err
			}

			sim, err := engine.Setup(cfg)
			if err != nil {
				return err
			}
			sim.CheckpointDir = filepath.Dir(cp.Dir)
			next, err := sim.Restore(cp.Dir)
			if err != nil {
				return err
			}
			_, end := engine.Period(cfg.General)
			if !next.Before(end) {
				fmt.Printf("Run %s is already complete\n", id)
				return nil
			}

			run, err := db.OpenRun(id)
			if err != nil {
				return err
			}
			if err := run.SetStatus(persistence.StatusRunning); err != nil {
				return err
			}
			fmt.Printf("Resuming run %s from %s\n", color.New(color.Bold).Sprint(id), next.Format(time.DateOnly))
			stop := serve(cmd, sim, db, id)
			defer stop()
			return execute(cmd.Context(), sim, run, cfg, next, end)
		},
	}
	addServeFlags(cmd)
	return cmd
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("serve", "", "serve the read-only run API on this address, e.g. :8080")
	cmd.Flags().Int("rate-limit", 120, "API requests per minute and client on database endpoints")
}

// serve starts the run API when --serve is set and returns its shutdown.
func serve(cmd *cobra.Command, sim *engine.Simulation, db *persistence.DB, id string) func() {
	addr, _ := cmd.Flags().GetString("serve")
	if addr == "" {
		return func() {}
	}
	limit, _ := cmd.Flags().GetInt("rate-limit")
	srv := &api.Server{Sim: sim, DB: db, RunID: id, RateLimit: limit}
	srv.Start(addr)
	fmt.Printf("API: http://%s/api/v1/status\n", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("api shutdown", "error", err)
		}
	}
}

// runID returns the id given on the command line or the latest run.
func runID(db *persistence.DB, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	return db.LatestRun()
}

// yearPrinter echoes every recorded year to the terminal.
type yearPrinter struct {
	engine.Recorder
	decisionsFrom int
}

func (p yearPrinter) RecordYear(rep farmers.YearReport) error {
	printYear(rep, rep.Year < p.decisionsFrom)
	return p.Recorder.RecordYear(rep)
}

// execute runs the simulation until end or an interrupt and records the
// outcome as the run's status.
func execute(ctx context.Context, sim *engine.Simulation, run *persistence.Run, cfg config.Config, start, end time.Time) error {
	sim.Recorder = yearPrinter{Recorder: run, decisionsFrom: sim.DecisionsFrom}

	eng := engine.NewEngine(start, end)
	engine.Wire(eng, sim)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received signal, stopping", "signal", sig)
			eng.Stop()
		case <-done:
		}
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	began := time.Now()
	runErr := eng.Run(ctx)

	status := persistence.StatusFinished
	switch {
	case runErr != nil:
		status = persistence.StatusFailed
	case eng.Date.Before(end):
		status = persistence.StatusStopped
	}
	if err := run.SetStatus(status); err != nil {
		return errors.Join(runErr, err)
	}
	if runErr != nil {
		return runErr
	}

	fmt.Printf("Run %s %s after %d days in %s (spinup until %d)\n",
		run.ID, statusColor(status), eng.Days(), time.Since(began).Round(time.Millisecond),
		cfg.General.StartYear+cfg.General.SpinupYears)
	if status == persistence.StatusStopped {
		fmt.Println(`Continue with "farmsim resume".`)
	}
	return nil
}
