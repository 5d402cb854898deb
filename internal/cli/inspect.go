package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/talgya/farm-agents/internal/config"
	"github.com/talgya/farm-agents/internal/persistence"
)

// InspectCmd returns the inspect command
func InspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show recorded runs and their results",
	}
	cmd.AddCommand(inspectRunsCmd(), inspectYearsCmd(), inspectEventsCmd())
	return cmd
}

func inspectRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openInspectDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := db.Runs(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}
			for _, r := range runs {
				started := r.StartedAt
				if t, err := time.Parse(time.RFC3339, r.StartedAt); err == nil {
					started = humanize.Time(t)
				}
				fmt.Printf("%s  %-10s seed %-6d %d-%d  %s\n",
					r.ID, statusColor(r.Status), r.Seed, r.StartYear, r.StartYear+r.Years-1, started)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "maximum number of runs to list")
	return cmd
}

func inspectYearsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "years [run-id]",
		Short: "Show the yearly statistics of a run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openInspectDB(cmd)
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
			decisionsFrom := info.StartYear
			if cfg, err := config.Parse([]byte(info.Config)); err == nil {
				decisionsFrom += cfg.General.SpinupYears
			}

			reports, err := db.YearlyStats(id)
			if err != nil {
				return err
			}
			fmt.Printf("Run %s [%s], %d of %d years\n", color.New(color.Bold).Sprint(id),
				statusColor(info.Status), len(reports), info.Years)
			for _, rep := range reports {
				printYear(rep, rep.Year < decisionsFrom)
			}
			if decisionsFrom > info.StartYear {
				fmt.Println(color.New(color.FgYellow).Sprint("*") + " spinup year, no adaptation decisions")
			}
			return nil
		},
	}
}

func inspectEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events [run-id]",
		Short: "Show agent events of a run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openInspectDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			id, err := runID(db, args)
			if err != nil {
				return err
			}
			kind, _ := cmd.Flags().GetString("kind")
			limit, _ := cmd.Flags().GetInt("limit")

			counts, err := db.EventCounts(id)
			if err != nil {
				return err
			}
			kinds := make([]string, 0, len(counts))
			for k := range counts {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				fmt.Printf("%-12s %s\n", k, humanize.Comma(int64(counts[k])))
			}

			events, err := db.RecentEvents(id, kind, limit)
			if err != nil {
				return err
			}
			if len(events) > 0 {
				fmt.Println()
			}
			for _, e := range events {
				fmt.Printf("day %-6d agent %-6d %s %s\n", e.Day, e.Agent,
					color.New(color.FgCyan).Sprintf("%-12s", e.Kind), e.Detail)
			}
			return nil
		},
	}
	cmd.Flags().String("kind", "", "only show events of this kind")
	cmd.Flags().Int("limit", 30, "maximum number of events to show")
	return cmd
}

func openInspectDB(cmd *cobra.Command) (*persistence.DB, error) {
	if err := setupLogging(cmd); err != nil {
		return nil, err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return openDB(cmd, cfg)
}
