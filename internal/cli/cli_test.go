package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/talgya/farm-agents/internal/config"
	"github.com/talgya/farm-agents/internal/persistence"
	"github.com/talgya/farm-agents/internal/world"
)

func newRoot(args ...string) *cobra.Command {
	root := &cobra.Command{Use: "farmsim", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String("config", "", "")
	root.PersistentFlags().String("db", "", "")
	root.PersistentFlags().String("log-level", "warn", "")
	root.AddCommand(RunCmd(), ResumeCmd(), InspectCmd(), ConfigCmd())
	root.SetArgs(args)
	return root
}

func writeSmallConfig(t *testing.T) (string, config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.General.Years = 2
	cfg.General.SpinupYears = 1
	cfg.General.DroughtSampleYears = 3
	cfg.World = world.SmallTestConfig()
	cfg.Farms.FieldsPerCell = 2
	cfg.Farmers.SocialSize = 3
	cfg.Output.Database = filepath.Join(dir, "runs.db")
	cfg.Output.CheckpointDir = filepath.Join(dir, "checkpoints")
	raw, err := cfg.YAML()
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}
	path := filepath.Join(dir, "farmsim.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, cfg
}

func TestRunResumeInspect(t *testing.T) {
	path, cfg := writeSmallConfig(t)
	if err := newRoot("run", "--config", path).Execute(); err != nil {
		t.Fatalf("run: %v", err)
	}

	db, err := persistence.Open(cfg.Output.Database)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := db.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	info, _ := db.RunInfo(id)
	if info.Status != persistence.StatusFinished || info.Years != 2 {
		t.Fatalf("run info %+v", info)
	}
	reports, err := db.YearlyStats(id)
	if err != nil || len(reports) != 2 {
		t.Fatalf("reports=%d err=%v", len(reports), err)
	}
	cp, err := db.LatestCheckpoint(id)
	if err != nil {
		t.Fatalf("LatestCheckpoint: %v", err)
	}
	if cp.Year != 2001 || cp.Dir != filepath.Join(cfg.Output.CheckpointDir, id, "2002") {
		t.Fatalf("checkpoint %+v", cp)
	}
	db.Close()

	// A finished run has nothing left to simulate.
	if err := newRoot("resume", "--config", path).Execute(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	for _, args := range [][]string{
		{"inspect", "runs"},
		{"inspect", "years"},
		{"inspect", "events", id, "--kind", "adaptation"},
		{"config"},
	} {
		if err := newRoot(append(args, "--config", path)...).Execute(); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}
}

func TestRunFlagOverrides(t *testing.T) {
	path, cfg := writeSmallConfig(t)
	if err := newRoot("run", "--config", path, "--years", "1", "--seed", "7").Execute(); err != nil {
		t.Fatalf("run: %v", err)
	}
	db, err := persistence.Open(cfg.Output.Database)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	id, _ := db.LatestRun()
	info, _ := db.RunInfo(id)
	if info.Years != 1 || info.Seed != 7 {
		t.Fatalf("run info %+v", info)
	}
	stored, err := config.Parse([]byte(info.Config))
	if err != nil || stored.General.Years != 1 || stored.General.Seed != 7 {
		t.Fatalf("stored config %+v err=%v", stored.General, err)
	}
}

func TestBadInputs(t *testing.T) {
	path, _ := writeSmallConfig(t)
	if err := newRoot("run", "--config", path, "--log-level", "loud").Execute(); err == nil {
		t.Fatal("unknown log level accepted")
	}
	if err := newRoot("run", "--config", path, "--years", "0").Execute(); err == nil {
		t.Fatal("zero years accepted")
	}
	if err := newRoot("resume", "--config", path, "no-such-run").Execute(); err == nil {
		t.Fatal("unknown run resumed")
	}
}
