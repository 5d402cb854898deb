package engine

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/farm-agents/internal/config"
	"github.com/talgya/farm-agents/internal/farmers"
	"github.com/talgya/farm-agents/internal/world"
)

func TestEngineCallsYearAtBoundaries(t *testing.T) {
	start := time.Date(2001, time.December, 30, 0, 0, 0, 0, time.UTC)
	e := NewEngine(start, time.Date(2003, time.January, 1, 0, 0, 0, 0, time.UTC))
	var days int
	var years []int
	e.OnDay = func(time.Time) error { days++; return nil }
	e.OnYear = func(y int) error { years = append(years, y); return nil }
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if days != 367 || e.Days() != 367 {
		t.Fatalf("days=%d", days)
	}
	if len(years) != 2 || years[0] != 2001 || years[1] != 2002 {
		t.Fatalf("years=%v", years)
	}
}

func TestEngineNoYearOnFirstDay(t *testing.T) {
	start := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	e := NewEngine(start, start.AddDate(0, 0, 3))
	e.OnYear = func(y int) error { return errors.New("unexpected year") }
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestEngineStopsOnError(t *testing.T) {
	start := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	e := NewEngine(start, start.AddDate(1, 0, 0))
	boom := errors.New("boom")
	e.OnDay = func(d time.Time) error {
		if d.YearDay() == 3 {
			return boom
		}
		return nil
	}
	if err := e.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err=%v, want boom", err)
	}
	if e.Days() != 2 {
		t.Fatalf("days=%d, want 2", e.Days())
	}
}

func TestEngineStopAndCancel(t *testing.T) {
	start := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	e := NewEngine(start, start.AddDate(1, 0, 0))
	e.OnDay = func(d time.Time) error {
		if d.YearDay() == 5 {
			e.Stop()
		}
		return nil
	}
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e.Days() != 5 {
		t.Fatalf("days=%d, want 5", e.Days())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e = NewEngine(start, start.AddDate(1, 0, 0))
	if err := e.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want canceled", err)
	}
}

func smallConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.General.Years = 2
	cfg.General.SpinupYears = 1
	cfg.General.DroughtSampleYears = 3
	cfg.World = world.SmallTestConfig()
	cfg.Farms.FieldsPerCell = 2
	cfg.Farmers.SocialSize = 3
	cfg.Output.CheckpointDir = t.TempDir()
	return cfg
}

type recorder struct {
	years       []farmers.YearReport
	events      int
	checkpoints []string
}

func (r *recorder) RecordYear(rep farmers.YearReport) error {
	r.years = append(r.years, rep)
	return nil
}

func (r *recorder) RecordEvents(events []farmers.Event) error {
	r.events += len(events)
	return nil
}

func (r *recorder) RecordCheckpoint(year int, next time.Time, dir string) error {
	r.checkpoints = append(r.checkpoints, dir)
	return nil
}

func run(t *testing.T, sim *Simulation, start, end time.Time) {
	t.Helper()
	e := NewEngine(start, end)
	Wire(e, sim)
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestSimulationRunsAndResumes(t *testing.T) {
	cfg := smallConfig(t)
	sim, err := Setup(cfg)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if sim.Farmers.N() == 0 {
		t.Fatal("no farmers placed")
	}
	rec := &recorder{}
	sim.Recorder = rec
	start, end := Period(cfg.General)
	run(t, sim, start, end)

	if sim.Stats.Days != 731 || sim.Status().Days != 731 {
		t.Fatalf("days=%d status=%d, want 731", sim.Stats.Days, sim.Status().Days)
	}
	if len(sim.Reports) != 2 || len(rec.years) != 2 || len(rec.checkpoints) != 2 {
		t.Fatalf("reports=%d recorded=%d checkpoints=%d", len(sim.Reports), len(rec.years), len(rec.checkpoints))
	}
	if rec.checkpoints[0] != filepath.Join(cfg.Output.CheckpointDir, "2001") {
		t.Fatalf("checkpoint dir %s", rec.checkpoints[0])
	}
	first := sim.Reports[0]
	if first.Year != 2000 || first.Population != sim.Farmers.N() {
		t.Fatalf("first report %+v", first)
	}
	for k := 0; k < farmers.NumKinds; k++ {
		if first.Adoptions[k] != 0 {
			t.Fatalf("adoption of %v during spinup", farmers.Kind(k))
		}
	}

	resumed, err := Setup(cfg)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	next, err := resumed.Restore(rec.checkpoints[0])
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if next != time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("resume date %v", next)
	}
	if resumed.Farmers.Day() != 366 {
		t.Fatalf("resumed day counter %d, want 366", resumed.Farmers.Day())
	}
	resumed.CheckpointDir = ""
	run(t, resumed, next, end)

	a, b := sim.Reports[1], resumed.Reports[0]
	if a.Year != b.Year || a.Population != b.Population || a.Adoptions != b.Adoptions {
		t.Fatalf("resumed year differs: %+v vs %+v", a, b)
	}
	if math.Abs(a.MeanYieldRatio-b.MeanYieldRatio) > 1e-9 || math.Abs(a.Groundwater-b.Groundwater) > 1e-6 {
		t.Fatalf("resumed year differs: %+v vs %+v", a, b)
	}
}

func TestSetupRejectsInvalidConfig(t *testing.T) {
	cfg := smallConfig(t)
	cfg.General.Years = 0
	if _, err := Setup(cfg); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("err=%v, want ErrInvalid", err)
	}
}
