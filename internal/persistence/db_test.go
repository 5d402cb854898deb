package persistence

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/farm-agents/internal/farmers"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	run, err := db.StartRun(42, 2000, 3, "general: {years: 3}\n")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	latest, err := db.LatestRun()
	if err != nil || latest != run.ID {
		t.Fatalf("latest=%q err=%v, want %q", latest, err, run.ID)
	}

	info, err := db.RunInfo(run.ID)
	if err != nil {
		t.Fatalf("RunInfo: %v", err)
	}
	if info.Seed != 42 || info.StartYear != 2000 || info.Status != StatusRunning {
		t.Fatalf("info=%+v", info)
	}
	if err := run.SetStatus(StatusFinished); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	runs, err := db.Runs(10)
	if err != nil || len(runs) != 1 || runs[0].Status != StatusFinished {
		t.Fatalf("runs=%+v err=%v", runs, err)
	}

	if _, err := db.OpenRun("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestYearlyStatsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	run, _ := db.StartRun(1, 2000, 2, "")
	rep := farmers.YearReport{Year: 2000, Population: 12, MeanYieldRatio: 0.8, Groundwater: 1500}
	rep.AdoptionShare[farmers.Well] = 0.25
	rep.Adoptions[farmers.CropSwitching] = 2
	if err := run.RecordYear(rep); err != nil {
		t.Fatalf("RecordYear: %v", err)
	}
	rep.Population = 13
	if err := run.RecordYear(rep); err != nil {
		t.Fatalf("RecordYear again: %v", err)
	}
	if err := run.RecordYear(farmers.YearReport{Year: 2001, Population: 13}); err != nil {
		t.Fatalf("RecordYear: %v", err)
	}

	got, err := db.YearlyStats(run.ID)
	if err != nil {
		t.Fatalf("YearlyStats: %v", err)
	}
	if len(got) != 2 || got[0].Year != 2000 || got[1].Year != 2001 {
		t.Fatalf("reports=%+v", got)
	}
	if got[0].Population != 13 || got[0].AdoptionShare[farmers.Well] != 0.25 || got[0].Adoptions[farmers.CropSwitching] != 2 {
		t.Fatalf("report=%+v", got[0])
	}
}

func TestEvents(t *testing.T) {
	db := openTestDB(t)
	run, _ := db.StartRun(1, 2000, 1, "")
	if err := run.RecordEvents(nil); err != nil {
		t.Fatalf("RecordEvents(nil): %v", err)
	}
	err := run.RecordEvents([]farmers.Event{
		{Day: 10, Agent: 1, Kind: farmers.EventMicrocredit, Detail: "loss 40%"},
		{Day: 12, Agent: 2, Kind: farmers.EventAdaptation, Detail: "well"},
		{Day: 12, Agent: 3, Kind: farmers.EventAdaptation, Detail: "well"},
	})
	if err != nil {
		t.Fatalf("RecordEvents: %v", err)
	}

	recent, err := db.RecentEvents(run.ID, "", 2)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(recent) != 2 || recent[0].Agent != 3 || recent[1].Agent != 2 {
		t.Fatalf("recent=%+v", recent)
	}
	credit, _ := db.RecentEvents(run.ID, string(farmers.EventMicrocredit), 10)
	if len(credit) != 1 || credit[0].Detail != "loss 40%" {
		t.Fatalf("microcredit events=%+v", credit)
	}
	counts, err := db.EventCounts(run.ID)
	if err != nil {
		t.Fatalf("EventCounts: %v", err)
	}
	if counts["adaptation"] != 2 || counts["microcredit"] != 1 {
		t.Fatalf("counts=%v", counts)
	}
}

func TestCheckpoints(t *testing.T) {
	db := openTestDB(t)
	run, _ := db.StartRun(1, 2000, 2, "")
	if _, err := db.LatestCheckpoint(run.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
	for _, y := range []int{2000, 2001} {
		next := time.Date(y+1, time.January, 1, 0, 0, 0, 0, time.UTC)
		if err := run.RecordCheckpoint(y, next, filepath.Join("cp", next.Format("2006"))); err != nil {
			t.Fatalf("RecordCheckpoint: %v", err)
		}
	}
	cp, err := db.LatestCheckpoint(run.ID)
	if err != nil {
		t.Fatalf("LatestCheckpoint: %v", err)
	}
	if cp.Year != 2001 || cp.NextDate != "2002-01-01" || cp.Dir != filepath.Join("cp", "2002") {
		t.Fatalf("checkpoint=%+v", cp)
	}
}
