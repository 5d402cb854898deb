package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/farm-agents/internal/engine"
	"github.com/talgya/farm-agents/internal/farmers"
	"github.com/talgya/farm-agents/internal/persistence"
)

type fixedStatus engine.SimStats

func (f fixedStatus) Status() engine.SimStats { return engine.SimStats(f) }

func newTestServer(t *testing.T, limit int) *Server {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	run, err := db.StartRun(3, 2000, 3, "")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	for y := 2000; y < 2003; y++ {
		if err := run.RecordYear(farmers.YearReport{Year: y, Population: 10 + y - 2000}); err != nil {
			t.Fatalf("RecordYear: %v", err)
		}
	}
	run.RecordEvents([]farmers.Event{
		{Day: 1, Agent: 4, Kind: farmers.EventAdaptation, Detail: "well"},
		{Day: 2, Agent: 5, Kind: farmers.EventMicrocredit, Detail: "loss"},
	})
	return &Server{
		Sim: fixedStatus{
			Date:       time.Date(2002, time.March, 4, 0, 0, 0, 0, time.UTC),
			Days:       793,
			Population: 12,
		},
		DB:        db,
		RunID:     run.ID,
		RateLimit: limit,
	}
}

func get(t *testing.T, s *Server, target string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if out != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s: decode %q: %v", target, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, 0)
	var body struct {
		Run   string          `json:"run"`
		Date  string          `json:"date"`
		Stats engine.SimStats `json:"stats"`
	}
	if code := get(t, s, "/api/v1/status", &body); code != http.StatusOK {
		t.Fatalf("status code %d", code)
	}
	if body.Run != s.RunID || body.Date != "2002-03-04" || body.Stats.Days != 793 {
		t.Fatalf("body %+v", body)
	}
}

func TestYearsAndEvents(t *testing.T) {
	s := newTestServer(t, 0)
	var years []farmers.YearReport
	if code := get(t, s, "/api/v1/years?from=2001", &years); code != http.StatusOK {
		t.Fatalf("years code %d", code)
	}
	if len(years) != 2 || years[0].Year != 2001 || years[1].Population != 12 {
		t.Fatalf("years %+v", years)
	}
	if code := get(t, s, "/api/v1/years?from=soon", nil); code != http.StatusBadRequest {
		t.Fatalf("bad from gave %d", code)
	}

	var events []persistence.EventRow
	if code := get(t, s, "/api/v1/events?kind=microcredit", &events); code != http.StatusOK {
		t.Fatalf("events code %d", code)
	}
	if len(events) != 1 || events[0].Agent != 5 {
		t.Fatalf("events %+v", events)
	}
	if code := get(t, s, "/api/v1/events?limit=0", nil); code != http.StatusBadRequest {
		t.Fatalf("bad limit gave %d", code)
	}

	var run map[string]any
	if code := get(t, s, "/api/v1/run", &run); code != http.StatusOK {
		t.Fatalf("run code %d", code)
	}
	if run["id"] != s.RunID || run["checkpoint"] != nil {
		t.Fatalf("run %+v", run)
	}
	s.RunID = "missing"
	if code := get(t, s, "/api/v1/run", nil); code != http.StatusNotFound {
		t.Fatalf("missing run gave %d", code)
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, 2)
	e := s.Routes()
	var codes []int
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/years", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes %v", codes)
	}
	// The live status is never limited.
	if code := get(t, s, "/api/v1/status", nil); code != http.StatusOK {
		t.Fatalf("status code %d", code)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }
	if !rl.Allow("a") || rl.Allow("a") {
		t.Fatal("limit of one not enforced")
	}
	if !rl.Allow("b") {
		t.Fatal("clients share a bucket")
	}
	if got := rl.RetryAfter("a"); got != 61 {
		t.Fatalf("retry after %d, want 61", got)
	}
	now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Fatal("window did not reset")
	}
	now = now.Add(3 * time.Minute)
	rl.Allow("c")
	if _, ok := rl.buckets["b"]; ok {
		t.Fatal("idle client not swept")
	}
}
