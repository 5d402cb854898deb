// Package persistence provides the SQLite run database: one row per run, its
// yearly statistics, notable agent events and the checkpoints it wrote.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/farm-agents/internal/farmers"
)

// ErrNotFound is returned when a run or checkpoint does not exist.
var ErrNotFound = errors.New("persistence: not found")

// Run statuses.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
	StatusStopped  = "stopped"
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		seed INTEGER NOT NULL,
		start_year INTEGER NOT NULL,
		years INTEGER NOT NULL,
		status TEXT NOT NULL,
		config_yaml TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS yearly_stats (
		run_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		population INTEGER NOT NULL,
		wells REAL NOT NULL,
		irrigation_efficiency REAL NOT NULL,
		irrigation_expansion REAL NOT NULL,
		crop_switches INTEGER NOT NULL,
		microcredits INTEGER NOT NULL,
		mean_yield_ratio REAL NOT NULL,
		mean_risk_perception REAL NOT NULL,
		channel_m3 REAL NOT NULL,
		reservoir_m3 REAL NOT NULL,
		groundwater_m3 REAL NOT NULL,
		report_json TEXT NOT NULL,
		PRIMARY KEY (run_id, year)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		day INTEGER NOT NULL,
		agent INTEGER NOT NULL,
		kind TEXT NOT NULL,
		detail TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS checkpoints (
		run_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		next_date TEXT NOT NULL,
		dir TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (run_id, year)
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, day);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// RunInfo is one row of the runs table.
type RunInfo struct {
	ID        string `db:"id"`
	StartedAt string `db:"started_at"`
	Seed      int64  `db:"seed"`
	StartYear int    `db:"start_year"`
	Years     int    `db:"years"`
	Status    string `db:"status"`
	Config    string `db:"config_yaml"`
}

// Run records the results of one simulation run.
type Run struct {
	db *DB
	ID string
}

// StartRun registers a new run and makes it the latest.
func (db *DB) StartRun(seed uint64, startYear, years int, configYAML string) (*Run, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(
		`INSERT INTO runs (id, started_at, seed, start_year, years, status, config_yaml)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339), int64(seed), startYear, years, StatusRunning, configYAML,
	)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	if err := db.SaveMeta("latest_run", id); err != nil {
		return nil, err
	}
	slog.Info("run registered", "run", id)
	return &Run{db: db, ID: id}, nil
}

// OpenRun returns a handle to record more results for an existing run.
func (db *DB) OpenRun(id string) (*Run, error) {
	if _, err := db.RunInfo(id); err != nil {
		return nil, err
	}
	return &Run{db: db, ID: id}, nil
}

// RunInfo returns the run with the given id.
func (db *DB) RunInfo(id string) (RunInfo, error) {
	var info RunInfo
	err := db.conn.Get(&info, "SELECT * FROM runs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return info, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return info, err
}

// LatestRun returns the id of the most recently started run.
func (db *DB) LatestRun() (string, error) {
	id, err := db.GetMeta("latest_run")
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: no runs recorded", ErrNotFound)
	}
	return id, err
}

// Runs returns the most recent runs, newest first.
func (db *DB) Runs(limit int) ([]RunInfo, error) {
	var runs []RunInfo
	err := db.conn.Select(&runs, "SELECT * FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	return runs, err
}

// SetStatus updates the status of the run.
func (r *Run) SetStatus(status string) error {
	_, err := r.db.conn.Exec("UPDATE runs SET status = ? WHERE id = ?", status, r.ID)
	return err
}

// RecordYear stores the report of one model year. A resumed run overwrites
// the years it simulates again.
func (r *Run) RecordYear(rep farmers.YearReport) error {
	raw, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	_, err = r.db.conn.Exec(`INSERT OR REPLACE INTO yearly_stats
		(run_id, year, population, wells, irrigation_efficiency, irrigation_expansion,
		 crop_switches, microcredits, mean_yield_ratio, mean_risk_perception,
		 channel_m3, reservoir_m3, groundwater_m3, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, rep.Year, rep.Population,
		rep.AdoptionShare[farmers.Well], rep.AdoptionShare[farmers.IrrigationEfficiency],
		rep.AdoptionShare[farmers.IrrigationExpansion], rep.Adoptions[farmers.CropSwitching],
		rep.Microcredits, rep.MeanYieldRatio, rep.MeanRiskPerception,
		rep.Channel, rep.Reservoir, rep.Groundwater, string(raw),
	)
	if err != nil {
		return fmt.Errorf("insert year %d: %w", rep.Year, err)
	}
	return nil
}

// RecordEvents appends agent events.
func (r *Run) RecordEvents(events []farmers.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex("INSERT INTO events (run_id, day, agent, kind, detail) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(r.ID, e.Day, e.Agent, string(e.Kind), e.Detail); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	return tx.Commit()
}

// RecordCheckpoint stores where the checkpoint written after year lives.
func (r *Run) RecordCheckpoint(year int, next time.Time, dir string) error {
	_, err := r.db.conn.Exec(
		"INSERT OR REPLACE INTO checkpoints (run_id, year, next_date, dir, created_at) VALUES (?, ?, ?, ?, ?)",
		r.ID, year, next.Format(time.DateOnly), dir, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Checkpoint is one row of the checkpoints table.
type Checkpoint struct {
	RunID     string `db:"run_id"`
	Year      int    `db:"year"`
	NextDate  string `db:"next_date"`
	Dir       string `db:"dir"`
	CreatedAt string `db:"created_at"`
}

// LatestCheckpoint returns the last checkpoint of a run.
func (db *DB) LatestCheckpoint(runID string) (Checkpoint, error) {
	var cp Checkpoint
	err := db.conn.Get(&cp, "SELECT * FROM checkpoints WHERE run_id = ? ORDER BY year DESC LIMIT 1", runID)
	if errors.Is(err, sql.ErrNoRows) {
		return cp, fmt.Errorf("%w: no checkpoint for run %s", ErrNotFound, runID)
	}
	return cp, err
}

// YearlyStats returns the reports of a run in year order.
func (db *DB) YearlyStats(runID string) ([]farmers.YearReport, error) {
	var raws []string
	if err := db.conn.Select(&raws, "SELECT report_json FROM yearly_stats WHERE run_id = ? ORDER BY year", runID); err != nil {
		return nil, err
	}
	out := make([]farmers.YearReport, len(raws))
	for i, raw := range raws {
		if err := json.Unmarshal([]byte(raw), &out[i]); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
	}
	return out, nil
}

// EventRow is one row of the events table.
type EventRow struct {
	Day    int32  `db:"day"`
	Agent  int    `db:"agent"`
	Kind   string `db:"kind"`
	Detail string `db:"detail"`
}

// RecentEvents returns the most recent events of a run, newest first. An
// empty kind matches every kind.
func (db *DB) RecentEvents(runID, kind string, limit int) ([]EventRow, error) {
	var events []EventRow
	err := db.conn.Select(&events,
		`SELECT day, agent, kind, detail FROM events
		WHERE run_id = ? AND (? = '' OR kind = ?)
		ORDER BY id DESC LIMIT ?`,
		runID, kind, kind, limit,
	)
	return events, err
}

// EventCounts returns the number of events of a run by kind.
func (db *DB) EventCounts(runID string) (map[string]int, error) {
	rows, err := db.conn.Queryx("SELECT kind, COUNT(*) FROM events WHERE run_id = ? GROUP BY kind", runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		out[kind] = n
	}
	return out, rows.Err()
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE key = ?", key)
	return value, err
}
