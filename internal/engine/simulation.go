package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/talgya/farm-agents/internal/abstraction"
	"github.com/talgya/farm-agents/internal/economy"
	"github.com/talgya/farm-agents/internal/entropy"
	"github.com/talgya/farm-agents/internal/farmers"
	"github.com/talgya/farm-agents/internal/fields"
	"github.com/talgya/farm-agents/internal/hydrology"
	"github.com/talgya/farm-agents/internal/store"
	"github.com/talgya/farm-agents/internal/weather"
)

// Recorder receives the results of a run. persistence.Run implements it.
type Recorder interface {
	RecordYear(r farmers.YearReport) error
	RecordEvents(events []farmers.Event) error
	RecordCheckpoint(year int, next time.Time, dir string) error
}

// Simulation holds the complete model state and wires the systems together.
type Simulation struct {
	Farmers   *farmers.Farmers
	Hydrology *hydrology.Model
	Weather   *weather.Generator
	Market    *economy.Market
	Land      *fields.Land
	Rng       *entropy.Source

	// DecisionsFrom is the first year agents take decisions; earlier years
	// are spinup.
	DecisionsFrom int

	Recorder      Recorder // optional
	CheckpointDir string   // no checkpoints when empty
	Format        store.Format

	Reports []farmers.YearReport
	Stats   SimStats

	meta      *store.Bucket
	status    atomic.Pointer[SimStats]
	reference []float64 // per field, today
	rain      []float64 // per field, today
}

// SimStats tracks aggregate statistics of the latest day.
type SimStats struct {
	Date                 time.Time `json:"date"`
	Days                 int       `json:"days"`
	Population           int       `json:"population"`
	Withdrawal           float64   `json:"withdrawal_m3"`
	ChannelStorage       float64   `json:"channel_storage_m3"`
	GroundwaterStorage   float64   `json:"groundwater_storage_m3"`
	ReservoirStorage     float64   `json:"reservoir_storage_m3"`
	MeanGroundwaterDepth float64   `json:"mean_groundwater_depth_m"`
	Drought              bool      `json:"drought"`
}

// NewSimulation ties the systems together. They must share land and rng.
func NewSimulation(f *farmers.Farmers, h *hydrology.Model, w *weather.Generator, m *economy.Market, rng *entropy.Source) *Simulation {
	land := f.Land()
	return &Simulation{
		Farmers:   f,
		Hydrology: h,
		Weather:   w,
		Market:    m,
		Land:      land,
		Rng:       rng,
		Format:    store.Compressed,
		meta:      store.NewBucket("simulation"),
		reference: make([]float64, land.N()),
		rain:      make([]float64, land.N()),
	}
}

// Day runs one day: weather, infiltration, the farmers' step and the
// evapotranspiration that closes the day.
func (s *Simulation) Day(date time.Time) error {
	s.Farmers.SetSpinup(date.Year() < s.DecisionsFrom)

	fc := s.Weather.Day(date)
	soil, supply := s.Hydrology.Begin(fc)
	for fld := range s.reference {
		c := s.Land.Cell.Get(fld)
		s.reference[fld] = fc.ReferenceET[c]
		s.rain[fld] = fc.Precipitation[c]
	}

	res, err := s.Farmers.Step(&farmers.Day{
		Date:          date,
		Soil:          soil,
		Supply:        supply,
		ReferenceET:   s.reference,
		Precipitation: s.rain,
		SPEI:          fc.SPEI,
	})
	if err != nil {
		return err
	}
	actual, potential := s.Hydrology.End(res, fc)
	s.Farmers.AccumulateET(actual, potential)

	s.updateStats(date, fc, res)
	slog.Debug("daily report",
		"date", date.Format(time.DateOnly),
		"agents", s.Stats.Population,
		"withdrawal_m3", fmt.Sprintf("%.1f", s.Stats.Withdrawal),
		"channel_m3", fmt.Sprintf("%.0f", s.Stats.ChannelStorage),
		"reservoir_m3", fmt.Sprintf("%.0f", s.Stats.ReservoirStorage),
		"groundwater_depth_m", fmt.Sprintf("%.2f", s.Stats.MeanGroundwaterDepth),
		"drought", fc.Drought,
	)
	return nil
}

func (s *Simulation) updateStats(date time.Time, fc *weather.Forcing, res *abstraction.Result) {
	st := &s.Stats
	st.Date = date
	st.Days++
	st.Population = s.Farmers.N()
	st.Withdrawal = 0
	for i := 0; i < len(res.Channel); i++ {
		st.Withdrawal += res.Total(i)
	}
	st.ChannelStorage, st.GroundwaterStorage, st.ReservoirStorage = s.Hydrology.Storage()
	st.MeanGroundwaterDepth = s.Hydrology.MeanGroundwaterDepth()
	st.Drought = fc.Drought
	snapshot := *st
	s.status.Store(&snapshot)
}

// Status returns the statistics of the latest day. It is safe to call while
// the simulation runs.
func (s *Simulation) Status() SimStats {
	if st := s.status.Load(); st != nil {
		return *st
	}
	return SimStats{}
}

// Year closes a model year: the farmers' yearly rollover, recording and a
// checkpoint at the start of the next year. Market prices move on last, so
// a checkpoint resumes into the same prices.
func (s *Simulation) Year(year int) error {
	report, err := s.Farmers.Yearly(year)
	if err != nil {
		return err
	}
	s.Reports = append(s.Reports, report)
	events := s.Farmers.DrainEvents()

	slog.Info("yearly report",
		"year", year,
		"agents", report.Population,
		"wells", fmt.Sprintf("%.1f%%", 100*report.AdoptionShare[farmers.Well]),
		"efficiency", fmt.Sprintf("%.1f%%", 100*report.AdoptionShare[farmers.IrrigationEfficiency]),
		"expansion", fmt.Sprintf("%.1f%%", 100*report.AdoptionShare[farmers.IrrigationExpansion]),
		"crop_switches", report.Adoptions[farmers.CropSwitching],
		"microcredits", report.Microcredits,
		"risk_perception", fmt.Sprintf("%.3f", report.MeanRiskPerception),
		"yield_ratio", fmt.Sprintf("%.3f", report.MeanYieldRatio),
		"spinup", year < s.DecisionsFrom,
	)

	if s.Recorder != nil {
		if err := s.Recorder.RecordYear(report); err != nil {
			return fmt.Errorf("record year: %w", err)
		}
		if err := s.Recorder.RecordEvents(events); err != nil {
			return fmt.Errorf("record events: %w", err)
		}
	}

	next := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	if s.CheckpointDir != "" {
		dir := filepath.Join(s.CheckpointDir, strconv.Itoa(year+1))
		if err := s.Checkpoint(dir, next); err != nil {
			return err
		}
		if s.Recorder != nil {
			if err := s.Recorder.RecordCheckpoint(year, next, dir); err != nil {
				return fmt.Errorf("record checkpoint: %w", err)
			}
		}
	}
	s.Market.SetYear(year+1, s.Rng)
	return nil
}

// Checkpoint writes the model state under dir. next is the first day a
// resumed run will simulate.
func (s *Simulation) Checkpoint(dir string, next time.Time) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	state, err := s.Rng.Snapshot()
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	s.meta.SetMeta("next_date", next.Format(time.DateOnly))
	s.meta.SetMeta("rng", state)
	s.meta.SetMeta("days", strconv.Itoa(s.Stats.Days))
	if err := s.meta.Save(dir, s.Format); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := s.Farmers.Save(dir, s.Format); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := s.Hydrology.Bucket().Save(dir, s.Format); err != nil {
		return fmt.Errorf("checkpoint hydrology: %w", err)
	}
	slog.Info("checkpoint saved", "dir", dir, "next", next.Format(time.DateOnly))
	return nil
}

// Restore loads a checkpoint written by Checkpoint into a simulation built
// from the same configuration and returns the day to resume from.
func (s *Simulation) Restore(dir string) (time.Time, error) {
	if err := s.meta.Load(dir); err != nil {
		return time.Time{}, fmt.Errorf("restore: %w", err)
	}
	raw, ok := s.meta.Meta("next_date")
	if !ok {
		return time.Time{}, fmt.Errorf("restore %s: no resume date", dir)
	}
	next, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("restore %s: %w", dir, err)
	}
	if state, ok := s.meta.Meta("rng"); ok {
		if err := s.Rng.Restore(state); err != nil {
			return time.Time{}, fmt.Errorf("restore %s: %w", dir, err)
		}
	}
	if days, ok := s.meta.Meta("days"); ok {
		s.Stats.Days, _ = strconv.Atoi(days)
	}
	if err := s.Farmers.Load(dir); err != nil {
		return time.Time{}, fmt.Errorf("restore: %w", err)
	}
	if err := s.Hydrology.Bucket().Load(dir); err != nil {
		return time.Time{}, fmt.Errorf("restore hydrology: %w", err)
	}
	s.Market.SetYear(next.Year(), s.Rng)
	slog.Info("checkpoint restored", "dir", dir, "next", next.Format(time.DateOnly), "agents", s.Farmers.N())
	return next, nil
}
