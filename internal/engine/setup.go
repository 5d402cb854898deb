package engine

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/talgya/farm-agents/internal/config"
	"github.com/talgya/farm-agents/internal/economy"
	"github.com/talgya/farm-agents/internal/entropy"
	"github.com/talgya/farm-agents/internal/farmers"
	"github.com/talgya/farm-agents/internal/hydrology"
	"github.com/talgya/farm-agents/internal/weather"
	"github.com/talgya/farm-agents/internal/world"
)

// Period returns the first day of the run and the first day after it.
func Period(g config.General) (start, end time.Time) {
	start = time.Date(g.StartYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(g.Years, 0, 0)
}

// Setup builds a fresh simulation from cfg. The same configuration always
// builds the same simulation.
func Setup(cfg config.Config) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := cfg.General

	grid, err := world.Generate(cfg.World)
	if err != nil {
		return nil, err
	}
	rotations, err := cfg.CropRotations()
	if err != nil {
		return nil, err
	}

	xs := make([]float64, grid.Cells())
	ys := make([]float64, grid.Cells())
	for c := range xs {
		xs[c], ys[c] = grid.Center(c)
	}
	gen, err := weather.New(cfg.Weather, xs, ys, grid.Wetness)
	if err != nil {
		return nil, err
	}
	// Drought distributions are fitted over the main season of the most
	// common rotation in the years before the run.
	main := rotations[0]
	for _, r := range rotations {
		if r.Weight > main.Weight {
			main = r
		}
	}
	season := main.Slots[0]
	droughts, err := gen.DroughtDistributions(g.StartYear-g.DroughtSampleYears, g.DroughtSampleYears,
		int(season.StartDay), int(season.GrowthLength))
	if err != nil {
		return nil, err
	}

	rng := entropy.New(g.Seed)
	farms, err := world.PlaceFarms(grid, cfg.Farms, rotations, droughts, rng)
	if err != nil {
		return nil, err
	}
	market, err := economy.New(cfg.Economy, cfg.Crops, cfg.Farms.Regions, g.StartYear)
	if err != nil {
		return nil, err
	}

	maxN := int(math.Ceil(float64(len(farms.Specs)) * g.Headroom))
	f, err := farmers.New(cfg.Farmers, cfg.Crops, market, farms.Land, farms.Cells, maxN, rng)
	if err != nil {
		return nil, err
	}
	if err := f.Populate(farms.Specs); err != nil {
		return nil, fmt.Errorf("populate: %w", err)
	}

	h, err := hydrology.New(cfg.Hydrology, farms.Land, hydrology.Basin{
		CellArea:           grid.CellArea(),
		GroundwaterDepth:   grid.GroundwaterDepth,
		SaturatedThickness: grid.SaturatedThickness,
		NearestRiver:       grid.NearestRiver,
		Reservoirs:         grid.Reservoirs,
	})
	if err != nil {
		return nil, err
	}

	sim := NewSimulation(f, h, gen, market, rng)
	sim.DecisionsFrom = g.StartYear + g.SpinupYears
	sim.CheckpointDir = cfg.Output.CheckpointDir
	sim.Format = cfg.Output.Format

	slog.Info("world ready",
		"grid", grid.String(),
		"fields", farms.Land.N(),
		"agents", f.N(),
		"capacity", maxN,
		"rotations", len(rotations),
	)
	return sim, nil
}

// Wire connects the day and year callbacks of e to sim.
func Wire(e *Engine, sim *Simulation) {
	e.OnDay = sim.Day
	e.OnYear = sim.Year
}
