package farmers

import (
	"fmt"
	"math"

	"github.com/talgya/farm-agents/internal/crops"
	"github.com/talgya/farm-agents/internal/store"
)

// Yearly closes model year and prepares the next one: it records the year's
// yield ratio and drought probability, resets irrigation limits after the
// first year, reclassifies agents, charges water costs, refits the yield
// relations, runs the adaptation decisions, advances crop rotations, ages
// loans and shifts the yearly histories.
func (f *Farmers) Yearly(year int) (YearReport, error) {
	n := f.N()
	for i := 0; i < n; i++ {
		ratio := math.NaN()
		if pot := f.PotentialProfits.Value(i, 0); pot > 0 {
			ratio = f.Profits.Value(i, 0) / pot
		}
		f.YieldRatio.SetValue(i, 0, ratio)

		prob := math.NaN()
		if days := f.SeasonDays.Get(i); days > 0 {
			prob = f.drought(i).Probability(f.SeasonSPEI.Get(i) / days)
		}
		f.SPEIProbability.SetValue(i, 0, prob)
		f.SeasonSPEI.Set(i, 0)
		f.SeasonDays.Set(i, 0)
	}

	// The deficit record covers a whole year only once the first year closed.
	if year > f.market.StartYear() {
		f.Limit.Fill(f.p.limit())
	}
	f.classify()
	f.buildGroups()
	f.waterCosts()
	f.fitRelations()

	if f.deciding() {
		for _, step := range []struct {
			name string
			run  func() error
		}{
			{"wells", f.AdaptWells},
			{"irrigation efficiency", f.AdaptIrrigationEfficiency},
			{"irrigation expansion", f.AdaptIrrigationExpansion},
			{"crop switching", f.SwitchCrops},
		} {
			if err := step.run(); err != nil {
				return YearReport{}, fmt.Errorf("year %d %s: %w", year, step.name, err)
			}
		}
	}

	crops.AdvanceRotation(f.RotationIndex.Data(), f.RotationYears.Data())
	f.Ledger.Update()

	report := f.report(year)

	for _, h := range []*store.History{f.Profits, f.PotentialProfits, f.CropAge, f.ChannelUse, f.ReservoirUse, f.GroundwaterUse, f.TotalUse} {
		h.ShiftReset()
	}
	for _, h := range []*store.History{f.YieldRatio, f.SPEIProbability} {
		h.Shift(func(int) float64 { return math.NaN() })
	}
	return report, nil
}
