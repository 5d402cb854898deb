package farmers

import (
	"fmt"
	"math"
	"time"

	"github.com/talgya/farm-agents/internal/abstraction"
	"github.com/talgya/farm-agents/internal/crops"
	"github.com/talgya/farm-agents/internal/finance"
)

// Day is the state of the water system handed to the population each day.
type Day struct {
	Date          time.Time
	Soil          *abstraction.Soil
	Supply        abstraction.Supply
	ReferenceET   []float64 // per field, m
	Precipitation []float64 // per field, m
	SPEI          []float64 // per grid cell
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// Step runs one day: harvest ripe fields, plant the fields due today, update
// the water deficit curves and abstract irrigation water in activation order.
func (f *Farmers) Step(d *Day) (*abstraction.Result, error) {
	f.day++
	dayOfYear := d.Date.YearDay()
	dayIndex := dayOfYear - 1

	if err := f.harvest(d.Date); err != nil {
		return nil, fmt.Errorf("harvest %s: %w", d.Date.Format(time.DateOnly), err)
	}
	if err := f.plant(dayIndex); err != nil {
		return nil, fmt.Errorf("plant %s: %w", d.Date.Format(time.DateOnly), err)
	}
	f.updateDeficit(d, dayOfYear, isLeap(d.Date.Year()))

	order, err := f.order.Order(f.Elevation.Data(), f.rng)
	if err != nil {
		return nil, err
	}
	res, err := f.alloc.Abstract(dayIndex, order, f.Index, f.land, f.allocatorView(), d.Soil, d.Supply)
	if err != nil {
		return nil, fmt.Errorf("abstraction %s: %w", d.Date.Format(time.DateOnly), err)
	}
	for i := 0; i < f.N(); i++ {
		if res.Total(i) == 0 {
			continue
		}
		f.ChannelUse.Add(i, res.Channel[i])
		f.ReservoirUse.Add(i, res.Reservoir[i])
		f.GroundwaterUse.Add(i, res.Groundwater[i])
		f.TotalUse.Add(i, res.Total(i))
	}

	f.accumulateSPEI(d.SPEI)
	f.groundwaterDepth = d.Supply.GroundwaterDepth

	if f.p.Checks {
		if err := f.land.CheckOwners(f.N()); err != nil {
			return nil, err
		}
		if err := f.land.CheckAges(); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (f *Farmers) allocatorView() abstraction.Agents {
	return abstraction.Agents{
		Source:            f.Source.Data(),
		WellDepth:         f.WellDepth.Data(),
		Efficiency:        f.Efficiency.Data(),
		FractionIrrigated: f.FractionIrrigated.Data(),
		CommandArea:       f.commandArea,
		Limit:             f.Limit.Data(),
		RotationYear:      f.RotationIndex.Data(),
		Calendar:          f.Calendar,
		Deficit:           f.Deficit,
	}
}

// plant sows every calendar slot due today and finances its cultivation cost
// with an input loan.
func (f *Farmers) plant(dayIndex int) error {
	due, err := crops.DuePlantings(f.Calendar, f.RotationIndex.Data(), dayIndex)
	if err != nil {
		return err
	}
	for _, p := range due {
		owned := f.Index.Fields(p.Agent)
		if crops.Sow(f.land, owned, p, f.table) == 0 {
			continue
		}
		cost := f.market.CultivationCost(int(f.Region.Get(p.Agent)), p.Slot.Crop) * f.fieldSize(p.Agent)
		if cost <= 0 {
			continue
		}
		annual := finance.Annuity(cost, f.p.InterestRate, f.p.InputLoanDuration)
		if f.Ledger.Take(p.Agent, finance.Input, annual, f.p.InputLoanDuration) < 0 {
			f.counters.refusedLoans++
			continue
		}
		f.counters.inputLoans++
	}
	return nil
}

// updateDeficit adds today's open water demand max(ETref - P, 0) over each
// agent's fields to its cumulative deficit curve.
func (f *Farmers) updateDeficit(d *Day, dayOfYear int, leap bool) {
	if d.ReferenceET == nil || d.Precipitation == nil {
		return
	}
	today := make([]float64, f.N())
	for i := range today {
		for _, fld := range f.Index.Fields(i) {
			gap := d.ReferenceET[fld] - d.Precipitation[fld]
			if gap > 0 {
				today[i] += gap * f.land.Area.Get(int(fld))
			}
		}
	}
	abstraction.AddDeficit(f.Deficit, today, dayOfYear, leap)
}

// accumulateSPEI sums the drought index over the days agents grow a crop.
func (f *Farmers) accumulateSPEI(spei []float64) {
	if spei == nil {
		return
	}
	for i := 0; i < f.N(); i++ {
		growing := false
		for _, fld := range f.Index.Fields(i) {
			if f.land.Growing(int(fld)) {
				growing = true
				break
			}
		}
		if !growing {
			continue
		}
		c := f.cell(i)
		if c < 0 || math.IsNaN(spei[c]) {
			continue
		}
		f.SeasonSPEI.Set(i, f.SeasonSPEI.Get(i)+spei[c])
		f.SeasonDays.Set(i, f.SeasonDays.Get(i)+1)
	}
}

// AccumulateET adds today's actual and potential evapotranspiration (m) of
// every growing field to its crop-life totals.
func (f *Farmers) AccumulateET(actual, potential []float64) {
	for fld := 0; fld < f.land.N(); fld++ {
		if !f.land.Growing(fld) {
			continue
		}
		f.land.ActualET.Set(fld, f.land.ActualET.Get(fld)+actual[fld])
		f.land.PotentialET.Set(fld, f.land.PotentialET.Get(fld)+potential[fld])
	}
}
