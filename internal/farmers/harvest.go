package farmers

import (
	"fmt"
	"math"
	"time"

	"github.com/talgya/farm-agents/internal/crops"
	"github.com/talgya/farm-agents/internal/decision"
	"github.com/talgya/farm-agents/internal/fields"
	"github.com/talgya/farm-agents/internal/finance"
)

// harvestOf is the harvest of one agent on one day.
type harvestOf struct {
	profit    float64 // nominal
	potential float64
	age       int32
	crop      int32
}

// harvest harvests ripe fields, books deflated profits and crop age, and
// updates drought risk perception of the agents that harvested.
func (f *Farmers) harvest(date time.Time) error {
	done, err := crops.Harvest(f.land, f.model)
	if err != nil {
		return err
	}
	if len(done) == 0 {
		return nil
	}

	byAgent := make(map[int]*harvestOf)
	var agents []int
	for _, h := range done {
		if h.Owner == fields.Unowned {
			return fmt.Errorf("%w: unowned field %d harvested", fields.ErrOwner, h.Field)
		}
		i := int(h.Owner)
		crop, err := f.table.Get(h.Crop)
		if err != nil {
			return err
		}
		price := f.market.Price(int(f.Region.Get(i)), h.Crop)
		potential := crop.ReferenceYield * h.Area * price
		a, ok := byAgent[i]
		if !ok {
			a = &harvestOf{}
			byAgent[i] = a
			agents = append(agents, i)
		}
		a.potential += potential
		a.profit += potential * h.YieldRatio * f.Management.Get(i)
		a.age = max(a.age, h.Age)
		a.crop = h.Crop
	}

	year := f.market.Year()
	for _, i := range agents {
		a := byAgent[i]
		level := f.market.CumulativeInflation(int(f.Region.Get(i)), year)
		f.Profits.Add(i, a.profit/level)
		f.PotentialProfits.Add(i, a.potential/level)
		f.CropAge.Add(i, float64(a.age))
		f.HarvestedCrop.Set(i, a.crop)
		f.perceiveDrought(i, a, level)
	}
	return nil
}

// historicalPeriod is the number of years compared when judging whether a
// harvest was a drought.
func (f *Farmers) historicalPeriod() int { return min(5, f.p.HistoryYears) }

// perceiveDrought compares the loss of this harvest against the losses of the
// previous years. A loss exceeding the historical mean by the threshold is an
// experienced drought: the drought timer restarts and the agent may take a
// microcredit. Risk perception decays with the timer.
func (f *Farmers) perceiveDrought(i int, h *harvestOf, level float64) {
	if last := f.LastHarvest.Get(i); last >= 0 {
		f.DroughtTimer.Set(i, f.DroughtTimer.Get(i)+float64(f.day-last)/365)
	}
	f.LastHarvest.Set(i, f.day)

	if h.potential > 0 {
		latest := (h.potential - h.profit) / h.potential * 100
		var past float64
		var years int
		for age := 1; age < f.historicalPeriod(); age++ {
			pot := f.PotentialProfits.Value(i, age)
			if pot <= 0 {
				continue
			}
			past += (pot - f.Profits.Value(i, age)) / pot * 100
			years++
		}
		if years > 0 && latest-past/float64(years) >= f.p.Risk.Threshold {
			f.DroughtTimer.Set(i, 0)
			if f.deciding() {
				f.microcredit(i, latest, h, level)
			}
		}
	}

	r := f.p.Risk
	f.RiskPerception.Set(i, r.Max*math.Pow(1.6, r.Decrease*f.DroughtTimer.Get(i))+r.Min)
}

// microcredit lends an agent hit by a drought a share of its usual profit,
// scaled by the loss and by how much of a usual season the crop grew.
func (f *Farmers) microcredit(i int, loss float64, h *harvestOf, level float64) {
	var ages float64
	var years int
	for age := 1; age < f.CropAge.Years(); age++ {
		if v := f.CropAge.Value(i, age); v > 0 {
			ages += v
			years++
		}
	}
	completeness := 1.0
	if years > 0 {
		completeness = float64(h.age) / (ages / float64(years))
	}
	profits := f.Profits.Series(i)[:min(5, f.Profits.Years())]
	usual := decision.Median(profits) * level
	principal := loss / 100 * completeness * usual
	if principal <= 0 || math.IsNaN(principal) {
		return
	}
	annual := finance.Annuity(principal, f.p.InterestRate, f.p.MicrocreditDuration)
	if f.Ledger.Take(i, finance.Microcredit, annual, f.p.MicrocreditDuration) < 0 {
		f.counters.refusedLoans++
		return
	}
	f.counters.microcredits++
	f.emit(Event{Agent: i, Kind: EventMicrocredit, Detail: fmt.Sprintf("loss %.0f%%, principal %.2f", loss, principal)})
}
