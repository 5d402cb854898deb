package farmers

import (
	"github.com/talgya/farm-agents/internal/finance"
)

// Water cost repayment terms.
const (
	waterCostRate  = 0.0001
	waterCostYears = 2
)

// classify sets each agent's class to the source it drew most water from over
// the years on record, or rainfed when it never irrigated.
func (f *Farmers) classify() {
	for i := 0; i < f.N(); i++ {
		var use [3]float64
		for age := 0; age < f.TotalUse.Years(); age++ {
			use[0] += f.ChannelUse.Value(i, age)
			use[1] += f.ReservoirUse.Value(i, age)
			use[2] += f.GroundwaterUse.Value(i, age)
		}
		class := ClassRainfed
		best := 0.0
		for c, v := range use {
			if v > best {
				best = v
				class = int32(c)
			}
		}
		f.Class.Set(i, class)
	}
}

// groupExtraction returns the yearly abstraction (m3) agent i would have at the
// mean rate per m2 of the irrigating members of its group.
func (f *Farmers) groupExtraction(i int) float64 {
	var sum float64
	var count int
	for _, j := range f.groups.Members[f.Group.Get(i)] {
		use := f.TotalUse.Value(int(j), 0)
		size := f.fieldSize(int(j))
		if use <= 0 || size <= 0 {
			continue
		}
		sum += use / size
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count) * f.fieldSize(i)
}

// cropDays returns the mean number of days per year agent i grows crops.
func (f *Farmers) cropDays(i int) float64 {
	var sum float64
	var count int
	for age := 0; age < f.CropAge.Years(); age++ {
		if v := f.CropAge.Value(i, age); v > 0 {
			sum += v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// pumpingCost returns the yearly electricity cost of lifting extraction m3
// from depth m, pumping PumpHours a day over the growing days.
func (f *Farmers) pumpingCost(i int, extraction, depth float64) float64 {
	if extraction <= 0 || depth <= 0 {
		return 0
	}
	speed := extraction / 365 / f.p.PumpHours / 3600 // m3/s
	kW := f.p.SpecificWeight * depth * speed / f.p.PumpEfficiency / 1000
	kWh := kW * f.cropDays(i) * f.p.PumpHours
	return kWh * f.market.ElectricityCost(int(f.Region.Get(i)))
}

// waterCosts charges every irrigating agent for water and pumping energy at
// the group mean abstraction rate, financed over two years.
func (f *Farmers) waterCosts() {
	for i := 0; i < f.N(); i++ {
		f.WaterCost.Set(i, 0)
		f.EnergyCost.Set(i, 0)
		class := f.Class.Get(i)
		if class == ClassRainfed {
			continue
		}
		extraction := f.groupExtraction(i)
		var price float64
		switch class {
		case ClassChannel:
			price = f.p.WaterPrice.Channel
		case ClassReservoir:
			price = f.p.WaterPrice.Reservoir
		case ClassGroundwater:
			price = f.p.WaterPrice.Groundwater
			f.EnergyCost.Set(i, f.pumpingCost(i, extraction, f.groundwaterDepthAt(i)))
		}
		f.WaterCost.Set(i, extraction*price)

		total := f.WaterCost.Get(i) + f.EnergyCost.Get(i)
		if total <= 0 {
			continue
		}
		annual := finance.Annuity(total, waterCostRate, waterCostYears)
		if f.Ledger.Take(i, finance.Water, annual, waterCostYears) < 0 {
			f.counters.refusedLoans++
		}
	}
}
