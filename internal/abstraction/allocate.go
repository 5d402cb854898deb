package abstraction

import (
	"fmt"
	"math"

	"github.com/talgya/farm-agents/internal/crops"
	"github.com/talgya/farm-agents/internal/fields"
	"github.com/talgya/farm-agents/internal/store"
)

// Source is the irrigation water source of an agent.
type Source uint8

const (
	SourceNone Source = iota
	SourceCanal
	SourceWell
)

func (s Source) String() string {
	switch s {
	case SourceNone:
		return "no"
	case SourceCanal:
		return "canal"
	case SourceWell:
		return "well"
	}
	return fmt.Sprintf("source(%d)", uint8(s))
}

// Soil holds today's per-field soil water state supplied by the hydrology (m).
type Soil struct {
	PaddyLevel           []float64
	ReadilyAvailable     []float64
	CriticalLevel        []float64
	MaxWaterContent      []float64
	InfiltrationCapacity []float64
}

// Supply holds the shared water pools (m3) and groundwater depth (m) by grid
// cell and command area. Abstract draws the pools down in place.
type Supply struct {
	Channel          []float64 // per grid cell
	Groundwater      []float64 // per grid cell
	GroundwaterDepth []float64 // per grid cell
	Reservoir        []float64 // per command area
}

func (s Supply) clone() Supply {
	return Supply{
		Channel:          append([]float64(nil), s.Channel...),
		Groundwater:      append([]float64(nil), s.Groundwater...),
		GroundwaterDepth: s.GroundwaterDepth,
		Reservoir:        append([]float64(nil), s.Reservoir...),
	}
}

// Agents is the per-agent state read by the allocator. Limit is the remaining
// annual irrigation limit (m3, NaN when unconstrained) and is drawn down in place.
type Agents struct {
	Source            []Source
	WellDepth         []float64
	Efficiency        []float64
	FractionIrrigated []float64
	CommandArea       []int32
	Limit             []float64
	RotationYear      []int32
	Calendar          *crops.Calendar
	Deficit           *store.Array[float64]
}

// Result is the outcome of one day of abstraction.
type Result struct {
	// Per field, m.
	Withdrawal  []float64
	Consumption []float64
	ReturnFlow  []float64
	Evaporation []float64

	// Per agent, m3.
	Channel     []float64
	Reservoir   []float64
	Groundwater []float64
	HasAccess   []bool
}

// Total returns the total volume abstracted by agent i.
func (r *Result) Total(i int) float64 {
	return r.Channel[i] + r.Reservoir[i] + r.Groundwater[i]
}

// Allocator distributes irrigation water across agents in activation order.
type Allocator struct {
	ReturnFraction     float64 // share of irrigation losses returning as flow
	MinChannelStorage  float64 // m3 left in a channel cell
	MaxPaddyWaterLevel float64 // target ponding depth, m
	Checks             bool    // run balance checks after every call
}

// NewAllocator returns an allocator with the usual reserve and paddy target.
func NewAllocator(returnFraction float64) *Allocator {
	return &Allocator{
		ReturnFraction:     returnFraction,
		MinChannelStorage:  100,
		MaxPaddyWaterLevel: 0.05,
		Checks:             true,
	}
}

// CommandAreas returns for each agent the command area of its first field
// inside one, or -1.
func CommandAreas(ix *fields.Index, land *fields.Land) []int32 {
	out := make([]int32, ix.Agents())
	for i := range out {
		out[i] = -1
		for _, f := range ix.Fields(i) {
			if ca := land.CommandArea.Get(int(f)); ca != -1 {
				out[i] = ca
				break
			}
		}
	}
	return out
}

// Abstract runs one day of abstraction. dayIndex is the 0-based day of year;
// order is the activation order from ActivationOrder.
func (a *Allocator) Abstract(dayIndex int, order []int32, ix *fields.Index, land *fields.Land, ag Agents, soil *Soil, supply Supply) (*Result, error) {
	n := ix.Agents()
	if len(order) != n {
		return nil, fmt.Errorf("abstraction: activation order holds %d agents, population %d", len(order), n)
	}
	if a.ReturnFraction < 0 || a.ReturnFraction > 1 {
		return nil, fmt.Errorf("abstraction: return fraction %g outside [0, 1]", a.ReturnFraction)
	}
	nFields := land.N()
	res := &Result{
		Withdrawal:  make([]float64, nFields),
		Consumption: make([]float64, nFields),
		ReturnFlow:  make([]float64, nFields),
		Evaporation: make([]float64, nFields),
		Channel:     make([]float64, n),
		Reservoir:   make([]float64, n),
		Groundwater: make([]float64, n),
		HasAccess:   make([]bool, n),
	}

	var pre Supply
	var preLimit []float64
	if a.Checks {
		if err := checkPools(supply); err != nil {
			return nil, err
		}
		pre = supply.clone()
		preLimit = append([]float64(nil), ag.Limit...)
	}

	for _, agent := range order {
		if err := a.abstractAgent(int(agent), dayIndex, ix, land, ag, soil, supply, res); err != nil {
			return nil, err
		}
	}

	if a.Checks {
		if err := CheckBalance(res, land, pre, supply, preLimit, ag.Limit); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (a *Allocator) abstractAgent(i, dayIndex int, ix *fields.Index, land *fields.Land, ag Agents, soil *Soil, supply Supply, res *Result) error {
	owned := ix.Fields(i)
	growing := false
	for _, f := range owned {
		if land.Growing(int(f)) {
			growing = true
			break
		}
	}
	if !growing {
		return nil
	}

	source := ag.Source[i]
	commandArea := ag.CommandArea[i]
	for _, f := range owned {
		switch source {
		case SourceWell:
			if supply.GroundwaterDepth[land.Cell.Get(int(f))] < ag.WellDepth[i] {
				res.HasAccess[i] = true
			}
		case SourceCanal:
			if supply.Channel[land.NearestRiver.Get(int(f))] > 0 {
				res.HasAccess[i] = true
			}
			if commandArea != -1 && supply.Reservoir[commandArea] > 0 {
				res.HasAccess[i] = true
			}
		}
		if res.HasAccess[i] {
			break
		}
	}
	if !res.HasAccess[i] {
		return nil
	}

	eff := ag.Efficiency[i]
	if eff <= 0 || eff > 1 {
		return &InvariantError{Check: "irrigation efficiency", Detail: fmt.Sprintf("agent %d efficiency %g", i, eff)}
	}

	demand := make([]float64, len(owned))
	var demandM3 float64
	for k, f := range owned {
		if !land.Growing(int(f)) {
			continue
		}
		demand[k] = FieldDemand(land.Paddy(int(f)), soil, int(f), a.MaxPaddyWaterLevel, ag.FractionIrrigated[i])
		if demand[k] < 0 || math.IsNaN(demand[k]) {
			return &InvariantError{Check: "potential demand", Detail: fmt.Sprintf("field %d demand %g", f, demand[k])}
		}
		demandM3 += demand[k] * land.Area.Get(int(f))
	}
	if demandM3 <= 0 {
		return nil
	}

	if limit := ag.Limit[i]; !math.IsNaN(limit) {
		future, err := FutureDeficit(i, dayIndex, ag.Deficit, ag.Calendar, ag.RotationYear[i], demandM3)
		if err != nil {
			return err
		}
		if demand, err = AdjustToLimit(demand, demandM3, limit, eff, future); err != nil {
			return fmt.Errorf("agent %d: %w", i, err)
		}
	}

	for k, f32 := range owned {
		f := int(f32)
		if land.Growing(f) {
			area := land.Area.Get(f)
			need := math.Max(demand[k]/eff, 0)

			if source == SourceCanal {
				river := land.NearestRiver.Get(f)
				take := math.Min(math.Max(supply.Channel[river]-a.MinChannelStorage, 0), need*area)
				supply.Channel[river] -= take
				res.Channel[i] += take
				need = a.withdraw(res, ag, i, f, area, take, need)

				if commandArea != -1 {
					take = math.Max(math.Min(supply.Reservoir[commandArea], need*area), 0)
					supply.Reservoir[commandArea] -= take
					res.Reservoir[i] += take
					need = a.withdraw(res, ag, i, f, area, take, need)
				}
			}
			if source == SourceWell {
				cell := land.Cell.Get(f)
				if supply.GroundwaterDepth[cell] < ag.WellDepth[i] {
					take := math.Max(math.Min(supply.Groundwater[cell], need*area), 0)
					supply.Groundwater[cell] -= take
					res.Groundwater[i] += take
					a.withdraw(res, ag, i, f, area, take, need)
				}
			}
		}

		w := res.Withdrawal[f]
		if w < 0 {
			return &InvariantError{Check: "non-negative withdrawal", Detail: fmt.Sprintf("field %d withdrawal %g", f, w)}
		}
		res.Consumption[f] = w * eff
		loss := w - res.Consumption[f]
		res.ReturnFlow[f] = loss * a.ReturnFraction
		res.Evaporation[f] = loss - res.ReturnFlow[f]
	}
	return nil
}

// withdraw books take (m3) against field f and the agent's limit and returns
// the demand (m) still open, never below zero.
func (a *Allocator) withdraw(res *Result, ag Agents, i, f int, area, take, need float64) float64 {
	m := take / area
	res.Withdrawal[f] += m
	if !math.IsNaN(ag.Limit[i]) {
		ag.Limit[i] -= take
	}
	return math.Max(need-m, 0)
}
