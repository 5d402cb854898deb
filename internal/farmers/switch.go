package farmers

import (
	"fmt"
	"math"
	"slices"

	"github.com/talgya/farm-agents/internal/crops"
	"github.com/talgya/farm-agents/internal/decision"
)

// firstCrop returns the crop of the first filled calendar slot of agent i.
func (f *Farmers) firstCrop(i int) int32 {
	for _, c := range f.Calendar.Crops(i) {
		if c >= 0 {
			return c
		}
	}
	return -1
}

// analogue returns the member of candidates whose yield ratio curve is closest
// to target, or -1.
func (f *Farmers) analogue(candidates []int32, target []float64) int {
	best, bestDist := -1, math.Inf(1)
	for _, j := range candidates {
		r := f.relation(int(j))
		if !r.Valid() {
			continue
		}
		var d float64
		for k, v := range r.YieldRatios() {
			d += (v - target[k]) * (v - target[k])
		}
		if d < bestDist {
			best, bestDist = int(j), d
		}
	}
	return best
}

// switchPlan is a decided crop switch with a snapshot of the analogue farmer.
type switchPlan struct {
	agent         int
	analogue      int
	crop          int32
	slots         []crops.Slot
	rotationYears int32
	rotationIndex int32
	yieldRatio    []float64
	probability   []float64
	a, b          float64
}

// SwitchCrops lets agents adopt the crop rotation of a comparable group, same
// elevation band and class, whose expected utility beats their own. The new
// rotation, yield history and drought history are copied from the member of
// the chosen group that best represents it.
func (f *Farmers) SwitchCrops() error {
	if err := f.requireRelation(); err != nil {
		return err
	}
	if f.groups == nil {
		f.buildGroups()
	}
	m := measure{kind: CropSwitching, params: f.p.CropSwitch}
	f.expire(m)
	if !m.params.Enabled() {
		f.advance(CropSwitching)
		return nil
	}

	g := f.groups
	var rotations []string
	seen := make(map[string]bool)
	for _, k := range g.keys {
		if !seen[k.rotation] {
			seen[k.rotation] = true
			rotations = append(rotations, k.rotation)
		}
	}
	slices.Sort(rotations)

	probs := decision.EventProbabilities()
	horizon := f.p.CropSwitch.Horizon
	var plans []switchPlan
	for i := 0; i < f.N(); i++ {
		if f.IsAdapted(i, CropSwitching) {
			continue
		}
		size := f.fieldSize(i)
		rel := f.relation(i)
		if size <= 0 || !rel.Valid() {
			continue
		}
		own := f.keyOf(i, f.Calendar.Crops(i), g.band[i], f.Class.Get(i))
		ownMean := f.meanRatios(g.lookup(own))
		if ownMean == nil {
			continue
		}
		region := int(f.Region.Get(i))
		ratios := rel.YieldRatios()
		profits, noEvent := binProfits(ratios, f.valueM2(region, f.Calendar.Crops(i), f.RotationYears.Get(i)))
		a := f.decisionAgent(i, horizon, noEvent)
		nothing := decision.EUDoNothing(a, probs, profits, noEvent)

		current := f.firstCrop(i)
		if current < 0 {
			continue
		}
		best, bestAnalogue := math.Inf(-1), -1
		for _, rot := range rotations {
			if rot == own.rotation {
				continue
			}
			candidates := g.lookup(groupKey{rotation: rot, band: own.band, class: own.class, command: own.command})
			candMean := f.meanRatios(candidates)
			if candMean == nil {
				continue
			}
			j := f.analogue(candidates, candMean)
			if j < 0 || f.firstCrop(j) < 0 {
				continue
			}
			gain := make([]float64, len(candMean))
			for k := range gain {
				gain[k] = candMean[k] - ownMean[k]
			}
			value := f.valueM2(region, f.Calendar.Crops(j), f.RotationYears.Get(j))
			candProfits, candNoEvent := binProfits(shifted(ratios, gain), value)
			costDiff := f.market.CultivationCost(region, f.firstCrop(j)) - f.market.CultivationCost(region, current)
			eu := decision.EUAdapt(a, probs, decision.Option{
				Profits:    candProfits,
				NoEvent:    candNoEvent,
				AnnualCost: costDiff,
				CostYears:  horizon,
				Feasible:   true,
			}, f.p.ExpenditureCap)
			if eu > best {
				best, bestAnalogue = eu, j
			}
		}
		if bestAnalogue < 0 || !(best > nothing) {
			continue
		}
		crop := f.firstCrop(bestAnalogue)
		if !f.intends(i, func(j int) bool { return f.firstCrop(j) == crop }) {
			continue
		}
		plans = append(plans, switchPlan{
			agent:         i,
			analogue:      bestAnalogue,
			crop:          crop,
			slots:         f.Calendar.Slots(bestAnalogue),
			rotationYears: f.RotationYears.Get(bestAnalogue),
			rotationIndex: f.RotationIndex.Get(bestAnalogue),
			yieldRatio:    append([]float64(nil), f.YieldRatio.Row(bestAnalogue)...),
			probability:   append([]float64(nil), f.SPEIProbability.Row(bestAnalogue)...),
			a:             f.RelationA.Get(bestAnalogue),
			b:             f.RelationB.Get(bestAnalogue),
		})
	}

	for _, p := range plans {
		i := p.agent
		from := f.firstCrop(i)
		for k := 0; k < f.Calendar.Depth(); k++ {
			s := crops.EmptySlot
			if k < len(p.slots) {
				s = p.slots[k]
			}
			f.Calendar.SetSlot(i, k, s)
		}
		f.RotationYears.Set(i, p.rotationYears)
		f.RotationIndex.Set(i, p.rotationIndex)
		copy(f.YieldRatio.Row(i), p.yieldRatio)
		copy(f.SPEIProbability.Row(i), p.probability)
		f.RelationA.Set(i, p.a)
		f.RelationB.Set(i, p.b)
		f.Adapted.SetAt(i, int(CropSwitching), 1)
		f.TimeAdapted.SetAt(i, int(CropSwitching), 0)
		f.counters.adoptions[CropSwitching]++
		f.emit(Event{Agent: i, Kind: EventCropSwitch, Detail: fmt.Sprintf("crop %s to %s like agent %d", f.table[from].Name, f.table[p.crop].Name, p.analogue)})
	}
	f.advance(CropSwitching)
	return nil
}
