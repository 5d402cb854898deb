package farmers

import (
	"fmt"
	"math"

	"github.com/talgya/farm-agents/internal/abstraction"
	"github.com/talgya/farm-agents/internal/decision"
	"github.com/talgya/farm-agents/internal/finance"
)

// valueM2 returns the potential revenue per m2 and year of a crop rotation in
// region: reference yield times price summed over the rotation's crops.
func (f *Farmers) valueM2(region int, rotation []int32, rotationYears int32) float64 {
	var v float64
	for _, c := range rotation {
		if c < 0 {
			continue
		}
		v += f.table[c].ReferenceYield * f.market.Price(region, c)
	}
	return v / float64(max(rotationYears, 1))
}

// binProfits converts yield ratios per drought bin into profits per m2, split
// into the event bins and the no-event bin.
func binProfits(ratios []float64, value float64) (events []float64, noEvent float64) {
	events = make([]float64, decision.NumEventBins)
	for k := range events {
		events[k] = ratios[k] * value
	}
	return events, ratios[len(ratios)-1] * value
}

// shifted adds gain to ratios, clipped to [0, 1].
func shifted(ratios, gain []float64) []float64 {
	out := make([]float64, len(ratios))
	for k, r := range ratios {
		out[k] = math.Min(math.Max(r+gain[k], 0), 1)
	}
	return out
}

// decisionAgent returns the decision inputs of agent i.
func (f *Farmers) decisionAgent(i int, horizon int, income float64) decision.Agent {
	return decision.Agent{
		RiskAversion:   f.RiskAversion.Get(i),
		DiscountRate:   f.DiscountRate.Get(i),
		RiskPerception: f.RiskPerception.Get(i),
		Horizon:        horizon,
		ExistingCosts:  f.Ledger.Total(i) / f.fieldSize(i),
		Income:         income,
	}
}

// intends draws whether agent i acts on a favourable decision. The chance is
// boosted when a neighbour already satisfies peer.
func (f *Farmers) intends(i int, peer func(j int) bool) bool {
	p := f.Intention.Get(i)
	if f.Network.Any(i, peer) {
		p += f.p.IntentionBoost
	}
	return f.rng.Float() < math.Min(p, 1)
}

// measure describes one adaptation with a loan and a lifespan.
type measure struct {
	kind   Kind
	loan   finance.LoanType
	params Adaptation

	expired  func(i int) bool
	feasible func(i int) bool
	loanCost func(i int) float64 // annual repayment of the investment
	running  func(i int) float64 // other annual costs of the adaptation
	peers    func(i int) (with, without []int32)
	adopt    func(i int)
	abandon  func(i int)
}

// expire reverts agents whose adaptation reached its lifespan or lost its
// justification.
func (f *Farmers) expire(m measure) {
	k := int(m.kind)
	for i := 0; i < f.N(); i++ {
		if f.Adapted.At(i, k) != 1 {
			continue
		}
		lifespan := m.params.Lifespan
		aged := lifespan > 0 && int(f.TimeAdapted.At(i, k)) >= lifespan
		if !aged && (m.expired == nil || !m.expired(i)) {
			continue
		}
		f.Adapted.SetAt(i, k, 0)
		f.TimeAdapted.SetAt(i, k, -1)
		if m.abandon != nil {
			m.abandon(i)
		}
		f.counters.expiries[k]++
		f.emit(Event{Agent: i, Kind: EventExpiry, Detail: m.kind.String()})
	}
}

// advance counts one more year for every agent holding adaptation k.
func (f *Farmers) advance(k Kind) {
	for i := 0; i < f.N(); i++ {
		if t := f.TimeAdapted.At(i, int(k)); t != -1 {
			f.TimeAdapted.SetAt(i, int(k), t+1)
		}
	}
}

// costPerM2 returns the mean annual water and energy cost per m2 of agents.
func (f *Farmers) costPerM2(agents []int32) float64 {
	var sum float64
	var count int
	for _, j := range agents {
		size := f.fieldSize(int(j))
		if size <= 0 {
			continue
		}
		sum += (f.WaterCost.Get(int(j)) + f.EnergyCost.Get(int(j))) / size
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// decide evaluates measure m for every agent without it and adopts it where
// the expected utility of adapting beats doing nothing and the agent intends
// to act. Decisions are taken on the state before any adoption this year.
func (f *Farmers) decide(m measure) error {
	if err := f.requireRelation(); err != nil {
		return err
	}
	if f.groups == nil {
		f.buildGroups()
	}
	f.expire(m)
	if !m.params.Enabled() {
		f.advance(m.kind)
		return nil
	}

	k := int(m.kind)
	probs := decision.EventProbabilities()
	type adoption struct {
		agent int
		loan  float64
	}
	var adopted []adoption
	for i := 0; i < f.N(); i++ {
		if f.Adapted.At(i, k) == 1 {
			continue
		}
		size := f.fieldSize(i)
		rel := f.relation(i)
		if size <= 0 || !rel.Valid() {
			continue
		}
		ratios := rel.YieldRatios()
		value := f.valueM2(int(f.Region.Get(i)), f.Calendar.Crops(i), f.RotationYears.Get(i))
		profits, noEvent := binProfits(ratios, value)

		with, without := m.peers(i)
		costDiff := f.costPerM2(with) - f.costPerM2(without)
		adaptProfits, adaptNoEvent := binProfits(shifted(ratios, f.gain(with, without)), value)
		for b := range adaptProfits {
			adaptProfits[b] -= costDiff
		}
		adaptNoEvent -= costDiff

		loan := m.loanCost(i)
		annual := loan
		if m.running != nil {
			annual += m.running(i)
		}
		a := f.decisionAgent(i, m.params.Horizon, noEvent)
		nothing := decision.EUDoNothing(a, probs, profits, noEvent)
		adapt := decision.EUAdapt(a, probs, decision.Option{
			Profits:    adaptProfits,
			NoEvent:    adaptNoEvent,
			AnnualCost: annual / size,
			CostYears:  m.params.LoanDuration,
			Feasible:   m.feasible == nil || m.feasible(i),
		}, f.p.ExpenditureCap)
		if !(adapt > nothing) {
			continue
		}
		if !f.intends(i, func(j int) bool { return f.Adapted.At(j, k) == 1 }) {
			continue
		}
		adopted = append(adopted, adoption{agent: i, loan: loan})
	}

	for _, a := range adopted {
		f.Adapted.SetAt(a.agent, k, 1)
		f.TimeAdapted.SetAt(a.agent, k, 0)
		m.adopt(a.agent)
		if a.loan > 0 && f.Ledger.Take(a.agent, m.loan, a.loan, m.params.LoanDuration) < 0 {
			f.counters.refusedLoans++
		}
		f.counters.adoptions[k]++
		f.emit(Event{Agent: a.agent, Kind: EventAdaptation, Detail: fmt.Sprintf("%s, annual cost %.2f", m.kind, a.loan)})
	}
	f.advance(m.kind)
	return nil
}

// sameGroupSplit splits the group of agent i into agents with and without k.
func (f *Farmers) sameGroupSplit(i int, k Kind) (with, without []int32) {
	for _, j := range f.groups.Members[f.Group.Get(i)] {
		if f.Adapted.At(int(j), int(k)) == 1 {
			with = append(with, j)
		} else {
			without = append(without, j)
		}
	}
	return with, without
}

// hasAccess reports whether agent i abstracted water in any year on record.
func (f *Farmers) hasAccess(i int) bool {
	for age := 0; age < f.TotalUse.Years(); age++ {
		if f.TotalUse.Value(i, age) > 0 {
			return true
		}
	}
	return false
}

// groundwaterDepthAt returns the water table depth under agent i, m.
func (f *Farmers) groundwaterDepthAt(i int) float64 {
	c := f.cell(i)
	if c < 0 || c >= len(f.groundwaterDepth) {
		return 0
	}
	return math.Max(f.groundwaterDepth[c], 0)
}

// potentialWellDepth is the depth a new well of agent i is drilled to: the
// current water table plus the saturated thickness of the aquifer.
func (f *Farmers) potentialWellDepth(i int) float64 {
	c := f.cell(i)
	if c < 0 || c >= len(f.cells.SaturatedThickness) {
		return 0
	}
	return f.groundwaterDepthAt(i) + f.cells.SaturatedThickness[c]
}

// wellInstallCost returns the drilling cost of a new well for agent i.
func (f *Farmers) wellInstallCost(i int) float64 {
	class := 0
	if c := f.cell(i); c >= 0 && c < len(f.cells.AquiferClass) {
		class = int(f.cells.AquiferClass[c])
	}
	class = min(max(class, 0), len(f.p.WellUnitCost)-1)
	return f.p.WellUnitCost[class] * f.potentialWellDepth(i)
}

func (f *Farmers) wellMeasure() measure {
	return measure{
		kind:   Well,
		loan:   finance.Well,
		params: f.p.Well,
		expired: func(i int) bool {
			return f.groundwaterDepthAt(i) > f.WellDepth.Get(i)
		},
		feasible: func(i int) bool {
			return f.potentialWellDepth(i) > f.groundwaterDepthAt(i)
		},
		loanCost: func(i int) float64 {
			install := f.wellInstallCost(i)
			return finance.Annuity(install, f.p.InterestRate, f.p.Well.LoanDuration) + f.p.MaintenanceFactor*install
		},
		running: func(i int) float64 {
			return f.pumpingCost(i, f.groupExtraction(i), f.groundwaterDepthAt(i))
		},
		peers: func(i int) (with, without []int32) {
			own := f.groups.Members[f.Group.Get(i)]
			key := f.keyOf(i, f.Calendar.Crops(i), f.groups.band[i], ClassGroundwater)
			return f.groups.lookup(key), own
		},
		adopt: func(i int) {
			f.Source.Set(i, abstraction.SourceWell)
			f.WellDepth.Set(i, f.potentialWellDepth(i))
		},
		abandon: func(i int) {
			f.Source.Set(i, abstraction.SourceNone)
			f.WellDepth.Set(i, 0)
		},
	}
}

func (f *Farmers) efficiencyMeasure() measure {
	return measure{
		kind:   IrrigationEfficiency,
		loan:   finance.Efficiency,
		params: f.p.Efficiency,
		expired: func(i int) bool {
			return !f.hasAccess(i)
		},
		feasible: f.hasAccess,
		loanCost: func(i int) float64 {
			return finance.Annuity(f.fieldSize(i)*f.p.Efficiency.CostM2, f.p.InterestRate, f.p.Efficiency.LoanDuration)
		},
		peers: func(i int) (with, without []int32) {
			return f.sameGroupSplit(i, IrrigationEfficiency)
		},
		adopt: func(i int) {
			f.Efficiency.Set(i, f.p.AdaptedEfficiency)
		},
		abandon: func(i int) {
			f.Efficiency.Set(i, f.p.InitialEfficiency)
		},
	}
}

func (f *Farmers) expansionMeasure() measure {
	return measure{
		kind:   IrrigationExpansion,
		loan:   finance.Expansion,
		params: f.p.Expansion,
		expired: func(i int) bool {
			return !f.hasAccess(i)
		},
		feasible: f.hasAccess,
		loanCost: func(i int) float64 {
			invest := f.fieldSize(i) * f.p.Expansion.CostM2
			if f.IsAdapted(i, IrrigationEfficiency) {
				// the added area is equipped with efficient irrigation too
				invest += f.fieldSize(i) * f.p.Efficiency.CostM2
			}
			return finance.Annuity(invest, f.p.InterestRate, f.p.Expansion.LoanDuration)
		},
		running: func(i int) float64 {
			extra := 1 - f.FractionIrrigated.Get(i)
			return extra * (f.WaterCost.Get(i) + f.EnergyCost.Get(i) + f.Ledger.TypeTotal(i, finance.Input))
		},
		peers: func(i int) (with, without []int32) {
			return f.sameGroupSplit(i, IrrigationExpansion)
		},
		adopt: func(i int) {
			f.FractionIrrigated.Set(i, 1)
		},
		abandon: func(i int) {
			f.FractionIrrigated.Set(i, f.p.InitialFractionIrrigated)
		},
	}
}

// AdaptWells evaluates drilling or keeping wells.
func (f *Farmers) AdaptWells() error { return f.decide(f.wellMeasure()) }

// AdaptIrrigationEfficiency evaluates efficient irrigation.
func (f *Farmers) AdaptIrrigationEfficiency() error { return f.decide(f.efficiencyMeasure()) }

// AdaptIrrigationExpansion evaluates irrigating the whole field.
func (f *Farmers) AdaptIrrigationExpansion() error { return f.decide(f.expansionMeasure()) }
