// Package decision implements the expected-utility model agents use to weigh
// adaptations against doing nothing under a discretised drought-probability
// distribution, together with the statistics feeding it: the generalised
// extreme value survival of the drought index and the exponential relation
// between drought probability and yield ratio.
package decision

import (
	"math"

	"gonum.org/v1/gonum/integrate"
)

// ReturnPeriods are the drought bins in years, most severe first. The last bin
// (1 in 1 years) is the no-event bin.
var ReturnPeriods = []float64{100, 50, 25, 10, 5, 2, 1}

// NumEventBins is the number of drought bins excluding the no-event bin.
var NumEventBins = len(ReturnPeriods) - 1

// EventProbabilities returns the yearly probability of each event bin.
func EventProbabilities() []float64 {
	p := make([]float64, NumEventBins)
	for k := range p {
		p[k] = 1 / ReturnPeriods[k]
	}
	return p
}

// maxPerceived caps a perceived probability below one so the no-event bin
// keeps a positive width.
const maxPerceived = 0.998

// Agent holds the decision parameters of one agent. Money is per m2 of land.
type Agent struct {
	RiskAversion   float64 // sigma
	DiscountRate   float64
	RiskPerception float64 // multiplier on event probabilities
	Horizon        int     // years
	ExistingCosts  float64 // annual cost of running loans
	Income         float64 // no-event profit of the current state
}

// Option is one adaptation evaluated against doing nothing.
type Option struct {
	Profits    []float64 // profit per event bin, most severe first
	NoEvent    float64   // profit in a year without drought
	AnnualCost float64   // annual cost of the adaptation
	CostYears  int       // years the annual cost is still paid
	Feasible   bool      // extra constraint of the adaptation holds
}

// Utility is the constant relative risk aversion utility of x.
func Utility(x, sigma float64) float64 {
	if sigma == 1 {
		return math.Log(x)
	}
	return math.Pow(x, 1-sigma) / (1 - sigma)
}

// NPV discounts income over the horizon. The annual cost is deducted during
// the first costYears years. Values below one are floored at one so the
// utility stays defined.
func NPV(income, existing, annualCost float64, costYears, horizon int, rate float64) float64 {
	var npv float64
	for t := 0; t < horizon; t++ {
		v := income - existing
		if t < costYears {
			v -= annualCost
		}
		npv += v / math.Pow(1+rate, float64(t))
	}
	return math.Max(npv, 1)
}

// EUDoNothing returns the expected utility of keeping the current state.
func EUDoNothing(a Agent, probs, profits []float64, noEvent float64) float64 {
	return expectedUtility(a, probs, profits, noEvent, 0, 0)
}

// EUAdapt returns the expected utility of adopting o, or -Inf when o is not
// feasible or its annual cost exceeds expenditureCap times the agent's income.
func EUAdapt(a Agent, probs []float64, o Option, expenditureCap float64) float64 {
	if !o.Feasible || math.IsNaN(o.AnnualCost) {
		return math.Inf(-1)
	}
	if o.AnnualCost > expenditureCap*a.Income {
		return math.Inf(-1)
	}
	return expectedUtility(a, probs, o.Profits, o.NoEvent, o.AnnualCost, o.CostYears)
}

// expectedUtility integrates utility over the perceived exceedance
// probabilities with the trapezoidal rule. Between zero and the most severe
// bin the most severe outcome holds, beyond the mildest bin the no-event
// outcome holds.
func expectedUtility(a Agent, probs, profits []float64, noEvent, cost float64, costYears int) float64 {
	k := len(probs)
	x := make([]float64, 0, k+3)
	y := make([]float64, 0, k+3)
	u := func(income float64) float64 {
		return Utility(NPV(income, a.ExistingCosts, cost, costYears, a.Horizon, a.DiscountRate), a.RiskAversion)
	}
	x = append(x, 0)
	y = append(y, u(profits[0]))
	for j, p := range probs {
		x = append(x, math.Min(p*a.RiskPerception, maxPerceived))
		y = append(y, u(profits[j]))
	}
	last := x[len(x)-1]
	x = append(x, last+0.001, 1)
	none := u(noEvent)
	y = append(y, none, none)
	return integrate.Trapezoidal(x, y)
}
