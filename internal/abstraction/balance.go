package abstraction

import (
	"fmt"
	"math"

	"github.com/talgya/farm-agents/internal/fields"
	"gonum.org/v1/gonum/floats"
)

// Tolerances of the balance checks.
const (
	VolumeTolerance = 1e-3 // m3
	DepthTolerance  = 1e-4 // m
)

// InvariantError reports a violated conservation or sign invariant. It is a
// defect, not a recoverable condition.
type InvariantError struct {
	Check  string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant %q violated: %s", e.Check, e.Detail)
}

func checkPools(s Supply) error {
	for name, pool := range map[string][]float64{"channel": s.Channel, "groundwater": s.Groundwater, "reservoir": s.Reservoir} {
		for c, v := range pool {
			if v < 0 || math.IsNaN(v) {
				return &InvariantError{Check: "available " + name, Detail: fmt.Sprintf("cell %d holds %g m3", c, v)}
			}
		}
	}
	return nil
}

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol*math.Max(1, math.Abs(b))
}

// CheckBalance verifies one day of abstraction:
//   - per agent, channel + reservoir + groundwater equals withdrawal times area
//   - every pool lost exactly what agents took from it
//   - every constrained limit dropped by exactly what its agent took
//   - per field, consumption + return flow + evaporation equals withdrawal
//   - no flow is negative and consumption never exceeds withdrawal
func CheckBalance(res *Result, land *fields.Land, pre, post Supply, preLimit, postLimit []float64) error {
	byAgent := make([]float64, len(res.Channel))
	for f, w := range res.Withdrawal {
		if w == 0 {
			continue
		}
		o := land.Owner.Get(f)
		if o == fields.Unowned {
			return &InvariantError{Check: "withdrawal owner", Detail: fmt.Sprintf("unowned field %d withdrew %g m", f, w)}
		}
		byAgent[o] += w * land.Area.Get(f)
	}
	var channel, reservoir, groundwater float64
	for i := range byAgent {
		for _, v := range []float64{res.Channel[i], res.Reservoir[i], res.Groundwater[i]} {
			if v < 0 {
				return &InvariantError{Check: "non-negative abstraction", Detail: fmt.Sprintf("agent %d abstracted %g m3", i, v)}
			}
		}
		if !near(res.Total(i), byAgent[i], VolumeTolerance) {
			return &InvariantError{Check: "withdrawal by agent", Detail: fmt.Sprintf("agent %d sources %g m3, fields %g m3", i, res.Total(i), byAgent[i])}
		}
		channel += res.Channel[i]
		reservoir += res.Reservoir[i]
		groundwater += res.Groundwater[i]

		if preLimit != nil && !math.IsNaN(postLimit[i]) {
			if !near(preLimit[i]-postLimit[i], res.Total(i), VolumeTolerance) {
				return &InvariantError{Check: "irrigation limit", Detail: fmt.Sprintf("agent %d limit fell %g m3, abstracted %g m3", i, preLimit[i]-postLimit[i], res.Total(i))}
			}
		}
	}

	if pre.Channel != nil {
		for _, p := range []struct {
			name      string
			pre, post []float64
			out       float64
		}{
			{"channel", pre.Channel, post.Channel, channel},
			{"reservoir", pre.Reservoir, post.Reservoir, reservoir},
			{"groundwater", pre.Groundwater, post.Groundwater, groundwater},
		} {
			if d := floats.Sum(p.pre) - floats.Sum(p.post); !near(d, p.out, VolumeTolerance) {
				return &InvariantError{Check: p.name + " storage", Detail: fmt.Sprintf("storage fell %g m3, abstracted %g m3", d, p.out)}
			}
		}
		if err := checkPools(post); err != nil {
			return err
		}
	}

	for f, w := range res.Withdrawal {
		c, r, e := res.Consumption[f], res.ReturnFlow[f], res.Evaporation[f]
		if w < 0 || c < 0 || r < 0 || e < -DepthTolerance {
			return &InvariantError{Check: "non-negative flows", Detail: fmt.Sprintf("field %d withdrawal %g consumption %g return %g evaporation %g", f, w, c, r, e)}
		}
		if c > w+DepthTolerance {
			return &InvariantError{Check: "consumption", Detail: fmt.Sprintf("field %d consumption %g exceeds withdrawal %g", f, c, w)}
		}
		if math.Abs(c+r+e-w) > DepthTolerance {
			return &InvariantError{Check: "consumption balance", Detail: fmt.Sprintf("field %d %g + %g + %g != %g", f, c, r, e, w)}
		}
	}
	return nil
}
