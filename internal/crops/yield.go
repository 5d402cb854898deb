package crops

import "fmt"

// YieldModel converts the ratio of actual to potential evapotranspiration over
// a crop's life into a yield ratio in [0, 1].
type YieldModel interface {
	Name() string
	Ratio(crop int32, etRatio float64) float64
}

// Yield model names accepted by NewYieldModel.
const (
	ModelGAEZ      = "GAEZ"
	ModelMIRCA2000 = "MIRCA2000"
)

// GAEZ is the single water stress coefficient response:
// ratio = max(1 - KyT * (1 - et), 0).
type GAEZ struct {
	KyT []float64
}

func (GAEZ) Name() string { return ModelGAEZ }

func (g GAEZ) Ratio(crop int32, et float64) float64 {
	r := 1 - g.KyT[crop]*(1-et)
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// MIRCA2000 is the four parameter piecewise response: zero below P0, a linear
// ramp between P0 and P1, and a*et+b above P1, capped at 1.
type MIRCA2000 struct {
	A, B, P0, P1 []float64
}

func (MIRCA2000) Name() string { return ModelMIRCA2000 }

func (m MIRCA2000) Ratio(crop int32, et float64) float64 {
	a, b, p0, p1 := m.A[crop], m.B[crop], m.P0[crop], m.P1[crop]
	var r float64
	switch {
	case a*et+b > 1:
		r = 1
	case p0 < et && et < p1:
		top := a*p1 + b
		r = top - (p1-et)*top/(p1-p0)
	case et < p0:
		r = 0
	default:
		r = a*et + b
	}
	if r < 0 {
		return 0
	}
	return r
}

// NewYieldModel selects the response form by name and binds it to the crop table.
func NewYieldModel(kind string, table Table) (YieldModel, error) {
	switch kind {
	case ModelGAEZ:
		g := GAEZ{KyT: make([]float64, len(table))}
		for i, c := range table {
			g.KyT[i] = c.KyT
		}
		return g, nil
	case ModelMIRCA2000:
		m := MIRCA2000{
			A:  make([]float64, len(table)),
			B:  make([]float64, len(table)),
			P0: make([]float64, len(table)),
			P1: make([]float64, len(table)),
		}
		for i, c := range table {
			if c.P1 <= c.P0 {
				return nil, fmt.Errorf("crop %s: P1 %g must exceed P0 %g", c.Name, c.P1, c.P0)
			}
			m.A[i], m.B[i], m.P0[i], m.P1[i] = c.A, c.B, c.P0, c.P1
		}
		return m, nil
	}
	return nil, fmt.Errorf("unknown crop yield model %q, must be %s or %s", kind, ModelGAEZ, ModelMIRCA2000)
}
