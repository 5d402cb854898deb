package decision

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// GEV is a generalised extreme value distribution in the shape convention
// where c > 0 bounds the upper tail; c == 0 is the Gumbel case.
type GEV struct {
	C, Loc, Scale float64
}

// Survival returns P(X > x).
func (g GEV) Survival(x float64) float64 {
	if g.C == 0 {
		return distuv.GumbelRight{Mu: g.Loc, Beta: g.Scale}.Survival(x)
	}
	z := (x - g.Loc) / g.Scale
	t := 1 - g.C*z
	if t <= 0 {
		if g.C > 0 {
			return 0
		}
		return 1
	}
	return 1 - math.Exp(-math.Pow(t, 1/g.C))
}

// Probability returns the empirical drought probability of x, the
// complement of its survival.
func (g GEV) Probability(x float64) float64 {
	return 1 - g.Survival(x)
}

// FitGumbel fits the Gumbel limit of the GEV to samples by the method of
// moments.
func FitGumbel(samples []float64) GEV {
	mean, std := stat.MeanStdDev(samples, nil)
	scale := std * math.Sqrt(6) / math.Pi
	if scale <= 0 || math.IsNaN(scale) {
		scale = 1
	}
	return GEV{Loc: mean - 0.5772156649015329*scale, Scale: scale}
}

// maxShape bounds the fitted shape; wider tails are not identifiable from a
// few decades of seasons.
const maxShape = 1

// FitGEV fits all three GEV parameters to samples by maximum likelihood,
// starting from the Gumbel moments fit. It falls back to that Gumbel fit
// when there are too few distinct samples or the search fails.
func FitGEV(samples []float64) GEV {
	start := FitGumbel(samples)
	if len(samples) < 3 || !(stat.StdDev(samples, nil) > 0) {
		return start
	}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return -logLikelihood(GEV{C: x[0], Loc: x[1], Scale: math.Exp(x[2])}, samples)
		},
	}
	init := []float64{0, start.Loc, math.Log(start.Scale)}
	res, err := optimize.Minimize(problem, init, &optimize.Settings{FuncEvaluations: 5000}, &optimize.NelderMead{})
	if err != nil || res == nil || math.IsInf(res.F, 0) || math.IsNaN(res.F) {
		return start
	}
	g := GEV{C: res.X[0], Loc: res.X[1], Scale: math.Exp(res.X[2])}
	if math.Abs(g.C) < 1e-9 {
		g.C = 0
	}
	return g
}

// logLikelihood returns the log likelihood of samples under g, or -Inf when a
// sample lies outside the support or the shape is out of bounds.
func logLikelihood(g GEV, samples []float64) float64 {
	if math.Abs(g.C) > maxShape || !(g.Scale > 0) {
		return math.Inf(-1)
	}
	logScale := math.Log(g.Scale)
	var ll float64
	for _, x := range samples {
		z := (x - g.Loc) / g.Scale
		if math.Abs(g.C) < 1e-9 {
			ll += -logScale - z - math.Exp(-z)
			continue
		}
		t := 1 - g.C*z
		if t <= 0 {
			return math.Inf(-1)
		}
		ll += -logScale + (1/g.C-1)*math.Log(t) - math.Pow(t, 1/g.C)
	}
	return ll
}

// Median returns the median of x. x is not modified.
func Median(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), x...)
	slices.Sort(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// Bands assigns each value to one of n equally populated bands by the
// interior quantile thresholds. Band ids run from 0 to n-1.
func Bands(values []float64, n int) []int32 {
	if len(values) == 0 {
		return nil
	}
	s := append([]float64(nil), values...)
	slices.Sort(s)
	thresholds := make([]float64, 0, n)
	for k := 1; k < n; k++ {
		thresholds = append(thresholds, stat.Quantile(float64(k)/float64(n), stat.LinInterp, s, nil))
	}
	out := make([]int32, len(values))
	for i, v := range values {
		var b int32
		for _, t := range thresholds {
			if v >= t {
				b++
			}
		}
		out[i] = b
	}
	return out
}
