package decision

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Relation is the fitted yield ratio y = A * exp(B * p) for drought
// probability p.
type Relation struct {
	A, B float64
	R2   float64
}

// Valid reports whether the relation was fitted.
func (r Relation) Valid() bool { return !math.IsNaN(r.A) && !math.IsNaN(r.B) }

// NoRelation is the result of a degenerate fit.
var NoRelation = Relation{A: math.NaN(), B: math.NaN(), R2: math.NaN()}

// FitRelation fits ln(y) = B*p + ln(A) by least squares over the pairs with
// 0 <= p < 1 and y > 0. Fewer than two usable pairs, or pairs sharing a single
// probability, give NoRelation.
func FitRelation(probability, yieldRatio []float64) Relation {
	var xs, ys []float64
	for i, p := range probability {
		y := yieldRatio[i]
		if math.IsNaN(p) || math.IsNaN(y) || p >= 1 || p < 0 || y <= 0 {
			continue
		}
		xs = append(xs, p)
		ys = append(ys, math.Log(y))
	}
	if len(xs) < 2 || slices.Min(xs) == slices.Max(xs) {
		return NoRelation
	}

	design := mat.NewDense(len(xs), 2, nil)
	for i, x := range xs {
		design.Set(i, 0, x)
		design.Set(i, 1, 1)
	}
	target := mat.NewVecDense(len(ys), ys)
	var beta mat.VecDense
	if err := beta.SolveVec(design, target); err != nil {
		return NoRelation
	}
	b, lnA := beta.AtVec(0), beta.AtVec(1)

	var fitted mat.VecDense
	fitted.MulVec(design, &beta)
	var mean float64
	for _, y := range ys {
		mean += y
	}
	mean /= float64(len(ys))
	var ssRes, ssTot float64
	for i, y := range ys {
		ssRes += (y - fitted.AtVec(i)) * (y - fitted.AtVec(i))
		ssTot += (y - mean) * (y - mean)
	}
	r2 := math.NaN()
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}
	return Relation{A: math.Exp(lnA), B: b, R2: r2}
}

// YieldRatios returns the yield ratio of every drought bin, clipped to [0, 1].
// An invalid relation gives NaN in every bin.
func (r Relation) YieldRatios() []float64 {
	out := make([]float64, len(ReturnPeriods))
	for k, period := range ReturnPeriods {
		if !r.Valid() {
			out[k] = math.NaN()
			continue
		}
		out[k] = math.Min(math.Max(r.A*math.Exp(r.B/period), 0), 1)
	}
	return out
}
