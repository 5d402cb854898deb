// Package abstraction allocates irrigation water from channels, reservoirs and
// groundwater across agents for one simulated day.
package abstraction

import (
	"fmt"
	"slices"

	"github.com/talgya/farm-agents/internal/entropy"
)

// ActivationOrder produces the sequence in which agents reach shared water.
// Agents are ordered by elevation, highest first, with ties broken by a random
// permutation. In fixed mode the permutation comes from a dedicated source
// seeded with Seed and the order is cached until the population changes.
type ActivationOrder struct {
	Fixed bool
	Seed  uint64

	cached []int32
	valid  bool
}

// Reset drops the cached fixed order. Call it whenever agents are added or removed.
func (o *ActivationOrder) Reset() {
	o.cached = nil
	o.valid = false
}

// Order returns agent ids by descending elevation. rng supplies tie-breaking
// when the order is not fixed.
func (o *ActivationOrder) Order(elevation []float64, rng *entropy.Source) ([]int32, error) {
	n := len(elevation)
	if o.Fixed && o.valid && len(o.cached) == n {
		return o.cached, nil
	}

	var perm []int
	if o.Fixed {
		perm = entropy.New(o.Seed).Perm(n)
	} else {
		perm = rng.Perm(n)
	}

	// Stable ascending sort of the shuffled positions keeps the shuffle
	// within groups of equal elevation; reversing yields highest first.
	pos := make([]int, n)
	for i := range pos {
		pos[i] = i
	}
	slices.SortStableFunc(pos, func(a, b int) int {
		ea, eb := elevation[perm[a]], elevation[perm[b]]
		switch {
		case ea < eb:
			return -1
		case ea > eb:
			return 1
		}
		return 0
	})
	order := make([]int32, n)
	for i, p := range pos {
		order[n-1-i] = int32(perm[p])
	}

	for i := 1; i < n; i++ {
		if elevation[order[i]] > elevation[order[i-1]] {
			return nil, &InvariantError{
				Check:  "activation order",
				Detail: fmt.Sprintf("agent %d (elevation %g) after agent %d (elevation %g)", order[i], elevation[order[i]], order[i-1], elevation[order[i-1]]),
			}
		}
	}

	if o.Fixed {
		o.cached = order
		o.valid = true
	}
	return order, nil
}
