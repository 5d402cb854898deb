package fields

import (
	"errors"
	"fmt"
)

var (
	// ErrOwner is returned when a field references an agent outside the population.
	ErrOwner = errors.New("fields: invalid owner")
	// ErrAge is returned when a growing field is older than its harvest age.
	ErrAge = errors.New("fields: crop age exceeds harvest age")
)

// Index maps agents to the fields they own. Fields holds every owned field id
// grouped by owner in ascending agent order; agent i owns
// Fields[offsets[2i]:offsets[2i+1]]. Within one owner fields keep ascending id
// order, so rebuilding from unchanged owners is idempotent.
type Index struct {
	compact []int32
	offsets []int32
	agents  int
}

// Build creates an index for nAgents agents from the field owners.
func Build(owners []int32, nAgents int) (*Index, error) {
	ix := &Index{}
	if err := ix.Rebuild(owners, nAgents); err != nil {
		return nil, err
	}
	return ix, nil
}

// Rebuild recomputes the index in place with a counting sort over owners.
func (ix *Index) Rebuild(owners []int32, nAgents int) error {
	counts := make([]int32, nAgents+1)
	owned := 0
	for f, o := range owners {
		if o == Unowned {
			continue
		}
		if o < 0 || int(o) >= nAgents {
			return fmt.Errorf("%w: field %d owned by %d, population %d", ErrOwner, f, o, nAgents)
		}
		counts[o+1]++
		owned++
	}
	for i := 1; i <= nAgents; i++ {
		counts[i] += counts[i-1]
	}

	if cap(ix.offsets) >= 2*nAgents {
		ix.offsets = ix.offsets[:2*nAgents]
	} else {
		ix.offsets = make([]int32, 2*nAgents)
	}
	for i := 0; i < nAgents; i++ {
		ix.offsets[2*i] = counts[i]
		ix.offsets[2*i+1] = counts[i]
	}

	if cap(ix.compact) >= owned {
		ix.compact = ix.compact[:owned]
	} else {
		ix.compact = make([]int32, owned)
	}
	for f, o := range owners {
		if o == Unowned {
			continue
		}
		end := &ix.offsets[2*int(o)+1]
		ix.compact[*end] = int32(f)
		*end++
	}
	ix.agents = nAgents
	return nil
}

// Agents returns the population size the index was built for.
func (ix *Index) Agents() int { return ix.agents }

// Span returns the [start, end) range of agent i in the compact array.
func (ix *Index) Span(i int) (start, end int) {
	return int(ix.offsets[2*i]), int(ix.offsets[2*i+1])
}

// Fields returns the fields owned by agent i. The slice aliases the index and
// must not be modified.
func (ix *Index) Fields(i int) []int32 {
	s, e := ix.Span(i)
	return ix.compact[s:e:e]
}

// Compact returns a copy of every owned field id, grouped by owner.
func (ix *Index) Compact() []int32 {
	return append([]int32(nil), ix.compact...)
}

// Offsets returns a copy of the [start, end) pairs, two values per agent.
func (ix *Index) Offsets() []int32 {
	return append([]int32(nil), ix.offsets...)
}

// Count returns the number of fields owned by agent i.
func (ix *Index) Count(i int) int {
	s, e := ix.Span(i)
	return e - s
}
