// Package social provides the fixed-size social network through which agents
// observe the adaptations of nearby farmers.
package social

import (
	"fmt"
	"math"

	"github.com/talgya/farm-agents/internal/entropy"
	"github.com/talgya/farm-agents/internal/store"
)

// None marks an empty neighbour slot.
const None int32 = -1

// Network holds up to Size neighbours per agent.
type Network struct {
	neighbours *store.Array[int32]
}

// NewNetwork allocates an empty network of size neighbours per agent.
func NewNetwork(n, maxN, size int) (*Network, error) {
	a, err := store.New(n, maxN, size, None)
	if err != nil {
		return nil, fmt.Errorf("allocate social network: %w", err)
	}
	return &Network{neighbours: a}, nil
}

// Size returns the number of neighbour slots per agent.
func (nw *Network) Size() int { return nw.neighbours.Width() }

// Column returns the backing array for checkpoint buckets.
func (nw *Network) Column() store.Column { return nw.neighbours }

// Neighbours returns the neighbours of agent i, without empty slots.
func (nw *Network) Neighbours(i int) []int32 {
	var out []int32
	for _, j := range nw.neighbours.Row(i) {
		if j != None {
			out = append(out, j)
		}
	}
	return out
}

// Any reports whether some neighbour of agent i satisfies pred.
func (nw *Network) Any(i int, pred func(j int) bool) bool {
	for _, j := range nw.neighbours.Row(i) {
		if j != None && pred(int(j)) {
			return true
		}
	}
	return false
}

type cellKey struct{ x, y int }

// Build links every agent to up to Size other agents within radius of its
// location, drawn at random when more are in reach.
func (nw *Network) Build(x, y []float64, radius float64, rng *entropy.Source) error {
	n := nw.neighbours.N()
	if len(x) != n || len(y) != n {
		return fmt.Errorf("social network: %d agents, %d/%d locations", n, len(x), len(y))
	}
	if radius <= 0 {
		return fmt.Errorf("social network: radius %g must be positive", radius)
	}
	key := func(i int) cellKey {
		return cellKey{int(math.Floor(x[i] / radius)), int(math.Floor(y[i] / radius))}
	}
	grid := make(map[cellKey][]int32)
	for i := 0; i < n; i++ {
		k := key(i)
		grid[k] = append(grid[k], int32(i))
	}

	r2 := radius * radius
	size := nw.Size()
	var candidates []int32
	for i := 0; i < n; i++ {
		candidates = candidates[:0]
		k := key(i)
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for _, j := range grid[cellKey{k.x + dx, k.y + dy}] {
					if int(j) == i {
						continue
					}
					ddx, ddy := x[j]-x[i], y[j]-y[i]
					if ddx*ddx+ddy*ddy <= r2 {
						candidates = append(candidates, j)
					}
				}
			}
		}
		for s := 0; s < size && s < len(candidates); s++ {
			p := s + rng.IntN(len(candidates)-s)
			candidates[s], candidates[p] = candidates[p], candidates[s]
		}
		row := nw.neighbours.Row(i)
		for s := range row {
			row[s] = None
			if s < len(candidates) {
				row[s] = candidates[s]
			}
		}
	}
	return nil
}

// Connect links agent i to up to Size other agents within radius, drawn at
// random when more are in reach. Other agents keep their links.
func (nw *Network) Connect(i int, x, y []float64, radius float64, rng *entropy.Source) {
	var candidates []int32
	r2 := radius * radius
	for j := 0; j < nw.neighbours.N(); j++ {
		if j == i {
			continue
		}
		dx, dy := x[j]-x[i], y[j]-y[i]
		if dx*dx+dy*dy <= r2 {
			candidates = append(candidates, int32(j))
		}
	}
	size := nw.Size()
	for s := 0; s < size && s < len(candidates); s++ {
		p := s + rng.IntN(len(candidates)-s)
		candidates[s], candidates[p] = candidates[p], candidates[s]
	}
	row := nw.neighbours.Row(i)
	for s := range row {
		row[s] = None
		if s < len(candidates) {
			row[s] = candidates[s]
		}
	}
}

// Remove drops agent removed from the network, moving agent last into its
// row the way the population compacts.
func (nw *Network) Remove(removed, last int) error {
	n := nw.neighbours.N()
	if removed != last {
		nw.neighbours.CopyRow(removed, last)
	}
	if err := nw.neighbours.SetN(n - 1); err != nil {
		return err
	}
	for i := 0; i < n-1; i++ {
		row := nw.neighbours.Row(i)
		for s, j := range row {
			switch {
			case int(j) == removed:
				row[s] = None
			case int(j) == last:
				row[s] = int32(removed)
			}
		}
	}
	return nil
}

// Add appends an agent with the given neighbours.
func (nw *Network) Add(neighbours []int32) (int, error) {
	i := nw.neighbours.N()
	if err := nw.neighbours.SetN(i + 1); err != nil {
		return 0, err
	}
	row := nw.neighbours.Row(i)
	for s := range row {
		row[s] = None
		if s < len(neighbours) {
			row[s] = neighbours[s]
		}
	}
	return i, nil
}
