// Package world generates the synthetic basin the farmers live in: a raster
// of grid cells with elevation, rainfall pattern, rivers, reservoir command
// areas and aquifer properties, and the fields and farms laid out on it.
package world

import (
	"fmt"
	"math"
	"slices"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/farm-agents/internal/entropy"
)

// GenConfig holds basin generation parameters.
type GenConfig struct {
	Width         int     `yaml:"width"`  // cells
	Height        int     `yaml:"height"` // cells
	CellSize      float64 `yaml:"cell_size_m"`
	Seed          int64   `yaml:"seed"`
	MinElevation  float64 `yaml:"min_elevation_m"`
	MaxElevation  float64 `yaml:"max_elevation_m"`
	Rivers        int     `yaml:"rivers"`
	Reservoirs    int     `yaml:"reservoirs"`
	CommandRadius int     `yaml:"command_radius_cells"`
	AquiferDepth  float64 `yaml:"aquifer_depth_m"` // mean initial water table depth
}

// DefaultGenConfig returns a basin of 40 x 40 one-kilometre cells.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:         40,
		Height:        40,
		CellSize:      1000,
		Seed:          42,
		MinElevation:  50,
		MaxElevation:  900,
		Rivers:        4,
		Reservoirs:    2,
		CommandRadius: 4,
		AquiferDepth:  8,
	}
}

// SmallTestConfig returns a tiny basin for tests.
func SmallTestConfig() GenConfig {
	cfg := DefaultGenConfig()
	cfg.Width, cfg.Height = 8, 6
	cfg.Rivers, cfg.Reservoirs, cfg.CommandRadius = 2, 1, 2
	return cfg
}

// Validate checks the configuration.
func (cfg GenConfig) Validate() error {
	switch {
	case cfg.Width < 2 || cfg.Height < 2:
		return fmt.Errorf("world: grid %dx%d too small", cfg.Width, cfg.Height)
	case cfg.CellSize <= 0:
		return fmt.Errorf("world: cell size %g", cfg.CellSize)
	case cfg.MaxElevation <= cfg.MinElevation:
		return fmt.Errorf("world: elevation range %g..%g", cfg.MinElevation, cfg.MaxElevation)
	case cfg.Rivers < 1 || cfg.Reservoirs < 0 || cfg.CommandRadius < 0:
		return fmt.Errorf("world: %d rivers, %d reservoirs, command radius %d", cfg.Rivers, cfg.Reservoirs, cfg.CommandRadius)
	case cfg.AquiferDepth <= 0:
		return fmt.Errorf("world: aquifer depth %g", cfg.AquiferDepth)
	}
	return nil
}

// Generate creates the basin. The same configuration always yields the same
// basin.
func Generate(cfg GenConfig) (*Grid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	elevNoise := opensimplex.NewNormalized(cfg.Seed)
	rainNoise := opensimplex.NewNormalized(cfg.Seed + 1)
	aquiferNoise := opensimplex.NewNormalized(cfg.Seed + 2)

	g := NewGrid(cfg.Width, cfg.Height, cfg.CellSize)
	for c := 0; c < g.Cells(); c++ {
		cx, cy := g.Coords(c)
		x, y := float64(cx), float64(cy)

		// A tilted plain: the basin drains towards row 0.
		elev := octaveNoise(elevNoise, x, y, 4, 0.08, 0.5)
		slope := y / float64(cfg.Height)
		elev = 0.6*elev + 0.4*slope
		g.Elevation[c] = cfg.MinElevation + elev*(cfg.MaxElevation-cfg.MinElevation)

		g.Wetness[c] = 0.6 + 0.8*octaveNoise(rainNoise, x, y, 3, 0.06, 0.5)

		aq := octaveNoise(aquiferNoise, x, y, 2, 0.05, 0.5)
		g.AquiferClass[c] = int32(math.Min(aq*3, 2))
		g.SaturatedThickness[c] = 20 + 60*aq
		g.GroundwaterDepth[c] = cfg.AquiferDepth * (0.5 + elev)
	}

	rng := entropy.New(uint64(cfg.Seed) + 100)
	placeRivers(g, cfg.Rivers, rng)
	markNearestRiver(g)
	placeReservoirs(g, cfg.Reservoirs, cfg.CommandRadius)
	return g, nil
}

// placeRivers traces n rivers from randomly chosen highland cells.
func placeRivers(g *Grid, n int, rng *entropy.Source) {
	order := make([]int, g.Cells())
	for c := range order {
		order[c] = c
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case g.Elevation[a] > g.Elevation[b]:
			return -1
		case g.Elevation[a] < g.Elevation[b]:
			return 1
		}
		return 0
	})
	// Sources are drawn from the highest quarter of the basin.
	highland := order[:max(len(order)/4, 1)]
	for _, k := range rng.Perm(len(highland))[:min(n, len(highland))] {
		traceRiver(g, highland[k])
	}
}

// traceRiver follows the steepest descent from start until it leaves the
// basin through row 0, joins another river or reaches a pit.
func traceRiver(g *Grid, start int) {
	current := start
	for step := 0; step < g.Width+g.Height*2; step++ {
		if g.River[current] && current != start {
			return
		}
		g.River[current] = true
		if _, y := g.Coords(current); y == 0 {
			return
		}

		best := -1
		bestElev := g.Elevation[current]
		for _, nb := range g.Neighbors(current) {
			if g.Elevation[nb] < bestElev {
				best, bestElev = nb, g.Elevation[nb]
			}
		}
		if best < 0 {
			// A pit: keep flowing straight towards the outlet.
			x, y := g.Coords(current)
			best = g.Index(x, y-1)
		}
		current = best
	}
}

// markNearestRiver stores for every cell the closest river cell by a breadth
// first search from all river cells.
func markNearestRiver(g *Grid) {
	for c := range g.NearestRiver {
		g.NearestRiver[c] = -1
	}
	var queue []int
	for c, r := range g.River {
		if r {
			g.NearestRiver[c] = int32(c)
			queue = append(queue, c)
		}
	}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		for _, nb := range g.Neighbors(c) {
			if g.NearestRiver[nb] == -1 {
				g.NearestRiver[nb] = g.NearestRiver[c]
				queue = append(queue, nb)
			}
		}
	}
}

// placeReservoirs dams the n lowest river cells that lie at least two command
// radii apart. Cells within radius of a dam and below it form its command
// area.
func placeReservoirs(g *Grid, n, radius int) {
	var rivers []int
	for c, r := range g.River {
		if r {
			rivers = append(rivers, c)
		}
	}
	slices.SortStableFunc(rivers, func(a, b int) int {
		switch {
		case g.Elevation[a] < g.Elevation[b]:
			return -1
		case g.Elevation[a] > g.Elevation[b]:
			return 1
		}
		return 0
	})
	for _, c := range rivers {
		if len(g.Reservoirs) >= n {
			break
		}
		if tooClose(g, c, g.Reservoirs, 2*radius) {
			continue
		}
		id := int32(len(g.Reservoirs))
		g.Reservoirs = append(g.Reservoirs, int32(c))

		x, y := g.Coords(c)
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				if !g.InBounds(x+dx, y+dy) {
					continue
				}
				cell := g.Index(x+dx, y+dy)
				if g.CommandArea[cell] == -1 && g.Elevation[cell] <= g.Elevation[c]+10 {
					g.CommandArea[cell] = id
				}
			}
		}
	}
}

func tooClose(g *Grid, c int, existing []int32, minDist int) bool {
	x, y := g.Coords(c)
	for _, e := range existing {
		ex, ey := g.Coords(int(e))
		if max(abs(x-ex), abs(y-ey)) < minDist {
			return true
		}
	}
	return false
}

// octaveNoise generates fractal noise in [0, 1] by layering frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxVal
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
