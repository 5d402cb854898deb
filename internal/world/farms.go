package world

import (
	"fmt"
	"math"
	"slices"

	"github.com/talgya/farm-agents/internal/abstraction"
	"github.com/talgya/farm-agents/internal/crops"
	"github.com/talgya/farm-agents/internal/decision"
	"github.com/talgya/farm-agents/internal/entropy"
	"github.com/talgya/farm-agents/internal/farmers"
	"github.com/talgya/farm-agents/internal/fields"
)

// Rotation is a crop rotation farms are seeded with.
type Rotation struct {
	Name   string
	Slots  []crops.Slot
	Years  int32
	Weight float64 // relative share of farms
}

// FarmConfig holds farm layout parameters.
type FarmConfig struct {
	FieldsPerCell    int     `yaml:"fields_per_cell"`
	FarmlandShare    float64 `yaml:"farmland_share"` // share of cells under cultivation
	MaxFieldsPerFarm int     `yaml:"max_fields_per_farm"`
	CanalDistance    int     `yaml:"canal_distance_cells"` // canal access from a river, in cells
	Regions          int     `yaml:"regions"`
}

// DefaultFarmConfig returns the reference farm layout.
func DefaultFarmConfig() FarmConfig {
	return FarmConfig{
		FieldsPerCell:    20,
		FarmlandShare:    0.5,
		MaxFieldsPerFarm: 3,
		CanalDistance:    1,
		Regions:          1,
	}
}

// Validate checks the configuration.
func (cfg FarmConfig) Validate() error {
	switch {
	case cfg.FieldsPerCell < 1 || cfg.MaxFieldsPerFarm < 1:
		return fmt.Errorf("world: %d fields per cell, %d per farm", cfg.FieldsPerCell, cfg.MaxFieldsPerFarm)
	case cfg.FarmlandShare <= 0 || cfg.FarmlandShare > 1:
		return fmt.Errorf("world: farmland share %g outside (0, 1]", cfg.FarmlandShare)
	case cfg.Regions < 1 || cfg.CanalDistance < 0:
		return fmt.Errorf("world: %d regions, canal distance %d", cfg.Regions, cfg.CanalDistance)
	}
	return nil
}

// Farms is the land of the basin and the farms to populate it with.
type Farms struct {
	Land  *fields.Land
	Specs []farmers.AgentSpec
	Cells farmers.Cells
}

// PlaceFarms splits every cell into fields, picks the most suitable cells as
// farmland and groups their fields into farms. droughts holds the drought
// distribution of every cell.
func PlaceFarms(g *Grid, cfg FarmConfig, rotations []Rotation, droughts []decision.GEV, rng *entropy.Source) (*Farms, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(rotations) == 0 {
		return nil, fmt.Errorf("world: no crop rotations")
	}
	if len(droughts) != g.Cells() {
		return nil, fmt.Errorf("world: %d drought distributions for %d cells", len(droughts), g.Cells())
	}
	var totalWeight float64
	for _, r := range rotations {
		if r.Weight < 0 {
			return nil, fmt.Errorf("world: rotation %s has weight %g", r.Name, r.Weight)
		}
		totalWeight += r.Weight
	}
	if totalWeight <= 0 {
		return nil, fmt.Errorf("world: rotation weights sum to %g", totalWeight)
	}

	land, err := fields.NewLand(g.Cells() * cfg.FieldsPerCell)
	if err != nil {
		return nil, err
	}
	fieldArea := g.CellArea() / float64(cfg.FieldsPerCell)
	for fld := 0; fld < land.N(); fld++ {
		c := fld / cfg.FieldsPerCell
		land.Area.Set(fld, fieldArea)
		land.Cell.Set(fld, int32(c))
		land.NearestRiver.Set(fld, g.NearestRiver[c])
		land.CommandArea.Set(fld, g.CommandArea[c])
	}

	type scored struct {
		cell  int
		score float64
	}
	candidates := make([]scored, g.Cells())
	for c := range candidates {
		candidates[c] = scored{c, farmScore(g, c)}
	}
	slices.SortStableFunc(candidates, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})
	farmland := candidates[:max(int(math.Round(cfg.FarmlandShare*float64(g.Cells()))), 1)]
	cells := make([]int, len(farmland))
	for k, s := range farmland {
		cells[k] = s.cell
	}
	slices.Sort(cells)

	var specs []farmers.AgentSpec
	for _, c := range cells {
		first := c * cfg.FieldsPerCell
		for fld := first; fld < first+cfg.FieldsPerCell; {
			size := min(1+rng.IntN(cfg.MaxFieldsPerFarm), first+cfg.FieldsPerCell-fld)
			owned := make([]int32, size)
			for k := range owned {
				owned[k] = int32(fld + k)
			}
			fld += size

			rot := pickRotation(rotations, totalWeight, rng)
			cx, _ := g.Coords(c)
			x, y := g.Center(c)
			specs = append(specs, farmers.AgentSpec{
				Fields:        owned,
				Region:        int32(min(cx*cfg.Regions/g.Width, cfg.Regions-1)),
				X:             x + (rng.Float()-0.5)*g.CellSize,
				Y:             y + (rng.Float()-0.5)*g.CellSize,
				Elevation:     g.Elevation[c],
				Source:        initialSource(g, c, cfg.CanalDistance),
				Calendar:      slices.Clone(rot.Slots),
				RotationYears: rot.Years,
				Drought:       droughts[c],
			})
		}
	}
	return &Farms{
		Land:  land,
		Specs: specs,
		Cells: farmers.Cells{AquiferClass: g.AquiferClass, SaturatedThickness: g.SaturatedThickness},
	}, nil
}

// farmScore rates how suitable a cell is for farming: flat land, water nearby
// and enough rain.
func farmScore(g *Grid, c int) float64 {
	var relief float64
	nbs := g.Neighbors(c)
	for _, nb := range nbs {
		relief += math.Abs(g.Elevation[nb] - g.Elevation[c])
	}
	relief /= float64(len(nbs))
	score := 3.0 / (1 + relief/10)

	if g.River[c] {
		score += 1
	} else if riverDistance(g, c) <= 2 {
		score += 0.5
	}
	if g.CommandArea[c] != -1 {
		score += 1
	}
	score += g.Wetness[c]
	return score
}

func riverDistance(g *Grid, c int) int {
	r := g.NearestRiver[c]
	if r < 0 {
		return math.MaxInt32
	}
	x, y := g.Coords(c)
	rx, ry := g.Coords(int(r))
	return max(abs(x-rx), abs(y-ry))
}

// initialSource gives canal irrigation to farms near a river or inside a
// command area. Every other farm starts rainfed.
func initialSource(g *Grid, c, canalDistance int) abstraction.Source {
	if g.CommandArea[c] != -1 || riverDistance(g, c) <= canalDistance {
		return abstraction.SourceCanal
	}
	return abstraction.SourceNone
}

func pickRotation(rotations []Rotation, total float64, rng *entropy.Source) Rotation {
	draw := rng.Float() * total
	for _, r := range rotations {
		if draw < r.Weight {
			return r
		}
		draw -= r.Weight
	}
	return rotations[len(rotations)-1]
}
