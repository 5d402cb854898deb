package world

import "fmt"

// Grid is a square raster of grid cells covering the basin. Cell c sits at
// column c%Width and row c/Width.
type Grid struct {
	Width    int
	Height   int
	CellSize float64 // m

	Elevation          []float64 // m
	Wetness            []float64 // rainfall multiplier around 1
	River              []bool
	NearestRiver       []int32 // closest river cell
	CommandArea        []int32 // reservoir command area, -1 outside
	Reservoirs         []int32 // cell of each reservoir, indexed by command area
	AquiferClass       []int32
	SaturatedThickness []float64 // m
	GroundwaterDepth   []float64 // initial depth of the water table, m
}

// NewGrid allocates an empty grid.
func NewGrid(width, height int, cellSize float64) *Grid {
	n := width * height
	g := &Grid{
		Width:              width,
		Height:             height,
		CellSize:           cellSize,
		Elevation:          make([]float64, n),
		Wetness:            make([]float64, n),
		River:              make([]bool, n),
		NearestRiver:       make([]int32, n),
		CommandArea:        make([]int32, n),
		AquiferClass:       make([]int32, n),
		SaturatedThickness: make([]float64, n),
		GroundwaterDepth:   make([]float64, n),
	}
	for c := range g.CommandArea {
		g.CommandArea[c] = -1
	}
	return g
}

// Cells returns the number of cells.
func (g *Grid) Cells() int { return g.Width * g.Height }

// Index returns the cell at column x, row y.
func (g *Grid) Index(x, y int) int { return y*g.Width + x }

// Coords returns the column and row of cell c.
func (g *Grid) Coords(c int) (x, y int) { return c % g.Width, c / g.Width }

// InBounds reports whether column x, row y lies on the grid.
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.Width && y >= 0 && y < g.Height
}

// Center returns the position of the centre of cell c in metres.
func (g *Grid) Center(c int) (x, y float64) {
	cx, cy := g.Coords(c)
	return (float64(cx) + 0.5) * g.CellSize, (float64(cy) + 0.5) * g.CellSize
}

// Neighbors returns the up to eight cells around c.
func (g *Grid) Neighbors(c int) []int {
	x, y := g.Coords(c)
	out := make([]int, 0, 8)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if (dx != 0 || dy != 0) && g.InBounds(x+dx, y+dy) {
				out = append(out, g.Index(x+dx, y+dy))
			}
		}
	}
	return out
}

// CellArea returns the area of one cell, m2.
func (g *Grid) CellArea() float64 { return g.CellSize * g.CellSize }

// String returns a summary of the grid.
func (g *Grid) String() string {
	rivers := 0
	for _, r := range g.River {
		if r {
			rivers++
		}
	}
	return fmt.Sprintf("Grid(%dx%d, %gm cells, %d river cells, %d reservoirs)", g.Width, g.Height, g.CellSize, rivers, len(g.Reservoirs))
}
