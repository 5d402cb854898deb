package world

import (
	"testing"

	"github.com/talgya/farm-agents/internal/abstraction"
	"github.com/talgya/farm-agents/internal/crops"
	"github.com/talgya/farm-agents/internal/decision"
	"github.com/talgya/farm-agents/internal/entropy"
	"github.com/talgya/farm-agents/internal/fields"
)

func TestGenerateDeterministic(t *testing.T) {
	a, err := Generate(SmallTestConfig())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, _ := Generate(SmallTestConfig())
	for c := 0; c < a.Cells(); c++ {
		if a.Elevation[c] != b.Elevation[c] || a.River[c] != b.River[c] || a.CommandArea[c] != b.CommandArea[c] {
			t.Fatalf("cell %d differs between runs", c)
		}
	}
}

func TestGenerateRejectsBadConfig(t *testing.T) {
	cfg := SmallTestConfig()
	cfg.Width = 1
	if _, err := Generate(cfg); err == nil {
		t.Fatal("expected error for a one column grid")
	}
}

func TestRiversAndReservoirs(t *testing.T) {
	g, err := Generate(SmallTestConfig())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	outlet := false
	for x := 0; x < g.Width; x++ {
		if g.River[g.Index(x, 0)] {
			outlet = true
		}
	}
	if !outlet {
		t.Fatalf("no river reaches the outlet row: %s", g)
	}
	for c := 0; c < g.Cells(); c++ {
		r := g.NearestRiver[c]
		if r < 0 || !g.River[r] {
			t.Fatalf("cell %d nearest river %d is not a river cell", c, r)
		}
	}
	if len(g.Reservoirs) == 0 {
		t.Fatal("no reservoir placed")
	}
	for id, dam := range g.Reservoirs {
		if !g.River[dam] {
			t.Fatalf("reservoir %d at non-river cell %d", id, dam)
		}
		if g.CommandArea[dam] != int32(id) {
			t.Fatalf("dam cell in command area %d, want %d", g.CommandArea[dam], id)
		}
	}
}

func testRotations() []Rotation {
	return []Rotation{
		{Name: "wheat", Slots: []crops.Slot{{Crop: 0, StartDay: 300, GrowthLength: 120}}, Years: 1, Weight: 2},
		{Name: "rice", Slots: []crops.Slot{{Crop: 1, StartDay: 160, GrowthLength: 110}}, Years: 1, Weight: 1},
	}
}

func TestPlaceFarms(t *testing.T) {
	g, err := Generate(SmallTestConfig())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	droughts := make([]decision.GEV, g.Cells())
	for c := range droughts {
		droughts[c] = decision.GEV{Loc: float64(c), Scale: 1}
	}
	cfg := DefaultFarmConfig()
	cfg.FieldsPerCell = 4
	cfg.Regions = 2
	farms, err := PlaceFarms(g, cfg, testRotations(), droughts, entropy.New(3))
	if err != nil {
		t.Fatalf("PlaceFarms: %v", err)
	}
	if farms.Land.N() != g.Cells()*4 {
		t.Fatalf("fields=%d, want %d", farms.Land.N(), g.Cells()*4)
	}
	if got := farms.Land.Area.Get(0); got != g.CellArea()/4 {
		t.Fatalf("field area=%v", got)
	}
	if len(farms.Specs) == 0 {
		t.Fatal("no farms placed")
	}

	seen := map[int32]bool{}
	farmedCells := map[int32]bool{}
	for _, s := range farms.Specs {
		if len(s.Fields) == 0 || len(s.Fields) > cfg.MaxFieldsPerFarm {
			t.Fatalf("farm with %d fields", len(s.Fields))
		}
		cell := farms.Land.Cell.Get(int(s.Fields[0]))
		for _, f := range s.Fields {
			if seen[f] {
				t.Fatalf("field %d given to two farms", f)
			}
			seen[f] = true
			if farms.Land.Cell.Get(int(f)) != cell {
				t.Fatalf("farm spans cells")
			}
		}
		farmedCells[cell] = true
		if s.Region < 0 || s.Region >= 2 {
			t.Fatalf("region %d", s.Region)
		}
		if s.Drought.Loc != float64(cell) {
			t.Fatalf("drought distribution of cell %v, want %d", s.Drought.Loc, cell)
		}
		if s.Source == abstraction.SourceWell {
			t.Fatal("farm seeded with a well")
		}
		if s.Source == abstraction.SourceNone && g.CommandArea[cell] != -1 {
			t.Fatal("farm inside a command area without canal access")
		}
		if s.RotationYears != 1 || len(s.Calendar) != 1 {
			t.Fatalf("rotation %+v", s.Calendar)
		}
	}
	want := int(0.5*float64(g.Cells()) + 0.5)
	if len(farmedCells) != want {
		t.Fatalf("farmed cells=%d, want %d", len(farmedCells), want)
	}
	// Farmed cells are fully divided among farms.
	if len(seen) != want*cfg.FieldsPerCell {
		t.Fatalf("owned fields=%d, want %d", len(seen), want*cfg.FieldsPerCell)
	}
	for f := 0; f < farms.Land.N(); f++ {
		if farms.Land.Owner.Get(f) != fields.Unowned {
			t.Fatalf("field %d owned before populating", f)
		}
	}
}

func TestPlaceFarmsValidates(t *testing.T) {
	g, _ := Generate(SmallTestConfig())
	droughts := make([]decision.GEV, g.Cells())
	if _, err := PlaceFarms(g, DefaultFarmConfig(), nil, droughts, entropy.New(1)); err == nil {
		t.Fatal("expected error without rotations")
	}
	if _, err := PlaceFarms(g, DefaultFarmConfig(), testRotations(), droughts[:1], entropy.New(1)); err == nil {
		t.Fatal("expected error for missing drought distributions")
	}
}
