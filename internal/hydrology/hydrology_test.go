package hydrology

import (
	"math"
	"testing"
	"time"

	"github.com/talgya/farm-agents/internal/abstraction"
	"github.com/talgya/farm-agents/internal/fields"
	"github.com/talgya/farm-agents/internal/weather"
)

// twoCellBasin has one river cell with a reservoir and one dry cell, each
// holding one 100 m2 field.
func twoCellBasin(t *testing.T, cfg Config) (*Model, *fields.Land) {
	t.Helper()
	land, err := fields.NewLand(2)
	if err != nil {
		t.Fatalf("NewLand: %v", err)
	}
	for f := 0; f < 2; f++ {
		land.Area.Set(f, 100)
		land.Cell.Set(f, int32(f))
		land.NearestRiver.Set(f, 0)
	}
	land.CommandArea.Set(0, 0)
	m, err := New(cfg, land, Basin{
		CellArea:           1000,
		GroundwaterDepth:   []float64{5, 10},
		SaturatedThickness: []float64{20, 20},
		NearestRiver:       []int32{0, 0},
		Reservoirs:         []int32{0},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, land
}

func forcing(rain, et float64) *weather.Forcing {
	return &weather.Forcing{
		Date:          time.Date(2000, time.June, 1, 0, 0, 0, 0, time.UTC),
		Precipitation: []float64{rain, rain},
		ReferenceET:   []float64{et, et},
		SPEI:          []float64{0, 0},
	}
}

func TestBeginReportsSoilAndPools(t *testing.T) {
	cfg := DefaultConfig()
	m, _ := twoCellBasin(t, cfg)
	soil, supply := m.Begin(forcing(0, 0))
	wantRAW := cfg.InitialMoisture*cfg.FieldCapacity - cfg.WiltingPoint
	if math.Abs(soil.ReadilyAvailable[1]-wantRAW) > 1e-12 {
		t.Fatalf("readily available=%v, want %v", soil.ReadilyAvailable[1], wantRAW)
	}
	if soil.MaxWaterContent[0] != cfg.FieldCapacity-cfg.WiltingPoint {
		t.Fatalf("max water content=%v", soil.MaxWaterContent[0])
	}
	if supply.Channel[0] != cfg.BaseflowPerCell || supply.Channel[1] != 0 {
		t.Fatalf("channel=%v", supply.Channel)
	}
	if supply.GroundwaterDepth[0] != 5 || supply.GroundwaterDepth[1] != 10 {
		t.Fatalf("groundwater depth=%v", supply.GroundwaterDepth)
	}
	if supply.Reservoir[0] != cfg.ReservoirInitial*cfg.ReservoirCapacity {
		t.Fatalf("reservoir=%v", supply.Reservoir)
	}
}

func TestHeavyRainRunsOff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseflowPerCell = 0
	m, _ := twoCellBasin(t, cfg)
	_, supply := m.Begin(forcing(0.2, 0))
	// 0.05 m infiltrates into soil that still has room and 0.15 m runs off
	// each 100 m2 field.
	want := 2 * 0.15 * 100 * cfg.RunoffToChannel
	if math.Abs(supply.Channel[0]-want) > 1e-9 {
		t.Fatalf("channel=%v, want %v", supply.Channel[0], want)
	}
}

func TestEvapotranspirationStress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialMoisture = 1
	m, land := twoCellBasin(t, cfg)
	land.Crop.Set(0, 0)
	land.Crop.Set(1, 0)
	fc := forcing(0, 0.01)
	m.Begin(fc)
	actual, potential := m.End(nil, fc)
	if potential[0] != cfg.CropCoefficient*0.01 {
		t.Fatalf("potential=%v", potential[0])
	}
	if actual[0] != potential[0] {
		t.Fatalf("unstressed actual=%v, want %v", actual[0], potential[0])
	}

	// Drain the soil to the wilting point: no more evapotranspiration.
	m.moisture.Fill(cfg.WiltingPoint)
	m.Begin(fc)
	actual, _ = m.End(nil, fc)
	if actual[0] != 0 || actual[1] != 0 {
		t.Fatalf("actual ET at wilting point=%v", actual)
	}
}

func TestPumpingLowersWaterTable(t *testing.T) {
	cfg := DefaultConfig()
	m, land := twoCellBasin(t, cfg)
	fc := forcing(0, 0)
	_, supply := m.Begin(fc)
	// One metre of water table over the 1000 m2 cell.
	supply.Groundwater[1] -= cfg.SpecificYield * 1000
	res := &abstraction.Result{
		Withdrawal:  make([]float64, land.N()),
		Consumption: make([]float64, land.N()),
		ReturnFlow:  make([]float64, land.N()),
		Evaporation: make([]float64, land.N()),
	}
	m.End(res, fc)
	if got := m.depth.Get(1); math.Abs(got-11) > 1e-9 {
		t.Fatalf("groundwater depth=%v, want 11", got)
	}

	_, supply = m.Begin(fc)
	if supply.GroundwaterDepth[1] != m.depth.Get(1) {
		t.Fatal("supply does not alias the model depth")
	}
}

func TestIrrigationWetsSoil(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialMoisture = 0.5
	m, land := twoCellBasin(t, cfg)
	fc := forcing(0, 0)
	m.Begin(fc)
	res := &abstraction.Result{
		Withdrawal:  []float64{0, 0.04},
		Consumption: []float64{0, 0.03},
		ReturnFlow:  []float64{0, 0.01},
		Evaporation: make([]float64, land.N()),
	}
	m.End(res, fc)
	if got := m.moisture.Get(1); math.Abs(got-(0.15+0.03)) > 1e-12 {
		t.Fatalf("moisture=%v, want 0.18", got)
	}
	// The return flow of 0.01 m over 100 m2 recharges the aquifer.
	if got := m.groundwater.Get(1); math.Abs(got-2001) > 1e-9 {
		t.Fatalf("groundwater=%v, want 2001", got)
	}
}

func TestReservoirCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReservoirInitial = 1
	cfg.ReservoirRelease = 0
	m, _ := twoCellBasin(t, cfg)
	fc := forcing(0, 0)
	for d := 0; d < 5; d++ {
		m.Begin(fc)
		m.End(nil, fc)
	}
	if got := m.reservoir.Get(0); got > cfg.ReservoirCapacity+1e-6 {
		t.Fatalf("reservoir=%v above capacity", got)
	}
}

func TestNewRejectsForeignFields(t *testing.T) {
	land, _ := fields.NewLand(1)
	land.Cell.Set(0, 3)
	_, err := New(DefaultConfig(), land, Basin{
		CellArea:           1,
		GroundwaterDepth:   []float64{1},
		SaturatedThickness: []float64{1},
		NearestRiver:       []int32{0},
	})
	if err == nil {
		t.Fatal("expected error for a field outside the basin")
	}
}
