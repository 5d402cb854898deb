package abstraction

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/talgya/farm-agents/internal/crops"
	"github.com/talgya/farm-agents/internal/entropy"
	"github.com/talgya/farm-agents/internal/fields"
	"github.com/talgya/farm-agents/internal/store"
)

// scene is a small landscape of one grid cell, one field per agent.
type scene struct {
	land   *fields.Land
	ix     *fields.Index
	agents Agents
	soil   *Soil
	supply Supply
}

func newScene(t *testing.T, n int) *scene {
	t.Helper()
	land, err := fields.NewLand(n)
	if err != nil {
		t.Fatalf("NewLand: %v", err)
	}
	owners := make([]int32, n)
	for f := 0; f < n; f++ {
		owners[f] = int32(f)
		land.Owner.Set(f, int32(f))
		land.Area.Set(f, 100)
		land.Crop.Set(f, 0)
		land.Age.Set(f, 5)
		land.HarvestAge.Set(f, 100)
		land.Use.Set(f, uint8(fields.NonPaddyIrrigated))
	}
	ix, err := fields.Build(owners, n)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	cal, _ := crops.NewCalendar(n, n, 1)
	deficit, _ := store.New[float64](n, n, DeficitDays, 0)

	s := &scene{
		land: land,
		ix:   ix,
		agents: Agents{
			Source:            make([]Source, n),
			WellDepth:         make([]float64, n),
			Efficiency:        make([]float64, n),
			FractionIrrigated: make([]float64, n),
			CommandArea:       make([]int32, n),
			Limit:             make([]float64, n),
			RotationYear:      make([]int32, n),
			Calendar:          cal,
			Deficit:           deficit,
		},
		soil: &Soil{
			PaddyLevel:           make([]float64, n),
			ReadilyAvailable:     make([]float64, n),
			CriticalLevel:        make([]float64, n),
			MaxWaterContent:      make([]float64, n),
			InfiltrationCapacity: make([]float64, n),
		},
		supply: Supply{
			Channel:          []float64{1e6},
			Groundwater:      []float64{0},
			GroundwaterDepth: []float64{10},
			Reservoir:        []float64{},
		},
	}
	for i := 0; i < n; i++ {
		s.agents.Source[i] = SourceCanal
		s.agents.Efficiency[i] = 1
		s.agents.FractionIrrigated[i] = 1
		s.agents.CommandArea[i] = -1
		s.agents.Limit[i] = math.NaN()
		// Dry soil: 0.3 m to field capacity.
		s.soil.ReadilyAvailable[i] = 0.2
		s.soil.CriticalLevel[i] = 0.3
		s.soil.MaxWaterContent[i] = 0.5
		s.soil.InfiltrationCapacity[i] = 1
	}
	return s
}

func (s *scene) run(t *testing.T, a *Allocator, order []int32) *Result {
	t.Helper()
	res, err := a.Abstract(10, order, s.ix, s.land, s.agents, s.soil, s.supply)
	if err != nil {
		t.Fatalf("Abstract: %v", err)
	}
	return res
}

func TestChannelSatisfiesDemand(t *testing.T) {
	s := newScene(t, 1)
	res := s.run(t, NewAllocator(0.5), []int32{0})

	if math.Abs(res.Channel[0]-30) > 1e-9 {
		t.Fatalf("channel=%v m3, want 30", res.Channel[0])
	}
	if res.Reservoir[0] != 0 || res.Groundwater[0] != 0 {
		t.Fatalf("reservoir=%v groundwater=%v, want 0", res.Reservoir[0], res.Groundwater[0])
	}
	if math.Abs(res.Withdrawal[0]-0.3) > 1e-12 || !res.HasAccess[0] {
		t.Fatalf("withdrawal=%v access=%v", res.Withdrawal[0], res.HasAccess[0])
	}
}

func TestActivationPriorityOnSharedChannel(t *testing.T) {
	for _, reserve := range []float64{0, 10} {
		s := newScene(t, 2)
		s.supply.Channel[0] = 50
		// Agent 0 needs 30 m3, agent 1 needs 50 m3.
		s.soil.ReadilyAvailable[1] = 0
		a := NewAllocator(0)
		a.MinChannelStorage = reserve

		res := s.run(t, a, []int32{0, 1})
		if math.Abs(res.Channel[0]-30) > 1e-9 {
			t.Fatalf("reserve %v: first agent got %v m3, want 30", reserve, res.Channel[0])
		}
		if want := 20 - reserve; math.Abs(res.Channel[1]-want) > 1e-9 {
			t.Fatalf("reserve %v: second agent got %v m3, want %v", reserve, res.Channel[1], want)
		}
		if math.Abs(s.supply.Channel[0]-reserve) > 1e-9 {
			t.Fatalf("channel left %v, want %v", s.supply.Channel[0], reserve)
		}

		// Reversing the order reverses the advantage.
		s = newScene(t, 2)
		s.supply.Channel[0] = 50
		s.soil.ReadilyAvailable[1] = 0
		res = s.run(t, a, []int32{1, 0})
		if math.Abs(res.Channel[1]-(50-reserve)) > 1e-9 || res.Channel[0] != 0 {
			t.Fatalf("reversed: got %v/%v", res.Channel[0], res.Channel[1])
		}
	}
}

func TestPaddyAbovePondingTargetHasNoDemand(t *testing.T) {
	s := newScene(t, 1)
	s.land.Use.Set(0, uint8(fields.PaddyIrrigated))
	s.soil.PaddyLevel[0] = 0.08
	res := s.run(t, NewAllocator(0.5), []int32{0})
	if res.Withdrawal[0] != 0 || res.Channel[0] != 0 {
		t.Fatalf("withdrawal=%v, want 0", res.Withdrawal[0])
	}

	s.soil.PaddyLevel[0] = 0.01
	res = s.run(t, NewAllocator(0.5), []int32{0})
	if math.Abs(res.Withdrawal[0]-0.04) > 1e-12 {
		t.Fatalf("withdrawal=%v, want 0.04", res.Withdrawal[0])
	}
}

func TestLossSplitsIntoReturnFlowAndEvaporation(t *testing.T) {
	s := newScene(t, 1)
	s.agents.Efficiency[0] = 0.5
	res := s.run(t, NewAllocator(0.25), []int32{0})
	// 0.3 m consumption at 50% efficiency needs 0.6 m withdrawal.
	if math.Abs(res.Withdrawal[0]-0.6) > 1e-12 || math.Abs(res.Consumption[0]-0.3) > 1e-12 {
		t.Fatalf("withdrawal=%v consumption=%v", res.Withdrawal[0], res.Consumption[0])
	}
	if math.Abs(res.ReturnFlow[0]-0.075) > 1e-12 || math.Abs(res.Evaporation[0]-0.225) > 1e-12 {
		t.Fatalf("return=%v evaporation=%v", res.ReturnFlow[0], res.Evaporation[0])
	}
}

func TestSourcesInPriorityOrder(t *testing.T) {
	s := newScene(t, 1)
	s.supply.Channel[0] = 110 // 10 m3 above the reserve
	s.supply.Reservoir = []float64{5}
	s.land.CommandArea.Set(0, 0)
	s.agents.CommandArea = CommandAreas(s.ix, s.land)
	res := s.run(t, NewAllocator(0.5), []int32{0})
	if math.Abs(res.Channel[0]-10) > 1e-9 || math.Abs(res.Reservoir[0]-5) > 1e-9 {
		t.Fatalf("channel=%v reservoir=%v, want 10/5", res.Channel[0], res.Reservoir[0])
	}
	if res.Groundwater[0] != 0 {
		t.Fatalf("canal agent used groundwater")
	}
}

func TestRoundingNeverReversesAbstraction(t *testing.T) {
	for _, channel := range []float64{1e6, 100.5} {
		s := newScene(t, 1)
		s.land.Area.Set(0, 3)
		s.agents.Efficiency[0] = 0.7
		s.soil.ReadilyAvailable[0] = 0.23
		s.supply.Channel[0] = channel
		s.supply.Reservoir = []float64{1e6}
		s.land.CommandArea.Set(0, 0)
		s.agents.CommandArea = CommandAreas(s.ix, s.land)

		res := s.run(t, NewAllocator(0.5), []int32{0})
		if res.Channel[0] < 0 || res.Reservoir[0] < 0 {
			t.Fatalf("channel %v: negative take channel=%v reservoir=%v", channel, res.Channel[0], res.Reservoir[0])
		}
		if s.supply.Reservoir[0] > 1e6 {
			t.Fatalf("channel %v: reservoir grew to %v", channel, s.supply.Reservoir[0])
		}
		if got := res.Channel[0] + res.Reservoir[0]; math.Abs(got-res.Withdrawal[0]*3) > 1e-9 {
			t.Fatalf("channel %v: took %v m3, booked %v m", channel, got, res.Withdrawal[0])
		}
	}
}

func TestWellReachesWaterTable(t *testing.T) {
	s := newScene(t, 1)
	s.agents.Source[0] = SourceWell
	s.supply.Groundwater[0] = 1000
	s.agents.WellDepth[0] = 5 // water table at 10 m
	res := s.run(t, NewAllocator(0.5), []int32{0})
	if res.HasAccess[0] || res.Groundwater[0] != 0 {
		t.Fatalf("shallow well abstracted %v", res.Groundwater[0])
	}

	s.agents.WellDepth[0] = 20
	res = s.run(t, NewAllocator(0.5), []int32{0})
	if math.Abs(res.Groundwater[0]-30) > 1e-9 || res.Channel[0] != 0 {
		t.Fatalf("groundwater=%v channel=%v", res.Groundwater[0], res.Channel[0])
	}
}

func TestLimitShrinksDemandAndDrawsDown(t *testing.T) {
	s := newScene(t, 1)
	s.agents.Limit[0] = 20
	s.agents.Calendar.SetSlot(0, 0, crops.Slot{Crop: 0, StartDay: 0, GrowthLength: 100, RotationYear: 0})
	// One m3 of deficit per day.
	for d := 0; d < DeficitDays; d++ {
		s.agents.Deficit.SetAt(0, d, float64(d))
	}

	future, err := FutureDeficit(0, 10, s.agents.Deficit, s.agents.Calendar, 0, 30)
	if err != nil {
		t.Fatalf("FutureDeficit: %v", err)
	}
	// today 30 + deficit[100] - deficit[11] = 30 + 100 - 11
	if want := 30.0 + 100 - 11; math.Abs(future-want) > 1e-9 {
		t.Fatalf("future deficit=%v, want %v", future, want)
	}

	res := s.run(t, NewAllocator(0.5), []int32{0})
	want := 30 * 20 / future
	if math.Abs(res.Channel[0]-want) > 1e-9 {
		t.Fatalf("abstracted %v, want %v", res.Channel[0], want)
	}
	if math.Abs(s.agents.Limit[0]-(20-want)) > 1e-9 {
		t.Fatalf("remaining limit %v, want %v", s.agents.Limit[0], 20-want)
	}

	s.agents.Limit[0] = -1
	res = s.run(t, NewAllocator(0.5), []int32{0})
	if res.Channel[0] != 0 {
		t.Fatalf("spent limit still abstracted %v", res.Channel[0])
	}
}

func TestFutureDeficitWrapsYearEnd(t *testing.T) {
	cal, _ := crops.NewCalendar(1, 1, 1)
	cal.SetSlot(0, 0, crops.Slot{Crop: 0, StartDay: 300, GrowthLength: 100, RotationYear: 0})
	deficit, _ := store.New[float64](1, 1, DeficitDays, 0)
	for d := 0; d < DeficitDays; d++ {
		deficit.SetAt(0, d, float64(d))
	}
	// Day 10: the window from last year continues to day 400 % 366 = 34.
	got, err := FutureDeficit(0, 10, deficit, cal, 0, 0)
	if err != nil {
		t.Fatalf("FutureDeficit: %v", err)
	}
	want := float64(365-300) + float64(34-11)
	if got != want {
		t.Fatalf("future deficit=%v, want %v", got, want)
	}
	if got, _ := FutureDeficit(0, 365, deficit, cal, 0, 7); got != 7 {
		t.Fatalf("last day future deficit=%v, want 7", got)
	}
}

func TestFallowAgentIsSkipped(t *testing.T) {
	s := newScene(t, 1)
	s.land.Release(0, fields.GrasslandLike)
	s.land.Owner.Set(0, 0)
	res := s.run(t, NewAllocator(0.5), []int32{0})
	if res.HasAccess[0] || res.Withdrawal[0] != 0 {
		t.Fatalf("fallow agent abstracted")
	}
}

func TestDeterministicActivationOrder(t *testing.T) {
	elevation := []float64{5, 9, 5, 5, 1, 9, 5}
	a := &ActivationOrder{Fixed: true, Seed: 42}
	b := &ActivationOrder{Fixed: true, Seed: 42}
	oa, err := a.Order(elevation, entropy.New(1))
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	ob, err := b.Order(elevation, entropy.New(2))
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if !slices.Equal(oa, ob) {
		t.Fatalf("fixed orders differ: %v vs %v", oa, ob)
	}
	for i := 1; i < len(oa); i++ {
		if elevation[oa[i]] > elevation[oa[i-1]] {
			t.Fatalf("order %v not by descending elevation", oa)
		}
	}
	seen := make(map[int32]bool)
	for _, id := range oa {
		seen[id] = true
	}
	if len(seen) != len(elevation) {
		t.Fatalf("order %v is not a permutation", oa)
	}

	// Same inputs produce identical abstraction.
	s1, s2 := newScene(t, 2), newScene(t, 2)
	s1.supply.Channel[0], s2.supply.Channel[0] = 140, 140
	o1, _ := a.Order([]float64{3, 3}, nil)
	o2, _ := b.Order([]float64{3, 3}, nil)
	r1 := s1.run(t, NewAllocator(0.5), o1)
	r2 := s2.run(t, NewAllocator(0.5), o2)
	if !slices.Equal(r1.Channel, r2.Channel) || !slices.Equal(r1.Withdrawal, r2.Withdrawal) {
		t.Fatalf("abstraction differs: %v vs %v", r1.Channel, r2.Channel)
	}
}

func TestBalanceCheckCatchesLeak(t *testing.T) {
	s := newScene(t, 1)
	pre := s.supply.clone()
	res := s.run(t, NewAllocator(0.5), []int32{0})
	res.Channel[0] += 1
	err := CheckBalance(res, s.land, pre, s.supply, nil, nil)
	var inv *InvariantError
	if !errors.As(err, &inv) || inv.Check != "withdrawal by agent" {
		t.Fatalf("err=%v, want withdrawal by agent violation", err)
	}
}

func TestAddDeficit(t *testing.T) {
	d, _ := store.New[float64](1, 1, DeficitDays, 0)
	AddDeficit(d, []float64{2}, 1, false)
	AddDeficit(d, []float64{3}, 2, false)
	if d.At(0, 1) != 5 {
		t.Fatalf("cumulative=%v, want 5", d.At(0, 1))
	}
	for day := 3; day <= 365; day++ {
		AddDeficit(d, []float64{1}, day, false)
	}
	if d.At(0, 365) != d.At(0, 364) {
		t.Fatalf("virtual day 366 = %v, want %v", d.At(0, 365), d.At(0, 364))
	}
}
