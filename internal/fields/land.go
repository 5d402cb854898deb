// Package fields holds the state of the land: hydrological response units
// ("fields"), their ownership and crops, and the index from agents to the
// fields they own.
package fields

import (
	"fmt"
	"math"

	"github.com/talgya/farm-agents/internal/store"
)

// Unowned marks a field without an owner and a fallow crop slot.
const Unowned = -1

// LandUse is the land cover class of a field.
type LandUse uint8

const (
	Forest LandUse = iota
	GrasslandLike
	PaddyIrrigated
	NonPaddyIrrigated
	Sealed
	Water
)

func (u LandUse) String() string {
	switch u {
	case Forest:
		return "forest"
	case GrasslandLike:
		return "grassland"
	case PaddyIrrigated:
		return "paddy"
	case NonPaddyIrrigated:
		return "non-paddy"
	case Sealed:
		return "sealed"
	case Water:
		return "water"
	}
	return fmt.Sprintf("land-use(%d)", uint8(u))
}

// Land is the per-field state. The number of fields is fixed for a run, so
// every array has n == max_n.
type Land struct {
	Owner        *store.Array[int32]   // owning agent, or Unowned
	Crop         *store.Array[int32]   // crop id, or -1 when fallow
	Age          *store.Array[int32]   // days since planting, -1 when fallow
	HarvestAge   *store.Array[int32]   // age at which the crop is harvested, -1 when fallow
	Use          *store.Array[uint8]   // LandUse
	Area         *store.Array[float64] // m2
	Cell         *store.Array[int32]   // grid cell supplying groundwater
	NearestRiver *store.Array[int32]   // grid cell supplying channel water
	CommandArea  *store.Array[int32]   // reservoir command area, -1 outside
	ActualET     *store.Array[float64] // m, accumulated since planting
	PotentialET  *store.Array[float64] // m, accumulated since planting

	bucket *store.Bucket
}

// NewLand allocates n fields, all unowned and fallow.
func NewLand(n int) (*Land, error) {
	l := &Land{}
	var err error
	i32 := func(fill int32) *store.Array[int32] {
		if err != nil {
			return nil
		}
		var a *store.Array[int32]
		a, err = store.New(n, n, 1, fill)
		return a
	}
	f64 := func(fill float64) *store.Array[float64] {
		if err != nil {
			return nil
		}
		var a *store.Array[float64]
		a, err = store.New(n, n, 1, fill)
		return a
	}
	l.Owner = i32(Unowned)
	l.Crop = i32(-1)
	l.Age = i32(-1)
	l.HarvestAge = i32(-1)
	l.Cell = i32(0)
	l.NearestRiver = i32(0)
	l.CommandArea = i32(-1)
	l.Area = f64(0)
	l.ActualET = f64(0)
	l.PotentialET = f64(0)
	if err != nil {
		return nil, fmt.Errorf("allocate land: %w", err)
	}
	if l.Use, err = store.New(n, n, 1, uint8(GrasslandLike)); err != nil {
		return nil, fmt.Errorf("allocate land: %w", err)
	}

	l.bucket = store.NewBucket("land")
	for _, c := range []struct {
		name string
		col  store.Column
	}{
		{"land_owners", l.Owner},
		{"crop_map", l.Crop},
		{"crop_age_days_map", l.Age},
		{"crop_harvest_age_days", l.HarvestAge},
		{"land_use_type", l.Use},
		{"cell_area", l.Area},
		{"grid_cell", l.Cell},
		{"nearest_river_cell", l.NearestRiver},
		{"reservoir_command_areas", l.CommandArea},
		{"actual_evapotranspiration_crop_life", l.ActualET},
		{"potential_evapotranspiration_crop_life", l.PotentialET},
	} {
		if err := l.bucket.Add(c.name, c.col); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// N returns the number of fields.
func (l *Land) N() int { return l.Owner.N() }

// Bucket returns the checkpoint bucket holding every land attribute.
func (l *Land) Bucket() *store.Bucket { return l.bucket }

// Growing reports whether field f carries a crop.
func (l *Land) Growing(f int) bool { return l.Crop.Get(f) != -1 }

// Paddy reports whether field f is paddy irrigated.
func (l *Land) Paddy(f int) bool { return LandUse(l.Use.Get(f)) == PaddyIrrigated }

// Release disowns field f, clears its crop and sets its land use.
func (l *Land) Release(f int, use LandUse) {
	l.Owner.Set(f, Unowned)
	l.Crop.Set(f, -1)
	l.Age.Set(f, -1)
	l.HarvestAge.Set(f, -1)
	l.Use.Set(f, uint8(use))
	l.ActualET.Set(f, 0)
	l.PotentialET.Set(f, 0)
}

// CheckOwners verifies that every owner is Unowned or a live agent below n.
func (l *Land) CheckOwners(n int) error {
	for f, o := range l.Owner.Data() {
		if o != Unowned && (o < 0 || int(o) >= n) {
			return fmt.Errorf("%w: field %d owned by %d, population %d", ErrOwner, f, o, n)
		}
	}
	return nil
}

// CheckAges verifies 0 <= age <= harvest age on every growing field.
func (l *Land) CheckAges() error {
	crops := l.Crop.Data()
	ages := l.Age.Data()
	harvest := l.HarvestAge.Data()
	for f := range crops {
		if crops[f] == -1 {
			continue
		}
		if ages[f] < 0 || ages[f] > harvest[f] {
			return fmt.Errorf("%w: field %d age %d harvest age %d", ErrAge, f, ages[f], harvest[f])
		}
	}
	return nil
}

// AreaOf returns the total area of the given fields.
func (l *Land) AreaOf(fields []int32) float64 {
	var a float64
	for _, f := range fields {
		a += l.Area.Get(int(f))
	}
	return a
}

// ETRatio returns actual / potential evapotranspiration accumulated on field f.
// A field without potential demand is unstressed.
func (l *Land) ETRatio(f int) float64 {
	pot := l.PotentialET.Get(f)
	if pot <= 0 || math.IsNaN(pot) {
		return 1
	}
	r := l.ActualET.Get(f) / pot
	if r > 1 {
		r = 1
	}
	return r
}
