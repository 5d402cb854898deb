package farmers

import (
	"fmt"
	"math"

	"github.com/talgya/farm-agents/internal/abstraction"
	"github.com/talgya/farm-agents/internal/crops"
	"github.com/talgya/farm-agents/internal/decision"
	"github.com/talgya/farm-agents/internal/fields"
)

// AgentSpec describes a new agent.
type AgentSpec struct {
	Fields        []int32
	Region        int32
	X, Y          float64
	Elevation     float64
	Source        abstraction.Source
	Calendar      []crops.Slot
	RotationYears int32
	Drought       decision.GEV // distribution of the growing season SPEI
}

// Populate appends every spec to the population and builds the field index,
// command areas and social network once for the whole batch.
func (f *Farmers) Populate(specs []AgentSpec) error {
	n := f.N()
	if err := f.bucket.SetN(n + len(specs)); err != nil {
		return fmt.Errorf("populate: %w", err)
	}
	if err := f.networkBucket.SetN(n + len(specs)); err != nil {
		return fmt.Errorf("populate: %w", err)
	}
	for k, s := range specs {
		if err := f.initAgent(n+k, s); err != nil {
			return err
		}
	}
	if err := f.reindex(); err != nil {
		return err
	}
	if f.p.SocialSize > 0 {
		if err := f.Network.Build(f.X.Data(), f.Y.Data(), f.p.SocialRadius, f.rng); err != nil {
			return err
		}
	}
	return nil
}

// Add appends one agent and links it into the social network. It returns the
// new agent id.
func (f *Farmers) Add(s AgentSpec) (int, error) {
	i := f.N()
	if err := f.bucket.SetN(i + 1); err != nil {
		return 0, fmt.Errorf("add agent: %w", err)
	}
	if _, err := f.Network.Add(nil); err != nil {
		return 0, fmt.Errorf("add agent: %w", err)
	}
	if err := f.initAgent(i, s); err != nil {
		return 0, err
	}
	if err := f.reindex(); err != nil {
		return 0, err
	}
	if f.p.SocialSize > 0 {
		f.Network.Connect(i, f.X.Data(), f.Y.Data(), f.p.SocialRadius, f.rng)
	}
	return i, nil
}

// Remove drops agent i. Its fields are disowned and revert to use; the last
// agent takes its place and keeps its fields under the new id. It returns the
// fields that were released.
func (f *Farmers) Remove(i int, use fields.LandUse) ([]int32, error) {
	n := f.N()
	if i < 0 || i >= n {
		return nil, fmt.Errorf("remove agent %d: population %d", i, n)
	}
	released := append([]int32(nil), f.Index.Fields(i)...)
	for _, fld := range released {
		f.land.Release(int(fld), use)
	}
	last := n - 1
	if i != last {
		f.bucket.CopyRow(i, last)
		for _, fld := range f.Index.Fields(last) {
			f.land.Owner.Set(int(fld), int32(i))
		}
	}
	if err := f.bucket.SetN(last); err != nil {
		return nil, err
	}
	if err := f.Network.Remove(i, last); err != nil {
		return nil, err
	}
	if err := f.reindex(); err != nil {
		return nil, err
	}
	f.emit(Event{Agent: i, Kind: EventRemoval, Detail: fmt.Sprintf("released %d fields", len(released))})
	return released, nil
}

// reindex rebuilds everything derived from field ownership.
func (f *Farmers) reindex() error {
	if err := f.Index.Rebuild(f.land.Owner.Data(), f.N()); err != nil {
		return err
	}
	f.commandArea = abstraction.CommandAreas(f.Index, f.land)
	f.order.Reset()
	f.groups = nil
	return nil
}

func (f *Farmers) initAgent(i int, s AgentSpec) error {
	for _, fld := range s.Fields {
		if int(fld) < 0 || int(fld) >= f.land.N() {
			return fmt.Errorf("agent %d: field %d outside %d fields", i, fld, f.land.N())
		}
		if o := f.land.Owner.Get(int(fld)); o != fields.Unowned {
			return fmt.Errorf("%w: field %d already owned by %d", fields.ErrOwner, fld, o)
		}
		f.land.Owner.Set(int(fld), int32(i))
	}
	if len(s.Calendar) > f.Calendar.Depth() {
		return fmt.Errorf("%w: agent %d has %d slots, depth %d", crops.ErrCalendar, i, len(s.Calendar), f.Calendar.Depth())
	}
	for k := 0; k < f.Calendar.Depth(); k++ {
		slot := crops.EmptySlot
		if k < len(s.Calendar) {
			slot = s.Calendar[k]
		}
		f.Calendar.SetSlot(i, k, slot)
	}
	if s.RotationYears < 1 {
		s.RotationYears = 1
	}
	if err := f.Calendar.Validate(i, f.table, s.RotationYears); err != nil {
		return err
	}
	if s.Drought.Scale <= 0 {
		return fmt.Errorf("agent %d: drought distribution scale %g", i, s.Drought.Scale)
	}

	f.Region.Set(i, s.Region)
	f.X.Set(i, s.X)
	f.Y.Set(i, s.Y)
	f.Elevation.Set(i, s.Elevation)
	f.Source.Set(i, s.Source)
	f.RotationYears.Set(i, s.RotationYears)
	f.RotationIndex.Set(i, 0)
	f.GEVShape.Set(i, s.Drought.C)
	f.GEVLoc.Set(i, s.Drought.Loc)
	f.GEVScale.Set(i, s.Drought.Scale)
	f.RiskAversion.Set(i, f.p.RiskAversionMean+f.p.RiskAversionSD*f.rng.Normal())
	f.DiscountRate.Set(i, math.Max(f.p.DiscountRateMean+f.p.DiscountRateSD*f.rng.Normal(), 0))
	return nil
}

// drought returns the drought distribution of agent i.
func (f *Farmers) drought(i int) decision.GEV {
	return decision.GEV{C: f.GEVShape.Get(i), Loc: f.GEVLoc.Get(i), Scale: f.GEVScale.Get(i)}
}
