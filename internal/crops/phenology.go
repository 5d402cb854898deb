package crops

import (
	"fmt"

	"github.com/talgya/farm-agents/internal/fields"
)

// Harvested describes one field harvested today.
type Harvested struct {
	Field      int32
	Owner      int32
	Crop       int32
	Age        int32   // days the crop grew
	Area       float64 // m2
	YieldRatio float64 // water-limited, before management
}

// Harvest harvests every field whose crop age equals its harvest age, reverts
// those fields to fallow grassland and ages every other growing field by one
// day. It fails if a growing field would exceed its harvest age.
func Harvest(land *fields.Land, model YieldModel) ([]Harvested, error) {
	crop := land.Crop.Data()
	age := land.Age.Data()
	harvestAge := land.HarvestAge.Data()

	var out []Harvested
	for f := range crop {
		if age[f] < 0 {
			if crop[f] != -1 {
				return nil, fmt.Errorf("%w: field %d grows crop %d without age", fields.ErrAge, f, crop[f])
			}
			continue
		}
		if crop[f] == -1 {
			return nil, fmt.Errorf("%w: fallow field %d has age %d", fields.ErrAge, f, age[f])
		}
		if age[f] != harvestAge[f] {
			continue
		}
		out = append(out, Harvested{
			Field:      int32(f),
			Owner:      land.Owner.Get(f),
			Crop:       crop[f],
			Age:        age[f],
			Area:       land.Area.Get(f),
			YieldRatio: model.Ratio(crop[f], land.ETRatio(f)),
		})
		harvestAge[f] = -1
	}

	for _, h := range out {
		f := int(h.Field)
		land.ActualET.Set(f, 0)
		land.PotentialET.Set(f, 0)
		crop[f] = -1
		age[f] = -1
		land.Use.Set(f, uint8(fields.GrasslandLike))
	}
	for f := range crop {
		if crop[f] >= 0 {
			age[f]++
		}
	}
	return out, land.CheckAges()
}

// Planting is a crop calendar slot that fires today for one agent.
type Planting struct {
	Agent int
	Slot  Slot
}

// DuePlantings returns the plantings scheduled for dayIndex (0-based) given
// each agent's current rotation year. At most one slot may fire per agent.
func DuePlantings(cal *Calendar, rotationIndex []int32, dayIndex int) ([]Planting, error) {
	var out []Planting
	for i := 0; i < cal.N(); i++ {
		fired := 0
		for k := 0; k < cal.Depth(); k++ {
			s := cal.Slot(i, k)
			if s.Empty() || int(s.StartDay) != dayIndex || s.RotationYear != rotationIndex[i] {
				continue
			}
			fired++
			if fired > 1 {
				return nil, fmt.Errorf("%w: agent %d day %d", ErrMultiplePlanting, i, dayIndex)
			}
			out = append(out, Planting{Agent: i, Slot: s})
		}
	}
	return out, nil
}

// Sow plants p on every fallow field of the agent and returns the number of
// fields planted. Fields still growing a crop are skipped. The sowing day is
// the crop's first day, so it grows for exactly GrowthLength days.
func Sow(land *fields.Land, owned []int32, p Planting, table Table) int {
	use := fields.NonPaddyIrrigated
	if table.IsPaddy(p.Slot.Crop) {
		use = fields.PaddyIrrigated
	}
	planted := 0
	for _, f32 := range owned {
		f := int(f32)
		if land.HarvestAge.Get(f) != -1 {
			continue
		}
		land.Crop.Set(f, p.Slot.Crop)
		land.HarvestAge.Set(f, p.Slot.GrowthLength)
		land.Age.Set(f, 1)
		land.Use.Set(f, uint8(use))
		land.ActualET.Set(f, 0)
		land.PotentialET.Set(f, 0)
		planted++
	}
	return planted
}
