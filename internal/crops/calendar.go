package crops

import (
	"fmt"

	"github.com/talgya/farm-agents/internal/store"
)

// Slot is one entry of a crop calendar. Crop -1 marks an empty slot.
type Slot struct {
	Crop         int32
	StartDay     int32 // 0-based day of year
	GrowthLength int32 // days
	RotationYear int32
}

// Empty reports whether the slot holds no crop.
func (s Slot) Empty() bool { return s.Crop == -1 }

// EmptySlot is the value of an unused calendar entry.
var EmptySlot = Slot{Crop: -1, StartDay: -1, GrowthLength: -1, RotationYear: -1}

const slotWidth = 4

// Calendar holds one crop calendar per agent, each up to Depth slots.
type Calendar struct {
	*store.Array[int32]
}

// NewCalendar allocates calendars of depth slots for n agents with capacity maxN.
func NewCalendar(n, maxN, depth int) (*Calendar, error) {
	a, err := store.New[int32](n, maxN, depth*slotWidth, -1)
	if err != nil {
		return nil, err
	}
	return &Calendar{Array: a}, nil
}

// Depth returns the number of slots per agent.
func (c *Calendar) Depth() int { return c.Width() / slotWidth }

// Slot returns slot k of agent i.
func (c *Calendar) Slot(i, k int) Slot {
	row := c.Row(i)[k*slotWidth : (k+1)*slotWidth]
	return Slot{Crop: row[0], StartDay: row[1], GrowthLength: row[2], RotationYear: row[3]}
}

// SetSlot stores slot k of agent i.
func (c *Calendar) SetSlot(i, k int, s Slot) {
	row := c.Row(i)[k*slotWidth : (k+1)*slotWidth]
	row[0], row[1], row[2], row[3] = s.Crop, s.StartDay, s.GrowthLength, s.RotationYear
}

// Slots returns every non-empty slot of agent i.
func (c *Calendar) Slots(i int) []Slot {
	var out []Slot
	for k := 0; k < c.Depth(); k++ {
		if s := c.Slot(i, k); !s.Empty() {
			out = append(out, s)
		}
	}
	return out
}

// Crops returns the crop id of every slot of agent i, including empty slots.
func (c *Calendar) Crops(i int) []int32 {
	out := make([]int32, c.Depth())
	for k := range out {
		out[k] = c.Slot(i, k).Crop
	}
	return out
}

// Validate checks the calendar of agent i against the crop table and the
// agent's rotation length.
func (c *Calendar) Validate(i int, table Table, rotationYears int32) error {
	if rotationYears < 1 {
		return fmt.Errorf("%w: agent %d rotation length %d", ErrCalendar, i, rotationYears)
	}
	for k := 0; k < c.Depth(); k++ {
		s := c.Slot(i, k)
		if s.Empty() {
			continue
		}
		if _, err := table.Get(s.Crop); err != nil {
			return fmt.Errorf("agent %d slot %d: %w", i, k, err)
		}
		switch {
		case s.StartDay < 0 || s.StartDay > 365:
			return fmt.Errorf("%w: agent %d slot %d start day %d", ErrCalendar, i, k, s.StartDay)
		case s.GrowthLength <= 0:
			return fmt.Errorf("%w: agent %d slot %d growth length %d", ErrCalendar, i, k, s.GrowthLength)
		case s.RotationYear < 0 || s.RotationYear >= rotationYears:
			return fmt.Errorf("%w: agent %d slot %d rotation year %d of %d", ErrCalendar, i, k, s.RotationYear, rotationYears)
		}
	}
	return nil
}

// AdvanceRotation moves every agent to the next year of its rotation.
func AdvanceRotation(index, years []int32) {
	for i := range index {
		index[i] = (index[i] + 1) % years[i]
	}
}
