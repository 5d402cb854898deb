package store

// History is a per-row rolling window of yearly values. Age 0 is the most
// recent year. Shift drops the oldest year by moving a shared head pointer
// instead of copying every row.
type History struct {
	*Array[float64]
	head int
}

// NewHistory creates a rolling window of the given number of years.
func NewHistory(n, maxN, years int, fill float64) (*History, error) {
	a, err := New(n, maxN, years, fill)
	if err != nil {
		return nil, err
	}
	return &History{Array: a}, nil
}

// Years returns the window length.
func (h *History) Years() int { return h.Width() }

// Head returns the slot holding age 0. Persisted alongside the array.
func (h *History) Head() int { return h.head }

// SetHead restores the slot holding age 0 after a checkpoint load.
func (h *History) SetHead(head int) { h.head = ((head % h.Width()) + h.Width()) % h.Width() }

func (h *History) slot(age int) int {
	return (h.head + age) % h.Width()
}

// Value returns the value for row i, age years back.
func (h *History) Value(i, age int) float64 {
	return h.At(i, h.slot(age))
}

// SetValue stores the value for row i, age years back.
func (h *History) SetValue(i, age int, v float64) {
	h.SetAt(i, h.slot(age), v)
}

// Add accumulates v into the current year of row i.
func (h *History) Add(i int, v float64) {
	s := h.slot(0)
	h.SetAt(i, s, h.At(i, s)+v)
}

// Series returns row i ordered from the most recent year to the oldest.
func (h *History) Series(i int) []float64 {
	out := make([]float64, h.Width())
	for age := range out {
		out[age] = h.Value(i, age)
	}
	return out
}

// Shift drops the oldest year and writes update(i) as the new current year of
// every logical row.
func (h *History) Shift(update func(i int) float64) {
	h.head = (h.head - 1 + h.Width()) % h.Width()
	for i := 0; i < h.N(); i++ {
		h.SetAt(i, h.head, update(i))
	}
}

// ShiftReset drops the oldest year and starts a new year at zero.
func (h *History) ShiftReset() {
	h.Shift(func(int) float64 { return 0 })
}
