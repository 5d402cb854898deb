// Package crops describes crop parameters, crop calendars and the phenology
// transitions of fields: planting, aging and harvest.
package crops

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnknownCrop is returned when a crop id is outside the crop table.
	ErrUnknownCrop = errors.New("crops: unknown crop")
	// ErrCalendar is returned for a malformed crop calendar entry.
	ErrCalendar = errors.New("crops: malformed crop calendar")
	// ErrMultiplePlanting is returned when an agent would plant more than one
	// crop on the same day.
	ErrMultiplePlanting = errors.New("crops: multiple crops planted on the same day")
)

// Crop holds the parameters of one crop type.
type Crop struct {
	Name           string  `yaml:"name"`
	ReferenceYield float64 `yaml:"reference_yield_kg_m2"`
	Paddy          bool    `yaml:"is_paddy"`

	// GAEZ water stress coefficient.
	KyT float64 `yaml:"KyT"`

	// MIRCA2000 piecewise response.
	A  float64 `yaml:"a"`
	B  float64 `yaml:"b"`
	P0 float64 `yaml:"P0"`
	P1 float64 `yaml:"P1"`
}

// Table is the crop parameter table indexed by crop id.
type Table []Crop

// Get returns the crop with id c.
func (t Table) Get(c int32) (Crop, error) {
	if c < 0 || int(c) >= len(t) {
		return Crop{}, fmt.Errorf("%w: %d (table holds %d)", ErrUnknownCrop, c, len(t))
	}
	return t[c], nil
}

// IsPaddy reports whether crop c is grown as paddy. Unknown crops are not.
func (t Table) IsPaddy(c int32) bool {
	return c >= 0 && int(c) < len(t) && t[c].Paddy
}

// Validate checks every crop for usable parameters.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: empty crop table", ErrUnknownCrop)
	}
	for i, c := range t {
		if c.Name == "" {
			return fmt.Errorf("crop %d: missing name", i)
		}
		if c.ReferenceYield <= 0 || math.IsNaN(c.ReferenceYield) {
			return fmt.Errorf("crop %s: reference yield %g must be positive", c.Name, c.ReferenceYield)
		}
	}
	return nil
}

// Index returns the crop id for name.
func (t Table) Index(name string) (int32, bool) {
	for i, c := range t {
		if c.Name == name {
			return int32(i), true
		}
	}
	return -1, false
}
