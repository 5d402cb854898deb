// Package config loads the model configuration from YAML. A file only needs
// the values it changes: Load decodes it over Default.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/talgya/farm-agents/internal/crops"
	"github.com/talgya/farm-agents/internal/economy"
	"github.com/talgya/farm-agents/internal/farmers"
	"github.com/talgya/farm-agents/internal/hydrology"
	"github.com/talgya/farm-agents/internal/store"
	"github.com/talgya/farm-agents/internal/weather"
	"github.com/talgya/farm-agents/internal/world"
)

// ErrInvalid is returned for a configuration the model cannot run with.
var ErrInvalid = errors.New("config: invalid")

// General holds the run settings.
type General struct {
	Seed               uint64  `yaml:"seed"`
	StartYear          int     `yaml:"start_year"`
	Years              int     `yaml:"years"`
	SpinupYears        int     `yaml:"spinup_years"` // leading years without decisions
	DroughtSampleYears int     `yaml:"drought_sample_years"`
	Headroom           float64 `yaml:"max_n_headroom"` // capacity as a multiple of the initial population
}

// RotationSlot is one crop of a rotation, named by crop.
type RotationSlot struct {
	Crop         string `yaml:"crop"`
	StartDay     int32  `yaml:"start_day"`
	GrowthLength int32  `yaml:"growth_length"`
	RotationYear int32  `yaml:"rotation_year"`
}

// Rotation is a crop rotation farms are seeded with.
type Rotation struct {
	Name   string         `yaml:"name"`
	Years  int32          `yaml:"years"`
	Weight float64        `yaml:"weight"`
	Slots  []RotationSlot `yaml:"slots"`
}

// Output holds where results go.
type Output struct {
	Database      string       `yaml:"database"`
	CheckpointDir string       `yaml:"checkpoint_dir"`
	Format        store.Format `yaml:"checkpoint_format"`
}

// Config is the complete model configuration.
type Config struct {
	General   General          `yaml:"general"`
	Farmers   farmers.Params   `yaml:"farmers"`
	Crops     crops.Table      `yaml:"crops"`
	Rotations []Rotation       `yaml:"rotations"`
	Economy   economy.Params   `yaml:"economy"`
	World     world.GenConfig  `yaml:"world"`
	Farms     world.FarmConfig `yaml:"farms"`
	Weather   weather.Config   `yaml:"weather"`
	Hydrology hydrology.Config `yaml:"hydrology"`
	Output    Output           `yaml:"output"`
}

// Default returns the reference configuration: a monsoon basin growing rice,
// wheat and maize.
func Default() Config {
	return Config{
		General: General{
			Seed:               42,
			StartYear:          2000,
			Years:              20,
			SpinupYears:        5,
			DroughtSampleYears: 30,
			Headroom:           1.2,
		},
		Farmers: farmers.DefaultParams(),
		Crops: crops.Table{
			{Name: "rice", ReferenceYield: 0.6, Paddy: true, KyT: 1.1, A: 0.35, B: 1.5, P0: 0.4, P1: 0.9},
			{Name: "wheat", ReferenceYield: 0.45, KyT: 1.0, A: 0.3, B: 1.4, P0: 0.35, P1: 0.85},
			{Name: "maize", ReferenceYield: 0.55, KyT: 1.25, A: 0.3, B: 1.6, P0: 0.4, P1: 0.9},
		},
		Rotations: []Rotation{
			{Name: "rice-wheat", Years: 1, Weight: 3, Slots: []RotationSlot{
				{Crop: "rice", StartDay: 160, GrowthLength: 120},
				{Crop: "wheat", StartDay: 310, GrowthLength: 140},
			}},
			{Name: "maize-wheat", Years: 1, Weight: 2, Slots: []RotationSlot{
				{Crop: "maize", StartDay: 170, GrowthLength: 110},
				{Crop: "wheat", StartDay: 310, GrowthLength: 140},
			}},
			{Name: "maize-fallow", Years: 2, Weight: 1, Slots: []RotationSlot{
				{Crop: "maize", StartDay: 170, GrowthLength: 110},
				{Crop: "wheat", StartDay: 310, GrowthLength: 140, RotationYear: 1},
			}},
		},
		Economy: economy.Params{
			Crops: []economy.CropPrices{
				{Crop: "rice", Price: []float64{0.3}, CultivationCost: []float64{0.05}},
				{Crop: "wheat", Price: []float64{0.25}, CultivationCost: []float64{0.03}},
				{Crop: "maize", Price: []float64{0.2}, CultivationCost: []float64{0.03}},
			},
			Electricity:      []float64{0.08},
			PriceVariability: 0.1,
		},
		World:     world.DefaultGenConfig(),
		Farms:     world.DefaultFarmConfig(),
		Weather:   weather.DefaultConfig(),
		Hydrology: hydrology.DefaultConfig(),
		Output: Output{
			Database:      "data/farmsim.db",
			CheckpointDir: "data/checkpoints",
			Format:        store.Compressed,
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Default(), err
	}
	cfg, err := Parse(raw)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// YAML encodes the configuration.
func (c Config) YAML() (string, error) {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(raw), nil
}

// Validate checks every section.
func (c Config) Validate() error {
	g := c.General
	switch {
	case g.Years < 1:
		return fmt.Errorf("%w: %d years", ErrInvalid, g.Years)
	case g.SpinupYears < 0 || g.SpinupYears > g.Years:
		return fmt.Errorf("%w: %d spinup years of %d", ErrInvalid, g.SpinupYears, g.Years)
	case g.DroughtSampleYears < 2:
		return fmt.Errorf("%w: drought sample of %d years", ErrInvalid, g.DroughtSampleYears)
	case g.Headroom < 1:
		return fmt.Errorf("%w: capacity headroom %g below 1", ErrInvalid, g.Headroom)
	}
	if err := c.Farmers.Validate(); err != nil {
		return fmt.Errorf("%w: farmers: %v", ErrInvalid, err)
	}
	if err := c.Crops.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := c.CropRotations(); err != nil {
		return err
	}
	for name, v := range map[string]interface{ Validate() error }{
		"world":     c.World,
		"farms":     c.Farms,
		"weather":   c.Weather,
		"hydrology": c.Hydrology,
	} {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
		}
	}
	if _, err := economy.New(c.Economy, c.Crops, c.Farms.Regions, g.StartYear); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if f := c.Output.Format; f != store.Dense && f != store.Compressed {
		return fmt.Errorf("%w: checkpoint format %q", ErrInvalid, f)
	}
	return nil
}

// CropRotations resolves the crop names of every rotation against the crop
// table.
func (c Config) CropRotations() ([]world.Rotation, error) {
	if len(c.Rotations) == 0 {
		return nil, fmt.Errorf("%w: no crop rotations", ErrInvalid)
	}
	out := make([]world.Rotation, len(c.Rotations))
	for k, r := range c.Rotations {
		if len(r.Slots) == 0 || len(r.Slots) > c.Farmers.CalendarDepth {
			return nil, fmt.Errorf("%w: rotation %s has %d crops, calendars hold %d",
				ErrInvalid, r.Name, len(r.Slots), c.Farmers.CalendarDepth)
		}
		if r.Years < 1 {
			return nil, fmt.Errorf("%w: rotation %s lasts %d years", ErrInvalid, r.Name, r.Years)
		}
		slots := make([]crops.Slot, len(r.Slots))
		for j, s := range r.Slots {
			id, ok := c.Crops.Index(s.Crop)
			if !ok {
				return nil, fmt.Errorf("%w: rotation %s: %w %q", ErrInvalid, r.Name, crops.ErrUnknownCrop, s.Crop)
			}
			if s.StartDay < 0 || s.StartDay > 365 || s.GrowthLength <= 0 || s.RotationYear < 0 || s.RotationYear >= r.Years {
				return nil, fmt.Errorf("%w: rotation %s: %w: %+v", ErrInvalid, r.Name, crops.ErrCalendar, s)
			}
			slots[j] = crops.Slot{Crop: id, StartDay: s.StartDay, GrowthLength: s.GrowthLength, RotationYear: s.RotationYear}
		}
		out[k] = world.Rotation{Name: r.Name, Slots: slots, Years: r.Years, Weight: r.Weight}
	}
	return out, nil
}
