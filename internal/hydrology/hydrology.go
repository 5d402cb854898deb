// Package hydrology is a bucket model of the basin's water: soil moisture and
// ponding per field, channel storage and an unconfined aquifer per grid cell
// and a reservoir per command area. Each day it hands the farmers the soil
// state and the water pools, takes back the irrigation the allocator drew
// and returns the evapotranspiration of every field.
package hydrology

import (
	"fmt"
	"math"

	"github.com/talgya/farm-agents/internal/abstraction"
	"github.com/talgya/farm-agents/internal/fields"
	"github.com/talgya/farm-agents/internal/store"
	"github.com/talgya/farm-agents/internal/weather"
)

// Config holds the bucket model parameters. Depths are in m, rates per day.
type Config struct {
	FieldCapacity        float64 `yaml:"field_capacity_m"`
	WiltingPoint         float64 `yaml:"wilting_point_m"`
	DepletionFraction    float64 `yaml:"depletion_fraction"` // share of available water used before stress
	InfiltrationCapacity float64 `yaml:"infiltration_capacity_m"`
	InitialMoisture      float64 `yaml:"initial_moisture"` // share of field capacity
	CropCoefficient      float64 `yaml:"crop_coefficient"`
	BareSoilCoefficient  float64 `yaml:"bare_soil_coefficient"`
	Percolation          float64 `yaml:"percolation_m"` // paddy percolation
	MaxPondingDepth      float64 `yaml:"max_ponding_m"`
	RunoffToChannel      float64 `yaml:"runoff_to_channel"` // share of runoff reaching the river
	ChannelRecession     float64 `yaml:"channel_recession"` // share of channel storage leaving a cell
	BaseflowPerCell      float64 `yaml:"baseflow_m3"`       // inflow to every river cell
	SpecificYield        float64 `yaml:"specific_yield"`
	ReservoirCapacity    float64 `yaml:"reservoir_capacity_m3"`
	ReservoirInitial     float64 `yaml:"reservoir_initial"` // share of capacity
	ReservoirRelease     float64 `yaml:"reservoir_release"` // share of storage released downstream
}

// DefaultConfig returns a loamy soil over a sandy aquifer.
func DefaultConfig() Config {
	return Config{
		FieldCapacity:        0.3,
		WiltingPoint:         0.12,
		DepletionFraction:    0.5,
		InfiltrationCapacity: 0.05,
		InitialMoisture:      0.8,
		CropCoefficient:      1.05,
		BareSoilCoefficient:  0.3,
		Percolation:          0.004,
		MaxPondingDepth:      0.1,
		RunoffToChannel:      0.6,
		ChannelRecession:     0.3,
		BaseflowPerCell:      2000,
		SpecificYield:        0.1,
		ReservoirCapacity:    5e6,
		ReservoirInitial:     0.5,
		ReservoirRelease:     0.002,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.WiltingPoint < 0 || c.FieldCapacity <= c.WiltingPoint:
		return fmt.Errorf("hydrology: field capacity %g not above wilting point %g", c.FieldCapacity, c.WiltingPoint)
	case c.DepletionFraction <= 0 || c.DepletionFraction >= 1:
		return fmt.Errorf("hydrology: depletion fraction %g outside (0, 1)", c.DepletionFraction)
	case c.SpecificYield <= 0 || c.SpecificYield > 1:
		return fmt.Errorf("hydrology: specific yield %g outside (0, 1]", c.SpecificYield)
	case c.ChannelRecession < 0 || c.ChannelRecession > 1 || c.RunoffToChannel < 0 || c.RunoffToChannel > 1:
		return fmt.Errorf("hydrology: channel recession %g, runoff share %g", c.ChannelRecession, c.RunoffToChannel)
	case c.InitialMoisture < 0 || c.InitialMoisture > 1 || c.ReservoirInitial < 0 || c.ReservoirInitial > 1:
		return fmt.Errorf("hydrology: initial shares %g, %g outside [0, 1]", c.InitialMoisture, c.ReservoirInitial)
	case c.InfiltrationCapacity < 0 || c.ReservoirCapacity < 0 || c.BaseflowPerCell < 0:
		return fmt.Errorf("hydrology: negative capacity")
	}
	return nil
}

// Basin is the static description of the grid the model runs on.
type Basin struct {
	CellArea           float64   // m2
	GroundwaterDepth   []float64 // initial water table depth per cell, m
	SaturatedThickness []float64 // per cell, m
	NearestRiver       []int32   // per cell
	Reservoirs         []int32   // dam cell per command area
}

// Model is the water state of the basin.
type Model struct {
	cfg   Config
	land  *fields.Land
	basin Basin

	moisture    *store.Array[float64] // per field, m
	ponding     *store.Array[float64] // per field, m
	channel     *store.Array[float64] // per cell, m3
	groundwater *store.Array[float64] // per cell, m3 above the aquifer base
	depth       *store.Array[float64] // per cell, m
	reservoir   *store.Array[float64] // per command area, m3
	bucket      *store.Bucket

	runoff []float64 // per cell, m3 generated today
}

// New returns a model at its initial state.
func New(cfg Config, land *fields.Land, basin Basin) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cells := len(basin.GroundwaterDepth)
	if cells == 0 || len(basin.SaturatedThickness) != cells || len(basin.NearestRiver) != cells {
		return nil, fmt.Errorf("hydrology: basin of %d cells with %d thicknesses and %d river links",
			cells, len(basin.SaturatedThickness), len(basin.NearestRiver))
	}
	if basin.CellArea <= 0 {
		return nil, fmt.Errorf("hydrology: cell area %g", basin.CellArea)
	}
	for fld := 0; fld < land.N(); fld++ {
		if c := land.Cell.Get(fld); c < 0 || int(c) >= cells {
			return nil, fmt.Errorf("hydrology: field %d in cell %d outside the basin", fld, c)
		}
		if ca := land.CommandArea.Get(fld); int(ca) >= len(basin.Reservoirs) {
			return nil, fmt.Errorf("hydrology: field %d in command area %d of %d", fld, ca, len(basin.Reservoirs))
		}
	}

	m := &Model{cfg: cfg, land: land, basin: basin, runoff: make([]float64, cells)}
	var err error
	alloc := func(n int, fill float64) *store.Array[float64] {
		if err != nil {
			return nil
		}
		var a *store.Array[float64]
		a, err = store.New(n, n, 1, fill)
		return a
	}
	m.moisture = alloc(land.N(), cfg.InitialMoisture*cfg.FieldCapacity)
	m.ponding = alloc(land.N(), 0)
	m.channel = alloc(cells, 0)
	m.groundwater = alloc(cells, 0)
	m.depth = alloc(cells, 0)
	m.reservoir = alloc(len(basin.Reservoirs), cfg.ReservoirInitial*cfg.ReservoirCapacity)
	if err != nil {
		return nil, fmt.Errorf("allocate hydrology: %w", err)
	}
	for c := 0; c < cells; c++ {
		m.depth.Set(c, basin.GroundwaterDepth[c])
		m.groundwater.Set(c, cfg.SpecificYield*basin.CellArea*basin.SaturatedThickness[c])
	}

	m.bucket = store.NewBucket("hydrology")
	for _, c := range []struct {
		name string
		col  store.Column
	}{
		{"soil_moisture", m.moisture},
		{"paddy_water_level", m.ponding},
		{"channel_storage_m3", m.channel},
		{"groundwater_storage_m3", m.groundwater},
		{"groundwater_depth", m.depth},
		{"reservoir_storage_m3", m.reservoir},
	} {
		if err := m.bucket.Add(c.name, c.col); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Bucket returns the checkpoint bucket of the water state.
func (m *Model) Bucket() *store.Bucket { return m.bucket }

// aquiferBase returns the depth of the bottom of the aquifer below cell c.
func (m *Model) aquiferBase(c int) float64 {
	return m.basin.GroundwaterDepth[c] + m.basin.SaturatedThickness[c]
}

// Begin infiltrates today's precipitation, routes runoff into the rivers and
// returns the soil state and water pools for abstraction. The pools alias the
// model state: what the allocator takes is gone from the basin.
func (m *Model) Begin(fc *weather.Forcing) (*abstraction.Soil, abstraction.Supply) {
	cfg := m.cfg
	n := m.land.N()
	for c := range m.runoff {
		m.runoff[c] = 0
	}

	soil := &abstraction.Soil{
		PaddyLevel:           make([]float64, n),
		ReadilyAvailable:     make([]float64, n),
		CriticalLevel:        make([]float64, n),
		MaxWaterContent:      make([]float64, n),
		InfiltrationCapacity: make([]float64, n),
	}
	available := cfg.FieldCapacity - cfg.WiltingPoint
	for fld := 0; fld < n; fld++ {
		c := int(m.land.Cell.Get(fld))
		rain := fc.Precipitation[c]
		infiltration := math.Min(rain, cfg.InfiltrationCapacity)
		excess := rain - infiltration

		if m.land.Paddy(fld) {
			level := m.ponding.Get(fld) + excess
			excess = math.Max(level-cfg.MaxPondingDepth, 0)
			m.ponding.Set(fld, level-excess)
		}
		moisture := m.moisture.Get(fld) + infiltration
		if moisture > cfg.FieldCapacity {
			excess += moisture - cfg.FieldCapacity
			moisture = cfg.FieldCapacity
		}
		m.moisture.Set(fld, moisture)
		m.runoff[c] += excess * m.land.Area.Get(fld)

		soil.PaddyLevel[fld] = m.ponding.Get(fld)
		soil.ReadilyAvailable[fld] = math.Max(moisture-cfg.WiltingPoint, 0)
		soil.CriticalLevel[fld] = (1 - cfg.DepletionFraction) * available
		soil.MaxWaterContent[fld] = available
		soil.InfiltrationCapacity[fld] = cfg.InfiltrationCapacity
	}

	channel := m.channel.Data()
	for c := range m.runoff {
		river := m.basin.NearestRiver[c]
		if river >= 0 {
			channel[river] += m.runoff[c] * cfg.RunoffToChannel
		}
		if m.basin.NearestRiver[c] == int32(c) {
			channel[c] += cfg.BaseflowPerCell
		}
	}

	return soil, abstraction.Supply{
		Channel:          channel,
		Groundwater:      m.groundwater.Data(),
		GroundwaterDepth: m.depth.Data(),
		Reservoir:        m.reservoir.Data(),
	}
}

// End applies the day's irrigation, evapotranspiration and drainage and
// returns the actual and potential evapotranspiration per field (m).
func (m *Model) End(res *abstraction.Result, fc *weather.Forcing) (actual, potential []float64) {
	cfg := m.cfg
	n := m.land.N()
	actual = make([]float64, n)
	potential = make([]float64, n)
	available := cfg.FieldCapacity - cfg.WiltingPoint
	critical := (1 - cfg.DepletionFraction) * available
	recharge := make([]float64, len(m.runoff))

	for fld := 0; fld < n; fld++ {
		c := int(m.land.Cell.Get(fld))
		area := m.land.Area.Get(fld)
		if res != nil {
			recharge[c] += res.ReturnFlow[fld] * area
		}

		k := cfg.BareSoilCoefficient
		if m.land.Growing(fld) {
			k = cfg.CropCoefficient
		}
		pet := k * fc.ReferenceET[c]
		potential[fld] = pet

		if m.land.Paddy(fld) {
			level := m.ponding.Get(fld)
			if res != nil {
				level += res.Consumption[fld]
			}
			fromPond := math.Min(level, pet)
			level -= fromPond
			perc := math.Min(level, cfg.Percolation)
			recharge[c] += perc * area
			m.ponding.Set(fld, level-perc)
			actual[fld] = fromPond
			pet -= fromPond
		}

		moisture := m.moisture.Get(fld)
		if res != nil && !m.land.Paddy(fld) {
			moisture += res.Consumption[fld]
		}
		if moisture > cfg.FieldCapacity {
			recharge[c] += (moisture - cfg.FieldCapacity) * area
			moisture = cfg.FieldCapacity
		}
		ks := 1.0
		if raw := moisture - cfg.WiltingPoint; raw < critical {
			ks = math.Max(raw, 0) / critical
		}
		et := math.Min(pet*ks, math.Max(moisture-cfg.WiltingPoint, 0))
		m.moisture.Set(fld, moisture-et)
		actual[fld] += et
	}

	channel := m.channel.Data()
	for c, dam := range m.basin.Reservoirs {
		inflow := channel[dam] * cfg.ChannelRecession
		channel[dam] -= inflow
		stored := m.reservoir.Get(c) + inflow
		release := stored * cfg.ReservoirRelease
		if stored-release > cfg.ReservoirCapacity {
			release = stored - cfg.ReservoirCapacity
		}
		channel[dam] += release
		m.reservoir.Set(c, stored-release)
	}
	for c := range channel {
		channel[c] *= 1 - cfg.ChannelRecession
	}

	for c := range recharge {
		capacity := cfg.SpecificYield * m.basin.CellArea * m.aquiferBase(c)
		gw := math.Min(m.groundwater.Get(c)+recharge[c], capacity)
		m.groundwater.Set(c, gw)
		m.depth.Set(c, m.aquiferBase(c)-gw/(cfg.SpecificYield*m.basin.CellArea))
	}
	return actual, potential
}

// Storage returns the water held in the channels, aquifers and reservoirs
// (m3).
func (m *Model) Storage() (channel, groundwater, reservoir float64) {
	return m.channel.Sum(), m.groundwater.Sum(), m.reservoir.Sum()
}

// MeanGroundwaterDepth returns the basin mean water table depth, m.
func (m *Model) MeanGroundwaterDepth() float64 { return m.depth.Mean() }
