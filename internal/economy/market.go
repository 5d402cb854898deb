// Package economy provides the crop market the agents sell into: crop prices
// and cultivation costs per region, electricity costs and yearly inflation.
// Prices are an external input; the market only looks them up and applies
// inflation and a bounded yearly fluctuation.
package economy

import (
	"errors"
	"fmt"
	"math"

	"github.com/talgya/farm-agents/internal/crops"
	"github.com/talgya/farm-agents/internal/entropy"
)

// ErrMissingPrice is returned when a crop or region has no price or cost data.
var ErrMissingPrice = errors.New("economy: missing price data")

// CropPrices holds the per-region price and cultivation cost of one crop.
type CropPrices struct {
	Crop            string    `yaml:"crop"`
	Price           []float64 `yaml:"price_per_kg"`        // per region
	CultivationCost []float64 `yaml:"cultivation_cost_m2"` // per region, per year
}

// Params is the market input data.
type Params struct {
	Crops            []CropPrices      `yaml:"crops"`
	Electricity      []float64         `yaml:"electricity_cost_kwh"` // per region
	Inflation        map[int][]float64 `yaml:"inflation"`            // year -> per region factor
	PriceVariability float64           `yaml:"price_variability"`    // sd of the log yearly fluctuation
}

// Price bounds of the yearly fluctuation relative to the base price.
const (
	priceFloor   = 0.5
	priceCeiling = 2.0
)

// Market holds the prices of every crop in every region.
type Market struct {
	regions     int
	startYear   int
	year        int
	price       [][]float64 // [region][crop], start-year money
	cost        [][]float64 // [region][crop], start-year money
	electricity []float64
	inflation   map[int][]float64
	variability float64
	modifier    []float64 // per crop, current year
}

// New builds the market for the crops of table in the given number of regions.
// Every crop must have a price and a cultivation cost in every region.
func New(p Params, table crops.Table, regions, startYear int) (*Market, error) {
	if regions < 1 {
		return nil, fmt.Errorf("economy: %d regions", regions)
	}
	m := &Market{
		regions:     regions,
		startYear:   startYear,
		year:        startYear,
		price:       make([][]float64, regions),
		cost:        make([][]float64, regions),
		inflation:   p.Inflation,
		variability: p.PriceVariability,
		modifier:    make([]float64, len(table)),
	}
	for r := range m.price {
		m.price[r] = make([]float64, len(table))
		m.cost[r] = make([]float64, len(table))
	}
	for i := range m.modifier {
		m.modifier[i] = 1
	}

	seen := make([]bool, len(table))
	for _, cp := range p.Crops {
		c, ok := table.Index(cp.Crop)
		if !ok {
			return nil, fmt.Errorf("%w: prices for unknown crop %q", ErrMissingPrice, cp.Crop)
		}
		if len(cp.Price) < regions || len(cp.CultivationCost) < regions {
			return nil, fmt.Errorf("%w: crop %s has %d prices and %d costs for %d regions",
				ErrMissingPrice, cp.Crop, len(cp.Price), len(cp.CultivationCost), regions)
		}
		for r := 0; r < regions; r++ {
			if cp.Price[r] < 0 || cp.CultivationCost[r] < 0 {
				return nil, fmt.Errorf("economy: crop %s region %d has a negative price or cost", cp.Crop, r)
			}
			m.price[r][c] = cp.Price[r]
			m.cost[r][c] = cp.CultivationCost[r]
		}
		seen[c] = true
	}
	for c, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("%w: crop %s", ErrMissingPrice, table[c].Name)
		}
	}

	if len(p.Electricity) < regions {
		return nil, fmt.Errorf("%w: %d electricity costs for %d regions", ErrMissingPrice, len(p.Electricity), regions)
	}
	m.electricity = append([]float64(nil), p.Electricity[:regions]...)
	return m, nil
}

// Regions returns the number of regions.
func (m *Market) Regions() int { return m.regions }

// StartYear returns the first year of the price series.
func (m *Market) StartYear() int { return m.startYear }

// Year returns the current market year.
func (m *Market) Year() int { return m.year }

// SetYear moves the market to year and draws the yearly price fluctuation of
// every crop, bounded between a floor and a ceiling of the base price.
func (m *Market) SetYear(year int, rng *entropy.Source) {
	m.year = year
	for c := range m.modifier {
		mod := 1.0
		if m.variability > 0 && rng != nil {
			mod = math.Exp(m.variability * rng.Normal())
		}
		m.modifier[c] = math.Min(math.Max(mod, priceFloor), priceCeiling)
	}
}

// CumulativeInflation returns the price level of region in year relative to
// the start year.
func (m *Market) CumulativeInflation(region, year int) float64 {
	level := 1.0
	for y := m.startYear + 1; y <= year; y++ {
		if rates, ok := m.inflation[y]; ok && region < len(rates) && rates[region] > 0 {
			level *= rates[region]
		}
	}
	return level
}

// Price returns the nominal price per kg of crop in region this year.
func (m *Market) Price(region int, crop int32) float64 {
	return m.price[region][crop] * m.modifier[crop] * m.CumulativeInflation(region, m.year)
}

// CultivationCost returns the nominal yearly cultivation cost per m2 of crop
// in region.
func (m *Market) CultivationCost(region int, crop int32) float64 {
	return m.cost[region][crop] * m.CumulativeInflation(region, m.year)
}

// ElectricityCost returns the nominal cost of one kWh in region.
func (m *Market) ElectricityCost(region int) float64 {
	return m.electricity[region] * m.CumulativeInflation(region, m.year)
}
