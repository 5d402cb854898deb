// Package farmers is the farming population: a columnar store of agent
// attributes, the daily step (harvest, planting, irrigation) and the yearly
// rollover in which agents update their drought experience and decide on
// adaptations.
package farmers

import (
	"errors"
	"fmt"
	"math"

	"github.com/talgya/farm-agents/internal/abstraction"
	"github.com/talgya/farm-agents/internal/crops"
	"github.com/talgya/farm-agents/internal/economy"
	"github.com/talgya/farm-agents/internal/entropy"
	"github.com/talgya/farm-agents/internal/fields"
	"github.com/talgya/farm-agents/internal/finance"
	"github.com/talgya/farm-agents/internal/social"
	"github.com/talgya/farm-agents/internal/store"
)

// ErrNoYieldRelation is returned when adaptations are evaluated before the
// yield / drought probability relation has been fitted.
var ErrNoYieldRelation = errors.New("farmers: no yield-probability relation")

// Kind is an adaptation type.
type Kind int

const (
	CropSwitching Kind = iota
	Well
	IrrigationEfficiency
	IrrigationExpansion

	NumKinds = 4
)

var kindNames = [NumKinds]string{"crop switching", "well", "irrigation efficiency", "irrigation expansion"}

func (k Kind) String() string {
	if k >= 0 && k < NumKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("adaptation(%d)", int(k))
}

// Farmer classes by main irrigation source.
const (
	ClassChannel int32 = iota
	ClassReservoir
	ClassGroundwater
	ClassRainfed
)

// Cells is the per grid cell landscape data the population reads.
type Cells struct {
	AquiferClass       []int32
	SaturatedThickness []float64 // maximum initial saturated thickness, m
}

// Farmers holds every agent attribute as a column of equal logical length.
type Farmers struct {
	p      Params
	table  crops.Table
	model  crops.YieldModel
	market *economy.Market
	land   *fields.Land
	cells  Cells
	rng    *entropy.Source

	Index       *fields.Index
	Ledger      *finance.Ledger
	Network     *social.Network
	order       abstraction.ActivationOrder
	alloc       *abstraction.Allocator
	commandArea []int32

	Region            *store.Array[int32]
	X, Y              *store.Array[float64]
	Elevation         *store.Array[float64]
	Calendar          *crops.Calendar
	RotationYears     *store.Array[int32]
	RotationIndex     *store.Array[int32]
	Source            *store.Array[abstraction.Source]
	WellDepth         *store.Array[float64]
	Efficiency        *store.Array[float64]
	FractionIrrigated *store.Array[float64]
	Adapted           *store.Array[int8]  // one column per Kind
	TimeAdapted       *store.Array[int32] // years since adoption per Kind, -1 when unadapted
	RiskAversion      *store.Array[float64]
	DiscountRate      *store.Array[float64]
	Intention         *store.Array[float64]
	RiskPerception    *store.Array[float64]
	DroughtTimer      *store.Array[float64] // years since the last experienced drought
	Management        *store.Array[float64] // yield multiplier
	Limit             *store.Array[float64] // remaining irrigation limit, m3, NaN when unconstrained
	Deficit           *store.Array[float64] // cumulative water deficit curve, m3
	Profits           *store.History        // deflated to start-year money
	PotentialProfits  *store.History
	YieldRatio        *store.History
	SPEIProbability   *store.History
	CropAge           *store.History // days grown per year
	ChannelUse        *store.History // m3 per year by source
	ReservoirUse      *store.History
	GroundwaterUse    *store.History
	TotalUse          *store.History
	SeasonSPEI        *store.Array[float64] // SPEI summed over growing days
	SeasonDays        *store.Array[float64]
	HarvestedCrop     *store.Array[int32]
	LastHarvest       *store.Array[int32] // simulation day of the previous harvest, -1 before the first
	Class             *store.Array[int32]
	Group             *store.Array[int32]
	RelationA         *store.Array[float64]
	RelationB         *store.Array[float64]
	GEVShape          *store.Array[float64]
	GEVLoc            *store.Array[float64]
	GEVScale          *store.Array[float64]
	WaterCost         *store.Array[float64] // annual, nominal
	EnergyCost        *store.Array[float64]

	bucket        *store.Bucket
	networkBucket *store.Bucket

	fitted           bool
	spinup           bool
	groups           *Groups
	groundwaterDepth []float64 // per grid cell, from the latest day
	day              int32     // simulation day counter
	events           []Event
	counters         counters
}

// New creates an empty population with capacity maxN over land.
func New(p Params, table crops.Table, market *economy.Market, land *fields.Land, cells Cells, maxN int, rng *entropy.Source) (*Farmers, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("farmer parameters: %w", err)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	model, err := crops.NewYieldModel(p.YieldModel, table)
	if err != nil {
		return nil, err
	}
	f := &Farmers{
		p:      p,
		table:  table,
		model:  model,
		market: market,
		land:   land,
		cells:  cells,
		rng:    rng,
		order:  abstraction.ActivationOrder{Fixed: p.FixActivationOrder, Seed: p.ActivationSeed},
		bucket: store.NewBucket("farmers"),
	}
	f.alloc = abstraction.NewAllocator(p.ReturnFraction)
	f.alloc.MinChannelStorage = p.MinChannelStorage
	f.alloc.MaxPaddyWaterLevel = p.MaxPaddyWaterLevel
	f.alloc.Checks = p.Checks

	if err := f.allocate(maxN); err != nil {
		return nil, fmt.Errorf("allocate farmers: %w", err)
	}
	if f.Index, err = fields.Build(land.Owner.Data(), 0); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Farmers) allocate(maxN int) error {
	var err error
	i32 := func(width int, fill int32) *store.Array[int32] {
		if err != nil {
			return nil
		}
		var a *store.Array[int32]
		a, err = store.New(0, maxN, width, fill)
		return a
	}
	f64 := func(width int, fill float64) *store.Array[float64] {
		if err != nil {
			return nil
		}
		var a *store.Array[float64]
		a, err = store.New(0, maxN, width, fill)
		return a
	}
	hist := func(fill float64) *store.History {
		if err != nil {
			return nil
		}
		var h *store.History
		h, err = store.NewHistory(0, maxN, f.p.HistoryYears, fill)
		return h
	}
	nan := math.NaN()

	f.Region = i32(1, 0)
	f.X = f64(1, 0)
	f.Y = f64(1, 0)
	f.Elevation = f64(1, 0)
	f.RotationYears = i32(1, 1)
	f.RotationIndex = i32(1, 0)
	f.WellDepth = f64(1, 0)
	f.Efficiency = f64(1, f.p.InitialEfficiency)
	f.FractionIrrigated = f64(1, f.p.InitialFractionIrrigated)
	f.TimeAdapted = i32(NumKinds, -1)
	f.RiskAversion = f64(1, f.p.RiskAversionMean)
	f.DiscountRate = f64(1, f.p.DiscountRateMean)
	f.Intention = f64(1, f.p.IntentionFactor)
	f.RiskPerception = f64(1, f.p.Risk.Min)
	f.DroughtTimer = f64(1, 99)
	f.Management = f64(1, 1)
	f.Limit = f64(1, f.p.limit())
	f.Deficit = f64(abstraction.DeficitDays, 0)
	f.Profits = hist(0)
	f.PotentialProfits = hist(0)
	f.YieldRatio = hist(nan)
	f.SPEIProbability = hist(nan)
	f.CropAge = hist(0)
	f.ChannelUse = hist(0)
	f.ReservoirUse = hist(0)
	f.GroundwaterUse = hist(0)
	f.TotalUse = hist(0)
	f.SeasonSPEI = f64(1, 0)
	f.SeasonDays = f64(1, 0)
	f.HarvestedCrop = i32(1, -1)
	f.LastHarvest = i32(1, -1)
	f.Class = i32(1, ClassRainfed)
	f.Group = i32(1, -1)
	f.RelationA = f64(1, nan)
	f.RelationB = f64(1, nan)
	f.GEVShape = f64(1, 0)
	f.GEVLoc = f64(1, 0)
	f.GEVScale = f64(1, 1)
	f.WaterCost = f64(1, 0)
	f.EnergyCost = f64(1, 0)
	if err != nil {
		return err
	}
	if f.Calendar, err = crops.NewCalendar(0, maxN, f.p.CalendarDepth); err != nil {
		return err
	}
	if f.Source, err = store.New(0, maxN, 1, abstraction.SourceNone); err != nil {
		return err
	}
	if f.Adapted, err = store.New[int8](0, maxN, NumKinds, 0); err != nil {
		return err
	}
	if f.Ledger, err = finance.NewLedger(0, maxN); err != nil {
		return err
	}
	if f.Network, err = social.NewNetwork(0, maxN, max(f.p.SocialSize, 1)); err != nil {
		return err
	}

	for _, c := range []struct {
		name string
		col  store.Column
	}{
		{"region_id", f.Region},
		{"locations_x", f.X},
		{"locations_y", f.Y},
		{"elevation", f.Elevation},
		{"crop_calendar", f.Calendar},
		{"crop_calendar_rotation_years", f.RotationYears},
		{"current_crop_calendar_rotation_year_index", f.RotationIndex},
		{"irrigation_source", f.Source},
		{"well_depth", f.WellDepth},
		{"irrigation_efficiency", f.Efficiency},
		{"fraction_irrigated_field", f.FractionIrrigated},
		{"adaptations", f.Adapted},
		{"time_adapted", f.TimeAdapted},
		{"risk_aversion", f.RiskAversion},
		{"discount_rate", f.DiscountRate},
		{"intention_factor", f.Intention},
		{"risk_perception", f.RiskPerception},
		{"drought_timer", f.DroughtTimer},
		{"yield_management_factor", f.Management},
		{"remaining_irrigation_limit_m3", f.Limit},
		{"cumulative_water_deficit_m3", f.Deficit},
		{"yearly_profits", f.Profits},
		{"yearly_potential_profits", f.PotentialProfits},
		{"yearly_yield_ratio", f.YieldRatio},
		{"yearly_SPEI_probability", f.SPEIProbability},
		{"total_crop_age", f.CropAge},
		{"yearly_abstraction_channel_m3", f.ChannelUse},
		{"yearly_abstraction_reservoir_m3", f.ReservoirUse},
		{"yearly_abstraction_groundwater_m3", f.GroundwaterUse},
		{"yearly_abstraction_total_m3", f.TotalUse},
		{"cumulative_SPEI_during_growing_season", f.SeasonSPEI},
		{"cumulative_SPEI_count_during_growing_season", f.SeasonDays},
		{"harvested_crop", f.HarvestedCrop},
		{"previous_harvest_day", f.LastHarvest},
		{"farmer_class", f.Class},
		{"group_id", f.Group},
		{"farmer_yield_probability_relation_a", f.RelationA},
		{"farmer_yield_probability_relation_b", f.RelationB},
		{"GEV_shape", f.GEVShape},
		{"GEV_loc", f.GEVLoc},
		{"GEV_scale", f.GEVScale},
		{"annual_water_cost", f.WaterCost},
		{"annual_energy_cost", f.EnergyCost},
	} {
		if err := f.bucket.Add(c.name, c.col); err != nil {
			return err
		}
	}
	if err := f.Ledger.Register(f.bucket); err != nil {
		return err
	}
	f.networkBucket = store.NewBucket("social_network")
	return f.networkBucket.Add("social_network", f.Network.Column())
}

// N returns the number of agents.
func (f *Farmers) N() int { return f.Region.N() }

// MaxN returns the capacity of the population.
func (f *Farmers) MaxN() int { return f.Region.MaxN() }

// Land returns the fields the agents farm.
func (f *Farmers) Land() *fields.Land { return f.land }

// Params returns the population parameters.
func (f *Farmers) Params() Params { return f.p }

// SetSpinup switches spinup mode. During spinup agents farm and build up
// their histories but take no decisions and no microcredit.
func (f *Farmers) SetSpinup(on bool) { f.spinup = on }

// deciding reports whether decisions and microcredit run this year.
func (f *Farmers) deciding() bool { return f.p.adaptationsEnabled() && !f.spinup }

// IsAdapted reports whether agent i holds adaptation k.
func (f *Farmers) IsAdapted(i int, k Kind) bool { return f.Adapted.At(i, int(k)) == 1 }

// fieldSize returns the land area of agent i, m2.
func (f *Farmers) fieldSize(i int) float64 { return f.land.AreaOf(f.Index.Fields(i)) }

// cell returns the grid cell of the first field of agent i, or -1.
func (f *Farmers) cell(i int) int {
	owned := f.Index.Fields(i)
	if len(owned) == 0 {
		return -1
	}
	return int(f.land.Cell.Get(int(owned[0])))
}
