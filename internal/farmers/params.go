package farmers

import (
	"fmt"
	"math"

	"github.com/talgya/farm-agents/internal/crops"
)

// NoAdaptation is the ruleset that disables an adaptation, or every
// adaptation and microcredit when set globally.
const NoAdaptation = "no-adaptation"

// Adaptation holds the parameters of one adaptation type.
type Adaptation struct {
	Ruleset      string  `yaml:"ruleset"`
	Lifespan     int     `yaml:"lifespan"`         // years, 0 means no expiry
	LoanDuration int     `yaml:"loan_duration"`    // years
	Horizon      int     `yaml:"decision_horizon"` // years
	CostM2       float64 `yaml:"cost_m2"`          // investment per m2 of land
}

// Enabled reports whether the adaptation is evaluated.
func (a Adaptation) Enabled() bool { return a.Ruleset != NoAdaptation }

// RiskPerception parameterises drought risk perception.
type RiskPerception struct {
	Min       float64 `yaml:"min"`
	Max       float64 `yaml:"max"`
	Decrease  float64 `yaml:"decrease"`  // exponent per year since the last event, negative
	Threshold float64 `yaml:"threshold"` // loss percentage points above the historical mean
}

// WaterPrice is the price of one m3 by source.
type WaterPrice struct {
	Channel     float64 `yaml:"channel"`
	Reservoir   float64 `yaml:"reservoir"`
	Groundwater float64 `yaml:"groundwater"`
}

// Params are the behavioural and economic parameters of the population.
type Params struct {
	ReturnFraction     float64  `yaml:"return_fraction"`
	MinChannelStorage  float64  `yaml:"minimum_channel_storage_m3"`
	MaxPaddyWaterLevel float64  `yaml:"max_paddy_water_level"`
	IrrigationLimit    *float64 `yaml:"irrigation_limit_m3"` // per agent per year, nil is unconstrained
	YieldModel         string   `yaml:"yield_model"`
	HistoryYears       int      `yaml:"history_years"`
	CalendarDepth      int      `yaml:"calendar_depth"`
	ElevationBands     int      `yaml:"elevation_bands"`

	SocialRadius float64 `yaml:"social_network_radius"`
	SocialSize   int     `yaml:"social_network_size"`

	Ruleset             string         `yaml:"ruleset"`
	Risk                RiskPerception `yaml:"risk_perception"`
	MicrocreditDuration int            `yaml:"microcredit_loan_duration"`
	InputLoanDuration   int            `yaml:"input_loan_duration"`
	InterestRate        float64        `yaml:"interest_rate"`
	ExpenditureCap      float64        `yaml:"expenditure_cap"`

	RiskAversionMean float64 `yaml:"risk_aversion_mean"`
	RiskAversionSD   float64 `yaml:"risk_aversion_sd"`
	DiscountRateMean float64 `yaml:"discount_rate_mean"`
	DiscountRateSD   float64 `yaml:"discount_rate_sd"`
	IntentionFactor  float64 `yaml:"intention_factor"`
	IntentionBoost   float64 `yaml:"intention_boost"`

	InitialEfficiency        float64 `yaml:"initial_irrigation_efficiency"`
	AdaptedEfficiency        float64 `yaml:"adapted_irrigation_efficiency"`
	InitialFractionIrrigated float64 `yaml:"initial_fraction_irrigated"`

	Well       Adaptation `yaml:"well"`
	Efficiency Adaptation `yaml:"irrigation_efficiency"`
	Expansion  Adaptation `yaml:"irrigation_expansion"`
	CropSwitch Adaptation `yaml:"crop_switching"`

	PumpHours         float64    `yaml:"pump_hours"`
	PumpEfficiency    float64    `yaml:"pump_efficiency"`
	SpecificWeight    float64    `yaml:"specific_weight_water"` // N/m3
	MaintenanceFactor float64    `yaml:"maintenance_factor"`
	WellUnitCost      []float64  `yaml:"well_unit_cost"` // per m of well, by aquifer class
	WaterPrice        WaterPrice `yaml:"water_price"`

	FixActivationOrder bool   `yaml:"fix_activation_order"`
	ActivationSeed     uint64 `yaml:"activation_seed"`
	Checks             bool   `yaml:"checks"`
}

// DefaultParams returns the parameters of the reference setup.
func DefaultParams() Params {
	return Params{
		ReturnFraction:     0.5,
		MinChannelStorage:  100,
		MaxPaddyWaterLevel: 0.05,
		YieldModel:         crops.ModelGAEZ,
		HistoryYears:       10,
		CalendarDepth:      3,
		ElevationBands:     5,

		SocialRadius: 5000,
		SocialSize:   10,

		Risk:                RiskPerception{Min: 0.8, Max: 6, Decrease: -2.5, Threshold: 20},
		MicrocreditDuration: 2,
		InputLoanDuration:   2,
		InterestRate:        0.05,
		ExpenditureCap:      0.5,

		RiskAversionMean: 1.5,
		RiskAversionSD:   0.5,
		DiscountRateMean: 0.03,
		DiscountRateSD:   0.01,
		IntentionFactor:  0.3,
		IntentionBoost:   0.3,

		InitialEfficiency:        0.5,
		AdaptedEfficiency:        0.9,
		InitialFractionIrrigated: 0.8,

		Well:       Adaptation{Lifespan: 20, LoanDuration: 20, Horizon: 20},
		Efficiency: Adaptation{Lifespan: 10, LoanDuration: 10, Horizon: 10, CostM2: 0.5},
		Expansion:  Adaptation{Lifespan: 10, LoanDuration: 10, Horizon: 10, CostM2: 0.5},
		CropSwitch: Adaptation{Lifespan: 5, LoanDuration: 2, Horizon: 2},

		PumpHours:         3.5,
		PumpEfficiency:    0.7,
		SpecificWeight:    9800,
		MaintenanceFactor: 0.07,
		WellUnitCost:      []float64{50, 80, 120},
		WaterPrice:        WaterPrice{Channel: 0.01, Reservoir: 0.02, Groundwater: 0},

		Checks: true,
	}
}

// Validate checks the parameters for values the model cannot run with.
func (p Params) Validate() error {
	switch {
	case p.ReturnFraction < 0 || p.ReturnFraction > 1:
		return fmt.Errorf("return fraction %g outside [0, 1]", p.ReturnFraction)
	case p.HistoryYears < 2:
		return fmt.Errorf("history of %d years, need at least 2", p.HistoryYears)
	case p.CalendarDepth < 1:
		return fmt.Errorf("crop calendar depth %d", p.CalendarDepth)
	case p.ElevationBands < 1:
		return fmt.Errorf("%d elevation bands", p.ElevationBands)
	case p.SocialSize < 0 || p.SocialRadius <= 0:
		return fmt.Errorf("social network of %d within %g m", p.SocialSize, p.SocialRadius)
	case p.InitialEfficiency <= 0 || p.InitialEfficiency > 1 || p.AdaptedEfficiency <= 0 || p.AdaptedEfficiency > 1:
		return fmt.Errorf("irrigation efficiency %g / %g outside (0, 1]", p.InitialEfficiency, p.AdaptedEfficiency)
	case p.InitialFractionIrrigated < 0 || p.InitialFractionIrrigated > 1:
		return fmt.Errorf("irrigated fraction %g outside [0, 1]", p.InitialFractionIrrigated)
	case p.PumpHours <= 0 || p.PumpEfficiency <= 0:
		return fmt.Errorf("pump hours %g efficiency %g must be positive", p.PumpHours, p.PumpEfficiency)
	case len(p.WellUnitCost) == 0:
		return fmt.Errorf("no well unit costs")
	case p.IrrigationLimit != nil && (*p.IrrigationLimit < 0 || math.IsNaN(*p.IrrigationLimit)):
		return fmt.Errorf("irrigation limit %g", *p.IrrigationLimit)
	}
	for name, a := range map[string]Adaptation{"well": p.Well, "irrigation efficiency": p.Efficiency, "irrigation expansion": p.Expansion, "crop switching": p.CropSwitch} {
		if a.Horizon < 1 || a.LoanDuration < 0 || a.Lifespan < 0 {
			return fmt.Errorf("%s: horizon %d loan %d lifespan %d", name, a.Horizon, a.LoanDuration, a.Lifespan)
		}
	}
	if _, err := crops.NewYieldModel(p.YieldModel, crops.Table{{Name: "probe", ReferenceYield: 1, P0: 0, P1: 1}}); err != nil {
		return err
	}
	return nil
}

// limit returns the yearly irrigation limit, NaN when unconstrained.
func (p Params) limit() float64 {
	if p.IrrigationLimit == nil {
		return math.NaN()
	}
	return *p.IrrigationLimit
}

// adaptationsEnabled reports whether any decisions or microcredit run.
func (p Params) adaptationsEnabled() bool { return p.Ruleset != NoAdaptation }
