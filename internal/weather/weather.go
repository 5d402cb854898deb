// Package weather generates the synthetic daily climate forcing of the basin:
// precipitation, reference evapotranspiration and the SPEI drought index per
// grid cell. Forcing is a pure function of the seed and the date, so a
// resumed run sees the same weather as an uninterrupted one.
package weather

import (
	"fmt"
	"math"
	"time"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/farm-agents/internal/decision"
	"github.com/talgya/farm-agents/internal/entropy"
)

// Config holds climate parameters.
type Config struct {
	Seed                int64   `yaml:"seed"`
	AnnualPrecipitation float64 `yaml:"annual_precipitation_m"`
	WetSeasonPeak       int     `yaml:"wet_season_peak_day"`
	WetSeasonWidth      float64 `yaml:"wet_season_width_days"`
	ReferenceET         float64 `yaml:"reference_et_m_day"`
	ETAmplitude         float64 `yaml:"et_amplitude"` // seasonal swing as a share of the mean
	DroughtProbability  float64 `yaml:"drought_probability"`
	DroughtSeverity     float64 `yaml:"drought_severity"` // SPEI offset of a drought year
	YearVariability     float64 `yaml:"year_variability"`
	SpatialVariability  float64 `yaml:"spatial_variability"`
	DailyNoise          float64 `yaml:"daily_noise"`
	NoiseScale          float64 `yaml:"noise_scale_m"` // length scale of spatial anomalies
}

// DefaultConfig returns a monsoon climate with roughly one drought year in
// eight.
func DefaultConfig() Config {
	return Config{
		Seed:                7,
		AnnualPrecipitation: 0.9,
		WetSeasonPeak:       210,
		WetSeasonWidth:      35,
		ReferenceET:         0.004,
		ETAmplitude:         0.35,
		DroughtProbability:  0.125,
		DroughtSeverity:     1.5,
		YearVariability:     0.6,
		SpatialVariability:  0.4,
		DailyNoise:          0.3,
		NoiseScale:          20000,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.AnnualPrecipitation < 0 || c.ReferenceET < 0:
		return fmt.Errorf("weather: negative precipitation %g or reference ET %g", c.AnnualPrecipitation, c.ReferenceET)
	case c.WetSeasonWidth <= 0 || c.NoiseScale <= 0:
		return fmt.Errorf("weather: wet season width %g, noise scale %g", c.WetSeasonWidth, c.NoiseScale)
	case c.DroughtProbability < 0 || c.DroughtProbability > 1:
		return fmt.Errorf("weather: drought probability %g", c.DroughtProbability)
	case c.ETAmplitude < 0 || c.ETAmplitude >= 1:
		return fmt.Errorf("weather: ET amplitude %g outside [0, 1)", c.ETAmplitude)
	}
	return nil
}

// Forcing is the climate of one day. Slices are indexed by grid cell.
type Forcing struct {
	Date          time.Time
	Precipitation []float64 // m/day
	ReferenceET   []float64 // m/day
	SPEI          []float64
	Drought       bool // the day falls in a drought year
}

// Generator produces daily forcing for a fixed set of grid cells.
type Generator struct {
	cfg     Config
	x, y    []float64 // cell centres, m
	wetness []float64
	noise   opensimplex.Noise
}

// New returns a generator for cells centred at x, y with the given rainfall
// multipliers.
func New(cfg Config, x, y, wetness []float64) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(x) != len(y) || len(x) != len(wetness) {
		return nil, fmt.Errorf("weather: %d x, %d y and %d wetness values", len(x), len(y), len(wetness))
	}
	return &Generator{
		cfg:     cfg,
		x:       x,
		y:       y,
		wetness: wetness,
		noise:   opensimplex.NewNormalized(cfg.Seed),
	}, nil
}

// Cells returns the number of grid cells.
func (g *Generator) Cells() int { return len(g.x) }

// Year returns the basin-wide SPEI anomaly of a year and whether it is a
// drought year.
func (g *Generator) Year(year int) (anomaly float64, drought bool) {
	rng := entropy.New(uint64(g.cfg.Seed)*1_000_003 + uint64(year))
	drought = rng.Float() < g.cfg.DroughtProbability
	anomaly = rng.Normal() * g.cfg.YearVariability
	if drought {
		anomaly -= g.cfg.DroughtSeverity
	}
	return anomaly, drought
}

// Day returns the forcing of date.
func (g *Generator) Day(date time.Time) *Forcing {
	n := len(g.x)
	fc := &Forcing{
		Date:          date,
		Precipitation: make([]float64, n),
		ReferenceET:   make([]float64, n),
		SPEI:          make([]float64, n),
	}
	anomaly, drought := g.Year(date.Year())
	fc.Drought = drought

	doy := date.YearDay()
	dayNumber := float64(date.Unix() / 86400)
	season := g.seasonWeight(doy)
	et := g.cfg.ReferenceET * (1 + g.cfg.ETAmplitude*math.Sin(2*math.Pi*float64(doy-81)/365))
	scale := g.cfg.NoiseScale
	for c := 0; c < n; c++ {
		sx, sy := g.x[c]/scale, g.y[c]/scale
		spatial := 2*g.noise.Eval3(sx, sy, float64(date.Year())*0.37) - 1
		daily := 2*g.noise.Eval3(sx/2+1000, sy/2, dayNumber*0.15) - 1
		spei := anomaly + g.cfg.SpatialVariability*spatial + g.cfg.DailyNoise*daily
		spei = math.Max(-3, math.Min(3, spei))

		fc.SPEI[c] = spei
		fc.Precipitation[c] = season * g.wetness[c] * math.Exp(0.5*spei)
		fc.ReferenceET[c] = math.Max(0, et*(1-0.1*spei))
	}
	return fc
}

// seasonWeight returns the mean precipitation of day of year doy: a
// Gaussian wet season around the peak that sums to the annual total.
func (g *Generator) seasonWeight(doy int) float64 {
	d := math.Abs(float64(doy - g.cfg.WetSeasonPeak))
	d = math.Min(d, 365-d)
	w := g.cfg.WetSeasonWidth
	return g.cfg.AnnualPrecipitation * math.Exp(-0.5*(d/w)*(d/w)) / (w * math.Sqrt(2*math.Pi))
}

// DroughtDistributions fits per cell the distribution of the mean SPEI over
// a growing season starting on day of year startDay and lasting length days,
// sampled over years years from firstYear.
func (g *Generator) DroughtDistributions(firstYear, years, startDay, length int) ([]decision.GEV, error) {
	if years < 2 || length < 1 || startDay < 0 || startDay > 365 {
		return nil, fmt.Errorf("weather: drought sample of %d years, season %d+%d", years, startDay, length)
	}
	n := len(g.x)
	samples := make([][]float64, n)
	for c := range samples {
		samples[c] = make([]float64, years)
	}
	for k := 0; k < years; k++ {
		start := time.Date(firstYear+k, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, startDay)
		for d := 0; d < length; d++ {
			fc := g.Day(start.AddDate(0, 0, d))
			for c := 0; c < n; c++ {
				samples[c][k] += fc.SPEI[c] / float64(length)
			}
		}
	}
	out := make([]decision.GEV, n)
	for c := range out {
		out[c] = decision.FitGEV(samples[c])
	}
	return out, nil
}
