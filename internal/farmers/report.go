package farmers

import (
	"math"

	"github.com/talgya/farm-agents/internal/store"
)

// EventKind classifies notable agent events.
type EventKind string

const (
	EventAdaptation  EventKind = "adaptation"
	EventExpiry      EventKind = "expiry"
	EventCropSwitch  EventKind = "crop_switch"
	EventMicrocredit EventKind = "microcredit"
	EventRemoval     EventKind = "removal"
)

// Event is a notable occurrence for one agent.
type Event struct {
	Day    int32     `json:"day"` // simulation day
	Agent  int       `json:"agent"`
	Kind   EventKind `json:"kind"`
	Detail string    `json:"detail"`
}

type counters struct {
	adoptions    [NumKinds]int
	expiries     [NumKinds]int
	microcredits int
	inputLoans   int
	refusedLoans int
}

func (f *Farmers) emit(e Event) {
	e.Day = f.day
	f.events = append(f.events, e)
}

// DrainEvents returns the events since the last call and forgets them.
func (f *Farmers) DrainEvents() []Event {
	out := f.events
	f.events = nil
	return out
}

// YearReport summarises one model year.
type YearReport struct {
	Year               int               `json:"year"`
	Population         int               `json:"population"`
	AdoptionShare      [NumKinds]float64 `json:"adoption_share"`
	Adoptions          [NumKinds]int     `json:"adoptions"`
	Expiries           [NumKinds]int     `json:"expiries"`
	Microcredits       int               `json:"microcredits"`
	InputLoans         int               `json:"input_loans"`
	RefusedLoans       int               `json:"refused_loans"`
	MeanYieldRatio     float64           `json:"mean_yield_ratio"`
	MeanRiskPerception float64           `json:"mean_risk_perception"`
	MeanProfit         float64           `json:"mean_profit"`
	Channel            float64           `json:"channel_m3"`
	Reservoir          float64           `json:"reservoir_m3"`
	Groundwater        float64           `json:"groundwater_m3"`
}

// current sums age 0 of a history over every agent, skipping NaN.
func current(h *store.History) (sum float64, count int) {
	for i := 0; i < h.N(); i++ {
		v := h.Value(i, 0)
		if math.IsNaN(v) {
			continue
		}
		sum += v
		count++
	}
	return sum, count
}

// report builds the summary of the year that just ended, before the yearly
// histories are shifted, and resets the counters.
func (f *Farmers) report(year int) YearReport {
	n := f.N()
	r := YearReport{
		Year:         year,
		Population:   n,
		Adoptions:    f.counters.adoptions,
		Expiries:     f.counters.expiries,
		Microcredits: f.counters.microcredits,
		InputLoans:   f.counters.inputLoans,
		RefusedLoans: f.counters.refusedLoans,
	}
	if n > 0 {
		for k := 0; k < NumKinds; k++ {
			adopted := 0
			for i := 0; i < n; i++ {
				if f.Adapted.At(i, k) == 1 {
					adopted++
				}
			}
			r.AdoptionShare[k] = float64(adopted) / float64(n)
		}
		r.MeanRiskPerception = f.RiskPerception.Mean()
	}
	if s, c := current(f.YieldRatio); c > 0 {
		r.MeanYieldRatio = s / float64(c)
	}
	if s, c := current(f.Profits); c > 0 {
		r.MeanProfit = s / float64(c)
	}
	r.Channel, _ = current(f.ChannelUse)
	r.Reservoir, _ = current(f.ReservoirUse)
	r.Groundwater, _ = current(f.GroundwaterUse)
	f.counters = counters{}
	return r
}
