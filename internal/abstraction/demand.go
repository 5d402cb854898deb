package abstraction

import (
	"fmt"
	"math"

	"github.com/talgya/farm-agents/internal/crops"
	"github.com/talgya/farm-agents/internal/store"
)

// DeficitDays is the number of slots of the cumulative water deficit curve.
const DeficitDays = 366

// FieldDemand returns the potential irrigation consumption (m) of one field.
// Paddy fields are topped up to the target ponding depth. Other fields are
// brought back to field capacity once readily available water drops below the
// critical level, limited by infiltration capacity and scaled by the irrigated
// fraction.
func FieldDemand(paddy bool, soil *Soil, f int, maxPaddyLevel, fractionIrrigated float64) float64 {
	if paddy {
		return math.Max(maxPaddyLevel-soil.PaddyLevel[f], 0)
	}
	if soil.ReadilyAvailable[f] >= soil.CriticalLevel[f] {
		return 0
	}
	d := soil.MaxWaterContent[f] - soil.ReadilyAvailable[f]
	d = math.Min(d, soil.InfiltrationCapacity[f])
	return math.Max(d, 0) * fractionIrrigated
}

func deficitBetween(deficit *store.Array[float64], agent, start, end int) float64 {
	return deficit.At(agent, end) - deficit.At(agent, start)
}

// FutureDeficit returns today's demand plus the water deficit expected over
// the rest of the agent's growing windows this rotation year, read from its
// cumulative deficit curve. Windows that run past the end of the year wrap to
// the start of the curve.
func FutureDeficit(agent, dayIndex int, deficit *store.Array[float64], cal *crops.Calendar, rotationYear int32, today float64) (float64, error) {
	future := today
	if dayIndex >= 365 {
		return future, nil
	}
	for k := 0; k < cal.Depth(); k++ {
		s := cal.Slot(agent, k)
		if s.Empty() || s.RotationYear != rotationYear {
			continue
		}
		start := int(s.StartDay)
		length := int(s.GrowthLength)
		end := start + length

		if end > 365 {
			future += deficitBetween(deficit, agent, max(start, dayIndex+1), 365)
			if length < 366 && end-366 > dayIndex {
				future += deficitBetween(deficit, agent, dayIndex+1, end%366)
			}
		} else if dayIndex < end {
			future += deficitBetween(deficit, agent, max(start, dayIndex+1), end)
		}
	}
	if future < 0 || math.IsNaN(future) {
		return 0, &InvariantError{Check: "future deficit", Detail: fmt.Sprintf("agent %d day %d deficit %g", agent, dayIndex, future)}
	}
	return future, nil
}

// AdjustToLimit scales the per-field demand of an agent so that the remaining
// annual irrigation limit is spread over today and the rest of the growing
// season. A spent limit removes all demand.
func AdjustToLimit(demand []float64, demandM3, remaining, efficiency float64, future float64) ([]float64, error) {
	if remaining < 0 {
		for i := range demand {
			demand[i] = 0
		}
		return demand, nil
	}
	if future <= 0 {
		return nil, &InvariantError{Check: "irrigation limit", Detail: fmt.Sprintf("non-positive future deficit %g", future)}
	}
	withdrawal := demandM3 * remaining / future
	consumption := math.Min(withdrawal*efficiency, demandM3)
	factor := consumption / demandM3
	if math.IsNaN(factor) {
		return nil, &InvariantError{Check: "irrigation limit", Detail: "reduction factor is NaN"}
	}
	for i := range demand {
		demand[i] *= factor
	}
	return demand, nil
}

// AddDeficit updates the cumulative water deficit curve of every agent with
// today's per-agent deficit (m3). dayOfYear is 1-based.
func AddDeficit(deficit *store.Array[float64], today []float64, dayOfYear int, leap bool) {
	d := dayOfYear - 1
	for i := 0; i < deficit.N(); i++ {
		if d == 0 {
			deficit.SetAt(i, 0, today[i])
			continue
		}
		deficit.SetAt(i, d, deficit.At(i, d-1)+today[i])
		if dayOfYear == 365 && !leap {
			deficit.SetAt(i, 365, deficit.At(i, 364))
		}
	}
}
