package farmers

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/talgya/farm-agents/internal/decision"
)

// groupKey identifies agents that share a crop rotation, an elevation band,
// a farmer class and command area membership.
type groupKey struct {
	rotation string
	band     int32
	class    int32
	command  bool
}

func rotationKey(crops []int32) string {
	parts := make([]string, len(crops))
	for k, c := range crops {
		parts[k] = strconv.Itoa(int(c))
	}
	return strings.Join(parts, ",")
}

func compareKeys(a, b groupKey) int {
	if c := strings.Compare(a.rotation, b.rotation); c != 0 {
		return c
	}
	if a.band != b.band {
		return int(a.band - b.band)
	}
	if a.class != b.class {
		return int(a.class - b.class)
	}
	switch {
	case a.command == b.command:
		return 0
	case b.command:
		return -1
	}
	return 1
}

// Groups assigns every agent to a homogeneous group. Ids follow the sorted
// group keys, so the same population always gets the same ids.
type Groups struct {
	Members [][]int32
	keys    []groupKey
	ids     map[groupKey]int32
	band    []int32
}

// buildGroups groups the population and stores each agent's group id.
func (f *Farmers) buildGroups() *Groups {
	n := f.N()
	g := &Groups{ids: make(map[groupKey]int32), band: decision.Bands(f.Elevation.Data(), f.p.ElevationBands)}
	agentKeys := make([]groupKey, n)
	for i := 0; i < n; i++ {
		k := f.keyOf(i, f.Calendar.Crops(i), g.band[i], f.Class.Get(i))
		agentKeys[i] = k
		if _, ok := g.ids[k]; !ok {
			g.ids[k] = -1
			g.keys = append(g.keys, k)
		}
	}
	slices.SortFunc(g.keys, compareKeys)
	for id, k := range g.keys {
		g.ids[k] = int32(id)
	}
	g.Members = make([][]int32, len(g.keys))
	for i, k := range agentKeys {
		id := g.ids[k]
		g.Members[id] = append(g.Members[id], int32(i))
		f.Group.Set(i, id)
	}
	f.groups = g
	return g
}

func (f *Farmers) keyOf(i int, rotation []int32, band, class int32) groupKey {
	return groupKey{rotation: rotationKey(rotation), band: band, class: class, command: f.commandArea[i] != -1}
}

// lookup returns the members of the group with the given key, or nil.
func (g *Groups) lookup(k groupKey) []int32 {
	if id, ok := g.ids[k]; ok {
		return g.Members[id]
	}
	return nil
}

// fitRelations fits the exponential yield ratio / drought probability relation
// of every group on its yearly mean yield ratio and mean SPEI probability, and
// hands the coefficients to each member. Degenerate groups get no relation.
func (f *Farmers) fitRelations() {
	g := f.groups
	if g == nil {
		g = f.buildGroups()
	}
	degenerate := 0
	for id, members := range g.Members {
		rel, years := f.fitMembers(members)
		if !rel.Valid() {
			degenerate++
			slog.Debug("degenerate yield relation", "group", id, "members", len(members), "years", years)
		}
		for _, j := range members {
			f.RelationA.Set(int(j), rel.A)
			f.RelationB.Set(int(j), rel.B)
		}
	}
	if degenerate > 0 {
		slog.Warn("groups without a yield-probability relation", "groups", degenerate, "of", len(g.Members))
	}
	f.fitted = true
}

// fitMembers fits the yield-probability relation to the yearly means of
// agents. It also returns the number of years with data.
func (f *Farmers) fitMembers(agents []int32) (decision.Relation, int) {
	years := f.YieldRatio.Years()
	prob := make([]float64, 0, years)
	ratio := make([]float64, 0, years)
	for age := 0; age < years; age++ {
		var p, y float64
		var count int
		for _, j := range agents {
			pj, yj := f.SPEIProbability.Value(int(j), age), f.YieldRatio.Value(int(j), age)
			if math.IsNaN(pj) || math.IsNaN(yj) {
				continue
			}
			p += pj
			y += yj
			count++
		}
		if count == 0 {
			continue
		}
		prob = append(prob, p/float64(count))
		ratio = append(ratio, y/float64(count))
	}
	return decision.FitRelation(prob, ratio), len(prob)
}

// relation returns the fitted relation of agent i.
func (f *Farmers) relation(i int) decision.Relation {
	return decision.Relation{A: f.RelationA.Get(i), B: f.RelationB.Get(i)}
}

// meanRatios returns the mean yield ratio per drought bin over agents with a
// relation, or nil when none has one.
func (f *Farmers) meanRatios(agents []int32) []float64 {
	var sum []float64
	count := 0
	for _, j := range agents {
		r := f.relation(int(j))
		if !r.Valid() {
			continue
		}
		ratios := r.YieldRatios()
		if sum == nil {
			sum = make([]float64, len(ratios))
		}
		for k, v := range ratios {
			sum[k] += v
		}
		count++
	}
	if count == 0 {
		return nil
	}
	for k := range sum {
		sum[k] /= float64(count)
	}
	return sum
}

// gain returns the difference per drought bin between the yield ratios of
// two sets of agents, each from a relation fitted to its own history. A set
// without a relation gives zero gain.
func (f *Farmers) gain(with, without []int32) []float64 {
	out := make([]float64, len(decision.ReturnPeriods))
	if len(with) == 0 || len(without) == 0 {
		return out
	}
	a, _ := f.fitMembers(with)
	b, _ := f.fitMembers(without)
	if !a.Valid() || !b.Valid() {
		return out
	}
	ra, rb := a.YieldRatios(), b.YieldRatios()
	for k := range out {
		out[k] = ra[k] - rb[k]
	}
	return out
}

func (f *Farmers) requireRelation() error {
	if !f.fitted {
		return fmt.Errorf("%w: fit relations before evaluating adaptations", ErrNoYieldRelation)
	}
	return nil
}
