package social

import (
	"slices"
	"testing"

	"github.com/talgya/farm-agents/internal/entropy"
)

func TestBuildWithinRadius(t *testing.T) {
	x := []float64{0, 1, 2, 10, 10.5}
	y := []float64{0, 0, 0, 10, 10}
	nw, err := NewNetwork(5, 8, 3)
	if err != nil {
		t.Fatalf("NewNetwork: %v", err)
	}
	if err := nw.Build(x, y, 1.5, entropy.New(1)); err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := nw.Neighbours(1)
	slices.Sort(got)
	if !slices.Equal(got, []int32{0, 2}) {
		t.Fatalf("neighbours of 1 = %v", got)
	}
	if got := nw.Neighbours(3); !slices.Equal(got, []int32{4}) {
		t.Fatalf("neighbours of 3 = %v", got)
	}
	if nw.Any(0, func(j int) bool { return j == 2 }) {
		t.Fatal("agent 2 is out of reach of agent 0")
	}
}

func TestBuildCapsSize(t *testing.T) {
	n := 20
	x := make([]float64, n)
	y := make([]float64, n)
	nw, _ := NewNetwork(n, n, 4)
	if err := nw.Build(x, y, 1, entropy.New(7)); err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i := 0; i < n; i++ {
		nb := nw.Neighbours(i)
		if len(nb) != 4 || slices.Contains(nb, int32(i)) {
			t.Fatalf("agent %d neighbours %v", i, nb)
		}
	}
	other, _ := NewNetwork(n, n, 4)
	other.Build(x, y, 1, entropy.New(7))
	for i := 0; i < n; i++ {
		if !slices.Equal(nw.Neighbours(i), other.Neighbours(i)) {
			t.Fatalf("same seed built different networks for agent %d", i)
		}
	}
}

func TestRemoveRelabels(t *testing.T) {
	nw, _ := NewNetwork(0, 4, 2)
	nw.Add([]int32{1, 3})
	nw.Add([]int32{0})
	nw.Add([]int32{3})
	nw.Add([]int32{1, 2})
	if err := nw.Remove(1, 3); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := nw.Neighbours(0); !slices.Equal(got, []int32{1}) {
		t.Fatalf("agent 0 neighbours %v, want the moved agent as 1", got)
	}
	if got := nw.Neighbours(1); !slices.Equal(got, []int32{2}) {
		t.Fatalf("moved agent neighbours %v", got)
	}
	if got := nw.Neighbours(2); !slices.Equal(got, []int32{1}) {
		t.Fatalf("agent 2 neighbours %v", got)
	}
}
