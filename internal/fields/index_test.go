package fields

import (
	"errors"
	"slices"
	"testing"
)

func TestIndexGroupsFieldsByOwner(t *testing.T) {
	owners := []int32{2, -1, 0, 2, 1, -1, 0}
	ix, err := Build(owners, 4)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := map[int][]int32{0: {2, 6}, 1: {4}, 2: {0, 3}, 3: {}}
	for agent, fs := range want {
		if got := ix.Fields(agent); !slices.Equal(got, fs) {
			t.Errorf("agent %d fields=%v, want %v", agent, got, fs)
		}
	}
	if got := ix.Compact(); !slices.Equal(got, []int32{2, 6, 4, 0, 3}) {
		t.Fatalf("compact=%v", got)
	}
}

func TestIndexRebuildIsIdempotent(t *testing.T) {
	owners := []int32{1, 1, 0, -1, 3, 2, 0, 3}
	ix, err := Build(owners, 4)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	compact, offsets := ix.Compact(), ix.Offsets()
	if err := ix.Rebuild(owners, 4); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if !slices.Equal(compact, ix.Compact()) || !slices.Equal(offsets, ix.Offsets()) {
		t.Fatalf("rebuild changed index: %v/%v -> %v/%v", compact, offsets, ix.Compact(), ix.Offsets())
	}
}

func TestIndexRejectsDeadOwner(t *testing.T) {
	if _, err := Build([]int32{0, 2}, 2); !errors.Is(err, ErrOwner) {
		t.Fatalf("err=%v, want ErrOwner", err)
	}
	if _, err := Build([]int32{-3}, 2); !errors.Is(err, ErrOwner) {
		t.Fatalf("err=%v, want ErrOwner", err)
	}
}

func TestLandReleaseAndChecks(t *testing.T) {
	l, err := NewLand(3)
	if err != nil {
		t.Fatalf("NewLand: %v", err)
	}
	l.Owner.Set(0, 0)
	l.Owner.Set(1, 1)
	l.Crop.Set(1, 4)
	l.Age.Set(1, 10)
	l.HarvestAge.Set(1, 9)
	if err := l.CheckAges(); !errors.Is(err, ErrAge) {
		t.Fatalf("CheckAges err=%v, want ErrAge", err)
	}
	if err := l.CheckOwners(1); !errors.Is(err, ErrOwner) {
		t.Fatalf("CheckOwners err=%v, want ErrOwner", err)
	}

	l.Release(1, GrasslandLike)
	if l.Owner.Get(1) != Unowned || l.Growing(1) || l.HarvestAge.Get(1) != -1 {
		t.Fatalf("field not released")
	}
	if err := l.CheckAges(); err != nil {
		t.Fatalf("CheckAges after release: %v", err)
	}
	if err := l.CheckOwners(1); err != nil {
		t.Fatalf("CheckOwners after release: %v", err)
	}
}
