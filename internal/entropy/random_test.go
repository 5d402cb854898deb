package entropy

import "testing"

func TestSourceDeterministic(t *testing.T) {
	a, b := New(42), New(42)
	for i := 0; i < 10; i++ {
		if x, y := a.Float(), b.Float(); x != y {
			t.Fatalf("draw %d differs: %v vs %v", i, x, y)
		}
	}
}

func TestSourceSnapshotRestore(t *testing.T) {
	s := New(7)
	s.Perm(20)
	state, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	want := s.Floats(5)

	r := New(1)
	if err := r.Restore(state); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got := r.Floats(5)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("draw %d after restore = %v, want %v", i, got[i], want[i])
		}
	}
}
