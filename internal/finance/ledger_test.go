package finance

import (
	"math"
	"testing"
)

func TestAnnuity(t *testing.T) {
	// 1000 at 5% over 2 years: 1000 * 0.05 * 1.1025 / 0.1025
	want := 1000 * 0.05 * 1.1025 / 0.1025
	if got := Annuity(1000, 0.05, 2); math.Abs(got-want) > 1e-9 {
		t.Fatalf("annuity=%v, want %v", got, want)
	}
	if got := Annuity(1000, 0, 4); got != 250 {
		t.Fatalf("zero rate annuity=%v, want 250", got)
	}
}

func TestLedgerSlotsAndExpiry(t *testing.T) {
	l, err := NewLedger(2, 4)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	for k := 0; k < SlotsPerType; k++ {
		if slot := l.Take(0, Input, 10, 2); slot != k {
			t.Fatalf("loan %d went to slot %d", k, slot)
		}
	}
	if slot := l.Take(0, Input, 10, 2); slot != -1 {
		t.Fatalf("fifth input loan accepted in slot %d", slot)
	}
	l.Take(0, Well, 5, 1)
	if l.Total(0) != 45 || l.TypeTotal(0, Input) != 40 || l.Total(1) != 0 {
		t.Fatalf("total=%v input=%v other=%v", l.Total(0), l.TypeTotal(0, Input), l.Total(1))
	}

	l.Update()
	if l.Total(0) != 40 || l.TypeTotal(0, Well) != 0 {
		t.Fatalf("after one year total=%v well=%v, want 40/0", l.Total(0), l.TypeTotal(0, Well))
	}
	if _, left := l.Loan(0, Input, 0); left != 1 {
		t.Fatalf("years left=%d, want 1", left)
	}
	l.Update()
	if l.Total(0) != 0 {
		t.Fatalf("after two years total=%v, want 0", l.Total(0))
	}
	if slot := l.Take(0, Input, 3, 2); slot != 0 {
		t.Fatalf("freed slot not reused: %d", slot)
	}
}

func TestLedgerMoveRow(t *testing.T) {
	l, _ := NewLedger(2, 2)
	l.Take(1, Microcredit, 7, 3)
	l.CopyRow(0, 1)
	if err := l.SetN(1); err != nil {
		t.Fatalf("SetN: %v", err)
	}
	if l.TypeTotal(0, Microcredit) != 7 || l.Total(0) != 7 {
		t.Fatalf("moved ledger total=%v", l.Total(0))
	}
	if got := l.Adjusted(0, 1.4); math.Abs(got-5) > 1e-12 {
		t.Fatalf("adjusted=%v, want 5", got)
	}
}
