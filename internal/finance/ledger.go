// Package finance tracks the loans of every agent: annual repayments per loan
// type and slot, the years left on each loan, and the running total of annual
// costs used by adaptation decisions.
package finance

import (
	"fmt"
	"math"

	"github.com/talgya/farm-agents/internal/store"
)

// LoanType is the purpose of a loan.
type LoanType int

const (
	Input LoanType = iota
	Microcredit
	Well
	Efficiency
	Expansion
	Water

	NumLoanTypes = 6
)

var loanTypeNames = [NumLoanTypes]string{"input", "microcredit", "well", "efficiency", "expansion", "water"}

func (t LoanType) String() string {
	if t >= 0 && int(t) < NumLoanTypes {
		return loanTypeNames[t]
	}
	return fmt.Sprintf("loan(%d)", int(t))
}

// SlotsPerType is the number of concurrent loans of one type an agent can hold.
const SlotsPerType = 4

// totalColumn holds the running total of annual costs.
const totalColumn = NumLoanTypes * SlotsPerType

// Annuity returns the constant annual payment repaying principal at rate over years.
func Annuity(principal, rate float64, years int) float64 {
	if years <= 0 {
		return principal
	}
	if rate == 0 {
		return principal / float64(years)
	}
	f := math.Pow(1+rate, float64(years))
	return principal * rate * f / (f - 1)
}

// Ledger holds the loans of every agent.
type Ledger struct {
	annual  *store.Array[float64] // NumLoanTypes*SlotsPerType slots, then the total
	tracker *store.Array[int32]   // years left per slot
}

// NewLedger allocates an empty ledger for n agents with capacity maxN.
func NewLedger(n, maxN int) (*Ledger, error) {
	annual, err := store.New[float64](n, maxN, totalColumn+1, 0)
	if err != nil {
		return nil, fmt.Errorf("allocate loans: %w", err)
	}
	tracker, err := store.New[int32](n, maxN, totalColumn, 0)
	if err != nil {
		return nil, fmt.Errorf("allocate loan tracker: %w", err)
	}
	return &Ledger{annual: annual, tracker: tracker}, nil
}

// Register adds the ledger arrays to a checkpoint bucket.
func (l *Ledger) Register(b *store.Bucket) error {
	if err := b.Add("all_loans_annual_cost", l.annual); err != nil {
		return err
	}
	return b.Add("loan_tracker", l.tracker)
}

// Take books a loan for agent i in the first free slot of type t and adds its
// annual cost to the total. It returns the slot, or -1 when every slot of the
// type is taken and the loan is refused.
func (l *Ledger) Take(i int, t LoanType, annualCost float64, years int) int {
	if math.IsNaN(annualCost) || annualCost <= 0 {
		return -1
	}
	for k := 0; k < SlotsPerType; k++ {
		col := int(t)*SlotsPerType + k
		if l.annual.At(i, col) != 0 {
			continue
		}
		l.annual.SetAt(i, col, annualCost)
		l.tracker.SetAt(i, col, int32(years))
		l.annual.SetAt(i, totalColumn, l.annual.At(i, totalColumn)+annualCost)
		return k
	}
	return -1
}

// Total returns the annual cost of every loan of agent i.
func (l *Ledger) Total(i int) float64 { return l.annual.At(i, totalColumn) }

// TypeTotal returns the annual cost of the loans of type t held by agent i.
func (l *Ledger) TypeTotal(i int, t LoanType) float64 {
	var s float64
	for k := 0; k < SlotsPerType; k++ {
		s += l.annual.At(i, int(t)*SlotsPerType+k)
	}
	return s
}

// Loan returns the annual cost and years left of slot k of type t for agent i.
func (l *Ledger) Loan(i int, t LoanType, k int) (annualCost float64, yearsLeft int) {
	col := int(t)*SlotsPerType + k
	return l.annual.At(i, col), int(l.tracker.At(i, col))
}

// Update runs once a year: every running loan has one year less to go, and
// loans reaching zero are removed from the slots and from the total.
func (l *Ledger) Update() {
	for i := 0; i < l.annual.N(); i++ {
		row := l.annual.Row(i)
		left := l.tracker.Row(i)
		for col := 0; col < totalColumn; col++ {
			if left[col] != 0 {
				left[col]--
			}
			if left[col] == 0 && row[col] != 0 {
				row[totalColumn] -= row[col]
				row[col] = 0
			}
		}
		if math.Abs(row[totalColumn]) < 1e-9 {
			row[totalColumn] = 0
		}
	}
}

// Adjusted returns the total annual cost of agent i in start-year money.
func (l *Ledger) Adjusted(i int, cumulativeInflation float64) float64 {
	return l.Total(i) / cumulativeInflation
}

// SetN resizes the ledger with the population.
func (l *Ledger) SetN(n int) error {
	if err := l.annual.SetN(n); err != nil {
		return err
	}
	return l.tracker.SetN(n)
}

// CopyRow moves the loans of agent src onto agent dst.
func (l *Ledger) CopyRow(dst, src int) {
	l.annual.CopyRow(dst, src)
	l.tracker.CopyRow(dst, src)
}

// Clear drops every loan of agent i.
func (l *Ledger) Clear(i int) {
	clear(l.annual.Row(i))
	clear(l.tracker.Row(i))
}
