package ledger

import (
	"time"

	"github.com/warp/loan-ledger/finance"
)

// =============================================================================
// INSTALLMENT PROJECTOR - Derived view, never stored
// =============================================================================

// Installment is the state of one due date as of the loan clock.
//
// Expected amounts come from the baseline schedule, except that a covered
// installment expects the interest actually allocated to it. Mora is expected
// only on what was allocated plus, for the first uncovered installment once
// overdue, the mora accrued so far.
type Installment struct {
	Number  int
	DueDate time.Time
	Days    int

	ExpectedPayment   finance.Money
	ExpectedPrincipal finance.Money
	ExpectedInterest  finance.Money
	ExpectedMora      finance.Money
	ExpectedFine      finance.Money

	PaidPrincipal finance.Money
	PaidInterest  finance.Money
	PaidMora      finance.Money
	PaidFine      finance.Money

	Balance     finance.Money
	IsFullyPaid bool
	IsOverdue   bool

	Allocations []SettlementAllocation
}

// PaidTotal is everything paid towards the installment.
func (i Installment) PaidTotal() finance.Money {
	return finance.Sum(i.PaidPrincipal, i.PaidInterest, i.PaidMora, i.PaidFine)
}

// Installments projects every installment at the clock's now.
func (l *Loan) Installments() []Installment {
	now := l.clock.Now()
	k := l.firstUncovered()
	_, mora := l.pendingAccrual(now)

	out := make([]Installment, len(l.dueDates))
	for i := range l.dueDates {
		out[i] = l.project(i, now, k, mora)
	}
	return out
}

// Installment projects installment n (1-based).
func (l *Loan) Installment(n int) (Installment, error) {
	if err := l.checkInstallment(n); err != nil {
		return Installment{}, err
	}
	now := l.clock.Now()
	_, mora := l.pendingAccrual(now)
	return l.project(n-1, now, l.firstUncovered(), mora), nil
}

// InstallmentFor projects the installment due on dueDate.
func (l *Loan) InstallmentFor(dueDate time.Time) (Installment, error) {
	i, err := l.dueDateIndex(dueDate)
	if err != nil {
		return Installment{}, err
	}
	return l.Installment(i + 1)
}

func (l *Loan) project(i int, now time.Time, firstUncovered int, pendingMora finance.Money) Installment {
	base := l.original.Entries[i]
	n := i + 1
	inst := Installment{
		Number:            n,
		DueDate:           base.DueDate,
		Days:              base.Days,
		ExpectedPayment:   base.Payment,
		ExpectedPrincipal: base.Principal,
	}

	for _, s := range l.settlements {
		alloc, ok := s.Allocation(n)
		if !ok {
			continue
		}
		inst.PaidPrincipal = inst.PaidPrincipal.Add(alloc.Principal)
		inst.PaidInterest = inst.PaidInterest.Add(alloc.Interest)
		inst.PaidMora = inst.PaidMora.Add(alloc.Mora)
		inst.PaidFine = inst.PaidFine.Add(alloc.Fine)
		inst.Allocations = append(inst.Allocations, alloc)
	}

	covered := l.covered(i)
	if covered {
		inst.ExpectedInterest = inst.PaidInterest
	} else {
		inst.ExpectedInterest = base.Interest
	}

	inst.IsOverdue = !covered && finance.DaysBetween(base.DueDate, now) > 0
	inst.ExpectedMora = inst.PaidMora
	if i == firstUncovered && inst.IsOverdue {
		inst.ExpectedMora = inst.ExpectedMora.Add(l.unpaidMora).Add(pendingMora)
	}
	if f, _, ok := l.fineFor(n); ok {
		inst.ExpectedFine = f.Amount
	}

	inst.Balance = finance.Sum(
		inst.ExpectedPrincipal.Sub(inst.PaidPrincipal).ClampZero(),
		inst.ExpectedInterest.Sub(inst.PaidInterest).ClampZero(),
		inst.ExpectedMora.Sub(inst.PaidMora).ClampZero(),
		inst.ExpectedFine.Sub(inst.PaidFine).ClampZero(),
	)
	inst.IsFullyPaid = covered && inst.Balance.IsZero()
	return inst
}
