package ledger

import (
	"sort"

	"github.com/warp/loan-ledger/finance"
)

// =============================================================================
// ANTICIPATION - Paying installments before their due date
// =============================================================================

// AnticipationResult quotes what it costs to settle installments now.
//
// Amount charges interest only up to now, so it is lower than the scheduled
// amount (baseline interest) when paid early; the difference is Discount.
type AnticipationResult struct {
	Installments    []int
	Fines           finance.Money
	Mora            finance.Money
	Interest        finance.Money
	Principal       finance.Money
	Amount          finance.Money
	ScheduledAmount finance.Money
	Discount        finance.Money
}

// CalculateAnticipation quotes the payment that settles the given
// installments at the clock's now. No numbers means every uncovered one.
func (l *Loan) CalculateAnticipation(numbers ...int) (AnticipationResult, error) {
	targets, err := l.anticipationTargets(numbers)
	if err != nil {
		return AnticipationResult{}, err
	}

	res := AnticipationResult{
		Installments: targets,
		Fines:        l.OutstandingFines(),
		Mora:         l.AccruedMora(),
		Interest:     l.AccruedInterest(),
	}
	scheduledInterest := finance.Zero
	for _, n := range targets {
		base := l.original.Entries[n-1]
		res.Principal = res.Principal.Add(base.Principal.Sub(l.paidPrincipal[n-1]).ClampZero())
		scheduledInterest = scheduledInterest.Add(base.Interest)
	}
	res.Principal = res.Principal.Min(l.principalBalance)

	res.Amount = finance.Sum(res.Fines, res.Mora, res.Interest, res.Principal)
	res.ScheduledAmount = finance.Sum(res.Fines, res.Mora, scheduledInterest, res.Principal)
	res.Discount = res.ScheduledAmount.Sub(res.Amount).ClampZero()
	return res, nil
}

// AnticipatePayment pays amount now, charging interest only up to now. Target
// installments receive principal before any other.
func (l *Loan) AnticipatePayment(amount finance.Money, installments ...int) (Settlement, error) {
	var targets []int
	if len(installments) > 0 {
		var err error
		if targets, err = l.anticipationTargets(installments); err != nil {
			return Settlement{}, err
		}
	} else if l.firstUncovered() < 0 {
		return Settlement{}, ErrNoUnpaidDueDates
	}

	now := l.clock.Now()
	ev := PaymentEvent{
		Kind:         PaymentAnticipation,
		Amount:       amount,
		PaidAt:       now,
		InterestDate: now,
		Targets:      targets,
	}
	if err := l.validateEvent(&ev); err != nil {
		return Settlement{}, err
	}
	return l.append(ev), nil
}

// anticipationTargets validates installment numbers and returns them sorted
// and deduplicated.
func (l *Loan) anticipationTargets(numbers []int) ([]int, error) {
	if len(numbers) == 0 {
		var all []int
		for i := range l.dueDates {
			if !l.covered(i) {
				all = append(all, i+1)
			}
		}
		if len(all) == 0 {
			return nil, ErrNoUnpaidDueDates
		}
		return all, nil
	}

	seen := make(map[int]bool, len(numbers))
	var out []int
	for _, n := range numbers {
		if err := l.checkInstallment(n); err != nil {
			return nil, err
		}
		if l.covered(n - 1) {
			return nil, &InstallmentError{Number: n, Err: ErrInstallmentPaid}
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out, nil
}
