/*
settlement.go - Payment waterfall

PURPOSE:
  Applies one payment to the loan and records the immutable Settlement.
  Every entry point (RecordPayment, PayInstallment, AnticipatePayment,
  Replay) ends in settle(), which is the only code that advances the
  running state.

WATERFALL (per payment, until the amount is exhausted):
  1. Fines: outstanding fines, oldest due date first
  2. Mora: interest accrued beyond the due date of the first uncovered
     installment, up to the interest date
  3. Interest: regular interest from the interest reference date up to the
     interest date (capped at that due date when overdue)
  4. Principal: target installments first (anticipation), then in due-date
     order; an installment is covered once its baseline principal is paid

CARRY-OVER:
  Interest and mora accrued but not paid are carried to the next payment.
  The interest reference date only moves forward.

OVERPAYMENT:
  Anything left after every installment is covered is booked as principal on
  the last installment; the principal balance is clamped at zero.

SEE ALSO:
  - fines.go: consulted before every allocation
  - rebuild.go: schedule after payments
*/
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/warp/loan-ledger/finance"
	"go.uber.org/zap"
)

// =============================================================================
// ENTRY POINTS
// =============================================================================

// RecordPayment applies amount paid at paidAt. Interest is charged up to
// paidAt unless WithInterestDate says otherwise.
func (l *Loan) RecordPayment(amount finance.Money, paidAt time.Time, opts ...PaymentOption) (Settlement, error) {
	ev := PaymentEvent{
		Kind:   PaymentRecorded,
		Amount: amount,
		PaidAt: finance.Normalize(paidAt),
	}
	for _, opt := range opts {
		opt(&ev)
	}
	if err := l.validateEvent(&ev); err != nil {
		return Settlement{}, err
	}
	return l.append(ev), nil
}

// PayInstallment pays the next uncovered installment now. Interest runs to
// its due date, or to now when it is already overdue.
func (l *Loan) PayInstallment(amount finance.Money, opts ...PaymentOption) (Settlement, error) {
	k := l.firstUncovered()
	if k < 0 {
		return Settlement{}, ErrNoUnpaidDueDates
	}

	now := l.clock.Now()
	interestDate := l.dueDates[k]
	if now.After(interestDate) {
		interestDate = now
	}

	ev := PaymentEvent{
		Kind:         PaymentInstallment,
		Amount:       amount,
		PaidAt:       now,
		InterestDate: interestDate,
	}
	for _, opt := range opts {
		opt(&ev)
	}
	if err := l.validateEvent(&ev); err != nil {
		return Settlement{}, err
	}
	return l.append(ev), nil
}

// Replay applies a persisted journal in order. Every event is validated
// before the first one is applied.
func (l *Loan) Replay(events []PaymentEvent) error {
	evs := make([]PaymentEvent, len(events))
	for i, ev := range events {
		evs[i] = ev.clone()
		if err := l.validateEvent(&evs[i]); err != nil {
			return fmt.Errorf("replay event %d (%s): %w", i+1, ev.ID, err)
		}
	}
	for _, ev := range evs {
		l.append(ev)
	}
	l.logger.Debug("journal replayed", zap.Int("events", len(evs)))
	return nil
}

func (l *Loan) validateEvent(ev *PaymentEvent) error {
	if !ev.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidPayment, ev.Amount)
	}
	if ev.PaidAt.IsZero() {
		return &finance.DateError{Input: ev.PaidAt}
	}
	ev.Amount = ev.Amount.Round()
	ev.PaidAt = finance.Normalize(ev.PaidAt)
	if ev.InterestDate.IsZero() {
		ev.InterestDate = ev.PaidAt
	}
	for _, n := range ev.Targets {
		if err := l.checkInstallment(n); err != nil {
			return err
		}
	}
	return nil
}

// append journals a validated event and settles it. It cannot fail.
func (l *Loan) append(ev PaymentEvent) Settlement {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.Seq = len(l.payments) + 1

	s := l.settle(ev)

	l.payments = append(l.payments, ev)
	l.settlements = append(l.settlements, s)
	l.rebuilt = nil

	l.logger.Debug("payment settled",
		zap.String("op", string(ev.Kind)),
		zap.String("payment_id", ev.ID),
		zap.String("amount", ev.Amount.String()),
		zap.Time("paid_at", ev.PaidAt),
		zap.String("fine", s.FinePaid.String()),
		zap.String("mora", s.MoraPaid.String()),
		zap.String("interest", s.InterestPaid.String()),
		zap.String("principal", s.PrincipalPaid.String()),
		zap.String("remaining", s.RemainingBalance.String()))
	return s.clone()
}

// =============================================================================
// ALLOCATION
// =============================================================================

// allocator accumulates one settlement's allocations.
type allocator struct {
	l         *Loan
	s         *Settlement
	remaining finance.Money
	byNumber  map[int]*SettlementAllocation
}

func (a *allocator) get(n int) *SettlementAllocation {
	if alloc, ok := a.byNumber[n]; ok {
		return alloc
	}
	alloc := &SettlementAllocation{
		Installment:      n,
		BeginningBalance: a.l.principalBalance,
		EndingBalance:    a.l.principalBalance,
	}
	a.byNumber[n] = alloc
	return alloc
}

// take returns how much of owed the remaining amount covers and deducts it.
func (a *allocator) take(owed finance.Money) finance.Money {
	if !owed.IsPositive() || !a.remaining.IsPositive() {
		return finance.Zero
	}
	pay := owed.Min(a.remaining)
	a.remaining = a.remaining.Sub(pay)
	return pay
}

func (a *allocator) principal(i int, pay finance.Money) {
	alloc := a.get(i + 1)
	if alloc.Principal.IsZero() {
		alloc.BeginningBalance = a.l.principalBalance
	}
	a.l.paidPrincipal[i] = a.l.paidPrincipal[i].Add(pay)
	a.l.principalBalance = a.l.principalBalance.Sub(pay).ClampZero()
	alloc.Principal = alloc.Principal.Add(pay)
	alloc.EndingBalance = a.l.principalBalance
	a.s.PrincipalPaid = a.s.PrincipalPaid.Add(pay)
}

// settle runs the waterfall for ev and returns the resulting Settlement.
func (l *Loan) settle(ev PaymentEvent) Settlement {
	l.CalculateLateFines(ev.PaidAt)

	s := Settlement{
		ID:           l.settlementID(ev),
		PaymentID:    ev.ID,
		Amount:       ev.Amount,
		PaidAt:       ev.PaidAt,
		InterestDate: ev.InterestDate,
		Description:  ev.Description,
	}
	a := &allocator{l: l, s: &s, remaining: ev.Amount, byNumber: map[int]*SettlementAllocation{}}

	// 1. Fines
	for _, i := range l.fineOrder() {
		pay := a.take(l.fines[i].Amount.Sub(l.finesPaid[i]))
		if pay.IsZero() {
			continue
		}
		l.finesPaid[i] = l.finesPaid[i].Add(pay)
		alloc := a.get(l.fines[i].Installment)
		alloc.Fine = alloc.Fine.Add(pay)
		s.FinePaid = s.FinePaid.Add(pay)
	}

	// 2-3. Mora and regular interest, both booked on the first uncovered
	// installment (the last one once everything is covered)
	regular, mora := l.pendingAccrual(ev.InterestDate)
	l.unpaidInterest = l.unpaidInterest.Add(regular)
	l.unpaidMora = l.unpaidMora.Add(mora)
	l.interestRef = finance.MaxTime(l.interestRef, ev.InterestDate)

	k := l.firstUncovered()
	owner := k + 1
	if k < 0 {
		owner = len(l.dueDates)
	}
	if pay := a.take(l.unpaidMora); pay.IsPositive() {
		l.unpaidMora = l.unpaidMora.Sub(pay)
		alloc := a.get(owner)
		alloc.Mora = alloc.Mora.Add(pay)
		s.MoraPaid = pay
	}
	if pay := a.take(l.unpaidInterest); pay.IsPositive() {
		l.unpaidInterest = l.unpaidInterest.Sub(pay)
		alloc := a.get(owner)
		alloc.Interest = alloc.Interest.Add(pay)
		s.InterestPaid = pay
	}

	// 4. Principal
	for _, i := range l.principalOrder(ev.Targets, k) {
		owed := l.original.Entries[i].Principal.Sub(l.paidPrincipal[i]).Min(l.principalBalance)
		if pay := a.take(owed); pay.IsPositive() {
			a.principal(i, pay)
		}
	}
	if a.remaining.IsPositive() {
		a.principal(len(l.dueDates)-1, a.take(a.remaining))
	}

	s.RemainingBalance = l.principalBalance
	s.Allocations = make([]SettlementAllocation, 0, len(a.byNumber))
	for n, alloc := range a.byNumber {
		alloc.FullyCovered = l.covered(n - 1)
		s.Allocations = append(s.Allocations, *alloc)
	}
	sort.Slice(s.Allocations, func(i, j int) bool {
		return s.Allocations[i].Installment < s.Allocations[j].Installment
	})
	return s
}

// settlementID derives the settlement ID from the loan and payment IDs, so a
// replayed or warped journal yields the same IDs as the original.
func (l *Loan) settlementID(ev PaymentEvent) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(l.id+"/"+ev.ID)).String()
}

// pendingAccrual splits the interest accrued between the interest reference
// date and to into regular interest and mora. Nothing in it is booked.
func (l *Loan) pendingAccrual(to time.Time) (regular, mora finance.Money) {
	from := l.interestRef
	if !to.After(from) || !l.principalBalance.IsPositive() {
		return finance.Zero, finance.Zero
	}

	total := l.rate.Accrue(l.principalBalance, finance.DaysBetween(from, to))
	k := l.firstUncovered()
	if k < 0 {
		return total, finance.Zero
	}

	due := l.dueDates[k]
	switch {
	case !to.After(due):
		return total, finance.Zero
	case !from.Before(due):
		return finance.Zero, total
	}
	regular = l.rate.Accrue(l.principalBalance, finance.DaysBetween(from, due))
	return regular, total.Sub(regular).ClampZero()
}

// fineOrder returns fine indexes ordered by due date, then application order.
func (l *Loan) fineOrder() []int {
	order := make([]int, len(l.fines))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return l.fines[order[a]].DueDate.Before(l.fines[order[b]].DueDate)
	})
	return order
}

// principalOrder lists installment indexes in the order principal is applied:
// targets first, then every installment from the first uncovered one.
func (l *Loan) principalOrder(targets []int, first int) []int {
	seen := make(map[int]bool, len(l.dueDates))
	var order []int

	sorted := append([]int(nil), targets...)
	sort.Ints(sorted)
	for _, n := range sorted {
		if !seen[n-1] {
			seen[n-1] = true
			order = append(order, n-1)
		}
	}
	if first < 0 {
		return order
	}
	for i := first; i < len(l.dueDates); i++ {
		if !seen[i] {
			seen[i] = true
			order = append(order, i)
		}
	}
	return order
}
