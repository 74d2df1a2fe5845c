package ledger

import (
	"sort"
	"time"

	"github.com/warp/loan-ledger/finance"
	"github.com/warp/loan-ledger/schedule"
	"go.uber.org/zap"
)

// =============================================================================
// SCHEDULE REBUILDER - Settled history + projected tail
// =============================================================================

// AmortizationSchedule returns the schedule as it stands after the payments
// made so far. Without payments it is the original schedule.
//
// Covered installments become settled entries whose balances come from the
// settlements that covered them. The uncovered ones are projected again by
// the loan's Scheduler using the principal balance, the remaining due dates
// and the interest reference date as the new disbursement. Entries keep their
// original numbers, and their principal always adds up to the loan principal.
func (l *Loan) AmortizationSchedule() schedule.PaymentSchedule {
	if len(l.payments) == 0 {
		return l.original.Clone()
	}
	if l.rebuilt != nil {
		return l.rebuilt.Clone()
	}

	settled, settledEnd := l.settledEntries()

	entries := make([]schedule.Entry, 0, len(l.dueDates))
	var tailNumbers []int
	var tailDates []time.Time

	for i, due := range l.dueDates {
		if e, ok := settled[i]; ok {
			entries = append(entries, e)
			continue
		}
		tailNumbers = append(tailNumbers, i+1)
		tailDates = append(tailDates, due)
	}

	if len(tailDates) > 0 {
		entries = l.mergeTail(entries, tailNumbers, tailDates, settledEnd.Sub(l.principalBalance))
	}

	rebuilt := schedule.New(entries)
	l.rebuilt = &rebuilt
	return rebuilt.Clone()
}

// coverage pairs an installment index with the settlement that covered it.
type coverage struct {
	index      int
	settlement int
}

// coverageOrder lists covered installments in the order they were covered.
// Installments covered by the same settlement keep due-date order.
func (l *Loan) coverageOrder() []coverage {
	var order []coverage
	for i := range l.dueDates {
		if !l.covered(i) {
			continue
		}
		c := coverage{index: i, settlement: len(l.settlements) - 1}
		for si, s := range l.settlements {
			if alloc, ok := s.Allocation(i + 1); ok && alloc.FullyCovered {
				c.settlement = si
				break
			}
		}
		order = append(order, c)
	}
	sort.SliceStable(order, func(a, b int) bool { return order[a].settlement < order[b].settlement })
	return order
}

// settledEntries builds one entry per covered installment, keyed by index.
// The last entry closed by a settlement ends at that settlement's remaining
// balance, so principal it sent to installments still uncovered is folded
// into that entry. Mora is reported as interest; fines are not part of the
// schedule. The second result is the balance after the last covering
// settlement, or the principal when nothing is covered.
func (l *Loan) settledEntries() (map[int]schedule.Entry, finance.Money) {
	order := l.coverageOrder()
	entries := make(map[int]schedule.Entry, len(order))
	balance := l.principal
	prev := -1

	for j, c := range order {
		base := l.original.Entries[c.index]
		e := schedule.Entry{
			Number:           c.index + 1,
			DueDate:          base.DueDate,
			Days:             base.Days,
			BeginningBalance: balance,
			Settled:          true,
		}
		for si, s := range l.settlements {
			alloc, ok := s.Allocation(c.index + 1)
			if !ok {
				continue
			}
			e.Interest = e.Interest.Add(alloc.Interest).Add(alloc.Mora)
			if si > prev && si <= c.settlement {
				e.Principal = e.Principal.Add(alloc.Principal)
			}
		}

		if j == len(order)-1 || order[j+1].settlement != c.settlement {
			e.EndingBalance = l.settlements[c.settlement].RemainingBalance
			e.Principal = e.BeginningBalance.Sub(e.EndingBalance).ClampZero()
			prev = c.settlement
		} else {
			e.EndingBalance = e.BeginningBalance.Sub(e.Principal).ClampZero()
		}
		e.Payment = e.Principal.Add(e.Interest)

		balance = e.EndingBalance
		entries[c.index] = e
	}
	return entries, balance
}

// mergeTail projects the uncovered installments and merges them with the
// settled entries by number. paid is principal already paid towards the
// tail; it is shown on the first tail entry.
func (l *Loan) mergeTail(settled []schedule.Entry, numbers []int, dates []time.Time, paid finance.Money) []schedule.Entry {
	var tail []schedule.Entry
	if l.principalBalance.IsPositive() {
		projected, err := l.scheduler.GenerateSchedule(l.principalBalance, l.rate, dates, l.interestRef)
		if err != nil {
			l.logger.Warn("tail projection failed", zap.Error(err))
		} else {
			tail = projected.Entries
		}
	}
	if tail == nil {
		tail = make([]schedule.Entry, len(dates))
		for j, d := range dates {
			tail[j] = schedule.Entry{DueDate: d, BeginningBalance: l.principalBalance, EndingBalance: l.principalBalance}
		}
	}
	for j := range tail {
		tail[j].Number = numbers[j]
	}
	if paid.IsPositive() {
		tail[0].BeginningBalance = tail[0].BeginningBalance.Add(paid)
		tail[0].Principal = tail[0].Principal.Add(paid)
		tail[0].Payment = tail[0].Payment.Add(paid)
	}

	merged := make([]schedule.Entry, 0, len(settled)+len(tail))
	si, ti := 0, 0
	for si < len(settled) || ti < len(tail) {
		if ti == len(tail) || (si < len(settled) && settled[si].Number < tail[ti].Number) {
			merged = append(merged, settled[si])
			si++
		} else {
			merged = append(merged, tail[ti])
			ti++
		}
	}
	return merged
}

// RemainingDueDates returns the due dates of uncovered installments.
func (l *Loan) RemainingDueDates() []time.Time {
	var out []time.Time
	for i, d := range l.dueDates {
		if !l.covered(i) {
			out = append(out, d)
		}
	}
	return out
}

// InterestReference is the date interest has been charged up to.
func (l *Loan) InterestReference() time.Time { return l.interestRef }
