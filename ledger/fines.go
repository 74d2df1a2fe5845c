package ledger

import (
	"time"

	"github.com/warp/loan-ledger/finance"
	"go.uber.org/zap"
)

// =============================================================================
// FINE ENGINE - One late fee per overdue due date
// =============================================================================

// CalculateLateFines applies a fine to every due date that is more than the
// grace period behind asOf, still uncovered and not fined yet. It returns the
// total of the fines applied by this call.
//
// Calling it again with the same or an earlier date applies nothing. A later
// date may fine additional due dates in one call.
func (l *Loan) CalculateLateFines(asOf time.Time) finance.Money {
	asOf = finance.Normalize(asOf)
	rate, ok := l.fineRate.At(asOf)
	if !ok || rate.IsZero() {
		return finance.Zero
	}
	grace, _ := l.gracePeriod.At(asOf)

	applied := finance.Zero
	for i, due := range l.dueDates {
		if finance.DaysBetween(due, asOf) <= grace {
			// Due dates are sorted; nothing later is overdue either.
			break
		}
		if l.covered(i) || l.hasFine(i+1) {
			continue
		}

		fine := Fine{
			Installment: i + 1,
			DueDate:     due,
			Rate:        rate,
			Amount:      l.original.Entries[i].Payment.Mul(rate).Round(),
			AppliedAt:   asOf,
		}
		l.fines = append(l.fines, fine)
		l.finesPaid = append(l.finesPaid, finance.Zero)
		applied = applied.Add(fine.Amount)

		l.logger.Debug("late fine applied",
			zap.Int("installment", fine.Installment),
			zap.String("amount", fine.Amount.String()),
			zap.Time("as_of", asOf))
	}
	return applied
}

func (l *Loan) hasFine(installment int) bool {
	for _, f := range l.fines {
		if f.Installment == installment {
			return true
		}
	}
	return false
}

// fineFor returns the fine recorded for an installment and what was paid of it.
func (l *Loan) fineFor(installment int) (Fine, finance.Money, bool) {
	for i, f := range l.fines {
		if f.Installment == installment {
			return f, l.finesPaid[i], true
		}
	}
	return Fine{}, finance.Zero, false
}
