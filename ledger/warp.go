/*
warp.go - Point-in-time projection of a loan

PURPOSE:
  Lets a caller look at a loan as of any date, past or future, without
  touching the real loan.

HOW A SNAPSHOT IS BUILT:
  1. A fresh Loan with the same terms and a new Clock pinned at the cutoff
  2. Temporal terms (fine rate, grace period) rebound to that Clock
  3. Payment events with PaidAt <= cutoff replayed in call order
  4. Late fines re-derived at the cutoff

  Nothing is cloned: the snapshot is a projection of the journal, so it
  can never share mutable state with the original.

TIME MACHINE STATES:
  inactive --Warp()--> active --fn returns/errors/panics--> inactive

  At most one warp per TimeMachine is active. Entering while active fails
  with ErrNestedWarp. The guard is released by defer on every exit path.
  A TimeMachine is not safe for concurrent use; give each request its own.

SEE ALSO:
  - settlement.go: Replay/append used by the projection
  - api/handlers.go: as_of reads
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/warp/loan-ledger/finance"
	"go.uber.org/zap"
)

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot returns an independent loan as it stood at the given time.
func (l *Loan) Snapshot(at time.Time) *Loan {
	at = finance.Normalize(at)
	clock := finance.FixedClock(at)

	s := &Loan{
		id:           l.id,
		principal:    l.principal,
		rate:         l.rate,
		dueDates:     l.DueDates(),
		disbursement: l.disbursement,
		scheduler:    l.scheduler,
		tax:          l.tax,
		clock:        clock,
		logger:       l.logger,
		fineRate:     l.fineRate.Rebind(clock),
		gracePeriod:  l.gracePeriod.Rebind(clock),
		original:     l.original.Clone(),
	}
	s.reset()

	for _, ev := range l.payments {
		if !ev.PaidAt.After(at) {
			s.append(ev.clone())
		}
	}
	s.CalculateLateFines(at)

	l.logger.Debug("snapshot built",
		zap.Time("at", at),
		zap.Int("payments", len(s.payments)),
		zap.Int("excluded", len(l.payments)-len(s.payments)))
	return s
}

// =============================================================================
// TIME MACHINE - Scoped warp guard
// =============================================================================

// TimeMachine owns the active-warp guard.
type TimeMachine struct {
	active bool
}

func NewTimeMachine() *TimeMachine { return &TimeMachine{} }

// Active reports whether a warp is in progress.
func (tm *TimeMachine) Active() bool { return tm.active }

// Warp calls fn with a snapshot of loan at target. target may be a time.Time,
// *time.Time or a date string. The snapshot is discarded when fn returns and
// the original loan is never modified.
func (tm *TimeMachine) Warp(loan *Loan, target any, fn func(*Loan) error) error {
	at, err := finance.ParseDate(target)
	if err != nil {
		return fmt.Errorf("warp: %w", err)
	}
	if tm.active {
		return ErrNestedWarp
	}

	tm.active = true
	defer func() { tm.active = false }()

	return fn(loan.Snapshot(at))
}
