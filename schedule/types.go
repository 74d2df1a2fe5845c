/*
Package schedule builds amortization schedules.

PURPOSE:
  Turns loan terms (principal, rate, due dates, disbursement date) into a
  PaymentSchedule. Schedulers are pure strategies: same inputs, same output,
  no shared state. The ledger calls them once for the baseline and again
  every time it rebuilds the projected tail after payments.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: one period (due date, balances, payment split)
  - PaymentSchedule: ordered entries plus totals
  - Scheduler: the strategy interface

STRATEGIES:
  Price (price.go): constant installment (French system / PMT)
  SAC   (sac.go):   constant amortization, declining installments

ROUNDING:
  Interest is rounded to cents per period and the balance is rounded after
  every period. The last period is computed by difference so the ending
  balance is exactly zero.

SEE ALSO:
  - ledger/rebuild.go: re-runs a Scheduler on the live remaining balance
*/
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/warp/loan-ledger/finance"
)

// =============================================================================
// ENTRY / SCHEDULE
// =============================================================================

// Entry is one period of a schedule.
//
// INVARIANTS:
//   - Interest + Principal == Payment
//   - EndingBalance == BeginningBalance - Principal
type Entry struct {
	Number           int
	DueDate          time.Time
	Days             int
	BeginningBalance finance.Money
	Payment          finance.Money
	Interest         finance.Money
	Principal        finance.Money
	EndingBalance    finance.Money

	// Settled marks entries taken from real settlements in a rebuilt schedule.
	Settled bool
}

// PaymentSchedule is an ordered list of entries with totals.
type PaymentSchedule struct {
	Entries        []Entry
	TotalPayment   finance.Money
	TotalInterest  finance.Money
	TotalPrincipal finance.Money
}

// New builds a schedule from entries and computes its totals.
func New(entries []Entry) PaymentSchedule {
	s := PaymentSchedule{Entries: entries}
	for _, e := range entries {
		s.TotalPayment = s.TotalPayment.Add(e.Payment)
		s.TotalInterest = s.TotalInterest.Add(e.Interest)
		s.TotalPrincipal = s.TotalPrincipal.Add(e.Principal)
	}
	return s
}

// Len returns the number of entries.
func (s PaymentSchedule) Len() int { return len(s.Entries) }

// Entry returns the entry numbered n (1-based).
func (s PaymentSchedule) Entry(n int) (Entry, bool) {
	for _, e := range s.Entries {
		if e.Number == n {
			return e, true
		}
	}
	return Entry{}, false
}

// Clone returns a schedule whose entry slice is independent of s.
func (s PaymentSchedule) Clone() PaymentSchedule {
	entries := make([]Entry, len(s.Entries))
	copy(entries, s.Entries)
	return PaymentSchedule{
		Entries:        entries,
		TotalPayment:   s.TotalPayment,
		TotalInterest:  s.TotalInterest,
		TotalPrincipal: s.TotalPrincipal,
	}
}

// =============================================================================
// SCHEDULER - Strategy interface
// =============================================================================

// Scheduler produces a baseline amortization schedule from loan terms.
type Scheduler interface {
	// Name identifies the strategy in configuration ("price", "sac").
	Name() string

	// GenerateSchedule is pure and deterministic. Due dates must be sorted.
	GenerateSchedule(principal finance.Money, rate finance.InterestRate, dueDates []time.Time, disbursement time.Time) (PaymentSchedule, error)
}

var (
	// ErrNoDueDates is returned when a schedule is requested with no due dates.
	ErrNoDueDates = errors.New("at least one due date is required")

	// ErrInvalidPrincipal is returned for a zero or negative principal.
	ErrInvalidPrincipal = errors.New("principal must be positive")

	// ErrUnknownScheduler is returned by ByName for unregistered names.
	ErrUnknownScheduler = errors.New("unknown scheduler")
)

var registry = map[string]Scheduler{
	Price{}.Name(): Price{},
	SAC{}.Name():   SAC{},
}

// ByName returns the scheduler registered under name. Empty means Price.
func ByName(name string) (Scheduler, error) {
	if name == "" {
		return Price{}, nil
	}
	s, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheduler, name)
	}
	return s, nil
}

// Names lists registered scheduler names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// SHARED PERIOD WALK
// =============================================================================

func validate(principal finance.Money, dueDates []time.Time) error {
	if len(dueDates) == 0 {
		return ErrNoDueDates
	}
	if !principal.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidPrincipal, principal)
	}
	return nil
}

// periodDays returns the days of each period, clamped at zero.
func periodDays(dueDates []time.Time, disbursement time.Time) []int {
	days := make([]int, len(dueDates))
	prev := disbursement
	for i, d := range dueDates {
		n := finance.DaysBetween(prev, d)
		if n < 0 {
			n = 0
		}
		days[i] = n
		prev = finance.MaxTime(prev, d)
	}
	return days
}

// walk fills entries given the principal portion for every period but the
// last; the last period takes whatever balance is left.
func walk(principal finance.Money, rate finance.InterestRate, dueDates []time.Time, disbursement time.Time,
	principalFor func(i int, interest finance.Money) finance.Money) PaymentSchedule {

	days := periodDays(dueDates, disbursement)
	entries := make([]Entry, len(dueDates))
	balance := principal.Round()
	last := len(dueDates) - 1

	for i, due := range dueDates {
		interest := rate.Accrue(balance, days[i])
		var amortized finance.Money
		if i == last {
			amortized = balance
		} else {
			amortized = principalFor(i, interest).Min(balance).ClampZero()
		}

		ending := balance.Sub(amortized).Round()
		entries[i] = Entry{
			Number:           i + 1,
			DueDate:          due,
			Days:             days[i],
			BeginningBalance: balance,
			Payment:          amortized.Add(interest).Round(),
			Interest:         interest,
			Principal:        amortized.Round(),
			EndingBalance:    ending,
		}
		balance = ending
	}
	return New(entries)
}
