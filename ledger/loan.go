/*
Package ledger implements the loan aggregate.

PURPOSE:
  A Loan is a mutable ledger over immutable terms. Payments are appended to
  a journal, settled through a fixed waterfall and never edited afterwards.
  Everything else (installment states, the rebuilt schedule, balances) is
  derived on demand from the terms, the journal and the Clock.

KEY CONCEPTS IN THIS FILE (loan.go):
  - Loan: terms + append-only payment, fine and settlement logs
  - Option: functional construction options
  - Terms: the persisted form of the construction parameters

CRITICAL INVARIANTS:
  1. APPEND-ONLY: payments, fines and settlements only grow
  2. VALIDATE FIRST: a failed call never leaves a partial append behind
  3. ONE CLOCK: the loan and its temporal values (fine rate, grace period)
     share a single *finance.Clock; pinning it moves all of them

FILES:
  fines.go        Fine engine (late fees, once per due date)
  settlement.go   Settlement engine (payment waterfall)
  rebuild.go      Schedule rebuilder (settled history + projected tail)
  installment.go  Installment projector
  anticipation.go Anticipation quotes and payments
  warp.go         Snapshots and the TimeMachine
  store.go        Persistence interface for terms and journals

SEE ALSO:
  - schedule/: baseline schedulers
  - finance/temporal.go: time-aware values
*/
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/finance"
	"github.com/warp/loan-ledger/schedule"
	"github.com/warp/loan-ledger/tax"
	"go.uber.org/zap"
)

// DefaultFineRate is applied to the expected payment of an overdue installment.
var DefaultFineRate = decimal.RequireFromString("0.02")

// =============================================================================
// LOAN - Aggregate root
// =============================================================================

type Loan struct {
	id           string
	principal    finance.Money
	rate         finance.InterestRate
	dueDates     []time.Time
	disbursement time.Time
	scheduler    schedule.Scheduler
	tax          tax.Tax
	clock        *finance.Clock
	logger       *zap.Logger

	fineRate    *finance.Temporal[decimal.Decimal]
	gracePeriod *finance.Temporal[int]

	original schedule.PaymentSchedule

	// Append-only logs
	payments    []PaymentEvent
	fines       []Fine
	settlements []Settlement

	// Running state, advanced only by settle()
	finesPaid        []finance.Money
	paidPrincipal    []finance.Money
	principalBalance finance.Money
	interestRef      time.Time
	unpaidInterest   finance.Money
	unpaidMora       finance.Money

	rebuilt *schedule.PaymentSchedule
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

type options struct {
	id           string
	disbursement time.Time
	scheduler    schedule.Scheduler
	fineRate     decimal.Decimal
	gracePeriod  int
	tax          tax.Tax
	clock        *finance.Clock
	logger       *zap.Logger
}

// Option configures a Loan at construction.
type Option func(*options)

func WithID(id string) Option { return func(o *options) { o.id = id } }

// WithDisbursementDate sets the disbursement date. Defaults to the clock's now.
func WithDisbursementDate(t time.Time) Option {
	return func(o *options) { o.disbursement = finance.Normalize(t) }
}

// WithScheduler selects the amortization strategy. Defaults to schedule.Price.
func WithScheduler(s schedule.Scheduler) Option { return func(o *options) { o.scheduler = s } }

// WithFineRate sets the late fee as a fraction of the expected payment.
func WithFineRate(rate decimal.Decimal) Option { return func(o *options) { o.fineRate = rate } }

// WithGracePeriod sets the days after a due date before a fine applies.
func WithGracePeriod(days int) Option { return func(o *options) { o.gracePeriod = days } }

func WithTax(t tax.Tax) Option { return func(o *options) { o.tax = t } }

// WithClock shares clock with the loan. Defaults to a real-time clock.
func WithClock(c *finance.Clock) Option { return func(o *options) { o.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// New builds a loan and its baseline schedule. Due dates are sorted; they must
// be unique and fall after the disbursement date.
func New(principal finance.Money, rate finance.InterestRate, dueDates []time.Time, opts ...Option) (*Loan, error) {
	o := options{
		scheduler: schedule.Price{},
		fineRate:  DefaultFineRate,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = finance.NewClock()
	}
	if o.disbursement.IsZero() {
		o.disbursement = o.clock.Now()
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}

	dates, err := validateTerms(principal, dueDates, o)
	if err != nil {
		return nil, err
	}

	original, err := o.scheduler.GenerateSchedule(principal, rate, dates, o.disbursement)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLoan, err)
	}

	l := &Loan{
		id:           o.id,
		principal:    principal.Round(),
		rate:         rate,
		dueDates:     dates,
		disbursement: o.disbursement,
		scheduler:    o.scheduler,
		tax:          o.tax,
		clock:        o.clock,
		logger:       o.logger.With(zap.String("loan_id", o.id)),
		fineRate:     finance.NewTemporal(o.clock, o.disbursement, o.fineRate),
		gracePeriod:  finance.NewTemporal(o.clock, o.disbursement, o.gracePeriod),
		original:     original,
	}
	l.reset()
	return l, nil
}

func validateTerms(principal finance.Money, dueDates []time.Time, o options) ([]time.Time, error) {
	if !principal.IsPositive() {
		return nil, invalidLoan("principal", "must be positive, got %s", principal)
	}
	if len(dueDates) == 0 {
		return nil, invalidLoan("due_dates", "at least one due date is required")
	}
	if o.fineRate.IsNegative() {
		return nil, invalidLoan("fine_rate", "must not be negative, got %s", o.fineRate)
	}
	if o.gracePeriod < 0 {
		return nil, invalidLoan("grace_period", "must not be negative, got %d", o.gracePeriod)
	}
	if o.scheduler == nil {
		return nil, invalidLoan("scheduler", "is required")
	}

	dates := make([]time.Time, len(dueDates))
	for i, d := range dueDates {
		dates[i] = finance.Normalize(d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	for i, d := range dates {
		if !d.After(o.disbursement) {
			return nil, invalidLoan("due_dates", "%s is not after disbursement %s",
				d.Format(time.DateOnly), o.disbursement.Format(time.DateOnly))
		}
		if i > 0 && d.Equal(dates[i-1]) {
			return nil, invalidLoan("due_dates", "duplicate due date %s", d.Format(time.DateOnly))
		}
	}
	return dates, nil
}

// reset clears the running state back to disbursement.
func (l *Loan) reset() {
	n := len(l.dueDates)
	l.payments = nil
	l.fines = nil
	l.finesPaid = nil
	l.settlements = nil
	l.paidPrincipal = make([]finance.Money, n)
	l.principalBalance = l.principal
	l.interestRef = l.disbursement
	l.unpaidInterest = finance.Zero
	l.unpaidMora = finance.Zero
	l.rebuilt = nil
}

// =============================================================================
// TERMS - Persisted construction parameters
// =============================================================================

// Terms are the construction parameters of a loan. Stores persist Terms plus
// the payment journal; the rest is re-derived by Replay.
//
// FineRate and GracePeriodDays are the values the loan was built with. Later
// versions (UpdateFineRate, RemoveFineRate, UpdateGracePeriod) travel in the
// change lists and are re-applied by NewFromTerms. Stores write Terms once,
// at creation.
type Terms struct {
	ID              string
	Principal       finance.Money
	Rate            finance.InterestRate
	DueDates        []time.Time
	Disbursement    time.Time
	Scheduler       string
	FineRate        decimal.Decimal
	GracePeriodDays int
	Tax             string
	CreatedAt       time.Time

	FineRateChanges    []finance.TemporalEntry[decimal.Decimal]
	GracePeriodChanges []finance.TemporalEntry[int]
}

// Terms returns the loan's construction parameters and every later version
// of its fine rate and grace period.
func (l *Loan) Terms() Terms {
	fineRate, fineChanges := splitHistory(l.fineRate.History(), l.disbursement)
	grace, graceChanges := splitHistory(l.gracePeriod.History(), l.disbursement)
	t := Terms{
		ID:                 l.id,
		Principal:          l.principal,
		Rate:               l.rate,
		DueDates:           l.DueDates(),
		Disbursement:       l.disbursement,
		Scheduler:          l.scheduler.Name(),
		FineRate:           fineRate,
		GracePeriodDays:    grace,
		FineRateChanges:    fineChanges,
		GracePeriodChanges: graceChanges,
	}
	if l.tax != nil {
		t.Tax = l.tax.Name()
	}
	return t
}

// NewFromTerms builds a loan from persisted terms.
func NewFromTerms(t Terms, opts ...Option) (*Loan, error) {
	sched, err := schedule.ByName(t.Scheduler)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLoan, err)
	}
	base := []Option{
		WithID(t.ID),
		WithDisbursementDate(t.Disbursement),
		WithScheduler(sched),
		WithFineRate(t.FineRate),
		WithGracePeriod(t.GracePeriodDays),
	}
	if t.Tax != "" {
		tx, ok := tax.ByName(t.Tax)
		if !ok {
			return nil, invalidLoan("tax", "unknown tax %q", t.Tax)
		}
		base = append(base, WithTax(tx))
	}
	l, err := New(t.Principal, t.Rate, t.DueDates, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	if err := l.applyTermChanges(t); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Loan) applyTermChanges(t Terms) error {
	for _, e := range t.FineRateChanges {
		if e.Deleted {
			l.RemoveFineRate(e.EffectiveAt)
			continue
		}
		if err := l.UpdateFineRate(e.EffectiveAt, e.Value); err != nil {
			return err
		}
	}
	for _, e := range t.GracePeriodChanges {
		if e.Deleted {
			l.gracePeriod.Delete(e.EffectiveAt)
			continue
		}
		if err := l.UpdateGracePeriod(e.EffectiveAt, e.Value); err != nil {
			return err
		}
	}
	return nil
}

// splitHistory separates the construction entry (the first live entry
// effective at disbursement) from the versions recorded after it.
func splitHistory[T any](history []finance.TemporalEntry[T], disbursement time.Time) (T, []finance.TemporalEntry[T]) {
	var initial T
	var changes []finance.TemporalEntry[T]
	found := false
	for _, e := range history {
		if !found && !e.Deleted && e.EffectiveAt.Equal(disbursement) {
			initial, found = e.Value, true
			continue
		}
		changes = append(changes, e)
	}
	return initial, changes
}

// =============================================================================
// ACCESSORS
// =============================================================================

func (l *Loan) ID() string                    { return l.id }
func (l *Loan) Principal() finance.Money      { return l.principal }
func (l *Loan) Rate() finance.InterestRate    { return l.rate }
func (l *Loan) Disbursement() time.Time       { return l.disbursement }
func (l *Loan) Scheduler() schedule.Scheduler { return l.scheduler }
func (l *Loan) Clock() *finance.Clock         { return l.clock }
func (l *Loan) Now() time.Time                { return l.clock.Now() }
func (l *Loan) NumInstallments() int          { return len(l.dueDates) }

// OriginalSchedule returns the baseline schedule, untouched by payments.
func (l *Loan) OriginalSchedule() schedule.PaymentSchedule { return l.original.Clone() }

// DueDates returns a copy of the sorted due dates.
func (l *Loan) DueDates() []time.Time {
	return append([]time.Time(nil), l.dueDates...)
}

// Payments returns a copy of the payment journal in call order.
func (l *Loan) Payments() []PaymentEvent {
	out := make([]PaymentEvent, len(l.payments))
	for i, ev := range l.payments {
		out[i] = ev.clone()
	}
	return out
}

// Settlements returns a copy of the settlement log in call order.
func (l *Loan) Settlements() []Settlement {
	out := make([]Settlement, len(l.settlements))
	for i, s := range l.settlements {
		out[i] = s.clone()
	}
	return out
}

// Fines returns a copy of the fines log.
func (l *Loan) Fines() []Fine {
	return append([]Fine(nil), l.fines...)
}

// =============================================================================
// TEMPORAL TERMS - Fine rate and grace period
// =============================================================================

// FineRate resolves the fine rate at the clock's now.
func (l *Loan) FineRate() (decimal.Decimal, bool) { return l.fineRate.Resolve() }

// GracePeriod resolves the grace period at the clock's now. Absent means zero.
func (l *Loan) GracePeriod() int {
	days, _ := l.gracePeriod.Resolve()
	return days
}

// FineRateHistory returns every recorded fine-rate version.
func (l *Loan) FineRateHistory() []finance.TemporalEntry[decimal.Decimal] {
	return l.fineRate.History()
}

// UpdateFineRate sets a new fine rate effective from the given date.
func (l *Loan) UpdateFineRate(effective time.Time, rate decimal.Decimal) error {
	if rate.IsNegative() {
		return invalidLoan("fine_rate", "must not be negative, got %s", rate)
	}
	l.fineRate.Update(effective, rate)
	l.logger.Debug("fine rate updated", zap.Time("effective", effective), zap.String("rate", rate.String()))
	return nil
}

// RemoveFineRate stops charging fines from the given date on.
func (l *Loan) RemoveFineRate(effective time.Time) {
	l.fineRate.Delete(effective)
	l.logger.Debug("fine rate removed", zap.Time("effective", effective))
}

// UpdateGracePeriod sets a new grace period effective from the given date.
func (l *Loan) UpdateGracePeriod(effective time.Time, days int) error {
	if days < 0 {
		return invalidLoan("grace_period", "must not be negative, got %d", days)
	}
	l.gracePeriod.Update(effective, days)
	return nil
}

// =============================================================================
// BALANCES - Evaluated at the clock's now
// =============================================================================

// PrincipalBalance is the principal still owed.
func (l *Loan) PrincipalBalance() finance.Money { return l.principalBalance }

// AccruedInterest is the regular interest owed as of now, including interest
// carried over from partial payments.
func (l *Loan) AccruedInterest() finance.Money {
	regular, _ := l.pendingAccrual(l.clock.Now())
	return l.unpaidInterest.Add(regular)
}

// AccruedMora is the late interest owed as of now.
func (l *Loan) AccruedMora() finance.Money {
	_, mora := l.pendingAccrual(l.clock.Now())
	return l.unpaidMora.Add(mora)
}

// OutstandingFines is the sum of applied fines not yet paid.
func (l *Loan) OutstandingFines() finance.Money {
	total := finance.Zero
	for i, f := range l.fines {
		total = total.Add(f.Amount.Sub(l.finesPaid[i]))
	}
	return total.ClampZero()
}

// CurrentBalance is everything owed as of now.
func (l *Loan) CurrentBalance() finance.Money {
	return finance.Sum(l.principalBalance, l.AccruedInterest(), l.AccruedMora(), l.OutstandingFines())
}

// IsPaidOff reports whether no principal or fine is owed.
func (l *Loan) IsPaidOff() bool {
	return l.principalBalance.IsZero() && l.OutstandingFines().IsZero()
}

// =============================================================================
// TAX / COST
// =============================================================================

// TaxResult computes the configured tax on the baseline schedule.
func (l *Loan) TaxResult() (tax.Result, bool) {
	if l.tax == nil {
		return tax.Result{}, false
	}
	return l.tax.Calculate(l.original, l.disbursement), true
}

// NetDisbursement is the principal minus taxes withheld.
func (l *Loan) NetDisbursement() finance.Money {
	if res, ok := l.TaxResult(); ok {
		return l.principal.Sub(res.Total)
	}
	return l.principal
}

// IRR is the effective annual cost of the loan as of now: the net
// disbursement, every settlement so far and the projected tail.
func (l *Loan) IRR() (finance.InterestRate, error) {
	flows := []finance.CashFlow{{At: l.disbursement, Amount: l.NetDisbursement().Neg()}}
	for _, s := range l.settlements {
		flows = append(flows, finance.CashFlow{At: s.PaidAt, Amount: s.Amount})
	}
	for _, e := range l.AmortizationSchedule().Entries {
		if !e.Settled {
			flows = append(flows, finance.CashFlow{At: e.DueDate, Amount: e.Payment})
		}
	}
	return finance.IRR(flows, l.rate.DayCount())
}

// =============================================================================
// LOOKUPS
// =============================================================================

// dueDateIndex returns the 0-based index of a due date.
func (l *Loan) dueDateIndex(due time.Time) (int, error) {
	due = finance.Normalize(due)
	i := sort.Search(len(l.dueDates), func(i int) bool { return !l.dueDates[i].Before(due) })
	if i == len(l.dueDates) || !l.dueDates[i].Equal(due) {
		return 0, fmt.Errorf("%w: %s", ErrDueDateNotFound, due.Format(time.DateOnly))
	}
	return i, nil
}

func (l *Loan) checkInstallment(n int) error {
	if n < 1 || n > len(l.dueDates) {
		return &InstallmentError{Number: n, Err: ErrInstallmentOutOfRange}
	}
	return nil
}

// covered reports whether installment index i has received its baseline principal.
func (l *Loan) covered(i int) bool {
	return !l.paidPrincipal[i].LessThan(l.original.Entries[i].Principal)
}

// firstUncovered returns the index of the earliest uncovered installment, or -1.
func (l *Loan) firstUncovered() int {
	for i := range l.dueDates {
		if !l.covered(i) {
			return i
		}
	}
	return -1
}
