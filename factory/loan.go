/*
Package factory provides JSON to Go loan conversion.

PURPOSE:
  Converts JSON loan definitions into ledger.Terms and ledger.Loan objects,
  and back. The API accepts this format, and the SQLite store keeps it in
  the loans.config_json column, so one schema serves both.

JSON SCHEMA:
  {
    "id": "loan-123",
    "principal": "10000.00",
    "rate": "5% a",
    "day_count": 365,
    "disbursement_date": "2024-01-01",
    "due_dates": ["2024-02-01", "2024-03-01", "2024-04-01"],
    "scheduler": "price",
    "fine_rate": "0.02",
    "grace_period_days": 5,
    "tax": "iof",
    "fine_rate_changes": [
      {"effective_at": "2024-03-01", "rate": "0.05"},
      {"effective_at": "2024-06-01"}
    ],
    "grace_period_changes": [{"effective_at": "2024-03-01", "days": 10}]
  }

  A change without a value removes the term from its effective date on.

  Instead of due_dates, a monthly sequence can be given:
    "first_due_date": "2024-02-01", "installments": 12

DEFAULTS:
  - id: generated UUID
  - disbursement_date: now
  - scheduler: price
  - fine_rate: 0.02
  - day_count: 365

SEE ALSO:
  - ledger/loan.go: Terms, NewFromTerms
  - store/sqlite/sqlite.go: persists LoanJSON
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/finance"
	"github.com/warp/loan-ledger/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// LoanJSON is the JSON representation of loan terms.
type LoanJSON struct {
	ID               string   `json:"id,omitempty"`
	Principal        string   `json:"principal"`
	Rate             string   `json:"rate"`
	DayCount         int      `json:"day_count,omitempty"`
	DisbursementDate string   `json:"disbursement_date,omitempty"`
	DueDates         []string `json:"due_dates,omitempty"`
	FirstDueDate     string   `json:"first_due_date,omitempty"`
	Installments     int      `json:"installments,omitempty"`
	Scheduler        string   `json:"scheduler,omitempty"`
	FineRate         *string  `json:"fine_rate,omitempty"`
	GracePeriodDays  int      `json:"grace_period_days,omitempty"`
	Tax              string   `json:"tax,omitempty"`

	FineRateChanges    []FineRateChangeJSON    `json:"fine_rate_changes,omitempty"`
	GracePeriodChanges []GracePeriodChangeJSON `json:"grace_period_changes,omitempty"`
}

// FineRateChangeJSON is a fine-rate version. A nil Rate removes the fine.
type FineRateChangeJSON struct {
	EffectiveAt string  `json:"effective_at"`
	Rate        *string `json:"rate,omitempty"`
}

// GracePeriodChangeJSON is a grace-period version. A nil Days removes it.
type GracePeriodChangeJSON struct {
	EffectiveAt string `json:"effective_at"`
	Days        *int   `json:"days,omitempty"`
}

// =============================================================================
// LOAN FACTORY
// =============================================================================

// LoanFactory converts JSON loan definitions to ledger types.
type LoanFactory struct{}

func NewLoanFactory() *LoanFactory {
	return &LoanFactory{}
}

// ParseLoan parses a JSON string into loan terms.
func (f *LoanFactory) ParseLoan(jsonStr string) (ledger.Terms, error) {
	var lj LoanJSON
	if err := json.Unmarshal([]byte(jsonStr), &lj); err != nil {
		return ledger.Terms{}, fmt.Errorf("failed to parse loan JSON: %w", err)
	}
	return f.FromJSON(lj)
}

// FromJSON converts LoanJSON to ledger.Terms. It checks the format of every
// field; business rules are left to ledger.New.
func (f *LoanFactory) FromJSON(lj LoanJSON) (ledger.Terms, error) {
	principal, err := finance.NewMoney(lj.Principal)
	if err != nil {
		return ledger.Terms{}, fieldError("principal", err)
	}

	rate, err := parseRate(lj.Rate, lj.DayCount)
	if err != nil {
		return ledger.Terms{}, fieldError("rate", err)
	}

	terms := ledger.Terms{
		ID:              lj.ID,
		Principal:       principal,
		Rate:            rate,
		Scheduler:       lj.Scheduler,
		FineRate:        ledger.DefaultFineRate,
		GracePeriodDays: lj.GracePeriodDays,
		Tax:             lj.Tax,
	}

	if lj.DisbursementDate != "" {
		if terms.Disbursement, err = finance.ParseDate(lj.DisbursementDate); err != nil {
			return ledger.Terms{}, fieldError("disbursement_date", err)
		}
	}

	if terms.DueDates, err = parseDueDates(lj); err != nil {
		return ledger.Terms{}, err
	}

	if lj.FineRate != nil {
		if terms.FineRate, err = decimal.NewFromString(*lj.FineRate); err != nil {
			return ledger.Terms{}, fieldError("fine_rate", err)
		}
	}

	for i, c := range lj.FineRateChanges {
		field := fmt.Sprintf("fine_rate_changes[%d]", i)
		e := finance.TemporalEntry[decimal.Decimal]{Deleted: c.Rate == nil}
		if e.EffectiveAt, err = finance.ParseDate(c.EffectiveAt); err != nil {
			return ledger.Terms{}, fieldError(field, err)
		}
		if c.Rate != nil {
			if e.Value, err = decimal.NewFromString(*c.Rate); err != nil {
				return ledger.Terms{}, fieldError(field, err)
			}
		}
		terms.FineRateChanges = append(terms.FineRateChanges, e)
	}
	for i, c := range lj.GracePeriodChanges {
		e := finance.TemporalEntry[int]{Deleted: c.Days == nil}
		if e.EffectiveAt, err = finance.ParseDate(c.EffectiveAt); err != nil {
			return ledger.Terms{}, fieldError(fmt.Sprintf("grace_period_changes[%d]", i), err)
		}
		if c.Days != nil {
			e.Value = *c.Days
		}
		terms.GracePeriodChanges = append(terms.GracePeriodChanges, e)
	}
	return terms, nil
}

// Build parses lj and constructs the loan.
func (f *LoanFactory) Build(lj LoanJSON, opts ...ledger.Option) (*ledger.Loan, error) {
	terms, err := f.FromJSON(lj)
	if err != nil {
		return nil, err
	}
	return ledger.NewFromTerms(terms, opts...)
}

// ToJSON converts terms to LoanJSON. Due dates are always written explicitly.
func (f *LoanFactory) ToJSON(t ledger.Terms) LoanJSON {
	fineRate := t.FineRate.String()
	lj := LoanJSON{
		ID:               t.ID,
		Principal:        t.Principal.String(),
		Rate:             t.Rate.String(),
		DayCount:         int(t.Rate.DayCount()),
		DisbursementDate: t.Disbursement.Format(time.RFC3339Nano),
		Scheduler:        t.Scheduler,
		FineRate:         &fineRate,
		GracePeriodDays:  t.GracePeriodDays,
		Tax:              t.Tax,
	}
	for _, d := range t.DueDates {
		lj.DueDates = append(lj.DueDates, d.Format(time.RFC3339Nano))
	}
	for _, e := range t.FineRateChanges {
		c := FineRateChangeJSON{EffectiveAt: e.EffectiveAt.Format(time.RFC3339Nano)}
		if !e.Deleted {
			rate := e.Value.String()
			c.Rate = &rate
		}
		lj.FineRateChanges = append(lj.FineRateChanges, c)
	}
	for _, e := range t.GracePeriodChanges {
		c := GracePeriodChangeJSON{EffectiveAt: e.EffectiveAt.Format(time.RFC3339Nano)}
		if !e.Deleted {
			days := e.Value
			c.Days = &days
		}
		lj.GracePeriodChanges = append(lj.GracePeriodChanges, c)
	}
	return lj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseRate(s string, dayCount int) (finance.InterestRate, error) {
	r, err := finance.ParseRate(s)
	if err != nil {
		return finance.InterestRate{}, err
	}
	if dayCount == 0 || finance.DayCount(dayCount) == r.DayCount() {
		return r, nil
	}
	return finance.NewInterestRate(r.Rate(), r.Frequency(), finance.DayCount(dayCount))
}

func parseDueDates(lj LoanJSON) ([]time.Time, error) {
	if len(lj.DueDates) > 0 {
		dates := make([]time.Time, len(lj.DueDates))
		for i, s := range lj.DueDates {
			d, err := finance.ParseDate(s)
			if err != nil {
				return nil, fieldError(fmt.Sprintf("due_dates[%d]", i), err)
			}
			dates[i] = d
		}
		return dates, nil
	}

	if lj.FirstDueDate == "" {
		return nil, nil
	}
	first, err := finance.ParseDate(lj.FirstDueDate)
	if err != nil {
		return nil, fieldError("first_due_date", err)
	}
	if lj.Installments < 1 {
		return nil, &ledger.InvalidLoanError{Field: "installments", Reason: "must be at least 1"}
	}
	return finance.MonthlySequence(first, lj.Installments), nil
}

func fieldError(field string, err error) error {
	return fmt.Errorf("%w: %w", &ledger.InvalidLoanError{Field: field, Reason: "is malformed"}, err)
}
