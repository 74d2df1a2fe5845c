/*
Package tax computes taxes levied on a loan at disbursement.

PURPOSE:
  A Tax looks at the baseline schedule and the disbursement date and returns
  the amount withheld from the borrower. The ledger uses the result to report
  the net disbursement and the effective cost (IRR) of the loan.

IOF (Imposto sobre Operacoes Financeiras):
  - Daily part: 0.0082% per day on each principal amortization, counted from
    disbursement to that installment's due date, capped at 365 days.
  - Additional part: 0.38% flat on the principal.

SEE ALSO:
  - ledger/loan.go: TaxResult, NetDisbursement, IRR
*/
package tax

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/finance"
	"github.com/warp/loan-ledger/schedule"
)

// Tax is a strategy computing the tax due on a loan.
type Tax interface {
	Name() string
	Calculate(s schedule.PaymentSchedule, disbursement time.Time) Result
}

// Component is the tax charged on one installment's amortization.
type Component struct {
	Installment int
	Days        int
	Base        finance.Money
	Amount      finance.Money
}

// Result is the outcome of a tax calculation.
type Result struct {
	Name       string
	Daily      finance.Money
	Additional finance.Money
	Total      finance.Money
	Components []Component
}

// =============================================================================
// IOF
// =============================================================================

var (
	DefaultIOFDailyRate      = decimal.RequireFromString("0.000082")
	DefaultIOFAdditionalRate = decimal.RequireFromString("0.0038")
)

// IOFMaxDays caps the daily part.
const IOFMaxDays = 365

type IOF struct {
	DailyRate      decimal.Decimal
	AdditionalRate decimal.Decimal
}

// NewIOF returns the calculator with the current legal rates.
func NewIOF() IOF {
	return IOF{DailyRate: DefaultIOFDailyRate, AdditionalRate: DefaultIOFAdditionalRate}
}

func (IOF) Name() string { return "iof" }

func (t IOF) Calculate(s schedule.PaymentSchedule, disbursement time.Time) Result {
	res := Result{Name: t.Name()}
	principal := finance.Zero

	for _, e := range s.Entries {
		days := finance.DaysBetween(disbursement, e.DueDate)
		if days > IOFMaxDays {
			days = IOFMaxDays
		}
		if days < 0 {
			days = 0
		}
		amount := e.Principal.Mul(t.DailyRate).Mul(decimal.NewFromInt(int64(days))).Round()
		res.Components = append(res.Components, Component{
			Installment: e.Number,
			Days:        days,
			Base:        e.Principal,
			Amount:      amount,
		})
		res.Daily = res.Daily.Add(amount)
		principal = principal.Add(e.Principal)
	}

	res.Additional = principal.Mul(t.AdditionalRate).Round()
	res.Total = res.Daily.Add(res.Additional)
	return res
}

// ByName resolves a tax strategy from configuration. Empty means none.
func ByName(name string) (Tax, bool) {
	switch name {
	case "iof", "IOF":
		return NewIOF(), true
	}
	return nil, false
}
