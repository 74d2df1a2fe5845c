package schedule

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/finance"
)

// SAC is the constant-amortization scheduler: every period amortizes
// principal/n (the last absorbs the rounding remainder) and pays interest on
// the declining balance, so installments decrease over time.
type SAC struct{}

func (SAC) Name() string { return "sac" }

func (SAC) GenerateSchedule(principal finance.Money, rate finance.InterestRate, dueDates []time.Time, disbursement time.Time) (PaymentSchedule, error) {
	if err := validate(principal, dueDates); err != nil {
		return PaymentSchedule{}, err
	}

	fixed := principal.Div(decimal.NewFromInt(int64(len(dueDates)))).Round()
	return walk(principal, rate, dueDates, disbursement, func(int, finance.Money) finance.Money {
		return fixed
	}), nil
}
