package schedule

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/finance"
)

// Price is the constant-installment scheduler (French system).
//
// PMT solves principal = sum(PMT / (1+daily)^returnDay_i), where returnDay_i
// counts days from disbursement to due date i. Periods are then walked in
// order with per-period cent rounding; the final installment is computed by
// difference and may differ from PMT by a few cents.
type Price struct{}

func (Price) Name() string { return "price" }

func (p Price) GenerateSchedule(principal finance.Money, rate finance.InterestRate, dueDates []time.Time, disbursement time.Time) (PaymentSchedule, error) {
	if err := validate(principal, dueDates); err != nil {
		return PaymentSchedule{}, err
	}

	pmt := p.PMT(principal, rate, dueDates, disbursement)
	return walk(principal, rate, dueDates, disbursement, func(_ int, interest finance.Money) finance.Money {
		return pmt.Sub(interest)
	}), nil
}

// PMT returns the constant installment rounded to cents.
func (Price) PMT(principal finance.Money, rate finance.InterestRate, dueDates []time.Time, disbursement time.Time) finance.Money {
	one := decimal.NewFromInt(1)
	discount := decimal.Zero
	for _, d := range dueDates {
		days := finance.DaysBetween(disbursement, d)
		discount = discount.Add(one.Div(rate.CompoundFactor(days)))
	}
	return principal.Div(discount).Round()
}
