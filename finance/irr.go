package finance

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CASH FLOWS / IRR
// =============================================================================

// CashFlow is a signed amount at a date. Outflows (disbursement) are negative.
type CashFlow struct {
	At     time.Time
	Amount Money
}

const (
	irrLow        = -0.99
	irrHigh       = 100.0
	irrTolerance  = 1e-10
	irrIterations = 200
)

// PresentValue discounts flows to the date of the first flow at an annual
// effective rate on a dc-day year.
func PresentValue(flows []CashFlow, annual float64, dc DayCount) float64 {
	if len(flows) == 0 {
		return 0
	}
	origin := flows[0].At
	pv := 0.0
	for _, f := range flows {
		t := float64(DaysBetween(origin, f.At)) / float64(dc)
		pv += f.Amount.Raw().InexactFloat64() / math.Pow(1+annual, t)
	}
	return pv
}

// IRR finds the annual effective rate that zeroes the present value of flows,
// by bisection. Flows must change sign at least once.
func IRR(flows []CashFlow, dc DayCount) (InterestRate, error) {
	if dc == 0 {
		dc = Actual365
	}
	lo, hi := irrLow, irrHigh
	fLo := PresentValue(flows, lo, dc)
	fHi := PresentValue(flows, hi, dc)
	if fLo*fHi > 0 {
		return InterestRate{}, fmt.Errorf("%w: no sign change in [%v, %v]", ErrNoConvergence, lo, hi)
	}

	for i := 0; i < irrIterations; i++ {
		mid := (lo + hi) / 2
		fMid := PresentValue(flows, mid, dc)
		if math.Abs(fMid) < irrTolerance || (hi-lo)/2 < irrTolerance {
			return irrRate(mid, dc), nil
		}
		if fLo*fMid < 0 {
			hi = mid
		} else {
			lo, fLo = mid, fMid
		}
	}
	return irrRate((lo+hi)/2, dc), nil
}

// irrRate skips NewInterestRate validation: a loss-making flow set has a
// negative IRR.
func irrRate(annual float64, dc DayCount) InterestRate {
	return InterestRate{rate: decimal.NewFromFloat(annual), frequency: Annual, dayCount: dc}
}
