package finance

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INTEREST RATE - Rate + compounding frequency + day count
// =============================================================================

// Frequency is the compounding period a rate is quoted in.
type Frequency string

const (
	Daily      Frequency = "daily"
	Monthly    Frequency = "monthly"
	Quarterly  Frequency = "quarterly"
	SemiAnnual Frequency = "semi_annual"
	Annual     Frequency = "annual"
)

// DayCount is the number of days per year used to derive a daily rate.
type DayCount int

const (
	Actual365 DayCount = 365
	Actual360 DayCount = 360
)

// periodsPerYear returns how many periods of f fit in a year.
func (f Frequency) periodsPerYear(dc DayCount) float64 {
	switch f {
	case Daily:
		return float64(dc)
	case Monthly:
		return 12
	case Quarterly:
		return 4
	case SemiAnnual:
		return 2
	default:
		return 1
	}
}

// InterestRate is an immutable effective rate per Frequency period.
type InterestRate struct {
	rate      decimal.Decimal
	frequency Frequency
	dayCount  DayCount
}

// NewInterestRate builds a rate from a decimal fraction (0.05 = 5%).
func NewInterestRate(rate decimal.Decimal, freq Frequency, dc DayCount) (InterestRate, error) {
	if rate.IsNegative() {
		return InterestRate{}, fmt.Errorf("%w: negative rate %s", ErrInvalidRate, rate)
	}
	if freq == "" {
		freq = Annual
	}
	if dc == 0 {
		dc = Actual365
	}
	if dc != Actual365 && dc != Actual360 {
		return InterestRate{}, fmt.Errorf("%w: unsupported day count %d", ErrInvalidRate, dc)
	}
	return InterestRate{rate: rate, frequency: freq, dayCount: dc}, nil
}

// AnnualRate is a shorthand for an annual effective rate on a 365-day year.
func AnnualRate(rate string) InterestRate {
	r, err := NewInterestRate(decimal.RequireFromString(rate), Annual, Actual365)
	if err != nil {
		panic(err)
	}
	return r
}

var frequencySuffixes = map[string]Frequency{
	"d": Daily, "day": Daily, "daily": Daily,
	"m": Monthly, "month": Monthly, "monthly": Monthly,
	"q": Quarterly, "quarter": Quarterly, "quarterly": Quarterly,
	"s": SemiAnnual, "semi": SemiAnnual, "semi_annual": SemiAnnual,
	"a": Annual, "y": Annual, "year": Annual, "annual": Annual,
}

// ParseRate reads strings such as "5% a", "0.5% m" or "0.05 annual".
// A trailing "%" divides by 100. The frequency defaults to annual.
func ParseRate(s string) (InterestRate, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	if len(fields) == 0 || len(fields) > 2 {
		return InterestRate{}, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}

	num := fields[0]
	percent := strings.HasSuffix(num, "%")
	num = strings.TrimSuffix(num, "%")
	d, err := decimal.NewFromString(num)
	if err != nil {
		return InterestRate{}, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}
	if percent {
		d = d.Div(decimal.NewFromInt(100))
	}

	freq := Annual
	if len(fields) == 2 {
		f, ok := frequencySuffixes[fields[1]]
		if !ok {
			return InterestRate{}, fmt.Errorf("%w: unknown frequency %q", ErrInvalidRate, fields[1])
		}
		freq = f
	}
	return NewInterestRate(d, freq, Actual365)
}

func (r InterestRate) Rate() decimal.Decimal { return r.rate }
func (r InterestRate) Frequency() Frequency  { return r.frequency }
func (r InterestRate) DayCount() DayCount    { return r.dayCount }
func (r InterestRate) IsZero() bool          { return r.rate.IsZero() }

// EffectiveAnnual returns (1+r)^periods - 1.
func (r InterestRate) EffectiveAnnual() decimal.Decimal {
	if r.frequency == Annual {
		return r.rate
	}
	rf := r.rate.InexactFloat64()
	return decimal.NewFromFloat(math.Pow(1+rf, r.frequency.periodsPerYear(r.dayCount)) - 1)
}

// To converts the rate to another frequency through the effective annual rate.
func (r InterestRate) To(freq Frequency) InterestRate {
	if freq == r.frequency {
		return r
	}
	annual := r.EffectiveAnnual().InexactFloat64()
	converted := math.Pow(1+annual, 1/freq.periodsPerYear(r.dayCount)) - 1
	return InterestRate{rate: decimal.NewFromFloat(converted), frequency: freq, dayCount: r.dayCount}
}

// Daily returns the equivalent daily rate.
func (r InterestRate) Daily() decimal.Decimal { return r.To(Daily).rate }

// CompoundFactor returns (1+daily)^days, computed as (1+annual)^(days/dayCount)
// so every caller gets the same float64 path regardless of quoting frequency.
func (r InterestRate) CompoundFactor(days int) decimal.Decimal {
	if days <= 0 || r.rate.IsZero() {
		return decimal.NewFromInt(1)
	}
	annual := r.EffectiveAnnual().InexactFloat64()
	return decimal.NewFromFloat(math.Pow(1+annual, float64(days)/float64(r.dayCount)))
}

// Accrue returns the compound interest on balance over days, rounded to cents.
func (r InterestRate) Accrue(balance Money, days int) Money {
	if days <= 0 || balance.IsZero() {
		return Zero
	}
	return balance.Mul(r.CompoundFactor(days).Sub(decimal.NewFromInt(1))).Round()
}

func (r InterestRate) String() string {
	return fmt.Sprintf("%s%% %s", r.rate.Mul(decimal.NewFromInt(100)).String(), r.frequency)
}
