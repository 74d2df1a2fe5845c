/*
Package finance provides the value types the loan engine computes with.

PURPOSE:
  Money, interest rates, clocks and time-aware values. Everything here is
  immutable or explicitly shared (Clock), so the ledger can replay and
  project a loan without defensive copying.

KEY CONCEPTS IN THIS FILE (money.go):
  - Money: a decimal amount with a full-precision and a 2-decimal "real" form
  - Comparisons happen at cent precision; arithmetic keeps full precision

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never float64 for amounts
  2. Immutability: every operation returns a new Money
  3. Cents: equality and ordering look at the rounded value only

USAGE:
  m := finance.MustMoney("10000.00")
  interest := m.Mul(factor.Sub(decimal.NewFromInt(1))).Round()

SEE ALSO:
  - rate.go: InterestRate and compounding
  - time.go: Clock and day counting
*/
package finance

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal amount, compared at cent precision
// =============================================================================

// Cents is the number of decimal places of a "real" amount.
const Cents = 2

// Money is an immutable monetary amount. The zero value is 0.00.
type Money struct {
	value decimal.Decimal
}

// Zero is 0.00.
var Zero = Money{}

// NewMoney parses a decimal string such as "10000.00".
func NewMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Money{value: d}, nil
}

// MustMoney is NewMoney for literals; it panics on malformed input.
func MustMoney(s string) Money {
	m, err := NewMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

func MoneyFromDecimal(d decimal.Decimal) Money { return Money{value: d} }
func MoneyFromInt(v int64) Money              { return Money{value: decimal.NewFromInt(v)} }

// Raw returns the full-precision value.
func (m Money) Raw() decimal.Decimal { return m.value }

// Real returns the value rounded to cents.
func (m Money) Real() decimal.Decimal { return m.value.Round(Cents) }

// Round returns a Money whose full-precision value is its real value.
func (m Money) Round() Money { return Money{value: m.Real()} }

func (m Money) Add(o Money) Money             { return Money{value: m.value.Add(o.value)} }
func (m Money) Sub(o Money) Money             { return Money{value: m.value.Sub(o.value)} }
func (m Money) Mul(d decimal.Decimal) Money   { return Money{value: m.value.Mul(d)} }
func (m Money) Div(d decimal.Decimal) Money   { return Money{value: m.value.Div(d)} }
func (m Money) Neg() Money                    { return Money{value: m.value.Neg()} }
func (m Money) Abs() Money                    { return Money{value: m.value.Abs()} }
func (m Money) Cmp(o Money) int               { return m.Real().Cmp(o.Real()) }
func (m Money) Equal(o Money) bool            { return m.Cmp(o) == 0 }
func (m Money) LessThan(o Money) bool         { return m.Cmp(o) < 0 }
func (m Money) GreaterThan(o Money) bool      { return m.Cmp(o) > 0 }
func (m Money) LessThanOrEqual(o Money) bool  { return m.Cmp(o) <= 0 }
func (m Money) IsZero() bool                  { return m.Real().IsZero() }
func (m Money) IsPositive() bool              { return m.Real().IsPositive() }
func (m Money) IsNegative() bool              { return m.Real().IsNegative() }

func (m Money) Min(o Money) Money {
	if m.LessThan(o) {
		return m
	}
	return o
}

func (m Money) Max(o Money) Money {
	if m.GreaterThan(o) {
		return m
	}
	return o
}

// ClampZero returns m, or zero when m is negative.
func (m Money) ClampZero() Money {
	if m.IsNegative() {
		return Zero
	}
	return m
}

// String formats the real value with exactly two decimals.
func (m Money) String() string { return m.value.StringFixed(Cents) }

// MarshalJSON encodes the real value as a JSON string to keep precision.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	m.value = d
	return nil
}

// Sum adds a list of amounts.
func Sum(ms ...Money) Money {
	total := Zero
	for _, m := range ms {
		total = total.Add(m)
	}
	return total
}
