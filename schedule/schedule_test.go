package schedule_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-ledger/finance"
	"github.com/warp/loan-ledger/schedule"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var disbursement = finance.Date(2024, time.January, 1)

func monthlyDueDates(n int) []time.Time {
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = disbursement.AddDate(0, i+1, 0)
	}
	return dates
}

// evenDueDates spaces due dates a fixed number of days apart.
func evenDueDates(n, every int) []time.Time {
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = disbursement.AddDate(0, 0, every*(i+1))
	}
	return dates
}

func money(s string) finance.Money { return finance.MustMoney(s) }

func decimalInt(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }

func assertEntryInvariants(t *testing.T, s schedule.PaymentSchedule, principal finance.Money) {
	t.Helper()
	total := finance.Zero
	for i, e := range s.Entries {
		assert.Equal(t, i+1, e.Number)
		assert.True(t, e.Interest.Add(e.Principal).Equal(e.Payment), "entry %d: interest+principal != payment", e.Number)
		assert.True(t, e.BeginningBalance.Sub(e.Principal).Equal(e.EndingBalance), "entry %d: balance walk", e.Number)
		if i > 0 {
			assert.True(t, s.Entries[i-1].EndingBalance.Equal(e.BeginningBalance))
		}
		total = total.Add(e.Principal)
	}
	assert.True(t, total.Equal(principal), "sum of principal %s != %s", total, principal)
	assert.True(t, s.Entries[len(s.Entries)-1].EndingBalance.IsZero())
	assert.True(t, s.TotalPrincipal.Equal(principal))
}

// =============================================================================
// CONSTANT INSTALLMENT (PRICE)
// =============================================================================

func TestPrice_SingleInstallment_EndsAtZero(t *testing.T) {
	// GIVEN: 10000.00 at 5% annual, one due date a month after disbursement
	// THEN: one entry, future value of the principal, ending balance 0.00

	s, err := schedule.Price{}.GenerateSchedule(money("10000.00"), finance.AnnualRate("0.05"),
		[]time.Time{finance.Date(2024, time.February, 1)}, disbursement)
	require.NoError(t, err)

	require.Len(t, s.Entries, 1)
	e := s.Entries[0]
	assert.Equal(t, 31, e.Days)
	assert.Equal(t, "41.52", e.Interest.String())
	assert.Equal(t, "10041.52", e.Payment.String())
	assert.Equal(t, "0.00", e.EndingBalance.String())
}

func TestPrice_ThreeMonths_PerPeriodRounding(t *testing.T) {
	s, err := schedule.Price{}.GenerateSchedule(money("10000"), finance.AnnualRate("0.05"), monthlyDueDates(3), disbursement)
	require.NoError(t, err)

	require.Len(t, s.Entries, 3)
	assert.Equal(t, "3360.46", s.Entries[0].Payment.String())
	assert.Equal(t, "41.52", s.Entries[0].Interest.String())
	assert.Equal(t, "3318.94", s.Entries[0].Principal.String())
	assert.Equal(t, "3360.46", s.Entries[1].Payment.String())
	assert.Equal(t, "25.95", s.Entries[1].Interest.String())
	// Final period by difference: one cent below PMT
	assert.Equal(t, "3360.45", s.Entries[2].Payment.String())
	assert.Equal(t, "3346.55", s.Entries[2].Principal.String())

	assertEntryInvariants(t, s, money("10000"))
}

func TestPrice_PrincipalSumsExactly_ManyShapes(t *testing.T) {
	rates := []string{"0.01", "0.05", "0.12", "0.4"}
	principals := []string{"1000", "10000", "12345.67", "250000"}
	for _, r := range rates {
		for _, p := range principals {
			for _, n := range []int{1, 2, 6, 12, 36} {
				s, err := schedule.Price{}.GenerateSchedule(money(p), finance.AnnualRate(r), monthlyDueDates(n), disbursement)
				require.NoError(t, err)
				assertEntryInvariants(t, s, money(p))
			}
		}
	}
}

func TestPrice_ZeroRate_StraightLine(t *testing.T) {
	s, err := schedule.Price{}.GenerateSchedule(money("1000"), finance.AnnualRate("0"), monthlyDueDates(3), disbursement)
	require.NoError(t, err)

	assert.Equal(t, "333.33", s.Entries[0].Principal.String())
	assert.Equal(t, "333.33", s.Entries[1].Principal.String())
	assert.Equal(t, "333.34", s.Entries[2].Principal.String())
	for _, e := range s.Entries {
		assert.True(t, e.Interest.IsZero())
	}
	assertEntryInvariants(t, s, money("1000"))
}

func TestPrice_MonthlyQuotedRate(t *testing.T) {
	rate, err := finance.ParseRate("1% m")
	require.NoError(t, err)

	s, err := schedule.Price{}.GenerateSchedule(money("5000"), rate, monthlyDueDates(12), disbursement)
	require.NoError(t, err)
	assertEntryInvariants(t, s, money("5000"))
	assert.True(t, s.TotalInterest.IsPositive())
}

// =============================================================================
// CONSTANT AMORTIZATION (SAC)
// =============================================================================

func TestSAC_EqualPrincipalDecreasingInterest(t *testing.T) {
	s, err := schedule.SAC{}.GenerateSchedule(money("10000"), finance.AnnualRate("0.05"), monthlyDueDates(3), disbursement)
	require.NoError(t, err)

	assert.Equal(t, "3333.33", s.Entries[0].Principal.String())
	assert.Equal(t, "3333.33", s.Entries[1].Principal.String())
	assert.Equal(t, "3333.34", s.Entries[2].Principal.String())
	assert.Equal(t, "3374.85", s.Entries[0].Payment.String())
	assertEntryInvariants(t, s, money("10000"))
}

func TestSAC_Properties(t *testing.T) {
	for _, n := range []int{2, 5, 12, 24} {
		// Equal-length periods: with calendar months a 31-day period can
		// out-accrue the 29-day one before it
		s, err := schedule.SAC{}.GenerateSchedule(money("24000"), finance.AnnualRate("0.08"), evenDueDates(n, 30), disbursement)
		require.NoError(t, err)
		assertEntryInvariants(t, s, money("24000"))

		first := s.Entries[0].Principal
		for i, e := range s.Entries {
			if i < n-1 {
				assert.True(t, e.Principal.Equal(first), "n=%d entry %d", n, e.Number)
			} else {
				assert.True(t, e.Principal.Sub(first).Abs().LessThanOrEqual(money("0.01").Mul(decimalInt(n))))
			}
			if i > 0 {
				assert.True(t, e.Interest.LessThan(s.Entries[i-1].Interest), "interest must decrease (n=%d, entry %d)", n, e.Number)
			}
		}
	}
}

func TestSAC_ZeroRate(t *testing.T) {
	s, err := schedule.SAC{}.GenerateSchedule(money("900"), finance.AnnualRate("0"), monthlyDueDates(3), disbursement)
	require.NoError(t, err)
	for _, e := range s.Entries {
		assert.Equal(t, "300.00", e.Payment.String())
	}
}

// =============================================================================
// VALIDATION / REGISTRY
// =============================================================================

func TestSchedulers_RejectEmptyDueDates(t *testing.T) {
	for _, s := range []schedule.Scheduler{schedule.Price{}, schedule.SAC{}} {
		_, err := s.GenerateSchedule(money("100"), finance.AnnualRate("0.05"), nil, disbursement)
		assert.ErrorIs(t, err, schedule.ErrNoDueDates, s.Name())

		_, err = s.GenerateSchedule(money("0"), finance.AnnualRate("0.05"), monthlyDueDates(1), disbursement)
		assert.ErrorIs(t, err, schedule.ErrInvalidPrincipal, s.Name())
	}
}

func TestSchedulers_ReferenceAfterDueDateClampsDays(t *testing.T) {
	// A rebuilt tail can start after an overdue due date
	late := finance.Date(2024, time.February, 10)
	s, err := schedule.Price{}.GenerateSchedule(money("1000"), finance.AnnualRate("0.05"), monthlyDueDates(2), late)
	require.NoError(t, err)

	assert.Equal(t, 0, s.Entries[0].Days)
	assert.True(t, s.Entries[0].Interest.IsZero())
	assertEntryInvariants(t, s, money("1000"))
}

func TestByName(t *testing.T) {
	s, err := schedule.ByName("sac")
	require.NoError(t, err)
	assert.Equal(t, "sac", s.Name())

	s, err = schedule.ByName("")
	require.NoError(t, err)
	assert.Equal(t, "price", s.Name())

	_, err = schedule.ByName("german")
	assert.ErrorIs(t, err, schedule.ErrUnknownScheduler)
	assert.Equal(t, []string{"price", "sac"}, schedule.Names())
}

func TestPaymentSchedule_CloneIsIndependent(t *testing.T) {
	s, err := schedule.Price{}.GenerateSchedule(money("1000"), finance.AnnualRate("0.05"), monthlyDueDates(2), disbursement)
	require.NoError(t, err)

	c := s.Clone()
	c.Entries[0].Payment = money("1")
	assert.False(t, s.Entries[0].Payment.Equal(money("1")))

	e, ok := s.Entry(2)
	assert.True(t, ok)
	assert.Equal(t, 2, e.Number)
	_, ok = s.Entry(3)
	assert.False(t, ok)
}
