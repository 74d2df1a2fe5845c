package finance_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-ledger/finance"
)

// =============================================================================
// MONEY
// =============================================================================

func TestMoney_ComparesAtCentPrecision(t *testing.T) {
	a := finance.MustMoney("10.004")
	b := finance.MustMoney("10.001")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Raw().Equal(b.Raw()), "full precision is kept")
	assert.Equal(t, "10.00", a.String())
}

func TestMoney_RealRoundsHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, "0.13", finance.MustMoney("0.125").Real().String())
	assert.Equal(t, "-0.13", finance.MustMoney("-0.125").Real().String())
}

func TestMoney_ClampZeroAndMinMax(t *testing.T) {
	neg := finance.MustMoney("-5")
	pos := finance.MustMoney("5")

	assert.True(t, neg.ClampZero().IsZero())
	assert.True(t, pos.ClampZero().Equal(pos))
	assert.True(t, neg.Min(pos).Equal(neg))
	assert.True(t, neg.Max(pos).Equal(pos))
	assert.True(t, finance.Sum(pos, pos, neg).Equal(pos))
}

func TestMoney_JSONRoundTripKeepsCents(t *testing.T) {
	data, err := json.Marshal(finance.MustMoney("3360.16"))
	require.NoError(t, err)
	assert.Equal(t, `"3360.16"`, string(data))

	var m finance.Money
	require.NoError(t, json.Unmarshal([]byte(`1234.5`), &m))
	assert.Equal(t, "1234.50", m.String())
}

func TestNewMoney_RejectsGarbage(t *testing.T) {
	_, err := finance.NewMoney("ten")
	assert.Error(t, err)
}

// =============================================================================
// INTEREST RATE
// =============================================================================

func TestParseRate_Forms(t *testing.T) {
	tests := []struct {
		in   string
		rate string
		freq finance.Frequency
	}{
		{"5% a", "0.05", finance.Annual},
		{"0.5% m", "0.005", finance.Monthly},
		{"0.05 annual", "0.05", finance.Annual},
		{"12%", "0.12", finance.Annual},
		{"1% q", "0.01", finance.Quarterly},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, err := finance.ParseRate(tt.in)
			require.NoError(t, err)
			assert.True(t, r.Rate().Equal(decimal.RequireFromString(tt.rate)), "got %s", r.Rate())
			assert.Equal(t, tt.freq, r.Frequency())
		})
	}
}

func TestParseRate_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "5% fortnightly", "-1% a", "1 2 3"} {
		_, err := finance.ParseRate(in)
		assert.ErrorIs(t, err, finance.ErrInvalidRate, in)
	}
}

func TestInterestRate_MonthlyToAnnualRoundTrip(t *testing.T) {
	monthly, err := finance.ParseRate("1% m")
	require.NoError(t, err)

	annual := monthly.To(finance.Annual)
	back := annual.To(finance.Monthly)

	// (1.01)^12 - 1
	assert.InDelta(t, 0.12682503, annual.Rate().InexactFloat64(), 1e-8)
	assert.InDelta(t, 0.01, back.Rate().InexactFloat64(), 1e-12)
}

func TestInterestRate_AccrueCompoundsDaily(t *testing.T) {
	r := finance.AnnualRate("0.05")

	// 10000 * (1.05^(14/365) - 1)
	assert.Equal(t, "18.73", r.Accrue(finance.MustMoney("10000"), 14).String())
	assert.True(t, r.Accrue(finance.MustMoney("10000"), 0).IsZero())
	assert.True(t, r.Accrue(finance.MustMoney("10000"), -3).IsZero(), "never negative interest")
}

func TestInterestRate_ZeroRateFactorIsOne(t *testing.T) {
	r := finance.AnnualRate("0")
	assert.True(t, r.CompoundFactor(400).Equal(decimal.NewFromInt(1)))
}

// =============================================================================
// CLOCK / DATES
// =============================================================================

func TestClock_PinAndUnpin(t *testing.T) {
	c := finance.NewClock()
	at := finance.Date(2024, time.March, 1)

	c.Pin(at)
	assert.True(t, c.IsPinned())
	assert.Equal(t, at, c.Now())

	c.Unpin()
	assert.False(t, c.IsPinned())
	assert.WithinDuration(t, time.Now(), c.Now(), time.Minute)
}

func TestDaysBetween_FloorsPartialDays(t *testing.T) {
	start := finance.Date(2024, time.January, 1)
	noon := time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 14, finance.DaysBetween(start, noon))
	assert.Equal(t, 45, finance.DaysBetween(noon, finance.Date(2024, time.March, 1)))
	assert.Equal(t, -1, finance.DaysBetween(noon, start.AddDate(0, 0, 14)))
}

func TestMonthlySequence_ClampsMonthEnd(t *testing.T) {
	got := finance.MonthlySequence(finance.Date(2024, time.January, 31), 4)

	assert.Equal(t, []time.Time{
		finance.Date(2024, time.January, 31),
		finance.Date(2024, time.February, 29),
		finance.Date(2024, time.March, 31),
		finance.Date(2024, time.April, 30),
	}, got)
	assert.Empty(t, finance.MonthlySequence(finance.Date(2024, time.January, 1), 0))
}

func TestParseDate(t *testing.T) {
	want := finance.Date(2024, time.February, 15)

	for _, in := range []any{"2024-02-15", "2024-02-15T00:00:00Z", "2024-02-15 00:00", want, &want} {
		got, err := finance.ParseDate(in)
		require.NoError(t, err, "%v", in)
		assert.True(t, want.Equal(got), "%v", in)
	}

	local := time.Date(2024, time.February, 15, 9, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	got, err := finance.ParseDate(local)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 12, got.Hour())
}

func TestParseDate_Invalid(t *testing.T) {
	for _, in := range []any{"not a date", 42, time.Time{}, nil, "2024-13-45"} {
		_, err := finance.ParseDate(in)
		assert.ErrorIs(t, err, finance.ErrInvalidDate, "%v", in)
	}
}

// =============================================================================
// TEMPORAL VALUES
// =============================================================================

func TestTemporal_ResolvesLatestEffectiveEntry(t *testing.T) {
	clock := finance.FixedClock(finance.Date(2024, time.January, 10))
	v := finance.NewTemporal(clock, finance.Date(2024, time.January, 1), "a")
	v.Update(finance.Date(2024, time.February, 1), "b")
	v.Update(finance.Date(2024, time.January, 15), "c") // out of order

	got, ok := v.Resolve()
	require.True(t, ok)
	assert.Equal(t, "a", got)

	clock.Pin(finance.Date(2024, time.January, 20))
	got, _ = v.Resolve()
	assert.Equal(t, "c", got)

	clock.Pin(finance.Date(2024, time.March, 1))
	got, _ = v.Resolve()
	assert.Equal(t, "b", got)

	hist := v.History()
	require.Len(t, hist, 3)
	assert.True(t, hist[0].EffectiveAt.Before(hist[1].EffectiveAt))
	assert.True(t, hist[1].EffectiveAt.Before(hist[2].EffectiveAt))
}

func TestTemporal_BeforeFirstEntryIsAbsent(t *testing.T) {
	clock := finance.FixedClock(finance.Date(2023, time.December, 31))
	v := finance.NewTemporal(clock, finance.Date(2024, time.January, 1), 5)

	_, ok := v.Resolve()
	assert.False(t, ok)
}

func TestTemporal_TombstoneHidesValue(t *testing.T) {
	clock := finance.FixedClock(finance.Date(2024, time.June, 1))
	v := finance.NewTemporal(clock, finance.Date(2024, time.January, 1), 5)
	v.Delete(finance.Date(2024, time.May, 1))

	_, ok := v.Resolve()
	assert.False(t, ok)

	got, ok := v.At(finance.Date(2024, time.April, 30))
	assert.True(t, ok)
	assert.Equal(t, 5, got)
	assert.Len(t, v.History(), 2, "delete appends, never removes")
}

func TestTemporal_SameDateLaterWriteWins(t *testing.T) {
	day := finance.Date(2024, time.January, 1)
	v := finance.NewTemporal(finance.FixedClock(day), day, 1)
	v.Update(day, 2)

	got, _ := v.Resolve()
	assert.Equal(t, 2, got)
}

func TestTemporal_RebindSharesNewClock(t *testing.T) {
	original := finance.FixedClock(finance.Date(2024, time.March, 1))
	a := finance.NewTemporal(original, finance.Date(2024, time.January, 1), "jan")
	a.Update(finance.Date(2024, time.February, 1), "feb")

	shared := finance.FixedClock(finance.Date(2024, time.January, 15))
	b := a.Rebind(shared)
	c := a.Rebind(shared)

	gotB, _ := b.Resolve()
	gotC, _ := c.Resolve()
	assert.Equal(t, "jan", gotB)
	assert.Equal(t, "jan", gotC)

	// One pin moves every value bound to the clock
	shared.Pin(finance.Date(2024, time.February, 10))
	gotB, _ = b.Resolve()
	gotC, _ = c.Resolve()
	assert.Equal(t, "feb", gotB)
	assert.Equal(t, "feb", gotC)

	b.Update(finance.Date(2024, time.February, 5), "b-only")
	assert.Len(t, a.History(), 2, "copies do not write through")
}

// =============================================================================
// IRR
// =============================================================================

func TestIRR_SingleFlowMatchesRate(t *testing.T) {
	start := finance.Date(2024, time.January, 1)
	flows := []finance.CashFlow{
		{At: start, Amount: finance.MustMoney("-10000")},
		{At: start.AddDate(1, 0, 0), Amount: finance.MustMoney("10500")},
	}

	r, err := finance.IRR(flows, finance.Actual365)
	require.NoError(t, err)
	// 2024 is a leap year: 366 days on a 365-day basis
	assert.InDelta(t, 0.05, r.Rate().InexactFloat64(), 0.001)
}

func TestIRR_NoSignChange(t *testing.T) {
	start := finance.Date(2024, time.January, 1)
	flows := []finance.CashFlow{
		{At: start, Amount: finance.MustMoney("100")},
		{At: start.AddDate(0, 1, 0), Amount: finance.MustMoney("100")},
	}

	_, err := finance.IRR(flows, finance.Actual365)
	assert.ErrorIs(t, err, finance.ErrNoConvergence)
}
