package schedule

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasekeeper/internal/domain"
)

func d(s string) time.Time {
	t, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func sum(in []Installment) decimal.Decimal {
	total := decimal.Zero
	for _, i := range in {
		total = total.Add(i.Amount)
	}
	return total
}

func TestMonthlyCalendarYear(t *testing.T) {
	got := Build(decimal.RequireFromString("12000.00"), d("2024-01-01"), d("2024-12-31"), domain.FrequencyMonthly)
	require.Len(t, got, 12)
	for i, inst := range got {
		assert.Equal(t, i+1, inst.Sequence)
		assert.Equal(t, "1000.00", inst.Amount.StringFixed(2))
		assert.Equal(t, 1, inst.DueDate.Day())
		assert.Equal(t, time.Month(i+1), inst.DueDate.Month())
		assert.Equal(t, 2024, inst.DueDate.Year())
	}
}

func TestQuarterlyAndSemiAnnual(t *testing.T) {
	q := Build(decimal.NewFromInt(10000), d("2024-01-01"), d("2024-12-31"), domain.FrequencyQuarterly)
	require.Len(t, q, 4)
	assert.Equal(t, d("2024-10-01"), q[3].DueDate)
	assert.True(t, q[0].Amount.Equal(decimal.NewFromInt(2500)))

	s := Build(decimal.NewFromInt(10000), d("2024-01-01"), d("2024-12-31"), domain.FrequencySemiAnnual)
	require.Len(t, s, 2)
	assert.Equal(t, d("2024-07-01"), s[1].DueDate)
}

func TestAnnualIsSinglePayment(t *testing.T) {
	for _, end := range []string{"2024-01-01", "2024-12-31", "2028-06-30"} {
		got := Build(decimal.NewFromInt(9000), d("2024-01-01"), d(end), domain.FrequencyAnnual)
		require.Len(t, got, 1, end)
		assert.Equal(t, d("2024-01-01"), got[0].DueDate)
		assert.True(t, got[0].Amount.Equal(decimal.NewFromInt(9000)))
	}
}

func TestUnknownFrequencyFallsBackToSinglePayment(t *testing.T) {
	got := Build(decimal.NewFromInt(500), d("2024-03-01"), d("2024-12-31"), domain.RentFrequency("fortnightly"))
	require.Len(t, got, 1)
	assert.Equal(t, d("2024-03-01"), got[0].DueDate)
	assert.Len(t, Build(decimal.NewFromInt(500), d("2024-03-01"), d("2024-12-31"), ""), 1)
}

func TestMonthlyCountLaw(t *testing.T) {
	start := d("2023-05-15")
	for n := 1; n <= 36; n++ {
		end := AddMonths(start, n).AddDate(0, 0, -1)
		got := Build(decimal.NewFromInt(1000), start, end, domain.FrequencyMonthly)
		assert.Len(t, got, n, "span of %d months", n)
	}
}

func TestSumInvariant(t *testing.T) {
	totals := []string{"0", "0.01", "0.10", "1.00", "100", "999.99", "12000.00", "12345.67", "1000000.03"}
	freqs := []domain.RentFrequency{domain.FrequencyMonthly, domain.FrequencyQuarterly, domain.FrequencySemiAnnual, domain.FrequencyAnnual}
	ends := []string{"2024-01-31", "2024-06-30", "2024-12-31", "2026-02-28"}
	for _, tot := range totals {
		total := decimal.RequireFromString(tot)
		for _, f := range freqs {
			for _, end := range ends {
				got := Build(total, d("2024-01-31"), d(end), f)
				require.NotEmpty(t, got)
				assert.True(t, sum(got).Equal(total), "total %s freq %s end %s: sum %s", tot, f, end, sum(got))
				for _, inst := range got {
					assert.False(t, inst.Amount.IsNegative(), "total %s freq %s end %s", tot, f, end)
				}
			}
		}
	}
}

func TestRemainderOnLastInstallment(t *testing.T) {
	got := Build(decimal.NewFromInt(100), d("2024-01-01"), d("2024-03-31"), domain.FrequencyMonthly)
	require.Len(t, got, 3)
	assert.Equal(t, "33.33", got[0].Amount.StringFixed(2))
	assert.Equal(t, "33.33", got[1].Amount.StringFixed(2))
	assert.Equal(t, "33.34", got[2].Amount.StringFixed(2))
}

func TestMonthEndClamping(t *testing.T) {
	got := DueDates(d("2024-01-31"), d("2024-05-31"), domain.FrequencyMonthly)
	want := []time.Time{d("2024-01-31"), d("2024-02-29"), d("2024-03-31"), d("2024-04-30"), d("2024-05-31")}
	assert.Equal(t, want, got)

	assert.Equal(t, d("2025-02-28"), AddMonths(d("2024-02-29"), 12))
}

func TestEndBeforeStartYieldsOnePayment(t *testing.T) {
	got := Build(decimal.NewFromInt(700), d("2024-05-01"), d("2024-04-01"), domain.FrequencyMonthly)
	require.Len(t, got, 1)
	assert.Equal(t, d("2024-05-01"), got[0].DueDate)
}

func TestDeterministic(t *testing.T) {
	a := Build(decimal.RequireFromString("12345.67"), d("2024-01-15"), d("2025-01-14"), domain.FrequencyQuarterly)
	b := Build(decimal.RequireFromString("12345.67"), d("2024-01-15"), d("2025-01-14"), domain.FrequencyQuarterly)
	assert.Equal(t, a, b)
}

func TestParseFrequency(t *testing.T) {
	cases := map[string]domain.RentFrequency{
		"monthly":     domain.FrequencyMonthly,
		" Quarterly ": domain.FrequencyQuarterly,
		"semiannual":  domain.FrequencySemiAnnual,
		"semi_annual": domain.FrequencySemiAnnual,
		"semi-annual": domain.FrequencySemiAnnual,
		"yearly":      domain.FrequencyAnnual,
	}
	for in, want := range cases {
		got, err := ParseFrequency(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFrequency("weekly")
	assert.Error(t, err)
}

func TestTermMonths(t *testing.T) {
	assert.Equal(t, 12, TermMonths(d("2024-01-01"), d("2024-12-31")))
	assert.Equal(t, 12, TermMonths(d("2024-03-15"), d("2025-03-14")))
	assert.Equal(t, 6, TermMonths(d("2024-01-01"), d("2024-06-30")))
	assert.Equal(t, 1, TermMonths(d("2024-01-01"), d("2024-01-10")))
}
