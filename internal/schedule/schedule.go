// Package schedule derives payment plans from a lease term.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"leasekeeper/internal/domain"
)

type Installment struct {
	Sequence int             `json:"sequence"`
	DueDate  time.Time       `json:"due_date" format:"date"`
	Amount   decimal.Decimal `json:"amount"`
}

// StepMonths returns the month interval of a frequency, or 0 for a single
// payment at the start date.
func StepMonths(freq domain.RentFrequency) int {
	switch freq {
	case domain.FrequencyMonthly:
		return 1
	case domain.FrequencyQuarterly:
		return 3
	case domain.FrequencySemiAnnual:
		return 6
	default:
		return 0
	}
}

// ParseFrequency normalises user input to a RentFrequency.
func ParseFrequency(s string) (domain.RentFrequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly":
		return domain.FrequencyMonthly, nil
	case "quarterly":
		return domain.FrequencyQuarterly, nil
	case "semi-annual", "semiannual", "semi_annual":
		return domain.FrequencySemiAnnual, nil
	case "annual", "yearly":
		return domain.FrequencyAnnual, nil
	default:
		return "", fmt.Errorf("unknown rent frequency %q", s)
	}
}

// Build returns the ordered payment obligations for a lease. Due dates step
// from start by whole months with the day clamped to the month end, up to and
// including end. The final installment absorbs the rounding remainder so the
// amounts always sum to total.
func Build(total decimal.Decimal, start, end time.Time, freq domain.RentFrequency) []Installment {
	dates := DueDates(start, end, freq)
	count := decimal.NewFromInt(int64(len(dates)))
	share := total.Div(count).Round(2)
	if share.Mul(count.Sub(decimal.NewFromInt(1))).GreaterThan(total) {
		// rounding up would leave a negative final installment
		share = total.Div(count).Truncate(2)
	}
	out := make([]Installment, len(dates))
	allocated := decimal.Zero
	for i, d := range dates {
		amount := share
		if i == len(dates)-1 {
			amount = total.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		out[i] = Installment{Sequence: i + 1, DueDate: d, Amount: amount}
	}
	return out
}

// DueDates returns the due dates alone. The result is never empty.
func DueDates(start, end time.Time, freq domain.RentFrequency) []time.Time {
	start = day(start)
	end = day(end)
	step := StepMonths(freq)
	if step == 0 || end.Before(start) {
		return []time.Time{start}
	}
	var dates []time.Time
	for i := 0; ; i++ {
		due := AddMonths(start, i*step)
		if due.After(end) {
			break
		}
		dates = append(dates, due)
	}
	return dates
}

// AddMonths adds n calendar months to t, clamping the day to the last day of
// the target month (Jan 31 + 1 month = Feb 29 in a leap year).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}

// TermMonths returns the number of whole months from start to the day after
// end, minimum 1. A calendar year lease is 12 months.
func TermMonths(start, end time.Time) int {
	after := day(end).AddDate(0, 0, 1)
	start = day(start)
	months := (after.Year()-start.Year())*12 + int(after.Month()-start.Month())
	if after.Day() < start.Day() {
		months--
	}
	if months < 1 {
		return 1
	}
	return months
}

func daysIn(first time.Time) int {
	return time.Date(first.Year(), first.Month()+1, 0, 0, 0, 0, 0, first.Location()).Day()
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
