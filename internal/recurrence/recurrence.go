// Package recurrence computes the next due date for a recurrence frequency.
package recurrence

import (
	"time"

	"github.com/propflow/upkeep/internal/domain"
)

// Next returns the due date one period after anchor. It is pure and
// side-effect-free so it can be called repeatedly without drift.
//
// Month-based frequencies preserve the anchor's day of month; when the
// target month is shorter, the result clamps to its last day (Jan 31 +
// 1 month = Feb 29 in a leap year, Feb 28 otherwise). time.AddDate would
// instead roll the overflow into the following month, skipping a period.
func Next(anchor time.Time, f domain.Frequency) time.Time {
	switch f {
	case domain.FreqDaily:
		return anchor.AddDate(0, 0, 1)
	case domain.FreqWeekly:
		return anchor.AddDate(0, 0, 7)
	case domain.FreqBiweekly:
		return anchor.AddDate(0, 0, 14)
	case domain.FreqMonthly:
		return addMonths(anchor, 1)
	case domain.FreqQuarterly:
		return addMonths(anchor, 3)
	case domain.FreqBiannual:
		return addMonths(anchor, 6)
	case domain.FreqAnnual:
		return addMonths(anchor, 12)
	}
	// Unknown frequencies are rejected at the validation boundary; fall
	// back to monthly so the function stays total and the cursor still
	// advances if bad data slips through.
	return addMonths(anchor, 1)
}

// addMonths adds n calendar months, clamping the day of month to the last
// day of the target month instead of overflowing into the next one.
func addMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	m := int(month) - 1 + n
	targetYear := year + m/12
	targetMonth := time.Month(m%12 + 1)

	if last := daysIn(targetYear, targetMonth); day > last {
		day = last
	}
	return time.Date(targetYear, targetMonth, day, hour, min, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
