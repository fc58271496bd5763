package recurrence_test

import (
	"testing"
	"time"

	"github.com/propflow/upkeep/internal/domain"
	"github.com/propflow/upkeep/internal/recurrence"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNext(t *testing.T) {
	tests := []struct {
		name   string
		anchor time.Time
		freq   domain.Frequency
		want   time.Time
	}{
		{"daily", date(2024, 1, 1), domain.FreqDaily, date(2024, 1, 2)},
		{"weekly", date(2024, 1, 1), domain.FreqWeekly, date(2024, 1, 8)},
		{"biweekly", date(2024, 1, 1), domain.FreqBiweekly, date(2024, 1, 15)},
		{"monthly", date(2024, 1, 15), domain.FreqMonthly, date(2024, 2, 15)},
		{"quarterly", date(2024, 1, 15), domain.FreqQuarterly, date(2024, 4, 15)},
		{"biannual", date(2024, 1, 15), domain.FreqBiannual, date(2024, 7, 15)},
		{"annual", date(2024, 3, 10), domain.FreqAnnual, date(2025, 3, 10)},
		{"monthly across year boundary", date(2024, 12, 15), domain.FreqMonthly, date(2025, 1, 15)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := recurrence.Next(tt.anchor, tt.freq)
			if !got.Equal(tt.want) {
				t.Errorf("Next(%v, %v) = %v, want %v", tt.anchor, tt.freq, got, tt.want)
			}
		})
	}
}

func TestNext_MonthEndClamping(t *testing.T) {
	tests := []struct {
		name   string
		anchor time.Time
		freq   domain.Frequency
		want   time.Time
	}{
		{"jan 31 to leap feb", date(2024, 1, 31), domain.FreqMonthly, date(2024, 2, 29)},
		{"jan 31 to non-leap feb", date(2025, 1, 31), domain.FreqMonthly, date(2025, 2, 28)},
		{"jan 30 to leap feb", date(2024, 1, 30), domain.FreqMonthly, date(2024, 2, 29)},
		{"may 31 to june 30", date(2024, 5, 31), domain.FreqMonthly, date(2024, 6, 30)},
		{"quarterly nov 30 to feb", date(2023, 11, 30), domain.FreqQuarterly, date(2024, 2, 29)},
		{"annual leap feb 29", date(2024, 2, 29), domain.FreqAnnual, date(2025, 2, 28)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := recurrence.Next(tt.anchor, tt.freq)
			if !got.Equal(tt.want) {
				t.Errorf("Next(%v, %v) = %v, want %v", tt.anchor, tt.freq, got, tt.want)
			}
		})
	}
}

func TestNext_PreservesClockAndLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	anchor := time.Date(2024, 1, 31, 9, 30, 0, 0, loc)

	got := recurrence.Next(anchor, domain.FreqMonthly)

	if got.Hour() != 9 || got.Minute() != 30 {
		t.Errorf("Next changed the clock time: got %v", got)
	}
	if got.Location() != loc {
		t.Errorf("Next changed the location: got %v", got.Location())
	}
}

func TestNext_Idempotent(t *testing.T) {
	anchor := date(2024, 1, 31)
	first := recurrence.Next(anchor, domain.FreqMonthly)
	second := recurrence.Next(anchor, domain.FreqMonthly)
	if !first.Equal(second) {
		t.Errorf("repeated calls drift: %v vs %v", first, second)
	}
}
