package generic_test

import (
	"testing"
	"time"

	"github.com/warp/billing-engine/generic"
)

func TestAccrualFrequency_PeriodsStarted(t *testing.T) {
	first := generic.NewTimePoint(2026, time.January, 16)
	on := func(m time.Month, day int) generic.TimePoint { return generic.NewTimePoint(2026, m, day) }

	tests := []struct {
		name string
		freq generic.AccrualFrequency
		at   generic.TimePoint
		want int
	}{
		{"before first day", generic.FreqDaily, on(time.January, 15), 0},
		{"daily first day", generic.FreqDaily, on(time.January, 16), 1},
		{"daily third day", generic.FreqDaily, on(time.January, 18), 3},
		{"weekly end of first week", generic.FreqWeekly, on(time.January, 22), 1},
		{"weekly second week", generic.FreqWeekly, on(time.January, 23), 2},
		{"monthly within first month", generic.FreqMonthly, on(time.February, 15), 1},
		{"monthly second month", generic.FreqMonthly, on(time.February, 16), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.freq.PeriodsStarted(first, tt.at); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAccrualFrequency_Valid(t *testing.T) {
	if generic.AccrualFrequency("yearly").Valid() {
		t.Error("yearly is not a supported compounding frequency")
	}
	if !generic.FreqMonthly.Valid() {
		t.Error("monthly should be valid")
	}
}
