package generic

// =============================================================================
// ACCRUAL FREQUENCY - How often an overdue charge compounds
// =============================================================================

// AccrualFrequency is the period over which a running charge is
// re-derived (daily, weekly or monthly).
type AccrualFrequency string

const (
	FreqDaily   AccrualFrequency = "daily"
	FreqWeekly  AccrualFrequency = "weekly"
	FreqMonthly AccrualFrequency = "monthly"
)

func (f AccrualFrequency) Valid() bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqMonthly:
		return true
	}
	return false
}

// PeriodsStarted returns how many accrual periods have begun in
// [first, at], where first is the first day of the first period.
// Returns 0 when at is before first.
//
// Examples with first = Jan 16:
//   - daily,   at = Jan 18 -> 3
//   - weekly,  at = Jan 22 -> 1, at = Jan 23 -> 2
//   - monthly, at = Feb 15 -> 1, at = Feb 16 -> 2
//
// The result depends only on the two dates, so evaluating it twice on
// the same day always yields the same count.
func (f AccrualFrequency) PeriodsStarted(first, at TimePoint) int {
	if at.Before(first) {
		return 0
	}
	days := DaysBetween(first, at) + 1
	switch f {
	case FreqWeekly:
		return 1 + (days-1)/7
	case FreqMonthly:
		return MonthsStarted(first, at)
	default:
		return days
	}
}
