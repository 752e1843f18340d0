package generic

import "time"

// =============================================================================
// PERIOD - Reporting window and billing cycle boundary
// =============================================================================

// Period is an inclusive date range [Start, End].
//
// Examples:
//   - Billing cycle October 2026: Oct 1 - Oct 31
//   - Financial year 2026-27: Apr 1 2026 - Mar 31 2027
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return ErrInvalidPeriod
	}
	if p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// PeriodType defines how periods are calculated
type PeriodType string

const (
	PeriodMonthly       PeriodType = "monthly"        // Billing cycle
	PeriodCalendarYear  PeriodType = "calendar_year"  // Jan 1 - Dec 31
	PeriodFinancialYear PeriodType = "financial_year" // Custom start (Apr 1 in India)
)

// PeriodConfig defines how to calculate periods.
type PeriodConfig struct {
	Type PeriodType

	// For financial year: which month starts the year (1-12)
	FiscalYearStartMonth time.Month
}

// PeriodFor returns the period that contains the given date
func (pc PeriodConfig) PeriodFor(date TimePoint) Period {
	switch pc.Type {
	case PeriodMonthly:
		return Period{
			Start: StartOfMonth(date.Year(), date.Month()),
			End:   EndOfMonth(date.Year(), date.Month()),
		}

	case PeriodFinancialYear:
		return pc.financialYearPeriod(date)

	default:
		return Period{
			Start: NewTimePoint(date.Year(), time.January, 1),
			End:   NewTimePoint(date.Year(), time.December, 31),
		}
	}
}

func (pc PeriodConfig) financialYearPeriod(date TimePoint) Period {
	startMonth := pc.FiscalYearStartMonth
	if startMonth == 0 {
		startMonth = time.April
	}
	year := date.Year()
	fiscalStart := NewTimePoint(year, startMonth, 1)

	// If date is before fiscal year start, we're in previous fiscal year
	if date.Before(fiscalStart) {
		fiscalStart = NewTimePoint(year-1, startMonth, 1)
	}

	fiscalEnd := fiscalStart.AddMonths(12).AddDays(-1)
	return Period{Start: fiscalStart, End: fiscalEnd}
}
