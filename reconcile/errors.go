package reconcile

import (
	"errors"
	"fmt"

	"github.com/warp/billing-engine/generic"
)

// ErrReconciliationGap is returned when a ledger leg could not be fetched
// for the requested window. No partial statement is produced.
var ErrReconciliationGap = errors.New("reconciliation gap")

type ReconciliationGapError struct {
	Category string
	Period   generic.Period
	Leg      generic.LedgerID
	Err      error
}

func (e *ReconciliationGapError) Error() string {
	return fmt.Sprintf("reconciliation gap: %s leg for %s %s: %v", e.Leg, e.Category, e.Period, e.Err)
}

func (e *ReconciliationGapError) Unwrap() []error { return []error{ErrReconciliationGap, e.Err} }
