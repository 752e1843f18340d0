/*
errors.go - Centralized error types for the generic engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages (billing, reconcile) wrap these errors with additional
  context and define their own taxonomy on top.

ERROR CATEGORIES:
  1. Ledger errors - Voucher persistence failures
  2. Lookup errors - Missing bills, bill heads, residents, categories
  3. Validation errors - Structural voucher / period problems

USAGE:
  if errors.Is(err, generic.ErrDuplicateVoucher) {
      // same voucher number already posted to this ledger
  }

SEE ALSO:
  - ledger.go: Uses these errors
  - store.go: Uses these errors
  - billing/errors.go: Calculation-layer taxonomy
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateVoucher is returned when a voucher number is already
	// recorded in the same ledger. The same number in the OTHER leg is fine.
	ErrDuplicateVoucher = errors.New("duplicate voucher number")

	// ErrInvalidVoucher is returned when a voucher fails structural checks.
	ErrInvalidVoucher = errors.New("invalid voucher")

	ErrBillNotFound     = errors.New("bill not found")
	ErrBillHeadNotFound = errors.New("bill head not found")
	ErrResidentNotFound = errors.New("resident not found")
	ErrCategoryNotFound = errors.New("category not found")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// VoucherError names the voucher field that failed validation.
type VoucherError struct {
	Field  string
	Reason string
}

func (e *VoucherError) Error() string {
	return fmt.Sprintf("invalid voucher: %s: %s", e.Field, e.Reason)
}

func (e *VoucherError) Unwrap() error {
	return ErrInvalidVoucher
}

// DuplicateVoucherError provides details about a voucher number collision.
type DuplicateVoucherError struct {
	Ledger        LedgerID
	VoucherNumber VoucherNumber
}

func (e *DuplicateVoucherError) Error() string {
	return fmt.Sprintf("voucher %s already posted to %s ledger", e.VoucherNumber, e.Ledger)
}

func (e *DuplicateVoucherError) Unwrap() error {
	return ErrDuplicateVoucher
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidVoucher) ||
		errors.Is(err, ErrDuplicateVoucher) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBillNotFound) ||
		errors.Is(err, ErrBillHeadNotFound) ||
		errors.Is(err, ErrResidentNotFound) ||
		errors.Is(err, ErrCategoryNotFound)
}
