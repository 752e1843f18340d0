/*
errors.go - Billing error taxonomy

PURPOSE:
  Every failure the calculation layer can produce has a type here. A
  silently-wrong bill total is the worst outcome a billing system can
  have, so calculation errors are never swallowed into a default value:
  they propagate to the immediate caller.

ERROR KINDS:
  ValidationError                  missing or malformed input, not retried
  FormulaError                     bad expression or evaluation fault
  DuplicateChargeError             same charge source added twice (warning)
  UnsupportedCalculationTypeError  custom bill computed without an amount
  IncompleteCalculationError       assembling or finalizing before inputs exist
  TransportError                   one bulk batch failed to submit (contained)

  Each structured error unwraps to a sentinel so callers can use errors.Is.

SEE ALSO:
  - reconcile/errors.go: ReconciliationGapError
  - api/handlers.go: HTTP status mapping
*/
package billing

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation                 = errors.New("validation failed")
	ErrFormula                    = errors.New("formula error")
	ErrDuplicateCharge            = errors.New("duplicate charge")
	ErrUnsupportedCalculationType = errors.New("unsupported calculation type")
	ErrIncompleteCalculation      = errors.New("incomplete calculation")
	ErrTransport                  = errors.New("transport error")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// FormulaError reports a formula that could not be parsed or evaluated.
// Pos is the byte offset of the offending token, -1 when unknown.
type FormulaError struct {
	Expr   string
	Pos    int
	Reason string
}

func (e *FormulaError) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("formula %q: %s at offset %d", e.Expr, e.Reason, e.Pos)
	}
	return fmt.Sprintf("formula %q: %s", e.Expr, e.Reason)
}

func (e *FormulaError) Unwrap() error { return ErrFormula }

type DuplicateChargeError struct {
	SourceSpecID string
}

func (e *DuplicateChargeError) Error() string {
	return fmt.Sprintf("charge %s already added", e.SourceSpecID)
}

func (e *DuplicateChargeError) Unwrap() error { return ErrDuplicateCharge }

type UnsupportedCalculationTypeError struct {
	Type   CalculationType
	Reason string
}

func (e *UnsupportedCalculationTypeError) Error() string {
	return fmt.Sprintf("calculation type %q: %s", e.Type, e.Reason)
}

func (e *UnsupportedCalculationTypeError) Unwrap() error { return ErrUnsupportedCalculationType }

// IncompleteCalculationError lists the inputs still missing.
type IncompleteCalculationError struct {
	Missing []string
}

func (e *IncompleteCalculationError) Error() string {
	if len(e.Missing) == 0 {
		return "calculation not performed against current inputs"
	}
	return "incomplete calculation: missing " + strings.Join(e.Missing, ", ")
}

func (e *IncompleteCalculationError) Unwrap() error { return ErrIncompleteCalculation }

// TransportError wraps a batch-level submission failure.
type TransportError struct {
	Batch int // 1-based
	Size  int
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("batch %d (%d bills): %v", e.Batch, e.Size, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrFormula) ||
		errors.Is(err, ErrIncompleteCalculation) ||
		errors.Is(err, ErrUnsupportedCalculationType)
}
