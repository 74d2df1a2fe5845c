/*
errors.go - Centralized error types for the loan ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every failure is a synchronous return; validation always runs before
  anything is appended to a loan's logs, so a failed call leaves the loan
  exactly as it was.

ERROR CATEGORIES:
  1. Construction errors - Invalid loan terms
  2. Payment errors - Invalid amounts or dates
  3. Lookup errors - Unknown due date or installment, nothing left to pay
  4. Warp errors - Unparseable target date, nested warp
  5. Store errors - Unknown or duplicate loan

USAGE:
  if ledger.IsClientError(err) {
      // 400/422 at the API boundary
  }

SEE ALSO:
  - finance/errors.go: ErrInvalidDate and DateError
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/warp/loan-ledger/finance"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidLoan is returned when loan terms fail validation.
	ErrInvalidLoan = errors.New("invalid loan")

	// ErrInvalidPayment is returned for a zero or negative payment amount.
	ErrInvalidPayment = errors.New("invalid payment")

	// ErrDueDateNotFound is returned when a due date is not part of the loan.
	ErrDueDateNotFound = errors.New("due date not found")

	// ErrInstallmentOutOfRange is returned for an installment number outside 1..N.
	ErrInstallmentOutOfRange = errors.New("installment out of range")

	// ErrInstallmentPaid is returned when anticipating an installment that is
	// already fully covered.
	ErrInstallmentPaid = errors.New("installment already paid")

	// ErrNoUnpaidDueDates is returned when every installment is covered.
	ErrNoUnpaidDueDates = errors.New("no unpaid due dates")

	// ErrInvalidDate is the same sentinel as finance.ErrInvalidDate so callers
	// only need to import this package.
	ErrInvalidDate = finance.ErrInvalidDate

	// ErrNestedWarp is returned when a warp is entered while another is active.
	ErrNestedWarp = errors.New("nested warp: a warp is already active")

	// ErrLoanNotFound is returned by stores for unknown loan IDs.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrDuplicateLoan is returned by stores when a loan ID already exists.
	ErrDuplicateLoan = errors.New("loan already exists")

	// ErrDuplicatePayment is returned by stores when a payment ID was already
	// journaled. Safe to ignore on retries.
	ErrDuplicatePayment = errors.New("duplicate payment")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidLoanError names the term that failed validation.
type InvalidLoanError struct {
	Field  string
	Reason string
}

func (e *InvalidLoanError) Error() string {
	return fmt.Sprintf("invalid loan: %s %s", e.Field, e.Reason)
}

func (e *InvalidLoanError) Unwrap() error {
	return ErrInvalidLoan
}

func invalidLoan(field, format string, args ...any) error {
	return &InvalidLoanError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InstallmentError carries the installment number of a lookup failure.
type InstallmentError struct {
	Number int
	Err    error
}

func (e *InstallmentError) Error() string {
	return fmt.Sprintf("installment %d: %v", e.Number, e.Err)
}

func (e *InstallmentError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidLoan) ||
		errors.Is(err, ErrInvalidPayment) ||
		errors.Is(err, ErrInstallmentOutOfRange) ||
		errors.Is(err, ErrInstallmentPaid) ||
		errors.Is(err, ErrNoUnpaidDueDates) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrNestedWarp) ||
		errors.Is(err, ErrDuplicateLoan) ||
		errors.Is(err, ErrDuplicatePayment) ||
		errors.Is(err, finance.ErrInvalidRate)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLoanNotFound) ||
		errors.Is(err, ErrDueDateNotFound)
}
