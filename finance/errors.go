package finance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidDate is returned when a value cannot be read as a timestamp.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidRate is returned for malformed or negative interest rates.
	ErrInvalidRate = errors.New("invalid interest rate")

	// ErrNoConvergence is returned when IRR root finding cannot bracket a root.
	ErrNoConvergence = errors.New("irr did not converge")
)

// DateError carries the input that failed to parse.
type DateError struct {
	Input any
}

func (e *DateError) Error() string {
	return fmt.Sprintf("invalid date: %v (%T)", e.Input, e.Input)
}

func (e *DateError) Unwrap() error { return ErrInvalidDate }
