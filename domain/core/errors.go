package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound         = errors.New("resource not found")
	ErrItemNotFound     = fmt.Errorf("%w: item", ErrNotFound)
	ErrResponseNotFound = fmt.Errorf("%w: response", ErrNotFound)
	ErrSessionNotFound  = fmt.Errorf("%w: session", ErrNotFound)
	ErrResultNotFound   = fmt.Errorf("%w: result", ErrNotFound)
	ErrRunNotFound      = fmt.Errorf("%w: calibration run", ErrNotFound)

	// §7 error kinds
	ErrInsufficientSample = errors.New("insufficient sample for analysis")
	ErrStoreError         = errors.New("response store error")
	ErrConvergenceFailure = errors.New("IRT calibration did not converge")
	ErrPoolExhausted      = errors.New("no eligible item remains in the pool")
	ErrValidityCheckError = errors.New("validity detector failed")
	ErrConfigError        = errors.New("invalid or missing configuration")

	// Invariant violations (§3, §8)
	ErrDuplicateResponse    = errors.New("response already recorded for (session, item)")
	ErrDuplicateInProgress  = errors.New("user already has an in-progress session")
	ErrDuplicateCalibration = errors.New("calibration job_id already exists")
	ErrItemDeactivated      = errors.New("item is deactivated")
)

// NewNotFoundError builds a contextualized not-found error.
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// NewValidationError builds a contextualized validation error.
func NewValidationError(field string, reason string) error {
	return fmt.Errorf("validation failed for %s: %s", field, reason)
}

// NewInsufficientSampleError reports counts alongside the error, per §7.
func NewInsufficientSampleError(reason string, have, need int) error {
	return fmt.Errorf("%w: %s (have %d, need %d)", ErrInsufficientSample, reason, have, need)
}

// NewStoreError wraps a lower-level persistence failure.
func NewStoreError(op string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreError, op, cause)
}

// IsNotFoundError reports whether err is (or wraps) a not-found error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInsufficientSample reports whether err is (or wraps) ErrInsufficientSample.
func IsInsufficientSample(err error) bool {
	return errors.Is(err, ErrInsufficientSample)
}

// IsStoreError reports whether err is (or wraps) ErrStoreError.
func IsStoreError(err error) bool {
	return errors.Is(err, ErrStoreError)
}
