package errors

import (
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
	CodeInvalidInput    = "INVALID_INPUT"

	// §7 error kinds
	CodeInsufficientSample = "INSUFFICIENT_SAMPLE"
	CodeStoreError         = "STORE_ERROR"
	CodeConvergenceFailure = "CONVERGENCE_FAILURE"
	CodePoolExhausted      = "POOL_EXHAUSTED"
	CodeValidityCheckError = "VALIDITY_CHECK_ERROR"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}

func ValidationError(message string) *AppError {
	return New(CodeValidationError, message)
}

func NotFound(resource, id string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s %s not found", resource, id))
}

func Unauthorized(message string) *AppError {
	return New(CodeUnauthorized, message)
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code:    CodeExternalService,
		Message: fmt.Sprintf("%s service error", service),
		Cause:   cause,
	}
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// InsufficientSample reports that a computation lacks enough data,
// surfaced to the caller with counts per §7.
func InsufficientSample(reason string, have, need int) *AppError {
	return New(CodeInsufficientSample, fmt.Sprintf("%s (have %d, need %d)", reason, have, need))
}

// StoreError wraps a response-store failure. No caller retries it: batch
// jobs return it and hooks log it and carry on (§7).
func StoreError(op string, cause error) *AppError {
	return &AppError{Code: CodeStoreError, Message: fmt.Sprintf("store operation failed: %s", op), Cause: cause}
}

// ConvergenceFailure reports that IRT EM did not converge within max_iter;
// the caller must not overwrite prior item parameters.
func ConvergenceFailure(itemID string, iterations int) *AppError {
	return New(CodeConvergenceFailure, fmt.Sprintf("item %s did not converge after %d iterations", itemID, iterations))
}

// PoolExhausted reports that CAT has no eligible item remaining.
func PoolExhausted(sessionID string) *AppError {
	return New(CodePoolExhausted, fmt.Sprintf("item pool exhausted for session %s", sessionID))
}

// ValidityCheckError reports that one detector raised; callers continue
// with the remaining detectors and tag the result accordingly.
func ValidityCheckError(detector string, cause error) *AppError {
	return &AppError{Code: CodeValidityCheckError, Message: fmt.Sprintf("validity detector %q failed", detector), Cause: cause}
}

// ConcurrentModification reports a failed compare-and-swap on a resource's
// optimistic counter (§5): the caller should re-fetch and retry.
func ConcurrentModification(resource, id string) *AppError {
	return New(CodeConcurrentModification, fmt.Sprintf("%s %s was modified concurrently", resource, id))
}


