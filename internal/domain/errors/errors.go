package errors

import (
	"errors"
	"fmt"
)

// Error types for the payment and commission pipeline
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeBusiness     ErrorType = "business"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeSignature    ErrorType = "signature"
	ErrorTypeConfig       ErrorType = "config"
	ErrorTypeUpstream     ErrorType = "upstream"
	ErrorTypePersistence  ErrorType = "persistence"
	ErrorTypeOutOfOrder   ErrorType = "out_of_order"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
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

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

func NewBusinessError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeBusiness,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 422,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RESOURCE_NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		Retryable:  false,
		StatusCode: 404,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		Retryable:  false,
		StatusCode: 401,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       "CONFLICT",
		Message:    message,
		Retryable:  false,
		StatusCode: 409,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

// NewSignatureError reports a webhook payload whose signature did not verify.
// The provider must not retry these, so the status is 400.
func NewSignatureError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeSignature,
		Code:       "INVALID_SIGNATURE",
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

// NewConfigError reports missing runtime configuration such as the webhook secret.
func NewConfigError(setting string) *AppError {
	return &AppError{
		Type:       ErrorTypeConfig,
		Code:       "MISCONFIGURED",
		Message:    fmt.Sprintf("%s is not configured", setting),
		Retryable:  true,
		StatusCode: 500,
		Details:    map[string]interface{}{"setting": setting},
	}
}

// NewUpstreamFetchError wraps a failed call to the payment provider API.
// Callers normally recover from it with a fallback.
func NewUpstreamFetchError(resource, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUpstream,
		Code:       "UPSTREAM_FETCH_FAILED",
		Message:    fmt.Sprintf("fetching %s: %s", resource, message),
		Retryable:  true,
		StatusCode: 502,
		Details:    map[string]interface{}{"resource": resource},
	}
}

// NewPersistenceError wraps a failed database read or write. Returning it from
// a webhook handler yields a 500 so the provider retries the event.
func NewPersistenceError(operation string) *AppError {
	return &AppError{
		Type:       ErrorTypePersistence,
		Code:       "PERSISTENCE_FAILED",
		Message:    fmt.Sprintf("persistence failure: %s", operation),
		Retryable:  true,
		StatusCode: 500,
		Details:    map[string]interface{}{"operation": operation},
	}
}

// NewOutOfOrderError reports an event about a resource this system has not
// recorded yet. It is retryable so the provider redelivers the event once the
// resource exists.
func NewOutOfOrderError(resource, id string) *AppError {
	return &AppError{
		Type:       ErrorTypeOutOfOrder,
		Code:       "NOT_YET_RECORDED",
		Message:    fmt.Sprintf("%s %s is not recorded yet", resource, id),
		Retryable:  true,
		StatusCode: 500,
		Details:    map[string]interface{}{"resource": resource, "id": id},
	}
}

// Predefined common errors
var (
	ErrInvalidInput     = NewValidationError("INVALID_INPUT", "Invalid input provided")
	ErrPaymentNotFound  = NewNotFoundError("payment")
	ErrScheduleNotFound = NewNotFoundError("payment schedule")
	ErrChargeNotFound   = NewNotFoundError("scheduled charge")
	ErrPayrollNotFound  = NewNotFoundError("payroll run")
)

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// As is the standard errors.As, so callers need a single errors import.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsNotFound reports whether err is a not-found AppError.
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetStatusCode extracts HTTP status code from error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 500
}
