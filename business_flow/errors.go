// Package businessflow contains the core business logic of the fulfillment pipeline
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Skip conditions: expected outcomes that acknowledge a notification without acting on it
	ErrUnknownProduct  = errors.New("product is not known locally")
	ErrProductMismatch = errors.New("purchase product does not match notified product")
	ErrPurchaseNotPaid = errors.New("purchase is not in an accepted state")
	ErrNoMatch         = errors.New("no variant of the purchase maps to a provisioning package")

	// Intake errors
	ErrInvalidSignature     = errors.New("notification signature is invalid")
	ErrNotificationRequired = errors.New("notification is required")

	// Executor signal: the run failed on transport and may be retried by the scheduler
	ErrRetryable = errors.New("provisioning attempt failed and may be retried")

	// Order errors
	ErrOrderNotFound           = errors.New("order not found")
	ErrOrderNotRetryable       = errors.New("order is not in a retryable state")
	ErrOrderNotCompleted       = errors.New("order is not completed")
	ErrTransactionCodeRequired = errors.New("transaction code is required")

	// Admin errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAdminNotConfigured = errors.New("admin account is not configured")

	// Listing errors
	ErrInvalidPage           = errors.New("page must be at least 1")
	ErrInvalidPageSize       = errors.New("page size is out of range")
	ErrStartDateAfterEndDate = errors.New("start date cannot be after end date")
	ErrInvalidStatus         = errors.New("invalid order status")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

// IsSkipCondition reports whether err means "acknowledge and ignore"
func IsSkipCondition(err error) bool {
	return errors.Is(err, ErrUnknownProduct) ||
		errors.Is(err, ErrProductMismatch) ||
		errors.Is(err, ErrPurchaseNotPaid) ||
		errors.Is(err, ErrNoMatch)
}

// IsRetryable reports whether the scheduler should run the executor again
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}

func IsNoMatch(err error) bool {
	return errors.Is(err, ErrNoMatch)
}

func IsInvalidSignature(err error) bool {
	return errors.Is(err, ErrInvalidSignature)
}

func IsOrderNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}

func IsOrderNotRetryable(err error) bool {
	return errors.Is(err, ErrOrderNotRetryable)
}

func IsOrderNotCompleted(err error) bool {
	return errors.Is(err, ErrOrderNotCompleted)
}

func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

func IsAdminNotConfigured(err error) bool {
	return errors.Is(err, ErrAdminNotConfigured)
}

// IsValidationError reports listing and request validation failures
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidPage) ||
		errors.Is(err, ErrInvalidPageSize) ||
		errors.Is(err, ErrStartDateAfterEndDate) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrTransactionCodeRequired) ||
		errors.Is(err, ErrNotificationRequired)
}
