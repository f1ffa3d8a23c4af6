package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches two domain errors by code and message so wrapped copies of a
// sentinel still compare equal.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeUpstream         = "UPSTREAM_ERROR"
)

// Validation errors
var (
	ErrSeriesRequired       = NewDomainError(ErrCodeValidation, "recurring meeting id is required")
	ErrInvalidStatus        = NewDomainError(ErrCodeValidation, "invalid action item status")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrDimensionMismatch    = NewDomainError(ErrCodeValidation, "embedding dimension does not match store")
)

// Not found errors
var (
	ErrActionItemNotFound = NewDomainError(ErrCodeNotFound, "action item not found")
	ErrBotNotFound        = NewDomainError(ErrCodeNotFound, "bot not found")
	ErrStorageNotFound    = NewDomainError(ErrCodeNotFound, "stored record not found")
	ErrSessionNotFound    = NewDomainError(ErrCodeNotFound, "live session not found")
)

// Operation errors
var (
	ErrNoIdentity           = NewDomainError(ErrCodeInvalidOperation, "no bot identity available")
	ErrInvalidTransition    = NewDomainError(ErrCodeInvalidOperation, "invalid action item status transition")
	ErrStorageOperationFail = NewDomainError(ErrCodeInternalError, "storage operation failed")
)
