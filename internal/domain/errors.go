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

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
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
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeTransient     = "TRANSIENT_PROVIDER_ERROR"
	ErrCodePipelineStage = "PIPELINE_STAGE_FAILURE"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

var (
	// ErrEmptyQuery rejects blank search queries before any provider call.
	ErrEmptyQuery = NewDomainError(ErrCodeValidation, "query must not be empty")
	// ErrMissingFileID rejects ingestion of metadata without a stable identifier.
	ErrMissingFileID = NewDomainError(ErrCodeValidation, "missing file id")
)
