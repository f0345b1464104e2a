package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeValidation       ErrorType = "validation"
	ErrorTypeConfig           ErrorType = "config"
	ErrorTypeEngineInvocation ErrorType = "engine_invocation"
	ErrorTypeExtraction       ErrorType = "extraction"
	ErrorTypeSourceIO         ErrorType = "source_io"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

// ConfigError aborts a run before any file is processed.
func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

// EngineInvocationError marks a baseline or enhancement engine that failed to run.
func EngineInvocationError(message string, err error) *DomainError {
	return NewError(ErrorTypeEngineInvocation, message, err)
}

// ExtractionError marks engine output that could not be mapped to a requested page.
func ExtractionError(message string, err error) *DomainError {
	return NewError(ErrorTypeExtraction, message, err)
}

// SourceIOError marks a malformed or unreadable document, or a failed write.
func SourceIOError(message string, err error) *DomainError {
	return NewError(ErrorTypeSourceIO, message, err)
}

// TypeOf returns the ErrorType of the first DomainError in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type, true
	}
	return "", false
}

// IsType reports whether err wraps a DomainError of the given type.
func IsType(err error, t ErrorType) bool {
	got, ok := TypeOf(err)
	return ok && got == t
}
