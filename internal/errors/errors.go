package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrTypeConfig       ErrorType = "config"
	ErrTypeStore        ErrorType = "store"
	ErrTypeProvider     ErrorType = "provider"
	ErrTypeDatabase     ErrorType = "database"
	ErrTypeValidation   ErrorType = "validation"
	ErrTypeUnsafeQuery  ErrorType = "unsafe_query"
	ErrTypeCannotAnswer ErrorType = "cannot_answer"
	ErrTypeNotFound     ErrorType = "not_found"
	ErrTypeInternal     ErrorType = "internal"
)

// Error represents a structured error with type and optional suggestions
type Error struct {
	Type        ErrorType
	Message     string
	Cause       error
	Suggestions []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithSuggestion adds a suggestion for resolving the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// New creates a new structured error
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new structured error with formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	if errType == ErrTypeUnsafeQuery && IsUnsafeQuery(err) {
		return true
	}

	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type == errType
	}

	return false
}

// GetType returns the error type if it's a structured error
func GetType(err error) ErrorType {
	if IsUnsafeQuery(err) {
		return ErrTypeUnsafeQuery
	}

	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type
	}

	return ErrTypeInternal
}

// NewConfigError creates a configuration error with suggestions
func NewConfigError(message, field string) *Error {
	err := New(ErrTypeConfig, message)
	if field != "" {
		err.Message = fmt.Sprintf("%s (field: %s)", message, field)
	}

	return err.
		WithSuggestion("Check your configuration file syntax").
		WithSuggestion("Run 'askdb config' to see the active configuration")
}

// NewProviderError wraps a failure returned by an embedding or completion backend
func NewProviderError(provider string, err error) *Error {
	return Wrapf(err, ErrTypeProvider, "%s provider call failed", provider)
}

// ViolationKind discriminates why a generated query was rejected
type ViolationKind string

const (
	ViolationNonSelect        ViolationKind = "non_select"
	ViolationForbiddenTable   ViolationKind = "forbidden_table"
	ViolationDangerousPattern ViolationKind = "dangerous_pattern"
)

// UnsafeQueryError is returned when generated SQL fails the query guard
type UnsafeQueryError struct {
	SQL    string
	Kind   ViolationKind
	Detail string
}

func (e *UnsafeQueryError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("unsafe query rejected (%s): %s", e.Kind, e.Detail)
	}

	return fmt.Sprintf("unsafe query rejected (%s)", e.Kind)
}

// NewUnsafeQueryError creates an unsafe query error for the given SQL
func NewUnsafeQueryError(sql string, kind ViolationKind, detail string) *UnsafeQueryError {
	return &UnsafeQueryError{SQL: sql, Kind: kind, Detail: detail}
}

// IsUnsafeQuery reports whether err is, or wraps, an *UnsafeQueryError
func IsUnsafeQuery(err error) bool {
	var unsafeErr *UnsafeQueryError
	return errors.As(err, &unsafeErr)
}

// AsUnsafeQuery extracts the *UnsafeQueryError from err, if any
func AsUnsafeQuery(err error) (*UnsafeQueryError, bool) {
	var unsafeErr *UnsafeQueryError
	if errors.As(err, &unsafeErr) {
		return unsafeErr, true
	}

	return nil, false
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
