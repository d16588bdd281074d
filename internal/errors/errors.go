package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the kind of failure.
type ErrorType string

const (
	ErrTypeDataShape ErrorType = "DATA_SHAPE"
	ErrTypeConfig    ErrorType = "CONFIG"
	ErrTypeParsing   ErrorType = "PARSING"
	ErrTypeNetwork   ErrorType = "NETWORK"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewDataShapeError reports a required column that is absent or holds values
// that cannot be parsed into the expected type.
func NewDataShapeError(message string, cause error) *AppError {
	return NewAppError(ErrTypeDataShape, message, cause)
}

// MissingColumn is a DataShape error for an absent required column.
func MissingColumn(table, column string) *AppError {
	return NewDataShapeError(fmt.Sprintf("%s: missing required column %q", table, column), nil).
		WithContext("table", table).
		WithContext("column", column)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// NewParsingError creates a parsing-related error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewNetworkError creates a network-related error
func NewNetworkError(message string, cause error) *AppError {
	return NewAppError(ErrTypeNetwork, message, cause)
}

// Is reports whether any error in err's chain is an AppError of the given type.
func Is(err error, errType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// IsDataShape reports whether err is a DataShape error.
func IsDataShape(err error) bool {
	return Is(err, ErrTypeDataShape)
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	return Is(err, ErrTypeConfig)
}
