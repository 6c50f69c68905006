package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeUnknownIndicator      ErrorType = "UNKNOWN_INDICATOR"
	ErrTypeAmbiguousIndicator    ErrorType = "AMBIGUOUS_INDICATOR"
	ErrTypeIncompatibleDataflows ErrorType = "INCOMPATIBLE_DATAFLOWS"
	ErrTypeMalformedPeriod       ErrorType = "MALFORMED_PERIOD"
	ErrTypeDataCorruption        ErrorType = "DATA_CORRUPTION"
	ErrTypeTransport             ErrorType = "TRANSPORT_FAILURE"
	ErrTypeServer                ErrorType = "SERVER_ERROR"
	ErrTypeConflictingFormat     ErrorType = "CONFLICTING_FORMAT"
	ErrTypeValidation            ErrorType = "VALIDATION"
	ErrTypeConfig                ErrorType = "CONFIG"
	ErrTypeStorage               ErrorType = "STORAGE"
	ErrTypeParsing               ErrorType = "PARSING"
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

// IsType reports whether err (or anything it wraps) is an AppError of
// the given type.
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// IsRetryable reports whether the error is a transient transport
// failure worth retrying. Server-reported errors are never retried.
func IsRetryable(err error) bool {
	return IsType(err, ErrTypeTransport)
}

// Helper constructors for the pipeline error taxonomy

// NewUnknownIndicatorError indicates an indicator with no entry in the
// indicator-to-dataflow map (tier orphan).
func NewUnknownIndicatorError(code string) *AppError {
	return NewAppError(ErrTypeUnknownIndicator,
		fmt.Sprintf("indicator %q has no known dataflow", code), nil).
		WithContext("indicator", code)
}

// NewAmbiguousIndicatorError indicates an indicator mapped to several
// dataflows with no canonical choice.
func NewAmbiguousIndicatorError(code string, dataflows []string) *AppError {
	return NewAppError(ErrTypeAmbiguousIndicator,
		fmt.Sprintf("indicator %q maps to %d dataflows and none is canonical", code, len(dataflows)), nil).
		WithContext("indicator", code).
		WithContext("dataflows", dataflows)
}

// NewIncompatibleDataflowsError indicates indicators resolving to
// different dataflows in a request that requires a single one.
func NewIncompatibleDataflowsError(message string) *AppError {
	return NewAppError(ErrTypeIncompatibleDataflows, message, nil)
}

// NewMalformedPeriodError indicates a time period with no leading
// 4-digit year component.
func NewMalformedPeriodError(raw string) *AppError {
	return NewAppError(ErrTypeMalformedPeriod,
		fmt.Sprintf("period %q has no 4-digit year component", raw), nil).
		WithContext("period", raw)
}

// NewDataCorruptionError indicates an unparseable value or a duplicate
// composite key, both of which point at a parsing bug rather than bad
// user input.
func NewDataCorruptionError(message string, cause error) *AppError {
	return NewAppError(ErrTypeDataCorruption, message, cause)
}

// NewDuplicateObservationError indicates the same composite key was
// seen more than once in a normalized result set.
func NewDuplicateObservationError(key string) *AppError {
	return NewAppError(ErrTypeDataCorruption,
		"duplicate composite key in result set", nil).
		WithContext("key", key)
}

// NewTransportError creates a retryable network-level error
func NewTransportError(message string, cause error) *AppError {
	return NewAppError(ErrTypeTransport, message, cause)
}

// NewServerError creates a non-retryable error carrying the remote
// server's own detail.
func NewServerError(status int, detail string) *AppError {
	return NewAppError(ErrTypeServer,
		fmt.Sprintf("server returned status %d", status), nil).
		WithContext("status", status).
		WithContext("detail", detail)
}

// NewConflictingFormatError indicates more than one output shape was
// requested at once.
func NewConflictingFormatError(formats []string) *AppError {
	return NewAppError(ErrTypeConflictingFormat,
		fmt.Sprintf("conflicting output formats requested: %v", formats), nil)
}

// NewValidationError creates a request validation error
func NewValidationError(message string, cause error) *AppError {
	return NewAppError(ErrTypeValidation, message, cause)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// NewStorageError creates a cache/file persistence error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewParsingError creates a payload parsing error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}
