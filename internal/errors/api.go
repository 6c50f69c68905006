package errors

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// APIError represents a structured API error response
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// statusFor maps pipeline error types to HTTP status codes.
func statusFor(t ErrorType) int {
	switch t {
	case ErrTypeUnknownIndicator:
		return http.StatusNotFound
	case ErrTypeAmbiguousIndicator, ErrTypeIncompatibleDataflows,
		ErrTypeConflictingFormat, ErrTypeMalformedPeriod, ErrTypeValidation:
		return http.StatusBadRequest
	case ErrTypeTransport:
		return http.StatusBadGateway
	case ErrTypeServer:
		return http.StatusBadGateway
	case ErrTypeDataCorruption:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ToAPIError converts any error into a renderable APIError, preserving
// the taxonomy type and context for AppError values.
func ToAPIError(err error) *APIError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &APIError{
			StatusCode: statusFor(appErr.Type),
			ErrorCode:  string(appErr.Type),
			Message:    appErr.Message,
			Details:    appErr.Context,
		}
	}
	return &APIError{
		StatusCode: http.StatusInternalServerError,
		ErrorCode:  "INTERNAL_SERVER_ERROR",
		Message:    err.Error(),
	}
}
