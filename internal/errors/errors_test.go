package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrTypeValidation, "bad input", nil)
	assert.Equal(t, "[VALIDATION] bad input", err.Error())

	wrapped := NewAppError(ErrTypeTransport, "request failed", errors.New("connection refused"))
	assert.Equal(t, "[TRANSPORT_FAILURE] request failed: connection refused", wrapped.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := NewAppError(ErrTypeStorage, "save failed", cause)
	assert.True(t, errors.Is(err, cause))
}

func TestIsType(t *testing.T) {
	err := NewUnknownIndicatorError("XYZ")
	assert.True(t, IsType(err, ErrTypeUnknownIndicator))
	assert.False(t, IsType(err, ErrTypeValidation))
	assert.False(t, IsType(errors.New("plain"), ErrTypeValidation))

	// Wrapped AppErrors are still recognized.
	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, IsType(wrapped, ErrTypeUnknownIndicator))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewTransportError("timeout", nil)))
	assert.False(t, IsRetryable(NewServerError(500, "boom")))
	assert.False(t, IsRetryable(NewValidationError("bad", nil)))
}

func TestConstructorsCarryContext(t *testing.T) {
	err := NewAmbiguousIndicatorError("CME_MRY0T4", []string{"CME", "GLOBAL_DATAFLOW"})
	assert.Equal(t, "CME_MRY0T4", err.Context["indicator"])
	assert.Equal(t, []string{"CME", "GLOBAL_DATAFLOW"}, err.Context["dataflows"])

	srv := NewServerError(400, "semantic error")
	assert.Equal(t, 400, srv.Context["status"])
	assert.Equal(t, "semantic error", srv.Context["detail"])
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown indicator maps to 404",
			err:        NewUnknownIndicatorError("XYZ"),
			wantStatus: http.StatusNotFound,
			wantCode:   "UNKNOWN_INDICATOR",
		},
		{
			name:       "ambiguous indicator maps to 400",
			err:        NewAmbiguousIndicatorError("XYZ", []string{"A", "B"}),
			wantStatus: http.StatusBadRequest,
			wantCode:   "AMBIGUOUS_INDICATOR",
		},
		{
			name:       "malformed period maps to 400",
			err:        NewMalformedPeriodError("soon"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "MALFORMED_PERIOD",
		},
		{
			name:       "transport maps to 502",
			err:        NewTransportError("unreachable", nil),
			wantStatus: http.StatusBadGateway,
			wantCode:   "TRANSPORT_FAILURE",
		},
		{
			name:       "server error maps to 502",
			err:        NewServerError(500, "boom"),
			wantStatus: http.StatusBadGateway,
			wantCode:   "SERVER_ERROR",
		},
		{
			name:       "data corruption maps to 422",
			err:        NewDuplicateObservationError("k"),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "DATA_CORRUPTION",
		},
		{
			name:       "storage maps to 500",
			err:        NewStorageError("disk full", nil),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "STORAGE",
		},
		{
			name:       "plain error maps to 500",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_SERVER_ERROR",
		},
		{
			name:       "wrapped app error keeps its mapping",
			err:        fmt.Errorf("context: %w", NewUnknownIndicatorError("XYZ")),
			wantStatus: http.StatusNotFound,
			wantCode:   "UNKNOWN_INDICATOR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := ToAPIError(tt.err)
			require.NotNil(t, apiErr)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.ErrorCode)
			assert.NotEmpty(t, apiErr.Message)
		})
	}
}
