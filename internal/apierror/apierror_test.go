package apierror

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrConflict, http.StatusConflict},
		{ErrBadRequest, http.StatusBadRequest},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrInternalServer, http.StatusInternalServerError},
		{ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		err := NewAPIError(tt.code, "message", nil)
		assert.Equal(t, tt.want, MapErrorToHTTPStatus(err))
	}
}

func TestMapErrorToHTTPStatusPlainError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, MapErrorToHTTPStatus(errors.New("plain")))
}

func TestAPIErrorMessage(t *testing.T) {
	err := NewAPIError(ErrNotFound, "Order with ID '42' not found", nil)
	assert.Equal(t, "NOT_FOUND: Order with ID '42' not found", err.Error())
}
