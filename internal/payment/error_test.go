package payment

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"bad terminal key", &AuthenticationError{Reason: ReasonBadTerminalKey}, http.StatusBadRequest},
		{"bad token", &AuthenticationError{Reason: ReasonBadToken}, http.StatusBadRequest},
		{"validation", &ValidationError{Msg: "Bad request"}, http.StatusBadRequest},
		{"not found", ErrPaymentNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("lookup: %w", ErrPaymentNotFound), http.StatusNotFound},
		{"stale", ErrStaleState, http.StatusConflict},
		{"transport", &TransportError{Op: "Init", StatusCode: 503}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestTransportError(t *testing.T) {
	cause := errors.New("connection refused")

	err := &TransportError{Op: "GetState", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "tinkoff GetState: connection refused", err.Error())

	err = &TransportError{Op: "Init", StatusCode: 502}
	assert.Equal(t, "tinkoff Init: bad status code 502", err.Error())
}

func TestValidationError(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := &ValidationError{Msg: "invalid response", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "invalid response: unexpected EOF", err.Error())
	assert.Equal(t, "Bad request", (&ValidationError{Msg: "Bad request"}).Error())
}
