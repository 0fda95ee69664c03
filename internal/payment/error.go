package payment

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrReceiptMissing  = errors.New("payment has no receipt")
	ErrMissingKeys     = errors.New("terminal key and secret key are required")
	ErrNoPaymentID     = errors.New("payment has no gateway payment id")
	ErrStaleState      = errors.New("payment was changed since it was loaded")
)

// TransportError is returned when the gateway call fails or answers with a
// status other than 200.
type TransportError struct {
	Op         string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tinkoff %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("tinkoff %s: bad status code %d", e.Op, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthenticationError rejects a notification whose terminal key or token
// does not match. Reason is the literal response body.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string { return e.Reason }

const (
	ReasonBadTerminalKey = "Bad terminal key"
	ReasonBadToken       = "Bad token"
)

// ValidationError covers request or response bodies that cannot be decoded.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// HTTPStatus maps an error from this package to a response status.
func HTTPStatus(err error) int {
	var (
		authErr  *AuthenticationError
		valErr   *ValidationError
		transErr *TransportError
	)

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &authErr), errors.As(err, &valErr):
		return http.StatusBadRequest
	case errors.Is(err, ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrStaleState):
		return http.StatusConflict
	case errors.As(err, &transErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
