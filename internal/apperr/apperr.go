// Package apperr defines the error kinds shared by services and mapped to
// HTTP status codes at the edge.
package apperr

import (
	"errors"
	"net/http"
)

// Error kinds. Services wrap one of these so handlers can map the failure
// without knowing which service produced it.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrPayment      = errors.New("payment failed")
	ErrUpstream     = errors.New("upstream failure")
)

// Error carries a caller-facing message next to its kind and cause.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	out := []error{e.Kind}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func newErr(kind error, msg string, cause error) error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Validation reports malformed or missing input.
func Validation(msg string) error { return newErr(ErrValidation, msg, nil) }

// Unauthorized reports missing or bad credentials.
func Unauthorized(msg string) error { return newErr(ErrUnauthorized, msg, nil) }

// Forbidden reports an ownership or role mismatch.
func Forbidden(msg string) error { return newErr(ErrForbidden, msg, nil) }

// NotFound reports a missing entity.
func NotFound(msg string) error { return newErr(ErrNotFound, msg, nil) }

// Conflict reports a uniqueness or concurrent-update clash.
func Conflict(msg string) error { return newErr(ErrConflict, msg, nil) }

// Payment reports a payment that did not succeed.
func Payment(msg string, cause error) error { return newErr(ErrPayment, msg, cause) }

// Upstream reports a failing dependency (storage, provider).
func Upstream(msg string, cause error) error { return newErr(ErrUpstream, msg, cause) }

// Status maps err to an HTTP status code.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrPayment):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the caller-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal server error"
}
