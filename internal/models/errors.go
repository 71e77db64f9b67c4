package models

import "github.com/pkg/errors"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrAlreadyFinished = errors.New("attempt already finished")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrSRDisabled      = errors.New("spaced repetition disabled for deck")
)

// ErrorKind is the machine-readable error class returned to API clients.
type ErrorKind string

const (
	KindInvalidInput    ErrorKind = "invalid_input"
	KindAlreadyFinished ErrorKind = "already_finished"
	KindNotFound        ErrorKind = "not_found"
	KindForbidden       ErrorKind = "forbidden"
	KindSRDisabled      ErrorKind = "sr_disabled"
	KindUnauthorized    ErrorKind = "unauthorized"
	KindInternal        ErrorKind = "internal"
)

type ErrorResponse struct {
	Error string    `json:"error"`
	Kind  ErrorKind `json:"kind,omitempty"`
}

// KindOf classifies err by the sentinel it wraps.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrAlreadyFinished):
		return KindAlreadyFinished
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrSRDisabled):
		return KindSRDisabled
	default:
		return KindInternal
	}
}
