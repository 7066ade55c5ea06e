// CLAUDE:SUMMARY Sentinel errors and InputError: terminal request failures rendered as plain text.
package fulltext

import (
	"errors"
	"net/http"
)

var (
	ErrDisabled   = errors.New("fulltext: service disabled")
	ErrNoURL      = errors.New("fulltext: no URL")
	ErrInvalidURL = errors.New("fulltext: invalid URL")
	ErrBlockedURL = errors.New("fulltext: URL blocked")
	ErrNotAllowed = errors.New("fulltext: URL not allowed")
	ErrBadPattern = errors.New("fulltext: invalid extraction pattern")
	ErrNoItems    = errors.New("fulltext: no feed items")
	ErrRetrieve   = errors.New("fulltext: retrieval failed")
	ErrExtract    = errors.New("fulltext: extraction failed")
)

// InputError stops a request before any feed is produced. Message is the
// plain-text body sent to the caller.
type InputError struct {
	Status  int
	Message string
	Err     error
}

func (e *InputError) Error() string { return e.Message }

func (e *InputError) Unwrap() error { return e.Err }

func inputError(err error, msg string) *InputError {
	return &InputError{Status: statusFor(err), Message: msg, Err: err}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrBlockedURL), errors.Is(err, ErrNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, ErrNoItems):
		return http.StatusNotFound
	case errors.Is(err, ErrRetrieve):
		return http.StatusBadGateway
	case errors.Is(err, ErrExtract):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}
