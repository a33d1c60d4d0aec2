package wordpress

import (
	"errors"
	"fmt"
)

// ErrInvalidSiteURL is returned when a site address cannot be normalized
// into an absolute URL.
var ErrInvalidSiteURL = errors.New("invalid site address")

// ErrorKind classifies a failed WordPress call.
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindMalformed ErrorKind = "malformed"
	KindNotFound  ErrorKind = "not_found"
	KindNetwork   ErrorKind = "network"
	KindUnknown   ErrorKind = "unknown"
)

// Error is a failed WordPress REST call.
type Error struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("wordpress %s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("wordpress %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("wordpress %s: unexpected status %d", e.Op, e.StatusCode)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a wrapped *Error, or KindUnknown.
func KindOf(err error) ErrorKind {
	var wpErr *Error
	if errors.As(err, &wpErr) {
		return wpErr.Kind
	}
	return KindUnknown
}

// kindForStatus maps an HTTP status to an ErrorKind.
func kindForStatus(code int) ErrorKind {
	switch code {
	case 401, 403:
		return KindAuth
	case 400:
		return KindMalformed
	case 404:
		return KindNotFound
	}
	return KindUnknown
}
