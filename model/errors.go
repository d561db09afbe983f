package model

import (
	"github.com/pkg/errors"
)

// Error taxonomy shared by every component. Call sites wrap these with
// errors.Wrap to add context, callers classify with errors.Is.
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")
	ErrStreamError     = errors.New("stream error")
)

type ErrorKind string

const (
	ErrorKindUnauthorized    ErrorKind = "UNAUTHORIZED"
	ErrorKindForbidden       ErrorKind = "FORBIDDEN"
	ErrorKindNotFound        ErrorKind = "NOT_FOUND"
	ErrorKindInvalidArgument ErrorKind = "INVALID_ARGUMENT"
	ErrorKindConflict        ErrorKind = "CONFLICT"
	ErrorKindStreamError     ErrorKind = "STREAM_ERROR"
	ErrorKindInternal        ErrorKind = "INTERNAL"
)

// KindOf classifies err into the taxonomy, anything unknown is INTERNAL.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return ErrorKindUnauthorized
	case errors.Is(err, ErrForbidden):
		return ErrorKindForbidden
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrInvalidArgument):
		return ErrorKindInvalidArgument
	case errors.Is(err, ErrConflict):
		return ErrorKindConflict
	case errors.Is(err, ErrStreamError):
		return ErrorKindStreamError
	}
	return ErrorKindInternal
}
