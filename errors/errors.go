package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// DriverError is a wrapper around system errno codes, with a customizable error
// message.
type DriverError interface {
	error
	Errno() Errno
	Unwrap() error
	// WithMessage returns a copy of the error with `message` appended to the
	// existing one. The errno code is unchanged.
	WithMessage(message string) DriverError
	// WithMessagef is WithMessage with a format string.
	WithMessagef(format string, args ...any) DriverError
	// Wrap returns a copy of the error that has `err` as its cause.
	Wrap(err error) DriverError
}

type driverError struct {
	errno         Errno
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a
// string describing the error.
func (e driverError) Error() string {
	if e.message != "" {
		return e.message
	}
	return StrError(e.errno)
}

func (e driverError) Errno() Errno {
	return e.errno
}

func (e driverError) Unwrap() error {
	return e.originalError
}

// Is makes [errors.Is] match on the errno code alone, so a decorated error
// still matches the bare sentinel it was derived from.
func (e driverError) Is(target error) bool {
	switch t := target.(type) {
	case DriverError:
		return t.Errno() == e.errno
	case Errno:
		return t == e.errno
	}
	return false
}

func (e driverError) WithMessage(message string) DriverError {
	return driverError{
		errno:         e.errno,
		message:       fmt.Sprintf("%s: %s", e.Error(), message),
		originalError: e.originalError,
	}
}

func (e driverError) WithMessagef(format string, args ...any) DriverError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

func (e driverError) Wrap(err error) DriverError {
	if err == nil {
		return e
	}
	var cause error = err
	if e.originalError != nil {
		cause = multierror.Append(e.originalError, err)
	}
	return driverError{
		errno:         e.errno,
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: cause,
	}
}

// New creates a new [DriverError] with a default message derived from the
// system's error code.
func New(errnoCode Errno) DriverError {
	return driverError{
		errno:   errnoCode,
		message: StrError(errnoCode),
	}
}

// NewFromError creates a [DriverError] that wraps another error.
func NewFromError(errnoCode Errno, originalError error) DriverError {
	return driverError{
		errno:         errnoCode,
		message:       fmt.Sprintf("%s: %s", StrError(errnoCode), originalError.Error()),
		originalError: originalError,
	}
}

// NewWithMessage creates a new DriverError from a system error code with a
// custom message.
func NewWithMessage(errnoCode Errno, message string) DriverError {
	return driverError{
		errno:   errnoCode,
		message: fmt.Sprintf("%s: %s", StrError(errnoCode), message),
	}
}

// ErrnoOf extracts the errno code from an error chain. Errors that didn't come
// from this package are reported as EIO, since that's the only thing the
// syscall layer can tell a process about a failure it doesn't understand.
func ErrnoOf(err error) Errno {
	if err == nil {
		return EOK
	}
	var driverErr DriverError
	if stderrors.As(err, &driverErr) {
		return driverErr.Errno()
	}
	var code Errno
	if stderrors.As(err, &code) {
		return code
	}
	return EIO
}

// Append aggregates errors from best-effort operations like recursive deletion
// where one failure must not stop the rest. nil arguments are skipped, and the
// result is nil if nothing failed. A single failure is returned as is.
func Append(err error, errs ...error) error {
	failures := make([]error, 0, len(errs)+1)
	if err != nil {
		failures = append(failures, err)
	}
	for _, e := range errs {
		if e != nil {
			failures = append(failures, e)
		}
	}

	switch len(failures) {
	case 0:
		return nil
	case 1:
		return failures[0]
	}
	return multierror.Append(failures[0], failures[1:]...)
}

// Is and As are re-exported so callers don't need to import both this package
// and the standard library's.
var Is = stderrors.Is
var As = stderrors.As
