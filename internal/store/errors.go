package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type Code string

const (
	CodePermissionDenied Code = "permission-denied"
	CodeUnavailable      Code = "unavailable"
	CodeNotFound         Code = "not-found"
	CodeUnknown          Code = "unknown"
)

// Error is a store failure translated into the domain taxonomy. The
// message is stable and safe to show to a user.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewPermissionDeniedError(err error) *Error {
	return &Error{
		Code:    CodePermissionDenied,
		Message: "you do not have permission to perform this operation",
		Err:     err,
	}
}

func NewUnavailableError(err error) *Error {
	return &Error{
		Code:    CodeUnavailable,
		Message: "the service is temporarily unavailable, please try again",
		Err:     err,
	}
}

func NewNotFoundError(err error) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: "the requested resource was not found",
		Err:     err,
	}
}

func NewUnknownError(err error) *Error {
	return &Error{
		Code:    CodeUnknown,
		Message: "an unexpected error occurred",
		Err:     err,
	}
}

// CodeOf extracts the taxonomy code from err, or CodeUnknown if err
// was never translated.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}

	return CodeUnknown
}

// MapError translates a driver-level error into the taxonomy. Errors
// already translated pass through unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var se *Error
	if errors.As(err, &se) {
		return se
	}

	if errors.Is(err, sql.ErrNoRows) {
		return NewNotFoundError(err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "42501":
			// insufficient_privilege
			return NewPermissionDeniedError(err)
		case pqErr.Code == "42P01":
			// undefined_table, the collection itself is missing
			return NewNotFoundError(err)
		case pqErr.Code.Class() == "08" || pqErr.Code.Class() == "53" || pqErr.Code.Class() == "57":
			// connection failures, resource exhaustion, operator shutdown
			return NewUnavailableError(err)
		}
	}

	return NewUnknownError(err)
}
