package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-pokerplan/internal/session"
	"github.com/npezzotti/go-pokerplan/internal/store"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

func NewMethodNotAllowedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusMethodNotAllowed,
		Message:    lower(http.StatusText(http.StatusMethodNotAllowed)),
	}
}

// fromError translates a core failure into the HTTP surface, keeping
// the taxonomy's stable messages.
func fromError(err error) *ApiError {
	var ve *session.ValidationError
	if errors.As(err, &ve) {
		return &ApiError{
			StatusCode: http.StatusBadRequest,
			Message:    ve.Message,
			Err:        err,
		}
	}

	var se *store.Error
	if errors.As(err, &se) {
		var status int
		switch se.Code {
		case store.CodePermissionDenied:
			status = http.StatusForbidden
		case store.CodeUnavailable:
			status = http.StatusServiceUnavailable
		case store.CodeNotFound:
			status = http.StatusNotFound
		default:
			status = http.StatusInternalServerError
		}

		return &ApiError{
			StatusCode: status,
			Message:    se.Message,
			Err:        err,
		}
	}

	return NewInternalServerError(err)
}
