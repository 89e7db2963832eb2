package store

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func Test_MapError(t *testing.T) {
	tcases := []struct {
		name         string
		err          error
		expectedCode Code
	}{
		{
			name:         "no rows",
			err:          sql.ErrNoRows,
			expectedCode: CodeNotFound,
		},
		{
			name:         "wrapped no rows",
			err:          fmt.Errorf("query room: %w", sql.ErrNoRows),
			expectedCode: CodeNotFound,
		},
		{
			name:         "insufficient privilege",
			err:          &pq.Error{Code: "42501"},
			expectedCode: CodePermissionDenied,
		},
		{
			name:         "undefined table",
			err:          &pq.Error{Code: "42P01"},
			expectedCode: CodeNotFound,
		},
		{
			name:         "connection failure",
			err:          &pq.Error{Code: "08006"},
			expectedCode: CodeUnavailable,
		},
		{
			name:         "resource exhaustion",
			err:          &pq.Error{Code: "53300"},
			expectedCode: CodeUnavailable,
		},
		{
			name:         "operator shutdown",
			err:          &pq.Error{Code: "57P01"},
			expectedCode: CodeUnavailable,
		},
		{
			name:         "unrecognized sqlstate",
			err:          &pq.Error{Code: "23505"},
			expectedCode: CodeUnknown,
		},
		{
			name:         "plain error",
			err:          errors.New("boom"),
			expectedCode: CodeUnknown,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := MapError(tc.err)
			assert.Equal(t, tc.expectedCode, CodeOf(mapped))
			assert.ErrorIs(t, mapped, tc.err, "original error stays reachable through Unwrap")
		})
	}
}

func Test_MapError_nil(t *testing.T) {
	assert.NoError(t, MapError(nil))
}

func Test_MapError_passesThroughTranslatedErrors(t *testing.T) {
	orig := NewUnavailableError(errors.New("listener lost"))

	mapped := MapError(orig)
	assert.Same(t, orig, mapped, "already translated errors are not rewrapped")
}

func Test_CodeOf_untranslated(t *testing.T) {
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("boom")))
}

func Test_Error_messageIsStable(t *testing.T) {
	err := NewPermissionDeniedError(errors.New("sqlstate 42501"))

	assert.Equal(t, "you do not have permission to perform this operation", err.Message)
	assert.Contains(t, err.Error(), "sqlstate 42501")
}
