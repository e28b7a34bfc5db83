package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("create project: %w", Validation("Title is required"))

	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrAccessDenied)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "Title is required", MessageOf(err))
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	t.Parallel()

	err := errors.New("pq: relation does not exist")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "Internal server error", MessageOf(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(KindOf(err)))
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindAuthentication, http.StatusUnauthorized},
		{KindAccessDenied, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindEmptyProject, http.StatusNotFound},
		{KindStorageConnection, http.StatusServiceUnavailable},
		{KindKeyGeneration, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.kind), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, HTTPStatus(tt.kind))
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: connection refused")
	err := StorageConnection(cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrStorageConnection)
}
