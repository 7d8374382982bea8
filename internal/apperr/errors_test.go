package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/apperr"
)

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", apperr.Validation(apperr.CodeInvalidLimit, "bad limit"), http.StatusBadRequest},
		{"not found", apperr.NotFound(apperr.CodePostNotFound, "post not found"), http.StatusNotFound},
		{"access denied", apperr.AccessDenied(apperr.CodeNotCommentOwner, "nope"), http.StatusForbidden},
		{"unauthorized", apperr.AccessDenied(apperr.CodeUnauthorized, "login"), http.StatusUnauthorized},
		{"conflict", apperr.Conflict(apperr.CodeVoteConflict, "lost race", nil), http.StatusConflict},
		{"dependency", apperr.Unavailable(apperr.CodeStoreDown, "db down", nil), http.StatusServiceUnavailable},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, apperr.HTTPStatus(tt.err))
		})
	}
}

func TestWrappedErrorKeepsKind(t *testing.T) {
	t.Parallel()

	origin := errors.New("connection refused")
	err := fmt.Errorf("load post: %w", apperr.Unavailable(apperr.CodeStoreDown, "store unavailable", origin))

	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindDependencyUnavailable, appErr.Kind)
	assert.True(t, apperr.IsCode(err, apperr.CodeStoreDown))
	assert.True(t, apperr.Retryable(err))
	assert.ErrorIs(t, err, origin)
	assert.Equal(t, "store unavailable: connection refused", appErr.Error())
}

func TestValidationIsNotRetryable(t *testing.T) {
	t.Parallel()

	err := apperr.Validation(apperr.CodeInvalidVoteType, "invalid vote type")
	assert.False(t, apperr.Retryable(err))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.False(t, apperr.IsKind(errors.New("x"), apperr.KindValidation))
}
