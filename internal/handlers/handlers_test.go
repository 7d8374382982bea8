package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/apperr"
)

func TestRespondError(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		err    error
		status int
		body   []string
	}{
		{"validation", apperr.Validation(apperr.CodeInvalidLimit, "bad limit"), http.StatusBadRequest, []string{`"code":"INVALID_LIMIT"`}},
		{"access", apperr.AccessDenied(apperr.CodeNotCommentOwner, "not yours"), http.StatusForbidden, []string{`"NOT_COMMENT_OWNER"`}},
		{"conflict", apperr.Conflict(apperr.CodeVoteConflict, "busy", nil), http.StatusConflict, []string{`"retryable":true`}},
		{"unavailable", apperr.Unavailable(apperr.CodeStoreDown, "down", errors.New("dial")), http.StatusServiceUnavailable, []string{`"STORE_UNAVAILABLE"`}},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, []string{`"INTERNAL"`}},
	}

	b := base{logger: zap.NewNop()}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			b.respondError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			for _, want := range tt.body {
				assert.Contains(t, w.Body.String(), want)
			}
			assert.NotContains(t, w.Body.String(), "dial")
		})
	}
}

func TestOptionalUUID(t *testing.T) {
	t.Parallel()

	id, err := optionalUUID("")
	assert.NoError(t, err)
	assert.Nil(t, id)

	_, err = optionalUUID("nope")
	assert.Error(t, err)
}
