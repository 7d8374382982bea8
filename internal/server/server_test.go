package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/engine"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/feedcache"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/memstore"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/middleware"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/models"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/server"
)

const jwtSecret = "server-test-secret"

type fixture struct {
	handler   http.Handler
	store     *memstore.Store
	reader    uuid.UUID
	writer    uuid.UUID
	community uuid.UUID
	posts     []uuid.UUID
	token     string
}

func setup(t *testing.T, health server.HealthChecker) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		store:     memstore.New(),
		reader:    uuid.New(),
		writer:    uuid.New(),
		community: uuid.New(),
	}
	f.store.AddUser(models.User{ID: f.reader, Username: "reader"})
	f.store.AddUser(models.User{ID: f.writer, Username: "writer"})
	f.store.AddCommunity(models.Community{ID: f.community, Name: "golang"})

	now := time.Now().UTC()
	for i := range 3 {
		id := uuid.New()
		f.store.AddPost(models.Post{
			ID:          id,
			CommunityID: f.community,
			AuthorID:    f.writer,
			Title:       "post",
			CreatedAt:   now.Add(-time.Duration(i+1) * time.Minute),
		})
		f.posts = append(f.posts, id)
	}

	cfg := engine.DefaultConfig
	cfg.CursorSecret = "cursor-secret"
	e := engine.New(f.store, feedcache.NewLRU(64, time.Minute, zap.NewNop()), cfg, zap.NewNop())

	f.handler = server.NewServer(e, server.Options{
		Port:      "0",
		JWTSecret: jwtSecret,
		Debug:     true,
		Health:    health,
	}, zap.NewNop()).Handler

	token, err := middleware.IssueToken(jwtSecret, f.reader, "reader", time.Hour)
	require.NoError(t, err)
	f.token = token
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return f.doAs(t, f.token, method, path, body)
}

func (f *fixture) doAs(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type feedBody struct {
	Items []struct {
		PostID uuid.UUID `json:"post_id"`
		MyVote string    `json:"my_vote"`
	} `json:"items"`
	NextCursor *string `json:"next_cursor"`
	HasMore    bool    `json:"has_more"`
}

type fakeHealth map[string]string

func (h fakeHealth) Health(context.Context) map[string]string { return h }

func TestHealth(t *testing.T) {
	t.Parallel()

	f := setup(t, nil)
	w := f.doAs(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	f = setup(t, fakeHealth{"status": "down", "error": "db down"})
	w = f.doAs(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	t.Parallel()

	f := setup(t, nil)
	w := f.doAs(t, "", http.MethodGet, "/api/feed", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[errorBody](t, w).Code)
}

func TestVoteEndpoint(t *testing.T) {
	t.Parallel()

	f := setup(t, nil)
	post := f.posts[0]

	w := f.do(t, http.MethodPost, "/api/votes", gin.H{
		"target_type": "post",
		"target_id":   post,
		"direction":   "up",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	result := decode[struct {
		Changed bool `json:"changed"`
		Delta   struct {
			Up int64 `json:"upvote_change"`
		} `json:"delta"`
	}](t, w)
	assert.True(t, result.Changed)
	assert.Equal(t, int64(1), result.Delta.Up)

	w = f.do(t, http.MethodGet, "/api/posts/"+post.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[struct {
		Upvotes int64  `json:"upvotes"`
		MyVote  string `json:"my_vote"`
	}](t, w)
	assert.Equal(t, int64(1), view.Upvotes)
	assert.Equal(t, "up", view.MyVote)

	w = f.do(t, http.MethodPost, "/api/posts/"+post.String()+"/vote", gin.H{"direction": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_VOTE_TYPE", decode[errorBody](t, w).Code)

	w = f.do(t, http.MethodPost, "/api/votes", gin.H{
		"target_type": "user",
		"target_id":   post,
		"direction":   "up",
	})
	assert.Equal(t, "INVALID_TARGET_TYPE", decode[errorBody](t, w).Code)

	w = f.do(t, http.MethodPost, "/api/posts/"+uuid.NewString()+"/vote", gin.H{"direction": "up"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/posts/not-a-uuid/vote", gin.H{"direction": "up"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommentEndpoints(t *testing.T) {
	t.Parallel()

	f := setup(t, nil)
	post := f.posts[0]

	w := f.do(t, http.MethodPost, "/api/comments", gin.H{"post_id": post, "body": "**first**"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	parent := decode[models.Comment](t, w)
	assert.Equal(t, "reader", parent.AuthorName)

	w = f.do(t, http.MethodPost, "/api/posts/"+post.String()+"/comments", gin.H{
		"parent_comment_id": parent.ID,
		"body":              "reply",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/comments", gin.H{"post_id": post, "body": "   "})
	assert.Equal(t, "EMPTY_BODY", decode[errorBody](t, w).Code)

	w = f.doAs(t, "", http.MethodGet, "/api/comments/"+parent.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[struct {
		BodyHTML string `json:"body_html"`
	}](t, w).BodyHTML, "<strong>first</strong>")

	w = f.do(t, http.MethodPut, "/api/comments/"+parent.ID.String(), gin.H{"body": "edited"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.Comment](t, w).IsEdited)

	other, err := middleware.IssueToken(jwtSecret, f.writer, "writer", time.Hour)
	require.NoError(t, err)
	w = f.doAs(t, other, http.MethodDelete, "/api/comments/"+parent.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodDelete, "/api/comments/"+parent.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.doAs(t, "", http.MethodGet, "/api/posts/"+post.String()+"/comments?sort=old", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Count int `json:"count"`
	}](t, w)
	assert.Equal(t, 2, list.Count)

	w = f.doAs(t, "", http.MethodGet, "/api/posts/"+post.String()+"/comments/tree", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tree := decode[struct {
		Comments []struct {
			IsDeleted bool             `json:"is_deleted"`
			Replies   []map[string]any `json:"replies"`
		} `json:"comments"`
	}](t, w)
	require.Len(t, tree.Comments, 1)
	assert.True(t, tree.Comments[0].IsDeleted)
	assert.Len(t, tree.Comments[0].Replies, 1)

	w = f.doAs(t, "", http.MethodGet, "/api/posts/"+post.String()+"/comments?sort=random", nil)
	assert.Equal(t, "INVALID_SORT", decode[errorBody](t, w).Code)
}

func TestFeedEndpoints(t *testing.T) {
	t.Parallel()

	f := setup(t, nil)

	w := f.do(t, http.MethodGet, "/api/feed?sort=new&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[feedBody](t, w)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)

	w = f.do(t, http.MethodPost, "/api/communities/"+f.community.String()+"/subscribe", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/feed?sort=new&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[feedBody](t, w)
	require.Len(t, page.Items, 2)
	assert.Equal(t, f.posts[0], page.Items[0].PostID)
	assert.Equal(t, f.posts[1], page.Items[1].PostID)
	require.True(t, page.HasMore)
	require.NotNil(t, page.NextCursor)

	w = f.do(t, http.MethodGet, "/api/feed?sort=new&limit=2&cursor="+*page.NextCursor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[feedBody](t, w)
	require.Len(t, page.Items, 1)
	assert.Equal(t, f.posts[2], page.Items[0].PostID)
	assert.False(t, page.HasMore)
	assert.Nil(t, page.NextCursor)

	w = f.do(t, http.MethodGet, "/api/feed?limit=0", nil)
	assert.Equal(t, "INVALID_LIMIT", decode[errorBody](t, w).Code)

	w = f.do(t, http.MethodGet, "/api/feed?sort=best", nil)
	assert.Equal(t, "INVALID_SORT", decode[errorBody](t, w).Code)

	w = f.do(t, http.MethodGet, "/api/feed?cursor=garbage", nil)
	assert.Equal(t, "INVALID_CURSOR", decode[errorBody](t, w).Code)

	w = f.do(t, http.MethodGet, "/api/feed/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[struct {
		TotalSubscriptions int `json:"total_subscriptions"`
		FeedItemsCount     int `json:"feed_items_count"`
	}](t, w)
	assert.Equal(t, 1, stats.TotalSubscriptions)
	assert.Equal(t, 3, stats.FeedItemsCount)

	w = f.do(t, http.MethodPost, "/api/feed/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, decode[struct {
		ItemsCount int `json:"items_count"`
	}](t, w).ItemsCount)
}

func TestMembershipEndpoints(t *testing.T) {
	t.Parallel()

	f := setup(t, nil)

	w := f.do(t, http.MethodPost, "/api/users/"+f.reader.String()+"/follow", nil)
	assert.Equal(t, "SELF_FOLLOW", decode[errorBody](t, w).Code)

	w = f.do(t, http.MethodPost, "/api/users/"+f.writer.String()+"/follow", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/feed?sort=new", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[feedBody](t, w).Items, 3)

	w = f.do(t, http.MethodDelete, "/api/users/"+f.writer.String()+"/follow", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/feed?sort=new", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[feedBody](t, w).Items)

	w = f.do(t, http.MethodPost, "/api/communities/"+uuid.NewString()+"/subscribe", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/users/"+uuid.NewString()+"/follow", nil)
	assert.Equal(t, "USER_NOT_FOUND", decode[errorBody](t, w).Code)
}
