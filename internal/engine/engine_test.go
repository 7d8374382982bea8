package engine_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/apperr"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/comments"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/engine"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/feed"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/feedcache"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/ledger"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/memstore"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/models"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/ranking"
)

var _ engine.Backend = (*memstore.Store)(nil)

type fixture struct {
	store     *memstore.Store
	engine    *engine.Engine
	viewer    uuid.UUID
	author    uuid.UUID
	community uuid.UUID
	post      uuid.UUID
}

func setup(t *testing.T) *fixture {
	t.Helper()
	return setupWithCache(t, feedcache.NewLRU(64, time.Minute, zap.NewNop()))
}

func setupWithCache(t *testing.T, cache feedcache.Store) *fixture {
	t.Helper()

	f := &fixture{
		store:     memstore.New(),
		viewer:    uuid.New(),
		author:    uuid.New(),
		community: uuid.New(),
		post:      uuid.New(),
	}
	f.store.AddUser(models.User{ID: f.viewer, Username: "reader"})
	f.store.AddUser(models.User{ID: f.author, Username: "writer"})
	f.store.AddCommunity(models.Community{ID: f.community, Name: "golang"})
	f.store.AddPost(models.Post{
		ID:          f.post,
		CommunityID: f.community,
		AuthorID:    f.author,
		Title:       "hello",
		Upvotes:     10,
		Downvotes:   2,
		Score:       8,
		CreatedAt:   time.Now().UTC().Add(-time.Hour),
	})

	cfg := engine.DefaultConfig
	cfg.CursorSecret = "engine-test-secret"
	f.engine = engine.New(f.store, cache, cfg, zap.NewNop())

	require.NoError(t, f.engine.Subscribe(t.Context(), f.viewer, f.community))
	return f
}

func (f *fixture) feed(t *testing.T) *feed.Page {
	t.Helper()

	page, err := f.engine.GetFeed(t.Context(), f.viewer, feed.Query{Sort: ranking.SortTop, Limit: 10})
	require.NoError(t, err)
	return page
}

func TestVoteScenario(t *testing.T) {
	t.Parallel()

	f := setup(t)
	voter := uuid.New()

	res, err := f.engine.Vote(t.Context(), voter, ledger.PostTarget(f.post), models.VoteUp)
	require.NoError(t, err)
	assert.Equal(t, models.Counters{Upvotes: 11, Downvotes: 2, Score: 9}, res.Counters)

	res, err = f.engine.Vote(t.Context(), voter, ledger.PostTarget(f.post), models.VoteNone)
	require.NoError(t, err)
	assert.Equal(t, models.Counters{Upvotes: 10, Downvotes: 2, Score: 8}, res.Counters)
}

func TestVoteRefreshesMaterializedFeed(t *testing.T) {
	t.Parallel()

	f := setup(t)

	page := f.feed(t)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(8), page.Items[0].PostScore)
	assert.True(t, f.feed(t).Cached)

	_, err := f.engine.Vote(t.Context(), f.viewer, ledger.PostTarget(f.post), models.VoteUp)
	require.NoError(t, err)

	page = f.feed(t)
	assert.False(t, page.Cached)
	assert.Equal(t, int64(9), page.Items[0].PostScore)
	assert.Equal(t, models.VoteUp, page.Items[0].MyVote)
}

func TestVoteRefreshesRedisFeed(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	f := setupWithCache(t, feedcache.NewRedis(client, time.Minute, zap.NewNop()))
	require.NoError(t, f.engine.Follow(t.Context(), f.viewer, f.author))

	page := f.feed(t)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(8), page.Items[0].PostScore)
	assert.True(t, f.feed(t).Cached)

	_, err = f.engine.Vote(t.Context(), f.viewer, ledger.PostTarget(f.post), models.VoteUp)
	require.NoError(t, err)

	page = f.feed(t)
	assert.False(t, page.Cached)
	assert.Equal(t, int64(9), page.Items[0].PostScore)

	_, err = f.engine.CreateComment(t.Context(), comments.CreateInput{PostID: f.post, AuthorID: f.viewer, Body: "nice"})
	require.NoError(t, err)

	page = f.feed(t)
	assert.False(t, page.Cached)
	assert.Equal(t, int64(1), page.Items[0].CommentCount)
}

func TestCommentLifecycleUpdatesFeed(t *testing.T) {
	t.Parallel()

	f := setup(t)
	f.feed(t)

	parent, err := f.engine.CreateComment(t.Context(), comments.CreateInput{
		PostID:   f.post,
		AuthorID: f.viewer,
		Body:     "first",
	})
	require.NoError(t, err)
	assert.Equal(t, "reader", parent.AuthorName)

	child, err := f.engine.CreateComment(t.Context(), comments.CreateInput{
		PostID:          f.post,
		ParentCommentID: &parent.ID,
		AuthorID:        f.author,
		Body:            "second",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.feed(t).Items[0].CommentCount)

	_, err = f.engine.DeleteComment(t.Context(), parent.ID, f.viewer)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.feed(t).Items[0].CommentCount)

	view, err := f.engine.GetComment(t.Context(), child.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, view.ParentCommentID)

	tombstone, err := f.engine.GetComment(t.Context(), *view.ParentCommentID, nil)
	require.NoError(t, err)
	assert.True(t, tombstone.IsDeleted)

	tree, err := f.engine.CommentTree(t.Context(), f.post, "", nil)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Len(t, tree[0].Replies, 1)
}

func TestCommentReadsValidateSort(t *testing.T) {
	t.Parallel()

	f := setup(t)

	_, err := f.engine.ListComments(t.Context(), f.post, "trending", 10, nil)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidSort))

	_, err = f.engine.ListComments(t.Context(), f.post, "old", -1, nil)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidLimit))

	views, err := f.engine.ListComments(t.Context(), f.post, "old", 0, nil)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestMembershipChangesInvalidateFeed(t *testing.T) {
	t.Parallel()

	f := setup(t)
	assert.Len(t, f.feed(t).Items, 1)

	require.NoError(t, f.engine.Unsubscribe(t.Context(), f.viewer, f.community))
	assert.Empty(t, f.feed(t).Items)

	require.NoError(t, f.engine.Follow(t.Context(), f.viewer, f.author))
	page := f.feed(t)
	require.Len(t, page.Items, 1)
	assert.True(t, page.Items[0].Sources.Has(models.SourceAuthor))
	assert.False(t, page.Items[0].Sources.Has(models.SourceCommunity))

	require.NoError(t, f.engine.Unfollow(t.Context(), f.viewer, f.author))
	assert.Empty(t, f.feed(t).Items)
}

func TestFollowValidation(t *testing.T) {
	t.Parallel()

	f := setup(t)

	err := f.engine.Follow(t.Context(), f.viewer, f.viewer)
	assert.True(t, apperr.IsCode(err, apperr.CodeSelfFollow))

	err = f.engine.Follow(t.Context(), f.viewer, uuid.New())
	assert.True(t, apperr.IsCode(err, apperr.CodeUserNotFound))

	err = f.engine.Subscribe(t.Context(), f.viewer, uuid.New())
	assert.True(t, apperr.IsCode(err, apperr.CodeCommunityNotFound))
}

func TestStatsAndRefresh(t *testing.T) {
	t.Parallel()

	f := setup(t)

	stats, err := f.engine.FeedStats(t.Context(), f.viewer)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalSubscriptions)
	assert.Equal(t, 1, stats.FeedItemsCount)
	assert.InDelta(t, 8.0, stats.AverageScore, 1e-9)

	page, err := f.engine.RefreshFeed(t.Context(), f.viewer)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.False(t, page.Cached)
}
