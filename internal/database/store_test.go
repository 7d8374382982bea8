package database_test

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/apperr"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/comments"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/database"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/engine"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/feed"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/ledger"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/models"
)

var _ engine.Backend = (*database.Store)(nil)

var service database.Service

func mustStartPostgresContainer(ctx context.Context) (func(), error) {
	dbContainer, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("votefeed"),
		postgres.WithUsername("votefeed"),
		postgres.WithPassword("votefeed"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	dsn, err := dbContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, err
	}

	service, err = database.New(ctx, database.Options{DSN: dsn, Name: "votefeed"}, zap.NewNop())
	if err != nil {
		return nil, err
	}

	return func() {
		_ = service.Close()
		_ = dbContainer.Terminate(context.Background())
	}, nil
}

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	teardown, err := mustStartPostgresContainer(context.Background())
	if err != nil {
		log.Printf("postgres container unavailable, skipping integration tests: %v", err)
		os.Exit(m.Run())
	}

	code := m.Run()
	teardown()
	os.Exit(code)
}

func newStore(t *testing.T) *database.Store {
	t.Helper()
	if service == nil {
		t.Skip("postgres not available")
	}
	return database.NewStore(service.GetDB(), 3, zap.NewNop())
}

type seed struct {
	user      models.User
	community models.Community
	post      models.Post
}

func seedPost(t *testing.T, store *database.Store) seed {
	t.Helper()

	db := service.GetDB().WithContext(t.Context())
	s := seed{
		user:      models.User{ID: uuid.New(), Username: "user-" + uuid.NewString()[:8]},
		community: models.Community{ID: uuid.New(), Name: "community-" + uuid.NewString()[:8]},
	}
	require.NoError(t, db.Create(&s.user).Error)
	require.NoError(t, db.Create(&s.community).Error)

	s.post = models.Post{
		ID:          uuid.New(),
		CommunityID: s.community.ID,
		AuthorID:    s.user.ID,
		Title:       "hello",
		Tags:        []string{"go"},
		Upvotes:     10,
		Downvotes:   2,
		Score:       8,
	}
	require.NoError(t, store.CreatePost(t.Context(), &s.post))
	return s
}

func TestHealth(t *testing.T) {
	newStore(t)

	stats := service.Health(t.Context())
	assert.Equal(t, "up", stats["status"])
}

func TestVoteLedgerOnPostgres(t *testing.T) {
	store := newStore(t)
	s := seedPost(t, store)
	l := ledger.New(store, 3, zap.NewNop())
	voter := uuid.New()

	res, err := l.ApplyVote(t.Context(), voter, ledger.PostTarget(s.post.ID), models.VoteUp)
	require.NoError(t, err)
	assert.Equal(t, models.Counters{Upvotes: 11, Downvotes: 2, Score: 9}, res.Counters)

	votes, err := store.VotesFor(t.Context(), voter, models.TargetPost, []uuid.UUID{s.post.ID})
	require.NoError(t, err)
	assert.Equal(t, models.VoteUp, votes[s.post.ID])

	res, err = l.ApplyVote(t.Context(), voter, ledger.PostTarget(s.post.ID), models.VoteNone)
	require.NoError(t, err)
	assert.Equal(t, models.Counters{Upvotes: 10, Downvotes: 2, Score: 8}, res.Counters)

	votes, err = store.VotesFor(t.Context(), voter, models.TargetPost, []uuid.UUID{s.post.ID})
	require.NoError(t, err)
	assert.Empty(t, votes)
}

func TestCommitVoteRejectsStaleVersion(t *testing.T) {
	store := newStore(t)
	s := seedPost(t, store)
	target := ledger.PostTarget(s.post.ID)

	state, err := store.LoadVoteState(t.Context(), uuid.New(), target)
	require.NoError(t, err)

	_, err = store.CommitVote(t.Context(), ledger.Commit{
		VoterID:         uuid.New(),
		Target:          target,
		ExpectedVersion: state.Version,
		Next:            models.VoteUp,
		Delta:           ledger.Delta{Up: 1},
	})
	require.NoError(t, err)

	_, err = store.CommitVote(t.Context(), ledger.Commit{
		VoterID:         uuid.New(),
		Target:          target,
		ExpectedVersion: state.Version,
		Next:            models.VoteDown,
		Delta:           ledger.Delta{Down: 1},
	})
	assert.ErrorIs(t, err, ledger.ErrVersionConflict)

	_, err = store.LoadVoteState(t.Context(), uuid.New(), ledger.PostTarget(uuid.New()))
	assert.True(t, apperr.IsCode(err, apperr.CodeTargetNotFound))
}

func TestCommentCountersOnPostgres(t *testing.T) {
	store := newStore(t)
	s := seedPost(t, store)

	parent := &models.Comment{ID: uuid.New(), PostID: s.post.ID, AuthorID: s.user.ID, Body: "parent"}
	require.NoError(t, store.InsertComment(t.Context(), parent))

	child := &models.Comment{ID: uuid.New(), PostID: s.post.ID, ParentCommentID: &parent.ID, AuthorID: s.user.ID, Body: "child", Depth: 1}
	require.NoError(t, store.InsertComment(t.Context(), child))

	got, err := store.GetComment(t.Context(), parent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ReplyCount)

	deleted, err := store.TombstoneComment(t.Context(), parent.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, models.DeletedBody, deleted.Body)

	_, err = store.TombstoneComment(t.Context(), parent.ID)
	assert.ErrorIs(t, err, comments.ErrAlreadyDeleted)

	orphan := &models.Comment{ID: uuid.New(), PostID: s.post.ID, ParentCommentID: &parent.ID, AuthorID: s.user.ID, Body: "late"}
	assert.ErrorIs(t, store.InsertComment(t.Context(), orphan), comments.ErrParentUnavailable)

	post, err := store.GetPost(t.Context(), s.post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), post.CommentCount)
	assert.Equal(t, []string{"go"}, post.Tags)

	counts, err := store.RecentCommentCounts(t.Context(), []uuid.UUID{s.post.ID, uuid.New()}, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, counts, 2)
	assert.Equal(t, int64(1), counts[s.post.ID])
}

func TestRecentPostsOnPostgres(t *testing.T) {
	store := newStore(t)
	s := seedPost(t, store)

	base := time.Now().UTC().Truncate(time.Microsecond)
	var ids []uuid.UUID
	for i := range 4 {
		p := models.Post{
			ID:          uuid.New(),
			CommunityID: s.community.ID,
			AuthorID:    s.user.ID,
			Title:       "older",
			CreatedAt:   base.Add(-time.Duration(i+1) * time.Hour),
		}
		require.NoError(t, store.CreatePost(t.Context(), &p))
		ids = append(ids, p.ID)
	}

	before := base.Add(-2 * time.Hour)
	posts, err := store.RecentPostsByCommunity(t.Context(), s.community.ID, feed.SourceQuery{Limit: 2, Before: &before})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, ids[1], posts[0].ID)
	assert.Equal(t, ids[2], posts[1].ID)

	posts, err = store.RecentPostsByAuthor(t.Context(), s.user.ID, feed.SourceQuery{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, posts, 5)
}

func TestMembershipOnPostgres(t *testing.T) {
	store := newStore(t)
	s := seedPost(t, store)
	reader := models.User{ID: uuid.New(), Username: "reader-" + uuid.NewString()[:8]}
	require.NoError(t, service.GetDB().Create(&reader).Error)

	require.NoError(t, store.Subscribe(t.Context(), reader.ID, s.community.ID))
	require.NoError(t, store.Subscribe(t.Context(), reader.ID, s.community.ID))
	require.NoError(t, store.Follow(t.Context(), reader.ID, s.user.ID))

	subs, err := store.Subscriptions(t.Context(), reader.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{s.community.ID}, subs)

	follows, err := store.Follows(t.Context(), reader.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{s.user.ID}, follows)

	role, err := store.Role(t.Context(), reader.ID, s.community.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, role)

	require.NoError(t, store.Unsubscribe(t.Context(), reader.ID, s.community.ID))
	require.NoError(t, store.Unfollow(t.Context(), reader.ID, s.user.ID))

	subs, err = store.Subscriptions(t.Context(), reader.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)

	err = store.Follow(t.Context(), reader.ID, uuid.New())
	assert.True(t, apperr.IsCode(err, apperr.CodeUserNotFound))
}
