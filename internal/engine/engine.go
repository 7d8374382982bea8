// Package engine is the API surface of the voting and feed service. It
// wires the ledger, comment manager and feed aggregator over one backend
// and keeps materialized feeds in step with writes.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/apperr"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/comments"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/cursor"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/feed"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/feedcache"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/ledger"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/models"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/ranking"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/render"
)

// Directory resolves users and communities.
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetCommunity(ctx context.Context, id uuid.UUID) (*models.Community, error)
}

// MembershipWriter changes what a user's feed is built from.
type MembershipWriter interface {
	Subscribe(ctx context.Context, userID, communityID uuid.UUID) error
	Unsubscribe(ctx context.Context, userID, communityID uuid.UUID) error
	Follow(ctx context.Context, followerID, followingID uuid.UUID) error
	Unfollow(ctx context.Context, followerID, followingID uuid.UUID) error
}

// Backend is everything the engine reads and writes. memstore.Store and
// database.Store both implement it.
type Backend interface {
	ledger.Store
	comments.Store
	comments.RoleLookup
	feed.Membership
	feed.PostSource
	feed.VoteLookup
	ranking.RecentCommentCounter
	Directory
	MembershipWriter
}

type Config struct {
	Ranking         ranking.Config
	Comments        comments.Config
	Feed            feed.Config
	VoteMaxAttempts int
	CursorSecret    string
	CursorTTL       time.Duration
}

var DefaultConfig = Config{
	Ranking:         ranking.DefaultConfig,
	Comments:        comments.DefaultConfig,
	Feed:            feed.DefaultConfig,
	VoteMaxAttempts: 3,
	CursorTTL:       24 * time.Hour,
}

type Engine struct {
	backend  Backend
	cache    feedcache.Store
	ledger   *ledger.Ledger
	comments *comments.Manager
	feed     *feed.Aggregator
	logger   *zap.Logger
}

// New wires the components over backend. cache may be nil.
func New(backend Backend, cache feedcache.Store, cfg Config, logger *zap.Logger) *Engine {
	if cache == nil {
		cache = feedcache.Noop{}
	}
	if cfg.CursorTTL <= 0 {
		cfg.CursorTTL = DefaultConfig.CursorTTL
	}

	ranker := ranking.NewRanker(cfg.Ranking, backend, logger)
	l := ledger.New(backend, cfg.VoteMaxAttempts, logger)

	return &Engine{
		backend: backend,
		cache:   cache,
		ledger:  l,
		comments: comments.NewManager(comments.Deps{
			Store:    backend,
			Roles:    backend,
			Votes:    backend,
			Ledger:   l,
			Ranker:   ranker,
			Renderer: render.New(),
		}, cfg.Comments, logger),
		feed: feed.NewAggregator(feed.Deps{
			Membership: backend,
			Posts:      backend,
			Votes:      backend,
			Ranker:     ranker,
			Cursors:    cursor.NewCodec(cfg.CursorSecret, cfg.CursorTTL),
			Cache:      cache,
		}, cfg.Feed, logger),
		logger: logger.Named("engine"),
	}
}

// Vote applies voterID's vote on a post or comment.
func (e *Engine) Vote(ctx context.Context, voterID uuid.UUID, target ledger.Target, direction models.VoteDirection) (*ledger.Result, error) {
	result, err := e.ledger.ApplyVote(ctx, voterID, target, direction)
	if err != nil {
		return nil, err
	}

	if result.Changed && target.Type == models.TargetPost {
		e.invalidatePost(ctx, target.ID)
	}
	return result, nil
}

// PostView is a post as seen by one viewer.
type PostView struct {
	models.Post
	MyVote models.VoteDirection `json:"my_vote,omitempty"`
}

// GetPost returns a post with the viewer's vote on it. Deleted posts are
// not found.
func (e *Engine) GetPost(ctx context.Context, postID uuid.UUID, viewerID *uuid.UUID) (*PostView, error) {
	post, err := e.backend.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.IsDeleted {
		return nil, apperr.NotFound(apperr.CodePostNotFound, "post not found")
	}

	view := &PostView{Post: *post}
	if viewerID != nil {
		votes, err := e.backend.VotesFor(ctx, *viewerID, models.TargetPost, []uuid.UUID{postID})
		if err != nil {
			e.logger.Warn("Failed to load viewer vote",
				zap.String("post_id", postID.String()),
				zap.Error(err))
		} else {
			view.MyVote = votes[postID]
		}
	}
	return view, nil
}

// CreateComment adds a comment. The author's display name is taken from
// the directory when the caller did not supply one.
func (e *Engine) CreateComment(ctx context.Context, in comments.CreateInput) (*models.Comment, error) {
	if in.AuthorName == "" {
		if user, err := e.backend.GetUser(ctx, in.AuthorID); err == nil {
			in.AuthorName = user.Username
		} else if !apperr.IsKind(err, apperr.KindNotFound) {
			return nil, err
		}
	}

	comment, err := e.comments.CreateComment(ctx, in)
	if err != nil {
		return nil, err
	}

	e.invalidatePost(ctx, comment.PostID)
	return comment, nil
}

func (e *Engine) DeleteComment(ctx context.Context, commentID, requestorID uuid.UUID) (*models.Comment, error) {
	comment, err := e.comments.DeleteComment(ctx, commentID, requestorID)
	if err != nil {
		return nil, err
	}

	e.invalidatePost(ctx, comment.PostID)
	return comment, nil
}

func (e *Engine) EditComment(ctx context.Context, commentID, editorID uuid.UUID, body string) (*models.Comment, error) {
	return e.comments.EditComment(ctx, commentID, editorID, body)
}

func (e *Engine) GetComment(ctx context.Context, commentID uuid.UUID, viewerID *uuid.UUID) (*comments.View, error) {
	return e.comments.GetComment(ctx, commentID, viewerID)
}

func (e *Engine) ListComments(ctx context.Context, postID uuid.UUID, sort string, limit int, viewerID *uuid.UUID) ([]comments.View, error) {
	s, err := ranking.ParseCommentSort(sort)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, apperr.Validation(apperr.CodeInvalidLimit, "limit must not be negative")
	}
	return e.comments.ListComments(ctx, postID, s, limit, viewerID)
}

func (e *Engine) CommentTree(ctx context.Context, postID uuid.UUID, sort string, viewerID *uuid.UUID) ([]*comments.Node, error) {
	s, err := ranking.ParseCommentSort(sort)
	if err != nil {
		return nil, err
	}
	return e.comments.Tree(ctx, postID, s, viewerID)
}

func (e *Engine) GetFeed(ctx context.Context, viewerID uuid.UUID, q feed.Query) (*feed.Page, error) {
	return e.feed.GetFeed(ctx, viewerID, q)
}

func (e *Engine) FeedStats(ctx context.Context, viewerID uuid.UUID) (*feed.Stats, error) {
	return e.feed.Stats(ctx, viewerID)
}

func (e *Engine) RefreshFeed(ctx context.Context, viewerID uuid.UUID) (*feed.Page, error) {
	return e.feed.Refresh(ctx, viewerID)
}

func (e *Engine) Subscribe(ctx context.Context, userID, communityID uuid.UUID) error {
	if err := e.backend.Subscribe(ctx, userID, communityID); err != nil {
		return err
	}
	e.invalidateUser(ctx, userID)
	return nil
}

func (e *Engine) Unsubscribe(ctx context.Context, userID, communityID uuid.UUID) error {
	if err := e.backend.Unsubscribe(ctx, userID, communityID); err != nil {
		return err
	}
	e.invalidateUser(ctx, userID)
	return nil
}

func (e *Engine) Follow(ctx context.Context, followerID, followingID uuid.UUID) error {
	if followerID == followingID {
		return apperr.Validation(apperr.CodeSelfFollow, "you cannot follow yourself")
	}
	if err := e.backend.Follow(ctx, followerID, followingID); err != nil {
		return err
	}
	e.invalidateUser(ctx, followerID)
	return nil
}

func (e *Engine) Unfollow(ctx context.Context, followerID, followingID uuid.UUID) error {
	if err := e.backend.Unfollow(ctx, followerID, followingID); err != nil {
		return err
	}
	e.invalidateUser(ctx, followerID)
	return nil
}

// invalidatePost drops every materialized feed built from the post's
// community or author. Failures are logged; the snapshot TTL bounds how
// long a stale copy can be served.
func (e *Engine) invalidatePost(ctx context.Context, postID uuid.UUID) {
	post, err := e.backend.GetPost(ctx, postID)
	if err != nil {
		e.logger.Warn("Failed to load post for feed invalidation",
			zap.String("post_id", postID.String()),
			zap.Error(err))
		return
	}

	err = e.cache.InvalidateSources(ctx,
		feedcache.CommunitySource(post.CommunityID),
		feedcache.AuthorSource(post.AuthorID))
	if err != nil {
		e.logger.Warn("Failed to invalidate materialized feeds",
			zap.String("post_id", postID.String()),
			zap.Error(err))
	}
}

func (e *Engine) invalidateUser(ctx context.Context, userID uuid.UUID) {
	if err := e.cache.InvalidateUser(ctx, userID); err != nil {
		e.logger.Warn("Failed to invalidate materialized feeds",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
}
