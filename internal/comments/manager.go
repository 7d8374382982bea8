package comments

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/apperr"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/ledger"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/models"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/ranking"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/render"
)

var (
	// ErrParentUnavailable is returned by Store.InsertComment when the parent
	// was deleted or moved between validation and insert.
	ErrParentUnavailable = errors.New("parent comment unavailable")
	// ErrAlreadyDeleted is returned by Store.TombstoneComment for tombstones.
	ErrAlreadyDeleted = errors.New("comment already deleted")
)

// Store is the comment persistence. Get methods return NotFound apperrs;
// soft-deleted rows are still returned with IsDeleted set.
type Store interface {
	GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error)
	GetComment(ctx context.Context, id uuid.UUID) (*models.Comment, error)
	CommentsByPost(ctx context.Context, postID uuid.UUID) ([]models.Comment, error)

	// InsertComment stores comment, bumps the immediate parent's ReplyCount
	// and recounts the post's CommentCount in one transaction.
	InsertComment(ctx context.Context, comment *models.Comment) error
	// TombstoneComment marks the comment deleted, redacts its body, drops
	// the parent's ReplyCount and recounts the post's CommentCount.
	TombstoneComment(ctx context.Context, id uuid.UUID) (*models.Comment, error)
	UpdateCommentBody(ctx context.Context, id uuid.UUID, body string) (*models.Comment, error)
}

// RoleLookup returns the user's role in a community, or "" when not a member.
type RoleLookup interface {
	Role(ctx context.Context, userID, communityID uuid.UUID) (models.MembershipRole, error)
}

// VoteLookup returns the viewer's vote on each of the given targets.
type VoteLookup interface {
	VotesFor(ctx context.Context, voterID uuid.UUID, targetType models.VoteTargetType, targetIDs []uuid.UUID) (map[uuid.UUID]models.VoteDirection, error)
}

type Config struct {
	MaxTreeDepth  int
	MaxBodyLength int
}

var DefaultConfig = Config{
	MaxTreeDepth:  64,
	MaxBodyLength: 10000,
}

type Deps struct {
	Store    Store
	Roles    RoleLookup
	Votes    VoteLookup
	Ledger   *ledger.Ledger
	Ranker   *ranking.Ranker
	Renderer *render.Renderer
}

type Manager struct {
	store    Store
	roles    RoleLookup
	votes    VoteLookup
	ledger   *ledger.Ledger
	ranker   *ranking.Ranker
	renderer *render.Renderer
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

func NewManager(deps Deps, cfg Config, logger *zap.Logger) *Manager {
	if cfg.MaxTreeDepth < 1 {
		cfg.MaxTreeDepth = DefaultConfig.MaxTreeDepth
	}
	if cfg.MaxBodyLength < 1 {
		cfg.MaxBodyLength = DefaultConfig.MaxBodyLength
	}
	renderer := deps.Renderer
	if renderer == nil {
		renderer = render.New()
	}

	return &Manager{
		store:    deps.Store,
		roles:    deps.Roles,
		votes:    deps.Votes,
		ledger:   deps.Ledger,
		ranker:   deps.Ranker,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger.Named("comments"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type CreateInput struct {
	PostID          uuid.UUID
	ParentCommentID *uuid.UUID
	AuthorID        uuid.UUID
	AuthorName      string
	Body            string
}

// CreateComment adds a comment under a post or under another comment of
// the same post.
func (m *Manager) CreateComment(ctx context.Context, in CreateInput) (*models.Comment, error) {
	body, err := m.validateBody(in.Body)
	if err != nil {
		return nil, err
	}

	post, err := m.store.GetPost(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if post.IsDeleted {
		return nil, apperr.NotFound(apperr.CodePostNotFound, "post not found")
	}

	depth := 0
	if in.ParentCommentID != nil {
		parent, err := m.store.GetComment(ctx, *in.ParentCommentID)
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				return nil, invalidParent("parent comment does not exist")
			}
			return nil, err
		}
		if parent.PostID != in.PostID {
			return nil, invalidParent("parent comment belongs to another post")
		}
		if parent.IsDeleted {
			return nil, invalidParent("cannot reply to a deleted comment")
		}
		depth = parent.Depth + 1
	}

	now := m.now()
	comment := &models.Comment{
		ID:              uuid.New(),
		PostID:          in.PostID,
		ParentCommentID: in.ParentCommentID,
		AuthorID:        in.AuthorID,
		AuthorName:      in.AuthorName,
		Body:            body,
		Depth:           depth,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := m.store.InsertComment(ctx, comment); err != nil {
		if errors.Is(err, ErrParentUnavailable) {
			return nil, invalidParent("parent comment was deleted")
		}
		return nil, err
	}

	m.logger.Debug("Comment created",
		zap.String("comment_id", comment.ID.String()),
		zap.String("post_id", comment.PostID.String()),
		zap.Int("depth", comment.Depth))

	return comment, nil
}

// DeleteComment tombstones a comment. Only its author or a moderator of
// the post's community may do so. Replies are kept.
func (m *Manager) DeleteComment(ctx context.Context, commentID, requestorID uuid.UUID) (*models.Comment, error) {
	comment, err := m.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if comment.IsDeleted {
		return nil, apperr.NotFound(apperr.CodeCommentNotFound, "comment not found")
	}

	if comment.AuthorID != requestorID {
		allowed, err := m.isModerator(ctx, requestorID, comment.PostID)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, apperr.AccessDenied(apperr.CodeNotCommentOwner, "you can only delete your own comments")
		}
	}

	deleted, err := m.store.TombstoneComment(ctx, commentID)
	if err != nil {
		if errors.Is(err, ErrAlreadyDeleted) {
			return nil, apperr.NotFound(apperr.CodeCommentNotFound, "comment not found")
		}
		return nil, err
	}

	m.logger.Info("Comment deleted",
		zap.String("comment_id", commentID.String()),
		zap.String("by", requestorID.String()),
		zap.Bool("moderator", comment.AuthorID != requestorID))

	return deleted, nil
}

// EditComment replaces the body of the editor's own comment.
func (m *Manager) EditComment(ctx context.Context, commentID, editorID uuid.UUID, body string) (*models.Comment, error) {
	body, err := m.validateBody(body)
	if err != nil {
		return nil, err
	}

	comment, err := m.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if comment.IsDeleted {
		return nil, apperr.NotFound(apperr.CodeCommentNotFound, "comment not found")
	}
	if comment.AuthorID != editorID {
		return nil, apperr.AccessDenied(apperr.CodeNotCommentOwner, "you can only edit your own comments")
	}

	return m.store.UpdateCommentBody(ctx, commentID, body)
}

// VoteComment applies a vote through the ledger.
func (m *Manager) VoteComment(ctx context.Context, voterID, commentID uuid.UUID, direction models.VoteDirection) (*ledger.Result, error) {
	return m.ledger.ApplyVote(ctx, voterID, ledger.CommentTarget(commentID), direction)
}

func (m *Manager) isModerator(ctx context.Context, userID, postID uuid.UUID) (bool, error) {
	if m.roles == nil {
		return false, nil
	}

	post, err := m.store.GetPost(ctx, postID)
	if err != nil {
		return false, err
	}

	role, err := m.roles.Role(ctx, userID, post.CommunityID)
	if err != nil {
		return false, err
	}
	return role.CanModerate(), nil
}

func (m *Manager) validateBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", apperr.Validation(apperr.CodeEmptyBody, "comment body is required")
	}
	if utf8.RuneCountInString(body) > m.cfg.MaxBodyLength {
		return "", apperr.Validation(apperr.CodeBodyTooLong, "comment body is too long")
	}
	return body, nil
}

func invalidParent(message string) error {
	return apperr.Validation(apperr.CodeInvalidParent, message)
}
