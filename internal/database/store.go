package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/apperr"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/comments"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/ledger"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/models"
)

// Store implements the engine backend on gorm.
type Store struct {
	db       *gorm.DB
	logger   *zap.Logger
	attempts int

	// passthrough errors are returned to the caller unchanged.
	passthrough []error
}

// NewStore creates a store that retries transient failures up to attempts
// times.
func NewStore(db *gorm.DB, attempts int, logger *zap.Logger) *Store {
	if attempts < 1 {
		attempts = 1
	}
	return &Store{
		db:       db,
		logger:   logger.Named("store"),
		attempts: attempts,
		passthrough: []error{
			ledger.ErrVersionConflict,
			comments.ErrParentUnavailable,
			comments.ErrAlreadyDeleted,
		},
	}
}

func notFound(err error, code, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(code, message)
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.run(ctx, "get user", func(db *gorm.DB) error {
		return notFound(db.First(&user, "id = ?", id).Error, apperr.CodeUserNotFound, "user not found")
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetCommunity(ctx context.Context, id uuid.UUID) (*models.Community, error) {
	var community models.Community
	err := s.run(ctx, "get community", func(db *gorm.DB) error {
		return notFound(db.First(&community, "id = ?", id).Error, apperr.CodeCommunityNotFound, "community not found")
	})
	if err != nil {
		return nil, err
	}
	return &community, nil
}

func (s *Store) Subscriptions(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.run(ctx, "list subscriptions", func(db *gorm.DB) error {
		return db.Model(&models.CommunityMembership{}).
			Where("user_id = ?", userID).
			Order("community_id").
			Pluck("community_id", &ids).Error
	})
	return ids, err
}

func (s *Store) Follows(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.run(ctx, "list follows", func(db *gorm.DB) error {
		return db.Model(&models.Follow{}).
			Where("follower_id = ?", userID).
			Order("following_id").
			Pluck("following_id", &ids).Error
	})
	return ids, err
}

func (s *Store) Role(ctx context.Context, userID, communityID uuid.UUID) (models.MembershipRole, error) {
	var membership models.CommunityMembership
	err := s.run(ctx, "get role", func(db *gorm.DB) error {
		err := db.Where("user_id = ? AND community_id = ?", userID, communityID).Take(&membership).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	})
	return membership.Role, err
}

// Subscribe joins the community as a member. Joining twice keeps the
// existing role.
func (s *Store) Subscribe(ctx context.Context, userID, communityID uuid.UUID) error {
	if _, err := s.GetCommunity(ctx, communityID); err != nil {
		return err
	}
	return s.run(ctx, "subscribe", func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.CommunityMembership{
			UserID:      userID,
			CommunityID: communityID,
			Role:        models.RoleMember,
		}).Error
	})
}

func (s *Store) Unsubscribe(ctx context.Context, userID, communityID uuid.UUID) error {
	if _, err := s.GetCommunity(ctx, communityID); err != nil {
		return err
	}
	return s.run(ctx, "unsubscribe", func(db *gorm.DB) error {
		return db.Where("user_id = ? AND community_id = ?", userID, communityID).
			Delete(&models.CommunityMembership{}).Error
	})
}

func (s *Store) Follow(ctx context.Context, followerID, followingID uuid.UUID) error {
	if _, err := s.GetUser(ctx, followingID); err != nil {
		return err
	}
	return s.run(ctx, "follow", func(db *gorm.DB) error {
		err := db.Omit(clause.Associations).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.Follow{FollowerID: followerID, FollowingID: followingID}).Error
		if foreignKeyViolation(err) {
			return apperr.NotFound(apperr.CodeUserNotFound, "follower has no profile")
		}
		return err
	})
}

func (s *Store) Unfollow(ctx context.Context, followerID, followingID uuid.UUID) error {
	return s.run(ctx, "unfollow", func(db *gorm.DB) error {
		return db.Where("follower_id = ? AND following_id = ?", followerID, followingID).
			Delete(&models.Follow{}).Error
	})
}
