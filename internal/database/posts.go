package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/apperr"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/feed"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/models"
)

func (s *Store) GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	var post models.Post
	err := s.run(ctx, "get post", func(db *gorm.DB) error {
		return notFound(db.First(&post, "id = ?", id).Error, apperr.CodePostNotFound, "post not found")
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// CreatePost stores a post. Posts are authored elsewhere; this exists for
// seeding and tests.
func (s *Store) CreatePost(ctx context.Context, post *models.Post) error {
	return s.run(ctx, "create post", func(db *gorm.DB) error {
		return db.Create(post).Error
	})
}

func (s *Store) RecentPostsByCommunity(ctx context.Context, communityID uuid.UUID, q feed.SourceQuery) ([]models.Post, error) {
	return s.recentPosts(ctx, "community_id", communityID, q)
}

func (s *Store) RecentPostsByAuthor(ctx context.Context, authorID uuid.UUID, q feed.SourceQuery) ([]models.Post, error) {
	return s.recentPosts(ctx, "author_id", authorID, q)
}

// recentPosts is a range scan over the (column, created_at) index.
func (s *Store) recentPosts(ctx context.Context, column string, id uuid.UUID, q feed.SourceQuery) ([]models.Post, error) {
	var posts []models.Post
	err := s.run(ctx, "recent posts by "+column, func(db *gorm.DB) error {
		query := db.Where(column+" = ? AND is_deleted = ?", id, false)
		if q.Before != nil {
			query = query.Where("created_at <= ?", *q.Before)
		}
		return query.Order("created_at DESC, id DESC").Limit(q.Limit).Find(&posts).Error
	})
	return posts, err
}

// RecentCommentCounts counts live comments per post since the given time.
// Every requested post gets an entry.
func (s *Store) RecentCommentCounts(ctx context.Context, postIDs []uuid.UUID, since time.Time) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(postIDs))
	if len(postIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		PostID uuid.UUID
		N      int64
	}
	err := s.run(ctx, "recent comment counts", func(db *gorm.DB) error {
		return db.Model(&models.Comment{}).
			Select("post_id, count(*) AS n").
			Where("post_id IN ? AND created_at >= ? AND is_deleted = ?", postIDs, since, false).
			Group("post_id").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	for _, id := range postIDs {
		counts[id] = 0
	}
	for _, row := range rows {
		counts[row.PostID] = row.N
	}
	return counts, nil
}
