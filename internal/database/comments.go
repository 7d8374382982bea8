package database

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/apperr"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/comments"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/models"
)

func (s *Store) GetComment(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	var comment models.Comment
	err := s.run(ctx, "get comment", func(db *gorm.DB) error {
		return notFound(db.First(&comment, "id = ?", id).Error, apperr.CodeCommentNotFound, "comment not found")
	})
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

func (s *Store) CommentsByPost(ctx context.Context, postID uuid.UUID) ([]models.Comment, error) {
	var out []models.Comment
	err := s.run(ctx, "comments by post", func(db *gorm.DB) error {
		return db.Where("post_id = ?", postID).Order("created_at ASC").Find(&out).Error
	})
	return out, err
}

// lockPost takes the post's row lock. Every write that touches a post's
// comment counters takes it first, so they serialize per post.
func lockPost(tx *gorm.DB, postID uuid.UUID) (*models.Post, error) {
	var post models.Post
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&post, "id = ?", postID).Error
	if err != nil {
		return nil, notFound(err, apperr.CodePostNotFound, "post not found")
	}
	return &post, nil
}

func recountComments(tx *gorm.DB, postID uuid.UUID) error {
	var n int64
	err := tx.Model(&models.Comment{}).
		Where("post_id = ? AND is_deleted = ?", postID, false).
		Count(&n).Error
	if err != nil {
		return err
	}
	return tx.Model(&models.Post{}).Where("id = ?", postID).UpdateColumn("comment_count", n).Error
}

func (s *Store) InsertComment(ctx context.Context, comment *models.Comment) error {
	return s.run(ctx, "insert comment", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			post, err := lockPost(tx, comment.PostID)
			if err != nil {
				return err
			}
			if post.IsDeleted {
				return apperr.NotFound(apperr.CodePostNotFound, "post not found")
			}

			if comment.ParentCommentID != nil {
				res := tx.Model(&models.Comment{}).
					Where("id = ? AND post_id = ? AND is_deleted = ?", *comment.ParentCommentID, comment.PostID, false).
					UpdateColumn("reply_count", gorm.Expr("reply_count + 1"))
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected == 0 {
					return comments.ErrParentUnavailable
				}
			}

			if err := tx.Create(comment).Error; err != nil {
				return err
			}
			return recountComments(tx, comment.PostID)
		})
	})
}

func (s *Store) TombstoneComment(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	existing, err := s.GetComment(ctx, id)
	if err != nil {
		return nil, err
	}

	var out models.Comment
	err = s.run(ctx, "tombstone comment", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			if _, err := lockPost(tx, existing.PostID); err != nil {
				return err
			}

			var comment models.Comment
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&comment, "id = ?", id).Error
			if err != nil {
				return notFound(err, apperr.CodeCommentNotFound, "comment not found")
			}
			if comment.IsDeleted {
				return comments.ErrAlreadyDeleted
			}

			err = tx.Model(&comment).Updates(map[string]any{
				"is_deleted": true,
				"body":       models.DeletedBody,
			}).Error
			if err != nil {
				return err
			}
			comment.IsDeleted = true
			comment.Body = models.DeletedBody

			if comment.ParentCommentID != nil {
				err := tx.Model(&models.Comment{}).
					Where("id = ? AND reply_count > 0", *comment.ParentCommentID).
					UpdateColumn("reply_count", gorm.Expr("reply_count - 1")).Error
				if err != nil {
					return err
				}
			}

			if err := recountComments(tx, comment.PostID); err != nil {
				return err
			}
			out = comment
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) UpdateCommentBody(ctx context.Context, id uuid.UUID, body string) (*models.Comment, error) {
	var comment models.Comment
	err := s.run(ctx, "update comment", func(db *gorm.DB) error {
		res := db.Model(&models.Comment{}).
			Where("id = ? AND is_deleted = ?", id, false).
			Updates(map[string]any{"body": body, "is_edited": true})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound(apperr.CodeCommentNotFound, "comment not found")
		}
		return db.First(&comment, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &comment, nil
}
