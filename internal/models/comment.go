package models

import (
	"time"

	"github.com/google/uuid"
)

// DeletedBody replaces the body of a tombstoned comment.
const DeletedBody = "[deleted]"

type Comment struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	PostID          uuid.UUID  `gorm:"type:uuid;not null;index:idx_comments_post_created,priority:1" json:"post_id"`
	ParentCommentID *uuid.UUID `gorm:"type:uuid;index" json:"parent_comment_id,omitempty"`
	AuthorID        uuid.UUID  `gorm:"type:uuid;not null" json:"author_id"`
	AuthorName      string     `json:"author"`
	Body            string     `gorm:"not null" json:"body"`
	Depth           int        `gorm:"not null;default:0" json:"depth"`
	ReplyCount      int64      `gorm:"not null;default:0" json:"reply_count"`
	Upvotes         int64      `gorm:"not null;default:0" json:"upvotes"`
	Downvotes       int64      `gorm:"not null;default:0" json:"downvotes"`
	Score           int64      `gorm:"not null;default:0" json:"score"`
	IsEdited        bool       `gorm:"not null;default:false" json:"is_edited"`
	IsDeleted       bool       `gorm:"not null;default:false" json:"is_deleted"`
	Version         int64      `gorm:"not null;default:0" json:"-"`
	CreatedAt       time.Time  `gorm:"index:idx_comments_post_created,priority:2" json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (c *Comment) Counters() Counters {
	return Counters{Upvotes: c.Upvotes, Downvotes: c.Downvotes, Score: c.Score}
}

// IsRoot reports whether the comment replies directly to the post.
func (c *Comment) IsRoot() bool {
	return c.ParentCommentID == nil
}
