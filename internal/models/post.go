package models

import (
	"time"

	"github.com/google/uuid"
)

// Post is a votable content item owned by a community.
type Post struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CommunityID   uuid.UUID `gorm:"type:uuid;not null;index:idx_posts_community_created,priority:1" json:"community_id"`
	CommunityName string    `json:"community"`
	AuthorID      uuid.UUID `gorm:"type:uuid;not null;index:idx_posts_author_created,priority:1" json:"author_id"`
	AuthorName    string    `json:"author"`
	Title         string    `gorm:"not null" json:"title"`
	Body          string    `json:"body,omitempty"`
	ImageURL      string    `json:"image,omitempty"`
	Tags          []string  `gorm:"type:text;serializer:json" json:"tags"`
	Upvotes       int64     `gorm:"not null;default:0" json:"upvotes"`
	Downvotes     int64     `gorm:"not null;default:0" json:"downvotes"`
	Score         int64     `gorm:"not null;default:0" json:"score"`
	CommentCount  int64     `gorm:"not null;default:0" json:"comments"`
	IsNSFW        bool      `gorm:"not null;default:false" json:"is_nsfw"`
	IsSpoiler     bool      `gorm:"not null;default:false" json:"is_spoiler"`
	IsPinned      bool      `gorm:"not null;default:false" json:"is_pinned"`
	IsDeleted     bool      `gorm:"not null;default:false" json:"is_deleted"`
	Version       int64     `gorm:"not null;default:0" json:"-"`
	CreatedAt     time.Time `gorm:"index:idx_posts_community_created,priority:2,sort:desc;index:idx_posts_author_created,priority:2,sort:desc" json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Counters returns the post's vote aggregates.
func (p *Post) Counters() Counters {
	return Counters{Upvotes: p.Upvotes, Downvotes: p.Downvotes, Score: p.Score}
}
