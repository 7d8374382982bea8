package models

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// PreviewLength is the max number of characters of a post body kept in a feed entry.
const PreviewLength = 200

// FeedSource records why a post qualified for a viewer's feed.
type FeedSource uint8

const (
	SourceCommunity FeedSource = 1 << iota
	SourceAuthor
)

func (s FeedSource) Has(other FeedSource) bool {
	return s&other != 0
}

func (s FeedSource) Names() []string {
	names := make([]string, 0, 2)
	if s.Has(SourceCommunity) {
		names = append(names, "community")
	}
	if s.Has(SourceAuthor) {
		names = append(names, "author")
	}
	return names
}

func (s FeedSource) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

func (s *FeedSource) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}

	*s = 0
	for _, name := range names {
		switch name {
		case "community":
			*s |= SourceCommunity
		case "author":
			*s |= SourceAuthor
		default:
			return fmt.Errorf("unknown feed source %q", name)
		}
	}
	return nil
}

// FeedEntry is a viewer-specific, read-optimized copy of a post. It is a
// cache: every field can be re-derived from the post.
type FeedEntry struct {
	PostID         uuid.UUID     `json:"post_id"`
	CommunityID    uuid.UUID     `json:"community_id"`
	CommunityName  string        `json:"community_name"`
	AuthorID       uuid.UUID     `json:"author_id"`
	AuthorName     string        `json:"author_name"`
	Title          string        `json:"title"`
	Preview        string        `json:"content_preview"`
	ImageURL       string        `json:"image_url,omitempty"`
	Tags           []string      `json:"tags"`
	Upvotes        int64         `json:"upvotes"`
	Downvotes      int64         `json:"downvotes"`
	PostScore      int64         `json:"post_score"`
	CommentCount   int64         `json:"comments_count"`
	IsPinned       bool          `json:"is_pinned"`
	IsNSFW         bool          `json:"is_nsfw"`
	IsSpoiler      bool          `json:"is_spoiler"`
	IsDeleted      bool          `json:"is_deleted,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	MaterializedAt time.Time     `json:"materialized_at"`
	Sources        FeedSource    `json:"sources"`
	MyVote         VoteDirection `json:"my_vote,omitempty"`
}

// NewFeedEntry projects a post for a feed.
func NewFeedEntry(post *Post, source FeedSource, now time.Time) FeedEntry {
	return FeedEntry{
		PostID:         post.ID,
		CommunityID:    post.CommunityID,
		CommunityName:  post.CommunityName,
		AuthorID:       post.AuthorID,
		AuthorName:     post.AuthorName,
		Title:          post.Title,
		Preview:        Preview(post.Body),
		ImageURL:       post.ImageURL,
		Tags:           post.Tags,
		Upvotes:        post.Upvotes,
		Downvotes:      post.Downvotes,
		PostScore:      post.Score,
		CommentCount:   post.CommentCount,
		IsPinned:       post.IsPinned,
		IsNSFW:         post.IsNSFW,
		IsSpoiler:      post.IsSpoiler,
		IsDeleted:      post.IsDeleted,
		CreatedAt:      post.CreatedAt,
		MaterializedAt: now,
		Sources:        source,
	}
}

// Preview truncates body to PreviewLength characters, appending "..." when cut.
func Preview(body string) string {
	if utf8.RuneCountInString(body) <= PreviewLength {
		return body
	}
	runes := []rune(body)
	return string(runes[:PreviewLength]) + "..."
}
