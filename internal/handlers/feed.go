package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/feed"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/ranking"
)

const defaultFeedLimit = 25

type FeedHandler struct {
	base
}

type feedQuery struct {
	Sort            string `form:"sort"`
	Limit           *int   `form:"limit"`
	Cursor          string `form:"cursor"`
	IncludeNSFW     bool   `form:"include_nsfw"`
	IncludeSpoilers bool   `form:"include_spoilers"`
	CommunityID     string `form:"community_id"`
	AuthorID        string `form:"author_id"`
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// GetFeed returns one page of the caller's personalized feed.
func (h *FeedHandler) GetFeed(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	var q feedQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, err)
		return
	}
	communityID, err := optionalUUID(q.CommunityID)
	if err != nil {
		h.badRequest(c, err)
		return
	}
	authorID, err := optionalUUID(q.AuthorID)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	limit := defaultFeedLimit
	if q.Limit != nil {
		limit = *q.Limit
	}

	page, err := h.engine.GetFeed(c.Request.Context(), userID, feed.Query{
		Sort:   ranking.Sort(q.Sort),
		Limit:  limit,
		Cursor: q.Cursor,
		Filters: feed.Filters{
			IncludeNSFW:     q.IncludeNSFW,
			IncludeSpoilers: q.IncludeSpoilers,
			CommunityID:     communityID,
			AuthorID:        authorID,
		},
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	if partial := page.PartialError(); partial != nil {
		c.Header("X-Feed-Partial", partial.Code)
	}
	c.JSON(http.StatusOK, page)
}

// GetStats summarizes what the caller's feed is built from.
func (h *FeedHandler) GetStats(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	stats, err := h.engine.FeedStats(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Refresh drops the caller's materialized feeds and rebuilds the newest page.
func (h *FeedHandler) Refresh(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	page, err := h.engine.RefreshFeed(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Feed refreshed successfully",
		"items_count": len(page.Items),
		"partial":     page.Partial,
	})
}
