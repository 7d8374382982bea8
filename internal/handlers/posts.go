package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/middleware"
)

type PostHandler struct {
	base
}

// GetPost returns a post with its counters and the caller's vote.
func (h *PostHandler) GetPost(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	post, err := h.engine.GetPost(c.Request.Context(), id, viewer(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

type listCommentsQuery struct {
	Sort  string `form:"sort"`
	Limit int    `form:"limit" binding:"min=0"`
}

// GetComments lists a post's comments flat, in the requested order.
func (h *PostHandler) GetComments(c *gin.Context) {
	postID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var q listCommentsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, err)
		return
	}

	views, err := h.engine.ListComments(c.Request.Context(), postID, q.Sort, q.Limit, viewer(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": views, "count": len(views)})
}

// GetCommentTree returns a post's comments nested under their parents.
func (h *PostHandler) GetCommentTree(c *gin.Context) {
	postID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	tree, err := h.engine.CommentTree(c.Request.Context(), postID, c.Query("sort"), viewer(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": tree})
}

// CreateComment creates a comment on the post in the path.
func (h *PostHandler) CreateComment(c *gin.Context) {
	postID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	req.PostID = postID

	(&CommentHandler{h.base}).create(c, req)
}

func usernameOf(c *gin.Context) string {
	return middleware.Username(c)
}
