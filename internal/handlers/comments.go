package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/comments"
)

type CommentHandler struct {
	base
}

type createCommentRequest struct {
	PostID          uuid.UUID  `json:"post_id"`
	ParentCommentID *uuid.UUID `json:"parent_comment_id"`
	Body            string     `json:"body"`
}

// CreateComment creates a comment or a reply. The post comes from the body.
func (h *CommentHandler) CreateComment(c *gin.Context) {
	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	h.create(c, req)
}

func (h *CommentHandler) create(c *gin.Context, req createCommentRequest) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	comment, err := h.engine.CreateComment(c.Request.Context(), comments.CreateInput{
		PostID:          req.PostID,
		ParentCommentID: req.ParentCommentID,
		AuthorID:        userID,
		AuthorName:      usernameOf(c),
		Body:            req.Body,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// GetComment returns one comment with its rendered body.
func (h *CommentHandler) GetComment(c *gin.Context) {
	id, ok := h.uuidParam(c, "commentId")
	if !ok {
		return
	}

	view, err := h.engine.GetComment(c.Request.Context(), id, viewer(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// UpdateComment edits the body of the caller's own comment.
func (h *CommentHandler) UpdateComment(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "commentId")
	if !ok {
		return
	}

	var input struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}

	comment, err := h.engine.EditComment(c.Request.Context(), id, userID, input.Body)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

// DeleteComment tombstones a comment. Replies stay in place.
func (h *CommentHandler) DeleteComment(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "commentId")
	if !ok {
		return
	}

	comment, err := h.engine.DeleteComment(c.Request.Context(), id, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted", "comment": comment})
}
