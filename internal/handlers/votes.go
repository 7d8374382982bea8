package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/ledger"
)

type VoteHandler struct {
	base
}

type voteRequest struct {
	TargetType string    `json:"target_type" binding:"required"`
	TargetID   uuid.UUID `json:"target_id" binding:"required"`
	Direction  string    `json:"direction" binding:"required"`
}

// Vote applies the caller's vote to a post or comment.
func (h *VoteHandler) Vote(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	target, err := ledger.ParseTarget(req.TargetType, req.TargetID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.apply(c, userID, target, req.Direction)
}

type directionRequest struct {
	Direction string `json:"direction" binding:"required"`
}

// voteOn handles the per-resource vote routes, which only carry a direction.
func (h *VoteHandler) voteOn(c *gin.Context, param string, target func(uuid.UUID) ledger.Target) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, param)
	if !ok {
		return
	}

	var req directionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	h.apply(c, userID, target(id), req.Direction)
}

func (h *VoteHandler) apply(c *gin.Context, userID uuid.UUID, target ledger.Target, direction string) {
	dir, err := ledger.ParseDirection(direction)
	if err != nil {
		h.respondError(c, err)
		return
	}

	result, err := h.engine.Vote(c.Request.Context(), userID, target, dir)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *VoteHandler) VotePost(c *gin.Context) {
	h.voteOn(c, "id", ledger.PostTarget)
}

func (h *VoteHandler) VoteComment(c *gin.Context) {
	h.voteOn(c, "commentId", ledger.CommentTarget)
}
