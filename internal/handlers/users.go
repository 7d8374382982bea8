package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UserHandler struct {
	base
}

func (h *UserHandler) FollowUser(c *gin.Context) {
	h.membership(c, "id", h.engine.Follow, "Followed user")
}

func (h *UserHandler) UnfollowUser(c *gin.Context) {
	h.membership(c, "id", h.engine.Unfollow, "Unfollowed user")
}

func (h *UserHandler) Subscribe(c *gin.Context) {
	h.membership(c, "id", h.engine.Subscribe, "Subscribed to community")
}

func (h *UserHandler) Unsubscribe(c *gin.Context) {
	h.membership(c, "id", h.engine.Unsubscribe, "Unsubscribed from community")
}

func (h *UserHandler) membership(c *gin.Context, param string, change func(context.Context, uuid.UUID, uuid.UUID) error, message string) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, param)
	if !ok {
		return
	}

	if err := change(c.Request.Context(), userID, id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}
