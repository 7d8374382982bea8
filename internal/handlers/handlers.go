package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/apperr"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/engine"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/middleware"
)

// Handler combines all handler types
type Handler struct {
	Vote    *VoteHandler
	Post    *PostHandler
	Comment *CommentHandler
	Feed    *FeedHandler
	User    *UserHandler
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(e *engine.Engine, logger *zap.Logger) *Handler {
	logger = logger.Named("handlers")
	b := base{engine: e, logger: logger}

	return &Handler{
		Vote:    &VoteHandler{b},
		Post:    &PostHandler{b},
		Comment: &CommentHandler{b},
		Feed:    &FeedHandler{b},
		User:    &UserHandler{b},
	}
}

type base struct {
	engine *engine.Engine
	logger *zap.Logger
}

// respondError writes err as {"error", "code"} with the status its kind maps to.
func (b base) respondError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		b.logger.Error("Unhandled error",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": "INTERNAL"})
		return
	}

	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		b.logger.Warn("Dependency failure",
			zap.String("path", c.FullPath()),
			zap.String("code", appErr.Code),
			zap.Error(err))
	}

	body := gin.H{"error": appErr.Message, "code": appErr.Code}
	if apperr.Retryable(err) {
		body["retryable"] = true
	}
	c.JSON(status, body)
}

func (b base) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": apperr.CodeInvalidInput})
}

// uuidParam parses a path parameter, answering 400 when it is not a uuid.
func (b base) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name, "code": apperr.CodeInvalidInput})
		return uuid.Nil, false
	}
	return id, true
}

// currentUser returns the authenticated caller. Routes using it sit
// behind middleware.AuthMiddleware.
func (b base) currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "code": apperr.CodeUnauthorized})
	}
	return id, ok
}

// viewer returns the caller when authenticated, nil for anonymous reads.
func viewer(c *gin.Context) *uuid.UUID {
	if id, ok := middleware.UserID(c); ok {
		return &id
	}
	return nil
}
