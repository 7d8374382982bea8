package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/engine"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/handlers"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/middleware"
)

// HealthChecker reports backing store health. database.Service implements it.
type HealthChecker interface {
	Health(ctx context.Context) map[string]string
}

type Options struct {
	Port      string
	JWTSecret string
	Debug     bool
	// Health is optional; without it /health always reports ok.
	Health HealthChecker
}

type Server struct {
	handler *handlers.Handler
	opts    Options
	logger  *zap.Logger
}

// NewServer creates and configures a new server
func NewServer(e *engine.Engine, opts Options, logger *zap.Logger) *http.Server {
	newServer := &Server{
		handler: handlers.NewHandler(e, logger),
		opts:    opts,
		logger:  logger,
	}

	return &http.Server{
		Addr:         "0.0.0.0:" + opts.Port,
		Handler:      newServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	if !s.opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(s.logger))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "X-Feed-Partial"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", s.health)

	api := r.Group("/api")
	{
		// Public reads; a valid token adds the caller's votes.
		public := api.Group("")
		public.Use(middleware.OptionalAuth(s.opts.JWTSecret))
		{
			public.GET("/posts/:id", s.handler.Post.GetPost)
			public.GET("/posts/:id/comments", s.handler.Post.GetComments)
			public.GET("/posts/:id/comments/tree", s.handler.Post.GetCommentTree)
			public.GET("/comments/:commentId", s.handler.Comment.GetComment)
		}

		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(s.opts.JWTSecret))
		{
			protected.POST("/votes", s.handler.Vote.Vote)
			protected.POST("/posts/:id/vote", s.handler.Vote.VotePost)
			protected.POST("/comments/:commentId/vote", s.handler.Vote.VoteComment)

			protected.POST("/comments", s.handler.Comment.CreateComment)
			protected.POST("/posts/:id/comments", s.handler.Post.CreateComment)
			protected.PUT("/comments/:commentId", s.handler.Comment.UpdateComment)
			protected.DELETE("/comments/:commentId", s.handler.Comment.DeleteComment)

			protected.GET("/feed", s.handler.Feed.GetFeed)
			protected.GET("/feed/stats", s.handler.Feed.GetStats)
			protected.POST("/feed/refresh", s.handler.Feed.Refresh)

			protected.POST("/users/:id/follow", s.handler.User.FollowUser)
			protected.DELETE("/users/:id/follow", s.handler.User.UnfollowUser)
			protected.POST("/communities/:id/subscribe", s.handler.User.Subscribe)
			protected.DELETE("/communities/:id/subscribe", s.handler.User.Unsubscribe)
		}
	}

	return r
}

func (s *Server) health(c *gin.Context) {
	if s.opts.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	stats := s.opts.Health.Health(c.Request.Context())
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, stats)
}
