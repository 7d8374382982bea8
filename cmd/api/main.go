package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/comments"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/config"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/database"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/engine"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/feed"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/feedcache"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/logging"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/memstore"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/server"
)

func main() {
	cfg, err := config.Load()
	if errors.Is(err, config.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, health, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	cache, closeCache, err := openCache(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	engineCfg := engine.DefaultConfig
	engineCfg.Feed = feed.Config{
		SourceCeiling: cfg.FeedSourceCeiling,
		Fanout:        cfg.FeedFanout,
		SourceTimeout: cfg.FeedSourceTimeout,
		MaxInflight:   cfg.FeedMaxInflight,
	}
	engineCfg.Comments = comments.DefaultConfig
	engineCfg.Comments.MaxTreeDepth = cfg.MaxTreeDepth
	engineCfg.VoteMaxAttempts = cfg.VoteMaxAttempts
	engineCfg.CursorSecret = cfg.CursorSecret

	srv := server.NewServer(engine.New(backend, cache, engineCfg, logger), server.Options{
		Port:      cfg.Port,
		JWTSecret: cfg.JWTSecret,
		Debug:     cfg.Debug,
		Health:    health,
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("🚀 Server starting on port %s", cfg.Port),
			zap.String("storage", cfg.Storage),
			zap.String("cache", cfg.CacheBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("🛑 Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (engine.Backend, server.HealthChecker, func(), error) {
	if cfg.Storage == "memory" {
		logger.Warn("Using in-memory storage; data is lost on restart")
		return memstore.New(), nil, func() {}, nil
	}

	db, err := database.New(ctx, database.Options{
		DSN:   cfg.DSN(),
		Name:  cfg.DBName,
		Debug: cfg.Debug,
	}, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			logger.Warn("Failed to close database", zap.Error(err))
		}
	}
	return database.NewStore(db.GetDB(), cfg.DBRetries, logger), db, closeDB, nil
}

func openCache(cfg *config.Config, logger *zap.Logger) (feedcache.Store, func(), error) {
	switch cfg.CacheBackend {
	case "redis":
		client, err := rueidis.NewClient(rueidis.ClientOption{InitAddress: []string{cfg.RedisAddr}})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("✅ Redis connected", zap.String("addr", cfg.RedisAddr))
		return feedcache.NewRedis(client, cfg.CacheTTL, logger), client.Close, nil
	case "none":
		return feedcache.Noop{}, func() {}, nil
	default:
		return feedcache.NewLRU(cfg.CacheSize, cfg.CacheTTL, logger), func() {}, nil
	}
}
