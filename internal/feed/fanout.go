package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/apperr"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/feedcache"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/models"
)

type candidateSet struct {
	entries   []models.FeedEntry
	saturated bool
	failed    []feedcache.SourceRef
	cached    bool
	builtAt   time.Time
	sources   []feedcache.SourceRef
}

type sourceResult struct {
	source feedcache.SourceRef
	posts  []models.Post
	err    error
}

func snapshotKey(window int, before *time.Time) string {
	if before == nil {
		return fmt.Sprintf("w%d", window)
	}
	return fmt.Sprintf("w%d:b%d", window, before.UnixNano())
}

// candidates returns the merged, deduplicated posts of the viewer's sources,
// from the materializer when possible.
func (a *Aggregator) candidates(ctx context.Context, viewerID uuid.UUID, window int, before *time.Time) (*candidateSet, error) {
	key := snapshotKey(window, before)

	snap, ok, err := a.cache.Get(ctx, viewerID, key)
	if err != nil {
		a.logger.Warn("Feed cache read failed, rebuilding", zap.Error(err))
	} else if ok {
		return &candidateSet{
			entries:   snap.Entries,
			saturated: snap.Saturated,
			cached:    true,
			builtAt:   snap.BuiltAt,
			sources:   snap.Sources,
		}, nil
	}

	// Shared by every coalesced reader; detached from the ctx of whichever
	// reader started it.
	ch := a.builds.DoChan(viewerID.String()+"|"+key, func() (any, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.BuildTimeout)
		defer cancel()
		return a.build(buildCtx, viewerID, key, window, before)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("feed build abandoned: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*candidateSet), nil
	}
}

func (a *Aggregator) build(ctx context.Context, viewerID uuid.UUID, key string, window int, before *time.Time) (*candidateSet, error) {
	started := time.Now()

	sources, err := a.resolveSources(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	set := &candidateSet{sources: sources, builtAt: a.now()}
	if len(sources) == 0 {
		a.store(ctx, viewerID, key, set, started)
		return set, nil
	}

	results := a.fanOut(ctx, sources, SourceQuery{Limit: window, Before: before})

	byID := make(map[uuid.UUID]int)
	var lastErr error
	for _, res := range results {
		if res.err != nil {
			set.failed = append(set.failed, res.source)
			lastErr = res.err
			a.logger.Warn("Feed source failed, serving partial feed",
				zap.String("source", res.source.String()),
				zap.String("viewer_id", viewerID.String()),
				zap.Error(res.err))
			continue
		}

		if len(res.posts) >= window {
			set.saturated = true
		}
		for i := range res.posts {
			post := &res.posts[i]
			if idx, ok := byID[post.ID]; ok {
				set.entries[idx].Sources |= res.source.Flag()
				continue
			}
			byID[post.ID] = len(set.entries)
			set.entries = append(set.entries, models.NewFeedEntry(post, res.source.Flag(), set.builtAt))
		}
	}

	if len(set.failed) == len(sources) {
		return nil, apperr.Unavailable(apperr.CodeFeedUnavailable, "no feed source could be loaded", lastErr)
	}

	if len(set.failed) == 0 {
		a.store(ctx, viewerID, key, set, started)
	}

	a.logger.Debug("Feed candidates built",
		zap.String("viewer_id", viewerID.String()),
		zap.Int("sources", len(sources)),
		zap.Int("failed", len(set.failed)),
		zap.Int("entries", len(set.entries)),
		zap.Duration("took", time.Since(started)))

	return set, nil
}

func (a *Aggregator) store(ctx context.Context, viewerID uuid.UUID, key string, set *candidateSet, started time.Time) {
	err := a.cache.Put(ctx, &feedcache.Snapshot{
		UserID:    viewerID,
		Key:       key,
		Entries:   set.entries,
		Sources:   set.sources,
		Saturated: set.saturated,
		StartedAt: started,
		BuiltAt:   set.builtAt,
	})
	if err != nil {
		a.logger.Warn("Failed to materialize feed", zap.Error(err))
	}
}

// fanOut fetches every source on a bounded pool. Each fetch has its own
// timeout and also holds a slot of the process-wide inflight limiter.
func (a *Aggregator) fanOut(ctx context.Context, sources []feedcache.SourceRef, q SourceQuery) []sourceResult {
	results := make([]sourceResult, len(sources))

	p := pool.New().WithMaxGoroutines(a.cfg.Fanout)
	for i, src := range sources {
		p.Go(func() {
			results[i] = a.fetchSource(ctx, src, q)
		})
	}
	p.Wait()

	return results
}

func (a *Aggregator) fetchSource(ctx context.Context, src feedcache.SourceRef, q SourceQuery) sourceResult {
	if err := a.inflight.Acquire(ctx, 1); err != nil {
		return sourceResult{source: src, err: fmt.Errorf("failed to acquire fetch slot: %w", err)}
	}
	defer a.inflight.Release(1)

	ctx, cancel := context.WithTimeout(ctx, a.cfg.SourceTimeout)
	defer cancel()

	var (
		posts []models.Post
		err   error
	)
	switch src.Kind {
	case feedcache.KindCommunity:
		posts, err = a.posts.RecentPostsByCommunity(ctx, src.ID, q)
	case feedcache.KindAuthor:
		posts, err = a.posts.RecentPostsByAuthor(ctx, src.ID, q)
	default:
		err = fmt.Errorf("unknown source kind %q", src.Kind)
	}

	return sourceResult{source: src, posts: posts, err: err}
}

// resolveSources lists the viewer's communities then followed authors.
func (a *Aggregator) resolveSources(ctx context.Context, viewerID uuid.UUID) ([]feedcache.SourceRef, error) {
	subs, err := withRetry(ctx, a.cfg.MembershipAttempts, func() ([]uuid.UUID, error) {
		return a.membership.Subscriptions(ctx, viewerID)
	})
	if err != nil {
		return nil, membershipError(err)
	}

	follows, err := withRetry(ctx, a.cfg.MembershipAttempts, func() ([]uuid.UUID, error) {
		return a.membership.Follows(ctx, viewerID)
	})
	if err != nil {
		return nil, membershipError(err)
	}

	sources := make([]feedcache.SourceRef, 0, len(subs)+len(follows))
	for _, id := range subs {
		sources = append(sources, feedcache.CommunitySource(id))
	}
	for _, id := range follows {
		sources = append(sources, feedcache.AuthorSource(id))
	}
	return sources, nil
}

func membershipError(err error) error {
	if _, ok := apperr.As(err); ok && !apperr.IsKind(err, apperr.KindDependencyUnavailable) {
		return err
	}
	return apperr.Unavailable(apperr.CodeMembershipDown, "membership service unavailable", err)
}

// withRetry retries operation with exponential backoff. Validation, lookup
// and access errors stop immediately.
func withRetry[T any](ctx context.Context, attempts int, operation func() (T, error)) (T, error) {
	var result T

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(50*time.Millisecond),
		backoff.WithMaxInterval(500*time.Millisecond),
	), uint64(attempts-1))

	err := backoff.Retry(func() error {
		var err error
		result, err = operation()
		if err == nil {
			return nil
		}
		if appErr, ok := apperr.As(err); ok && !apperr.Retryable(appErr) {
			return backoff.Permanent(err)
		}
		if errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))

	return result, err
}
