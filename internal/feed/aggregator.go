package feed

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/apperr"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/cursor"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/feedcache"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/models"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/ranking"
)

const (
	MinLimit = 1
	MaxLimit = 100
)

// Membership resolves the viewer's sources.
type Membership interface {
	Subscriptions(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	Follows(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// SourceQuery bounds a per-source fetch: the Limit most recent posts,
// created at or before Before when set.
type SourceQuery struct {
	Limit  int
	Before *time.Time
}

// PostSource is the persistence range query over posts.
type PostSource interface {
	RecentPostsByCommunity(ctx context.Context, communityID uuid.UUID, q SourceQuery) ([]models.Post, error)
	RecentPostsByAuthor(ctx context.Context, authorID uuid.UUID, q SourceQuery) ([]models.Post, error)
}

type VoteLookup interface {
	VotesFor(ctx context.Context, voterID uuid.UUID, targetType models.VoteTargetType, targetIDs []uuid.UUID) (map[uuid.UUID]models.VoteDirection, error)
}

type Config struct {
	SourceCeiling      int
	Fanout             int
	SourceTimeout      time.Duration
	MaxInflight        int64
	MembershipAttempts int
	// BuildTimeout bounds a shared candidate build, which outlives the
	// request that started it.
	BuildTimeout time.Duration
}

var DefaultConfig = Config{
	SourceCeiling:      200,
	Fanout:             8,
	SourceTimeout:      2 * time.Second,
	MaxInflight:        64,
	MembershipAttempts: 3,
	BuildTimeout:       10 * time.Second,
}

type Deps struct {
	Membership Membership
	Posts      PostSource
	Votes      VoteLookup
	Ranker     *ranking.Ranker
	Cursors    *cursor.Codec
	Cache      feedcache.Store
}

type Aggregator struct {
	membership Membership
	posts      PostSource
	votes      VoteLookup
	ranker     *ranking.Ranker
	cursors    *cursor.Codec
	cache      feedcache.Store
	cfg        Config
	logger     *zap.Logger

	inflight *semaphore.Weighted
	builds   singleflight.Group
	now      func() time.Time
}

func NewAggregator(deps Deps, cfg Config, logger *zap.Logger) *Aggregator {
	if cfg.SourceCeiling < 1 {
		cfg.SourceCeiling = DefaultConfig.SourceCeiling
	}
	if cfg.Fanout < 1 {
		cfg.Fanout = DefaultConfig.Fanout
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = DefaultConfig.SourceTimeout
	}
	if cfg.MaxInflight < 1 {
		cfg.MaxInflight = DefaultConfig.MaxInflight
	}
	if cfg.MembershipAttempts < 1 {
		cfg.MembershipAttempts = DefaultConfig.MembershipAttempts
	}
	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = DefaultConfig.BuildTimeout
	}
	cache := deps.Cache
	if cache == nil {
		cache = feedcache.Noop{}
	}

	return &Aggregator{
		membership: deps.Membership,
		posts:      deps.Posts,
		votes:      deps.Votes,
		ranker:     deps.Ranker,
		cursors:    deps.Cursors,
		cache:      cache,
		cfg:        cfg,
		logger:     logger.Named("feed"),
		inflight:   semaphore.NewWeighted(cfg.MaxInflight),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type Filters struct {
	IncludeNSFW     bool
	IncludeSpoilers bool
	CommunityID     *uuid.UUID
	AuthorID        *uuid.UUID
}

type Query struct {
	Sort    ranking.Sort
	Limit   int
	Cursor  string
	Filters Filters
}

type Page struct {
	Items         []models.FeedEntry    `json:"items"`
	NextCursor    *string               `json:"next_cursor"`
	HasMore       bool                  `json:"has_more"`
	Partial       bool                  `json:"partial"`
	FailedSources []feedcache.SourceRef `json:"failed_sources,omitempty"`
	Degraded      bool                  `json:"degraded,omitempty"`
	Cached        bool                  `json:"cached"`
	GeneratedAt   time.Time             `json:"generated_at"`
}

// PartialError describes the failed sources of a partial page, or nil.
func (p *Page) PartialError() *apperr.Error {
	if !p.Partial {
		return nil
	}
	return apperr.New(apperr.KindPartialUnavailable, apperr.CodeSourcesFailed,
		"some feed sources could not be loaded", nil)
}

// GetFeed returns one page of the viewer's feed.
func (a *Aggregator) GetFeed(ctx context.Context, viewerID uuid.UUID, q Query) (*Page, error) {
	if q.Limit < MinLimit || q.Limit > MaxLimit {
		return nil, apperr.Validation(apperr.CodeInvalidLimit, "limit must be between 1 and 100")
	}
	sort, err := ranking.ParseFeedSort(string(q.Sort))
	if err != nil {
		return nil, err
	}

	asOf := a.now()
	pageNo := 1
	var after *ranking.Key
	if q.Cursor != "" {
		cur, err := a.cursors.Decode(q.Cursor)
		if err != nil {
			return nil, err
		}
		if cur.Sort != sort {
			return nil, apperr.Validation(apperr.CodeInvalidCursor, "cursor was issued for a different sort")
		}
		asOf = cur.AsOf
		pageNo = cur.Page + 1
		after = &cur.Key
	}

	var before *time.Time
	if sort == ranking.SortNew && after != nil {
		t := time.Unix(0, after.CreatedAt).UTC()
		before = &t
	}

	window := a.window(q.Limit, sort)
	for {
		set, err := a.candidates(ctx, viewerID, window, before)
		if err != nil {
			return nil, err
		}

		entries := applyFilters(set.entries, q.Filters)
		ranked, degraded := a.rank(ctx, sort, entries, asOf)
		remaining := cutAfter(ranked, after)

		// A saturated source may hold more qualifying posts than the window
		// fetched; widen before concluding there is no next page.
		if len(remaining) <= q.Limit && set.saturated && window < a.cfg.SourceCeiling {
			window = min(window*2, a.cfg.SourceCeiling)
			continue
		}

		return a.page(ctx, viewerID, sort, q.Limit, pageNo, asOf, remaining, set, degraded)
	}
}

// window is how many posts to fetch per source. Only new is keyset
// paginated; the score sorts rank a fixed set of the most recent
// SourceCeiling posts per source so every page sees the same candidates.
func (a *Aggregator) window(limit int, sort ranking.Sort) int {
	if sort != ranking.SortNew {
		return a.cfg.SourceCeiling
	}
	return min(2*limit, a.cfg.SourceCeiling)
}

type rankedEntry struct {
	entry models.FeedEntry
	key   ranking.Key
}

func (a *Aggregator) rank(ctx context.Context, sort ranking.Sort, entries []models.FeedEntry, asOf time.Time) ([]rankedEntry, bool) {
	byID := make(map[uuid.UUID]models.FeedEntry, len(entries))
	items := make([]ranking.Item, len(entries))
	for i, e := range entries {
		byID[e.PostID] = e
		items[i] = ranking.Item{
			ID:           e.PostID,
			Score:        e.PostScore,
			Upvotes:      e.Upvotes,
			Downvotes:    e.Downvotes,
			CommentCount: e.CommentCount,
			CreatedAt:    e.CreatedAt,
		}
	}

	ranked, degraded := a.ranker.Rank(ctx, sort, items, asOf)
	out := make([]rankedEntry, len(ranked))
	for i, r := range ranked {
		out[i] = rankedEntry{entry: byID[r.Item.ID], key: r.Key}
	}
	return out, degraded
}

// cutAfter drops everything up to and including the cursor position.
func cutAfter(ranked []rankedEntry, after *ranking.Key) []rankedEntry {
	if after == nil {
		return ranked
	}
	for i, r := range ranked {
		if ranking.After(r.key, *after) {
			return ranked[i:]
		}
	}
	return nil
}

func (a *Aggregator) page(ctx context.Context, viewerID uuid.UUID, sort ranking.Sort, limit, pageNo int, asOf time.Time, remaining []rankedEntry, set *candidateSet, degraded bool) (*Page, error) {
	page := &Page{
		Items:         make([]models.FeedEntry, 0, min(limit, len(remaining))),
		HasMore:       len(remaining) > limit,
		Partial:       len(set.failed) > 0,
		FailedSources: set.failed,
		Degraded:      degraded,
		Cached:        set.cached,
		GeneratedAt:   a.now(),
	}

	take := remaining
	if page.HasMore {
		take = remaining[:limit]
	}
	for _, r := range take {
		page.Items = append(page.Items, r.entry)
	}

	if page.HasMore {
		token, err := a.cursors.Encode(cursor.Cursor{
			Sort: sort,
			Key:  take[len(take)-1].key,
			AsOf: asOf,
			Page: pageNo,
		})
		if err != nil {
			return nil, apperr.New(apperr.KindDependencyUnavailable, apperr.CodeFeedUnavailable, "failed to encode cursor", err)
		}
		page.NextCursor = &token
	}

	a.annotateVotes(ctx, viewerID, page.Items)
	return page, nil
}

// annotateVotes is best effort: the feed is served without the annotation
// if the lookup fails.
func (a *Aggregator) annotateVotes(ctx context.Context, viewerID uuid.UUID, items []models.FeedEntry) {
	if a.votes == nil || len(items) == 0 {
		return
	}

	ids := make([]uuid.UUID, len(items))
	for i, item := range items {
		ids[i] = item.PostID
	}

	votes, err := a.votes.VotesFor(ctx, viewerID, models.TargetPost, ids)
	if err != nil {
		a.logger.Warn("Failed to load viewer votes", zap.Error(err))
		return
	}
	for i := range items {
		items[i].MyVote = votes[items[i].PostID]
	}
}
