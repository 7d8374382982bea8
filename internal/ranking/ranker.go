package ranking

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecentCommentCounter returns, per post, the number of comments created
// since the given instant. Missing posts count as unavailable.
type RecentCommentCounter interface {
	RecentCommentCounts(ctx context.Context, postIDs []uuid.UUID, since time.Time) (map[uuid.UUID]int64, error)
}

type Ranked struct {
	Item Item
	Key  Key
}

type Ranker struct {
	cfg     Config
	counter RecentCommentCounter
	logger  *zap.Logger
}

// NewRanker creates a ranker. counter may be nil, in which case trending
// ranks every item as top.
func NewRanker(cfg Config, counter RecentCommentCounter, logger *zap.Logger) *Ranker {
	return &Ranker{
		cfg:     cfg,
		counter: counter,
		logger:  logger.Named("ranking"),
	}
}

// Rank keys and sorts items. degraded reports that at least one item was
// ranked without its recent comment count.
func (r *Ranker) Rank(ctx context.Context, sort Sort, items []Item, now time.Time) (ranked []Ranked, degraded bool) {
	var counts map[uuid.UUID]int64
	if sort == SortTrending {
		counts, degraded = r.recentCounts(ctx, items, now)
	}

	ranked = make([]Ranked, len(items))
	for i, item := range items {
		var recent *int64
		if count, ok := counts[item.ID]; ok {
			recent = &count
		} else if sort == SortTrending {
			degraded = true
		}
		ranked[i] = Ranked{Item: item, Key: r.cfg.KeyFor(sort, item, now, recent)}
	}

	slices.SortFunc(ranked, func(a, b Ranked) int {
		return Compare(a.Key, b.Key)
	})

	return ranked, degraded
}

func (r *Ranker) recentCounts(ctx context.Context, items []Item, now time.Time) (map[uuid.UUID]int64, bool) {
	if r.counter == nil || len(items) == 0 {
		return nil, len(items) > 0
	}

	ids := make([]uuid.UUID, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}

	counts, err := r.counter.RecentCommentCounts(ctx, ids, now.Add(-r.cfg.TrendingWindow))
	if err != nil {
		r.logger.Warn("Recent comment counts unavailable, trending falls back to top",
			zap.Int("items", len(items)),
			zap.Error(err))
		return nil, true
	}

	return counts, false
}
