package feed

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/feedcache"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/ranking"
)

const (
	topSourcesCount = 5
	refreshLimit    = MaxLimit
)

type SourceStat struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	PostCount    int       `json:"post_count"`
	AverageScore float64   `json:"avg_score"`
}

type Stats struct {
	TotalSubscriptions int          `json:"total_subscriptions"`
	TotalFollowing     int          `json:"total_following"`
	FeedItemsCount     int          `json:"feed_items_count"`
	AverageScore       float64      `json:"average_score"`
	LastRefreshAt      *time.Time   `json:"last_refresh_at"`
	TopCommunities     []SourceStat `json:"top_communities"`
	TopAuthors         []SourceStat `json:"top_authors"`
}

// Stats summarizes the viewer's first feed window.
func (a *Aggregator) Stats(ctx context.Context, viewerID uuid.UUID) (*Stats, error) {
	set, err := a.candidates(ctx, viewerID, a.window(refreshLimit, ranking.SortNew), nil)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TopCommunities: []SourceStat{},
		TopAuthors:     []SourceStat{},
	}
	for _, src := range set.sources {
		switch src.Kind {
		case feedcache.KindCommunity:
			stats.TotalSubscriptions++
		case feedcache.KindAuthor:
			stats.TotalFollowing++
		}
	}
	if !set.builtAt.IsZero() {
		builtAt := set.builtAt
		stats.LastRefreshAt = &builtAt
	}

	entries := applyFilters(set.entries, Filters{IncludeNSFW: true, IncludeSpoilers: true})
	stats.FeedItemsCount = len(entries)
	if len(entries) == 0 {
		return stats, nil
	}

	var total int64
	communities := make(map[uuid.UUID]*sourceTally)
	authors := make(map[uuid.UUID]*sourceTally)
	for _, e := range entries {
		total += e.PostScore
		tally(communities, e.CommunityID, e.CommunityName, e.PostScore)
		tally(authors, e.AuthorID, e.AuthorName, e.PostScore)
	}

	stats.AverageScore = float64(total) / float64(len(entries))
	stats.TopCommunities = topSources(communities)
	stats.TopAuthors = topSources(authors)
	return stats, nil
}

// Refresh drops the viewer's materialized feeds and rebuilds the newest page.
func (a *Aggregator) Refresh(ctx context.Context, viewerID uuid.UUID) (*Page, error) {
	if err := a.cache.InvalidateUser(ctx, viewerID); err != nil {
		return nil, err
	}
	return a.GetFeed(ctx, viewerID, Query{Sort: ranking.SortNew, Limit: refreshLimit})
}

type sourceTally struct {
	id    uuid.UUID
	name  string
	count int
	score int64
}

func tally(m map[uuid.UUID]*sourceTally, id uuid.UUID, name string, score int64) {
	t, ok := m[id]
	if !ok {
		t = &sourceTally{id: id, name: name}
		m[id] = t
	}
	t.count++
	t.score += score
}

func topSources(m map[uuid.UUID]*sourceTally) []SourceStat {
	stats := make([]SourceStat, 0, len(m))
	for _, t := range m {
		stats = append(stats, SourceStat{
			ID:           t.id,
			Name:         t.name,
			PostCount:    t.count,
			AverageScore: float64(t.score) / float64(t.count),
		})
	}

	slices.SortFunc(stats, func(a, b SourceStat) int {
		if a.PostCount != b.PostCount {
			return b.PostCount - a.PostCount
		}
		if a.Name != b.Name {
			if a.Name < b.Name {
				return -1
			}
			return 1
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})

	if len(stats) > topSourcesCount {
		stats = stats[:topSourcesCount]
	}
	return stats
}
