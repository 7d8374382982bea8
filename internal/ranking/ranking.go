package ranking

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/apperr"
)

type Sort string

const (
	SortNew           Sort = "new"
	SortTop           Sort = "top"
	SortHot           Sort = "hot"
	SortTrending      Sort = "trending"
	SortControversial Sort = "controversial"
	SortOld           Sort = "old" // comment listings only
)

// ParseFeedSort validates a feed sort mode. Empty means "hot".
func ParseFeedSort(s string) (Sort, error) {
	switch Sort(s) {
	case "":
		return SortHot, nil
	case SortNew, SortTop, SortHot, SortTrending, SortControversial:
		return Sort(s), nil
	}
	return "", apperr.Validation(apperr.CodeInvalidSort, "unsupported feed sort: "+s)
}

// ParseCommentSort validates a comment listing sort. Empty means "top".
func ParseCommentSort(s string) (Sort, error) {
	switch Sort(s) {
	case "":
		return SortTop, nil
	case SortNew, SortOld, SortTop, SortHot, SortControversial:
		return Sort(s), nil
	}
	return "", apperr.Validation(apperr.CodeInvalidSort, "unsupported comment sort: "+s)
}

// Config holds the tunable ranking constants.
type Config struct {
	HotRecentWindow     time.Duration
	HotRecentMultiplier float64
	HotDayWindow        time.Duration
	HotDayMultiplier    float64
	HotBaseMultiplier   float64

	TrendingWindow time.Duration
	TrendingWeight float64
}

var DefaultConfig = Config{
	HotRecentWindow:     time.Hour,
	HotRecentMultiplier: 2.0,
	HotDayWindow:        24 * time.Hour,
	HotDayMultiplier:    1.5,
	HotBaseMultiplier:   1.0,
	TrendingWindow:      24 * time.Hour,
	TrendingWeight:      0.1,
}

// Item is the snapshot of a post or comment that ranking looks at.
type Item struct {
	ID           uuid.UUID
	Score        int64
	Upvotes      int64
	Downvotes    int64
	CommentCount int64
	CreatedAt    time.Time
}

// AgeMultiplier returns the hot-band multiplier for an item of the given age.
func (c Config) AgeMultiplier(age time.Duration) float64 {
	switch {
	case age < c.HotRecentWindow:
		return c.HotRecentMultiplier
	case age < c.HotDayWindow:
		return c.HotDayMultiplier
	default:
		return c.HotBaseMultiplier
	}
}

func (c Config) HotScore(score int64, createdAt, now time.Time) float64 {
	return float64(score) * c.AgeMultiplier(now.Sub(createdAt))
}

// TrendingScore weights score by comments per hour over the trending window.
func (c Config) TrendingScore(score, recentComments int64) float64 {
	velocity := float64(recentComments) / c.TrendingWindow.Hours()
	return float64(score) * (1 + c.TrendingWeight*velocity)
}

// ControversialScore is high when both vote counts are high and close.
func ControversialScore(upvotes, downvotes int64) float64 {
	if upvotes <= 0 || downvotes <= 0 {
		return 0
	}
	low := math.Min(float64(upvotes), float64(downvotes))
	diff := math.Abs(float64(upvotes - downvotes))
	return low * (1 - diff/float64(upvotes+downvotes+1))
}

// KeyFor computes the ordering key of item. recentComments is only read for
// SortTrending; nil means the count is unavailable and the item is keyed as
// it would be under SortTop.
func (c Config) KeyFor(sort Sort, item Item, now time.Time, recentComments *int64) Key {
	key := Key{CreatedAt: item.CreatedAt.UnixNano(), ID: item.ID}

	switch sort {
	case SortNew:
	case SortOld:
		key.CreatedAt = -key.CreatedAt
	case SortTop:
		key.Primary = float64(item.Score)
	case SortHot:
		key.Primary = c.HotScore(item.Score, item.CreatedAt, now)
	case SortTrending:
		if recentComments == nil {
			key.Primary = float64(item.Score)
		} else {
			key.Primary = c.TrendingScore(item.Score, *recentComments)
		}
	case SortControversial:
		key.Primary = ControversialScore(item.Upvotes, item.Downvotes)
	}

	return key
}
