package feedcache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/models"
)

type SourceKind string

const (
	KindCommunity SourceKind = "community"
	KindAuthor    SourceKind = "author"
)

// SourceRef names a feed source: a community or a followed author.
type SourceRef struct {
	Kind SourceKind `json:"kind"`
	ID   uuid.UUID  `json:"id"`
}

func CommunitySource(id uuid.UUID) SourceRef {
	return SourceRef{Kind: KindCommunity, ID: id}
}

func AuthorSource(id uuid.UUID) SourceRef {
	return SourceRef{Kind: KindAuthor, ID: id}
}

func (s SourceRef) String() string {
	return string(s.Kind) + ":" + s.ID.String()
}

// Flag returns the feed entry attribution for this source.
func (s SourceRef) Flag() models.FeedSource {
	if s.Kind == KindAuthor {
		return models.SourceAuthor
	}
	return models.SourceCommunity
}

// Snapshot is a materialized candidate set of a viewer's feed: merged and
// deduplicated, but not filtered or ranked.
type Snapshot struct {
	UserID    uuid.UUID          `json:"user_id"`
	Key       string             `json:"key"`
	Entries   []models.FeedEntry `json:"entries"`
	Sources   []SourceRef        `json:"sources"`
	Saturated bool               `json:"saturated"`
	StartedAt time.Time          `json:"started_at"`
	BuiltAt   time.Time          `json:"built_at"`
}

// Invalidation marks are kept this long so a build that started before an
// invalidation is never published after it.
const markRetention = time.Minute

const pruneThreshold = 4096

// Store is the feed materializer. Implementations are safe for concurrent
// use. Snapshots must be treated as read-only by callers.
type Store interface {
	Get(ctx context.Context, userID uuid.UUID, key string) (*Snapshot, bool, error)
	Put(ctx context.Context, snap *Snapshot) error
	// InvalidateUser drops every snapshot of the user.
	InvalidateUser(ctx context.Context, userID uuid.UUID) error
	// InvalidateSources drops every snapshot built from any of the sources.
	InvalidateSources(ctx context.Context, sources ...SourceRef) error
	Close() error
}

func snapshotKey(userID uuid.UUID, key string) string {
	return fmt.Sprintf("%s|%s", userID, key)
}

// Noop never stores anything. Used when materialization is disabled.
type Noop struct{}

func (Noop) Get(context.Context, uuid.UUID, string) (*Snapshot, bool, error) { return nil, false, nil }
func (Noop) Put(context.Context, *Snapshot) error                            { return nil }
func (Noop) InvalidateUser(context.Context, uuid.UUID) error                 { return nil }
func (Noop) InvalidateSources(context.Context, ...SourceRef) error           { return nil }
func (Noop) Close() error                                                    { return nil }
