package feedcache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// LRU is an in-process materializer with a size bound and a TTL backstop.
type LRU struct {
	cache  *expirable.LRU[string, *Snapshot]
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	userKeys    map[uuid.UUID]map[string]struct{}
	sourceUsers map[SourceRef]map[uuid.UUID]struct{}
	userMarks   map[uuid.UUID]time.Time
	sourceMarks map[SourceRef]time.Time

	// Evictions are queued by the cache callback, which may run while mu
	// is held, and applied to the indexes on the next write.
	evictMu sync.Mutex
	evicted []eviction
}

type eviction struct {
	key  string
	snap *Snapshot
}

func NewLRU(size int, ttl time.Duration, logger *zap.Logger) *LRU {
	l := &LRU{
		logger:      logger.Named("feedcache"),
		now:         time.Now,
		userKeys:    make(map[uuid.UUID]map[string]struct{}),
		sourceUsers: make(map[SourceRef]map[uuid.UUID]struct{}),
		userMarks:   make(map[uuid.UUID]time.Time),
		sourceMarks: make(map[SourceRef]time.Time),
	}
	l.cache = expirable.NewLRU[string, *Snapshot](size, l.onEvict, ttl)
	return l
}

func (l *LRU) Get(_ context.Context, userID uuid.UUID, key string) (*Snapshot, bool, error) {
	snap, ok := l.cache.Get(snapshotKey(userID, key))
	return snap, ok, nil
}

// Put stores snap unless an invalidation touching it happened after the
// build started.
func (l *LRU) Put(_ context.Context, snap *Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropEvictedLocked()

	if l.staleLocked(snap) {
		l.logger.Debug("Dropping snapshot invalidated during build",
			zap.String("user_id", snap.UserID.String()),
			zap.String("key", snap.Key))
		return nil
	}

	k := snapshotKey(snap.UserID, snap.Key)
	keys, ok := l.userKeys[snap.UserID]
	if !ok {
		keys = make(map[string]struct{})
		l.userKeys[snap.UserID] = keys
	}
	keys[k] = struct{}{}

	for _, src := range snap.Sources {
		users, ok := l.sourceUsers[src]
		if !ok {
			users = make(map[uuid.UUID]struct{})
			l.sourceUsers[src] = users
		}
		users[snap.UserID] = struct{}{}
	}

	l.cache.Add(k, snap)
	return nil
}

func (l *LRU) InvalidateUser(_ context.Context, userID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropEvictedLocked()

	now := l.now()
	l.invalidateUserLocked(userID, now)
	l.pruneMarksLocked(now)
	return nil
}

func (l *LRU) InvalidateSources(_ context.Context, sources ...SourceRef) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropEvictedLocked()

	now := l.now()
	affected := 0
	for _, src := range sources {
		l.sourceMarks[src] = now
		for userID := range l.sourceUsers[src] {
			l.invalidateUserLocked(userID, now)
			affected++
		}
		delete(l.sourceUsers, src)
	}
	l.pruneMarksLocked(now)

	if affected > 0 {
		l.logger.Debug("Invalidated feed snapshots",
			zap.Int("sources", len(sources)),
			zap.Int("users", affected))
	}
	return nil
}

// Len returns the number of live snapshots.
func (l *LRU) Len() int {
	return l.cache.Len()
}

func (l *LRU) Close() error {
	l.cache.Purge()
	return nil
}

func (l *LRU) invalidateUserLocked(userID uuid.UUID, now time.Time) {
	l.userMarks[userID] = now
	for k := range l.userKeys[userID] {
		l.cache.Remove(k)
	}
	delete(l.userKeys, userID)
}

func (l *LRU) onEvict(key string, snap *Snapshot) {
	l.evictMu.Lock()
	l.evicted = append(l.evicted, eviction{key: key, snap: snap})
	l.evictMu.Unlock()
}

// dropEvictedLocked removes snapshots the cache evicted (size bound or TTL)
// from the user and source indexes.
func (l *LRU) dropEvictedLocked() {
	l.evictMu.Lock()
	evicted := l.evicted
	l.evicted = nil
	l.evictMu.Unlock()

	for _, ev := range evicted {
		if _, live := l.cache.Peek(ev.key); live {
			continue // re-added since
		}

		userID := ev.snap.UserID
		keys := l.userKeys[userID]
		delete(keys, ev.key)
		if len(keys) == 0 {
			delete(l.userKeys, userID)
		}

		for _, src := range ev.snap.Sources {
			if l.userReadsLocked(userID, src) {
				continue
			}
			users := l.sourceUsers[src]
			delete(users, userID)
			if len(users) == 0 {
				delete(l.sourceUsers, src)
			}
		}
	}
}

// userReadsLocked reports whether a live snapshot of userID was built from src.
func (l *LRU) userReadsLocked(userID uuid.UUID, src SourceRef) bool {
	for k := range l.userKeys[userID] {
		snap, ok := l.cache.Peek(k)
		if ok && slices.Contains(snap.Sources, src) {
			return true
		}
	}
	return false
}

func (l *LRU) staleLocked(snap *Snapshot) bool {
	if mark, ok := l.userMarks[snap.UserID]; ok && !mark.Before(snap.StartedAt) {
		return true
	}
	for _, src := range snap.Sources {
		if mark, ok := l.sourceMarks[src]; ok && !mark.Before(snap.StartedAt) {
			return true
		}
	}
	return false
}

// pruneMarksLocked forgets marks older than any build can run.
func (l *LRU) pruneMarksLocked(now time.Time) {
	if len(l.userMarks)+len(l.sourceMarks) < pruneThreshold {
		return
	}

	horizon := now.Add(-markRetention)
	for id, mark := range l.userMarks {
		if mark.Before(horizon) {
			delete(l.userMarks, id)
		}
	}
	for src, mark := range l.sourceMarks {
		if mark.Before(horizon) {
			delete(l.sourceMarks, src)
		}
	}
}
