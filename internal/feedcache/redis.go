package feedcache

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

const (
	snapshotPrefix   = "feed:snap:"
	userIndexPrefix  = "feed:user:"
	sourceIdxPrefix  = "feed:src:"
	userMarkPrefix   = "feed:inv:user:"
	sourceMarkPrefix = "feed:inv:src:"
)

// Redis is a materializer shared by every API instance. Snapshots expire
// after ttl; index sets live twice as long so they outlast their members.
type Redis struct {
	client rueidis.Client
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewRedis(client rueidis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	return &Redis{
		client: client,
		ttl:    ttl,
		logger: logger.Named("feedcache"),
		now:    time.Now,
	}
}

func (r *Redis) Get(ctx context.Context, userID uuid.UUID, key string) (*Snapshot, bool, error) {
	data, err := r.client.Do(ctx, r.client.B().Get().Key(snapshotPrefix+snapshotKey(userID, key)).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get feed snapshot: %w", err)
	}

	var snap Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return nil, false, fmt.Errorf("failed to decode feed snapshot: %w", err)
	}
	return &snap, true, nil
}

func (r *Redis) Put(ctx context.Context, snap *Snapshot) error {
	stale, err := r.stale(ctx, snap)
	if err != nil {
		return err
	}
	if stale {
		r.logger.Debug("Dropping snapshot invalidated during build",
			zap.String("user_id", snap.UserID.String()),
			zap.String("key", snap.Key))
		return nil
	}

	data, err := sonic.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode feed snapshot: %w", err)
	}

	k := snapshotPrefix + snapshotKey(snap.UserID, snap.Key)
	indexTTL := int64((2 * r.ttl).Seconds())
	userIdx := userIndexPrefix + snap.UserID.String()

	cmds := rueidis.Commands{
		r.client.B().Set().Key(k).Value(rueidis.BinaryString(data)).Ex(r.ttl).Build(),
		r.client.B().Sadd().Key(userIdx).Member(k).Build(),
		r.client.B().Expire().Key(userIdx).Seconds(indexTTL).Build(),
	}
	for _, src := range snap.Sources {
		srcIdx := sourceIdxPrefix + src.String()
		cmds = append(cmds,
			r.client.B().Sadd().Key(srcIdx).Member(snap.UserID.String()).Build(),
			r.client.B().Expire().Key(srcIdx).Seconds(indexTTL).Build(),
		)
	}

	for _, resp := range r.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("failed to store feed snapshot: %w", err)
		}
	}
	return nil
}

func (r *Redis) InvalidateUser(ctx context.Context, userID uuid.UUID) error {
	if err := r.mark(ctx, userMarkPrefix+userID.String()); err != nil {
		return err
	}

	userIdx := userIndexPrefix + userID.String()
	keys, err := r.client.Do(ctx, r.client.B().Smembers().Key(userIdx).Build()).AsStrSlice()
	if err != nil && !rueidis.IsRedisNil(err) {
		return fmt.Errorf("failed to read feed index: %w", err)
	}

	// One DEL per key: snapshot keys hash to different cluster slots.
	keys = append(keys, userIdx)
	cmds := make(rueidis.Commands, 0, len(keys))
	for _, k := range keys {
		cmds = append(cmds, r.client.B().Del().Key(k).Build())
	}
	for _, resp := range r.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("failed to delete feed snapshots: %w", err)
		}
	}
	return nil
}

func (r *Redis) InvalidateSources(ctx context.Context, sources ...SourceRef) error {
	affected := make(map[string]struct{})
	for _, src := range sources {
		if err := r.mark(ctx, sourceMarkPrefix+src.String()); err != nil {
			return err
		}

		srcIdx := sourceIdxPrefix + src.String()
		users, err := r.client.Do(ctx, r.client.B().Smembers().Key(srcIdx).Build()).AsStrSlice()
		if err != nil && !rueidis.IsRedisNil(err) {
			return fmt.Errorf("failed to read source index: %w", err)
		}
		for _, u := range users {
			affected[u] = struct{}{}
		}

		if err := r.client.Do(ctx, r.client.B().Del().Key(srcIdx).Build()).Error(); err != nil {
			return fmt.Errorf("failed to delete source index: %w", err)
		}
	}

	for u := range affected {
		userID, err := uuid.Parse(u)
		if err != nil {
			continue
		}
		if err := r.InvalidateUser(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Redis) Close() error {
	r.client.Close()
	return nil
}

func (r *Redis) mark(ctx context.Context, key string) error {
	now := fmt.Sprintf("%d", r.now().UnixNano())
	err := r.client.Do(ctx, r.client.B().Set().Key(key).Value(now).Ex(markRetention).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to record invalidation: %w", err)
	}
	return nil
}

// stale reports whether any invalidation mark touching snap is at or after
// the moment its build started.
func (r *Redis) stale(ctx context.Context, snap *Snapshot) (bool, error) {
	keys := make([]string, 0, len(snap.Sources)+1)
	keys = append(keys, userMarkPrefix+snap.UserID.String())
	for _, src := range snap.Sources {
		keys = append(keys, sourceMarkPrefix+src.String())
	}

	cmds := make(rueidis.Commands, 0, len(keys))
	for _, k := range keys {
		cmds = append(cmds, r.client.B().Get().Key(k).Build())
	}

	started := snap.StartedAt.UnixNano()
	for _, resp := range r.client.DoMulti(ctx, cmds...) {
		mark, err := resp.AsInt64()
		if rueidis.IsRedisNil(err) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to read invalidation marks: %w", err)
		}
		if mark >= started {
			return true, nil
		}
	}
	return false, nil
}
