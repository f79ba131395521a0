package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/goalpost/prediction-indexer/pkgs/leaderboard"
	"github.com/goalpost/prediction-indexer/pkgs/rediskeys"
)

// KV is the minimal key-value surface the snapshot store needs.
// Get's second return reports whether the key existed.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisKV adapts a redis client to the KV interface
type RedisKV struct {
	Client *redis.Client
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.Client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) Del(ctx context.Context, keys ...string) error {
	return r.Client.Del(ctx, keys...).Err()
}

// Store holds the materialized leaderboard: an in-memory snapshot serving all
// reads, backed by a persisted blob so restarts don't start cold. The
// snapshot is replaced wholesale, never partially mutated.
type Store struct {
	kv      KV
	keys    *rediskeys.KeyBuilder
	current atomic.Pointer[leaderboard.Snapshot]
}

// NewStore creates a snapshot store
func NewStore(kv KV, keys *rediskeys.KeyBuilder) *Store {
	s := &Store{kv: kv, keys: keys}
	s.current.Store(&leaderboard.Snapshot{})
	return s
}

// Load restores the persisted snapshot into memory. A missing or unreadable
// blob leaves the empty snapshot in place; the next regeneration fills it.
func (s *Store) Load(ctx context.Context) error {
	blob, found, err := s.kv.Get(ctx, s.keys.Leaderboard())
	if err != nil {
		return fmt.Errorf("failed to load leaderboard blob: %w", err)
	}
	if !found {
		log.Info("no persisted leaderboard found, starting empty")
		return nil
	}

	var snap leaderboard.Snapshot
	if err := json.Unmarshal([]byte(blob), &snap); err != nil {
		return fmt.Errorf("failed to decode leaderboard blob: %w", err)
	}

	// The timestamp lives in its own key so staleness checks don't parse the blob
	if raw, found, err := s.kv.Get(ctx, s.keys.LeaderboardUpdated()); err == nil && found {
		if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
			snap.LastUpdated = time.Unix(unix, 0).UTC()
		}
	}

	s.current.Store(&snap)
	log.Infof("restored leaderboard snapshot: %d entries, updated %s",
		len(snap.Entries), snap.LastUpdated.Format(time.RFC3339))
	return nil
}

// Get returns the current snapshot, possibly empty or stale. Never blocks on
// a regeneration in progress.
func (s *Store) Get() *leaderboard.Snapshot {
	return s.current.Load()
}

// Replace atomically swaps in a new snapshot and persists it. Persistence
// failure is logged and non-fatal: the in-memory snapshot still serves reads.
func (s *Store) Replace(ctx context.Context, entries []leaderboard.Entry) *leaderboard.Snapshot {
	snap := &leaderboard.Snapshot{
		Entries:     entries,
		LastUpdated: time.Now().UTC(),
	}
	s.current.Store(snap)

	blob, err := json.Marshal(snap)
	if err != nil {
		log.Errorf("failed to encode leaderboard snapshot: %v", err)
		return snap
	}

	if err := s.kv.Set(ctx, s.keys.Leaderboard(), string(blob), 0); err != nil {
		log.Errorf("failed to persist leaderboard snapshot (read path unaffected): %v", err)
		return snap
	}
	if err := s.kv.Set(ctx, s.keys.LeaderboardUpdated(),
		strconv.FormatInt(snap.LastUpdated.Unix(), 10), 0); err != nil {
		log.Errorf("failed to persist leaderboard timestamp: %v", err)
	}

	log.Infof("💾 leaderboard snapshot replaced: %d entries", len(entries))
	return snap
}
