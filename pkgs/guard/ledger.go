package guard

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/goalpost/prediction-indexer/pkgs/contract"
	"github.com/goalpost/prediction-indexer/pkgs/events"
	"github.com/goalpost/prediction-indexer/pkgs/rediskeys"
)

// Ledger is the idempotency record of (participant, matchId) pairs already
// handed to the write path. The underlying contract write is not idempotent,
// so this is the only thing standing between a retried cycle and a
// permanently corrupted aggregate.
type Ledger interface {
	// AlreadyRecorded reports whether the pair was previously submitted.
	AlreadyRecorded(ctx context.Context, participant common.Address, matchID uint64) (bool, error)
	// MarkSubmitted records every pair in the batch. Called synchronously
	// with the submission attempt, before the write confirms, closing the
	// race window between "decide to write" and "write confirmed".
	MarkSubmitted(ctx context.Context, batch []contract.ResultEntry) error
	// Seed loads pairs derived from ResultRecorded confirmation events, so a
	// cold-started ledger doesn't resubmit history.
	Seed(ctx context.Context, recorded []*events.ResultRecordedEvent) error
}

// RedisLedger is a two-layer ledger: a local LRU in front of a redis set.
type RedisLedger struct {
	redis      *redis.Client
	keys       *rediskeys.KeyBuilder
	localCache *lru.Cache[string, bool]
}

// NewRedisLedger creates the ledger with a local LRU front cache
func NewRedisLedger(redisClient *redis.Client, keys *rediskeys.KeyBuilder, localCacheSize int) (*RedisLedger, error) {
	if localCacheSize <= 0 {
		localCacheSize = 10000
	}
	cache, err := lru.New[string, bool](localCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	return &RedisLedger{
		redis:      redisClient,
		keys:       keys,
		localCache: cache,
	}, nil
}

// AlreadyRecorded checks the local cache first, then the redis set
func (l *RedisLedger) AlreadyRecorded(ctx context.Context, participant common.Address, matchID uint64) (bool, error) {
	member := l.keys.RecordedPairMember(participant, matchID)

	// Fast path: local LRU (only positive hits are cached)
	if l.localCache.Contains(member) {
		log.Debugf("ledger hit (local cache): %s", member)
		return true, nil
	}

	seen, err := l.redis.SIsMember(ctx, l.keys.RecordedPairs(), member).Result()
	if err != nil {
		return false, fmt.Errorf("ledger SIsMember failed: %w", err)
	}
	if seen {
		l.localCache.Add(member, true)
	}
	return seen, nil
}

// MarkSubmitted adds every pair in the batch to the ledger in one SAdd
func (l *RedisLedger) MarkSubmitted(ctx context.Context, batch []contract.ResultEntry) error {
	if len(batch) == 0 {
		return nil
	}

	members := make([]interface{}, len(batch))
	for i, entry := range batch {
		member := l.keys.RecordedPairMember(entry.Participant, entry.MatchID)
		members[i] = member
		l.localCache.Add(member, true)
	}

	if err := l.redis.SAdd(ctx, l.keys.RecordedPairs(), members...).Err(); err != nil {
		return fmt.Errorf("ledger SAdd failed: %w", err)
	}

	log.Debugf("ledger marked %d pairs submitted", len(batch))
	return nil
}

// Seed backfills the ledger from ResultRecorded confirmation events. This is
// the reactive derivation the proactive ledger replaces; it only runs so
// pairs recorded before the ledger existed aren't resubmitted.
func (l *RedisLedger) Seed(ctx context.Context, recorded []*events.ResultRecordedEvent) error {
	if len(recorded) == 0 {
		return nil
	}

	members := make([]interface{}, len(recorded))
	for i, ev := range recorded {
		members[i] = l.keys.RecordedPairMember(ev.Participant, ev.MatchID)
	}

	added, err := l.redis.SAdd(ctx, l.keys.RecordedPairs(), members...).Result()
	if err != nil {
		return fmt.Errorf("ledger seed failed: %w", err)
	}

	if added > 0 {
		log.Infof("ledger seeded with %d pairs from confirmation events (%d already present)",
			added, int64(len(recorded))-added)
	}
	return nil
}
