package stats

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/goalpost/prediction-indexer/pkgs/contract"
)

// StatsSource provides the authoritative per-user aggregate.
// *contract.Reader satisfies it.
type StatsSource interface {
	GetUserStats(ctx context.Context, participant common.Address) (contract.UserAggregateStats, error)
}

// Config for the aggregate reader
type Config struct {
	Parallelism int           // Concurrent point reads
	ReadTimeout time.Duration // Per-read timeout; 0 disables
}

// Reader fetches per-participant aggregates in bounded parallel
type Reader struct {
	source StatsSource
	cfg    Config
}

// NewReader creates an aggregate stats reader
func NewReader(source StatsSource, cfg Config) *Reader {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &Reader{source: source, cfg: cfg}
}

// FetchAll reads every participant's aggregate. A failed individual read
// degrades that participant to excluded (returned in the second slice), never
// a batch failure. Order of the returned stats is unspecified.
func (r *Reader) FetchAll(ctx context.Context, participants []common.Address) ([]contract.UserAggregateStats, []common.Address) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		fetched  []contract.UserAggregateStats
		excluded []common.Address
	)
	sem := make(chan struct{}, r.cfg.Parallelism)

	for _, p := range participants {
		select {
		case <-ctx.Done():
			// Remaining participants degrade to excluded
			mu.Lock()
			excluded = append(excluded, p)
			mu.Unlock()
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(p common.Address) {
			defer wg.Done()
			defer func() { <-sem }()

			readCtx := ctx
			if r.cfg.ReadTimeout > 0 {
				var cancel context.CancelFunc
				readCtx, cancel = context.WithTimeout(ctx, r.cfg.ReadTimeout)
				defer cancel()
			}

			stats, err := r.source.GetUserStats(readCtx, p)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Excluded from the leaderboard, NOT treated as zero activity
				excluded = append(excluded, p)
				log.WithFields(log.Fields{
					"participant": p.Hex(),
				}).Warnf("aggregate read failed, excluding participant: %v", err)
				return
			}
			fetched = append(fetched, stats)
		}(p)
	}

	wg.Wait()

	if len(excluded) > 0 {
		log.Warnf("aggregate reads: %d fetched, %d excluded", len(fetched), len(excluded))
	}

	return fetched, excluded
}
