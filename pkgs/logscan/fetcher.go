package logscan

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	log "github.com/sirupsen/logrus"

	"github.com/goalpost/prediction-indexer/pkgs/retry"
)

// LogSource is the slice of an Ethereum client the fetcher needs.
// *ethclient.Client satisfies it.
type LogSource interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Config for the chunked fetcher
type Config struct {
	SourceAddress string        // Contract emitting the events
	MaxChunkSize  uint64        // Hard per-query span limit enforced by the log source
	Parallelism   int           // Concurrent chunk queries per wave
	MaxRetries    int           // Per-chunk retry budget
	RetryBase     time.Duration // Initial backoff for a failed chunk
	RetryCeiling  time.Duration // Backoff ceiling
	StartBlock    uint64        // Contract origin block; 0 means unknown
	FallbackSpan  uint64        // Look-back window used when StartBlock is 0
}

// Fetcher issues bounded, parallel range queries against the log source
type Fetcher struct {
	source       LogSource
	contractAddr common.Address
	cfg          Config
}

// Result carries the fetched logs plus completeness diagnostics. A nonzero
// FailedChunks means the log set may be incomplete: chunks whose retry budget
// was exhausted are treated as empty and logged, never surfaced as a batch
// failure.
type Result struct {
	Logs         []types.Log
	FromBlock    uint64
	ToBlock      uint64
	TotalChunks  int
	FailedChunks int
}

// Complete reports whether every chunk was fetched successfully
func (r *Result) Complete() bool {
	return r.FailedChunks == 0
}

// NewFetcher creates a chunked log fetcher
func NewFetcher(source LogSource, cfg Config) *Fetcher {
	if cfg.MaxChunkSize == 0 {
		cfg.MaxChunkSize = 10000
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryCeiling == 0 {
		cfg.RetryCeiling = 8 * time.Second
	}

	return &Fetcher{
		source:       source,
		contractAddr: common.HexToAddress(cfg.SourceAddress),
		cfg:          cfg,
	}
}

// ResolveRange determines the scan range. With a known origin block the range
// is [StartBlock, head]; otherwise a conservative fallback window below the
// head is used, which is explicitly narrower than all history.
func (f *Fetcher) ResolveRange(ctx context.Context) (uint64, uint64, error) {
	head, err := f.source.BlockNumber(ctx)
	if err != nil {
		return 0, 0, err
	}

	from := f.cfg.StartBlock
	if from == 0 {
		if head > f.cfg.FallbackSpan {
			from = head - f.cfg.FallbackSpan
		}
		log.WithFields(log.Fields{
			"from_block": from,
			"to_block":   head,
		}).Warn("origin block unknown - scanning fallback window only")
	}

	return from, head, nil
}

// FetchLogs returns all logs matching any of the given event signatures in
// [fromBlock, toBlock]. The range is partitioned into chunks of at most
// MaxChunkSize blocks, fetched in waves of Parallelism concurrent queries.
// Ordering of the returned slice is unspecified.
func (f *Fetcher) FetchLogs(ctx context.Context, eventSigs []common.Hash, fromBlock, toBlock uint64) (*Result, error) {
	result := &Result{FromBlock: fromBlock, ToBlock: toBlock}
	if fromBlock > toBlock {
		return result, nil
	}

	chunks := partition(fromBlock, toBlock, f.cfg.MaxChunkSize)
	result.TotalChunks = len(chunks)

	log.WithFields(log.Fields{
		"from_block": fromBlock,
		"to_block":   toBlock,
		"chunks":     len(chunks),
		"chunk_size": f.cfg.MaxChunkSize,
	}).Debug("starting chunked log scan")

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		failed int
	)
	sem := make(chan struct{}, f.cfg.Parallelism)

	launched := 0
	for _, c := range chunks {
		select {
		case <-ctx.Done():
			// Drain in-flight workers before handing the result out; their
			// queries hold the cancelled ctx and return promptly. Chunks never
			// launched count as failed so an aborted scan is never Complete.
			wg.Wait()
			result.FailedChunks = failed + len(chunks) - launched
			log.Warnf("log scan aborted at %d/%d chunks: %v", launched, len(chunks), ctx.Err())
			return result, ctx.Err()
		case sem <- struct{}{}:
		}
		launched++

		wg.Add(1)
		go func(c span) {
			defer wg.Done()
			defer func() { <-sem }()

			logs, err := f.fetchChunk(ctx, eventSigs, c)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Exhausted retry budget: treat the chunk as empty.
				// Callers must not assume completeness under repeated failures.
				failed++
				log.WithFields(log.Fields{
					"from_block": c.from,
					"to_block":   c.to,
				}).Errorf("chunk dropped after %d attempts: %v", f.cfg.MaxRetries, err)
				return
			}
			result.Logs = append(result.Logs, logs...)
		}(c)
	}

	wg.Wait()
	result.FailedChunks = failed

	if failed > 0 {
		log.Warnf("log scan incomplete: %d/%d chunks dropped in [%d, %d]",
			failed, len(chunks), fromBlock, toBlock)
	}

	return result, nil
}

// fetchChunk queries a single chunk, retrying transient failures with
// exponential backoff.
func (f *Fetcher) fetchChunk(ctx context.Context, eventSigs []common.Hash, c span) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(c.from),
		ToBlock:   new(big.Int).SetUint64(c.to),
		Addresses: []common.Address{f.contractAddr},
		Topics:    [][]common.Hash{eventSigs},
	}

	var logs []types.Log
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: f.cfg.MaxRetries,
		BaseDelay:   f.cfg.RetryBase,
		MaxDelay:    f.cfg.RetryCeiling,
	}, "logscan.chunk", func() error {
		fetched, err := f.source.FilterLogs(ctx, query)
		if err != nil {
			return err
		}
		logs = fetched
		return nil
	})
	return logs, err
}

type span struct {
	from, to uint64
}

// partition splits an inclusive block range into contiguous chunks of at most
// size blocks.
func partition(from, to, size uint64) []span {
	var chunks []span
	for start := from; start <= to; start += size {
		end := start + size - 1
		if end > to {
			end = to
		}
		chunks = append(chunks, span{from: start, to: end})
		if end == to {
			break
		}
	}
	return chunks
}
