package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/goalpost/prediction-indexer/pkgs/cache"
	"github.com/goalpost/prediction-indexer/pkgs/contract"
	"github.com/goalpost/prediction-indexer/pkgs/events"
	"github.com/goalpost/prediction-indexer/pkgs/guard"
	"github.com/goalpost/prediction-indexer/pkgs/leaderboard"
	"github.com/goalpost/prediction-indexer/pkgs/logscan"
	"github.com/goalpost/prediction-indexer/pkgs/metrics"
	"github.com/goalpost/prediction-indexer/pkgs/reconcile"
	"github.com/goalpost/prediction-indexer/pkgs/rediskeys"
	"github.com/goalpost/prediction-indexer/pkgs/stats"
)

// ResultRecorder is the external write path for result batches.
// *contract.Recorder satisfies it; nil disables submission (compute-only).
type ResultRecorder interface {
	RecordResults(ctx context.Context, batch []contract.ResultEntry) (*contract.RecordingResult, error)
}

// Config for the engine
type Config struct {
	StalenessThreshold time.Duration
	RegenTimeout       time.Duration
	RecordingInterval  time.Duration
	ReportTTL          time.Duration // TTL on the persisted reconciliation report
}

// Engine wires the pipeline: log fetch -> normalize -> aggregate reads ->
// build -> cache, plus the reconciliation pass and the recording cycle.
type Engine struct {
	fetcher   *logscan.Fetcher
	decoder   *events.Decoder
	statsRead *stats.Reader
	store     *cache.Store
	refresher *cache.Refresher
	guard     *guard.Guard
	ledger    guard.Ledger
	recorder  ResultRecorder
	kv        cache.KV
	keys      *rediskeys.KeyBuilder
	cfg       Config

	// Last regeneration's derived views, kept so the reconciliation endpoint
	// doesn't rescan the whole log on every request.
	mu            sync.Mutex
	lastIndices   *events.Indices
	lastAggregate []contract.UserAggregateStats
}

// New creates the engine and its staleness refresher
func New(
	fetcher *logscan.Fetcher,
	decoder *events.Decoder,
	statsRead *stats.Reader,
	store *cache.Store,
	g *guard.Guard,
	ledger guard.Ledger,
	recorder ResultRecorder,
	kv cache.KV,
	keys *rediskeys.KeyBuilder,
	cfg Config,
) *Engine {
	if cfg.ReportTTL <= 0 {
		cfg.ReportTTL = 24 * time.Hour
	}

	e := &Engine{
		fetcher:   fetcher,
		decoder:   decoder,
		statsRead: statsRead,
		store:     store,
		guard:     g,
		ledger:    ledger,
		recorder:  recorder,
		kv:        kv,
		keys:      keys,
		cfg:       cfg,
	}
	e.refresher = cache.NewRefresher(store, e.Regenerate, cfg.StalenessThreshold, cfg.RegenTimeout)
	return e
}

// GetLeaderboard returns one page of the current snapshot. A stale snapshot
// triggers an asynchronous regeneration and is still served immediately.
func (e *Engine) GetLeaderboard(page, pageSize int) ([]leaderboard.Entry, time.Time, int) {
	if e.refresher.Stale() {
		metrics.StaleServes.Inc()
		e.refresher.MaybeRefresh()
	}

	snap := e.store.Get()
	return leaderboard.Page(snap.Entries, page, pageSize), snap.LastUpdated, len(snap.Entries)
}

// TriggerRegenerate starts an asynchronous regeneration regardless of staleness
func (e *Engine) TriggerRegenerate() {
	e.refresher.Refresh()
}

// RegenerationInFlight reports whether a regeneration is currently running
func (e *Engine) RegenerationInFlight() bool {
	return e.refresher.InFlight()
}

// Regenerate recomputes the leaderboard end-to-end and atomically replaces
// the cached snapshot.
func (e *Engine) Regenerate(ctx context.Context) error {
	started := time.Now()

	ix, err := e.scan(ctx)
	if err != nil {
		metrics.Regenerations.WithLabelValues("scan_error").Inc()
		return fmt.Errorf("log scan failed: %w", err)
	}

	// Best-effort seed: pairs confirmed on-chain must never be resubmitted,
	// even if this ledger is brand new
	if err := e.ledger.Seed(ctx, ix.RecordedPairs); err != nil {
		log.Warnf("ledger seed failed (guard falls back to redis state only): %v", err)
	}

	aggregates, excluded := e.statsRead.FetchAll(ctx, ix.ParticipantSet())
	metrics.ParticipantsExcluded.Set(float64(len(excluded)))

	entries := leaderboard.Build(aggregates)
	e.store.Replace(ctx, entries)
	metrics.LeaderboardEntries.Set(float64(len(entries)))
	metrics.Regenerations.WithLabelValues("ok").Inc()

	e.mu.Lock()
	e.lastIndices = ix
	e.lastAggregate = aggregates
	e.mu.Unlock()

	e.writeState(ctx, e.keys.RegenState(), map[string]interface{}{
		"last_run":     time.Now().UTC().Format(time.RFC3339),
		"duration_ms":  time.Since(started).Milliseconds(),
		"participants": len(ix.Participants),
		"entries":      len(entries),
		"excluded":     len(excluded),
		"malformed":    ix.MalformedCount,
	})

	log.WithFields(log.Fields{
		"participants": len(ix.Participants),
		"entries":      len(entries),
		"excluded":     len(excluded),
		"malformed":    ix.MalformedCount,
		"duration":     time.Since(started).String(),
	}).Info("🏆 leaderboard regenerated")

	return nil
}

// Reconcile runs the diagnostic comparison between the log-derived view and
// the authoritative aggregates. Uses the last regeneration's views when
// available; forces a fresh scan otherwise.
func (e *Engine) Reconcile(ctx context.Context) (*reconcile.Report, error) {
	e.mu.Lock()
	ix, aggregates := e.lastIndices, e.lastAggregate
	e.mu.Unlock()

	if ix == nil {
		var err error
		ix, err = e.scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("log scan failed: %w", err)
		}
		aggregates, _ = e.statsRead.FetchAll(ctx, ix.ParticipantSet())
	}

	report := reconcile.Check(ix, aggregates)

	metrics.ReconcileFindings.WithLabelValues(string(reconcile.StatusOK)).Set(float64(report.OKCount))
	metrics.ReconcileFindings.WithLabelValues(string(reconcile.StatusZeroAggregate)).Set(float64(report.ZeroCount))
	metrics.ReconcileFindings.WithLabelValues(string(reconcile.StatusCountMismatch)).Set(float64(report.MismatchCount))
	metrics.ReconcileFindings.WithLabelValues(string(reconcile.StatusImpossible)).Set(float64(report.ImpossibleCount))

	// Persist for operator inspection; failure is non-fatal
	if blob, err := json.Marshal(report); err == nil {
		if err := e.kv.Set(ctx, e.keys.ReconciliationReport(), string(blob), e.cfg.ReportTTL); err != nil {
			log.Warnf("failed to persist reconciliation report: %v", err)
		}
	}

	return report, nil
}

// RunRecordingCycle computes and submits one result-recording batch. The
// ledger is marked before submission; a failed or ambiguous write is
// surfaced, never retried in the same run.
func (e *Engine) RunRecordingCycle(ctx context.Context) (*guard.Batch, *contract.RecordingResult, error) {
	ix, err := e.scan(ctx)
	if err != nil {
		metrics.RecordingCycles.WithLabelValues("scan_error").Inc()
		return nil, nil, fmt.Errorf("log scan failed: %w", err)
	}

	if err := e.ledger.Seed(ctx, ix.RecordedPairs); err != nil {
		// Without confirmation-event seeding a cold ledger could resubmit
		// history, so this one is fatal to the cycle
		metrics.RecordingCycles.WithLabelValues("ledger_error").Inc()
		return nil, nil, fmt.Errorf("ledger seed failed: %w", err)
	}

	batch, err := e.guard.BuildBatch(ctx, ix)
	if err != nil {
		metrics.RecordingCycles.WithLabelValues("guard_error").Inc()
		return nil, nil, fmt.Errorf("guard batch failed: %w", err)
	}
	metrics.GuardBatchPairs.Observe(float64(len(batch.Entries)))

	if len(batch.Entries) == 0 {
		log.Info("recording cycle: nothing to record")
		metrics.RecordingCycles.WithLabelValues("empty").Inc()
		return batch, nil, nil
	}

	if e.recorder == nil {
		log.Infof("recording cycle: computed %d pairs, submission disabled", len(batch.Entries))
		metrics.RecordingCycles.WithLabelValues("compute_only").Inc()
		return batch, nil, nil
	}

	// Mark first. If the write then fails ambiguously, the pairs stay marked
	// and are NOT resubmitted; a false negative costs a missed recording, a
	// duplicate write costs permanent aggregate corruption.
	if err := e.ledger.MarkSubmitted(ctx, batch.Entries); err != nil {
		metrics.RecordingCycles.WithLabelValues("ledger_error").Inc()
		return batch, nil, fmt.Errorf("ledger mark failed, batch withheld: %w", err)
	}

	result, err := e.recorder.RecordResults(ctx, batch.Entries)

	state := map[string]interface{}{
		"last_run":         time.Now().UTC().Format(time.RFC3339),
		"pairs":            len(batch.Entries),
		"matches_eligible": batch.MatchesEligible,
		"skipped_recorded": batch.SkippedRecorded,
		"skipped_no_pick":  batch.SkippedNoPick,
		"submission_ok":    err == nil,
	}
	if result != nil {
		state["tx_hash"] = result.TxHash
	}
	e.writeState(ctx, e.keys.RecordingState(), state)

	if err != nil {
		metrics.RecordingCycles.WithLabelValues("write_failed").Inc()
		return batch, result, err
	}

	metrics.RecordingCycles.WithLabelValues("ok").Inc()
	return batch, result, nil
}

// writeState persists a small diagnostic blob for operator inspection.
// Best-effort only.
func (e *Engine) writeState(ctx context.Context, key string, state map[string]interface{}) {
	blob, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := e.kv.Set(ctx, key, string(blob), 0); err != nil {
		log.Debugf("failed to persist %s: %v", key, err)
	}
}

// RunScheduler drives the periodic staleness check and recording cycle until
// ctx is cancelled.
func (e *Engine) RunScheduler(ctx context.Context) {
	staleTicker := time.NewTicker(time.Minute)
	defer staleTicker.Stop()

	var recordingC <-chan time.Time
	if e.cfg.RecordingInterval > 0 {
		recordingTicker := time.NewTicker(e.cfg.RecordingInterval)
		defer recordingTicker.Stop()
		recordingC = recordingTicker.C
	}

	log.Info("🚀 scheduler started")
	for {
		select {
		case <-ctx.Done():
			log.Info("🛑 scheduler stopped")
			return
		case <-staleTicker.C:
			e.refresher.MaybeRefresh()
		case <-recordingC:
			if _, _, err := e.RunRecordingCycle(ctx); err != nil {
				log.Errorf("recording cycle failed: %v", err)
			}
		}
	}
}

// scan fetches and normalizes the full event history window
func (e *Engine) scan(ctx context.Context) (*events.Indices, error) {
	from, to, err := e.fetcher.ResolveRange(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scan range: %w", err)
	}

	res, err := e.fetcher.FetchLogs(ctx, e.decoder.EventSignatures(), from, to)
	if err != nil {
		return nil, err
	}
	metrics.ChunksFetched.Add(float64(res.TotalChunks - res.FailedChunks))
	metrics.ChunksDropped.Add(float64(res.FailedChunks))

	ix := events.Normalize(e.decoder, res.Logs)
	metrics.RecordsMalformed.Add(float64(ix.MalformedCount))
	return ix, nil
}
