package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine metrics, registered on the default registry and exposed by the
// /metrics endpoint in cmd/indexer.
var (
	ChunksFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_log_chunks_fetched_total",
		Help: "Log chunks fetched successfully",
	})

	ChunksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_log_chunks_dropped_total",
		Help: "Log chunks dropped after exhausting the retry budget",
	})

	RecordsMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_records_malformed_total",
		Help: "Raw log records skipped during normalization",
	})

	Regenerations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_leaderboard_regenerations_total",
		Help: "Leaderboard regeneration attempts by outcome",
	}, []string{"status"})

	LeaderboardEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "indexer_leaderboard_entries",
		Help: "Entries in the current leaderboard snapshot",
	})

	StaleServes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_leaderboard_stale_serves_total",
		Help: "Leaderboard reads served from a snapshot past the staleness threshold",
	})

	ParticipantsExcluded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "indexer_participants_excluded",
		Help: "Participants excluded from the last build because their aggregate was unreadable",
	})

	ReconcileFindings = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "indexer_reconcile_findings",
		Help: "Participants per reconciliation classification in the last pass",
	}, []string{"class"})

	GuardBatchPairs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "indexer_guard_batch_pairs",
		Help:    "Pairs per computed recording batch",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	RecordingCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_recording_cycles_total",
		Help: "Result-recording cycles by outcome",
	}, []string{"status"})
)
