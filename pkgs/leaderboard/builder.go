package leaderboard

import (
	"bytes"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/goalpost/prediction-indexer/pkgs/contract"
)

// Entry is one ranked leaderboard row. Ranks are 1-based and contiguous;
// ties are never collapsed into a shared rank.
type Entry struct {
	Rank            int            `json:"rank"`
	Participant     common.Address `json:"participant"`
	AccuracyPercent uint64         `json:"accuracy_percent"`
	TotalCount      uint64         `json:"total_count"`
	CorrectCount    uint64         `json:"correct_count"`
	CurrentStreak   uint64         `json:"current_streak"`
	LongestStreak   uint64         `json:"longest_streak"`
}

// Snapshot is the materialized leaderboard. Replaced wholesale on each
// regeneration, never partially mutated.
type Snapshot struct {
	Entries     []Entry   `json:"entries"`
	LastUpdated time.Time `json:"last_updated"`
}

// Accuracy computes round-to-nearest integer accuracy. Values over 100 are
// possible for corrupted aggregates and are deliberately not clamped.
func Accuracy(correct, total uint64) uint64 {
	if total == 0 {
		return 0
	}
	return (correct*100 + total/2) / total
}

// Build ranks every aggregate with totalCount > 0. Sort keys in strict
// priority order: accuracy desc, totalCount desc, currentStreak desc, then
// participant address asc as the final explicit tie-break so identical input
// always yields identical output.
func Build(aggregates []contract.UserAggregateStats) []Entry {
	entries := make([]Entry, 0, len(aggregates))
	for _, agg := range aggregates {
		if agg.TotalCount == 0 {
			continue
		}
		entries = append(entries, Entry{
			Participant:     agg.Participant,
			AccuracyPercent: Accuracy(agg.CorrectCount, agg.TotalCount),
			TotalCount:      agg.TotalCount,
			CorrectCount:    agg.CorrectCount,
			CurrentStreak:   agg.CurrentStreak,
			LongestStreak:   agg.LongestStreak,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.AccuracyPercent != b.AccuracyPercent {
			return a.AccuracyPercent > b.AccuracyPercent
		}
		if a.TotalCount != b.TotalCount {
			return a.TotalCount > b.TotalCount
		}
		if a.CurrentStreak != b.CurrentStreak {
			return a.CurrentStreak > b.CurrentStreak
		}
		return bytes.Compare(a.Participant.Bytes(), b.Participant.Bytes()) < 0
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}

	return entries
}

// Page extracts a 1-based page from the ranked entries. Out-of-range pages
// come back empty rather than as an error.
func Page(entries []Entry, page, pageSize int) []Entry {
	if page < 1 || pageSize < 1 {
		return nil
	}
	start := (page - 1) * pageSize
	if start >= len(entries) {
		return []Entry{}
	}
	end := start + pageSize
	if end > len(entries) {
		end = len(entries)
	}
	return entries[start:end]
}
