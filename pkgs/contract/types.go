package contract

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Outcome is the three-way result of a match from the first side's point of view.
type Outcome uint8

const (
	OutcomeHomeWin Outcome = iota
	OutcomeDraw
	OutcomeAwayWin
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHomeWin:
		return "home_win"
	case OutcomeDraw:
		return "draw"
	case OutcomeAwayWin:
		return "away_win"
	}
	return "unknown"
}

// OutcomeFromScores derives the three-way outcome from a final score.
func OutcomeFromScores(home, away uint64) Outcome {
	switch {
	case home > away:
		return OutcomeHomeWin
	case home < away:
		return OutcomeAwayWin
	default:
		return OutcomeDraw
	}
}

// UserAggregateStats is the authoritative per-user aggregate held by the contract.
// Invariants the contract is supposed to maintain (and sometimes doesn't):
// CorrectCount <= TotalCount and CurrentStreak <= LongestStreak.
type UserAggregateStats struct {
	Participant   common.Address `json:"participant"`
	CorrectCount  uint64         `json:"correct_count"`
	TotalCount    uint64         `json:"total_count"`
	CurrentStreak uint64         `json:"current_streak"`
	LongestStreak uint64         `json:"longest_streak"`
	FreeUnitsUsed uint64         `json:"free_units_used"`
}

// MatchRecord is a read snapshot of a match registered on the contract.
// The authoritative copy lives on-chain; this is never written back.
type MatchRecord struct {
	MatchID    uint64    `json:"match_id"`
	StartTime  time.Time `json:"start_time"`
	HomeScore  uint64    `json:"home_score"`
	AwayScore  uint64    `json:"away_score"`
	IsRecorded bool      `json:"is_recorded"`
	Exists     bool      `json:"exists"`
}

// Prediction is a participant's stored pick for a single match.
// A zero Timestamp means no prediction was ever stored for the pair.
type Prediction struct {
	Outcome   Outcome `json:"outcome"`
	Timestamp uint64  `json:"timestamp"`
}

// Exists reports whether the prediction was actually stored.
func (p Prediction) Exists() bool {
	return p.Timestamp != 0
}

// ResultEntry is one element of the parallel-array batch handed to the
// result-recording write path.
type ResultEntry struct {
	Participant common.Address `json:"participant"`
	MatchID     uint64         `json:"match_id"`
	IsCorrect   bool           `json:"is_correct"`
}
