package guard

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/goalpost/prediction-indexer/pkgs/contract"
	"github.com/goalpost/prediction-indexer/pkgs/events"
	"github.com/goalpost/prediction-indexer/pkgs/sportsdata"
)

// MatchSource provides match records and stored predictions.
// *contract.Reader satisfies it.
type MatchSource interface {
	GetMatch(ctx context.Context, matchID uint64) (contract.MatchRecord, error)
	GetUserPrediction(ctx context.Context, participant common.Address, matchID uint64) (contract.Prediction, error)
}

// ScoreSource provides settled final scores.
// *sportsdata.Client satisfies it.
type ScoreSource interface {
	GetFinalScore(ctx context.Context, matchID uint64) (*sportsdata.FinalScore, error)
}

// MatchState is where a match sits in its recording lifecycle
type MatchState string

const (
	StateUnknownMatch     MatchState = "unknown"
	StateAwaitingFinality MatchState = "awaiting_finality"
	StateFinalityReached  MatchState = "finality_reached"
	StateRecorded         MatchState = "recorded"
)

// ClassifyMatch places a match in the recording state machine. Recorded is
// terminal; only FinalityReached is a candidate for a guard batch, and then
// only once a final score is actually available.
func ClassifyMatch(rec contract.MatchRecord, now time.Time, finalityBuffer time.Duration) MatchState {
	if !rec.Exists {
		return StateUnknownMatch
	}
	if rec.IsRecorded {
		return StateRecorded
	}
	if now.Before(rec.StartTime.Add(finalityBuffer)) {
		return StateAwaitingFinality
	}
	return StateFinalityReached
}

// Config for the guard
type Config struct {
	FinalityBuffer time.Duration
}

// Guard computes the duplicate-free, eligibility-filtered batch for the
// result-recording write path. It never performs the write itself.
type Guard struct {
	matches MatchSource
	scores  ScoreSource
	ledger  Ledger
	cfg     Config

	// now is swappable for tests
	now func() time.Time
}

// Batch is the guard's output plus cycle diagnostics
type Batch struct {
	Entries []contract.ResultEntry

	MatchesConsidered int
	MatchesEligible   int
	SkippedRecorded   int // Pairs filtered by the ledger
	SkippedNoPick     int // Pairs with no retrievable prediction
	SkippedRateLimit  int // Matches deferred by the provider quota
}

// NewGuard creates a duplicate-write guard
func NewGuard(matches MatchSource, scores ScoreSource, ledger Ledger, cfg Config) *Guard {
	return &Guard{
		matches: matches,
		scores:  scores,
		ledger:  ledger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// BuildBatch walks every match with predictions and produces the minimal
// safe-to-record batch: pairs whose match is final with a known score, whose
// prediction is retrievable, and which the ledger has not seen.
func (g *Guard) BuildBatch(ctx context.Context, ix *events.Indices) (*Batch, error) {
	batch := &Batch{}
	now := g.now()

	for _, matchID := range sortedMatchIDs(ix.PerMatchParticipants) {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		batch.MatchesConsidered++

		rec, err := g.matches.GetMatch(ctx, matchID)
		if err != nil {
			log.Warnf("match %d: record read failed, skipping this cycle: %v", matchID, err)
			continue
		}

		state := ClassifyMatch(rec, now, g.cfg.FinalityBuffer)
		if state != StateFinalityReached {
			log.Debugf("match %d: state %s, not eligible", matchID, state)
			continue
		}

		score, err := g.scores.GetFinalScore(ctx, matchID)
		if err != nil {
			switch {
			case errors.Is(err, sportsdata.ErrNotFinished):
				log.Debugf("match %d: past finality buffer but provider has no final score yet", matchID)
			case errors.Is(err, sportsdata.ErrRateLimited):
				batch.SkippedRateLimit++
			default:
				log.Warnf("match %d: score fetch failed, skipping this cycle: %v", matchID, err)
			}
			continue
		}

		batch.MatchesEligible++
		outcome := contract.OutcomeFromScores(score.HomeScore, score.AwayScore)

		for _, participant := range sortedParticipants(ix.PerMatchParticipants[matchID]) {
			recorded, err := g.ledger.AlreadyRecorded(ctx, participant, matchID)
			if err != nil {
				// Without a ledger answer the pair is NOT safe to include
				log.Warnf("ledger check failed for %s/match %d, withholding pair: %v",
					participant.Hex(), matchID, err)
				continue
			}
			if recorded {
				batch.SkippedRecorded++
				continue
			}

			pick, err := g.matches.GetUserPrediction(ctx, participant, matchID)
			if err != nil {
				log.Warnf("prediction read failed for %s/match %d, skipping: %v",
					participant.Hex(), matchID, err)
				batch.SkippedNoPick++
				continue
			}
			if !pick.Exists() {
				batch.SkippedNoPick++
				continue
			}

			batch.Entries = append(batch.Entries, contract.ResultEntry{
				Participant: participant,
				MatchID:     matchID,
				IsCorrect:   pick.Outcome == outcome,
			})
		}
	}

	log.WithFields(log.Fields{
		"pairs":              len(batch.Entries),
		"matches_considered": batch.MatchesConsidered,
		"matches_eligible":   batch.MatchesEligible,
		"skipped_recorded":   batch.SkippedRecorded,
		"skipped_no_pick":    batch.SkippedNoPick,
		"skipped_rate_limit": batch.SkippedRateLimit,
	}).Info("🛡️ recording batch computed")

	return batch, nil
}

// sortedMatchIDs gives the cycle a deterministic walk order
func sortedMatchIDs(m map[uint64]map[common.Address]struct{}) []uint64 {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedParticipants(set map[common.Address]struct{}) []common.Address {
	out := make([]common.Address, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Bytes(), out[j].Bytes()) < 0
	})
	return out
}
