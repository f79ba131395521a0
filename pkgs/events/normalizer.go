package events

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	log "github.com/sirupsen/logrus"
)

// Indices are the derived views the rest of the engine consumes.
// All maps are keyed for order-independent aggregation; block numbers are
// retained only where a tie-break needs them.
type Indices struct {
	// Participants discovered via PredictionsSubmitted, keyed by address,
	// value = first block the participant was seen at.
	Participants map[common.Address]uint64

	// PerParticipantUnits maps participant -> multiset of matchId (one entry
	// per predicted unit, duplicates preserved).
	PerParticipantUnits map[common.Address][]uint64

	// PerMatchParticipants maps matchId -> set of participants who predicted it.
	PerMatchParticipants map[uint64]map[common.Address]struct{}

	// MatchStartTimes holds scheduled starts from MatchRegistered events.
	MatchStartTimes map[uint64]time.Time

	// RecordedPairs holds confirmation events, used to seed the idempotency
	// ledger on cold start.
	RecordedPairs []*ResultRecordedEvent

	// MalformedCount is the number of records skipped during decoding.
	MalformedCount int
}

// ParticipantSet returns the discovered participants as a slice. Order is
// unspecified.
func (ix *Indices) ParticipantSet() []common.Address {
	out := make([]common.Address, 0, len(ix.Participants))
	for p := range ix.Participants {
		out = append(out, p)
	}
	return out
}

// UnitCount returns the log-derived unit count for a participant
func (ix *Indices) UnitCount(p common.Address) int {
	return len(ix.PerParticipantUnits[p])
}

// Normalize decodes raw log records and builds the derived indices. It is a
// pure function of its input: no I/O, and malformed records are skipped and
// counted, never fatal.
func Normalize(decoder *Decoder, logs []types.Log) *Indices {
	ix := &Indices{
		Participants:         make(map[common.Address]uint64),
		PerParticipantUnits:  make(map[common.Address][]uint64),
		PerMatchParticipants: make(map[uint64]map[common.Address]struct{}),
		MatchStartTimes:      make(map[uint64]time.Time),
	}

	for _, vLog := range logs {
		ev, err := decoder.Decode(vLog)
		if err != nil {
			ix.MalformedCount++
			log.Debugf("skipping record: %v", err)
			continue
		}

		switch e := ev.(type) {
		case *PredictionsSubmittedEvent:
			ix.addSubmission(e)
		case *MatchRegisteredEvent:
			ix.MatchStartTimes[e.MatchID] = e.StartTime
		case *ResultRecordedEvent:
			ix.RecordedPairs = append(ix.RecordedPairs, e)
		}
	}

	if ix.MalformedCount > 0 {
		log.Warnf("normalization skipped %d malformed records (%d kept)",
			ix.MalformedCount, len(logs)-ix.MalformedCount)
	}

	return ix
}

func (ix *Indices) addSubmission(e *PredictionsSubmittedEvent) {
	if first, seen := ix.Participants[e.Participant]; !seen || e.BlockNumber < first {
		ix.Participants[e.Participant] = e.BlockNumber
	}

	for _, matchID := range e.MatchIDs {
		ix.PerParticipantUnits[e.Participant] = append(ix.PerParticipantUnits[e.Participant], matchID)

		if ix.PerMatchParticipants[matchID] == nil {
			ix.PerMatchParticipants[matchID] = make(map[common.Address]struct{})
		}
		ix.PerMatchParticipants[matchID][e.Participant] = struct{}{}
	}
}
