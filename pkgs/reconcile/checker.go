package reconcile

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/goalpost/prediction-indexer/pkgs/contract"
	"github.com/goalpost/prediction-indexer/pkgs/events"
)

// Classification of one participant after comparing the log-derived view
// against the authoritative aggregate.
type Classification string

const (
	// StatusOK means the views agree.
	StatusOK Classification = "ok"
	// StatusZeroAggregate means the log shows activity but the aggregate
	// totalCount is 0.
	StatusZeroAggregate Classification = "zero-aggregate-despite-activity"
	// StatusCountMismatch means the log-derived unit count differs from the
	// aggregate totalCount.
	StatusCountMismatch Classification = "count-mismatch"
	// StatusImpossible means the aggregate violates its own invariants:
	// correctCount > totalCount, or correctCount > 0 with totalCount == 0.
	StatusImpossible Classification = "impossible"
)

// Finding is the reconciliation verdict for one participant
type Finding struct {
	Participant  common.Address             `json:"participant"`
	Status       Classification             `json:"status"`
	LogUnitCount int                        `json:"log_unit_count"`
	Aggregate    contract.UserAggregateStats `json:"aggregate"`
}

// Report is a full reconciliation pass over every readable participant
type Report struct {
	Findings    []Finding `json:"findings"`
	GeneratedAt time.Time `json:"generated_at"`

	// Counts by classification, for the summary log line and metrics
	OKCount         int `json:"ok_count"`
	ZeroCount       int `json:"zero_count"`
	MismatchCount   int `json:"mismatch_count"`
	ImpossibleCount int `json:"impossible_count"`
}

// Classify compares one participant's log-derived unit count against the
// authoritative aggregate. Corruption is reported, never corrected: no
// compensating transaction exists, so clamping here would only hide a write
// path defect.
func Classify(logUnits int, agg contract.UserAggregateStats) Classification {
	if agg.CorrectCount > agg.TotalCount {
		return StatusImpossible
	}
	if agg.CorrectCount > 0 && agg.TotalCount == 0 {
		return StatusImpossible
	}
	if agg.TotalCount == 0 && logUnits > 0 {
		return StatusZeroAggregate
	}
	if uint64(logUnits) != agg.TotalCount {
		return StatusCountMismatch
	}
	return StatusOK
}

// Check runs the full reconciliation pass. Advisory only: the hot
// leaderboard path never blocks on it.
func Check(ix *events.Indices, aggregates []contract.UserAggregateStats) *Report {
	report := &Report{GeneratedAt: time.Now().UTC()}

	for _, agg := range aggregates {
		logUnits := ix.UnitCount(agg.Participant)
		status := Classify(logUnits, agg)

		report.Findings = append(report.Findings, Finding{
			Participant:  agg.Participant,
			Status:       status,
			LogUnitCount: logUnits,
			Aggregate:    agg,
		})

		switch status {
		case StatusOK:
			report.OKCount++
		case StatusZeroAggregate:
			report.ZeroCount++
		case StatusCountMismatch:
			report.MismatchCount++
		case StatusImpossible:
			report.ImpossibleCount++
			log.WithFields(log.Fields{
				"participant":    agg.Participant.Hex(),
				"correct_count":  agg.CorrectCount,
				"total_count":    agg.TotalCount,
				"log_unit_count": logUnits,
			}).Error("❌ impossible aggregate detected - write path corruption, requires migration action")
		}
	}

	if report.MismatchCount > 0 || report.ImpossibleCount > 0 || report.ZeroCount > 0 {
		log.Warnf("reconciliation: ok=%d zero_aggregate=%d count_mismatch=%d impossible=%d",
			report.OKCount, report.ZeroCount, report.MismatchCount, report.ImpossibleCount)
	} else {
		log.Debugf("reconciliation clean: %d participants ok", report.OKCount)
	}

	return report
}
