package reconcile

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goalpost/prediction-indexer/pkgs/contract"
	"github.com/goalpost/prediction-indexer/pkgs/events"
)

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		logUnits int
		agg      contract.UserAggregateStats
		want     Classification
	}{
		{"agree", 5, contract.UserAggregateStats{TotalCount: 5, CorrectCount: 3}, StatusOK},
		{"both empty", 0, contract.UserAggregateStats{}, StatusOK},
		{"activity in log, zero aggregate", 5, contract.UserAggregateStats{}, StatusZeroAggregate},
		{"counts differ", 5, contract.UserAggregateStats{TotalCount: 7, CorrectCount: 3}, StatusCountMismatch},
		{"correct exceeds total", 3, contract.UserAggregateStats{TotalCount: 1, CorrectCount: 3}, StatusImpossible},
		{"correct without total", 0, contract.UserAggregateStats{TotalCount: 0, CorrectCount: 2}, StatusImpossible},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.logUnits, tc.agg))
		})
	}
}

func TestClassifyImpossibleWinsOverMismatch(t *testing.T) {
	// correct > total also mismatches the log count; the invariant violation
	// is the more serious finding and must win
	agg := contract.UserAggregateStats{TotalCount: 1, CorrectCount: 3}
	assert.Equal(t, StatusImpossible, Classify(5, agg))
}

func TestCheckReport(t *testing.T) {
	a, b, c := addr(1), addr(2), addr(3)

	ix := &events.Indices{
		PerParticipantUnits: map[common.Address][]uint64{
			a: {10, 11, 12},
			b: {10, 13},
			c: {14},
		},
	}

	report := Check(ix, []contract.UserAggregateStats{
		{Participant: a, TotalCount: 3, CorrectCount: 2},
		{Participant: b, TotalCount: 0, CorrectCount: 0},
		{Participant: c, TotalCount: 1, CorrectCount: 3},
	})

	require.Len(t, report.Findings, 3)
	assert.Equal(t, 1, report.OKCount)
	assert.Equal(t, 1, report.ZeroCount)
	assert.Equal(t, 1, report.ImpossibleCount)
	assert.Equal(t, 0, report.MismatchCount)
	assert.False(t, report.GeneratedAt.IsZero())

	byAddr := map[common.Address]Finding{}
	for _, f := range report.Findings {
		byAddr[f.Participant] = f
	}
	assert.Equal(t, StatusOK, byAddr[a].Status)
	assert.Equal(t, StatusZeroAggregate, byAddr[b].Status)
	assert.Equal(t, StatusImpossible, byAddr[c].Status)
	assert.Equal(t, 2, byAddr[b].LogUnitCount)
}

func TestCheckNeverMutatesAggregates(t *testing.T) {
	a := addr(1)
	aggregates := []contract.UserAggregateStats{
		{Participant: a, TotalCount: 1, CorrectCount: 3},
	}

	Check(&events.Indices{PerParticipantUnits: map[common.Address][]uint64{a: {10}}}, aggregates)

	// Advisory only: the corrupted values pass through untouched
	assert.Equal(t, uint64(3), aggregates[0].CorrectCount)
	assert.Equal(t, uint64(1), aggregates[0].TotalCount)
}
