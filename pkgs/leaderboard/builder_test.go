package leaderboard

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goalpost/prediction-indexer/pkgs/contract"
)

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func TestAccuracyRounding(t *testing.T) {
	assert.Equal(t, uint64(0), Accuracy(0, 0))
	assert.Equal(t, uint64(0), Accuracy(0, 10))
	assert.Equal(t, uint64(100), Accuracy(10, 10))
	// 1/3 = 33.33 rounds down, 2/3 = 66.67 rounds up
	assert.Equal(t, uint64(33), Accuracy(1, 3))
	assert.Equal(t, uint64(67), Accuracy(2, 3))
	// .5 rounds up
	assert.Equal(t, uint64(50), Accuracy(1, 2))
	assert.Equal(t, uint64(13), Accuracy(1, 8))
}

func TestAccuracyNotClampedForCorruptAggregates(t *testing.T) {
	// correct > total is a write path defect; the display keeps it visible
	assert.Equal(t, uint64(150), Accuracy(3, 2))
}

func TestBuildFiltersZeroActivity(t *testing.T) {
	entries := Build([]contract.UserAggregateStats{
		{Participant: addr(1), TotalCount: 0, CorrectCount: 0},
		{Participant: addr(2), TotalCount: 4, CorrectCount: 2},
	})

	require.Len(t, entries, 1)
	assert.Equal(t, addr(2), entries[0].Participant)
	assert.Equal(t, 1, entries[0].Rank)
}

func TestBuildSortOrder(t *testing.T) {
	entries := Build([]contract.UserAggregateStats{
		// 50% accuracy, low volume
		{Participant: addr(1), TotalCount: 2, CorrectCount: 1},
		// 75% accuracy
		{Participant: addr(2), TotalCount: 4, CorrectCount: 3},
		// 50% accuracy, higher volume wins over addr(1)
		{Participant: addr(3), TotalCount: 10, CorrectCount: 5},
	})

	require.Len(t, entries, 3)
	assert.Equal(t, addr(2), entries[0].Participant)
	assert.Equal(t, addr(3), entries[1].Participant)
	assert.Equal(t, addr(1), entries[2].Participant)

	for i, e := range entries {
		assert.Equal(t, i+1, e.Rank)
	}
}

func TestBuildTieBreakStreakThenAddress(t *testing.T) {
	entries := Build([]contract.UserAggregateStats{
		{Participant: addr(9), TotalCount: 4, CorrectCount: 2, CurrentStreak: 1},
		{Participant: addr(5), TotalCount: 4, CorrectCount: 2, CurrentStreak: 2},
		// Same accuracy, volume, and streak as addr(9): address decides
		{Participant: addr(7), TotalCount: 4, CorrectCount: 2, CurrentStreak: 1},
	})

	require.Len(t, entries, 3)
	assert.Equal(t, addr(5), entries[0].Participant)
	assert.Equal(t, addr(7), entries[1].Participant)
	assert.Equal(t, addr(9), entries[2].Participant)
}

func TestBuildDeterministic(t *testing.T) {
	aggregates := []contract.UserAggregateStats{
		{Participant: addr(3), TotalCount: 6, CorrectCount: 3, CurrentStreak: 2},
		{Participant: addr(1), TotalCount: 6, CorrectCount: 3, CurrentStreak: 2},
		{Participant: addr(2), TotalCount: 6, CorrectCount: 3, CurrentStreak: 2},
	}

	first := Build(aggregates)

	// Same input in a different order must produce an identical ranking
	reversed := []contract.UserAggregateStats{aggregates[2], aggregates[0], aggregates[1]}
	second := Build(reversed)

	assert.Equal(t, first, second)
}

func TestPage(t *testing.T) {
	entries := Build([]contract.UserAggregateStats{
		{Participant: addr(1), TotalCount: 10, CorrectCount: 9},
		{Participant: addr(2), TotalCount: 10, CorrectCount: 8},
		{Participant: addr(3), TotalCount: 10, CorrectCount: 7},
		{Participant: addr(4), TotalCount: 10, CorrectCount: 6},
		{Participant: addr(5), TotalCount: 10, CorrectCount: 5},
	})

	p1 := Page(entries, 1, 2)
	require.Len(t, p1, 2)
	assert.Equal(t, 1, p1[0].Rank)
	assert.Equal(t, 2, p1[1].Rank)

	p3 := Page(entries, 3, 2)
	require.Len(t, p3, 1)
	assert.Equal(t, 5, p3[0].Rank)

	assert.Empty(t, Page(entries, 4, 2))
	assert.Nil(t, Page(entries, 0, 2))
	assert.Nil(t, Page(entries, 1, 0))
}
