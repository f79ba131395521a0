package events

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goalpost/prediction-indexer/pkgs/contract"
)

func newTestDecoder(t *testing.T) *Decoder {
	t.Helper()
	gameABI, err := contract.ParseGameABI()
	require.NoError(t, err)
	d, err := NewDecoder(gameABI)
	require.NoError(t, err)
	return d
}

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func submissionLog(t *testing.T, d *Decoder, participant common.Address, matchIDs []uint64, block uint64) types.Log {
	t.Helper()
	ids := make([]*big.Int, len(matchIDs))
	for i, id := range matchIDs {
		ids[i] = new(big.Int).SetUint64(id)
	}
	data, err := d.predictionsSubmitted.Inputs.NonIndexed().Pack(
		ids,
		big.NewInt(int64(len(matchIDs))),
		big.NewInt(0),
		big.NewInt(1000),
	)
	require.NoError(t, err)
	return types.Log{
		Topics:      []common.Hash{d.sigPredictions, common.BytesToHash(participant.Bytes())},
		Data:        data,
		BlockNumber: block,
	}
}

func matchLog(t *testing.T, d *Decoder, matchID uint64, start time.Time, block uint64) types.Log {
	t.Helper()
	data, err := d.matchRegistered.Inputs.NonIndexed().Pack(big.NewInt(start.Unix()))
	require.NoError(t, err)
	return types.Log{
		Topics:      []common.Hash{d.sigMatch, common.BigToHash(new(big.Int).SetUint64(matchID))},
		Data:        data,
		BlockNumber: block,
	}
}

func resultLog(t *testing.T, d *Decoder, participant common.Address, matchID uint64, correct bool, block uint64) types.Log {
	t.Helper()
	data, err := d.resultRecorded.Inputs.NonIndexed().Pack(new(big.Int).SetUint64(matchID), correct)
	require.NoError(t, err)
	return types.Log{
		Topics:      []common.Hash{d.sigResult, common.BytesToHash(participant.Bytes())},
		Data:        data,
		BlockNumber: block,
	}
}

func TestDecodeSubmission(t *testing.T) {
	d := newTestDecoder(t)
	p := addr(1)

	ev, err := d.Decode(submissionLog(t, d, p, []uint64{10, 11, 10}, 42))
	require.NoError(t, err)

	sub, ok := ev.(*PredictionsSubmittedEvent)
	require.True(t, ok)
	assert.Equal(t, p, sub.Participant)
	assert.Equal(t, []uint64{10, 11, 10}, sub.MatchIDs)
	assert.Equal(t, uint64(3), sub.UnitCount)
	assert.Equal(t, uint64(42), sub.BlockNumber)
}

func TestDecodeMatchRegistered(t *testing.T) {
	d := newTestDecoder(t)
	start := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

	ev, err := d.Decode(matchLog(t, d, 77, start, 100))
	require.NoError(t, err)

	reg, ok := ev.(*MatchRegisteredEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(77), reg.MatchID)
	assert.True(t, reg.StartTime.Equal(start))
}

func TestDecodeResultRecorded(t *testing.T) {
	d := newTestDecoder(t)
	p := addr(2)

	ev, err := d.Decode(resultLog(t, d, p, 9, true, 55))
	require.NoError(t, err)

	rec, ok := ev.(*ResultRecordedEvent)
	require.True(t, ok)
	assert.Equal(t, p, rec.Participant)
	assert.Equal(t, uint64(9), rec.MatchID)
	assert.True(t, rec.Correct)
}

func TestDecodeMalformed(t *testing.T) {
	d := newTestDecoder(t)

	cases := []struct {
		name string
		vLog types.Log
	}{
		{"no topics", types.Log{}},
		{"unknown signature", types.Log{Topics: []common.Hash{common.HexToHash("0xdead")}}},
		{"missing participant topic", types.Log{Topics: []common.Hash{d.sigPredictions}}},
		{"truncated data", types.Log{
			Topics: []common.Hash{d.sigResult, common.BytesToHash(addr(1).Bytes())},
			Data:   []byte{0x01, 0x02},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Decode(tc.vLog)
			require.Error(t, err)
			var decodeErr *DecodeError
			assert.ErrorAs(t, err, &decodeErr)
		})
	}
}

func TestDecodeEmptyMatchIDsIsMalformed(t *testing.T) {
	d := newTestDecoder(t)

	_, err := d.Decode(submissionLog(t, d, addr(1), nil, 1))
	require.Error(t, err)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Contains(t, decodeErr.Reason, "matchIds")
}

func TestNormalizeBuildsIndices(t *testing.T) {
	d := newTestDecoder(t)
	a, b := addr(1), addr(2)
	start := time.Unix(1700000000, 0).UTC()

	logs := []types.Log{
		submissionLog(t, d, a, []uint64{10, 11}, 5),
		submissionLog(t, d, b, []uint64{10}, 6),
		submissionLog(t, d, a, []uint64{10}, 7), // repeat pick on 10, multiset grows
		matchLog(t, d, 10, start, 3),
		resultLog(t, d, a, 10, true, 20),
	}

	ix := Normalize(d, logs)

	assert.Equal(t, 0, ix.MalformedCount)
	assert.Equal(t, uint64(5), ix.Participants[a])
	assert.Equal(t, uint64(6), ix.Participants[b])
	assert.Equal(t, 3, ix.UnitCount(a))
	assert.Equal(t, 1, ix.UnitCount(b))

	require.Contains(t, ix.PerMatchParticipants, uint64(10))
	assert.Len(t, ix.PerMatchParticipants[10], 2)
	require.Contains(t, ix.PerMatchParticipants, uint64(11))
	assert.Len(t, ix.PerMatchParticipants[11], 1)

	assert.True(t, ix.MatchStartTimes[10].Equal(start))
	require.Len(t, ix.RecordedPairs, 1)
	assert.Equal(t, a, ix.RecordedPairs[0].Participant)
}

func TestNormalizeOrderIndependent(t *testing.T) {
	d := newTestDecoder(t)
	a, b := addr(1), addr(2)

	logs := []types.Log{
		submissionLog(t, d, a, []uint64{10, 11}, 5),
		submissionLog(t, d, b, []uint64{11}, 8),
		submissionLog(t, d, a, []uint64{12}, 9),
	}
	reversed := []types.Log{logs[2], logs[1], logs[0]}

	ix1 := Normalize(d, logs)
	ix2 := Normalize(d, reversed)

	assert.Equal(t, ix1.Participants, ix2.Participants)
	assert.Equal(t, ix1.PerMatchParticipants, ix2.PerMatchParticipants)
	assert.Equal(t, ix1.UnitCount(a), ix2.UnitCount(a))
	assert.Equal(t, ix1.UnitCount(b), ix2.UnitCount(b))
}

func TestNormalizeSkipsAndCountsMalformed(t *testing.T) {
	d := newTestDecoder(t)
	a := addr(1)

	logs := []types.Log{
		submissionLog(t, d, a, []uint64{10}, 5),
		{Topics: []common.Hash{common.HexToHash("0xbeef")}, BlockNumber: 6},
		{BlockNumber: 7},
	}

	ix := Normalize(d, logs)

	assert.Equal(t, 2, ix.MalformedCount)
	assert.Len(t, ix.Participants, 1)
	assert.Equal(t, 1, ix.UnitCount(a))
}

func TestParticipantFirstSeenBlockIsMinimum(t *testing.T) {
	d := newTestDecoder(t)
	a := addr(1)

	// Chunked fetching gives no global ordering; later-processed logs with
	// earlier block numbers must still win
	logs := []types.Log{
		submissionLog(t, d, a, []uint64{10}, 50),
		submissionLog(t, d, a, []uint64{11}, 5),
	}

	ix := Normalize(d, logs)
	assert.Equal(t, uint64(5), ix.Participants[a])
}
