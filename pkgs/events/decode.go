package events

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/goalpost/prediction-indexer/pkgs/contract"
)

// Event is the tagged union of the typed game events
type Event interface {
	Name() string
	Block() uint64
}

// PredictionsSubmittedEvent is one participant's prediction slip
type PredictionsSubmittedEvent struct {
	Participant   common.Address
	MatchIDs      []uint64
	UnitCount     uint64
	FreeUnitsUsed uint64
	FeePaid       *big.Int
	BlockNumber   uint64
}

func (e *PredictionsSubmittedEvent) Name() string { return "PredictionsSubmitted" }
func (e *PredictionsSubmittedEvent) Block() uint64 { return e.BlockNumber }

// MatchRegisteredEvent announces a match and its scheduled start
type MatchRegisteredEvent struct {
	MatchID     uint64
	StartTime   time.Time
	BlockNumber uint64
}

func (e *MatchRegisteredEvent) Name() string { return "MatchRegistered" }
func (e *MatchRegisteredEvent) Block() uint64 { return e.BlockNumber }

// ResultRecordedEvent confirms one (participant, match) pair was recorded.
// This is the canonical participant-indexed shape; the engine derives the
// already-recorded pair set from it.
type ResultRecordedEvent struct {
	Participant common.Address
	MatchID     uint64
	Correct     bool
	BlockNumber uint64
}

func (e *ResultRecordedEvent) Name() string { return "ResultRecorded" }
func (e *ResultRecordedEvent) Block() uint64 { return e.BlockNumber }

// DecodeError reports a malformed log record. Callers skip and count these;
// they never abort a scan.
type DecodeError struct {
	EventName   string
	BlockNumber uint64
	Reason      string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed %s record at block %d: %s", e.EventName, e.BlockNumber, e.Reason)
}

// Decoder turns raw log records into typed events using the game ABI
type Decoder struct {
	contractABI *contract.ContractABI

	predictionsSubmitted abi.Event
	matchRegistered      abi.Event
	resultRecorded       abi.Event

	sigPredictions common.Hash
	sigMatch       common.Hash
	sigResult      common.Hash
}

// NewDecoder creates a decoder from the parsed game ABI
func NewDecoder(contractABI *contract.ContractABI) (*Decoder, error) {
	d := &Decoder{contractABI: contractABI}

	parsed := contractABI.GetABI()
	for _, name := range []string{"PredictionsSubmitted", "MatchRegistered", "ResultRecorded"} {
		if !contractABI.HasEvent(name) {
			return nil, fmt.Errorf("ABI does not contain %s event", name)
		}
		sig, err := contractABI.GetEventHash(name)
		if err != nil {
			return nil, err
		}
		switch name {
		case "PredictionsSubmitted":
			d.predictionsSubmitted = parsed.Events[name]
			d.sigPredictions = sig
		case "MatchRegistered":
			d.matchRegistered = parsed.Events[name]
			d.sigMatch = sig
		case "ResultRecorded":
			d.resultRecorded = parsed.Events[name]
			d.sigResult = sig
		}
	}

	return d, nil
}

// EventSignatures returns the topic-0 hashes of all consumed events
func (d *Decoder) EventSignatures() []common.Hash {
	return []common.Hash{d.sigPredictions, d.sigMatch, d.sigResult}
}

// Decode parses a raw log into its typed event. Unknown signatures and
// records missing required fields come back as *DecodeError.
func (d *Decoder) Decode(vLog types.Log) (Event, error) {
	if len(vLog.Topics) == 0 {
		return nil, &DecodeError{EventName: "unknown", BlockNumber: vLog.BlockNumber, Reason: "no topics"}
	}

	switch vLog.Topics[0] {
	case d.sigPredictions:
		return d.decodePredictionsSubmitted(vLog)
	case d.sigMatch:
		return d.decodeMatchRegistered(vLog)
	case d.sigResult:
		return d.decodeResultRecorded(vLog)
	}

	return nil, &DecodeError{EventName: "unknown", BlockNumber: vLog.BlockNumber, Reason: "unrecognized event signature"}
}

func (d *Decoder) decodePredictionsSubmitted(vLog types.Log) (Event, error) {
	// topics[1] = participant (indexed); data = matchIds[], unitCount, freeUnitsUsed, feePaid
	if len(vLog.Topics) < 2 {
		return nil, &DecodeError{EventName: "PredictionsSubmitted", BlockNumber: vLog.BlockNumber, Reason: "missing participant topic"}
	}

	vals, err := d.predictionsSubmitted.Inputs.NonIndexed().Unpack(vLog.Data)
	if err != nil || len(vals) != 4 {
		return nil, &DecodeError{EventName: "PredictionsSubmitted", BlockNumber: vLog.BlockNumber, Reason: fmt.Sprintf("bad data: %v", err)}
	}

	rawIDs, ok := vals[0].([]*big.Int)
	if !ok || len(rawIDs) == 0 {
		return nil, &DecodeError{EventName: "PredictionsSubmitted", BlockNumber: vLog.BlockNumber, Reason: "empty or malformed matchIds"}
	}

	matchIDs := make([]uint64, len(rawIDs))
	for i, id := range rawIDs {
		matchIDs[i] = id.Uint64()
	}

	unitCount, _ := vals[1].(*big.Int)
	freeUnits, _ := vals[2].(*big.Int)
	feePaid, _ := vals[3].(*big.Int)
	if unitCount == nil || freeUnits == nil || feePaid == nil {
		return nil, &DecodeError{EventName: "PredictionsSubmitted", BlockNumber: vLog.BlockNumber, Reason: "missing count fields"}
	}

	return &PredictionsSubmittedEvent{
		Participant:   common.HexToAddress(vLog.Topics[1].Hex()),
		MatchIDs:      matchIDs,
		UnitCount:     unitCount.Uint64(),
		FreeUnitsUsed: freeUnits.Uint64(),
		FeePaid:       feePaid,
		BlockNumber:   vLog.BlockNumber,
	}, nil
}

func (d *Decoder) decodeMatchRegistered(vLog types.Log) (Event, error) {
	// topics[1] = matchId (indexed); data = startTime
	if len(vLog.Topics) < 2 {
		return nil, &DecodeError{EventName: "MatchRegistered", BlockNumber: vLog.BlockNumber, Reason: "missing matchId topic"}
	}

	vals, err := d.matchRegistered.Inputs.NonIndexed().Unpack(vLog.Data)
	if err != nil || len(vals) != 1 {
		return nil, &DecodeError{EventName: "MatchRegistered", BlockNumber: vLog.BlockNumber, Reason: fmt.Sprintf("bad data: %v", err)}
	}

	startTime, ok := vals[0].(*big.Int)
	if !ok {
		return nil, &DecodeError{EventName: "MatchRegistered", BlockNumber: vLog.BlockNumber, Reason: "missing startTime"}
	}

	return &MatchRegisteredEvent{
		MatchID:     new(big.Int).SetBytes(vLog.Topics[1].Bytes()).Uint64(),
		StartTime:   time.Unix(startTime.Int64(), 0).UTC(),
		BlockNumber: vLog.BlockNumber,
	}, nil
}

func (d *Decoder) decodeResultRecorded(vLog types.Log) (Event, error) {
	// topics[1] = participant (indexed); data = matchId, correct
	if len(vLog.Topics) < 2 {
		return nil, &DecodeError{EventName: "ResultRecorded", BlockNumber: vLog.BlockNumber, Reason: "missing participant topic"}
	}

	vals, err := d.resultRecorded.Inputs.NonIndexed().Unpack(vLog.Data)
	if err != nil || len(vals) != 2 {
		return nil, &DecodeError{EventName: "ResultRecorded", BlockNumber: vLog.BlockNumber, Reason: fmt.Sprintf("bad data: %v", err)}
	}

	matchID, ok := vals[0].(*big.Int)
	if !ok {
		return nil, &DecodeError{EventName: "ResultRecorded", BlockNumber: vLog.BlockNumber, Reason: "missing matchId"}
	}
	correct, ok := vals[1].(bool)
	if !ok {
		return nil, &DecodeError{EventName: "ResultRecorded", BlockNumber: vLog.BlockNumber, Reason: "missing correct flag"}
	}

	return &ResultRecordedEvent{
		Participant: common.HexToAddress(vLog.Topics[1].Hex()),
		MatchID:     matchID.Uint64(),
		Correct:     correct,
		BlockNumber: vLog.BlockNumber,
	}, nil
}
