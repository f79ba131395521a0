package contract

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/goalpost/prediction-indexer/pkgs/retry"
)

// CallBackend is the slice of an Ethereum client the reader needs.
// *ethclient.Client satisfies it.
type CallBackend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Reader performs point reads against the prediction game contract.
// Transient backend failures are retried with bounded exponential backoff
// before the error surfaces to the caller.
type Reader struct {
	backend      CallBackend
	contractAddr common.Address
	contractABI  *ContractABI
	retryCfg     retry.Config
}

// NewReader creates a contract reader for the given game contract address
func NewReader(backend CallBackend, contractAddr string, contractABI *ContractABI) (*Reader, error) {
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("invalid contract address: %s", contractAddr)
	}
	if contractABI == nil {
		abi, err := ParseGameABI()
		if err != nil {
			return nil, err
		}
		contractABI = abi
	}

	return &Reader{
		backend:      backend,
		contractAddr: common.HexToAddress(contractAddr),
		contractABI:  contractABI,
		retryCfg:     retry.DefaultConfig(),
	}, nil
}

// SetRetryPolicy overrides the backoff applied to point reads
func (r *Reader) SetRetryPolicy(cfg retry.Config) {
	r.retryCfg = cfg
}

// GetUserStats fetches the authoritative aggregate for one participant
func (r *Reader) GetUserStats(ctx context.Context, participant common.Address) (UserAggregateStats, error) {
	vals, err := r.call(ctx, "getUserStats", participant)
	if err != nil {
		return UserAggregateStats{}, err
	}
	if len(vals) != 5 {
		return UserAggregateStats{}, fmt.Errorf("getUserStats: expected 5 outputs, got %d", len(vals))
	}

	return UserAggregateStats{
		Participant:   participant,
		CorrectCount:  asUint64(vals[0]),
		TotalCount:    asUint64(vals[1]),
		CurrentStreak: asUint64(vals[2]),
		LongestStreak: asUint64(vals[3]),
		FreeUnitsUsed: asUint64(vals[4]),
	}, nil
}

// GetMatch fetches the read snapshot for one match. A match the contract has
// never seen comes back with Exists=false, not as an error.
func (r *Reader) GetMatch(ctx context.Context, matchID uint64) (MatchRecord, error) {
	vals, err := r.call(ctx, "getMatch", new(big.Int).SetUint64(matchID))
	if err != nil {
		return MatchRecord{}, err
	}
	if len(vals) != 5 {
		return MatchRecord{}, fmt.Errorf("getMatch: expected 5 outputs, got %d", len(vals))
	}

	return MatchRecord{
		MatchID:    matchID,
		StartTime:  time.Unix(int64(asUint64(vals[0])), 0).UTC(),
		HomeScore:  asUint64(vals[1]),
		AwayScore:  asUint64(vals[2]),
		IsRecorded: asBool(vals[3]),
		Exists:     asBool(vals[4]),
	}, nil
}

// GetUserPrediction fetches the stored pick for a (participant, match) pair.
// A pair with no stored pick comes back with a zero Timestamp.
func (r *Reader) GetUserPrediction(ctx context.Context, participant common.Address, matchID uint64) (Prediction, error) {
	vals, err := r.call(ctx, "getUserPrediction", participant, new(big.Int).SetUint64(matchID))
	if err != nil {
		return Prediction{}, err
	}
	if len(vals) != 2 {
		return Prediction{}, fmt.Errorf("getUserPrediction: expected 2 outputs, got %d", len(vals))
	}

	return Prediction{
		Outcome:   Outcome(asUint8(vals[0])),
		Timestamp: asUint64(vals[1]),
	}, nil
}

// call packs a view call, executes it, and unpacks the outputs
func (r *Reader) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	packed, err := r.contractABI.GetABI().Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	// Packing errors above are permanent; only the backend call is retried
	var result []byte
	err = retry.Do(ctx, r.retryCfg, "contract."+method, func() error {
		res, err := r.backend.CallContract(ctx, ethereum.CallMsg{
			To:   &r.contractAddr,
			Data: packed,
		}, nil)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	vals, err := r.contractABI.GetABI().Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}

	return vals, nil
}

func asUint64(v interface{}) uint64 {
	if b, ok := v.(*big.Int); ok {
		return b.Uint64()
	}
	return 0
}

func asUint8(v interface{}) uint8 {
	switch n := v.(type) {
	case uint8:
		return n
	case *big.Int:
		return uint8(n.Uint64())
	}
	return 0
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}
