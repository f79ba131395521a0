package contract

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// ErrBatchWriteFailed marks an ambiguous or reverted result-recording
// transaction. The caller must not re-derive and resubmit within the same
// run: the write may have landed even when the confirmation was lost.
var ErrBatchWriteFailed = errors.New("result batch write failed")

// Recorder submits result-recording batches to the game contract.
// The underlying recordResults call is NOT idempotent; callers are expected
// to hand it duplicate-free batches only.
type Recorder struct {
	client       *ethclient.Client
	contractAddr common.Address
	contractABI  *ContractABI
	privateKey   *ecdsa.PrivateKey
	writerAddr   common.Address
	chainID      *big.Int
}

// RecordingResult holds the outcome of a batch submission
type RecordingResult struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
	PairCount   int
	Success     bool
}

// NewRecorder creates a recorder signing with the given hex private key
func NewRecorder(client *ethclient.Client, contractAddr string, writerPrivateKey string, chainID int64) (*Recorder, error) {
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("invalid contract address: %s", contractAddr)
	}

	privateKey, err := crypto.HexToECDSA(writerPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid writer private key: %w", err)
	}

	contractABI, err := ParseGameABI()
	if err != nil {
		return nil, err
	}

	return &Recorder{
		client:       client,
		contractAddr: common.HexToAddress(contractAddr),
		contractABI:  contractABI,
		privateKey:   privateKey,
		writerAddr:   crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:      big.NewInt(chainID),
	}, nil
}

// RecordResults submits one batch as a single transaction and waits for the
// receipt. A failed or reverted transaction surfaces as ErrBatchWriteFailed;
// it is never retried here.
func (r *Recorder) RecordResults(ctx context.Context, batch []ResultEntry) (*RecordingResult, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("refusing to submit an empty result batch")
	}

	// The contract takes parallel arrays
	participants := make([]common.Address, len(batch))
	matchIDs := make([]*big.Int, len(batch))
	correct := make([]bool, len(batch))
	for i, entry := range batch {
		participants[i] = entry.Participant
		matchIDs[i] = new(big.Int).SetUint64(entry.MatchID)
		correct[i] = entry.IsCorrect
	}

	data, err := r.contractABI.GetABI().Pack("recordResults", participants, matchIDs, correct)
	if err != nil {
		return nil, fmt.Errorf("failed to pack recordResults call: %w", err)
	}

	// Estimate gas with a 20% buffer
	gasLimit, err := r.client.EstimateGas(ctx, ethereum.CallMsg{
		From: r.writerAddr,
		To:   &r.contractAddr,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}
	gasLimit = uint64(float64(gasLimit) * 1.2)

	nonce, err := r.client.PendingNonceAt(ctx, r.writerAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := r.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, r.contractAddr, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(r.chainID), r.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"tx_hash":   signedTx.Hash().Hex(),
		"pairs":     len(batch),
		"gas_limit": gasLimit,
		"nonce":     nonce,
	}).Info("📤 Submitting result batch")

	if err := r.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("%w: send: %v", ErrBatchWriteFailed, err)
	}

	receipt, err := bind.WaitMined(ctx, r.client, signedTx)
	if err != nil {
		// Ambiguous: the tx may still mine after the wait failed
		return &RecordingResult{
			TxHash:    signedTx.Hash().Hex(),
			PairCount: len(batch),
			Success:   false,
		}, fmt.Errorf("%w: wait: %v", ErrBatchWriteFailed, err)
	}

	result := &RecordingResult{
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		PairCount:   len(batch),
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
	}

	if !result.Success {
		logrus.WithFields(logrus.Fields{
			"tx_hash": result.TxHash,
			"pairs":   result.PairCount,
		}).Error("❌ Result batch reverted")
		return result, fmt.Errorf("%w: transaction reverted", ErrBatchWriteFailed)
	}

	logrus.WithFields(logrus.Fields{
		"tx_hash":      result.TxHash,
		"block_number": result.BlockNumber,
		"gas_used":     result.GasUsed,
		"pairs":        result.PairCount,
	}).Info("✅ Result batch recorded")

	return result, nil
}

// WriterAddress returns the address derived from the writer key
func (r *Recorder) WriterAddress() common.Address {
	return r.writerAddr
}
