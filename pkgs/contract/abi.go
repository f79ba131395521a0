package contract

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// GameABI covers the slice of the prediction game contract this engine touches:
// the three consumed events, the point reads, and the batch result write.
const GameABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "address", "name": "participant", "type": "address"},
			{"indexed": false, "internalType": "uint256[]", "name": "matchIds", "type": "uint256[]"},
			{"indexed": false, "internalType": "uint256", "name": "unitCount", "type": "uint256"},
			{"indexed": false, "internalType": "uint256", "name": "freeUnitsUsed", "type": "uint256"},
			{"indexed": false, "internalType": "uint256", "name": "feePaid", "type": "uint256"}
		],
		"name": "PredictionsSubmitted",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "uint256", "name": "matchId", "type": "uint256"},
			{"indexed": false, "internalType": "uint256", "name": "startTime", "type": "uint256"}
		],
		"name": "MatchRegistered",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "address", "name": "participant", "type": "address"},
			{"indexed": false, "internalType": "uint256", "name": "matchId", "type": "uint256"},
			{"indexed": false, "internalType": "bool", "name": "correct", "type": "bool"}
		],
		"name": "ResultRecorded",
		"type": "event"
	},
	{
		"inputs": [{"internalType": "address", "name": "participant", "type": "address"}],
		"name": "getUserStats",
		"outputs": [
			{"internalType": "uint256", "name": "correctCount", "type": "uint256"},
			{"internalType": "uint256", "name": "totalCount", "type": "uint256"},
			{"internalType": "uint256", "name": "currentStreak", "type": "uint256"},
			{"internalType": "uint256", "name": "longestStreak", "type": "uint256"},
			{"internalType": "uint256", "name": "freeUnitsUsed", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "matchId", "type": "uint256"}],
		"name": "getMatch",
		"outputs": [
			{"internalType": "uint256", "name": "startTime", "type": "uint256"},
			{"internalType": "uint256", "name": "homeScore", "type": "uint256"},
			{"internalType": "uint256", "name": "awayScore", "type": "uint256"},
			{"internalType": "bool", "name": "isRecorded", "type": "bool"},
			{"internalType": "bool", "name": "exists", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "participant", "type": "address"},
			{"internalType": "uint256", "name": "matchId", "type": "uint256"}
		],
		"name": "getUserPrediction",
		"outputs": [
			{"internalType": "uint8", "name": "outcome", "type": "uint8"},
			{"internalType": "uint256", "name": "timestamp", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address[]", "name": "participants", "type": "address[]"},
			{"internalType": "uint256[]", "name": "matchIds", "type": "uint256[]"},
			{"internalType": "bool[]", "name": "correct", "type": "bool[]"}
		],
		"name": "recordResults",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// ContractABI holds the parsed ABI and precomputed event signature hashes
type ContractABI struct {
	abi         abi.ABI
	eventHashes map[string]common.Hash // event name -> keccak256 hash
}

// ParseGameABI parses the embedded game contract ABI
func ParseGameABI() (*ContractABI, error) {
	return ParseContractABI(GameABI)
}

// ParseContractABI parses an ABI JSON string and precomputes event hashes
func ParseContractABI(raw string) (*ContractABI, error) {
	parsedABI, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	contractABI := &ContractABI{
		abi:         parsedABI,
		eventHashes: make(map[string]common.Hash),
	}

	// Pre-compute event hashes
	for eventName, event := range parsedABI.Events {
		// The event.Sig already contains the canonical signature string
		hash := crypto.Keccak256Hash([]byte(event.Sig))
		contractABI.eventHashes[eventName] = hash
	}

	return contractABI, nil
}

// GetEventHash returns the keccak256 hash for a given event name
func (c *ContractABI) GetEventHash(eventName string) (common.Hash, error) {
	hash, exists := c.eventHashes[eventName]
	if !exists {
		return common.Hash{}, fmt.Errorf("event %s not found in ABI", eventName)
	}
	return hash, nil
}

// HasEvent checks if an event exists in the ABI
func (c *ContractABI) HasEvent(eventName string) bool {
	_, exists := c.abi.Events[eventName]
	return exists
}

// EventBySignature resolves an event name from a topic-0 hash
func (c *ContractABI) EventBySignature(sig common.Hash) (string, bool) {
	for name, hash := range c.eventHashes {
		if hash == sig {
			return name, true
		}
	}
	return "", false
}

// GetABI returns the underlying parsed ABI
func (c *ContractABI) GetABI() abi.ABI {
	return c.abi
}
