package rediskeys

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// KeyBuilder generates redis keys namespaced by the game contract so several
// deployments can share one redis instance.
type KeyBuilder struct {
	Contract string
}

// checksumAddress converts an Ethereum address to EIP-55 checksummed format
// so keys stay consistent regardless of how the address was configured.
func checksumAddress(addr string) string {
	if addr == "" {
		return addr
	}
	if common.IsHexAddress(addr) {
		return common.HexToAddress(addr).Hex()
	}
	return addr
}

// NewKeyBuilder creates a KeyBuilder namespaced by the game contract address
func NewKeyBuilder(contractAddr string) *KeyBuilder {
	return &KeyBuilder{Contract: checksumAddress(contractAddr)}
}

// Leaderboard returns the key for the serialized leaderboard snapshot blob
func (kb *KeyBuilder) Leaderboard() string {
	return fmt.Sprintf("%s:leaderboard", kb.Contract)
}

// LeaderboardUpdated returns the key for the snapshot's last-updated timestamp
func (kb *KeyBuilder) LeaderboardUpdated() string {
	return fmt.Sprintf("%s:leaderboard:updated", kb.Contract)
}

// RecordedPairs returns the SET key holding the idempotency ledger of
// already-submitted (participant, matchId) pairs
func (kb *KeyBuilder) RecordedPairs() string {
	return fmt.Sprintf("%s:recording:ledger", kb.Contract)
}

// RecordedPairMember formats one ledger set member
func (kb *KeyBuilder) RecordedPairMember(participant common.Address, matchID uint64) string {
	return fmt.Sprintf("%s:%d", participant.Hex(), matchID)
}

// ReconciliationReport returns the key for the latest diagnostic report
func (kb *KeyBuilder) ReconciliationReport() string {
	return fmt.Sprintf("%s:reconciliation:report", kb.Contract)
}

// RegenState returns the key for the last regeneration's diagnostics
func (kb *KeyBuilder) RegenState() string {
	return fmt.Sprintf("%s:regen:state", kb.Contract)
}

// RecordingState returns the key for the last recording cycle's diagnostics
func (kb *KeyBuilder) RecordingState() string {
	return fmt.Sprintf("%s:recording:state", kb.Contract)
}
