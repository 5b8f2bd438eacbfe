package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

const GenesisHashSeed = "RailLedger:genesis:v1"

// StateHasher chains the applied event stream into a single digest. Two
// replays of the same stream from an empty store end on the same hash.
type StateHasher struct {
	prevHash [32]byte
}

// NewStateHasher initializes with genesis hash
func NewStateHasher() *StateHasher {
	return &StateHasher{
		prevHash: GenesisHash(),
	}
}

// GenesisHash is the chain tip before any event is applied.
func GenesisHash() [32]byte {
	return sha256.Sum256([]byte(GenesisHashSeed))
}

// ComputeHash calculates hash[N] = SHA-256(prev_hash || applied || event_digest)
// and advances the chain tip.
func (h *StateHasher) ComputeHash(applied uint64, eventDigest []byte) [32]byte {
	hasher := sha256.New()

	hasher.Write(h.prevHash[:])

	// applied count (8 bytes LE)
	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], applied)
	hasher.Write(seqBuf[:])

	hasher.Write(eventDigest)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))
	h.prevHash = hash

	return hash
}

// GetPrevHash returns current chain tip
func (h *StateHasher) GetPrevHash() [32]byte {
	return h.prevHash
}

// SetPrevHash restores the chain tip, e.g. from a persisted cursor.
func (h *StateHasher) SetPrevHash(hash [32]byte) {
	h.prevHash = hash
}

// Reset returns the chain to genesis.
func (h *StateHasher) Reset() {
	h.prevHash = GenesisHash()
}

// ParseHash decodes a hex digest as stored in the cursor.
func ParseHash(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("decode digest: %w", err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("digest length %d, want %d", len(raw), len(out))
	}
	copy(out[:], raw)
	return out, nil
}
