package core_test

import (
	"RailLedger/internal/core"
	"context"
	"encoding/hex"
	"errors"
	"testing"
)

type markers map[string]bool

func (m markers) IsProcessed(_ context.Context, key string) (bool, error) {
	return m[key], nil
}

type brokenMarkers struct{}

func (brokenMarkers) IsProcessed(context.Context, string) (bool, error) {
	return false, errors.New("connection reset")
}

func TestIdempotencyLRU_EvictsOldest(t *testing.T) {
	lru := core.NewIdempotencyLRU(2)
	lru.Add("a")
	lru.Add("b")
	lru.Contains("a") // promote a
	lru.Add("c")

	if lru.Contains("b") {
		t.Error("expected b to be evicted")
	}
	if !lru.Contains("a") || !lru.Contains("c") {
		t.Error("expected a and c to remain")
	}
	if lru.Size() != 2 {
		t.Errorf("expected size 2, got %d", lru.Size())
	}
	if lru.Evictions() != 1 {
		t.Errorf("expected 1 eviction, got %d", lru.Evictions())
	}
}

func TestIdempotencyChecker_Tiers(t *testing.T) {
	ctx := context.Background()
	ic := core.NewIdempotencyChecker(8, markers{"0xaa:1": true})

	dup, tier, err := ic.IsDuplicate(ctx, "RailSettled", "0xaa:1")
	if err != nil || !dup || tier != core.TierStore {
		t.Fatalf("first lookup: dup=%v tier=%q err=%v", dup, tier, err)
	}
	dup, tier, _ = ic.IsDuplicate(ctx, "RailSettled", "0xaa:1")
	if !dup || tier != core.TierLRU {
		t.Errorf("second lookup: dup=%v tier=%q, want lru hit", dup, tier)
	}
	dup, _, _ = ic.IsDuplicate(ctx, "RailSettled", "0xbb:0")
	if dup {
		t.Error("expected unseen key to be new")
	}
}

func TestIdempotencyChecker_StoreErrorIsReturned(t *testing.T) {
	ic := core.NewIdempotencyChecker(8, brokenMarkers{})
	dup, _, err := ic.IsDuplicate(context.Background(), "RailSettled", "0xaa:1")
	if err == nil {
		t.Fatal("expected store error")
	}
	if dup {
		t.Error("expected dup=false on error")
	}
}

func TestSequenceValidator(t *testing.T) {
	tests := []struct {
		name      string
		block     uint64
		duplicate bool
		wantErr   bool
	}{
		{"later block", 101, false, false},
		{"same block", 100, false, false},
		{"older block", 99, false, true},
		{"older duplicate", 99, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sv := core.NewSequenceValidator()
			sv.SetLastBlock(100)
			err := sv.Validate(tt.block, tt.duplicate)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%d, %v) = %v, wantErr %v", tt.block, tt.duplicate, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, core.ErrOutOfOrder) {
				t.Errorf("expected ErrOutOfOrder, got %v", err)
			}
		})
	}
}

func TestSequenceValidator_AdvanceKeepsMax(t *testing.T) {
	sv := core.NewSequenceValidator()
	sv.Advance(10)
	sv.Advance(5)
	if sv.LastBlock() != 10 {
		t.Errorf("expected last block 10, got %d", sv.LastBlock())
	}
}

func TestStateHasher_ChainAndRestore(t *testing.T) {
	h := core.NewStateHasher()
	first := h.ComputeHash(1, []byte("a"))
	second := h.ComputeHash(2, []byte("b"))
	if first == second {
		t.Fatal("expected chain to advance")
	}

	restored, err := core.ParseHash(hex.EncodeToString(first[:]))
	if err != nil {
		t.Fatalf("ParseHash failed: %v", err)
	}
	other := core.NewStateHasher()
	other.SetPrevHash(restored)
	if got := other.ComputeHash(2, []byte("b")); got != second {
		t.Errorf("restored chain diverged: %x vs %x", got, second)
	}

	h.Reset()
	if h.GetPrevHash() != core.GenesisHash() {
		t.Error("expected genesis after Reset")
	}
}

func TestParseHash_Invalid(t *testing.T) {
	for _, in := range []string{"zz", "abcd", ""} {
		if _, err := core.ParseHash(in); err == nil {
			t.Errorf("ParseHash(%q) expected error", in)
		}
	}
}
