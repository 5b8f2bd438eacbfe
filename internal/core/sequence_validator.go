package core

import (
	"errors"
	"fmt"
)

// ErrOutOfOrder is returned for a new event older than the last applied block.
var ErrOutOfOrder = errors.New("out-of-order event")

// SequenceValidator enforces block order of the applied stream. Blocks have
// natural gaps, so only regressions are rejected; several events may share
// a block. Not thread-safe: only accessed from the reducer goroutine.
type SequenceValidator struct {
	lastBlock  uint64
	outOfOrder int64
}

func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{}
}

// Validate checks a new event's block against the last applied one.
// Duplicates are let through so the caller can skip them.
func (sv *SequenceValidator) Validate(block uint64, isDuplicate bool) error {
	if block >= sv.lastBlock || isDuplicate {
		return nil
	}
	sv.outOfOrder++
	return fmt.Errorf("%w: last applied block %d, got %d", ErrOutOfOrder, sv.lastBlock, block)
}

// Advance records block as applied.
func (sv *SequenceValidator) Advance(block uint64) {
	if block > sv.lastBlock {
		sv.lastBlock = block
	}
}

// LastBlock returns the last applied block.
func (sv *SequenceValidator) LastBlock() uint64 {
	return sv.lastBlock
}

// SetLastBlock initializes the validator during recovery.
func (sv *SequenceValidator) SetLastBlock(block uint64) {
	sv.lastBlock = block
}

// OutOfOrder returns how many events were rejected.
func (sv *SequenceValidator) OutOfOrder() int64 {
	return sv.outOfOrder
}
