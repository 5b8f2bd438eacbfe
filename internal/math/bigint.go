// internal/math/bigint.go
package math

import (
	"math/big"
)

// EpochDuration is the Filecoin block time in seconds.
const EpochDuration = 30

// Zero returns a fresh zero value.
func Zero() *big.Int {
	return new(big.Int)
}

// OrZero returns v, or a fresh zero when v is nil.
// Entities decoded from older store rows may carry nil fields.
func OrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// Clone returns a copy of v that can be mutated independently.
func Clone(v *big.Int) *big.Int {
	return new(big.Int).Set(OrZero(v))
}

func FromUint64(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

// Add returns a + b as a new value.
func Add(a, b *big.Int) *big.Int {
	return new(big.Int).Add(OrZero(a), OrZero(b))
}

// Sub returns a - b as a new value. The result may be negative; use
// SaturatingSub where the ledger floors at zero.
func Sub(a, b *big.Int) *big.Int {
	return new(big.Int).Sub(OrZero(a), OrZero(b))
}

// Mul returns a * b as a new value.
func Mul(a, b *big.Int) *big.Int {
	return new(big.Int).Mul(OrZero(a), OrZero(b))
}

// Inc returns v + 1 as a new value.
func Inc(v *big.Int) *big.Int {
	return new(big.Int).Add(OrZero(v), big.NewInt(1))
}

// Dec returns v - 1 as a new value.
func Dec(v *big.Int) *big.Int {
	return new(big.Int).Sub(OrZero(v), big.NewInt(1))
}

// SaturatingSub returns a - b, or zero when b > a.
// Mirrors the payments contract's floored subtraction.
func SaturatingSub(a, b *big.Int) *big.Int {
	a, b = OrZero(a), OrZero(b)
	if b.Cmp(a) > 0 {
		return new(big.Int)
	}
	return new(big.Int).Sub(a, b)
}

// ClampZero returns v, or zero when v is negative.
func ClampZero(v *big.Int) *big.Int {
	if v == nil || v.Sign() < 0 {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// ApplyDeltaClamped returns usage - oldValue + newValue, clamped at zero.
// The intermediate result is unbounded; only the final value is floored.
func ApplyDeltaClamped(usage, oldValue, newValue *big.Int) *big.Int {
	v := new(big.Int).Sub(OrZero(usage), OrZero(oldValue))
	v.Add(v, OrZero(newValue))
	return ClampZero(v)
}

func IsZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}

func IsPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

// Equal compares two values treating nil as zero.
func Equal(a, b *big.Int) bool {
	return OrZero(a).Cmp(OrZero(b)) == 0
}

// EqualUint64 reports whether v == u.
func EqualUint64(v *big.Int, u uint64) bool {
	return OrZero(v).Cmp(new(big.Int).SetUint64(u)) == 0
}

// EpochTimestamp reconstructs the wall-clock timestamp of a past epoch from
// the current block: when epoch == blockNumber the block timestamp is
// returned verbatim, otherwise blockTimestamp - (blockNumber-epoch)*EpochDuration.
func EpochTimestamp(epoch *big.Int, blockNumber, blockTimestamp uint64) *big.Int {
	epoch = OrZero(epoch)
	number := new(big.Int).SetUint64(blockNumber)
	ts := new(big.Int).SetUint64(blockTimestamp)
	if epoch.Cmp(number) == 0 {
		return ts
	}

	elapsed := new(big.Int).Sub(number, epoch)
	elapsed.Mul(elapsed, big.NewInt(EpochDuration))
	return ts.Sub(ts, elapsed)
}
