package entity

import (
	bmath "RailLedger/internal/math"
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Entity kinds, used as the store namespace.
const (
	KindAccount            = "Account"
	KindToken              = "Token"
	KindUserToken          = "UserToken"
	KindOperator           = "Operator"
	KindOperatorToken      = "OperatorToken"
	KindOperatorApproval   = "OperatorApproval"
	KindRail               = "Rail"
	KindRateChangeQueue    = "RateChangeQueue"
	KindSettlement         = "Settlement"
	KindOneTimePayment     = "OneTimePayment"
	KindLockupModification = "LockupModification"
	KindFeeAuctionPurchase = "FeeAuctionPurchase"
	KindPaymentsMetric     = "PaymentsMetric"
	KindCursor             = "Cursor"
	KindProcessedEvent     = "ProcessedEvent"
)

// PaymentsMetricID is the id of the global metrics singleton.
const PaymentsMetricID = "global"

// CursorID is the id of the reducer cursor singleton.
const CursorID = "reducer"

// NativeTokenAddress is the sentinel used by the payments contract for FIL.
var NativeTokenAddress = common.Address{}

// IsNativeToken reports whether token is the FIL sentinel.
func IsNativeToken(token common.Address) bool {
	return token == NativeTokenAddress
}

func concat(parts ...[]byte) string {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	buf := make([]byte, 0, n)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return hexutil.Encode(buf)
}

func AccountID(addr common.Address) string {
	return concat(addr.Bytes())
}

func TokenID(addr common.Address) string {
	return concat(addr.Bytes())
}

func OperatorID(addr common.Address) string {
	return concat(addr.Bytes())
}

// UserTokenID is account ‖ token.
func UserTokenID(account, token common.Address) string {
	return concat(account.Bytes(), token.Bytes())
}

// OperatorTokenID is operator ‖ token.
func OperatorTokenID(operator, token common.Address) string {
	return concat(operator.Bytes(), token.Bytes())
}

// OperatorApprovalID is client ‖ operator ‖ token.
func OperatorApprovalID(client, operator, token common.Address) string {
	return concat(client.Bytes(), operator.Bytes(), token.Bytes())
}

// RailID renders a rail id as a 32-byte big-endian word.
func RailID(railID *big.Int) string {
	return concat(common.BigToHash(bmath.OrZero(railID)).Bytes())
}

// RateChangeQueueID is railId ‖ startEpoch, both as 32-byte words.
func RateChangeQueueID(railID, startEpoch *big.Int) string {
	return concat(common.BigToHash(bmath.OrZero(railID)).Bytes(), common.BigToHash(bmath.OrZero(startEpoch)).Bytes())
}

// EventID is txHash ‖ index (4 bytes big-endian). Used for audit rows.
func EventID(txHash common.Hash, index uint) string {
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], uint32(index))
	return concat(txHash.Bytes(), idx[:])
}
