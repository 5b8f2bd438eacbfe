// internal/event/account.go
package event

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type AccountLockupSettled struct {
	Meta
	Token               common.Address `json:"token"`
	Owner               common.Address `json:"owner"`
	LockupCurrent       *big.Int       `json:"lockup_current"`
	LockupRate          *big.Int       `json:"lockup_rate"`
	LockupLastSettledAt *big.Int       `json:"lockup_last_settled_at"`
}

func (e *AccountLockupSettled) EventType() EventType {
	return EventTypeAccountLockupSettled
}

type OperatorApprovalUpdated struct {
	Meta
	Token           common.Address `json:"token"`
	Client          common.Address `json:"client"`
	Operator        common.Address `json:"operator"`
	Approved        bool           `json:"approved"`
	RateAllowance   *big.Int       `json:"rate_allowance"`
	LockupAllowance *big.Int       `json:"lockup_allowance"`
	MaxLockupPeriod *big.Int       `json:"max_lockup_period"`
}

func (e *OperatorApprovalUpdated) EventType() EventType {
	return EventTypeOperatorApprovalUpdated
}

type DepositRecorded struct {
	Meta
	Token  common.Address `json:"token"`
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

func (e *DepositRecorded) EventType() EventType {
	return EventTypeDepositRecorded
}

type WithdrawRecorded struct {
	Meta
	Token  common.Address `json:"token"`
	From   common.Address `json:"from"`
	Amount *big.Int       `json:"amount"`
}

func (e *WithdrawRecorded) EventType() EventType {
	return EventTypeWithdrawRecorded
}

// BurnForFeesInputs are the decoded arguments of burnForFees.
type BurnForFeesInputs struct {
	Token     common.Address `json:"token"`
	Recipient common.Address `json:"recipient"`
	Requested *big.Int       `json:"requested"`
}

// BurnForFeesCall is derived from a transaction calling burnForFees rather
// than from a log, so it is keyed by transaction index.
type BurnForFeesCall struct {
	Meta
	Inputs BurnForFeesInputs `json:"inputs"`
	// Value is the native amount sent with the call.
	Value *big.Int `json:"value"`
}

func (e *BurnForFeesCall) EventType() EventType {
	return EventTypeBurnForFeesCall
}

func (e *BurnForFeesCall) IdempotencyKey() string {
	return fmt.Sprintf("call:%s:%d", e.Tx.Hash.Hex(), e.Tx.Index)
}
