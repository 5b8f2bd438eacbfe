package entity

import (
	bmath "RailLedger/internal/math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Account is a payer, payee, or approving client.
type Account struct {
	Address        common.Address `json:"address"`
	TotalRails     *big.Int       `json:"total_rails"`
	TotalApprovals *big.Int       `json:"total_approvals"`
	TotalTokens    *big.Int       `json:"total_tokens"`
}

func NewAccount(addr common.Address) *Account {
	return &Account{
		Address:        addr,
		TotalRails:     bmath.Zero(),
		TotalApprovals: bmath.Zero(),
		TotalTokens:    bmath.Zero(),
	}
}

// Token aggregates every movement of one token through the contract.
type Token struct {
	Address               common.Address `json:"address"`
	Name                  string         `json:"name"`
	Symbol                string         `json:"symbol"`
	Decimals              *big.Int       `json:"decimals"`
	UserFunds             *big.Int       `json:"user_funds"`
	Volume                *big.Int       `json:"volume"`
	TotalDeposits         *big.Int       `json:"total_deposits"`
	TotalWithdrawals      *big.Int       `json:"total_withdrawals"`
	TotalSettledAmount    *big.Int       `json:"total_settled_amount"`
	TotalFees             *big.Int       `json:"total_fees"`
	AccumulatedFees       *big.Int       `json:"accumulated_fees"`
	OperatorCommission    *big.Int       `json:"operator_commission"`
	TotalUsers            *big.Int       `json:"total_users"`
	TotalFilBurnedForFees *big.Int       `json:"total_fil_burned_for_fees"`
}

func NewToken(addr common.Address, name, symbol string, decimals uint8) *Token {
	return &Token{
		Address:               addr,
		Name:                  name,
		Symbol:                symbol,
		Decimals:              big.NewInt(int64(decimals)),
		UserFunds:             bmath.Zero(),
		Volume:                bmath.Zero(),
		TotalDeposits:         bmath.Zero(),
		TotalWithdrawals:      bmath.Zero(),
		TotalSettledAmount:    bmath.Zero(),
		TotalFees:             bmath.Zero(),
		AccumulatedFees:       bmath.Zero(),
		OperatorCommission:    bmath.Zero(),
		TotalUsers:            bmath.Zero(),
		TotalFilBurnedForFees: bmath.Zero(),
	}
}

// UserToken is one account's wallet for one token.
type UserToken struct {
	Account                         common.Address `json:"account"`
	Token                           common.Address `json:"token"`
	Funds                           *big.Int       `json:"funds"`
	LockupCurrent                   *big.Int       `json:"lockup_current"`
	LockupRate                      *big.Int       `json:"lockup_rate"`
	LockupLastSettledUntilEpoch     *big.Int       `json:"lockup_last_settled_until_epoch"`
	LockupLastSettledUntilTimestamp *big.Int       `json:"lockup_last_settled_until_timestamp"`
	Payout                          *big.Int       `json:"payout"`
	FundsCollected                  *big.Int       `json:"funds_collected"`
}

func NewUserToken(account, token common.Address) *UserToken {
	return &UserToken{
		Account:                         account,
		Token:                           token,
		Funds:                           bmath.Zero(),
		LockupCurrent:                   bmath.Zero(),
		LockupRate:                      bmath.Zero(),
		LockupLastSettledUntilEpoch:     bmath.Zero(),
		LockupLastSettledUntilTimestamp: bmath.Zero(),
		Payout:                          bmath.Zero(),
		FundsCollected:                  bmath.Zero(),
	}
}

func (u *UserToken) ID() string {
	return UserTokenID(u.Account, u.Token)
}

type Operator struct {
	Address        common.Address `json:"address"`
	TotalRails     *big.Int       `json:"total_rails"`
	TotalApprovals *big.Int       `json:"total_approvals"`
	TotalTokens    *big.Int       `json:"total_tokens"`
}

func NewOperator(addr common.Address) *Operator {
	return &Operator{
		Address:        addr,
		TotalRails:     bmath.Zero(),
		TotalApprovals: bmath.Zero(),
		TotalTokens:    bmath.Zero(),
	}
}

// OperatorToken aggregates all approvals and rails of one operator for one token.
type OperatorToken struct {
	Operator         common.Address `json:"operator"`
	Token            common.Address `json:"token"`
	LockupAllowance  *big.Int       `json:"lockup_allowance"`
	RateAllowance    *big.Int       `json:"rate_allowance"`
	LockupUsage      *big.Int       `json:"lockup_usage"`
	RateUsage        *big.Int       `json:"rate_usage"`
	CommissionEarned *big.Int       `json:"commission_earned"`
	Volume           *big.Int       `json:"volume"`
	SettledAmount    *big.Int       `json:"settled_amount"`
}

func NewOperatorToken(operator, token common.Address) *OperatorToken {
	return &OperatorToken{
		Operator:         operator,
		Token:            token,
		LockupAllowance:  bmath.Zero(),
		RateAllowance:    bmath.Zero(),
		LockupUsage:      bmath.Zero(),
		RateUsage:        bmath.Zero(),
		CommissionEarned: bmath.Zero(),
		Volume:           bmath.Zero(),
		SettledAmount:    bmath.Zero(),
	}
}

// ApplyLockupDelta moves lockup usage from oldLockup to newLockup, floored at zero.
func (o *OperatorToken) ApplyLockupDelta(oldLockup, newLockup *big.Int) {
	o.LockupUsage = bmath.ApplyDeltaClamped(o.LockupUsage, oldLockup, newLockup)
}

// ApplyRateDelta moves rate usage from oldRate to newRate, floored at zero.
func (o *OperatorToken) ApplyRateDelta(oldRate, newRate *big.Int) {
	o.RateUsage = bmath.ApplyDeltaClamped(o.RateUsage, oldRate, newRate)
}

// OperatorApproval is a client's allowance granted to an operator for a token.
type OperatorApproval struct {
	Client          common.Address `json:"client"`
	Operator        common.Address `json:"operator"`
	Token           common.Address `json:"token"`
	LockupAllowance *big.Int       `json:"lockup_allowance"`
	RateAllowance   *big.Int       `json:"rate_allowance"`
	LockupUsage     *big.Int       `json:"lockup_usage"`
	RateUsage       *big.Int       `json:"rate_usage"`
	IsApproved      bool           `json:"is_approved"`
	MaxLockupPeriod *big.Int       `json:"max_lockup_period"`
}

func NewOperatorApproval(client, operator, token common.Address) *OperatorApproval {
	return &OperatorApproval{
		Client:          client,
		Operator:        operator,
		Token:           token,
		LockupAllowance: bmath.Zero(),
		RateAllowance:   bmath.Zero(),
		LockupUsage:     bmath.Zero(),
		RateUsage:       bmath.Zero(),
		MaxLockupPeriod: bmath.Zero(),
	}
}

func (a *OperatorApproval) ID() string {
	return OperatorApprovalID(a.Client, a.Operator, a.Token)
}

// ApplyLockupDelta moves lockup usage from oldLockup to newLockup, floored at zero.
func (a *OperatorApproval) ApplyLockupDelta(oldLockup, newLockup *big.Int) {
	a.LockupUsage = bmath.ApplyDeltaClamped(a.LockupUsage, oldLockup, newLockup)
}

// ApplyRateDelta moves rate usage from oldRate to newRate, floored at zero.
func (a *OperatorApproval) ApplyRateDelta(oldRate, newRate *big.Int) {
	a.RateUsage = bmath.ApplyDeltaClamped(a.RateUsage, oldRate, newRate)
}

// Rail is a payment stream from payer to payee under an operator.
type Rail struct {
	RailID              *big.Int       `json:"rail_id"`
	Payer               common.Address `json:"payer"`
	Payee               common.Address `json:"payee"`
	Operator            common.Address `json:"operator"`
	Token               common.Address `json:"token"`
	Validator           common.Address `json:"validator"`
	ServiceFeeRecipient common.Address `json:"service_fee_recipient"`
	CommissionRateBps   *big.Int       `json:"commission_rate_bps"`
	PaymentRate         *big.Int       `json:"payment_rate"`
	LockupFixed         *big.Int       `json:"lockup_fixed"`
	LockupPeriod        *big.Int       `json:"lockup_period"`
	SettledUpto         *big.Int       `json:"settled_upto"`
	State               RailState      `json:"state"`
	EndEpoch            *big.Int       `json:"end_epoch"`

	TotalSettledAmount   *big.Int `json:"total_settled_amount"`
	TotalNetPayeeAmount  *big.Int `json:"total_net_payee_amount"`
	TotalCommission      *big.Int `json:"total_commission"`
	TotalFees            *big.Int `json:"total_fees"`
	TotalSettlements     *big.Int `json:"total_settlements"`
	TotalOneTimePayments *big.Int `json:"total_one_time_payments"`
	TotalRateChanges     *big.Int `json:"total_rate_changes"`
	CreatedAt            *big.Int `json:"created_at"`

	// RateChangeQueue holds RateChangeQueue ids in insertion order.
	RateChangeQueue []string `json:"rate_change_queue"`
}

// RailParams are the immutable fields fixed at rail creation.
type RailParams struct {
	RailID              *big.Int
	Payer               common.Address
	Payee               common.Address
	Operator            common.Address
	Token               common.Address
	Validator           common.Address
	ServiceFeeRecipient common.Address
	CommissionRateBps   *big.Int
}

// NewRail creates a zero-rate rail settled up to settledUpto.
func NewRail(p RailParams, settledUpto, createdAt *big.Int) *Rail {
	return &Rail{
		RailID:               bmath.Clone(p.RailID),
		Payer:                p.Payer,
		Payee:                p.Payee,
		Operator:             p.Operator,
		Token:                p.Token,
		Validator:            p.Validator,
		ServiceFeeRecipient:  p.ServiceFeeRecipient,
		CommissionRateBps:    bmath.Clone(p.CommissionRateBps),
		PaymentRate:          bmath.Zero(),
		LockupFixed:          bmath.Zero(),
		LockupPeriod:         bmath.Zero(),
		SettledUpto:          bmath.Clone(settledUpto),
		State:                RailStateZeroRate,
		EndEpoch:             bmath.Zero(),
		TotalSettledAmount:   bmath.Zero(),
		TotalNetPayeeAmount:  bmath.Zero(),
		TotalCommission:      bmath.Zero(),
		TotalFees:            bmath.Zero(),
		TotalSettlements:     bmath.Zero(),
		TotalOneTimePayments: bmath.Zero(),
		TotalRateChanges:     bmath.Zero(),
		CreatedAt:            bmath.Clone(createdAt),
	}
}

func (r *Rail) ID() string {
	return RailID(r.RailID)
}

// FullLockup is lockupFixed + lockupPeriod * paymentRate.
func (r *Rail) FullLockup() *big.Int {
	return bmath.Add(r.LockupFixed, bmath.Mul(r.LockupPeriod, r.PaymentRate))
}

// ApprovalID is the id of the payer's approval for this rail's operator.
func (r *Rail) ApprovalID() string {
	return OperatorApprovalID(r.Payer, r.Operator, r.Token)
}

// RateChangeQueueEntry is a historical rate interval awaiting settlement.
type RateChangeQueueEntry struct {
	Rail       string   `json:"rail"`
	StartEpoch *big.Int `json:"start_epoch"`
	UntilEpoch *big.Int `json:"until_epoch"`
	Rate       *big.Int `json:"rate"`
}

// Settlement is the audit row for one RailSettled event.
type Settlement struct {
	Rail                string      `json:"rail"`
	TotalSettledAmount  *big.Int    `json:"total_settled_amount"`
	TotalNetPayeeAmount *big.Int    `json:"total_net_payee_amount"`
	OperatorCommission  *big.Int    `json:"operator_commission"`
	Fee                 *big.Int    `json:"fee"`
	SettledUpto         *big.Int    `json:"settled_upto"`
	BlockNumber         uint64      `json:"block_number"`
	BlockTimestamp      uint64      `json:"block_timestamp"`
	TransactionHash     common.Hash `json:"transaction_hash"`
}

// OneTimePayment is the audit row for one RailOneTimePaymentProcessed event.
type OneTimePayment struct {
	Rail               string      `json:"rail"`
	NetPayeeAmount     *big.Int    `json:"net_payee_amount"`
	OperatorCommission *big.Int    `json:"operator_commission"`
	Fee                *big.Int    `json:"fee"`
	GrossAmount        *big.Int    `json:"gross_amount"`
	BlockNumber        uint64      `json:"block_number"`
	BlockTimestamp     uint64      `json:"block_timestamp"`
	TransactionHash    common.Hash `json:"transaction_hash"`
}

// LockupModification is the audit row for one RailLockupModified event.
type LockupModification struct {
	Rail            string      `json:"rail"`
	OldLockupPeriod *big.Int    `json:"old_lockup_period"`
	NewLockupPeriod *big.Int    `json:"new_lockup_period"`
	OldLockupFixed  *big.Int    `json:"old_lockup_fixed"`
	NewLockupFixed  *big.Int    `json:"new_lockup_fixed"`
	BlockNumber     uint64      `json:"block_number"`
	BlockTimestamp  uint64      `json:"block_timestamp"`
	TransactionHash common.Hash `json:"transaction_hash"`
}

// FeeAuctionPurchase is the audit row for one burnForFees call.
type FeeAuctionPurchase struct {
	Token           common.Address `json:"token"`
	Recipient       common.Address `json:"recipient"`
	AmountPurchased *big.Int       `json:"amount_purchased"`
	FilBurned       *big.Int       `json:"fil_burned"`
	BlockNumber     uint64         `json:"block_number"`
	BlockTimestamp  uint64         `json:"block_timestamp"`
	TransactionHash common.Hash    `json:"transaction_hash"`
}

// PaymentsMetric holds network-wide counters.
type PaymentsMetric struct {
	TotalRails               *big.Int `json:"total_rails"`
	TotalOperators           *big.Int `json:"total_operators"`
	TotalTokens              *big.Int `json:"total_tokens"`
	TotalAccounts            *big.Int `json:"total_accounts"`
	TotalFilBurned           *big.Int `json:"total_fil_burned"`
	TotalRailSettlements     *big.Int `json:"total_rail_settlements"`
	TotalOneTimePayments     *big.Int `json:"total_one_time_payments"`
	TotalFeeAuctionPurchases *big.Int `json:"total_fee_auction_purchases"`
	TotalZeroRateRails       *big.Int `json:"total_zero_rate_rails"`
	TotalActiveRails         *big.Int `json:"total_active_rails"`
	TotalTerminatedRails     *big.Int `json:"total_terminated_rails"`
	TotalFinalizedRails      *big.Int `json:"total_finalized_rails"`
	UniquePayers             *big.Int `json:"unique_payers"`
	UniquePayees             *big.Int `json:"unique_payees"`
}

func NewPaymentsMetric() *PaymentsMetric {
	return &PaymentsMetric{
		TotalRails:               bmath.Zero(),
		TotalOperators:           bmath.Zero(),
		TotalTokens:              bmath.Zero(),
		TotalAccounts:            bmath.Zero(),
		TotalFilBurned:           bmath.Zero(),
		TotalRailSettlements:     bmath.Zero(),
		TotalOneTimePayments:     bmath.Zero(),
		TotalFeeAuctionPurchases: bmath.Zero(),
		TotalZeroRateRails:       bmath.Zero(),
		TotalActiveRails:         bmath.Zero(),
		TotalTerminatedRails:     bmath.Zero(),
		TotalFinalizedRails:      bmath.Zero(),
		UniquePayers:             bmath.Zero(),
		UniquePayees:             bmath.Zero(),
	}
}

// Cursor records how far the reducer has consumed the event stream.
type Cursor struct {
	Block   uint64 `json:"block"`
	Applied uint64 `json:"applied"`
	Digest  string `json:"digest"`
}

// ProcessedEvent marks an event idempotency key as applied.
type ProcessedEvent struct {
	Key   string `json:"key"`
	Block uint64 `json:"block"`
}
