// internal/event/rail.go
package event

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type RailCreated struct {
	Meta
	RailID              *big.Int       `json:"rail_id"`
	Payer               common.Address `json:"payer"`
	Payee               common.Address `json:"payee"`
	Operator            common.Address `json:"operator"`
	Token               common.Address `json:"token"`
	Validator           common.Address `json:"validator"`
	CommissionRateBps   *big.Int       `json:"commission_rate_bps"`
	ServiceFeeRecipient common.Address `json:"service_fee_recipient"`
}

func (e *RailCreated) EventType() EventType {
	return EventTypeRailCreated
}

type RailRateModified struct {
	Meta
	RailID  *big.Int `json:"rail_id"`
	OldRate *big.Int `json:"old_rate"`
	NewRate *big.Int `json:"new_rate"`
}

func (e *RailRateModified) EventType() EventType {
	return EventTypeRailRateModified
}

type RailLockupModified struct {
	Meta
	RailID          *big.Int `json:"rail_id"`
	OldLockupPeriod *big.Int `json:"old_lockup_period"`
	NewLockupPeriod *big.Int `json:"new_lockup_period"`
	OldLockupFixed  *big.Int `json:"old_lockup_fixed"`
	NewLockupFixed  *big.Int `json:"new_lockup_fixed"`
}

func (e *RailLockupModified) EventType() EventType {
	return EventTypeRailLockupModified
}

type RailTerminated struct {
	Meta
	RailID   *big.Int `json:"rail_id"`
	EndEpoch *big.Int `json:"end_epoch"`
}

func (e *RailTerminated) EventType() EventType {
	return EventTypeRailTerminated
}

type RailSettled struct {
	Meta
	RailID              *big.Int `json:"rail_id"`
	TotalSettledAmount  *big.Int `json:"total_settled_amount"`
	TotalNetPayeeAmount *big.Int `json:"total_net_payee_amount"`
	OperatorCommission  *big.Int `json:"operator_commission"`
	NetworkFee          *big.Int `json:"network_fee"`
	SettledUpTo         *big.Int `json:"settled_up_to"`
}

func (e *RailSettled) EventType() EventType {
	return EventTypeRailSettled
}

// RailOneTimePaymentProcessed carries no gross amount; it is
// commission + net payee + fee.
type RailOneTimePaymentProcessed struct {
	Meta
	RailID             *big.Int `json:"rail_id"`
	NetPayeeAmount     *big.Int `json:"net_payee_amount"`
	OperatorCommission *big.Int `json:"operator_commission"`
	NetworkFee         *big.Int `json:"network_fee"`
}

func (e *RailOneTimePaymentProcessed) EventType() EventType {
	return EventTypeRailOneTimePaymentProcessed
}

type RailFinalized struct {
	Meta
	RailID *big.Int `json:"rail_id"`
}

func (e *RailFinalized) EventType() EventType {
	return EventTypeRailFinalized
}
