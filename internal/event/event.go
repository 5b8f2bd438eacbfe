package event

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeRailCreated
	EventTypeRailRateModified
	EventTypeRailLockupModified
	EventTypeRailTerminated
	EventTypeRailSettled
	EventTypeRailOneTimePaymentProcessed
	EventTypeRailFinalized
	EventTypeAccountLockupSettled
	EventTypeOperatorApprovalUpdated
	EventTypeDepositRecorded
	EventTypeWithdrawRecorded
	EventTypeBurnForFeesCall
)

// AllEventTypes lists every known discriminator in declaration order.
var AllEventTypes = []EventType{
	EventTypeRailCreated,
	EventTypeRailRateModified,
	EventTypeRailLockupModified,
	EventTypeRailTerminated,
	EventTypeRailSettled,
	EventTypeRailOneTimePaymentProcessed,
	EventTypeRailFinalized,
	EventTypeAccountLockupSettled,
	EventTypeOperatorApprovalUpdated,
	EventTypeDepositRecorded,
	EventTypeWithdrawRecorded,
	EventTypeBurnForFeesCall,
}

// Block is the block an event was emitted in.
type Block struct {
	Number    uint64 `json:"number"`
	Timestamp uint64 `json:"timestamp"`
}

// Tx identifies the emitting transaction. LogIndex is the log position
// within the block; Index is the transaction position within the block.
type Tx struct {
	Hash     common.Hash `json:"hash"`
	LogIndex uint        `json:"log_index"`
	Index    uint        `json:"index"`
}

// Meta is embedded in every event.
type Meta struct {
	Block Block `json:"block"`
	Tx    Tx    `json:"transaction"`
}

func (m Meta) EventMeta() Meta {
	return m
}

// IdempotencyKey is txHash:logIndex for log-derived events.
func (m Meta) IdempotencyKey() string {
	return fmt.Sprintf("%s:%d", m.Tx.Hash.Hex(), m.Tx.LogIndex)
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// EventMeta returns the block and transaction context
	EventMeta() Meta
}

func (et EventType) String() string {
	switch et {
	case EventTypeRailCreated:
		return "RailCreated"
	case EventTypeRailRateModified:
		return "RailRateModified"
	case EventTypeRailLockupModified:
		return "RailLockupModified"
	case EventTypeRailTerminated:
		return "RailTerminated"
	case EventTypeRailSettled:
		return "RailSettled"
	case EventTypeRailOneTimePaymentProcessed:
		return "RailOneTimePaymentProcessed"
	case EventTypeRailFinalized:
		return "RailFinalized"
	case EventTypeAccountLockupSettled:
		return "AccountLockupSettled"
	case EventTypeOperatorApprovalUpdated:
		return "OperatorApprovalUpdated"
	case EventTypeDepositRecorded:
		return "DepositRecorded"
	case EventTypeWithdrawRecorded:
		return "WithdrawRecorded"
	case EventTypeBurnForFeesCall:
		return "BurnForFeesCall"
	default:
		return "Unknown"
	}
}

// ParseEventType is the inverse of String. Unknown names return EventTypeUnknown.
func ParseEventType(name string) EventType {
	for _, et := range AllEventTypes {
		if et.String() == name {
			return et
		}
	}
	return EventTypeUnknown
}

// New returns an empty event of the given type, ready to be decoded into.
func New(et EventType) (Event, error) {
	switch et {
	case EventTypeRailCreated:
		return &RailCreated{}, nil
	case EventTypeRailRateModified:
		return &RailRateModified{}, nil
	case EventTypeRailLockupModified:
		return &RailLockupModified{}, nil
	case EventTypeRailTerminated:
		return &RailTerminated{}, nil
	case EventTypeRailSettled:
		return &RailSettled{}, nil
	case EventTypeRailOneTimePaymentProcessed:
		return &RailOneTimePaymentProcessed{}, nil
	case EventTypeRailFinalized:
		return &RailFinalized{}, nil
	case EventTypeAccountLockupSettled:
		return &AccountLockupSettled{}, nil
	case EventTypeOperatorApprovalUpdated:
		return &OperatorApprovalUpdated{}, nil
	case EventTypeDepositRecorded:
		return &DepositRecorded{}, nil
	case EventTypeWithdrawRecorded:
		return &WithdrawRecorded{}, nil
	case EventTypeBurnForFeesCall:
		return &BurnForFeesCall{}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %d", et)
	}
}
