package ingestion

import (
	"RailLedger/internal/event"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrUnknownLog is returned for logs the reducer does not consume.
var ErrUnknownLog = errors.New("unknown log topic")

// paymentsABI is the subset of the FilecoinPay contract the reducer reads.
const paymentsABI = `[
	{"type":"event","name":"RailCreated","inputs":[
		{"name":"railId","type":"uint256","indexed":true},
		{"name":"payer","type":"address","indexed":true},
		{"name":"payee","type":"address","indexed":true},
		{"name":"token","type":"address","indexed":false},
		{"name":"operator","type":"address","indexed":false},
		{"name":"validator","type":"address","indexed":false},
		{"name":"serviceFeeRecipient","type":"address","indexed":false},
		{"name":"commissionRateBps","type":"uint256","indexed":false}]},
	{"type":"event","name":"RailRateModified","inputs":[
		{"name":"railId","type":"uint256","indexed":true},
		{"name":"oldRate","type":"uint256","indexed":false},
		{"name":"newRate","type":"uint256","indexed":false}]},
	{"type":"event","name":"RailLockupModified","inputs":[
		{"name":"railId","type":"uint256","indexed":true},
		{"name":"oldLockupPeriod","type":"uint256","indexed":false},
		{"name":"newLockupPeriod","type":"uint256","indexed":false},
		{"name":"oldLockupFixed","type":"uint256","indexed":false},
		{"name":"newLockupFixed","type":"uint256","indexed":false}]},
	{"type":"event","name":"RailTerminated","inputs":[
		{"name":"railId","type":"uint256","indexed":true},
		{"name":"by","type":"address","indexed":true},
		{"name":"endEpoch","type":"uint256","indexed":false}]},
	{"type":"event","name":"RailSettled","inputs":[
		{"name":"railId","type":"uint256","indexed":true},
		{"name":"totalSettledAmount","type":"uint256","indexed":false},
		{"name":"totalNetPayeeAmount","type":"uint256","indexed":false},
		{"name":"operatorCommission","type":"uint256","indexed":false},
		{"name":"networkFee","type":"uint256","indexed":false},
		{"name":"settledUpTo","type":"uint256","indexed":false}]},
	{"type":"event","name":"RailOneTimePaymentProcessed","inputs":[
		{"name":"railId","type":"uint256","indexed":true},
		{"name":"netPayeeAmount","type":"uint256","indexed":false},
		{"name":"operatorCommission","type":"uint256","indexed":false},
		{"name":"networkFee","type":"uint256","indexed":false}]},
	{"type":"event","name":"RailFinalized","inputs":[
		{"name":"railId","type":"uint256","indexed":true}]},
	{"type":"event","name":"AccountLockupSettled","inputs":[
		{"name":"token","type":"address","indexed":true},
		{"name":"owner","type":"address","indexed":true},
		{"name":"lockupCurrent","type":"uint256","indexed":false},
		{"name":"lockupRate","type":"uint256","indexed":false},
		{"name":"lockupLastSettledAt","type":"uint256","indexed":false}]},
	{"type":"event","name":"OperatorApprovalUpdated","inputs":[
		{"name":"token","type":"address","indexed":true},
		{"name":"client","type":"address","indexed":true},
		{"name":"operator","type":"address","indexed":true},
		{"name":"approved","type":"bool","indexed":false},
		{"name":"rateAllowance","type":"uint256","indexed":false},
		{"name":"lockupAllowance","type":"uint256","indexed":false},
		{"name":"maxLockupPeriod","type":"uint256","indexed":false}]},
	{"type":"event","name":"DepositRecorded","inputs":[
		{"name":"token","type":"address","indexed":true},
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"WithdrawRecorded","inputs":[
		{"name":"token","type":"address","indexed":true},
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"function","name":"burnForFees","stateMutability":"payable","inputs":[
		{"name":"token","type":"address"},
		{"name":"recipient","type":"address"},
		{"name":"requested","type":"uint256"}],"outputs":[]}
]`

// PaymentsABI is the parsed FilecoinPay interface.
var PaymentsABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(paymentsABI))
	if err != nil {
		panic(fmt.Sprintf("parse payments abi: %v", err))
	}
	return parsed
}()

// Decoder turns FilecoinPay logs and burnForFees calls into typed events.
type Decoder struct {
	contract common.Address
	byTopic  map[common.Hash]abi.Event
	burn     abi.Method
}

func NewDecoder(contract common.Address) *Decoder {
	d := &Decoder{
		contract: contract,
		byTopic:  make(map[common.Hash]abi.Event, len(PaymentsABI.Events)),
		burn:     PaymentsABI.Methods["burnForFees"],
	}
	for _, ev := range PaymentsABI.Events {
		d.byTopic[ev.ID] = ev
	}
	return d
}

// Topics lists the event signatures to filter logs on.
func (d *Decoder) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(d.byTopic))
	for _, et := range event.AllEventTypes {
		if ev, ok := PaymentsABI.Events[et.String()]; ok {
			out = append(out, ev.ID)
		}
	}
	return out
}

// Contract is the address logs and calls are matched against.
func (d *Decoder) Contract() common.Address {
	return d.contract
}

// DecodeLog decodes one contract log. blockTime is the timestamp of the
// log's block, which logs do not carry.
func (d *Decoder) DecodeLog(log types.Log, blockTime uint64) (event.Event, error) {
	if len(log.Topics) == 0 {
		return nil, ErrUnknownLog
	}
	ev, ok := d.byTopic[log.Topics[0]]
	if !ok {
		return nil, ErrUnknownLog
	}

	values := make(map[string]interface{})
	if err := ev.Inputs.NonIndexed().UnpackIntoMap(values, log.Data); err != nil {
		return nil, fmt.Errorf("unpack %s data: %w", ev.Name, err)
	}
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("unpack %s topics: %w", ev.Name, err)
	}

	meta := event.Meta{
		Block: event.Block{Number: log.BlockNumber, Timestamp: blockTime},
		Tx:    event.Tx{Hash: log.TxHash, LogIndex: log.Index, Index: log.TxIndex},
	}
	a := args{name: ev.Name, values: values}

	var out event.Event
	switch event.ParseEventType(ev.Name) {
	case event.EventTypeRailCreated:
		out = &event.RailCreated{
			Meta:                meta,
			RailID:              a.num("railId"),
			Payer:               a.addr("payer"),
			Payee:               a.addr("payee"),
			Operator:            a.addr("operator"),
			Token:               a.addr("token"),
			Validator:           a.addr("validator"),
			CommissionRateBps:   a.num("commissionRateBps"),
			ServiceFeeRecipient: a.addr("serviceFeeRecipient"),
		}
	case event.EventTypeRailRateModified:
		out = &event.RailRateModified{
			Meta:    meta,
			RailID:  a.num("railId"),
			OldRate: a.num("oldRate"),
			NewRate: a.num("newRate"),
		}
	case event.EventTypeRailLockupModified:
		out = &event.RailLockupModified{
			Meta:            meta,
			RailID:          a.num("railId"),
			OldLockupPeriod: a.num("oldLockupPeriod"),
			NewLockupPeriod: a.num("newLockupPeriod"),
			OldLockupFixed:  a.num("oldLockupFixed"),
			NewLockupFixed:  a.num("newLockupFixed"),
		}
	case event.EventTypeRailTerminated:
		out = &event.RailTerminated{
			Meta:     meta,
			RailID:   a.num("railId"),
			EndEpoch: a.num("endEpoch"),
		}
	case event.EventTypeRailSettled:
		out = &event.RailSettled{
			Meta:                meta,
			RailID:              a.num("railId"),
			TotalSettledAmount:  a.num("totalSettledAmount"),
			TotalNetPayeeAmount: a.num("totalNetPayeeAmount"),
			OperatorCommission:  a.num("operatorCommission"),
			NetworkFee:          a.num("networkFee"),
			SettledUpTo:         a.num("settledUpTo"),
		}
	case event.EventTypeRailOneTimePaymentProcessed:
		out = &event.RailOneTimePaymentProcessed{
			Meta:               meta,
			RailID:             a.num("railId"),
			NetPayeeAmount:     a.num("netPayeeAmount"),
			OperatorCommission: a.num("operatorCommission"),
			NetworkFee:         a.num("networkFee"),
		}
	case event.EventTypeRailFinalized:
		out = &event.RailFinalized{Meta: meta, RailID: a.num("railId")}
	case event.EventTypeAccountLockupSettled:
		out = &event.AccountLockupSettled{
			Meta:                meta,
			Token:               a.addr("token"),
			Owner:               a.addr("owner"),
			LockupCurrent:       a.num("lockupCurrent"),
			LockupRate:          a.num("lockupRate"),
			LockupLastSettledAt: a.num("lockupLastSettledAt"),
		}
	case event.EventTypeOperatorApprovalUpdated:
		out = &event.OperatorApprovalUpdated{
			Meta:            meta,
			Token:           a.addr("token"),
			Client:          a.addr("client"),
			Operator:        a.addr("operator"),
			Approved:        a.flag("approved"),
			RateAllowance:   a.num("rateAllowance"),
			LockupAllowance: a.num("lockupAllowance"),
			MaxLockupPeriod: a.num("maxLockupPeriod"),
		}
	case event.EventTypeDepositRecorded:
		out = &event.DepositRecorded{
			Meta:   meta,
			Token:  a.addr("token"),
			To:     a.addr("to"),
			Amount: a.num("amount"),
		}
	case event.EventTypeWithdrawRecorded:
		out = &event.WithdrawRecorded{
			Meta:   meta,
			Token:  a.addr("token"),
			From:   a.addr("from"),
			Amount: a.num("amount"),
		}
	default:
		return nil, ErrUnknownLog
	}
	if a.err != nil {
		return nil, a.err
	}
	return out, nil
}

// DecodeBurnForFees decodes a transaction calling burnForFees on the
// contract. ok is false for any other transaction.
func (d *Decoder) DecodeBurnForFees(tx *types.Transaction, txIndex uint, block event.Block) (*event.BurnForFeesCall, bool, error) {
	if tx.To() == nil || *tx.To() != d.contract {
		return nil, false, nil
	}
	data := tx.Data()
	if len(data) < 4 || string(data[:4]) != string(d.burn.ID) {
		return nil, false, nil
	}

	values := make(map[string]interface{})
	if err := d.burn.Inputs.UnpackIntoMap(values, data[4:]); err != nil {
		return nil, true, fmt.Errorf("unpack burnForFees input: %w", err)
	}
	a := args{name: d.burn.Name, values: values}
	call := &event.BurnForFeesCall{
		Meta: event.Meta{
			Block: block,
			Tx:    event.Tx{Hash: tx.Hash(), Index: txIndex},
		},
		Inputs: event.BurnForFeesInputs{
			Token:     a.addr("token"),
			Recipient: a.addr("recipient"),
			Requested: a.num("requested"),
		},
		Value: new(big.Int).Set(tx.Value()),
	}
	if a.err != nil {
		return nil, true, a.err
	}
	return call, true, nil
}

// args reads typed values out of an unpacked map, keeping the first error.
type args struct {
	name   string
	values map[string]interface{}
	err    error
}

func (a *args) fail(key string, v interface{}) {
	if a.err == nil {
		a.err = fmt.Errorf("%s.%s: unexpected %T", a.name, key, v)
	}
}

func (a *args) num(key string) *big.Int {
	v, ok := a.values[key].(*big.Int)
	if !ok {
		a.fail(key, a.values[key])
		return new(big.Int)
	}
	return v
}

func (a *args) addr(key string) common.Address {
	v, ok := a.values[key].(common.Address)
	if !ok {
		a.fail(key, a.values[key])
	}
	return v
}

func (a *args) flag(key string) bool {
	v, ok := a.values[key].(bool)
	if !ok {
		a.fail(key, a.values[key])
	}
	return v
}
