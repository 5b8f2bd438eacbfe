package tokenmeta

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Reader is the read-only token metadata accessor. Each call may fail
// independently.
type Reader interface {
	Name(ctx context.Context, token common.Address) (string, error)
	Symbol(ctx context.Context, token common.Address) (string, error)
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

const erc20MetadataABI = `[
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

// ERC20ABI is the parsed metadata subset of the ERC-20 interface.
var ERC20ABI = mustParseABI(erc20MetadataABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// ERC20Reader reads metadata with eth_call against the latest block.
type ERC20Reader struct {
	caller ethereum.ContractCaller
}

// NewERC20Reader wraps any ContractCaller, typically an *ethclient.Client.
func NewERC20Reader(caller ethereum.ContractCaller) *ERC20Reader {
	return &ERC20Reader{caller: caller}
}

func (r *ERC20Reader) call(ctx context.Context, token common.Address, method string) ([]interface{}, error) {
	input, err := ERC20ABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	output, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, token.Hex(), err)
	}
	values, err := ERC20ABI.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("unpack %s from %s: %w", method, token.Hex(), err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s on %s returned %d values", method, token.Hex(), len(values))
	}
	return values, nil
}

func (r *ERC20Reader) Name(ctx context.Context, token common.Address) (string, error) {
	return r.callString(ctx, token, "name")
}

func (r *ERC20Reader) Symbol(ctx context.Context, token common.Address) (string, error) {
	return r.callString(ctx, token, "symbol")
}

func (r *ERC20Reader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	values, err := r.call(ctx, token, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals on %s: unexpected type %T", token.Hex(), values[0])
	}
	return d, nil
}

func (r *ERC20Reader) callString(ctx context.Context, token common.Address, method string) (string, error) {
	values, err := r.call(ctx, token, method)
	if err != nil {
		return "", err
	}
	s, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("%s on %s: unexpected type %T", method, token.Hex(), values[0])
	}
	return s, nil
}
