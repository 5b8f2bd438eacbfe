package ingestion_test

import (
	"RailLedger/internal/event"
	"RailLedger/internal/ingestion"
	"RailLedger/internal/testutil"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

var contract = common.HexToAddress("0x09a0fDc2723fAd1A7b8e3e00eE5DF73841df55a0")

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

// buildLog packs data for the named event. topics excludes the signature.
func buildLog(t *testing.T, name string, block uint64, index uint, topics []common.Hash, data ...interface{}) types.Log {
	t.Helper()
	ev, ok := ingestion.PaymentsABI.Events[name]
	require.True(t, ok, name)
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	require.NoError(t, err)
	return types.Log{
		Address:     contract,
		Topics:      append([]common.Hash{ev.ID}, topics...),
		Data:        packed,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
		TxIndex:     2,
		Index:       index,
	}
}

func TestDecodeLog_RailCreated(t *testing.T) {
	d := ingestion.NewDecoder(contract)
	lg := buildLog(t, "RailCreated", 100, 7,
		[]common.Hash{common.BigToHash(big.NewInt(42)), addrTopic(testutil.Addr(1)), addrTopic(testutil.Addr(2))},
		testutil.Addr(4), testutil.Addr(3), testutil.Addr(6), testutil.Addr(5), big.NewInt(250),
	)

	evt, err := d.DecodeLog(lg, 1_700_000_000)
	require.NoError(t, err)
	rc, ok := evt.(*event.RailCreated)
	require.True(t, ok, "got %T", evt)

	require.Equal(t, int64(42), rc.RailID.Int64())
	require.Equal(t, testutil.Addr(1), rc.Payer)
	require.Equal(t, testutil.Addr(2), rc.Payee)
	require.Equal(t, testutil.Addr(3), rc.Operator)
	require.Equal(t, testutil.Addr(4), rc.Token)
	require.Equal(t, testutil.Addr(5), rc.ServiceFeeRecipient)
	require.Equal(t, testutil.Addr(6), rc.Validator)
	require.Equal(t, int64(250), rc.CommissionRateBps.Int64())
	require.Equal(t, uint64(100), rc.Block.Number)
	require.Equal(t, uint64(1_700_000_000), rc.Block.Timestamp)
	require.Equal(t, uint(7), rc.Tx.LogIndex)
	require.Equal(t, uint(2), rc.Tx.Index)
}

func TestDecodeLog_OperatorApprovalUpdated(t *testing.T) {
	d := ingestion.NewDecoder(contract)
	lg := buildLog(t, "OperatorApprovalUpdated", 5, 0,
		[]common.Hash{addrTopic(testutil.Addr(4)), addrTopic(testutil.Addr(1)), addrTopic(testutil.Addr(3))},
		true, big.NewInt(100), big.NewInt(5000), big.NewInt(2880),
	)

	evt, err := d.DecodeLog(lg, 0)
	require.NoError(t, err)
	oa := evt.(*event.OperatorApprovalUpdated)
	require.True(t, oa.Approved)
	require.Equal(t, testutil.Addr(1), oa.Client)
	require.Equal(t, testutil.Addr(3), oa.Operator)
	require.Equal(t, int64(2880), oa.MaxLockupPeriod.Int64())
}

func TestDecodeLog_TerminatedIgnoresCaller(t *testing.T) {
	d := ingestion.NewDecoder(contract)
	lg := buildLog(t, "RailTerminated", 5, 0,
		[]common.Hash{common.BigToHash(big.NewInt(1)), addrTopic(testutil.Addr(3))},
		big.NewInt(3000),
	)

	evt, err := d.DecodeLog(lg, 0)
	require.NoError(t, err)
	require.Equal(t, int64(3000), evt.(*event.RailTerminated).EndEpoch.Int64())
}

func TestDecodeLog_UnknownTopic(t *testing.T) {
	d := ingestion.NewDecoder(contract)
	_, err := d.DecodeLog(types.Log{Topics: []common.Hash{common.HexToHash("0x01")}}, 0)
	require.ErrorIs(t, err, ingestion.ErrUnknownLog)

	_, err = d.DecodeLog(types.Log{}, 0)
	require.ErrorIs(t, err, ingestion.ErrUnknownLog)
}

func TestDecodeLog_TruncatedData(t *testing.T) {
	d := ingestion.NewDecoder(contract)
	lg := buildLog(t, "RailRateModified", 5, 0, []common.Hash{common.BigToHash(big.NewInt(1))}, big.NewInt(1), big.NewInt(2))
	lg.Data = lg.Data[:40]

	_, err := d.DecodeLog(lg, 0)
	require.Error(t, err)
	require.NotErrorIs(t, err, ingestion.ErrUnknownLog)
}

func TestDecoder_TopicsCoverEveryLogEvent(t *testing.T) {
	d := ingestion.NewDecoder(contract)
	// BurnForFeesCall is a call, not a log.
	require.Len(t, d.Topics(), len(event.AllEventTypes)-1)
}

func burnTx(t *testing.T, to common.Address, value int64) *types.Transaction {
	t.Helper()
	input, err := ingestion.PaymentsABI.Pack("burnForFees", testutil.Addr(4), testutil.Addr(5), big.NewInt(20))
	require.NoError(t, err)
	return types.NewTx(&types.LegacyTx{
		To:       &to,
		Value:    big.NewInt(value),
		Gas:      100_000,
		GasPrice: big.NewInt(1),
		Data:     input,
	})
}

func TestDecodeBurnForFees(t *testing.T) {
	d := ingestion.NewDecoder(contract)
	tx := burnTx(t, contract, 7)

	call, ok, err := d.DecodeBurnForFees(tx, 4, event.Block{Number: 9, Timestamp: 99})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, testutil.Addr(4), call.Inputs.Token)
	require.Equal(t, testutil.Addr(5), call.Inputs.Recipient)
	require.Equal(t, int64(20), call.Inputs.Requested.Int64())
	require.Equal(t, int64(7), call.Value.Int64())
	require.Equal(t, uint(4), call.Tx.Index)
	require.Equal(t, tx.Hash(), call.Tx.Hash)
}

func TestDecodeBurnForFees_OtherTransactions(t *testing.T) {
	d := ingestion.NewDecoder(contract)

	_, ok, err := d.DecodeBurnForFees(burnTx(t, testutil.Addr(9), 7), 0, event.Block{})
	require.NoError(t, err)
	require.False(t, ok, "wrong recipient contract")

	plain := types.NewTx(&types.LegacyTx{To: &contract, Value: big.NewInt(1), Gas: 21_000, GasPrice: big.NewInt(1)})
	_, ok, err = d.DecodeBurnForFees(plain, 0, event.Block{})
	require.NoError(t, err)
	require.False(t, ok, "plain transfer")
}
