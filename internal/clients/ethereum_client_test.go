package clients

import (
	"context"
	"io"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castframework/cast1-sub000/internal/config"
	"github.com/castframework/cast1-sub000/internal/interfaces"
	"github.com/castframework/cast1-sub000/internal/models"
	"github.com/castframework/cast1-sub000/internal/utils"
)

const (
	instrumentAddr = "0x00000000000000000000000000000000000000AA"
	txHash         = "0x1111111111111111111111111111111111111111111111111111111111111111"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func mustInstrumentABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(instrumentABIJSON))
	require.NoError(t, err)
	return parsed
}

func packEventLog(t *testing.T, parsed abi.ABI, name string, topics []common.Hash, args ...interface{}) types.Log {
	t.Helper()
	event := parsed.Events[name]
	data, err := event.Inputs.NonIndexed().Pack(args...)
	require.NoError(t, err)
	return types.Log{
		Address:     common.HexToAddress(instrumentAddr),
		Topics:      append([]common.Hash{event.ID}, topics...),
		Data:        data,
		BlockNumber: 42,
		TxHash:      common.HexToHash(txHash),
		Index:       3,
	}
}

func TestDecodeSubscriptionInitiated(t *testing.T) {
	parsed := mustInstrumentABI(t)
	id := uuid.NewString()
	packed, err := utils.UUIDToInteger(id)
	require.NoError(t, err)

	evt, err := decodeInstrumentLog(&parsed, packEventLog(t, parsed, "SubscriptionInitiated", nil, packed, uint8(1)))
	require.NoError(t, err)

	settlement, ok := evt.(*models.SettlementEvent)
	require.True(t, ok)
	assert.Equal(t, models.EventSubscriptionInitiated, settlement.Name())
	require.Len(t, settlement.SettlementTransactionIDs, 1)
	assert.Equal(t, 0, packed.Cmp(settlement.SettlementTransactionIDs[0]))
	require.NotNil(t, settlement.OperationTypeCode)
	assert.Equal(t, uint8(1), *settlement.OperationTypeCode)

	meta := settlement.Meta()
	assert.Equal(t, models.LedgerEthereum, meta.Ledger)
	assert.Equal(t, common.HexToAddress(instrumentAddr).Hex(), meta.InstrumentAddress)
	assert.Equal(t, common.HexToHash(txHash).Hex(), meta.TransactionHash)
	assert.Equal(t, uint64(42), meta.BlockNumber)
	assert.Equal(t, uint(3), meta.LogIndex)
}

func TestDecodeEventsWithoutOperationType(t *testing.T) {
	parsed := mustInstrumentABI(t)

	evt, err := decodeInstrumentLog(&parsed, packEventLog(t, parsed, "TradeInitiated", nil, big.NewInt(7)))
	require.NoError(t, err)
	trade := evt.(*models.SettlementEvent)
	assert.Nil(t, trade.OperationTypeCode)
	assert.Equal(t, "7", trade.SettlementTransactionIDs[0].String())

	ids := []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)}
	evt, err = decodeInstrumentLog(&parsed, packEventLog(t, parsed, "RedemptionInitiated", nil, ids))
	require.NoError(t, err)
	redemption := evt.(*models.SettlementEvent)
	assert.Equal(t, models.EventRedemptionInitiated, redemption.Name())
	require.Len(t, redemption.SettlementTransactionIDs, 3)
	assert.Equal(t, "3", redemption.SettlementTransactionIDs[2].String())
}

func TestDecodeTransfer(t *testing.T) {
	parsed := mustInstrumentABI(t)
	from := common.HexToAddress("0x00000000000000000000000000000000000000F1")
	to := common.HexToAddress("0x00000000000000000000000000000000000000F2")

	evt, err := decodeInstrumentLog(&parsed, packEventLog(t, parsed, "Transfer",
		[]common.Hash{common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())}, big.NewInt(500)))
	require.NoError(t, err)

	transfer, ok := evt.(*models.TransferEvent)
	require.True(t, ok)
	assert.Equal(t, from.Hex(), transfer.From)
	assert.Equal(t, to.Hex(), transfer.To)
	assert.Equal(t, "500", transfer.Value.String())
}

func TestDecodeRejectsUnknownLogs(t *testing.T) {
	parsed := mustInstrumentABI(t)

	_, err := decodeInstrumentLog(&parsed, types.Log{})
	assert.Error(t, err)

	_, err = decodeInstrumentLog(&parsed, types.Log{Topics: []common.Hash{common.HexToHash("0xdead")}})
	assert.Error(t, err)
}

func TestDecodeInstrumentListed(t *testing.T) {
	listed := common.HexToAddress("0x00000000000000000000000000000000000000BB")
	evt, err := decodeInstrumentListedLog(types.Log{
		Address: common.HexToAddress("0x00000000000000000000000000000000000000FA"),
		Topics:  []common.Hash{{}, common.BytesToHash(listed.Bytes())},
		TxHash:  common.HexToHash(txHash),
	})
	require.NoError(t, err)
	assert.Equal(t, listed.Hex(), evt.InstrumentAddress)
	assert.Equal(t, models.LedgerEthereum, evt.Ledger)

	_, err = decodeInstrumentListedLog(types.Log{Topics: []common.Hash{{}}})
	assert.Error(t, err)
}

func TestToTupleValidatesAddresses(t *testing.T) {
	call := interfaces.SettlementTransactionCall{
		ID:                            big.NewInt(1),
		OperationID:                   big.NewInt(2),
		DeliverySenderAccountNumber:   "0x00000000000000000000000000000000000000F1",
		DeliveryReceiverAccountNumber: "0x00000000000000000000000000000000000000F2",
		DeliveryQuantity:              big.NewInt(100),
		TxHash:                        "abc",
	}
	tuple, err := toTuple(call)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(call.DeliveryReceiverAccountNumber), tuple.DeliveryReceiverAccountNumber)

	call.DeliverySenderAccountNumber = "IBAN-ISS"
	_, err = toTuple(call)
	assert.Error(t, err)
}

func TestReadOnlyDriverRefusesToSubmit(t *testing.T) {
	c, err := newEthereumClient(nil, nil, big.NewInt(1337), nil, config.EthereumConfig{
		RegistryAddress: "0x0000000000000000000000000000000000000001",
	}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, models.LedgerEthereum, c.Ledger())

	_, err = c.Instrument("not-an-address")
	assert.Error(t, err)

	instrument, err := c.Instrument(instrumentAddr)
	require.NoError(t, err)
	_, err = instrument.ConfirmPaymentReceived(context.Background(), big.NewInt(1))
	assert.ErrorIs(t, err, ErrReadOnlyLedger)
}
