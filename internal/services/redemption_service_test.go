package services

import (
	"context"
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castframework/cast1-sub000/internal/models"
)

func newRedemptionFixture(balances ...models.HolderBalance) (*RedemptionService, *fakeStore, *fakeInstrument) {
	store := newFakeStore()
	instrument := newFakeInstrument("0xAAA")
	instrument.balances = balances
	ledgers := NewLedgers(newFakeDriver(models.LedgerEthereum, instrument))
	return NewRedemptionService(store, ledgers, NewPositionService(ledgers), testLogger()), store, instrument
}

func holder(address string, balance int64) models.HolderBalance {
	return models.HolderBalance{Address: address, Balance: big.NewInt(balance), LockedBalance: big.NewInt(0)}
}

func redemptionRequest(participants ...models.ParticipantAddresses) *RedemptionRequest {
	return &RedemptionRequest{
		OperationID:             testOperationID,
		InstrumentAddress:       "0xAAA",
		InstrumentLedger:        models.LedgerEthereum,
		Issuer:                  models.ParticipantAddressesWithoutDelivery{PaymentAccountNumber: "IBAN-ISS", LegalEntityID: "LE-ISS"},
		Participants:            participants,
		PaymentAmountPerUnit:    10,
		PaymentCurrency:         "EUR",
		SettlementModel:         models.SettlementModelIndirect,
		IntermediateAccountIBAN: "IBAN-SETTLER",
	}
}

var (
	investorA = models.ParticipantAddresses{DeliveryAddress: "0xA", PaymentAccountNumber: "IBAN-A", LegalEntityID: "LE-A"}
	investorB = models.ParticipantAddresses{DeliveryAddress: "0xB", PaymentAccountNumber: "IBAN-B", LegalEntityID: "LE-B"}
	investorC = models.ParticipantAddresses{DeliveryAddress: "0xC", PaymentAccountNumber: "IBAN-C", LegalEntityID: "LE-C"}
)

func TestInitiateRedemption_FanOut(t *testing.T) {
	svc, store, instrument := newRedemptionFixture(
		holder("0xISS", 1000),
		holder("0xA", 10),
		holder("0xB", 0),
		holder("0xC", 30),
	)

	txID, err := svc.InitiateRedemption(context.Background(), redemptionRequest(investorA, investorB, investorC))
	require.NoError(t, err)
	assert.Equal(t, "0xred1", txID)

	assert.Equal(t, 1, store.batchCalls)
	require.Equal(t, 2, store.count())
	require.Len(t, instrument.redemptionCalls, 1)
	calls := instrument.redemptionCalls[0]
	require.Len(t, calls, 2)

	a, c := store.records[0], store.records[1]
	assert.Equal(t, "0xA", a.DeliverySenderAccountNumber)
	assert.Equal(t, "0xISS", a.DeliveryReceiverAccountNumber)
	assert.Equal(t, int64(10), a.DeliveryQuantity)
	assert.Equal(t, int64(100), a.PaymentAmount)
	assert.Equal(t, int64(30), c.DeliveryQuantity)
	assert.Equal(t, int64(300), c.PaymentAmount)
	assert.Equal(t, models.OperationTypeRedemption, c.SettlementTransactionOperationType)

	assert.Equal(t, mustPack(a.ID), calls[0].ID)
	assert.Equal(t, mustPack(c.ID), calls[1].ID)
	assert.Same(t, a.Movements[0], c.Movements[0])

	// N=2 investors: 2N+1 distinct movements, N+1 of them CASH
	all, cash := map[string]bool{}, map[string]bool{}
	for _, st := range store.records {
		for _, m := range st.Movements {
			all[m.ID] = true
			if m.MovementType == models.MovementTypeCash {
				cash[m.ID] = true
			}
		}
	}
	assert.Len(t, all, 2*2+1)
	assert.Len(t, cash, 2+1)
}

func TestInitiateRedemption_PaymentAmountOverflow(t *testing.T) {
	svc, store, instrument := newRedemptionFixture(holder("0xA", math.MaxInt64/2+1))
	req := redemptionRequest(investorA)
	req.PaymentAmountPerUnit = 2

	_, err := svc.InitiateRedemption(context.Background(), req)
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "overflows")
	assert.Zero(t, store.batchCalls)
	assert.Empty(t, instrument.redemptionCalls)
}

func TestRedemptionAmount(t *testing.T) {
	tests := []struct {
		name     string
		quantity int64
		perUnit  int64
		want     int64
		wantErr  bool
	}{
		{"simple", 30, 10, 300, false},
		{"zero price", 30, 0, 0, false},
		{"max", math.MaxInt64, 1, math.MaxInt64, false},
		{"overflow", math.MaxInt64/2 + 1, 2, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := redemptionAmount(tt.quantity, tt.perUnit)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInitiateRedemption_AlreadyRedeemed(t *testing.T) {
	svc, store, instrument := newRedemptionFixture(holder("0xA", 10))
	instrument.state = models.InstrumentStateRedeemed

	_, err := svc.InitiateRedemption(context.Background(), redemptionRequest(investorA))
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Zero(t, store.batchCalls)
	assert.Empty(t, instrument.redemptionCalls)
}

func TestInitiateRedemption_UnmatchedParticipant(t *testing.T) {
	svc, store, instrument := newRedemptionFixture(holder("0xA", 10), holder("0xD", 5))

	_, err := svc.InitiateRedemption(context.Background(), redemptionRequest(investorA))
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "0xD")
	assert.Zero(t, store.batchCalls)
	assert.Empty(t, instrument.redemptionCalls)
}

func TestInitiateRedemption_NothingToRedeem(t *testing.T) {
	svc, store, instrument := newRedemptionFixture(holder("0xISS", 1000), holder("0xA", 0))

	_, err := svc.InitiateRedemption(context.Background(), redemptionRequest(investorA))
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Zero(t, store.batchCalls)
	assert.Empty(t, instrument.redemptionCalls)
}

func TestInitiateRedemption_StoreFailureSkipsSubmission(t *testing.T) {
	svc, store, instrument := newRedemptionFixture(holder("0xA", 10))
	store.createErr = assert.AnError

	_, err := svc.InitiateRedemption(context.Background(), redemptionRequest(investorA))
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Empty(t, instrument.redemptionCalls)
}

func TestInitiateRedemption_DirectHasNoSharedLeg(t *testing.T) {
	svc, store, _ := newRedemptionFixture(holder("0xA", 10), holder("0xC", 20))
	req := redemptionRequest(investorA, investorC)
	req.SettlementModel = models.SettlementModelDirect
	req.IntermediateAccountIBAN = ""
	req.HoldableTokenAddress = "0xHOLD"

	_, err := svc.InitiateRedemption(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 2, store.count())
	for _, st := range store.records {
		require.Len(t, st.Movements, 2)
		assert.Equal(t, "IBAN-ISS", st.Movements[0].SenderAccountNumber)
	}
	assert.NotEqual(t, store.records[0].Movements[0].ID, store.records[1].Movements[0].ID)
}
