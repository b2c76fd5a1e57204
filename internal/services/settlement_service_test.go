package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castframework/cast1-sub000/internal/models"
)

// seedSharedReference stores n redemption settlement transactions sharing one
// issuer->settler movement and returns its payment reference
func seedSharedReference(t *testing.T, store *fakeStore, n int) (string, []*models.SettlementTransaction) {
	t.Helper()
	b, err := newRedemptionBuilder(redemptionRequest(), "0xISS")
	require.NoError(t, err)

	var sts []*models.SettlementTransaction
	for i := 0; i < n; i++ {
		st, err := b.build(models.ParticipantAddresses{
			DeliveryAddress:      "0xINV",
			PaymentAccountNumber: "IBAN-INV",
			LegalEntityID:        "LE-INV",
		}, int64(i+1), int64(10*(i+1)))
		require.NoError(t, err)
		sts = append(sts, st)
	}
	_, err = store.CreateBatch(context.Background(), sts)
	require.NoError(t, err)
	return b.shared.PaymentReference, sts
}

func newSettlementFixture(t *testing.T, n int) (*SettlementService, *fakeInstrument, string, []*models.SettlementTransaction) {
	store := newFakeStore()
	ref, sts := seedSharedReference(t, store, n)
	instrument := newFakeInstrument("0xAAA")
	svc := NewSettlementService(store, NewLedgers(newFakeDriver(models.LedgerEthereum, instrument)), 2, testLogger())
	return svc, instrument, ref, sts
}

func TestConfirmPaymentReceived_FanOutInStoreOrder(t *testing.T) {
	svc, instrument, ref, sts := newSettlementFixture(t, 5)

	txIDs, err := svc.ConfirmPaymentReceived(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, txIDs, 5)
	for i, st := range sts {
		assert.Equal(t, "0xrcv-"+mustPack(st.ID).String(), txIDs[i])
	}
	assert.Len(t, instrument.receivedCalls, 5)
	assert.Empty(t, instrument.transferredCalls)
}

func TestConfirmPaymentTransferred(t *testing.T) {
	svc, instrument, ref, sts := newSettlementFixture(t, 1)

	txIDs, err := svc.ConfirmPaymentTransferred(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xtrf-" + mustPack(sts[0].ID).String()}, txIDs)
	assert.Len(t, instrument.transferredCalls, 1)
}

func TestConfirmPaymentReceived_UnknownReference(t *testing.T) {
	svc, instrument, _, _ := newSettlementFixture(t, 1)

	_, err := svc.ConfirmPaymentReceived(context.Background(), "ffffffffffffffff")
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Empty(t, instrument.receivedCalls)
}

func TestConfirmPaymentReceived_StoreFailure(t *testing.T) {
	store := newFakeStore()
	store.refErr = errors.New("timeout")
	svc := NewSettlementService(store, NewLedgers(), 0, testLogger())

	_, err := svc.ConfirmPaymentReceived(context.Background(), "abcdef0123456789")
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrorKindUpstream, ce.Kind)
}

func TestConfirmPaymentReceived_PartialFailure(t *testing.T) {
	svc, instrument, ref, sts := newSettlementFixture(t, 3)
	instrument.confirmErrs[mustPack(sts[1].ID).String()] = errors.New("execution reverted")

	txIDs, err := svc.ConfirmPaymentReceived(context.Background(), ref)
	assert.Nil(t, txIDs)

	var ce *ConfirmationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ref, ce.PaymentReference)
	require.Len(t, ce.Succeeded, 2)
	require.Len(t, ce.Failed, 1)
	assert.Equal(t, sts[0].ID, ce.Succeeded[0].SettlementTransactionID)
	assert.Equal(t, sts[2].ID, ce.Succeeded[1].SettlementTransactionID)
	assert.Equal(t, sts[1].ID, ce.Failed[0].SettlementTransactionID)
	assert.Contains(t, ce.Failed[0].Error, "execution reverted")
	// every confirmation is attempted
	assert.Len(t, instrument.receivedCalls, 3)
}
