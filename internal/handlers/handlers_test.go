package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castframework/cast1-sub000/internal/interfaces"
	"github.com/castframework/cast1-sub000/internal/models"
	"github.com/castframework/cast1-sub000/internal/services"
)

const testID = "6f1c2b0e-3a57-4e0d-9a43-1b2c3d4e5f60"

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func perform(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// ============================================
// Registrar
// ============================================

type fakeOrchestrator struct {
	txID string
	err  error

	subscriptions []*services.SubscriptionRequest
	redemptions   []*services.RedemptionRequest
	canceled      []string
}

func (f *fakeOrchestrator) InitiateSubscription(_ context.Context, req *services.SubscriptionRequest) (string, error) {
	f.subscriptions = append(f.subscriptions, req)
	return f.txID, f.err
}

func (f *fakeOrchestrator) InitiateTrade(context.Context, *services.TradeRequest) (string, error) {
	return f.txID, f.err
}

func (f *fakeOrchestrator) CancelSettlementTransaction(_ context.Context, id string) (string, error) {
	f.canceled = append(f.canceled, id)
	return f.txID, f.err
}

func (f *fakeOrchestrator) InitiateRedemption(_ context.Context, req *services.RedemptionRequest) (string, error) {
	f.redemptions = append(f.redemptions, req)
	return f.txID, f.err
}

func registrarEngine(h *RegistrarHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/subscriptions", h.InitiateSubscription)
	r.POST("/api/trades", h.InitiateTrade)
	r.POST("/api/redemptions", h.InitiateRedemption)
	r.POST("/api/settlement-transactions/:id/cancel", h.CancelSettlementTransaction)
	return r
}

func participant(address, account string) map[string]interface{} {
	return map[string]interface{}{
		"deliveryAddress":      address,
		"paymentAccountNumber": account,
		"legalEntityId":        "LEI-" + account,
	}
}

func issuerBody() map[string]interface{} {
	return map[string]interface{}{"paymentAccountNumber": "FR76ISS", "legalEntityId": "LEI-ISS"}
}

func subscriptionBody() map[string]interface{} {
	return map[string]interface{}{
		"operationId":          testID,
		"instrumentAddress":    "0xINS",
		"instrumentLedger":     "ETHEREUM",
		"investor":             participant("0xINV", "FR76INV"),
		"issuer":               issuerBody(),
		"deliveryQuantity":     10,
		"paymentAmount":        1000,
		"paymentCurrency":      "EUR",
		"settlementModel":      "DIRECT",
		"holdableTokenAddress": "0xHOLD",
	}
}

func redemptionBody() map[string]interface{} {
	return map[string]interface{}{
		"operationId":          testID,
		"instrumentAddress":    "0xINS",
		"instrumentLedger":     "ETHEREUM",
		"issuer":               issuerBody(),
		"participants":         []interface{}{participant("0xINV", "FR76INV")},
		"paymentAmountPerUnit": 100,
		"paymentCurrency":      "EUR",
		"settlementModel":      "DIRECT",
		"holdableTokenAddress": "0xHOLD",
	}
}

func TestRegistrarHandlerImmediateAnswer(t *testing.T) {
	orch := &fakeOrchestrator{txID: "0xabc"}
	r := registrarEngine(NewRegistrarHandler(orch, orch, services.NewPendingCallRegistry(), time.Second, testLogger()))

	w := perform(r, http.MethodPost, "/api/subscriptions", subscriptionBody())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0xabc", decodeBody(t, w)["transactionId"])
	require.Len(t, orch.subscriptions, 1)
	assert.Equal(t, testID, orch.subscriptions[0].OperationID)

	w = perform(r, http.MethodPost, "/api/settlement-transactions/"+testID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{testID}, orch.canceled)
}

func TestRegistrarHandlerMalformedBody(t *testing.T) {
	orch := &fakeOrchestrator{txID: "0xabc"}
	r := registrarEngine(NewRegistrarHandler(orch, orch, nil, time.Second, testLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/redemptions", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decodeBody(t, w)["error"])
	assert.Empty(t, orch.redemptions)
}

func TestRegistrarHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		code  int
		label string
	}{
		{"client error", services.NewClientError("bad operation id"), http.StatusBadRequest, "client_error"},
		{"wrapped not found stays a client error", services.WrapClientError(interfaces.ErrSettlementTransactionNotFound, "lookup failed"), http.StatusBadRequest, "client_error"},
		{"ledger failure", errors.New("execution reverted"), http.StatusBadGateway, "ledger_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch := &fakeOrchestrator{err: tt.err}
			r := registrarEngine(NewRegistrarHandler(orch, orch, nil, time.Second, testLogger()))

			w := perform(r, http.MethodPost, "/api/subscriptions", subscriptionBody())
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.label, decodeBody(t, w)["error"])
		})
	}
}

func settleWhenRegistered(registry *services.PendingCallRegistry, n models.Notification) *sync.WaitGroup {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		deadline := time.Now().Add(2 * time.Second)
		for registry.Len() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		registry.HandleNotification(n)
	}()
	return &wg
}

func TestRegistrarHandlerWaitResolved(t *testing.T) {
	registry := services.NewPendingCallRegistry()
	orch := &fakeOrchestrator{txID: "0xABC"}
	r := registrarEngine(NewRegistrarHandler(orch, orch, registry, 2*time.Second, testLogger()))

	wg := settleWhenRegistered(registry, &models.ContractNotification{
		ID:               "n-1",
		NotificationName: models.NotificationSubscriptionInitiated,
		TransactionHash:  "0xabc",
	})

	w := perform(r, http.MethodPost, "/api/subscriptions?wait=true", subscriptionBody())
	wg.Wait()

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "0xABC", body["transactionId"])
	notification, ok := body["notification"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "SubscriptionInitiated", notification["notificationName"])
	assert.Zero(t, registry.Len())
}

func TestRegistrarHandlerWaitRejected(t *testing.T) {
	registry := services.NewPendingCallRegistry()
	orch := &fakeOrchestrator{txID: "0xdef"}
	r := registrarEngine(NewRegistrarHandler(orch, orch, registry, 2*time.Second, testLogger()))

	wg := settleWhenRegistered(registry, &models.ErrorNotification{
		ID:               "n-2",
		NotificationName: models.NotificationEventHandlingError,
		TransactionHash:  "0xdef",
		Message:          "decode failed",
	})

	w := perform(r, http.MethodPost, "/api/subscriptions?wait=true", subscriptionBody())
	wg.Wait()

	require.Equal(t, http.StatusBadGateway, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "ledger_transaction_failed", body["error"])
	assert.Equal(t, "0xdef", body["details"].(map[string]interface{})["transactionId"])
}

func TestRegistrarHandlerWaitTimeout(t *testing.T) {
	registry := services.NewPendingCallRegistry()
	orch := &fakeOrchestrator{txID: "0x123"}
	r := registrarEngine(NewRegistrarHandler(orch, orch, registry, 20*time.Millisecond, testLogger()))

	w := perform(r, http.MethodPost, "/api/redemptions?wait=true", redemptionBody())

	require.Equal(t, http.StatusAccepted, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["pending"])
	assert.Zero(t, registry.Len(), "timed out calls are abandoned")
	require.Len(t, orch.redemptions, 1)
	assert.Equal(t, "0xINV", orch.redemptions[0].Participants[0].DeliveryAddress)
}

// ============================================
// Settlement
// ============================================

type fakeConfirmer struct {
	ids []string
	err error
}

func (f *fakeConfirmer) ConfirmPaymentReceived(context.Context, string) ([]string, error) {
	return f.ids, f.err
}

func (f *fakeConfirmer) ConfirmPaymentTransferred(context.Context, string) ([]string, error) {
	return f.ids, f.err
}

func settlementEngine(h *SettlementHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/payments/:paymentReference/received", h.PaymentReceived)
	r.POST("/api/payments/:paymentReference/transferred", h.PaymentTransferred)
	return r
}

func TestSettlementHandler(t *testing.T) {
	r := settlementEngine(NewSettlementHandler(&fakeConfirmer{ids: []string{"0x1", "0x2"}}, testLogger()))

	w := perform(r, http.MethodPost, "/api/payments/0123456789abcdef/received", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "0123456789abcdef", body["paymentReference"])
	assert.Equal(t, []interface{}{"0x1", "0x2"}, body["transactionIds"])
}

func TestSettlementHandlerPartialFailure(t *testing.T) {
	err := &services.ConfirmationError{
		PaymentReference: "0123456789abcdef",
		Succeeded:        []services.ConfirmationResult{{SettlementTransactionID: "a", TransactionID: "0x1"}},
		Failed:           []services.ConfirmationResult{{SettlementTransactionID: "b", Error: "reverted"}},
	}
	r := settlementEngine(NewSettlementHandler(&fakeConfirmer{err: err}, testLogger()))

	w := perform(r, http.MethodPost, "/api/payments/0123456789abcdef/transferred", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "confirmation_failed", body["error"])
	details := body["details"].(map[string]interface{})
	assert.Len(t, details["succeeded"], 1)
	assert.Len(t, details["failed"], 1)
}

func TestSettlementHandlerUnknownReference(t *testing.T) {
	r := settlementEngine(NewSettlementHandler(&fakeConfirmer{err: services.NewClientError("no settlement transaction")}, testLogger()))

	w := perform(r, http.MethodPost, "/api/payments/ffff/received", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ============================================
// Settlement repository
// ============================================

type memoryStore struct {
	records map[string]*models.SettlementTransaction
	err     error
	last    string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]*models.SettlementTransaction)}
}

func (m *memoryStore) Create(_ context.Context, st *models.SettlementTransaction) (*models.SettlementTransaction, error) {
	if m.err != nil {
		return nil, m.err
	}
	if _, ok := m.records[st.ID]; ok {
		return nil, interfaces.ErrSettlementTransactionExists
	}
	m.records[st.ID] = st
	return st, nil
}

func (m *memoryStore) CreateBatch(ctx context.Context, sts []*models.SettlementTransaction) ([]*models.SettlementTransaction, error) {
	for _, st := range sts {
		if _, ok := m.records[st.ID]; ok {
			return nil, interfaces.ErrSettlementTransactionExists
		}
	}
	for _, st := range sts {
		m.records[st.ID] = st
	}
	return sts, nil
}

func (m *memoryStore) GetByID(_ context.Context, id string) (*models.SettlementTransaction, error) {
	st, ok := m.records[id]
	if !ok {
		return nil, interfaces.ErrSettlementTransactionNotFound
	}
	return st, nil
}

func (m *memoryStore) GetByPaymentReference(_ context.Context, ref string) ([]*models.SettlementTransaction, error) {
	m.last = "paymentReference:" + ref
	return nil, m.err
}

func (m *memoryStore) GetByInstrument(_ context.Context, ledger models.Ledger, address string) ([]*models.SettlementTransaction, error) {
	m.last = "instrument:" + string(ledger) + ":" + address
	return nil, m.err
}

func (m *memoryStore) GetByTimeRange(_ context.Context, begin, end time.Time) ([]*models.SettlementTransaction, error) {
	m.last = "range:" + begin.Format(time.RFC3339) + ":" + end.Format(time.RFC3339)
	return nil, m.err
}

func repositoryEngine(store interfaces.SettlementTransactionStore) *gin.Engine {
	h := NewSettlementTransactionHandler(store, testLogger())
	r := gin.New()
	r.POST("/api/settlement-transactions", h.CreateSettlementTransaction)
	r.POST("/api/settlement-transactions/batch", h.CreateSettlementTransactions)
	r.GET("/api/settlement-transactions", h.ListSettlementTransactions)
	r.GET("/api/settlement-transactions/:id", h.GetSettlementTransaction)
	return r
}

func TestSettlementTransactionHandlerCreateAndGet(t *testing.T) {
	store := newMemoryStore()
	r := repositoryEngine(store)
	st := &models.SettlementTransaction{ID: testID, OperationID: testID, InstrumentLedger: models.LedgerEthereum}

	w := perform(r, http.MethodPost, "/api/settlement-transactions", st)
	require.Equal(t, http.StatusCreated, w.Code)

	w = perform(r, http.MethodPost, "/api/settlement-transactions", st)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_exists", decodeBody(t, w)["error"])

	w = perform(r, http.MethodGet, "/api/settlement-transactions/"+testID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testID, decodeBody(t, w)["id"])

	w = perform(r, http.MethodGet, "/api/settlement-transactions/00000000-0000-0000-0000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSettlementTransactionHandlerCreateValidation(t *testing.T) {
	store := newMemoryStore()
	r := repositoryEngine(store)

	w := perform(r, http.MethodPost, "/api/settlement-transactions", &models.SettlementTransaction{ID: "op-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(r, http.MethodPost, "/api/settlement-transactions/batch", []*models.SettlementTransaction{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(r, http.MethodPost, "/api/settlement-transactions/batch", []*models.SettlementTransaction{{ID: testID}, {ID: "nope"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.records)
}

func TestSettlementTransactionHandlerInternalError(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("connection refused")
	r := repositoryEngine(store)

	w := perform(r, http.MethodPost, "/api/settlement-transactions", &models.SettlementTransaction{ID: testID})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestSettlementTransactionHandlerListFilters(t *testing.T) {
	tests := []struct {
		name  string
		query string
		code  int
		last  string
	}{
		{"payment reference", "?paymentReference=0123456789abcdef", http.StatusOK, "paymentReference:0123456789abcdef"},
		{"ledger", "?ledger=ethereum&instrumentAddress=0xINS", http.StatusOK, "instrument:ETHEREUM:0xINS"},
		{"unknown ledger", "?ledger=bitcoin", http.StatusBadRequest, ""},
		{"time range", "?begin=2024-01-01T00:00:00Z&end=2024-01-02T00:00:00Z", http.StatusOK, "range:2024-01-01T00:00:00Z:2024-01-02T00:00:00Z"},
		{"reversed range", "?begin=2024-01-02T00:00:00Z&end=2024-01-01T00:00:00Z", http.StatusBadRequest, ""},
		{"half range", "?begin=2024-01-01T00:00:00Z", http.StatusBadRequest, ""},
		{"no filter", "", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			w := perform(repositoryEngine(store), http.MethodGet, "/api/settlement-transactions"+tt.query, nil)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.last, store.last)
			if tt.code == http.StatusOK {
				assert.Equal(t, "[]", w.Body.String())
			}
		})
	}
}

// ============================================
// Investor
// ============================================

type fakePositions struct {
	positions []models.InstrumentPosition
	err       error
	ledger    models.Ledger
}

func (f *fakePositions) GetInstrumentPositions(_ context.Context, _ string, ledger models.Ledger) ([]models.InstrumentPosition, error) {
	f.ledger = ledger
	return f.positions, f.err
}

type fakeQuerier struct {
	view *models.SettlementTransactionView
	err  error
}

func (f *fakeQuerier) GetSettlementTransaction(context.Context, string) (*models.SettlementTransactionView, error) {
	return f.view, f.err
}

func (f *fakeQuerier) ListInstrumentSettlementTransactions(context.Context, models.Ledger, string) ([]*models.SettlementTransactionView, error) {
	return nil, f.err
}

func investorEngine(positions *fakePositions, queries *fakeQuerier) *gin.Engine {
	h := NewInvestorHandler(positions, queries, testLogger())
	r := gin.New()
	r.GET("/api/instruments/:ledger/:address/positions", h.GetInstrumentPositions)
	r.GET("/api/instruments/:ledger/:address/settlement-transactions", h.ListInstrumentSettlementTransactions)
	r.GET("/api/settlement-transactions/:id", h.GetSettlementTransaction)
	return r
}

func TestInvestorHandlerPositions(t *testing.T) {
	positions := &fakePositions{positions: []models.InstrumentPosition{{
		InstrumentAddress:  "0xINS",
		Ledger:             models.LedgerEthereum,
		LegalEntityAddress: "0xINV",
		Balance:            25,
		UnlockedBalance:    25,
		Percentage:         decimal.NewFromInt(25),
	}}}
	r := investorEngine(positions, &fakeQuerier{})

	w := perform(r, http.MethodGet, "/api/instruments/ethereum/0xINS/positions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.LedgerEthereum, positions.ledger)
	assert.Contains(t, w.Body.String(), `"legalEntityAddress":"0xINV"`)

	w = perform(r, http.MethodGet, "/api/instruments/solana/0xINS/positions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvestorHandlerSettlementTransactions(t *testing.T) {
	queries := &fakeQuerier{view: &models.SettlementTransactionView{
		SettlementTransaction: &models.SettlementTransaction{ID: testID},
		Status:                models.SettlementTransactionStatusInitiated,
	}}
	r := investorEngine(&fakePositions{}, queries)

	w := perform(r, http.MethodGet, "/api/settlement-transactions/"+testID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, testID, body["id"])
	assert.Equal(t, "Initiated", body["status"])

	w = perform(r, http.MethodGet, "/api/instruments/TEZOS/KT1abc/settlement-transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())

	queries.err = interfaces.ErrSettlementTransactionNotFound
	w = perform(r, http.MethodGet, "/api/settlement-transactions/"+testID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ============================================
// WebSocket
// ============================================

func TestParseKinds(t *testing.T) {
	kinds, err := ParseKinds("")
	require.NoError(t, err)
	assert.Empty(t, kinds)

	kinds, err = ParseKinds("contract, error,")
	require.NoError(t, err)
	assert.Equal(t, []models.NotificationKind{models.NotificationKindContract, models.NotificationKindError}, kinds)

	_, err = ParseKinds("contract,bogus")
	assert.Error(t, err)
}

func TestHealthCheckHandler(t *testing.T) {
	r := gin.New()
	r.GET("/api/health", HealthCheckHandler("investor-oracle"))

	w := perform(r, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "investor-oracle", decodeBody(t, w)["service"])
}
