package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/castframework/cast1-sub000/internal/interfaces"
	"github.com/castframework/cast1-sub000/internal/models"
	"github.com/castframework/cast1-sub000/internal/utils"
)

// SettlementTransactionHandler exposes the settlement transaction store over HTTP
type SettlementTransactionHandler struct {
	store  interfaces.SettlementTransactionStore
	logger *logrus.Logger
}

// NewSettlementTransactionHandler creates a new settlement transaction handler
func NewSettlementTransactionHandler(store interfaces.SettlementTransactionStore, logger *logrus.Logger) *SettlementTransactionHandler {
	return &SettlementTransactionHandler{store: store, logger: logger}
}

// CreateSettlementTransaction POST /api/settlement-transactions
func (h *SettlementTransactionHandler) CreateSettlementTransaction(c *gin.Context) {
	var st models.SettlementTransaction
	if err := c.ShouldBindJSON(&st); err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	if !utils.IsValidUUID(st.ID) {
		respondWithError(c, http.StatusBadRequest, "invalid_request", "id must be a uuid", nil)
		return
	}

	created, err := h.store.Create(c.Request.Context(), &st)
	if err != nil {
		respondStoreError(c, h.logger, "create settlement transaction", err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// CreateSettlementTransactions POST /api/settlement-transactions/batch
func (h *SettlementTransactionHandler) CreateSettlementTransactions(c *gin.Context) {
	var sts []*models.SettlementTransaction
	if err := c.ShouldBindJSON(&sts); err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	if len(sts) == 0 {
		respondWithError(c, http.StatusBadRequest, "invalid_request", "batch is empty", nil)
		return
	}
	for _, st := range sts {
		if st == nil || !utils.IsValidUUID(st.ID) {
			respondWithError(c, http.StatusBadRequest, "invalid_request", "every settlement transaction needs a uuid id", nil)
			return
		}
	}

	created, err := h.store.CreateBatch(c.Request.Context(), sts)
	if err != nil {
		respondStoreError(c, h.logger, "create settlement transactions", err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetSettlementTransaction GET /api/settlement-transactions/:id
func (h *SettlementTransactionHandler) GetSettlementTransaction(c *gin.Context) {
	st, err := h.store.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, h.logger, "get settlement transaction", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// ListSettlementTransactions GET /api/settlement-transactions
// Exactly one filter: paymentReference, ledger (+instrumentAddress) or begin+end.
func (h *SettlementTransactionHandler) ListSettlementTransactions(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		sts []*models.SettlementTransaction
		err error
	)

	switch {
	case c.Query("paymentReference") != "":
		sts, err = h.store.GetByPaymentReference(ctx, c.Query("paymentReference"))

	case c.Query("ledger") != "":
		ledger, perr := models.ParseLedger(c.Query("ledger"))
		if perr != nil {
			respondWithError(c, http.StatusBadRequest, "invalid_request", perr.Error(), nil)
			return
		}
		sts, err = h.store.GetByInstrument(ctx, ledger, c.Query("instrumentAddress"))

	case c.Query("begin") != "" || c.Query("end") != "":
		begin, berr := time.Parse(time.RFC3339Nano, c.Query("begin"))
		end, eerr := time.Parse(time.RFC3339Nano, c.Query("end"))
		if berr != nil || eerr != nil {
			respondWithError(c, http.StatusBadRequest, "invalid_request", "begin and end must be RFC3339 timestamps", nil)
			return
		}
		if end.Before(begin) {
			respondWithError(c, http.StatusBadRequest, "invalid_request", "end is before begin", nil)
			return
		}
		sts, err = h.store.GetByTimeRange(ctx, begin, end)

	default:
		respondWithError(c, http.StatusBadRequest, "invalid_request",
			"one of paymentReference, ledger or begin/end is required", nil)
		return
	}

	if err != nil {
		respondStoreError(c, h.logger, "list settlement transactions", err)
		return
	}
	if sts == nil {
		sts = []*models.SettlementTransaction{}
	}
	c.JSON(http.StatusOK, sts)
}
