package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/castframework/cast1-sub000/internal/interfaces"
	"github.com/castframework/cast1-sub000/internal/models"
)

// SettlementTransactionQuerier reads settlement transactions with their on-chain status
type SettlementTransactionQuerier interface {
	GetSettlementTransaction(ctx context.Context, id string) (*models.SettlementTransactionView, error)
	ListInstrumentSettlementTransactions(ctx context.Context, ledger models.Ledger, address string) ([]*models.SettlementTransactionView, error)
}

// InvestorHandler serves the investor read oracle
type InvestorHandler struct {
	positions interfaces.PositionProjection
	queries   SettlementTransactionQuerier
	logger    *logrus.Logger
}

// NewInvestorHandler creates a new investor handler
func NewInvestorHandler(positions interfaces.PositionProjection, queries SettlementTransactionQuerier, logger *logrus.Logger) *InvestorHandler {
	return &InvestorHandler{positions: positions, queries: queries, logger: logger}
}

func ledgerParam(c *gin.Context) (models.Ledger, bool) {
	ledger, err := models.ParseLedger(c.Param("ledger"))
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return "", false
	}
	return ledger, true
}

// GetInstrumentPositions GET /api/instruments/:ledger/:address/positions
func (h *InvestorHandler) GetInstrumentPositions(c *gin.Context) {
	ledger, ok := ledgerParam(c)
	if !ok {
		return
	}
	positions, err := h.positions.GetInstrumentPositions(c.Request.Context(), c.Param("address"), ledger)
	if err != nil {
		respondServiceError(c, h.logger, "get positions", err)
		return
	}
	if positions == nil {
		positions = []models.InstrumentPosition{}
	}
	c.JSON(http.StatusOK, positions)
}

// ListInstrumentSettlementTransactions GET /api/instruments/:ledger/:address/settlement-transactions
func (h *InvestorHandler) ListInstrumentSettlementTransactions(c *gin.Context) {
	ledger, ok := ledgerParam(c)
	if !ok {
		return
	}
	views, err := h.queries.ListInstrumentSettlementTransactions(c.Request.Context(), ledger, c.Param("address"))
	if err != nil {
		respondServiceError(c, h.logger, "list settlement transactions", err)
		return
	}
	if views == nil {
		views = []*models.SettlementTransactionView{}
	}
	c.JSON(http.StatusOK, views)
}

// GetSettlementTransaction GET /api/settlement-transactions/:id
func (h *InvestorHandler) GetSettlementTransaction(c *gin.Context) {
	view, err := h.queries.GetSettlementTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, "get settlement transaction", err)
		return
	}
	c.JSON(http.StatusOK, view)
}
