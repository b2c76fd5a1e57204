package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/castframework/cast1-sub000/internal/models"
	"github.com/castframework/cast1-sub000/internal/services"
)

// OperationOrchestrator initiates subscriptions, trades and cancellations
type OperationOrchestrator interface {
	InitiateSubscription(ctx context.Context, req *services.SubscriptionRequest) (string, error)
	InitiateTrade(ctx context.Context, req *services.TradeRequest) (string, error)
	CancelSettlementTransaction(ctx context.Context, id string) (string, error)
}

// RedemptionOrchestrator initiates redemptions
type RedemptionOrchestrator interface {
	InitiateRedemption(ctx context.Context, req *services.RedemptionRequest) (string, error)
}

// OperationResponse is the answer of every submitting endpoint
type OperationResponse struct {
	TransactionID string              `json:"transactionId"`
	Pending       bool                `json:"pending,omitempty"`
	Notification  models.Notification `json:"notification,omitempty"`
}

// RegistrarHandler serves the registrar oracle operations
type RegistrarHandler struct {
	operations  OperationOrchestrator
	redemptions RedemptionOrchestrator
	pending     *services.PendingCallRegistry
	waitTimeout time.Duration
	logger      *logrus.Logger
}

// NewRegistrarHandler creates a new registrar handler. pending may be nil, in
// which case ?wait=true is ignored.
func NewRegistrarHandler(operations OperationOrchestrator, redemptions RedemptionOrchestrator,
	pending *services.PendingCallRegistry, waitTimeout time.Duration, logger *logrus.Logger) *RegistrarHandler {
	return &RegistrarHandler{
		operations:  operations,
		redemptions: redemptions,
		pending:     pending,
		waitTimeout: waitTimeout,
		logger:      logger,
	}
}

// InitiateSubscription POST /api/subscriptions
func (h *RegistrarHandler) InitiateSubscription(c *gin.Context) {
	var req services.SubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	txID, err := h.operations.InitiateSubscription(c.Request.Context(), &req)
	h.respond(c, "subscription", txID, err)
}

// InitiateTrade POST /api/trades
func (h *RegistrarHandler) InitiateTrade(c *gin.Context) {
	var req services.TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	txID, err := h.operations.InitiateTrade(c.Request.Context(), &req)
	h.respond(c, "trade", txID, err)
}

// InitiateRedemption POST /api/redemptions
func (h *RegistrarHandler) InitiateRedemption(c *gin.Context) {
	var req services.RedemptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	txID, err := h.redemptions.InitiateRedemption(c.Request.Context(), &req)
	h.respond(c, "redemption", txID, err)
}

// CancelSettlementTransaction POST /api/settlement-transactions/:id/cancel
func (h *RegistrarHandler) CancelSettlementTransaction(c *gin.Context) {
	txID, err := h.operations.CancelSettlementTransaction(c.Request.Context(), c.Param("id"))
	h.respond(c, "cancel", txID, err)
}

func (h *RegistrarHandler) respond(c *gin.Context, operation, txID string, err error) {
	if err != nil {
		respondServiceError(c, h.logger, operation, err)
		return
	}
	if c.Query("wait") != "true" || h.pending == nil {
		c.JSON(http.StatusOK, OperationResponse{TransactionID: txID})
		return
	}

	call := h.pending.Register(txID)
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.waitTimeout)
	defer cancel()

	n, err := call.Wait(ctx)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, OperationResponse{TransactionID: txID, Notification: n})
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		h.pending.Abandon(txID)
		c.JSON(http.StatusAccepted, OperationResponse{TransactionID: txID, Pending: true})
	default:
		respondServiceError(c, h.logger, operation, err)
	}
}
