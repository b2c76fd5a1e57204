package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PaymentConfirmer confirms cash legs identified by a payment reference
type PaymentConfirmer interface {
	ConfirmPaymentReceived(ctx context.Context, paymentReference string) ([]string, error)
	ConfirmPaymentTransferred(ctx context.Context, paymentReference string) ([]string, error)
}

// SettlementHandler serves the settlement (cash) oracle operations
type SettlementHandler struct {
	confirmer PaymentConfirmer
	logger    *logrus.Logger
}

// NewSettlementHandler creates a new settlement handler
func NewSettlementHandler(confirmer PaymentConfirmer, logger *logrus.Logger) *SettlementHandler {
	return &SettlementHandler{confirmer: confirmer, logger: logger}
}

// PaymentReceived POST /api/payments/:paymentReference/received
func (h *SettlementHandler) PaymentReceived(c *gin.Context) {
	txIDs, err := h.confirmer.ConfirmPaymentReceived(c.Request.Context(), c.Param("paymentReference"))
	h.respond(c, "confirm payment received", txIDs, err)
}

// PaymentTransferred POST /api/payments/:paymentReference/transferred
func (h *SettlementHandler) PaymentTransferred(c *gin.Context) {
	txIDs, err := h.confirmer.ConfirmPaymentTransferred(c.Request.Context(), c.Param("paymentReference"))
	h.respond(c, "confirm payment transferred", txIDs, err)
}

func (h *SettlementHandler) respond(c *gin.Context, operation string, txIDs []string, err error) {
	if err != nil {
		respondServiceError(c, h.logger, operation, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"paymentReference": c.Param("paymentReference"),
		"transactionIds":   txIDs,
	})
}
