// Package handlers provides the HTTP handlers of the oracle roles
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/castframework/cast1-sub000/internal/interfaces"
	"github.com/castframework/cast1-sub000/internal/services"
)

// respondWithError unified error response function
func respondWithError(c *gin.Context, statusCode int, errorType, message string, details interface{}) {
	response := gin.H{
		"error":   errorType,
		"message": message,
	}
	if details != nil {
		response["details"] = details
	}
	c.JSON(statusCode, response)
}

// respondServiceError maps orchestration errors onto HTTP statuses
func respondServiceError(c *gin.Context, logger *logrus.Logger, operation string, err error) {
	var (
		clientErr       *services.ClientError
		confirmationErr *services.ConfirmationError
		ledgerEventErr  *services.LedgerEventError
	)
	switch {
	case errors.Is(err, interfaces.ErrSettlementTransactionNotFound) && !errors.As(err, &clientErr):
		respondWithError(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.As(err, &clientErr):
		respondWithError(c, http.StatusBadRequest, "client_error", clientErr.Error(), gin.H{"kind": clientErr.Kind})
	case errors.As(err, &confirmationErr):
		respondWithError(c, http.StatusBadGateway, "confirmation_failed", confirmationErr.Error(), gin.H{
			"succeeded": confirmationErr.Succeeded,
			"failed":    confirmationErr.Failed,
		})
	case errors.As(err, &ledgerEventErr):
		respondWithError(c, http.StatusBadGateway, "ledger_transaction_failed", ledgerEventErr.Error(), gin.H{
			"transactionId": ledgerEventErr.Notification.TransactionHash,
		})
	default:
		logger.WithField("operation", operation).WithError(err).Error("ledger call failed")
		respondWithError(c, http.StatusBadGateway, "ledger_error", err.Error(), nil)
	}
}

// respondStoreError maps repository errors onto HTTP statuses
func respondStoreError(c *gin.Context, logger *logrus.Logger, operation string, err error) {
	switch {
	case errors.Is(err, interfaces.ErrSettlementTransactionNotFound):
		respondWithError(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, interfaces.ErrSettlementTransactionExists):
		respondWithError(c, http.StatusConflict, "already_exists", err.Error(), nil)
	default:
		logger.WithField("operation", operation).WithError(err).Error("repository operation failed")
		respondWithError(c, http.StatusInternalServerError, "internal_error", "failed to "+operation, nil)
	}
}
