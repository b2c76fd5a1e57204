package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"

	"github.com/castframework/cast1-sub000/internal/interfaces"
	"github.com/castframework/cast1-sub000/internal/metrics"
	"github.com/castframework/cast1-sub000/internal/models"
	"github.com/castframework/cast1-sub000/internal/utils"
)

// OperationService orchestrates subscriptions, trades and cancellations
type OperationService struct {
	store   interfaces.SettlementTransactionStore
	ledgers Ledgers
	logger  *logrus.Logger
}

// NewOperationService creates a new OperationService
func NewOperationService(store interfaces.SettlementTransactionStore, ledgers Ledgers, logger *logrus.Logger) *OperationService {
	return &OperationService{
		store:   store,
		ledgers: ledgers,
		logger:  logger,
	}
}

// InitiateSubscription persists the subscription settlement transaction and
// submits it to the instrument. Returns the ledger transaction id.
func (s *OperationService) InitiateSubscription(ctx context.Context, req *SubscriptionRequest) (string, error) {
	txID, err := s.initiateSubscription(ctx, req)
	recordOutcome("subscription", err)
	return txID, err
}

func (s *OperationService) initiateSubscription(ctx context.Context, req *SubscriptionRequest) (string, error) {
	if !utils.IsValidUUID(req.OperationID) {
		return "", NewClientError("operationId %q is not a valid uuid", req.OperationID)
	}
	instrument, err := s.ledgers.Instrument(req.InstrumentLedger, req.InstrumentAddress)
	if err != nil {
		return "", err
	}

	// the contract owner is the issuer's delivery address whatever the caller sent
	owner, err := instrument.Owner(ctx)
	if err != nil {
		return "", WrapClientError(err, "read owner of instrument %s", req.InstrumentAddress)
	}

	st, err := BuildSubscription(req, owner)
	if err != nil {
		return "", err
	}
	if err := s.persist(ctx, st, req); err != nil {
		return "", err
	}
	call, err := toCall(st)
	if err != nil {
		return "", err
	}

	txID, err := instrument.InitiateSubscription(ctx, call)
	if err != nil {
		return "", fmt.Errorf("initiate subscription %s on %s: %w", st.ID, req.InstrumentLedger, err)
	}
	s.logger.WithFields(logrus.Fields{
		"settlement_transaction_id": st.ID,
		"operation_id":              st.OperationID,
		"instrument":                st.InstrumentPublicAddress,
		"ledger":                    st.InstrumentLedger,
		"tx":                        txID,
	}).Info("subscription initiated")
	return txID, nil
}

// InitiateTrade persists the trade settlement transaction and submits it to
// the instrument. Trades are only supported on EVM ledgers.
func (s *OperationService) InitiateTrade(ctx context.Context, req *TradeRequest) (string, error) {
	txID, err := s.initiateTrade(ctx, req)
	recordOutcome("trade", err)
	return txID, err
}

func (s *OperationService) initiateTrade(ctx context.Context, req *TradeRequest) (string, error) {
	if !utils.IsValidUUID(req.OperationID) {
		return "", NewClientError("operationId %q is not a valid uuid", req.OperationID)
	}
	if !req.InstrumentLedger.IsEVM() {
		return "", NewClientError("trade is not supported on ledger %s", req.InstrumentLedger)
	}
	instrument, err := s.ledgers.Instrument(req.InstrumentLedger, req.InstrumentAddress)
	if err != nil {
		return "", err
	}

	st, err := BuildTrade(req)
	if err != nil {
		return "", err
	}
	if err := s.persist(ctx, st, req); err != nil {
		return "", err
	}
	call, err := toCall(st)
	if err != nil {
		return "", err
	}

	txID, err := instrument.InitiateTrade(ctx, call)
	if err != nil {
		return "", fmt.Errorf("initiate trade %s on %s: %w", st.ID, req.InstrumentLedger, err)
	}
	s.logger.WithFields(logrus.Fields{
		"settlement_transaction_id": st.ID,
		"operation_id":              st.OperationID,
		"instrument":                st.InstrumentPublicAddress,
		"tx":                        txID,
	}).Info("trade initiated")
	return txID, nil
}

// CancelSettlementTransaction cancels a stored settlement transaction on its instrument
func (s *OperationService) CancelSettlementTransaction(ctx context.Context, id string) (string, error) {
	txID, err := s.cancel(ctx, id)
	recordOutcome("cancel", err)
	return txID, err
}

func (s *OperationService) cancel(ctx context.Context, id string) (string, error) {
	if !utils.IsValidUUID(id) {
		return "", NewClientError("settlement transaction id %q is not a valid uuid", id)
	}
	st, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", WrapClientError(err, "load settlement transaction %s", id)
	}
	instrument, err := s.ledgers.Instrument(st.InstrumentLedger, st.InstrumentPublicAddress)
	if err != nil {
		return "", err
	}
	call, err := toCall(st)
	if err != nil {
		return "", err
	}

	txID, err := instrument.CancelSettlementTransaction(ctx, call)
	if err != nil {
		return "", fmt.Errorf("cancel settlement transaction %s: %w", id, err)
	}
	s.logger.WithFields(logrus.Fields{
		"settlement_transaction_id": id,
		"tx":                        txID,
	}).Info("settlement transaction cancel submitted")
	return txID, nil
}

// persist stores st, surfacing any store failure as a client error
func (s *OperationService) persist(ctx context.Context, st *models.SettlementTransaction, input interface{}) error {
	if _, err := s.store.Create(ctx, st); err != nil {
		s.logger.WithFields(logrus.Fields{
			"settlement_transaction_id": st.ID,
			"input":                     input,
		}).WithError(err).Error("failed to store settlement transaction")
		return WrapClientError(err, "store settlement transaction %s", st.ID)
	}
	metrics.SettlementTransactionsCreated.WithLabelValues(string(st.SettlementTransactionOperationType), string(st.SettlementModel)).Inc()
	return nil
}

// toCall maps a settlement transaction into its on-chain parameter shape
func toCall(st *models.SettlementTransaction) (interfaces.SettlementTransactionCall, error) {
	id, err := utils.UUIDToInteger(st.ID)
	if err != nil {
		return interfaces.SettlementTransactionCall{}, WrapClientError(err, "pack settlement transaction id")
	}
	operationID, err := utils.UUIDToInteger(st.OperationID)
	if err != nil {
		return interfaces.SettlementTransactionCall{}, WrapClientError(err, "pack operation id")
	}
	return interfaces.SettlementTransactionCall{
		ID:                            id,
		OperationID:                   operationID,
		DeliverySenderAccountNumber:   st.DeliverySenderAccountNumber,
		DeliveryReceiverAccountNumber: st.DeliveryReceiverAccountNumber,
		DeliveryQuantity:              big.NewInt(st.DeliveryQuantity),
		TxHash:                        st.Hash,
	}, nil
}

func recordOutcome(operation string, err error) {
	var ce *ClientError
	outcome := "success"
	switch {
	case err == nil:
	case errors.As(err, &ce):
		outcome = "client_error"
	default:
		outcome = "ledger_error"
	}
	metrics.OperationsTotal.WithLabelValues(operation, outcome).Inc()
}
