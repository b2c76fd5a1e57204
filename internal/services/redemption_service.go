package services

import (
	"context"
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"

	"github.com/castframework/cast1-sub000/internal/interfaces"
	"github.com/castframework/cast1-sub000/internal/metrics"
	"github.com/castframework/cast1-sub000/internal/models"
	"github.com/castframework/cast1-sub000/internal/utils"
)

// RedemptionService orchestrates the redemption of every position of an instrument
type RedemptionService struct {
	store     interfaces.SettlementTransactionStore
	ledgers   Ledgers
	positions interfaces.PositionProjection
	logger    *logrus.Logger
}

// NewRedemptionService creates a new RedemptionService
func NewRedemptionService(store interfaces.SettlementTransactionStore, ledgers Ledgers,
	positions interfaces.PositionProjection, logger *logrus.Logger) *RedemptionService {
	return &RedemptionService{
		store:     store,
		ledgers:   ledgers,
		positions: positions,
		logger:    logger,
	}
}

// InitiateRedemption creates one settlement transaction per investor holding
// a positive position, stores them as one batch and submits them in a single
// ledger call. Returns the ledger transaction id of that call.
func (s *RedemptionService) InitiateRedemption(ctx context.Context, req *RedemptionRequest) (string, error) {
	txID, err := s.initiateRedemption(ctx, req)
	recordOutcome("redemption", err)
	return txID, err
}

func (s *RedemptionService) initiateRedemption(ctx context.Context, req *RedemptionRequest) (string, error) {
	if !utils.IsValidUUID(req.OperationID) {
		return "", NewClientError("operationId %q is not a valid uuid", req.OperationID)
	}
	if err := validateSettlementModel(req.SettlementModel, req.IntermediateAccountIBAN, req.HoldableTokenAddress); err != nil {
		return "", err
	}
	instrument, err := s.ledgers.Instrument(req.InstrumentLedger, req.InstrumentAddress)
	if err != nil {
		return "", err
	}

	state, err := instrument.CurrentState(ctx)
	if err != nil {
		return "", WrapClientError(err, "read state of instrument %s", req.InstrumentAddress)
	}
	if state == models.InstrumentStateRedeemed {
		return "", NewClientError("instrument %s is already redeemed", req.InstrumentAddress)
	}

	positions, err := s.positions.GetInstrumentPositions(ctx, req.InstrumentAddress, req.InstrumentLedger)
	if err != nil {
		return "", WrapClientError(err, "read positions of instrument %s", req.InstrumentAddress)
	}
	owner, err := instrument.Owner(ctx)
	if err != nil {
		return "", WrapClientError(err, "read owner of instrument %s", req.InstrumentAddress)
	}

	sts, err := s.buildSettlementTransactions(req, owner, positions)
	if err != nil {
		return "", err
	}

	if _, err := s.store.CreateBatch(ctx, sts); err != nil {
		s.logger.WithFields(logrus.Fields{
			"operation_id": req.OperationID,
			"count":        len(sts),
			"input":        req,
		}).WithError(err).Error("failed to store redemption settlement transactions")
		return "", WrapClientError(err, "store %d redemption settlement transactions", len(sts))
	}
	metrics.SettlementTransactionsCreated.WithLabelValues(string(models.OperationTypeRedemption), string(req.SettlementModel)).Add(float64(len(sts)))

	calls := make([]interfaces.SettlementTransactionCall, 0, len(sts))
	for _, st := range sts {
		call, err := toCall(st)
		if err != nil {
			return "", err
		}
		calls = append(calls, call)
	}

	txID, err := instrument.InitiateRedemption(ctx, calls)
	if err != nil {
		return "", fmt.Errorf("initiate redemption of %s on %s: %w", req.InstrumentAddress, req.InstrumentLedger, err)
	}
	s.logger.WithFields(logrus.Fields{
		"operation_id":            req.OperationID,
		"instrument":              req.InstrumentAddress,
		"settlement_transactions": len(sts),
		"tx":                      txID,
	}).Info("redemption initiated")
	return txID, nil
}

// buildSettlementTransactions resolves every positive non issuer position
// against the supplied participants
func (s *RedemptionService) buildSettlementTransactions(req *RedemptionRequest, owner string,
	positions []models.InstrumentPosition) ([]*models.SettlementTransaction, error) {
	builder, err := newRedemptionBuilder(req, owner)
	if err != nil {
		return nil, err
	}

	var sts []*models.SettlementTransaction
	for _, pos := range positions {
		if pos.Balance <= 0 || utils.SameAddress(pos.LegalEntityAddress, owner) {
			continue
		}
		investor, ok := findParticipant(req.Participants, pos.LegalEntityAddress)
		if !ok {
			return nil, NewClientError("no participant supplied for position holder %s", pos.LegalEntityAddress)
		}
		amount, err := redemptionAmount(pos.Balance, req.PaymentAmountPerUnit)
		if err != nil {
			return nil, err
		}
		st, err := builder.build(investor, pos.Balance, amount)
		if err != nil {
			return nil, err
		}
		sts = append(sts, st)
	}
	if len(sts) == 0 {
		return nil, NewClientError("nothing to redeem on instrument %s", req.InstrumentAddress)
	}
	return sts, nil
}

// redemptionAmount returns quantity*perUnit, rejecting products outside int64
func redemptionAmount(quantity, perUnit int64) (int64, error) {
	product := new(big.Int).Mul(big.NewInt(quantity), big.NewInt(perUnit))
	if !product.IsInt64() {
		return 0, NewClientError("payment amount %s for quantity %d overflows", product, quantity)
	}
	return product.Int64(), nil
}

func findParticipant(participants []models.ParticipantAddresses, address string) (models.ParticipantAddresses, bool) {
	for _, p := range participants {
		if utils.SameAddress(p.DeliveryAddress, address) {
			return p, true
		}
	}
	return models.ParticipantAddresses{}, false
}
