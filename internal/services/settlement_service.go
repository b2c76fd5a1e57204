package services

import (
	"context"
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/castframework/cast1-sub000/internal/interfaces"
	"github.com/castframework/cast1-sub000/internal/models"
	"github.com/castframework/cast1-sub000/internal/utils"
)

const defaultConfirmationConcurrency = 4

// confirmFunc submits one confirmation for a packed settlement transaction id
type confirmFunc func(ctx context.Context, instrument interfaces.InstrumentContract, id *big.Int) (string, error)

// SettlementService confirms off-chain cash legs on the instrument contracts
type SettlementService struct {
	store       interfaces.SettlementTransactionStore
	ledgers     Ledgers
	concurrency int
	logger      *logrus.Logger
}

// NewSettlementService creates a new SettlementService. concurrency bounds the
// number of confirmations in flight for one payment reference.
func NewSettlementService(store interfaces.SettlementTransactionStore, ledgers Ledgers, concurrency int, logger *logrus.Logger) *SettlementService {
	if concurrency <= 0 {
		concurrency = defaultConfirmationConcurrency
	}
	return &SettlementService{
		store:       store,
		ledgers:     ledgers,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ConfirmPaymentReceived confirms reception of the cash identified by paymentReference.
// Returns one ledger transaction id per settlement transaction, in store order.
func (s *SettlementService) ConfirmPaymentReceived(ctx context.Context, paymentReference string) ([]string, error) {
	txIDs, err := s.confirm(ctx, paymentReference, "payment_received",
		func(ctx context.Context, instrument interfaces.InstrumentContract, id *big.Int) (string, error) {
			return instrument.ConfirmPaymentReceived(ctx, id)
		})
	recordOutcome("confirm_payment_received", err)
	return txIDs, err
}

// ConfirmPaymentTransferred confirms onward transfer of the cash identified by paymentReference
func (s *SettlementService) ConfirmPaymentTransferred(ctx context.Context, paymentReference string) ([]string, error) {
	txIDs, err := s.confirm(ctx, paymentReference, "payment_transferred",
		func(ctx context.Context, instrument interfaces.InstrumentContract, id *big.Int) (string, error) {
			return instrument.ConfirmPaymentTransferred(ctx, id)
		})
	recordOutcome("confirm_payment_transferred", err)
	return txIDs, err
}

func (s *SettlementService) confirm(ctx context.Context, paymentReference, kind string, fn confirmFunc) ([]string, error) {
	if paymentReference == "" {
		return nil, NewClientError("payment reference is required")
	}
	sts, err := s.store.GetByPaymentReference(ctx, paymentReference)
	if err != nil {
		return nil, WrapClientError(err, "resolve payment reference %s", paymentReference)
	}
	if len(sts) == 0 {
		return nil, NewClientError("no settlement transaction for payment reference %s", paymentReference)
	}

	results := make([]ConfirmationResult, len(sts))
	errs := make([]error, len(sts))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, st := range sts {
		results[i].SettlementTransactionID = st.ID
		g.Go(func() error {
			txID, err := s.confirmOne(ctx, st, fn)
			if err != nil {
				errs[i] = err
				results[i].Error = err.Error()
				return nil
			}
			results[i].TransactionID = txID
			return nil
		})
	}
	_ = g.Wait()

	agg := &ConfirmationError{PaymentReference: paymentReference}
	txIDs := make([]string, 0, len(sts))
	for i, r := range results {
		if errs[i] != nil {
			agg.Failed = append(agg.Failed, r)
			continue
		}
		agg.Succeeded = append(agg.Succeeded, r)
		txIDs = append(txIDs, r.TransactionID)
	}

	logger := s.logger.WithFields(logrus.Fields{
		"payment_reference": paymentReference,
		"confirmation":      kind,
		"succeeded":         len(agg.Succeeded),
		"failed":            len(agg.Failed),
	})
	if len(agg.Failed) > 0 {
		logger.Error("confirmation partially failed")
		return nil, agg
	}
	logger.Info("payment confirmed")
	return txIDs, nil
}

func (s *SettlementService) confirmOne(ctx context.Context, st *models.SettlementTransaction, fn confirmFunc) (string, error) {
	instrument, err := s.ledgers.Instrument(st.InstrumentLedger, st.InstrumentPublicAddress)
	if err != nil {
		return "", err
	}
	id, err := utils.UUIDToInteger(st.ID)
	if err != nil {
		return "", fmt.Errorf("pack settlement transaction id: %w", err)
	}
	txID, err := fn(ctx, instrument, id)
	if err != nil {
		return "", fmt.Errorf("confirm settlement transaction %s: %w", st.ID, err)
	}
	return txID, nil
}
