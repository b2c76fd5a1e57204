package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/castframework/cast1-sub000/internal/interfaces"
	"github.com/castframework/cast1-sub000/internal/models"
	"github.com/castframework/cast1-sub000/internal/utils"
)

// InvestorQueryService serves settlement transaction reads enriched with the
// per transaction status held by the instrument contract
type InvestorQueryService struct {
	store   interfaces.SettlementTransactionStore
	ledgers Ledgers
}

// NewInvestorQueryService creates a new InvestorQueryService
func NewInvestorQueryService(store interfaces.SettlementTransactionStore, ledgers Ledgers) *InvestorQueryService {
	return &InvestorQueryService{store: store, ledgers: ledgers}
}

// GetSettlementTransaction returns one settlement transaction with its status
func (s *InvestorQueryService) GetSettlementTransaction(ctx context.Context, id string) (*models.SettlementTransactionView, error) {
	if !utils.IsValidUUID(id) {
		return nil, NewClientError("settlement transaction id %q is not a valid uuid", id)
	}
	st, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrSettlementTransactionNotFound) {
			return nil, err
		}
		return nil, WrapClientError(err, "load settlement transaction %s", id)
	}
	instrument, err := s.ledgers.Instrument(st.InstrumentLedger, st.InstrumentPublicAddress)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, instrument, st)
}

// ListInstrumentSettlementTransactions returns every stored settlement
// transaction of an instrument with its status
func (s *InvestorQueryService) ListInstrumentSettlementTransactions(ctx context.Context, ledger models.Ledger,
	address string) ([]*models.SettlementTransactionView, error) {
	instrument, err := s.ledgers.Instrument(ledger, address)
	if err != nil {
		return nil, err
	}
	sts, err := s.store.GetByInstrument(ctx, ledger, address)
	if err != nil {
		return nil, WrapClientError(err, "list settlement transactions of %s", address)
	}

	views := make([]*models.SettlementTransactionView, 0, len(sts))
	for _, st := range sts {
		v, err := s.view(ctx, instrument, st)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *InvestorQueryService) view(ctx context.Context, instrument interfaces.InstrumentContract,
	st *models.SettlementTransaction) (*models.SettlementTransactionView, error) {
	id, err := utils.UUIDToInteger(st.ID)
	if err != nil {
		return nil, fmt.Errorf("pack settlement transaction id: %w", err)
	}
	status, err := instrument.GetSettlementTransactionStatus(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read status of settlement transaction %s: %w", st.ID, err)
	}
	return &models.SettlementTransactionView{SettlementTransaction: st, Status: status}, nil
}
