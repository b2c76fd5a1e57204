package services

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/castframework/cast1-sub000/internal/models"
)

const percentagePrecision = 2

var hundred = decimal.NewFromInt(100)

// PositionService projects instrument holder balances into legal entity positions
type PositionService struct {
	ledgers Ledgers
}

// NewPositionService creates a new PositionService
func NewPositionService(ledgers Ledgers) *PositionService {
	return &PositionService{ledgers: ledgers}
}

// GetInstrumentPositions returns one position per holder, in contract order
func (s *PositionService) GetInstrumentPositions(ctx context.Context, address string, ledger models.Ledger) ([]models.InstrumentPosition, error) {
	instrument, err := s.ledgers.Instrument(ledger, address)
	if err != nil {
		return nil, err
	}
	balances, err := instrument.GetFullBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("read balances of %s: %w", address, err)
	}

	total := new(big.Int)
	for _, b := range balances {
		if b.Balance != nil {
			total.Add(total, b.Balance)
		}
	}
	totalDec := decimal.NewFromBigInt(total, 0)

	positions := make([]models.InstrumentPosition, 0, len(balances))
	for _, b := range balances {
		balance, err := toInt64(b.Balance)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", b.Address, err)
		}
		locked, err := toInt64(b.LockedBalance)
		if err != nil {
			return nil, fmt.Errorf("locked balance of %s: %w", b.Address, err)
		}

		percentage := decimal.Zero
		if total.Sign() > 0 {
			percentage = decimal.NewFromInt(balance).Div(totalDec).Mul(hundred).Round(percentagePrecision)
		}
		positions = append(positions, models.InstrumentPosition{
			InstrumentAddress:  address,
			Ledger:             ledger,
			LegalEntityAddress: b.Address,
			Balance:            balance,
			LockedBalance:      locked,
			UnlockedBalance:    balance - locked,
			Percentage:         percentage,
		})
	}
	return positions, nil
}

func toInt64(n *big.Int) (int64, error) {
	if n == nil {
		return 0, nil
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("value %s overflows int64", n)
	}
	return n.Int64(), nil
}
