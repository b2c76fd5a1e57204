package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/castframework/cast1-sub000/internal/models"
)

var (
	// ErrSettlementTransactionNotFound is returned by GetByID when no record exists
	ErrSettlementTransactionNotFound = errors.New("settlement transaction not found")
	// ErrSettlementTransactionExists is returned by Create/CreateBatch on id conflicts
	ErrSettlementTransactionExists = errors.New("settlement transaction already exists")
)

// SettlementTransactionStore defines access to the authoritative settlement
// transaction records. It is implemented by the gorm repository inside the
// settlement-repository process and by an HTTP client in the oracles.
type SettlementTransactionStore interface {
	// Create persists one settlement transaction with its movements.
	// Fails with ErrSettlementTransactionExists if the id is already taken.
	Create(ctx context.Context, st *models.SettlementTransaction) (*models.SettlementTransaction, error)
	// CreateBatch persists all settlement transactions or none of them
	CreateBatch(ctx context.Context, sts []*models.SettlementTransaction) ([]*models.SettlementTransaction, error)

	GetByID(ctx context.Context, id string) (*models.SettlementTransaction, error)
	// GetByPaymentReference returns every settlement transaction linked to a cash
	// movement carrying ref, oldest first. An empty result is not an error.
	GetByPaymentReference(ctx context.Context, ref string) ([]*models.SettlementTransaction, error)
	// GetByInstrument lists the settlement transactions of a ledger, restricted
	// to one instrument when address is not empty
	GetByInstrument(ctx context.Context, ledger models.Ledger, address string) ([]*models.SettlementTransaction, error)
	// GetByTimeRange lists records created in [begin, end)
	GetByTimeRange(ctx context.Context, begin, end time.Time) ([]*models.SettlementTransaction, error)
}
