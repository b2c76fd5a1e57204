package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/castframework/cast1-sub000/internal/interfaces"
	"github.com/castframework/cast1-sub000/internal/models"
)

var (
	ErrSettlementTransactionNotFound = interfaces.ErrSettlementTransactionNotFound
	ErrSettlementTransactionExists   = interfaces.ErrSettlementTransactionExists
)

// settlementTransactionRepository implements interfaces.SettlementTransactionStore
type settlementTransactionRepository struct {
	db *gorm.DB
}

// NewSettlementTransactionRepository creates a new gorm backed store
func NewSettlementTransactionRepository(db *gorm.DB) interfaces.SettlementTransactionStore {
	return &settlementTransactionRepository{db: db}
}

func preloadMovements(db *gorm.DB) *gorm.DB {
	return db.Preload("Movements", func(db *gorm.DB) *gorm.DB {
		return db.Order("movements.sequence ASC").Order("movements.id ASC")
	})
}

// Create persists a settlement transaction and its movements
func (r *settlementTransactionRepository) Create(ctx context.Context, st *models.SettlementTransaction) (*models.SettlementTransaction, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return createAll(tx, []*models.SettlementTransaction{st})
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, st.ID)
}

// CreateBatch persists all settlement transactions in one database transaction
func (r *settlementTransactionRepository) CreateBatch(ctx context.Context, sts []*models.SettlementTransaction) ([]*models.SettlementTransaction, error) {
	if len(sts) == 0 {
		return []*models.SettlementTransaction{}, nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return createAll(tx, sts)
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(sts))
	for i, st := range sts {
		ids[i] = st.ID
	}
	var created []*models.SettlementTransaction
	if err := preloadMovements(r.db.WithContext(ctx)).
		Where("id IN ?", ids).
		Find(&created).Error; err != nil {
		return nil, fmt.Errorf("reload settlement transactions: %w", err)
	}

	// keep input order
	byID := make(map[string]*models.SettlementTransaction, len(created))
	for _, st := range created {
		byID[st.ID] = st
	}
	out := make([]*models.SettlementTransaction, 0, len(sts))
	for _, id := range ids {
		if st, ok := byID[id]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func createAll(tx *gorm.DB, sts []*models.SettlementTransaction) error {
	ids := make([]string, 0, len(sts))
	seen := make(map[string]struct{}, len(sts))
	for _, st := range sts {
		if st.ID == "" {
			return fmt.Errorf("settlement transaction id is required")
		}
		if _, dup := seen[st.ID]; dup {
			return fmt.Errorf("%w: %s", ErrSettlementTransactionExists, st.ID)
		}
		seen[st.ID] = struct{}{}
		ids = append(ids, st.ID)
	}

	var existing []string
	if err := tx.Model(&models.SettlementTransaction{}).
		Where("id IN ?", ids).
		Pluck("id", &existing).Error; err != nil {
		return fmt.Errorf("check existing settlement transactions: %w", err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: %s", ErrSettlementTransactionExists, strings.Join(existing, ","))
	}

	for _, st := range sts {
		if err := tx.Create(st).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s", ErrSettlementTransactionExists, st.ID)
			}
			return fmt.Errorf("create settlement transaction %s: %w", st.ID, err)
		}
	}
	return nil
}

// GetByID retrieves a settlement transaction by id
func (r *settlementTransactionRepository) GetByID(ctx context.Context, id string) (*models.SettlementTransaction, error) {
	var st models.SettlementTransaction
	err := preloadMovements(r.db.WithContext(ctx)).Where("id = ?", id).First(&st).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettlementTransactionNotFound
		}
		return nil, err
	}
	return &st, nil
}

// GetByPaymentReference finds the settlement transactions linked to a cash movement
func (r *settlementTransactionRepository) GetByPaymentReference(ctx context.Context, ref string) ([]*models.SettlementTransaction, error) {
	linked := r.db.WithContext(ctx).
		Table("settlement_transaction_movements").
		Select("settlement_transaction_movements.settlement_transaction_id").
		Joins("JOIN movements ON movements.id = settlement_transaction_movements.movement_id").
		Where("movements.payment_reference = ?", ref)

	var sts []*models.SettlementTransaction
	err := preloadMovements(r.db.WithContext(ctx)).
		Where("id IN (?)", linked).
		Order("created_at ASC").
		Order("id ASC").
		Find(&sts).Error
	return sts, err
}

// GetByInstrument lists settlement transactions of a ledger, optionally for one instrument
func (r *settlementTransactionRepository) GetByInstrument(ctx context.Context, ledger models.Ledger, address string) ([]*models.SettlementTransaction, error) {
	query := preloadMovements(r.db.WithContext(ctx)).Where("instrument_ledger = ?", ledger)
	if address != "" {
		if ledger.IsEVM() {
			query = query.Where("LOWER(instrument_public_address) = ?", strings.ToLower(address))
		} else {
			query = query.Where("instrument_public_address = ?", address)
		}
	}

	var sts []*models.SettlementTransaction
	err := query.Order("created_at ASC").Order("id ASC").Find(&sts).Error
	return sts, err
}

// GetByTimeRange lists settlement transactions created in [begin, end)
func (r *settlementTransactionRepository) GetByTimeRange(ctx context.Context, begin, end time.Time) ([]*models.SettlementTransaction, error) {
	if end.Before(begin) {
		return nil, fmt.Errorf("invalid time range: end %s is before begin %s", end.Format(time.RFC3339), begin.Format(time.RFC3339))
	}

	var sts []*models.SettlementTransaction
	err := preloadMovements(r.db.WithContext(ctx)).
		Where("created_at >= ? AND created_at < ?", begin.UTC(), end.UTC()).
		Order("created_at ASC").
		Order("id ASC").
		Find(&sts).Error
	return sts, err
}
