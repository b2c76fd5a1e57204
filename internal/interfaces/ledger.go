package interfaces

import (
	"context"
	"math/big"

	"github.com/castframework/cast1-sub000/internal/models"
)

// SettlementTransactionCall is the on-chain parameter shape of a settlement
// transaction. Ids are packed 128-bit integers.
type SettlementTransactionCall struct {
	ID                            *big.Int
	OperationID                   *big.Int
	DeliverySenderAccountNumber   string
	DeliveryReceiverAccountNumber string
	DeliveryQuantity              *big.Int
	TxHash                        string
}

// InstrumentEventHandler receives decoded instrument events. A non-nil
// decodeErr means the log could not be decoded; evt is nil in that case and
// meta locates the offending log.
type InstrumentEventHandler func(evt models.InstrumentEvent, meta models.EventMeta, decodeErr error)

// InstrumentListedHandler receives factory listing events
type InstrumentListedHandler func(evt *models.InstrumentListedEvent)

// InstrumentContract is the facade over one deployed instrument.
// Every submitting call returns the ledger transaction id.
type InstrumentContract interface {
	Address() string

	Owner(ctx context.Context) (string, error)
	Settler(ctx context.Context) (string, error)
	Registrar(ctx context.Context) (string, error)
	CurrentState(ctx context.Context) (models.InstrumentState, error)
	GetFullBalances(ctx context.Context) ([]models.HolderBalance, error)
	GetSettlementTransactionStatus(ctx context.Context, id *big.Int) (models.SettlementTransactionStatus, error)

	InitiateSubscription(ctx context.Context, call SettlementTransactionCall) (string, error)
	InitiateTrade(ctx context.Context, call SettlementTransactionCall) (string, error)
	InitiateRedemption(ctx context.Context, calls []SettlementTransactionCall) (string, error)
	ConfirmPaymentReceived(ctx context.Context, id *big.Int) (string, error)
	ConfirmPaymentTransferred(ctx context.Context, id *big.Int) (string, error)
	CancelSettlementTransaction(ctx context.Context, call SettlementTransactionCall) (string, error)

	// SubscribeEvents establishes a log subscription and delivers events to
	// handler from a background goroutine until ctx is done
	SubscribeEvents(ctx context.Context, handler InstrumentEventHandler) error
}

// InstrumentRegistry is the facade over a ledger's registry and factories
type InstrumentRegistry interface {
	GetAllInstruments(ctx context.Context) ([]string, error)
	GetAllFactoryTypes(ctx context.Context) ([]string, error)
	GetFactory(ctx context.Context, factoryType string) (string, error)
	// SubscribeInstrumentListed delivers the listing events of one factory
	// from a background goroutine until ctx is done
	SubscribeInstrumentListed(ctx context.Context, factoryAddress string, handler InstrumentListedHandler) error
}

// LedgerDriver binds the facades of one ledger
type LedgerDriver interface {
	Ledger() models.Ledger
	Instrument(address string) (InstrumentContract, error)
	Registry() InstrumentRegistry
}

// PositionProjection computes the per legal entity positions of an instrument
type PositionProjection interface {
	GetInstrumentPositions(ctx context.Context, address string, ledger models.Ledger) ([]models.InstrumentPosition, error)
}
