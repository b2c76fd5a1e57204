package models

import "math/big"

// EventName is the name of an instrument contract event
type EventName string

const (
	EventTransfer                      EventName = "Transfer"
	EventSubscriptionInitiated         EventName = "SubscriptionInitiated"
	EventTradeInitiated                EventName = "TradeInitiated"
	EventRedemptionInitiated           EventName = "RedemptionInitiated"
	EventPaymentReceived               EventName = "PaymentReceived"
	EventPaymentTransferred            EventName = "PaymentTransferred"
	EventSettlementTransactionCanceled EventName = "SettlementTransactionCanceled"
	EventInstrumentListed              EventName = "InstrumentListed"
)

// EventMeta locates an event on its ledger
type EventMeta struct {
	Ledger            Ledger
	InstrumentAddress string
	TransactionHash   string
	BlockNumber       uint64
	LogIndex          uint
}

// InstrumentEvent is the closed set of events an instrument contract emits.
// Implementations: *TransferEvent, *SettlementEvent.
type InstrumentEvent interface {
	Name() EventName
	Meta() EventMeta
	instrumentEvent()
}

// TransferEvent is a plain token transfer, not tied to a settlement transaction
type TransferEvent struct {
	EventMeta
	From  string
	To    string
	Value *big.Int
}

func (e *TransferEvent) Name() EventName { return EventTransfer }
func (e *TransferEvent) Meta() EventMeta { return e.EventMeta }
func (*TransferEvent) instrumentEvent() {}

// SettlementEvent is a settlement lifecycle event carrying one or more packed
// settlement transaction ids and optionally the operation type code
type SettlementEvent struct {
	EventMeta
	EventName                EventName
	SettlementTransactionIDs []*big.Int
	OperationTypeCode        *uint8
}

func (e *SettlementEvent) Name() EventName { return e.EventName }
func (e *SettlementEvent) Meta() EventMeta { return e.EventMeta }
func (*SettlementEvent) instrumentEvent() {}

// InstrumentListedEvent is emitted by a factory when it deploys an instrument
type InstrumentListedEvent struct {
	Ledger            Ledger
	FactoryAddress    string
	InstrumentAddress string
	TransactionHash   string
	BlockNumber       uint64
	LogIndex          uint
}

// IsSettlementEventName reports whether name belongs to the settlement lifecycle
func IsSettlementEventName(name EventName) bool {
	switch name {
	case EventSubscriptionInitiated, EventTradeInitiated, EventRedemptionInitiated,
		EventPaymentReceived, EventPaymentTransferred, EventSettlementTransactionCanceled:
		return true
	}
	return false
}

// operationTypeCodes mirrors the contract's operation type enum
var operationTypeCodes = map[uint8]OperationType{
	0: OperationTypeNone,
	1: OperationTypeSubscription,
	2: OperationTypeRedemption,
	3: OperationTypeTrade,
}

var operationTypeByEvent = map[EventName]OperationType{
	EventSubscriptionInitiated: OperationTypeSubscription,
	EventTradeInitiated:        OperationTypeTrade,
	EventRedemptionInitiated:   OperationTypeRedemption,
}

// OperationTypeFromCode maps a contract operation type code, unknown codes map to None
func OperationTypeFromCode(code uint8) OperationType {
	if t, ok := operationTypeCodes[code]; ok {
		return t
	}
	return OperationTypeNone
}

// OperationTypeFromEventName infers the operation type of initiation events
func OperationTypeFromEventName(name EventName) OperationType {
	if t, ok := operationTypeByEvent[name]; ok {
		return t
	}
	return OperationTypeNone
}
