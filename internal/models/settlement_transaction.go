package models

import (
	"fmt"
	"strings"
	"time"
)

// Ledger identifies the blockchain an instrument is deployed on
type Ledger string

const (
	LedgerEthereum Ledger = "ETHEREUM"
	LedgerTezos    Ledger = "TEZOS"
)

// IsEVM reports whether the ledger speaks the EVM contract ABI
func (l Ledger) IsEVM() bool {
	return l == LedgerEthereum
}

// ParseLedger accepts ledger names case-insensitively
func ParseLedger(s string) (Ledger, error) {
	switch Ledger(strings.ToUpper(strings.TrimSpace(s))) {
	case LedgerEthereum:
		return LedgerEthereum, nil
	case LedgerTezos:
		return LedgerTezos, nil
	}
	return "", fmt.Errorf("unknown ledger %q", s)
}

type MovementType string

const (
	MovementTypeCash  MovementType = "CASH"
	MovementTypeToken MovementType = "TOKEN"
)

type SettlementType string

const (
	SettlementTypeDVP SettlementType = "DVP"
)

// SettlementModel selects whether cash goes through an intermediary settlement account
type SettlementModel string

const (
	SettlementModelDirect   SettlementModel = "DIRECT"
	SettlementModelIndirect SettlementModel = "INDIRECT"
)

// OperationType tags which business operation produced a settlement transaction
type OperationType string

const (
	OperationTypeNone         OperationType = "None"
	OperationTypeSubscription OperationType = "Subscription"
	OperationTypeTrade        OperationType = "Trade"
	OperationTypeRedemption   OperationType = "Redemption"
)

// Movement is one atomic transfer leg. A movement may be linked to several
// settlement transactions (the issuer->settler leg of an indirect redemption).
type Movement struct {
	ID                    string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MovementType          MovementType `json:"movementType" gorm:"not null"`
	SenderAccountNumber   string       `json:"senderAccountNumber" gorm:"not null"`
	ReceiverAccountNumber string       `json:"receiverAccountNumber" gorm:"not null"`
	PaymentReference      string       `json:"paymentReference,omitempty" gorm:"index"` // CASH only
	Sequence              int          `json:"sequence" gorm:"not null;default:0"`      // leg position inside its settlement transaction
	CreatedAt             time.Time    `json:"-"`
}

// SettlementTransaction is the aggregate DVP settlement unit
type SettlementTransaction struct {
	ID             string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SettlementType SettlementType `json:"settlementType" gorm:"not null"`
	SettlementDate time.Time      `json:"settlementDate"`
	TradeDate      time.Time      `json:"tradeDate"`
	TradeID        string         `json:"tradeId"`
	OperationID    string         `json:"operationId" gorm:"index;type:varchar(36);not null"`

	InstrumentPublicAddress string `json:"instrumentPublicAddress" gorm:"index;not null"`
	InstrumentLedger        Ledger `json:"instrumentLedger" gorm:"index;not null"`

	DeliveryQuantity              int64  `json:"deliveryQuantity"`
	DeliverySenderAccountNumber   string `json:"deliverySenderAccountNumber"`
	DeliveryReceiverAccountNumber string `json:"deliveryReceiverAccountNumber"`

	PaymentAmount                int64  `json:"paymentAmount"`
	PaymentCurrency              string `json:"paymentCurrency"`
	PaymentSenderAccountNumber   string `json:"paymentSenderAccountNumber"`
	PaymentReceiverAccountNumber string `json:"paymentReceiverAccountNumber"`
	PaymentSenderLegalEntityID   string `json:"paymentSenderLegalEntityId"`
	PaymentReceiverLegalEntityID string `json:"paymentReceiverLegalEntityId"`

	SettlementModel         SettlementModel `json:"settlementModel" gorm:"not null"`
	IntermediateAccountIBAN string          `json:"intermediateAccountIBAN,omitempty"` // INDIRECT
	HoldableTokenAddress    string          `json:"holdableTokenAddress,omitempty"`    // DIRECT

	AdditionalReaderAddresses          []string      `json:"additionalReaderAddresses" gorm:"serializer:json"`
	SettlementTransactionOperationType OperationType `json:"settlementTransactionOperationType"`

	Hash      string      `json:"hash" gorm:"not null"`
	Movements []*Movement `json:"movements" gorm:"many2many:settlement_transaction_movements;"`
	CreatedAt time.Time   `json:"createdAt" gorm:"index"`
}

// HashFields returns every hashed field keyed by its wire name. Movements,
// hash and bookkeeping timestamps are not part of the content hash.
func (st *SettlementTransaction) HashFields() map[string]interface{} {
	readers := st.AdditionalReaderAddresses
	if readers == nil {
		readers = []string{}
	}
	return map[string]interface{}{
		"id":                                 st.ID,
		"settlementType":                     string(st.SettlementType),
		"settlementDate":                     st.SettlementDate,
		"tradeDate":                          st.TradeDate,
		"tradeId":                            st.TradeID,
		"operationId":                        st.OperationID,
		"instrumentPublicAddress":            st.InstrumentPublicAddress,
		"instrumentLedger":                   string(st.InstrumentLedger),
		"deliveryQuantity":                   st.DeliveryQuantity,
		"deliverySenderAccountNumber":        st.DeliverySenderAccountNumber,
		"deliveryReceiverAccountNumber":      st.DeliveryReceiverAccountNumber,
		"paymentAmount":                      st.PaymentAmount,
		"paymentCurrency":                    st.PaymentCurrency,
		"paymentSenderAccountNumber":         st.PaymentSenderAccountNumber,
		"paymentReceiverAccountNumber":       st.PaymentReceiverAccountNumber,
		"paymentSenderLegalEntityId":         st.PaymentSenderLegalEntityID,
		"paymentReceiverLegalEntityId":       st.PaymentReceiverLegalEntityID,
		"settlementModel":                    string(st.SettlementModel),
		"intermediateAccountIBAN":            st.IntermediateAccountIBAN,
		"holdableTokenAddress":               st.HoldableTokenAddress,
		"additionalReaderAddresses":          readers,
		"settlementTransactionOperationType": string(st.SettlementTransactionOperationType),
	}
}

// CashMovements returns the CASH legs in sequence order
func (st *SettlementTransaction) CashMovements() []*Movement {
	var out []*Movement
	for _, m := range st.Movements {
		if m.MovementType == MovementTypeCash {
			out = append(out, m)
		}
	}
	return out
}

// TokenMovement returns the TOKEN leg, nil when absent
func (st *SettlementTransaction) TokenMovement() *Movement {
	for _, m := range st.Movements {
		if m.MovementType == MovementTypeToken {
			return m
		}
	}
	return nil
}

// SettlementTransactionStatus is the per-transaction state held by the instrument contract
type SettlementTransactionStatus string

const (
	SettlementTransactionStatusUnknown            SettlementTransactionStatus = "Unknown"
	SettlementTransactionStatusInitiated          SettlementTransactionStatus = "Initiated"
	SettlementTransactionStatusPaymentReceived    SettlementTransactionStatus = "PaymentReceived"
	SettlementTransactionStatusPaymentTransferred SettlementTransactionStatus = "PaymentTransferred"
	SettlementTransactionStatusCanceled           SettlementTransactionStatus = "Canceled"
)

// SettlementTransactionView is a stored settlement transaction enriched with its on-chain status
type SettlementTransactionView struct {
	*SettlementTransaction
	Status SettlementTransactionStatus `json:"status"`
}
