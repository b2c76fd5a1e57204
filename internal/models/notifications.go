package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// NotificationKind selects the fan-out channel a notification is published on
type NotificationKind string

const (
	NotificationKindContract  NotificationKind = "contract"
	NotificationKindRegistry  NotificationKind = "registry"
	NotificationKindError     NotificationKind = "error"
	NotificationKindHeartbeat NotificationKind = "heartbeat"
)

// AllNotificationKinds lists every kind in publication order
var AllNotificationKinds = []NotificationKind{
	NotificationKindContract,
	NotificationKindRegistry,
	NotificationKindError,
	NotificationKindHeartbeat,
}

// ParseNotificationKind validates a kind received from a subscriber
func ParseNotificationKind(s string) (NotificationKind, error) {
	for _, k := range AllNotificationKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown notification kind %q", s)
}

// NotificationName is the closed set of notification names
type NotificationName string

const (
	NotificationTransfer                      NotificationName = "Transfer"
	NotificationSubscriptionInitiated         NotificationName = "SubscriptionInitiated"
	NotificationTradeInitiated                NotificationName = "TradeInitiated"
	NotificationRedemptionInitiated           NotificationName = "RedemptionInitiated"
	NotificationPaymentReceived               NotificationName = "PaymentReceived"
	NotificationPaymentTransferred            NotificationName = "PaymentTransferred"
	NotificationSettlementTransactionCanceled NotificationName = "SettlementTransactionCanceled"
	NotificationInstrumentListed              NotificationName = "InstrumentListed"
	NotificationEventHandlingError            NotificationName = "EventHandlingError"
	NotificationHeartbeat                     NotificationName = "Heartbeat"
)

// Placeholders used when event enrichment data is unavailable
const (
	PlaceholderNoData    = "no Data"
	PlaceholderUndefined = "undefined"
)

// Notification is implemented by every outbound envelope
type Notification interface {
	Kind() NotificationKind
	NotificationID() string
	CorrelationHash() string
}

// LightSettlementTransaction is the id + participant projection attached to notifications
type LightSettlementTransaction struct {
	ID                            string `json:"id"`
	DeliverySenderAccountNumber   string `json:"deliverySenderAccountNumber"`
	DeliveryReceiverAccountNumber string `json:"deliveryReceiverAccountNumber"`
	IssuerAddress                 string `json:"issuerAddress"`
	SettlerAddress                string `json:"settlerAddress"`
	RegistrarAddress              string `json:"registrarAddress"`
}

// ContractNotification reports an instrument contract event
type ContractNotification struct {
	ID                                 string                       `json:"id"`
	NotificationName                   NotificationName             `json:"notificationName"`
	Ledger                             Ledger                       `json:"ledger"`
	InstrumentAddress                  string                       `json:"instrumentAddress"`
	TransactionHash                    string                       `json:"transactionHash"`
	BlockNumber                        uint64                       `json:"blockNumber"`
	LightSettlementTransactions        []LightSettlementTransaction `json:"lightSettlementTransactions"`
	SettlementTransactionOperationType OperationType                `json:"settlementTransactionOperationType"`
	Timestamp                          time.Time                    `json:"timestamp"`
}

func (n *ContractNotification) Kind() NotificationKind { return NotificationKindContract }
func (n *ContractNotification) NotificationID() string { return n.ID }
func (n *ContractNotification) CorrelationHash() string { return n.TransactionHash }

// RegistryNotification reports registry/factory events
type RegistryNotification struct {
	ID                string           `json:"id"`
	NotificationName  NotificationName `json:"notificationName"`
	Ledger            Ledger           `json:"ledger"`
	InstrumentAddress string           `json:"instrumentAddress"`
	FactoryAddress    string           `json:"factoryAddress"`
	TransactionHash   string           `json:"transactionHash"`
	Timestamp         time.Time        `json:"timestamp"`
}

func (n *RegistryNotification) Kind() NotificationKind { return NotificationKindRegistry }
func (n *RegistryNotification) NotificationID() string { return n.ID }
func (n *RegistryNotification) CorrelationHash() string { return n.TransactionHash }

// ErrorNotification reports a failure tied to a ledger transaction
type ErrorNotification struct {
	ID                string           `json:"id"`
	NotificationName  NotificationName `json:"notificationName"`
	Ledger            Ledger           `json:"ledger"`
	InstrumentAddress string           `json:"instrumentAddress"`
	TransactionHash   string           `json:"transactionHash"`
	Message           string           `json:"message"`
	Timestamp         time.Time        `json:"timestamp"`
}

func (n *ErrorNotification) Kind() NotificationKind { return NotificationKindError }
func (n *ErrorNotification) NotificationID() string { return n.ID }
func (n *ErrorNotification) CorrelationHash() string { return n.TransactionHash }

// HeartbeatNotification keeps idle subscriber connections alive
type HeartbeatNotification struct {
	ID               string           `json:"id"`
	NotificationName NotificationName `json:"notificationName"`
	Timestamp        time.Time        `json:"timestamp"`
}

func (n *HeartbeatNotification) Kind() NotificationKind { return NotificationKindHeartbeat }
func (n *HeartbeatNotification) NotificationID() string { return n.ID }
func (n *HeartbeatNotification) CorrelationHash() string { return "" }

// EventNotificationID builds the deterministic id of an event-derived notification,
// so that a redelivered event yields the same id
func EventNotificationID(txHash string, logIndex uint, name NotificationName) string {
	return fmt.Sprintf("%s-%d-%s", txHash, logIndex, name)
}

// DecodeNotification rebuilds a typed notification from its JSON form
func DecodeNotification(kind NotificationKind, data []byte) (Notification, error) {
	var n Notification
	switch kind {
	case NotificationKindContract:
		n = &ContractNotification{}
	case NotificationKindRegistry:
		n = &RegistryNotification{}
	case NotificationKindError:
		n = &ErrorNotification{}
	case NotificationKindHeartbeat:
		n = &HeartbeatNotification{}
	default:
		return nil, fmt.Errorf("unknown notification kind %q", kind)
	}
	if err := json.Unmarshal(data, n); err != nil {
		return nil, fmt.Errorf("decode %s notification: %w", kind, err)
	}
	return n, nil
}
