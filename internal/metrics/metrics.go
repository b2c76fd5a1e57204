package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Orchestration
	// ============================================
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cast_operations_total",
			Help: "Total number of orchestrated operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	SettlementTransactionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cast_settlement_transactions_created_total",
			Help: "Total number of settlement transactions persisted",
		},
		[]string{"operation_type", "settlement_model"},
	)

	// ============================================
	// Ledger calls
	// ============================================
	LedgerCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cast_ledger_call_duration_seconds",
			Help:    "Ledger contract call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"ledger", "method"},
	)

	LedgerCallErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cast_ledger_call_errors_total",
			Help: "Total number of failed ledger contract calls",
		},
		[]string{"ledger", "method"},
	)

	// ============================================
	// Events and notifications
	// ============================================
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cast_events_processed_total",
			Help: "Total number of instrument events turned into notifications",
		},
		[]string{"ledger", "event"},
	)

	EventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cast_events_failed_total",
			Help: "Total number of instrument events that could not be decoded",
		},
		[]string{"ledger"},
	)

	SubscribedContracts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cast_subscribed_contracts",
			Help: "Number of contracts with an active event subscription",
		},
		[]string{"ledger", "kind"},
	)

	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cast_notifications_published_total",
			Help: "Total number of notifications published",
		},
		[]string{"kind"},
	)

	NotificationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cast_notifications_dropped_total",
			Help: "Total number of notifications dropped for slow subscribers",
		},
		[]string{"kind"},
	)

	PendingCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cast_pending_calls",
		Help: "Number of ledger transactions awaiting their notification",
	})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cast_websocket_clients",
		Help: "Number of connected notification websocket clients",
	})

	// ============================================
	// NATS
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cast_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cast_nats_messages_received_total",
			Help: "Total number of NATS notification messages received",
		},
		[]string{"kind"},
	)

	NATSMessagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cast_nats_messages_failed_total",
			Help: "Total number of NATS messages that failed to publish or decode",
		},
		[]string{"kind", "error_type"},
	)

	// ============================================
	// HTTP
	// ============================================
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cast_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
