package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/castframework/cast1-sub000/internal/clients"
	"github.com/castframework/cast1-sub000/internal/config"
	"github.com/castframework/cast1-sub000/internal/db"
	"github.com/castframework/cast1-sub000/internal/handlers"
	"github.com/castframework/cast1-sub000/internal/interfaces"
	"github.com/castframework/cast1-sub000/internal/repository"
	"github.com/castframework/cast1-sub000/internal/router"
	"github.com/castframework/cast1-sub000/internal/services"
)

// ServiceContainer holds the wired components of one oracle process.
// Only the fields its role needs are set.
type ServiceContainer struct {
	Config *config.Config
	Logger *logrus.Logger

	// Storage
	DB    *gorm.DB
	Store interfaces.SettlementTransactionStore

	// Ledgers
	EthereumClient *clients.EthereumClient
	Ledgers        services.Ledgers

	// Orchestration
	OperationService  *services.OperationService
	RedemptionService *services.RedemptionService
	SettlementService *services.SettlementService
	PositionService   *services.PositionService
	QueryService      *services.InvestorQueryService

	// Events & notifications
	NATSClient           *clients.NATSClient
	NotificationBus      *services.NotificationBus
	PendingCalls         *services.PendingCallRegistry
	EventCorrelator      *services.EventCorrelatorService
	HeartbeatService     *services.HeartbeatService
	WebSocketPushService *services.WebSocketPushService

	ctx    context.Context
	cancel context.CancelFunc
}

func newContainer(cfg *config.Config, logger *logrus.Logger) *ServiceContainer {
	ctx, cancel := context.WithCancel(context.Background())
	return &ServiceContainer{Config: cfg, Logger: logger, ctx: ctx, cancel: cancel}
}

// NewRepositoryContainer wires the settlement-transaction repository process
func NewRepositoryContainer(cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	logger.Info("🚀 Initializing settlement repository container...")
	c := newContainer(cfg, logger)

	gormDB, err := db.InitDB(cfg.Database, logger)
	if err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c.DB = gormDB
	c.Store = repository.NewSettlementTransactionRepository(gormDB)

	logger.Info("✅ Settlement repository container initialized")
	return c, nil
}

// NewRegistrarContainer wires the registrar oracle. extra registers ledger
// drivers implemented outside this module (the non-EVM ledger).
func NewRegistrarContainer(cfg *config.Config, logger *logrus.Logger, extra ...interfaces.LedgerDriver) (*ServiceContainer, error) {
	logger.Info("🚀 Initializing registrar oracle container...")
	c := newContainer(cfg, logger)
	if err := c.initLedgerAccess(extra); err != nil {
		c.Cleanup()
		return nil, err
	}

	c.PositionService = services.NewPositionService(c.Ledgers)
	c.OperationService = services.NewOperationService(c.Store, c.Ledgers, logger)
	c.RedemptionService = services.NewRedemptionService(c.Store, c.Ledgers, c.PositionService, logger)

	if err := c.initPendingCalls(); err != nil {
		logger.WithError(err).Warn("⚠️ Pending call resolution disabled, ?wait=true answers immediately")
	}

	logger.Info("✅ Registrar oracle container initialized")
	return c, nil
}

// NewSettlementContainer wires the settlement (cash) oracle
func NewSettlementContainer(cfg *config.Config, logger *logrus.Logger, extra ...interfaces.LedgerDriver) (*ServiceContainer, error) {
	logger.Info("🚀 Initializing settlement oracle container...")
	c := newContainer(cfg, logger)
	if err := c.initLedgerAccess(extra); err != nil {
		c.Cleanup()
		return nil, err
	}

	c.SettlementService = services.NewSettlementService(c.Store, c.Ledgers, cfg.Notifications.ConfirmationConcurrency, logger)

	logger.Info("✅ Settlement oracle container initialized")
	return c, nil
}

// NewInvestorContainer wires the investor read oracle and the event correlator.
// Call Start to begin correlating ledger events.
func NewInvestorContainer(cfg *config.Config, logger *logrus.Logger, extra ...interfaces.LedgerDriver) (*ServiceContainer, error) {
	logger.Info("🚀 Initializing investor oracle container...")
	c := newContainer(cfg, logger)
	if err := c.initLedgerAccess(extra); err != nil {
		c.Cleanup()
		return nil, err
	}

	c.PositionService = services.NewPositionService(c.Ledgers)
	c.QueryService = services.NewInvestorQueryService(c.Store, c.Ledgers)

	c.NotificationBus = services.NewNotificationBus(cfg.Notifications.SubscriberBuffer, logger)
	c.WebSocketPushService = services.NewWebSocketPushService(c.NotificationBus, logger)
	c.EventCorrelator = services.NewEventCorrelatorService(c.Ledgers, c.Store, c.NotificationBus, logger)
	if cfg.Notifications.HeartbeatInterval > 0 {
		interval := time.Duration(cfg.Notifications.HeartbeatInterval) * time.Second
		c.HeartbeatService = services.NewHeartbeatService(c.NotificationBus, interval, logger)
	}

	if cfg.NATS.URL != "" {
		natsClient, err := clients.NewNATSClient(cfg.NATS, logger)
		if err != nil {
			c.Cleanup()
			return nil, fmt.Errorf("failed to initialize NATS client: %w", err)
		}
		c.NATSClient = natsClient
		c.NotificationBus.AddForwarder(natsClient)
	} else {
		logger.Warn("⚠️ NATS not configured, notifications stay local to this process")
	}

	logger.Info("✅ Investor oracle container initialized")
	return c, nil
}

// initLedgerAccess sets up the repository client and the ledger drivers
func (c *ServiceContainer) initLedgerAccess(extra []interfaces.LedgerDriver) error {
	repoCfg := c.Config.Repository
	c.Store = clients.NewSettlementRepositoryClient(repoCfg.BaseURL, repoCfg.Token, time.Duration(repoCfg.Timeout)*time.Second)

	drivers := make([]interfaces.LedgerDriver, 0, len(extra)+1)
	if c.Config.Ethereum.Enabled {
		ethClient, err := clients.NewEthereumClient(c.ctx, c.Config.Ethereum, c.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize ethereum client: %w", err)
		}
		c.EthereumClient = ethClient
		drivers = append(drivers, ethClient)
	}
	drivers = append(drivers, extra...)
	if len(drivers) == 0 {
		return fmt.Errorf("no ledger driver configured")
	}

	c.Ledgers = services.NewLedgers(drivers...)
	for ledger := range c.Ledgers {
		c.Logger.WithField("ledger", ledger).Info("📦 Ledger driver registered")
	}
	return nil
}

// initPendingCalls feeds the pending call registry from the notification stream
func (c *ServiceContainer) initPendingCalls() error {
	if c.Config.NATS.URL == "" {
		return fmt.Errorf("NATS not configured")
	}
	natsClient, err := clients.NewNATSClient(c.Config.NATS, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize NATS client: %w", err)
	}
	c.NATSClient = natsClient

	c.PendingCalls = services.NewPendingCallRegistry()
	if err := natsClient.SubscribeNotifications(c.PendingCalls.HandleNotification); err != nil {
		c.PendingCalls = nil
		return fmt.Errorf("failed to subscribe to notifications: %w", err)
	}
	return nil
}

// Start launches the background workers of the process
func (c *ServiceContainer) Start() error {
	if c.EventCorrelator != nil {
		if err := c.EventCorrelator.Start(c.ctx); err != nil {
			// subscriptions that succeeded stay active
			c.Logger.WithError(err).Error("❌ Event correlator started with errors")
		}
	}
	if c.HeartbeatService != nil {
		c.HeartbeatService.Start()
	}
	return nil
}

// Router builds the HTTP engine matching the wired role
func (c *ServiceContainer) Router() (*gin.Engine, error) {
	cfg, logger := c.Config, c.Logger
	switch {
	case c.DB != nil:
		return router.SetupRepositoryRouter(cfg, handlers.NewSettlementTransactionHandler(c.Store, logger), logger), nil
	case c.OperationService != nil:
		waitTimeout := time.Duration(cfg.Notifications.PendingCallTimeout) * time.Second
		registrar := handlers.NewRegistrarHandler(c.OperationService, c.RedemptionService, c.PendingCalls, waitTimeout, logger)
		return router.SetupRegistrarRouter(cfg, registrar, logger), nil
	case c.SettlementService != nil:
		return router.SetupSettlementRouter(cfg, handlers.NewSettlementHandler(c.SettlementService, logger), logger), nil
	case c.QueryService != nil:
		investor := handlers.NewInvestorHandler(c.PositionService, c.QueryService, logger)
		ws := handlers.NewWebSocketHandler(c.WebSocketPushService, logger)
		return router.SetupInvestorRouter(cfg, investor, ws, logger), nil
	}
	return nil, fmt.Errorf("container has no role wired")
}

// Cleanup stops workers and closes connections
func (c *ServiceContainer) Cleanup() {
	c.Logger.Info("🧹 Cleaning up service container...")

	c.cancel()
	if c.HeartbeatService != nil {
		c.HeartbeatService.Stop()
	}
	if c.NATSClient != nil {
		c.NATSClient.Close()
	}
	if c.EthereumClient != nil {
		c.EthereumClient.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	c.Logger.Info("✅ Service container cleaned up")
}
