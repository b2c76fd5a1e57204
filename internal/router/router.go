package router

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/castframework/cast1-sub000/internal/config"
	"github.com/castframework/cast1-sub000/internal/handlers"
	"github.com/castframework/cast1-sub000/internal/middleware"
)

const (
	ServiceRegistrar  = "registrar-oracle"
	ServiceSettlement = "settlement-oracle"
	ServiceInvestor   = "investor-oracle"
	ServiceRepository = "settlement-repository"
)

// corsMiddleware CORS middleware. An empty origin list allows every origin.
func corsMiddleware(cfg config.CORSConfig, logger *logrus.Logger) gin.HandlerFunc {
	allowAll := len(cfg.AllowedOrigins) == 0
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.TrimSpace(o)] = true
	}
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
		case origin != "":
			logger.WithFields(logrus.Fields{
				"request_origin": origin,
				"path":           c.Request.URL.Path,
				"method":         c.Request.Method,
				"remote_addr":    c.ClientIP(),
			}).Warn("🚫 CORS: Request blocked - Origin not in whitelist")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept")
		if cfg.AllowCredentials && !allowAll {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", maxAge)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// newEngine builds the engine shared by every oracle role: recovery, request
// logging, CORS, health and metrics
func newEngine(cfg *config.Config, service string, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	if len(cfg.Server.TrustedProxies) > 0 {
		if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
			logger.WithError(err).Warn("Invalid trusted proxies, ignoring")
		}
	} else {
		_ = r.SetTrustedProxies(nil)
	}

	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(corsMiddleware(cfg.CORS, logger))

	// ============ Health Check ============
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/api/health", handlers.HealthCheckHandler(service))

	// ============ Prometheus Metrics ============
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "API endpoint not found",
			"path":    c.Request.URL.Path,
		})
	})
	return r
}

// SetupRepositoryRouter routes of the settlement-transaction repository.
// The repository is internal: callers are checked against server.allowed_ips.
func SetupRepositoryRouter(cfg *config.Config, store *handlers.SettlementTransactionHandler, logger *logrus.Logger) *gin.Engine {
	r := newEngine(cfg, ServiceRepository, logger)
	auth := middleware.NewAuthMiddleware(cfg.Auth, logger)
	localhostOnly := middleware.NewLocalhostOnly(logger, cfg.Server.AllowedIPs)

	api := r.Group("/api/settlement-transactions", localhostOnly.Restrict(), auth.RequireAuth())
	{
		api.POST("", store.CreateSettlementTransaction)
		api.POST("/batch", store.CreateSettlementTransactions)
		api.GET("", store.ListSettlementTransactions)
		api.GET("/:id", store.GetSettlementTransaction)
	}
	return r
}

// SetupRegistrarRouter routes of the registrar oracle
func SetupRegistrarRouter(cfg *config.Config, registrar *handlers.RegistrarHandler, logger *logrus.Logger) *gin.Engine {
	r := newEngine(cfg, ServiceRegistrar, logger)
	auth := middleware.NewAuthMiddleware(cfg.Auth, logger)

	api := r.Group("/api", auth.RequireAuth())
	{
		api.POST("/subscriptions", registrar.InitiateSubscription)
		api.POST("/trades", registrar.InitiateTrade)
		api.POST("/redemptions", registrar.InitiateRedemption)
		api.POST("/settlement-transactions/:id/cancel", registrar.CancelSettlementTransaction)
	}
	return r
}

// SetupSettlementRouter routes of the settlement (cash) oracle
func SetupSettlementRouter(cfg *config.Config, settlement *handlers.SettlementHandler, logger *logrus.Logger) *gin.Engine {
	r := newEngine(cfg, ServiceSettlement, logger)
	auth := middleware.NewAuthMiddleware(cfg.Auth, logger)

	payments := r.Group("/api/payments/:paymentReference", auth.RequireAuth())
	{
		payments.POST("/received", settlement.PaymentReceived)
		payments.POST("/transferred", settlement.PaymentTransferred)
	}
	return r
}

// SetupInvestorRouter routes of the investor read oracle and its notification stream
func SetupInvestorRouter(cfg *config.Config, investor *handlers.InvestorHandler, ws *handlers.WebSocketHandler, logger *logrus.Logger) *gin.Engine {
	r := newEngine(cfg, ServiceInvestor, logger)
	auth := middleware.NewAuthMiddleware(cfg.Auth, logger)

	api := r.Group("/api", auth.RequireAuth())
	{
		api.GET("/instruments/:ledger/:address/positions", investor.GetInstrumentPositions)
		api.GET("/instruments/:ledger/:address/settlement-transactions", investor.ListInstrumentSettlementTransactions)
		api.GET("/settlement-transactions/:id", investor.GetSettlementTransaction)
	}

	// ============ WebSocket ============
	r.GET("/ws/notifications", auth.RequireAuth(), ws.HandleNotifications)
	return r
}
