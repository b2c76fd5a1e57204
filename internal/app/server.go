package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/castframework/cast1-sub000/internal/config"
)

const shutdownTimeout = 15 * time.Second

// NewLogger builds the process logger from the log section
func NewLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if level != logrus.DebugLevel && level != logrus.TraceLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	return logger
}

// Serve starts the container workers and its HTTP server, then blocks until
// SIGINT/SIGTERM and shuts everything down gracefully
func Serve(c *ServiceContainer) error {
	defer c.Cleanup()

	engine, err := c.Router()
	if err != nil {
		return err
	}
	if err := c.Start(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              c.Config.Server.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		c.Logger.WithField("addr", srv.Addr).Info("🌐 HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-serveErr:
		if ok {
			return err
		}
		return nil
	case sig := <-quit:
		c.Logger.WithField("signal", sig.String()).Info("🛑 Shutting down server...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	c.Logger.Info("✅ Server exited")
	return nil
}
