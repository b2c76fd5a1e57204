// Heartbeat Service
// Publishes periodic heartbeat notifications so idle subscribers can detect a dead stream
package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/castframework/cast1-sub000/internal/models"
)

const defaultHeartbeatInterval = 30 * time.Second

// HeartbeatService manages the periodic heartbeat task
type HeartbeatService struct {
	publisher NotificationPublisher
	interval  time.Duration
	stopChan  chan struct{}
	stopOnce  sync.Once
	logger    *logrus.Logger
}

// NewHeartbeatService creates a new HeartbeatService instance
func NewHeartbeatService(publisher NotificationPublisher, interval time.Duration, logger *logrus.Logger) *HeartbeatService {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	return &HeartbeatService{
		publisher: publisher,
		interval:  interval,
		stopChan:  make(chan struct{}),
		logger:    logger,
	}
}

// Start begins publishing heartbeats
func (s *HeartbeatService) Start() {
	s.logger.WithField("interval", s.interval).Info("🚀 Heartbeat service starting")
	go s.run()
}

// Stop gracefully stops the heartbeat task
func (s *HeartbeatService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.logger.Info("🛑 Heartbeat service stopped")
	})
}

func (s *HeartbeatService) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case t := <-ticker.C:
			s.Beat(t)
		case <-s.stopChan:
			return
		}
	}
}

// Beat publishes one heartbeat stamped with t
func (s *HeartbeatService) Beat(t time.Time) {
	s.publisher.Publish(&models.HeartbeatNotification{
		ID:               uuid.NewString(),
		NotificationName: models.NotificationHeartbeat,
		Timestamp:        t.UTC(),
	})
}
