package services

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/castframework/cast1-sub000/internal/metrics"
	"github.com/castframework/cast1-sub000/internal/models"
)

const defaultSubscriberBuffer = 256

// NotificationPublisher accepts notifications for fan-out
type NotificationPublisher interface {
	Publish(n models.Notification)
}

// NotificationForwarder relays published notifications to other processes
type NotificationForwarder interface {
	PublishNotification(n models.Notification) error
}

// NotificationSubscriber is one registered consumer of the bus
type NotificationSubscriber struct {
	ID    string
	Kinds []models.NotificationKind
	C     chan models.Notification
}

// NotificationBus fans notifications out to every subscriber of their kind.
// Delivery never blocks the publisher: a full subscriber buffer drops the
// notification for that subscriber only.
type NotificationBus struct {
	// Map of subscriber ID to subscriber
	subscribers map[string]*NotificationSubscriber
	// kind -> subscriber ID set
	kindIndex map[models.NotificationKind]map[string]bool
	mu        sync.RWMutex

	forwarders []NotificationForwarder
	buffer     int
	logger     *logrus.Logger
}

// NewNotificationBus creates a new NotificationBus
func NewNotificationBus(buffer int, logger *logrus.Logger) *NotificationBus {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &NotificationBus{
		subscribers: make(map[string]*NotificationSubscriber),
		kindIndex:   make(map[models.NotificationKind]map[string]bool),
		buffer:      buffer,
		logger:      logger,
	}
}

// AddForwarder registers a relay invoked for every published notification
func (b *NotificationBus) AddForwarder(f NotificationForwarder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forwarders = append(b.forwarders, f)
}

// Subscribe registers a subscriber for kinds, every kind when none is given
func (b *NotificationBus) Subscribe(kinds ...models.NotificationKind) *NotificationSubscriber {
	if len(kinds) == 0 {
		kinds = models.AllNotificationKinds
	}
	sub := &NotificationSubscriber{
		ID:    uuid.NewString(),
		Kinds: kinds,
		C:     make(chan models.Notification, b.buffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[sub.ID] = sub
	for _, k := range kinds {
		if b.kindIndex[k] == nil {
			b.kindIndex[k] = make(map[string]bool)
		}
		b.kindIndex[k][sub.ID] = true
	}
	return sub
}

// Unsubscribe removes a subscriber and closes its channel
func (b *NotificationBus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, exists := b.subscribers[id]
	if !exists {
		return ErrSubscriptionNotFound
	}
	delete(b.subscribers, id)
	for _, k := range sub.Kinds {
		delete(b.kindIndex[k], id)
	}
	close(sub.C)
	return nil
}

// SubscriberCount returns the number of registered subscribers
func (b *NotificationBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Publish delivers n to local subscribers and hands it to every forwarder
func (b *NotificationBus) Publish(n models.Notification) {
	b.Deliver(n)

	b.mu.RLock()
	forwarders := b.forwarders
	b.mu.RUnlock()
	for _, f := range forwarders {
		if err := f.PublishNotification(n); err != nil {
			b.logger.WithFields(logrus.Fields{
				"notification_id": n.NotificationID(),
				"kind":            n.Kind(),
			}).WithError(err).Warn("failed to forward notification")
		}
	}
}

// Deliver fans n out to local subscribers only. Used for notifications that
// arrive from another process.
func (b *NotificationBus) Deliver(n models.Notification) {
	kind := n.Kind()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id := range b.kindIndex[kind] {
		sub := b.subscribers[id]
		select {
		case sub.C <- n:
		default:
			// Channel full, skip to avoid blocking
			metrics.NotificationsDropped.WithLabelValues(string(kind)).Inc()
		}
	}
	metrics.NotificationsPublished.WithLabelValues(string(kind)).Inc()
}
