package clients

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/castframework/cast1-sub000/internal/config"
	"github.com/castframework/cast1-sub000/internal/metrics"
	"github.com/castframework/cast1-sub000/internal/models"
)

// NotificationHandler receives notifications decoded from NATS
type NotificationHandler func(n models.Notification)

// NATSClient bridges notifications between oracle processes. Subjects are
// <prefix>.<kind>; with JetStream every message carries the notification id
// as its deduplication id.
type NATSClient struct {
	conn          *nats.Conn
	js            nats.JetStreamContext
	streamName    string
	subjectPrefix string
	durable       string
	subs          []*nats.Subscription
	mu            sync.Mutex
	logger        *logrus.Logger
}

// NewNATSClient connects to NATS and prepares the JetStream stream when enabled
func NewNATSClient(cfg config.NATSConfig, logger *logrus.Logger) (*NATSClient, error) {
	connectTimeout := 10 * time.Second
	if cfg.Timeout > 0 {
		connectTimeout = time.Duration(cfg.Timeout) * time.Second
	}
	reconnectWait := 2 * time.Second
	if cfg.ReconnectWait > 0 {
		reconnectWait = time.Duration(cfg.ReconnectWait) * time.Second
	}

	// connect to NATS server
	conn, err := nats.Connect(cfg.URL,
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	client := &NATSClient{
		conn:          conn,
		streamName:    cfg.Stream,
		subjectPrefix: cfg.SubjectPrefix,
		durable:       cfg.Durable,
		logger:        logger,
	}

	if cfg.EnableJetStream {
		js, err := conn.JetStream()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("create JetStream context: %w", err)
		}
		client.js = js
		if err := client.ensureStream(); err != nil {
			conn.Close()
			return nil, err
		}
	}

	logger.WithFields(logrus.Fields{
		"url":       cfg.URL,
		"jetstream": cfg.EnableJetStream,
		"prefix":    cfg.SubjectPrefix,
	}).Info("✅ NATS connected")
	return client, nil
}

// ensureStream JetStream stream exists
func (c *NATSClient) ensureStream() error {
	if _, err := c.js.StreamInfo(c.streamName); err == nil {
		return nil
	}

	_, err := c.js.AddStream(&nats.StreamConfig{
		Name:       c.streamName,
		Subjects:   []string{c.subjectPrefix + ".>"},
		Retention:  nats.LimitsPolicy,
		MaxAge:     24 * time.Hour,
		Storage:    nats.FileStorage,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", c.streamName, err)
	}
	c.logger.WithField("stream", c.streamName).Info("JetStream stream created")
	return nil
}

// Subject returns the subject notifications of kind are published on
func (c *NATSClient) Subject(kind models.NotificationKind) string {
	return NotificationSubject(c.subjectPrefix, kind)
}

// NotificationSubject builds <prefix>.<kind>
func NotificationSubject(prefix string, kind models.NotificationKind) string {
	return prefix + "." + string(kind)
}

// KindFromSubject extracts the notification kind of a subject built by NotificationSubject
func KindFromSubject(prefix, subject string) (models.NotificationKind, error) {
	if !strings.HasPrefix(subject, prefix+".") {
		return "", fmt.Errorf("subject %q is outside prefix %q", subject, prefix)
	}
	return models.ParseNotificationKind(strings.TrimPrefix(subject, prefix+"."))
}

// PublishNotification publishes n on its kind subject
func (c *NATSClient) PublishNotification(n models.Notification) error {
	kind := n.Kind()
	data, err := json.Marshal(n)
	if err != nil {
		metrics.NATSMessagesFailed.WithLabelValues(string(kind), "marshal").Inc()
		return fmt.Errorf("marshal %s notification: %w", kind, err)
	}

	subject := c.Subject(kind)
	if c.js != nil {
		_, err = c.js.Publish(subject, data, nats.MsgId(n.NotificationID()))
	} else {
		err = c.conn.Publish(subject, data)
	}
	if err != nil {
		metrics.NATSMessagesFailed.WithLabelValues(string(kind), "publish").Inc()
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// SubscribeNotifications delivers every notification kind to handler. With
// JetStream the subscription is durable and messages are acked after handling.
func (c *NATSClient) SubscribeNotifications(handler NotificationHandler) error {
	subject := c.subjectPrefix + ".>"
	cb := func(msg *nats.Msg) {
		n, err := c.decode(msg)
		if err != nil {
			c.logger.WithField("subject", msg.Subject).WithError(err).Error("failed to decode notification")
			if c.js != nil {
				msg.Term()
			}
			return
		}
		metrics.NATSMessagesReceived.WithLabelValues(string(n.Kind())).Inc()
		handler(n)
		if c.js != nil {
			msg.Ack()
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if c.js != nil {
		opts := []nats.SubOpt{nats.ManualAck(), nats.DeliverNew()}
		if c.durable != "" {
			opts = append(opts, nats.Durable(c.durable))
		}
		sub, err = c.js.Subscribe(subject, cb, opts...)
	} else {
		sub, err = c.conn.Subscribe(subject, cb)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.logger.WithFields(logrus.Fields{"subject": subject, "durable": c.durable}).Info("✅ NATS subscription started")
	return nil
}

func (c *NATSClient) decode(msg *nats.Msg) (models.Notification, error) {
	kind, err := KindFromSubject(c.subjectPrefix, msg.Subject)
	if err != nil {
		metrics.NATSMessagesFailed.WithLabelValues("unknown", "subject").Inc()
		return nil, err
	}
	n, err := models.DecodeNotification(kind, msg.Data)
	if err != nil {
		metrics.NATSMessagesFailed.WithLabelValues(string(kind), "decode").Inc()
		return nil, err
	}
	return n, nil
}

// Close drains subscriptions and closes the connection
func (c *NATSClient) Close() {
	c.mu.Lock()
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil
	c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
	}
	metrics.NATSConnectionStatus.Set(0)
}
