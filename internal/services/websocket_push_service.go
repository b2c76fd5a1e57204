package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/castframework/cast1-sub000/internal/metrics"
	"github.com/castframework/cast1-sub000/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
)

// WebSocket Upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Should check Origin in production environment
		return true
	},
}

// Connection information
type Connection struct {
	ID       string                    `json:"id"`
	Kinds    []models.NotificationKind `json:"kinds"`
	Conn     *websocket.Conn           `json:"-"`
	Send     chan []byte               `json:"-"`
	LastPing time.Time                 `json:"last_ping"`

	subscription *NotificationSubscriber
}

// Push message base structure
type PushMessage struct {
	Type      models.NotificationKind `json:"type"`
	Timestamp string                  `json:"timestamp"`
	MessageID string                  `json:"message_id"`
	Data      models.Notification     `json:"data"`
}

// WebSocketPushService streams bus notifications to websocket subscribers
type WebSocketPushService struct {
	bus         *NotificationBus
	connections map[string]*Connection // key: connectionID
	mutex       sync.RWMutex
	logger      *logrus.Logger
}

// NewWebSocketPushService creates a new WebSocketPushService
func NewWebSocketPushService(bus *NotificationBus, logger *logrus.Logger) *WebSocketPushService {
	return &WebSocketPushService{
		bus:         bus,
		connections: make(map[string]*Connection),
		logger:      logger,
	}
}

// HandleWebSocket upgrades the request and streams notifications of kinds
// until the peer goes away
func (s *WebSocketPushService) HandleWebSocket(w http.ResponseWriter, r *http.Request, kinds []models.NotificationKind) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}

	sub := s.bus.Subscribe(kinds...)
	connection := &Connection{
		ID:           sub.ID,
		Kinds:        sub.Kinds,
		Conn:         conn,
		Send:         make(chan []byte, 256),
		LastPing:     time.Now(),
		subscription: sub,
	}
	s.register(connection)

	if hello, err := json.Marshal(map[string]interface{}{
		"type":      "connected",
		"client_id": connection.ID,
		"kinds":     connection.Kinds,
		"timestamp": time.Now().UTC(),
	}); err == nil {
		connection.Send <- hello
	}

	go s.forward(connection)
	go s.handleConnectionWrite(connection)
	go s.handleConnectionRead(connection)
	return nil
}

// GetActiveConnections returns the number of open connections
func (s *WebSocketPushService) GetActiveConnections() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.connections)
}

func (s *WebSocketPushService) register(conn *Connection) {
	s.mutex.Lock()
	s.connections[conn.ID] = conn
	count := len(s.connections)
	s.mutex.Unlock()

	metrics.WebSocketClients.Set(float64(count))
	s.logger.WithFields(logrus.Fields{"connection_id": conn.ID, "kinds": conn.Kinds}).Info("websocket subscriber connected")
}

func (s *WebSocketPushService) unregister(conn *Connection) {
	s.mutex.Lock()
	_, exists := s.connections[conn.ID]
	delete(s.connections, conn.ID)
	count := len(s.connections)
	s.mutex.Unlock()

	if !exists {
		return
	}
	// closes the subscription channel, which ends forward and then the writer
	_ = s.bus.Unsubscribe(conn.subscription.ID)
	metrics.WebSocketClients.Set(float64(count))
	s.logger.WithField("connection_id", conn.ID).Info("websocket subscriber disconnected")
}

// forward encodes bus notifications into the connection's send queue
func (s *WebSocketPushService) forward(conn *Connection) {
	defer close(conn.Send)

	for n := range conn.subscription.C {
		payload, err := EncodePushMessage(n)
		if err != nil {
			s.logger.WithField("notification_id", n.NotificationID()).WithError(err).Error("failed to encode notification")
			continue
		}
		select {
		case conn.Send <- payload:
		default:
			// Channel full, skip to avoid blocking
			metrics.NotificationsDropped.WithLabelValues(string(n.Kind())).Inc()
		}
	}
}

func (s *WebSocketPushService) handleConnectionWrite(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.WithField("connection_id", conn.ID).WithError(err).Warn("write message failed")
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *WebSocketPushService) handleConnectionRead(conn *Connection) {
	defer func() {
		s.unregister(conn)
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(maxMessageSize)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.LastPing = time.Now()
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.WithField("connection_id", conn.ID).WithError(err).Warn("websocket read error")
			}
			return
		}
	}
}

// EncodePushMessage wraps n into the websocket wire envelope
func EncodePushMessage(n models.Notification) ([]byte, error) {
	return json.Marshal(PushMessage{
		Type:      n.Kind(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		MessageID: n.NotificationID(),
		Data:      n,
	})
}
