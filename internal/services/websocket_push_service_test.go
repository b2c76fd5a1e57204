package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castframework/cast1-sub000/internal/models"
)

func readPushFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestWebSocketPushService_StreamsFilteredKinds(t *testing.T) {
	bus := NewNotificationBus(8, testLogger())
	push := NewWebSocketPushService(bus, testLogger())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = push.HandleWebSocket(w, r, []models.NotificationKind{models.NotificationKindHeartbeat})
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readPushFrame(t, conn)
	assert.Equal(t, "connected", hello["type"])
	assert.Equal(t, 1, push.GetActiveConnections())

	bus.Deliver(&models.ErrorNotification{ID: "skipped", NotificationName: models.NotificationEventHandlingError})
	bus.Deliver(&models.HeartbeatNotification{ID: "hb-1", NotificationName: models.NotificationHeartbeat, Timestamp: time.Now()})

	frame := readPushFrame(t, conn)
	assert.Equal(t, string(models.NotificationKindHeartbeat), frame["type"])
	assert.Equal(t, "hb-1", frame["message_id"])

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool { return push.GetActiveConnections() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestEncodePushMessage_Heartbeat(t *testing.T) {
	data, err := EncodePushMessage(&models.HeartbeatNotification{ID: "hb-2", NotificationName: models.NotificationHeartbeat})
	require.NoError(t, err)

	var msg struct {
		Type      string          `json:"type"`
		MessageID string          `json:"message_id"`
		Data      json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "heartbeat", msg.Type)
	assert.Equal(t, "hb-2", msg.MessageID)
	assert.Contains(t, string(msg.Data), "hb-2")
}
