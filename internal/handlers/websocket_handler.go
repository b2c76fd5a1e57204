package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/castframework/cast1-sub000/internal/models"
	"github.com/castframework/cast1-sub000/internal/services"
)

// WebSocketHandler manages notification stream connections
type WebSocketHandler struct {
	pushService *services.WebSocketPushService
	logger      *logrus.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(pushService *services.WebSocketPushService, logger *logrus.Logger) *WebSocketHandler {
	return &WebSocketHandler{pushService: pushService, logger: logger}
}

// ParseKinds parses a comma separated list of notification kinds, empty means all
func ParseKinds(raw string) ([]models.NotificationKind, error) {
	var kinds []models.NotificationKind
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind, err := models.ParseNotificationKind(part)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// HandleNotifications GET /ws/notifications?kinds=contract,error
func (h *WebSocketHandler) HandleNotifications(c *gin.Context) {
	kinds, err := ParseKinds(c.Query("kinds"))
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	if err := h.pushService.HandleWebSocket(c.Writer, c.Request, kinds); err != nil {
		// the upgrader already answered the client
		h.logger.WithError(err).Warn("❌ WebSocket upgrade failed")
	}
}
