package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/thereayou/storychat/internal/middleware"
	"github.com/thereayou/storychat/internal/services"
	ws "github.com/thereayou/storychat/internal/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// WebSocketHandler управляет WebSocket соединениями
type WebSocketHandler struct {
	hub            *ws.Hub
	messageHandler *MessageHandler
	users          services.UserStore
	sendRPS        rate.Limit
	sendBurst      int
	upgrader       websocket.Upgrader
	log            *zap.Logger
}

// NewWebSocketHandler; allowedOrigin "" или "*" пропускает любой Origin
func NewWebSocketHandler(hub *ws.Hub, messageHandler *MessageHandler, users services.UserStore, sendRPS float64, sendBurst int, allowedOrigin string, log *zap.Logger) *WebSocketHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebSocketHandler{
		hub:            hub,
		messageHandler: messageHandler,
		users:          users,
		sendRPS:        rate.Limit(sendRPS),
		sendBurst:      sendBurst,
		log:            log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
		},
	}
}

// HandleWebSocket обрабатывает WebSocket соединения. Пользователь уже проверен WSAuthMiddleware.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get(middleware.UserIDKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), userID.(uuid.UUID))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn, user.ID, user.Username, rate.NewLimiter(h.sendRPS, h.sendBurst))

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.hub.Context(), h.messageHandler)
}
