package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/storychat/internal/database"
	"github.com/thereayou/storychat/internal/handlers/dto"
	"github.com/thereayou/storychat/internal/middleware"
	"github.com/thereayou/storychat/internal/services"
)

// HTTPMessageHandler история комнаты и отправка без WebSocket
type HTTPMessageHandler struct {
	store services.ChatStore
	chat  *services.ChatService
}

func NewHTTPMessageHandler(store services.ChatStore, chat *services.ChatService) *HTTPMessageHandler {
	return &HTTPMessageHandler{store: store, chat: chat}
}

// GetMessages история комнаты по возрастанию; ?since=N только сообщения с номером больше N
func (h *HTTPMessageHandler) GetMessages(c *gin.Context) {
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	var since int64
	if raw := c.Query("since"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		since = n
	}

	ctx := c.Request.Context()
	room, err := h.store.GetRoom(ctx, roomID)
	if err != nil {
		writeError(c, err)
		return
	}
	allowed, err := h.store.CanAccessRoom(ctx, room, viewerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if !allowed {
		writeError(c, errForbidden)
		return
	}

	messages, err := h.store.HistorySince(ctx, room.ID, since)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": dto.NewMessageResponses(messages)})
}

// SendMessage тот же путь, что и message_send: сохранить и разослать подписчикам
func (h *HTTPMessageHandler) SendMessage(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	var req dto.SendPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	room, err := h.store.GetRoom(ctx, roomID)
	if err != nil {
		writeError(c, err)
		return
	}
	allowed, err := h.store.CanAccessRoom(ctx, room, &userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !allowed {
		writeError(c, errForbidden)
		return
	}

	message, err := h.chat.Send(ctx, room.ID, userID, req.Content, req.ClientMessageID)
	switch {
	case errors.Is(err, database.ErrDuplicate):
		c.JSON(http.StatusOK, dto.NewMessageResponse(message))
	case errors.Is(err, services.ErrNotDelivered):
		// сохранено: отправитель получает сообщение в ответе, остальные догонят историей
		c.JSON(http.StatusCreated, dto.NewMessageResponse(message))
	case err != nil:
		writeError(c, err)
	default:
		c.JSON(http.StatusCreated, dto.NewMessageResponse(message))
	}
}
