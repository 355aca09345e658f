package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/storychat/internal/handlers/dto"
	"github.com/thereayou/storychat/internal/middleware"
	"github.com/thereayou/storychat/internal/services"
	"github.com/thereayou/storychat/internal/websocket"
)

type RoomHandler struct {
	store services.ChatStore
	users services.UserStore
	hub   *websocket.Hub
}

func NewRoomHandler(store services.ChatStore, users services.UserStore, hub *websocket.Hub) *RoomHandler {
	return &RoomHandler{store: store, users: users, hub: hub}
}

// CreateRoom создает новую комнату; создатель сразу становится участником
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	var req dto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.store.CreateRoom(c.Request.Context(), userID, req.Name, req.IsPrivate, req.MemberIDs...)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewRoomResponse(room))
}

// ListRooms комнаты, новые первыми
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.store.ListRooms(c.Request.Context(), viewerID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]dto.RoomResponse, len(rooms))
	for i := range rooms {
		resp[i] = dto.NewRoomResponse(&rooms[i])
		resp[i].OnlineCount = len(h.hub.GetRoomUsers(rooms[i].ID))
	}

	c.JSON(http.StatusOK, gin.H{"rooms": resp})
}

// GetRoom получает информацию о конкретной комнате
func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	room, err := h.store.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		writeError(c, err)
		return
	}

	allowed, err := h.store.CanAccessRoom(c.Request.Context(), room, viewerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if !allowed {
		writeError(c, errForbidden)
		return
	}

	resp := dto.NewRoomResponse(room)
	resp.OnlineCount = len(h.hub.GetRoomUsers(room.ID))
	c.JSON(http.StatusOK, resp)
}

// AddMember добавляет участника; только создатель комнаты
func (h *RoomHandler) AddMember(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	var req dto.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.store.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		writeError(c, err)
		return
	}
	if room.CreatedBy != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only room creator can add members"})
		return
	}

	if _, err := h.users.GetUser(c.Request.Context(), req.UserID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	if err := h.store.AddRoomMember(c.Request.Context(), room.ID, req.UserID); err != nil {
		writeError(c, err)
		return
	}

	// новый участник узнает о комнате без перезапроса списка
	if frame, err := websocket.Encode(websocket.TypeRoomAdded, "", &room.ID, nil, dto.NewRoomResponse(room)); err == nil {
		h.hub.SendToUser(req.UserID, frame)
	}

	c.Status(http.StatusNoContent)
}
