package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/storychat/internal/database"
	"github.com/thereayou/storychat/internal/middleware"
	"github.com/thereayou/storychat/internal/websocket"
)

var errForbidden = websocket.NewError(websocket.CodeForbidden, "room is private", nil)

// protocolError переводит ошибки хранилища в коды протокола
func protocolError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrValidation):
		return websocket.NewError(websocket.CodeValidation, err.Error(), err)
	case errors.Is(err, database.ErrNotFound):
		return fmt.Errorf("%w: %v", websocket.ErrRoomNotFound, err)
	}
	return err
}

// writeError отвечает JSON-ошибкой с подходящим статусом
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch websocket.CodeOf(protocolError(err)) {
	case websocket.CodeValidation, websocket.CodeInvalidMessage:
		status, message = http.StatusBadRequest, err.Error()
	case websocket.CodeNotFound:
		status, message = http.StatusNotFound, "room not found"
	case websocket.CodeForbidden:
		status, message = http.StatusForbidden, "room is private"
	case websocket.CodeUnauthorized:
		status, message = http.StatusUnauthorized, "unauthorized"
	case websocket.CodeNotInRoom:
		status, message = http.StatusForbidden, err.Error()
	case websocket.CodeRateLimited:
		status, message = http.StatusTooManyRequests, err.Error()
	}

	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": message})
}

func parseRoomID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return uuid.Nil, false
	}
	return id, true
}

// viewerID пользователь запроса, nil для анонимного
func viewerID(c *gin.Context) *uuid.UUID {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return nil
	}
	id := v.(uuid.UUID)
	return &id
}
