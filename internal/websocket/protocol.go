package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageType определяет типы сообщений
type MessageType string

const (
	// Системные типы
	TypePing  MessageType = "ping"
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"

	// От клиента
	TypeRoomJoin    MessageType = "room_join"
	TypeRoomLeave   MessageType = "room_leave"
	TypeMessageSend MessageType = "message_send"

	// От сервера
	TypeRoomJoined MessageType = "room_joined"
	TypeRoomLeft   MessageType = "room_left"
	TypeMessageNew MessageType = "message_new"
	TypeRoomAdded  MessageType = "room_added"
)

// Message конверт одного кадра в обе стороны
type Message struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	RoomID    *uuid.UUID      `json:"room_id,omitempty"`
	UserID    *uuid.UUID      `json:"user_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Encode собирает кадр с данными data
func Encode(msgType MessageType, requestID string, roomID *uuid.UUID, userID *uuid.UUID, data interface{}) ([]byte, error) {
	msg := Message{
		Type:      msgType,
		RequestID: requestID,
		RoomID:    roomID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}

	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = jsonData
	}

	return json.Marshal(msg)
}
