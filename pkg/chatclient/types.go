package chatclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNoActiveRoom = errors.New("no active room")
	ErrClosed       = errors.New("controller closed")
	ErrDisconnected = errors.New("connection lost")
)

// ServerError явный отказ сервера (кадр error или HTTP-ошибка)
type ServerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

type Room struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	IsPrivate   bool      `json:"is_private"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	OnlineCount int       `json:"online_count"`
}

type Message struct {
	ID              uuid.UUID `json:"id"`
	RoomID          uuid.UUID `json:"room_id"`
	Sequence        int64     `json:"sequence"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"created_at"`
	ClientMessageID string    `json:"client_message_id,omitempty"`
	User            User      `json:"user"`
}

type EventType int

const (
	// EventMessage новое сообщение в активной комнате
	EventMessage EventType = iota
	// EventRoomSelected список сообщений заменен историей новой комнаты
	EventRoomSelected
	// EventError кадр error без ожидающего запроса
	EventError
	EventDisconnected
	// EventRoomAdded пользователя добавили в приватную комнату
	EventRoomAdded
)

type Event struct {
	Type    EventType
	RoomID  uuid.UUID
	Message *Message
	Err     error
}

// кадр протокола
type frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	RoomID    *uuid.UUID      `json:"room_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

const (
	typePing       = "ping"
	typePong       = "pong"
	typeError      = "error"
	typeRoomJoin   = "room_join"
	typeRoomLeave  = "room_leave"
	typeSend       = "message_send"
	typeRoomJoined = "room_joined"
	typeRoomLeft   = "room_left"
	typeMessageNew = "message_new"
	typeRoomAdded  = "room_added"
)

type joinData struct {
	SinceSequence *int64 `json:"since_sequence,omitempty"`
}

type joinedData struct {
	LatestSequence  int64 `json:"latest_sequence"`
	Room            Room  `json:"room"`
	ReplayTruncated bool  `json:"replay_truncated"`
}

type sendData struct {
	Content         string `json:"content"`
	ClientMessageID string `json:"client_message_id"`
}
