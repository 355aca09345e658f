package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// Время ожидания записи
	writeWait = 10 * time.Second

	// Время ожидания pong от клиента
	pongWait = 60 * time.Second

	// Интервал отправки ping
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер сообщения
	maxMessageSize = 64 * 1024

	sendQueueSize = 256
)

type ClientMessageHandler interface {
	HandleMessage(ctx context.Context, client *Client, msg *Message) error
}

// Client одно WebSocket соединение. Личность пользователя проверена при подключении.
type Client struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Username string
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *Hub

	limiter *rate.Limiter

	// rooms меняет только Hub
	mu    sync.RWMutex
	rooms map[uuid.UUID]bool

	sendMu sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, username string, limiter *rate.Limiter) *Client {
	return &Client{
		ID:       uuid.New(),
		UserID:   userID,
		Username: username,
		Conn:     conn,
		Send:     make(chan []byte, sendQueueSize),
		Hub:      hub,
		limiter:  limiter,
		rooms:    make(map[uuid.UUID]bool),
	}
}

// ReadPump читает сообщения от клиента. Кадры одного соединения обрабатываются строго по очереди.
func (c *Client) ReadPump(ctx context.Context, handler ClientMessageHandler) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.Hub.log.Warn("websocket read error", zap.Stringer("client_id", c.ID), zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.SendError("", ErrInvalidMessage)
			continue
		}

		// личность берется только из соединения, поле из кадра игнорируется
		msg.UserID = &c.UserID

		if msg.Type == TypePong {
			continue
		}
		if msg.Type == TypePing {
			c.SendMessage(TypePong, msg.RequestID, nil, nil)
			continue
		}

		if handler == nil {
			continue
		}
		if err := handler.HandleMessage(ctx, c, &msg); err != nil {
			c.Hub.log.Debug("message rejected",
				zap.Stringer("client_id", c.ID),
				zap.String("type", string(msg.Type)),
				zap.Error(err),
			)
			c.SendError(msg.RequestID, err)
		}
	}
}

// WritePump отправляет сообщения клиенту
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub закрыл канал
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Отправляем все накопившиеся сообщения
			n := len(c.Send)
			for i := 0; i < n; i++ {
				queued, ok := <-c.Send
				if !ok {
					c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.Conn.WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue кладет кадр в очередь, не блокируясь
func (c *Client) enqueue(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrClientQueueFull
	}
}

func (c *Client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

func (c *Client) SendMessage(msgType MessageType, requestID string, roomID *uuid.UUID, data interface{}) error {
	msgData, err := Encode(msgType, requestID, roomID, nil, data)
	if err != nil {
		return err
	}
	return c.enqueue(msgData)
}

// SendRaw отправляет уже закодированный кадр только этому клиенту
func (c *Client) SendRaw(data []byte) error {
	return c.enqueue(data)
}

func (c *Client) SendError(requestID string, err error) {
	c.SendMessage(TypeError, requestID, nil, errorPayload(err))
}

// Allow проверяет лимит отправки сообщений
func (c *Client) Allow() bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}

func (c *Client) IsInRoom(roomID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[roomID]
}

func (c *Client) GetRooms() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]uuid.UUID, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}
