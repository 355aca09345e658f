package websocket

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/thereayou/storychat/internal/metrics"
	"go.uber.org/zap"
)

// Broadcaster доставляет кадр всем подписчикам комнаты
type Broadcaster interface {
	Broadcast(ctx context.Context, roomID uuid.UUID, data []byte) error
}

type Hub struct {
	clients map[uuid.UUID]*Client

	// Клиенты по UserID (один пользователь может иметь несколько соединений)
	userClients map[uuid.UUID]map[uuid.UUID]*Client

	// Клиенты в комнатах
	rooms map[uuid.UUID]map[uuid.UUID]*Client

	// Отключения приходят из ReadPump через канал
	unregister chan *Client

	// 0 = без ограничения
	maxRoomsPerClient int

	mu sync.RWMutex

	roomLocks *roomLocks

	log     *zap.Logger
	metrics *metrics.Metrics

	// Контекст для graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type HubOption func(*Hub)

func WithMaxRoomsPerClient(n int) HubOption {
	return func(h *Hub) { h.maxRoomsPerClient = n }
}

func WithLogger(log *zap.Logger) HubOption {
	return func(h *Hub) { h.log = log }
}

func WithMetrics(m *metrics.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// NewHub создает новый Hub
func NewHub(opts ...HubOption) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:     make(map[uuid.UUID]*Client),
		userClients: make(map[uuid.UUID]map[uuid.UUID]*Client),
		rooms:       make(map[uuid.UUID]map[uuid.UUID]*Client),
		unregister:  make(chan *Client),
		roomLocks:   newRoomLocks(),
		log:         zap.NewNop(),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = metrics.Discard()
	}
	return h
}

// Run запускает hub
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

// Stop останавливает hub и закрывает все соединения
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		client.close()
		if client.Conn != nil {
			client.Conn.Close()
		}
	}
}

func (h *Hub) Context() context.Context {
	return h.ctx
}

// Register регистрирует нового клиента. Синхронно: после возврата клиент может входить в комнаты.
func (h *Hub) Register(client *Client) {
	if h.ctx.Err() != nil {
		client.close()
		return
	}
	h.registerClient(client)
}

// Unregister отменяет регистрацию клиента, покидая все его комнаты
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client

	if _, ok := h.userClients[client.UserID]; !ok {
		h.userClients[client.UserID] = make(map[uuid.UUID]*Client)
	}
	h.userClients[client.UserID][client.ID] = client

	h.metrics.Connections.Inc()
	h.log.Info("client registered", zap.Stringer("client_id", client.ID), zap.Stringer("user_id", client.UserID))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unregisterUnsafe(client)
}

func (h *Hub) unregisterUnsafe(client *Client) {
	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	left := h.leaveAllUnsafe(client)

	// Удаляем из списка клиентов пользователя
	if userClients, ok := h.userClients[client.UserID]; ok {
		delete(userClients, client.ID)
		if len(userClients) == 0 {
			delete(h.userClients, client.UserID)
		}
	}

	delete(h.clients, client.ID)
	client.close()

	h.metrics.Connections.Dec()
	h.log.Info("client unregistered",
		zap.Stringer("client_id", client.ID),
		zap.Stringer("user_id", client.UserID),
		zap.Int("rooms_left", left),
	)
}

// JoinRoom добавляет клиента в комнату. Повторный вход ничего не меняет.
func (h *Hub) JoinRoom(client *Client, roomID uuid.UUID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return ErrClientClosed
	}
	if client.IsInRoom(roomID) {
		return nil
	}
	if h.maxRoomsPerClient > 0 && len(client.GetRooms()) >= h.maxRoomsPerClient {
		return ErrTooManyRooms
	}

	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[uuid.UUID]*Client)
	}
	h.rooms[roomID][client.ID] = client

	client.mu.Lock()
	client.rooms[roomID] = true
	client.mu.Unlock()

	h.metrics.Subscriptions.Inc()
	return nil
}

// LeaveRoom удаляет клиента из комнаты
func (h *Hub) LeaveRoom(client *Client, roomID uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.removeFromRoomUnsafe(client, roomID)
}

// LeaveAll удаляет клиента из всех комнат, возвращает их число
func (h *Hub) LeaveAll(client *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.leaveAllUnsafe(client)
}

func (h *Hub) leaveAllUnsafe(client *Client) int {
	n := 0
	for _, roomID := range client.GetRooms() {
		if h.removeFromRoomUnsafe(client, roomID) {
			n++
		}
	}
	return n
}

func (h *Hub) removeFromRoomUnsafe(client *Client, roomID uuid.UUID) bool {
	room, ok := h.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := room[client.ID]; !ok {
		return false
	}

	delete(room, client.ID)
	client.mu.Lock()
	delete(client.rooms, roomID)
	client.mu.Unlock()

	if len(room) == 0 {
		delete(h.rooms, roomID)
	}
	h.metrics.Subscriptions.Dec()
	return true
}

// Broadcast локальная доставка, реализует Broadcaster
func (h *Hub) Broadcast(_ context.Context, roomID uuid.UUID, data []byte) error {
	h.SendToRoom(roomID, data)
	return nil
}

// SendToRoom отправляет кадр всем подписчикам комнаты, включая отправителя.
// Клиент с переполненной очередью отключается: пропуск кадра нарушил бы порядок.
func (h *Hub) SendToRoom(roomID uuid.UUID, message []byte) {
	h.mu.RLock()
	var slow []*Client
	for _, client := range h.rooms[roomID] {
		if err := client.enqueue(message); err != nil {
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	h.metrics.Broadcasts.Inc()

	if len(slow) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range slow {
		h.dropUnsafe(client, "room broadcast")
	}
}

// Drop отключает клиента, который не успевает читать свою очередь
func (h *Hub) Drop(client *Client, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropUnsafe(client, reason)
}

func (h *Hub) dropUnsafe(client *Client, reason string) {
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	h.log.Warn("dropping slow client", zap.Stringer("client_id", client.ID), zap.String("reason", reason))
	h.metrics.DroppedClients.Inc()
	h.unregisterUnsafe(client)
}

// SendToUser отправляет кадр во все соединения пользователя
func (h *Hub) SendToUser(userID uuid.UUID, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.userClients[userID] {
		if err := client.enqueue(message); err != nil {
			h.log.Debug("send to user failed", zap.Stringer("client_id", client.ID), zap.Error(err))
		}
	}
}

// WithRoomLock выполняет fn, пока никто другой не пишет в эту комнату
func (h *Hub) WithRoomLock(roomID uuid.UUID, fn func() error) error {
	unlock := h.roomLocks.lock(roomID)
	defer unlock()
	return fn()
}

// RoomClients возвращает клиентов комнаты
func (h *Hub) RoomClients(roomID uuid.UUID) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.rooms[roomID]))
	for _, client := range h.rooms[roomID] {
		clients = append(clients, client)
	}
	return clients
}

// ClientRooms возвращает комнаты, в которых состоит клиент
func (h *Hub) ClientRooms(client *Client) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return client.GetRooms()
}

// GetRoomUsers возвращает список пользователей в комнате
func (h *Hub) GetRoomUsers(roomID uuid.UUID) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	userMap := make(map[uuid.UUID]bool)
	for _, client := range h.rooms[roomID] {
		userMap[client.UserID] = true
	}

	users := make([]uuid.UUID, 0, len(userMap))
	for userID := range userMap {
		users = append(users, userID)
	}
	return users
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
