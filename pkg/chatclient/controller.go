// Package chatclient клиент чата: одно WebSocket соединение на сессию,
// активная комната и локальный список сообщений, согласованный с сервером.
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	eventQueueSize = 256
)

type Config struct {
	// BaseURL адрес сервера, например http://localhost:8080
	BaseURL string
	Token   string

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *zap.Logger
}

type reply struct {
	frame frame
	err   error
}

// joinState сообщения комнаты, пришедшие пока грузится история
type joinState struct {
	roomID uuid.UUID
	buffer []Message
}

type Controller struct {
	cfg Config
	log *zap.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	conn     *websocket.Conn
	gen      int
	rooms    []Room
	active   *uuid.UUID
	messages []Message
	seen     map[uuid.UUID]bool
	lastSeq  int64
	joining  *joinState
	pending  map[string]chan reply
	sends    map[string]chan Message
	closed   bool

	events chan Event
}

// Dial открывает соединение сессии и один раз загружает список комнат
func Dial(ctx context.Context, cfg Config) (*Controller, error) {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	c := &Controller{
		cfg:     cfg,
		log:     cfg.Logger,
		seen:    make(map[uuid.UUID]bool),
		pending: make(map[string]chan reply),
		sends:   make(map[string]chan Message),
		events:  make(chan Event, eventQueueSize),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	rooms, err := c.fetchRooms(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.mu.Lock()
	c.rooms = rooms
	c.mu.Unlock()

	return c, nil
}

func (c *Controller) connect(ctx context.Context) error {
	u, err := wsURL(c.cfg.BaseURL, c.cfg.Token)
	if err != nil {
		return err
	}

	conn, _, err := c.cfg.Dialer.DialContext(ctx, u, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.readLoop(conn, gen)
	return nil
}

func (c *Controller) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(gen, err)
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn("bad frame from server", zap.Error(err))
			continue
		}
		c.dispatch(f)
	}
}

func (c *Controller) handleDisconnect(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.failPendingLocked()
	c.mu.Unlock()

	c.log.Debug("connection lost", zap.Error(err))
	c.emit(Event{Type: EventDisconnected, Err: err})
}

func (c *Controller) failPendingLocked() {
	for id, ch := range c.pending {
		ch <- reply{err: ErrDisconnected}
		delete(c.pending, id)
	}
}

func (c *Controller) dispatch(f frame) {
	switch f.Type {
	case typeMessageNew:
		var m Message
		if err := json.Unmarshal(f.Data, &m); err != nil {
			c.log.Warn("bad message_new payload", zap.Error(err))
			return
		}
		c.onMessage(m)

	case typeRoomAdded:
		var r Room
		if err := json.Unmarshal(f.Data, &r); err != nil {
			c.log.Warn("bad room_added payload", zap.Error(err))
			return
		}
		c.onRoomAdded(r)

	case typePing:
		if err := c.writeFrame(frame{Type: typePong}); err != nil {
			c.log.Debug("pong failed", zap.Error(err))
		}

	case typeRoomJoined, typeRoomLeft, typeError:
		c.mu.Lock()
		ch, ok := c.pending[f.RequestID]
		if ok {
			delete(c.pending, f.RequestID)
		}
		c.mu.Unlock()

		if ok {
			ch <- reply{frame: f}
			return
		}
		if f.Type == typeError {
			c.emit(Event{Type: EventError, Err: decodeServerError(f)})
		}
	}
}

func (c *Controller) onRoomAdded(r Room) {
	c.mu.Lock()
	for _, known := range c.rooms {
		if known.ID == r.ID {
			c.mu.Unlock()
			return
		}
	}
	c.rooms = append([]Room{r}, c.rooms...)
	c.mu.Unlock()

	c.emit(Event{Type: EventRoomAdded, RoomID: r.ID})
}

// onMessage: эхо своих отправок, буфер на время выбора комнаты, иначе дописываем в конец
func (c *Controller) onMessage(m Message) {
	c.mu.Lock()
	if m.ClientMessageID != "" {
		if ch, ok := c.sends[m.ClientMessageID]; ok {
			ch <- m
			delete(c.sends, m.ClientMessageID)
		}
	}

	if c.joining != nil && c.joining.roomID == m.RoomID {
		c.joining.buffer = append(c.joining.buffer, m)
		c.mu.Unlock()
		return
	}

	appended := false
	if c.active != nil && *c.active == m.RoomID && !c.seen[m.ID] {
		c.messages = append(c.messages, m)
		c.seen[m.ID] = true
		if m.Sequence > c.lastSeq {
			c.lastSeq = m.Sequence
		}
		appended = true
	}
	c.mu.Unlock()

	if appended {
		c.emit(Event{Type: EventMessage, RoomID: m.RoomID, Message: &m})
	}
}

// emit не блокирует чтение: при переполненной очереди событие теряется,
// актуальное состояние всегда доступно через Messages()
func (c *Controller) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.log.Debug("event queue full, event dropped", zap.Int("type", int(ev.Type)))
	}
}

func (c *Controller) writeFrame(f frame) error {
	f.Timestamp = time.Now().UTC()
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrDisconnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Controller) addPending(requestID string) (chan reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	ch := make(chan reply, 1)
	c.pending[requestID] = ch
	return ch, nil
}

func (c *Controller) removePending(requestID string) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}

// request отправляет кадр и ждет ответ с тем же request_id
func (c *Controller) request(ctx context.Context, f frame) (frame, error) {
	f.RequestID = uuid.NewString()
	ch, err := c.addPending(f.RequestID)
	if err != nil {
		return frame{}, err
	}

	if err := c.writeFrame(f); err != nil {
		c.removePending(f.RequestID)
		return frame{}, err
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return frame{}, r.err
		}
		if r.frame.Type == typeError {
			return frame{}, decodeServerError(r.frame)
		}
		return r.frame, nil
	case <-ctx.Done():
		c.removePending(f.RequestID)
		return frame{}, ctx.Err()
	}
}

// SelectRoom покидает прежнюю комнату, входит в новую и заменяет список сообщений
// историей, склеенной с сообщениями, пришедшими во время загрузки.
func (c *Controller) SelectRoom(ctx context.Context, roomID uuid.UUID) error {
	c.mu.Lock()
	prev := c.active
	c.joining = &joinState{roomID: roomID}
	c.mu.Unlock()

	fail := func(err error) error {
		c.mu.Lock()
		if c.joining != nil && c.joining.roomID == roomID {
			c.joining = nil
		}
		c.mu.Unlock()
		return err
	}

	if prev != nil && *prev != roomID {
		if _, err := c.request(ctx, frame{Type: typeRoomLeave, RoomID: prev}); err != nil {
			return fail(err)
		}
		c.mu.Lock()
		c.active = nil
		c.messages = nil
		c.seen = make(map[uuid.UUID]bool)
		c.lastSeq = 0
		c.mu.Unlock()
	}

	if _, err := c.request(ctx, frame{Type: typeRoomJoin, RoomID: &roomID}); err != nil {
		return fail(err)
	}

	history, err := c.fetchHistory(ctx, roomID, 0)
	if err != nil {
		if _, leaveErr := c.request(ctx, frame{Type: typeRoomLeave, RoomID: &roomID}); leaveErr != nil {
			c.log.Debug("leave after failed history", zap.Error(leaveErr))
		}
		return fail(err)
	}

	c.mu.Lock()
	var buffered []Message
	if c.joining != nil && c.joining.roomID == roomID {
		buffered = c.joining.buffer
	}
	c.messages = splice(history, buffered)
	c.seen = make(map[uuid.UUID]bool, len(c.messages))
	c.lastSeq = 0
	for _, m := range c.messages {
		c.seen[m.ID] = true
		if m.Sequence > c.lastSeq {
			c.lastSeq = m.Sequence
		}
	}
	active := roomID
	c.active = &active
	c.joining = nil
	c.mu.Unlock()

	c.emit(Event{Type: EventRoomSelected, RoomID: roomID})
	return nil
}

// SendMessage без оптимистичного показа: возвращает сообщение, когда сервер разослал его
// обратно, либо ошибку из кадра error.
func (c *Controller) SendMessage(ctx context.Context, content string) (*Message, error) {
	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return nil, ErrNoActiveRoom
	}
	roomID := *c.active
	clientMessageID := uuid.NewString()
	echo := make(chan Message, 1)
	c.sends[clientMessageID] = echo
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.sends, clientMessageID)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(sendData{Content: content, ClientMessageID: clientMessageID})
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	ch, err := c.addPending(requestID)
	if err != nil {
		return nil, err
	}
	defer c.removePending(requestID)

	if err := c.writeFrame(frame{Type: typeSend, RequestID: requestID, RoomID: &roomID, Data: data}); err != nil {
		return nil, err
	}

	select {
	case m := <-echo:
		return &m, nil
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return nil, decodeServerError(r.frame)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resume после обрыва: новое соединение и повторный вход в активную комнату
// с since_sequence, пропущенные сообщения дописываются в конец. Большой пропуск
// сервер по сокету не досылает, тогда он забирается через HTTP.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	old := c.conn
	c.mu.Unlock()

	if err := c.connect(ctx); err != nil {
		return err
	}
	if old != nil {
		old.Close()
	}

	c.mu.Lock()
	var active *uuid.UUID
	if c.active != nil {
		id := *c.active
		active = &id
	}
	since := c.lastSeq
	c.mu.Unlock()

	if active == nil {
		return nil
	}

	data, err := json.Marshal(joinData{SinceSequence: &since})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.joining = &joinState{roomID: *active}
	c.mu.Unlock()

	var gap []Message
	reply, err := c.request(ctx, frame{Type: typeRoomJoin, RoomID: active, Data: data})
	if err == nil {
		var joined joinedData
		if err = json.Unmarshal(reply.Data, &joined); err == nil && joined.ReplayTruncated {
			gap, err = c.fetchHistory(ctx, *active, since)
		}
		if err != nil {
			// подписка уже есть, а пропуск не получен: живые сообщения дали бы дыру,
			// поэтому соединение закрывается и Resume нужно повторить
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			conn.Close()
		}
	}

	c.mu.Lock()
	var buffered []Message
	if c.joining != nil && c.joining.roomID == *active {
		buffered = c.joining.buffer
		c.joining = nil
	}
	if err != nil {
		c.mu.Unlock()
		return err
	}

	var appended []Message
	if c.active != nil && *c.active == *active {
		for _, m := range splice(gap, buffered) {
			if c.seen[m.ID] {
				continue
			}
			c.messages = append(c.messages, m)
			c.seen[m.ID] = true
			if m.Sequence > c.lastSeq {
				c.lastSeq = m.Sequence
			}
			appended = append(appended, m)
		}
	}
	c.mu.Unlock()

	for i := range appended {
		c.emit(Event{Type: EventMessage, RoomID: *active, Message: &appended[i]})
	}
	return nil
}

func (c *Controller) Rooms() []Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Room(nil), c.rooms...)
}

func (c *Controller) ActiveRoom() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return uuid.Nil, false
	}
	return *c.active, true
}

// Messages снимок сообщений активной комнаты
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

func (c *Controller) LastSequence() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeq
}

// Events закрывается после Close
func (c *Controller) Events() <-chan Event {
	return c.events
}

func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.failPendingLocked()
	close(c.events)
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}

func decodeServerError(f frame) error {
	var e ServerError
	if err := json.Unmarshal(f.Data, &e); err != nil || e.Code == "" {
		return &ServerError{Code: "UNKNOWN", Message: "malformed error frame"}
	}
	return &e
}

// splice история + буфер: без повторов по id, по возрастанию номера
func splice(history, buffered []Message) []Message {
	seen := make(map[uuid.UUID]bool, len(history)+len(buffered))
	out := make([]Message, 0, len(history)+len(buffered))
	for _, list := range [][]Message{history, buffered} {
		for _, m := range list {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// IsCode проверяет код ошибки сервера
func IsCode(err error, code string) bool {
	var se *ServerError
	return errors.As(err, &se) && se.Code == code
}
