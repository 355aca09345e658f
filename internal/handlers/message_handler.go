package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/thereayou/storychat/internal/database"
	"github.com/thereayou/storychat/internal/handlers/dto"
	"github.com/thereayou/storychat/internal/metrics"
	"github.com/thereayou/storychat/internal/models"
	"github.com/thereayou/storychat/internal/services"
	"github.com/thereayou/storychat/internal/websocket"
	"go.uber.org/zap"
)

// maxReplay сколько пропущенных сообщений досылается по сокету при room_join.
// Должно с запасом помещаться в очередь соединения.
const maxReplay = 100

// MessageHandler протокол чата поверх одного соединения
type MessageHandler struct {
	store   services.ChatStore
	chat    *services.ChatService
	hub     *websocket.Hub
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewMessageHandler(store services.ChatStore, chat *services.ChatService, hub *websocket.Hub, m *metrics.Metrics, log *zap.Logger) *MessageHandler {
	if m == nil {
		m = metrics.Discard()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MessageHandler{store: store, chat: chat, hub: hub, metrics: m, log: log}
}

func (h *MessageHandler) HandleMessage(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	var err error
	switch msg.Type {
	case websocket.TypeRoomJoin:
		err = h.handleJoin(ctx, client, msg)

	case websocket.TypeRoomLeave:
		err = h.handleLeave(client, msg)

	case websocket.TypeMessageSend:
		err = h.handleSend(ctx, client, msg)
		if err != nil {
			h.metrics.RejectedSends.WithLabelValues(websocket.CodeOf(err)).Inc()
		}

	default:
		err = websocket.NewError(websocket.CodeInvalidMessage, "unknown message type "+string(msg.Type), websocket.ErrInvalidMessage)
	}

	if err != nil && websocket.CodeOf(err) == websocket.CodeInternal {
		h.log.Error("message handling failed",
			zap.Stringer("client_id", client.ID),
			zap.String("type", string(msg.Type)),
			zap.Error(err),
		)
	}
	return err
}

// handleJoin подписывает соединение на комнату до ответа с latest_sequence,
// так что все сообщения с большим номером придут вживую.
func (h *MessageHandler) handleJoin(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	if msg.RoomID == nil {
		return websocket.ErrInvalidMessage
	}

	var payload dto.JoinPayload
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return websocket.ErrInvalidMessage
		}
	}

	room, err := h.store.GetRoom(ctx, *msg.RoomID)
	if err != nil {
		return protocolError(err)
	}

	ok, err := h.store.CanAccessRoom(ctx, room, &client.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return errForbidden
	}

	// под блокировкой комнаты новые сообщения не рассылаются,
	// поэтому latest_sequence точен и догонка идет до живых сообщений
	return h.hub.WithRoomLock(room.ID, func() error {
		if err := h.hub.JoinRoom(client, room.ID); err != nil {
			return err
		}

		latest, err := h.store.LatestSequence(ctx, room.ID)
		if err != nil {
			h.hub.LeaveRoom(client, room.ID)
			return protocolError(err)
		}

		replay := payload.SinceSequence != nil && *payload.SinceSequence < latest
		truncated := replay && latest-*payload.SinceSequence > maxReplay

		var missed []models.Message
		if replay && !truncated {
			// номера в комнате идут подряд, так что строк не больше maxReplay
			missed, err = h.store.HistorySince(ctx, room.ID, *payload.SinceSequence)
			if err != nil {
				h.hub.LeaveRoom(client, room.ID)
				return protocolError(err)
			}
		}

		resp := dto.NewRoomResponse(room)
		resp.OnlineCount = len(h.hub.GetRoomUsers(room.ID))
		if err := client.SendMessage(websocket.TypeRoomJoined, msg.RequestID, &room.ID, dto.JoinedPayload{
			LatestSequence:  latest,
			Room:            resp,
			ReplayTruncated: truncated,
		}); err != nil {
			return h.dropIfFull(client, err)
		}

		return h.replay(client, missed)
	})
}

// replay досылает пропущенные сообщения только этому соединению
func (h *MessageHandler) replay(client *websocket.Client, missed []models.Message) error {
	for i := range missed {
		frame, err := services.EncodeMessageNew(&missed[i])
		if err != nil {
			return err
		}
		if err := client.SendRaw(frame); err != nil {
			return h.dropIfFull(client, err)
		}
	}
	return nil
}

// dropIfFull: кадр не влез в очередь, и без него у клиента будет дыра.
// Соединение закрывается, клиент увидит обрыв и переподключится.
func (h *MessageHandler) dropIfFull(client *websocket.Client, err error) error {
	if errors.Is(err, websocket.ErrClientQueueFull) {
		h.hub.Drop(client, "replay")
	}
	return err
}

func (h *MessageHandler) handleLeave(client *websocket.Client, msg *websocket.Message) error {
	if msg.RoomID == nil {
		return websocket.ErrInvalidMessage
	}

	h.hub.LeaveRoom(client, *msg.RoomID)
	return client.SendMessage(websocket.TypeRoomLeft, msg.RequestID, msg.RoomID, nil)
}

// handleSend подтверждения нет: отправитель получает свое сообщение в общей рассылке
func (h *MessageHandler) handleSend(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	if msg.RoomID == nil {
		return websocket.ErrInvalidMessage
	}
	if !client.IsInRoom(*msg.RoomID) {
		return websocket.ErrUserNotInRoom
	}

	var payload dto.SendPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return websocket.ErrInvalidMessage
	}

	if !client.Allow() {
		return websocket.ErrRateLimited
	}

	message, err := h.chat.Send(ctx, *msg.RoomID, client.UserID, payload.Content, payload.ClientMessageID)
	if errors.Is(err, database.ErrDuplicate) || errors.Is(err, services.ErrNotDelivered) {
		// повтор клиента или сбой рассылки: отправитель получает сохраненную копию,
		// в комнату она не уходит
		frame, err := services.EncodeMessageNew(message)
		if err != nil {
			return err
		}
		return client.SendRaw(frame)
	}
	return protocolError(err)
}
