package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/thereayou/storychat/internal/database"
	"github.com/thereayou/storychat/internal/handlers/dto"
	"github.com/thereayou/storychat/internal/metrics"
	"github.com/thereayou/storychat/internal/models"
	"github.com/thereayou/storychat/internal/websocket"
	"go.uber.org/zap"
)

// ErrNotDelivered сообщение сохранено, но рассылка в комнату не удалась.
// Send возвращает его вместе с сохраненным сообщением.
var ErrNotDelivered = errors.New("message stored but not broadcast")

// ChatService общий путь отправки для WebSocket и HTTP: сохранить, затем разослать.
type ChatService struct {
	store       ChatStore
	hub         *websocket.Hub
	broadcaster websocket.Broadcaster
	metrics     *metrics.Metrics
	log         *zap.Logger
}

// NewChatService; broadcaster nil значит локальная рассылка через hub
func NewChatService(store ChatStore, hub *websocket.Hub, broadcaster websocket.Broadcaster, m *metrics.Metrics, log *zap.Logger) *ChatService {
	if broadcaster == nil {
		broadcaster = hub
	}
	if m == nil {
		m = metrics.Discard()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatService{store: store, hub: hub, broadcaster: broadcaster, metrics: m, log: log}
}

// Send сохраняет сообщение и рассылает message_new всем подписчикам комнаты.
// Для повторного clientMessageID возвращает сохраненное сообщение и database.ErrDuplicate без рассылки.
// Если рассылка не удалась, возвращает сообщение и ErrNotDelivered: отправитель должен узнать об этом явно.
func (s *ChatService) Send(ctx context.Context, roomID, senderID uuid.UUID, content, clientMessageID string) (*models.Message, error) {
	var (
		message      *models.Message
		broadcastErr error
	)

	err := s.hub.WithRoomLock(roomID, func() error {
		var err error
		message, err = s.store.AppendMessage(ctx, roomID, senderID, content, clientMessageID)
		if err != nil {
			return err
		}
		s.metrics.MessagesStored.Inc()

		frame, err := EncodeMessageNew(message)
		if err != nil {
			return err
		}

		// сообщение уже сохранено; ошибка рассылки не отменяет его
		if err := s.broadcaster.Broadcast(ctx, roomID, frame); err != nil {
			s.log.Error("broadcast failed",
				zap.Stringer("room_id", roomID),
				zap.Stringer("message_id", message.ID),
				zap.Error(err),
			)
			broadcastErr = err
		}
		return nil
	})
	if errors.Is(err, database.ErrDuplicate) {
		return message, err
	}
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	if broadcastErr != nil {
		return message, fmt.Errorf("%w: %v", ErrNotDelivered, broadcastErr)
	}
	return message, nil
}

func EncodeMessageNew(message *models.Message) ([]byte, error) {
	return websocket.Encode(websocket.TypeMessageNew, "", &message.RoomID, &message.UserID, dto.NewMessageResponse(message))
}
