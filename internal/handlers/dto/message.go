package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/storychat/internal/models"
)

// SendPayload данные message_send (и тело POST /messages)
type SendPayload struct {
	Content         string `json:"content"`
	ClientMessageID string `json:"client_message_id,omitempty"`
}

// JoinPayload данные room_join
type JoinPayload struct {
	SinceSequence *int64 `json:"since_sequence,omitempty"`
}

// JoinedPayload ответ room_join. ReplayTruncated: пропуск больше, чем сервер досылает
// по сокету, клиент забирает его через GET /messages?since=N.
type JoinedPayload struct {
	LatestSequence  int64        `json:"latest_sequence"`
	Room            RoomResponse `json:"room"`
	ReplayTruncated bool         `json:"replay_truncated,omitempty"`
}

// MessageResponse одинаков для HTTP и WebSocket
type MessageResponse struct {
	ID              uuid.UUID `json:"id"`
	RoomID          uuid.UUID `json:"room_id"`
	Sequence        int64     `json:"sequence"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"created_at"`
	ClientMessageID string    `json:"client_message_id,omitempty"`
	User            UserInfo  `json:"user"`
}

type UserInfo struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

func NewMessageResponse(m *models.Message) MessageResponse {
	return MessageResponse{
		ID:              m.ID,
		RoomID:          m.RoomID,
		Sequence:        m.Sequence,
		Content:         m.Content,
		CreatedAt:       m.CreatedAt,
		ClientMessageID: m.ClientMessageID,
		User: UserInfo{
			ID:       m.User.ID,
			Username: m.User.Username,
		},
	}
}

func NewMessageResponses(messages []models.Message) []MessageResponse {
	out := make([]MessageResponse, len(messages))
	for i := range messages {
		out[i] = NewMessageResponse(&messages[i])
	}
	return out
}
