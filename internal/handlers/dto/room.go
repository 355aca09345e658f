package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/storychat/internal/models"
)

type CreateRoomRequest struct {
	Name      string      `json:"name" binding:"max=100"`
	IsPrivate bool        `json:"is_private"`
	MemberIDs []uuid.UUID `json:"member_ids"`
}

type AddMemberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

type RoomResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	IsPrivate   bool      `json:"is_private"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	OnlineCount int       `json:"online_count"`
}

func NewRoomResponse(r *models.Room) RoomResponse {
	return RoomResponse{
		ID:          r.ID,
		Name:        r.Name,
		DisplayName: r.DisplayName(),
		IsPrivate:   r.IsPrivate,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
	}
}
