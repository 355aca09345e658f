package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/thereayou/storychat/internal/models"
)

// ChatStore постоянное хранилище комнат и сообщений (реализация: database.Database)
type ChatStore interface {
	CreateRoom(ctx context.Context, creatorID uuid.UUID, name string, isPrivate bool, memberIDs ...uuid.UUID) (*models.Room, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	ListRooms(ctx context.Context, viewerID *uuid.UUID) ([]models.Room, error)
	CanAccessRoom(ctx context.Context, room *models.Room, userID *uuid.UUID) (bool, error)
	AddRoomMember(ctx context.Context, roomID, userID uuid.UUID) error
	LatestSequence(ctx context.Context, roomID uuid.UUID) (int64, error)

	AppendMessage(ctx context.Context, roomID, senderID uuid.UUID, content, clientMessageID string) (*models.Message, error)
	History(ctx context.Context, roomID uuid.UUID) ([]models.Message, error)
	HistorySince(ctx context.Context, roomID uuid.UUID, afterSequence int64) ([]models.Message, error)
}
