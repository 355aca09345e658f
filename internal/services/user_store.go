package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/storychat/internal/models"
)

type UserStore interface {
	SaveUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByLogin(ctx context.Context, login string) (*models.User, error)
	UpdateLastSeen(ctx context.Context, id uuid.UUID) error
}

// TokenBlacklist отозванные токены (реализация: Redis)
type TokenBlacklist interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
	Revoke(ctx context.Context, token string, until time.Time) error
}
