package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UnnamedRoom показывается для комнат без имени
const UnnamedRoom = "Unnamed Room"

type Room struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string
	IsPrivate bool      `gorm:"not null;default:false"`
	CreatedBy uuid.UUID `gorm:"type:uuid;not null;index"`
	CreatedAt time.Time `gorm:"index"`

	// Связи
	Creator User         `gorm:"foreignKey:CreatedBy"`
	Members []RoomMember `gorm:"foreignKey:RoomID"`
}

func (r *Room) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (r *Room) DisplayName() string {
	if r.Name == "" {
		return UnnamedRoom
	}
	return r.Name
}

type RoomMember struct {
	RoomID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	JoinedAt time.Time
}

// RoomSequence хранит последний выданный номер сообщения в комнате
type RoomSequence struct {
	RoomID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	LastSequence  int64     `gorm:"not null;default:0"`
	LastMessageAt time.Time
}
