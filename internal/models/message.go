package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Message struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoomID          uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_room_sequence,priority:1;index:idx_room_client_msg,priority:1"`
	Sequence        int64     `gorm:"not null;uniqueIndex:idx_room_sequence,priority:2"`
	UserID          uuid.UUID `gorm:"type:uuid;not null;index:idx_room_client_msg,priority:2"`
	ClientMessageID string    `gorm:"index:idx_room_client_msg,priority:3"`
	Content         string    `gorm:"not null"`
	CreatedAt       time.Time

	// Связи
	User User `gorm:"foreignKey:UserID"`
	Room Room `gorm:"foreignKey:RoomID"`
}

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
