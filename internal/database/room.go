package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/thereayou/storychat/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateRoom создает комнату вместе с членством создателя и счетчиком сообщений
func (d *Database) CreateRoom(ctx context.Context, creatorID uuid.UUID, name string, isPrivate bool, memberIDs ...uuid.UUID) (*models.Room, error) {
	if creatorID == uuid.Nil {
		return nil, fmt.Errorf("%w: creator identity is required", ErrValidation)
	}

	now := d.timestamp()
	room := &models.Room{
		Name:      strings.TrimSpace(name),
		IsPrivate: isPrivate,
		CreatedBy: creatorID,
		CreatedAt: now,
	}

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var creator models.User
		if err := tx.Select("id").First(&creator, "id = ?", creatorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: unknown creator", ErrValidation)
			}
			return err
		}

		if err := tx.Omit(clause.Associations).Create(room).Error; err != nil {
			return err
		}

		if err := tx.Create(&models.RoomSequence{RoomID: room.ID}).Error; err != nil {
			return err
		}

		members := []models.RoomMember{{RoomID: room.ID, UserID: creatorID, JoinedAt: now}}
		for _, id := range memberIDs {
			if id == uuid.Nil || id == creatorID {
				continue
			}
			members = append(members, models.RoomMember{RoomID: room.ID, UserID: id, JoinedAt: now})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error
	})
	if err != nil {
		return nil, err
	}

	return room, nil
}

func (d *Database) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	var room models.Room
	if err := d.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: room %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &room, nil
}

// ListRooms возвращает комнаты, новые первыми. Приватные видны только участникам.
func (d *Database) ListRooms(ctx context.Context, viewerID *uuid.UUID) ([]models.Room, error) {
	var rooms []models.Room

	query := d.db.WithContext(ctx).Model(&models.Room{})
	if viewerID != nil {
		members := d.db.Model(&models.RoomMember{}).Select("room_id").Where("user_id = ?", *viewerID)
		query = query.Where("is_private = ? OR id IN (?)", false, members)
	} else {
		query = query.Where("is_private = ?", false)
	}

	err := query.Order("created_at DESC").Find(&rooms).Error
	return rooms, err
}

func (d *Database) IsRoomMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&models.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	return count > 0, err
}

// CanAccessRoom публичные комнаты доступны всем, приватные только участникам
func (d *Database) CanAccessRoom(ctx context.Context, room *models.Room, userID *uuid.UUID) (bool, error) {
	if !room.IsPrivate {
		return true, nil
	}
	if userID == nil {
		return false, nil
	}
	return d.IsRoomMember(ctx, room.ID, *userID)
}

func (d *Database) AddRoomMember(ctx context.Context, roomID, userID uuid.UUID) error {
	if _, err := d.GetRoom(ctx, roomID); err != nil {
		return err
	}
	member := models.RoomMember{RoomID: roomID, UserID: userID, JoinedAt: d.timestamp()}
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error
}

// LatestSequence номер последнего сообщения в комнате (0, если сообщений нет)
func (d *Database) LatestSequence(ctx context.Context, roomID uuid.UUID) (int64, error) {
	var seq models.RoomSequence
	if err := d.db.WithContext(ctx).First(&seq, "room_id = ?", roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: room %s", ErrNotFound, roomID)
		}
		return 0, err
	}
	return seq.LastSequence, nil
}
