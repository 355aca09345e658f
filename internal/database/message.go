package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/thereayou/storychat/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AppendMessage сохраняет сообщение с очередным номером в комнате.
// Повтор clientMessageID от того же отправителя возвращает уже сохраненное сообщение и ErrDuplicate.
func (d *Database) AppendMessage(ctx context.Context, roomID, senderID uuid.UUID, content, clientMessageID string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	switch {
	case content == "":
		return nil, fmt.Errorf("%w: content is empty", ErrValidation)
	case utf8.RuneCountInString(content) > d.maxMessageLength:
		return nil, fmt.Errorf("%w: content exceeds %d characters", ErrValidation, d.maxMessageLength)
	case senderID == uuid.Nil:
		return nil, fmt.Errorf("%w: sender identity is required", ErrValidation)
	case roomID == uuid.Nil:
		return nil, fmt.Errorf("%w: room is required", ErrValidation)
	}
	clientMessageID = strings.TrimSpace(clientMessageID)

	var (
		message   models.Message
		duplicate bool
	)
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sender models.User
		if err := tx.First(&sender, "id = ?", senderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: unknown sender", ErrValidation)
			}
			return err
		}

		if clientMessageID != "" {
			err := tx.Preload("User").
				Where("room_id = ? AND user_id = ? AND client_message_id = ?", roomID, senderID, clientMessageID).
				First(&message).Error
			if err == nil {
				duplicate = true
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		// UPDATE блокирует строку счетчика до конца транзакции
		res := tx.Model(&models.RoomSequence{}).
			Where("room_id = ?", roomID).
			UpdateColumn("last_sequence", gorm.Expr("last_sequence + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: room %s", ErrNotFound, roomID)
		}

		var seq models.RoomSequence
		if err := tx.First(&seq, "room_id = ?", roomID).Error; err != nil {
			return err
		}

		// created_at не убывает внутри комнаты, даже если часы сдвинулись назад
		createdAt := d.timestamp()
		if createdAt.Before(seq.LastMessageAt) {
			createdAt = seq.LastMessageAt
		}
		if err := tx.Model(&models.RoomSequence{}).
			Where("room_id = ?", roomID).
			UpdateColumn("last_message_at", createdAt).Error; err != nil {
			return err
		}

		message = models.Message{
			RoomID:          roomID,
			Sequence:        seq.LastSequence,
			UserID:          senderID,
			ClientMessageID: clientMessageID,
			Content:         content,
			CreatedAt:       createdAt,
		}
		if err := tx.Omit(clause.Associations).Create(&message).Error; err != nil {
			return err
		}
		message.User = sender
		return nil
	})
	if err != nil {
		return nil, err
	}
	if duplicate {
		return &message, ErrDuplicate
	}

	return &message, nil
}

// getMessage сообщение с отправителем по id
func (d *Database) getMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var message models.Message
	if err := d.db.WithContext(ctx).Preload("User").First(&message, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: message %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &message, nil
}

// History все сообщения комнаты по возрастанию времени создания.
// Без пагинации: на больших комнатах ответ растет неограниченно.
func (d *Database) History(ctx context.Context, roomID uuid.UUID) ([]models.Message, error) {
	return d.HistorySince(ctx, roomID, 0)
}

// HistorySince сообщения комнаты с номером больше afterSequence
func (d *Database) HistorySince(ctx context.Context, roomID uuid.UUID, afterSequence int64) ([]models.Message, error) {
	if _, err := d.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}

	var messages []models.Message
	err := d.db.WithContext(ctx).
		Where("room_id = ? AND sequence > ?", roomID, afterSequence).
		Order("created_at ASC").
		Order("sequence ASC").
		Preload("User").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	return messages, nil
}
