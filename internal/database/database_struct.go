package database

import (
	"time"

	"gorm.io/gorm"
)

const defaultMaxMessageLength = 4000

type Database struct {
	db               *gorm.DB
	maxMessageLength int
	now              func() time.Time
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{
		db:               db,
		maxMessageLength: defaultMaxMessageLength,
		now:              time.Now,
	}
}

// SetMaxMessageLength ограничивает длину сообщения в рунах
func (d *Database) SetMaxMessageLength(n int) {
	if n > 0 {
		d.maxMessageLength = n
	}
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// timestamp с точностью до микросекунд, как хранит postgres
func (d *Database) timestamp() time.Time {
	return d.now().UTC().Truncate(time.Microsecond)
}
