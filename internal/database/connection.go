package database

import (
	"errors"
	"strings"

	"github.com/thereayou/storychat/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite:"

// Open подключается к postgres или sqlite (DSN вида "sqlite:<path>") и мигрирует схему
func Open(dsn string) (*Database, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var (
		db  *gorm.DB
		err error
	)
	if path, ok := strings.CutPrefix(dsn, sqlitePrefix); ok {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
		db, err = gorm.Open(sqlite.Open(path), cfg)
		if err != nil {
			return nil, err
		}
		// sqlite допускает одного писателя; для ":memory:" это еще и одна база
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	} else {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, err
		}
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return NewDatabase(db), nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.RoomMember{},
		&models.RoomSequence{},
		&models.Message{},
	)
}
