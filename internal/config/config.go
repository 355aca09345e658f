package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	GinMode     string `env:"GIN_MODE" envDefault:"release"`
	DatabaseURL string `env:"DATABASE_URL,notEmpty"`
	CORSOrigin  string `env:"CORS_ORIGIN" envDefault:"*"`

	RedisURL   string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisRelay bool   `env:"REDIS_RELAY" envDefault:"false"`

	JWTSecret string        `env:"JWT_SECRET,notEmpty"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Chat ChatConfig
}

// ChatConfig ограничения realtime-чата
type ChatConfig struct {
	// 0 = без ограничения
	MaxRoomsPerConnection int     `env:"CHAT_MAX_ROOMS_PER_CONN" envDefault:"0"`
	SendRPS               float64 `env:"CHAT_SEND_RPS" envDefault:"5"`
	SendBurst             int     `env:"CHAT_SEND_BURST" envDefault:"10"`
	MaxMessageLength      int     `env:"CHAT_MAX_MESSAGE_LENGTH" envDefault:"4000"`
}

// Load читает .env.local/.env (если есть) и переменные окружения
func Load() (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	if c.JWTTTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	if c.Chat.MaxRoomsPerConnection < 0 {
		return errors.New("CHAT_MAX_ROOMS_PER_CONN must not be negative")
	}
	if c.Chat.SendRPS <= 0 || c.Chat.SendBurst <= 0 {
		return errors.New("CHAT_SEND_RPS and CHAT_SEND_BURST must be positive")
	}
	if c.Chat.MaxMessageLength <= 0 {
		return errors.New("CHAT_MAX_MESSAGE_LENGTH must be positive")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat)
	}
	return nil
}
