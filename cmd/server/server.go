package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/thereayou/storychat/internal/config"
	"github.com/thereayou/storychat/internal/database"
	"github.com/thereayou/storychat/internal/handlers"
	"github.com/thereayou/storychat/internal/metrics"
	"github.com/thereayou/storychat/internal/services"
	"github.com/thereayou/storychat/internal/websocket"
	"github.com/thereayou/storychat/pkg/auth"
)

type Server struct {
	Config     *config.Config
	Router     *gin.Engine
	DB         *database.Database
	Redis      *redis.Client
	Hub        *websocket.Hub
	Relay      *websocket.RedisRelay
	JWTManager *auth.JWTManager
	Registry   *prometheus.Registry
	Log        *zap.Logger
}

// NewServer собирает зависимости. Пустой REDIS_URL: черный список в памяти и без relay.
func NewServer(cfg *config.Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connect failed: %w", err)
	}
	db.SetMaxMessageLength(cfg.Chat.MaxMessageLength)

	var (
		rdb       *redis.Client
		blacklist services.TokenBlacklist
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			db.Close()
			rdb.Close()
			return nil, fmt.Errorf("redis connect failed: %w", err)
		}
		blacklist = services.NewRedisBlacklist(rdb)
	} else {
		log.Warn("REDIS_URL is empty, using in-memory token blacklist")
		blacklist = services.NewMemoryBlacklist()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	hub := websocket.NewHub(
		websocket.WithLogger(log.Named("hub")),
		websocket.WithMetrics(m),
		websocket.WithMaxRoomsPerClient(cfg.Chat.MaxRoomsPerConnection),
	)

	var (
		relay       *websocket.RedisRelay
		broadcaster websocket.Broadcaster = hub
	)
	if cfg.RedisRelay {
		if rdb == nil {
			db.Close()
			return nil, errors.New("REDIS_RELAY requires REDIS_URL")
		}
		relay = websocket.NewRedisRelay(rdb, hub, log.Named("relay"))
		broadcaster = relay
	}

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)

	chat := services.NewChatService(db, hub, broadcaster, m, log.Named("chat"))
	messageH := handlers.NewMessageHandler(db, chat, hub, m, log.Named("protocol"))

	h := Handlers{
		Auth:      handlers.NewAuthHandler(db, jwtMgr, blacklist),
		User:      handlers.NewUserHandler(db),
		Room:      handlers.NewRoomHandler(db, db, hub),
		Message:   handlers.NewHTTPMessageHandler(db, chat),
		WebSocket: handlers.NewWebSocketHandler(hub, messageH, db, cfg.Chat.SendRPS, cfg.Chat.SendBurst, cfg.CORSOrigin, log.Named("ws")),
	}

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	APIEndpoints(router, RouterDeps{
		Handlers:   h,
		JWTManager: jwtMgr,
		Blacklist:  blacklist,
		Registry:   reg,
		CORSOrigin: cfg.CORSOrigin,
		Log:        log.Named("http"),
	})

	return &Server{
		Config:     cfg,
		Router:     router,
		DB:         db,
		Redis:      rdb,
		Hub:        hub,
		Relay:      relay,
		JWTManager: jwtMgr,
		Registry:   reg,
		Log:        log,
	}, nil
}

// Start запускает hub и relay (если включен) в фоне
func (s *Server) Start(ctx context.Context) error {
	go s.Hub.Run()

	if s.Relay == nil {
		return nil
	}

	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Relay.Run(ctx, ready)
	}()

	select {
	case <-ready:
		go func() {
			if err := <-errCh; err != nil {
				s.Log.Error("relay stopped", zap.Error(err))
			}
		}()
		return nil
	case err := <-errCh:
		return err
	}
}

// Run обслуживает HTTP до отмены ctx, затем корректно останавливается
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + s.Config.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Log.Info("server starting", zap.String("port", s.Config.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Log.Info("server shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close останавливает hub и закрывает соединения с хранилищами
func (s *Server) Close() {
	s.Hub.Stop()
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.Log.Warn("redis close", zap.Error(err))
		}
	}
	if err := s.DB.Close(); err != nil {
		s.Log.Warn("database close", zap.Error(err))
	}
}
