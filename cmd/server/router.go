package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/thereayou/storychat/internal/handlers"
	"github.com/thereayou/storychat/internal/middleware"
	"github.com/thereayou/storychat/pkg/auth"
)

type Handlers struct {
	Auth      *handlers.AuthHandler
	User      *handlers.UserHandler
	Room      *handlers.RoomHandler
	Message   *handlers.HTTPMessageHandler
	WebSocket *handlers.WebSocketHandler
}

type RouterDeps struct {
	Handlers   Handlers
	JWTManager *auth.JWTManager
	Blacklist  middleware.RevocationChecker
	Registry   *prometheus.Registry
	CORSOrigin string
	Log        *zap.Logger
}

func APIEndpoints(r *gin.Engine, d RouterDeps) {
	h := d.Handlers
	requireAuth := middleware.AuthMiddleware(d.JWTManager, d.Blacklist)
	optionalAuth := middleware.OptionalAuthMiddleware(d.JWTManager, d.Blacklist)

	r.Use(middleware.Recovery(d.Log), middleware.RequestLogger(d.Log), middleware.CORS(d.CORSOrigin))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))

	// Auth endpoints
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/logout", requireAuth, h.Auth.Logout)
	}

	// API endpoints
	api := r.Group("/api/v1")
	{
		api.GET("/me", requireAuth, h.User.GetMe)

		api.GET("/rooms", optionalAuth, h.Room.ListRooms)
		api.POST("/rooms", requireAuth, h.Room.CreateRoom)
		api.GET("/rooms/:id", optionalAuth, h.Room.GetRoom)
		api.POST("/rooms/:id/members", requireAuth, h.Room.AddMember)

		api.GET("/rooms/:id/messages", optionalAuth, h.Message.GetMessages)
		api.POST("/rooms/:id/messages", requireAuth, h.Message.SendMessage)
	}

	r.GET("/ws", middleware.WSAuthMiddleware(d.JWTManager, d.Blacklist), h.WebSocket.HandleWebSocket)
}
