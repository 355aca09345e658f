package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/storychat/pkg/auth"
)

const UserIDKey = "userID"

// RevocationChecker черный список токенов
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

var (
	errTokenRevoked = errors.New("token is blacklisted")
	errTokenInvalid = errors.New("invalid token")
)

// authenticate проверяет токен: черный список, подпись, срок
func authenticate(c *gin.Context, token string, jwtManager *auth.JWTManager, revoked RevocationChecker) (uuid.UUID, error) {
	isRevoked, err := revoked.IsRevoked(c.Request.Context(), token)
	if err != nil || isRevoked {
		return uuid.Nil, errTokenRevoked
	}

	claims, err := jwtManager.Verify(token)
	if err != nil {
		return uuid.Nil, errTokenInvalid
	}

	userID, err := claims.UserID()
	if err != nil {
		return uuid.Nil, errTokenInvalid
	}
	return userID, nil
}

// AuthMiddleware проверяет JWT токен из заголовка Authorization
func AuthMiddleware(jwtManager *auth.JWTManager, revoked RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractTokenFromHeader(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}

		userID, err := authenticate(c, token, jwtManager, revoked)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// OptionalAuthMiddleware без токена пропускает анонимно, с плохим токеном отказывает
func OptionalAuthMiddleware(jwtManager *auth.JWTManager, revoked RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractTokenFromHeader(c.Request)
		if errors.Is(err, auth.ErrMissingToken) {
			c.Next()
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}

		userID, err := authenticate(c, token, jwtManager, revoked)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// WSAuthMiddleware специальный middleware для WebSocket: браузер не может задать заголовок,
// поэтому токен также принимается из ?token=
func WSAuthMiddleware(jwtManager *auth.JWTManager, revoked RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractToken(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		userID, err := authenticate(c, token, jwtManager, revoked)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}
