package dto

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// LoginRequest вход по email или username
type LoginRequest struct {
	Login    string `json:"emailOrUsername" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	UserID         string `json:"uid"`
	Username       string `json:"username"`
	Token          string `json:"token"`
	TokenExpiresAt string `json:"tokenExpiresAt"`
}
