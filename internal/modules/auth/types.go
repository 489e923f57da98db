package auth

import (
	"time"

	"github.com/oa-space/admin-core/internal/models"
)

type LoginDTO struct {
	Mail     string `json:"mail" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type VerifyOtpDTO struct {
	Mail    string `json:"mail" binding:"required,email"`
	Code    string `json:"code" binding:"required,len=6"`
	Purpose string `json:"purpose"`
}

type RegisterDTO struct {
	Username          string `json:"username" binding:"required,min=3"`
	Name              string `json:"name"`
	Mail              string `json:"mail" binding:"required,email"`
	Password          string `json:"password" binding:"required,min=6"`
	AgreementAccepted bool   `json:"agreement_accepted"`
}

type ForceLogoutDTO struct {
	UserID string `json:"user_id" binding:"required"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type sessionResponse struct {
	UserID       string    `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
	ConnectionID string    `json:"connection_id,omitempty"`
	LastActiveAt time.Time `json:"last_active_at"`
}

func toSessionResponse(s *models.UserSession) *sessionResponse {
	return &sessionResponse{
		UserID:       s.UserID,
		ExpiresAt:    s.ExpiresAt,
		ConnectionID: s.ConnectionID,
		LastActiveAt: s.LastActiveAt,
	}
}
