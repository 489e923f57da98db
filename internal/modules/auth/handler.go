package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/oa-space/admin-core/internal/middleware"
	"github.com/oa-space/admin-core/internal/models"
	"github.com/oa-space/admin-core/internal/modules/auth/otp"
	"github.com/oa-space/admin-core/internal/modules/auth/session"
	"github.com/oa-space/admin-core/internal/pkg/response"
)

// ForceLogoutPusher terminates a user's session everywhere, pushing the
// notice over the gateway when the client is connected.
type ForceLogoutPusher interface {
	ForceLogout(ctx context.Context, userID string) error
}

type Handler struct {
	svc           *Service
	hub           ForceLogoutPusher
	allowRegister bool
}

func NewHandler(svc *Service, hub ForceLogoutPusher, allowRegister bool) *Handler {
	return &Handler{svc: svc, hub: hub, allowRegister: allowRegister}
}

// RegisterRoutes mounts the auth endpoints. authMW guards the session-bound
// routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/auth")

	g.POST("/login", h.login)
	g.POST("/verify-otp", h.verifyOtp)
	if h.allowRegister {
		g.POST("/register", h.register)
	}

	a := g.Group("", authMW)
	a.POST("/logout", h.logout)
	a.GET("/session", h.session)
	a.POST("/force-logout", h.forceLogout)
}

func (h *Handler) login(c *gin.Context) {
	var dto LoginDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	err := h.svc.Login(c.Request.Context(), dto.Mail, dto.Password, c.ClientIP())
	switch {
	case err == nil:
		response.OK(c, gin.H{"message": "验证码已发送，请查收邮件"})
	case errors.Is(err, ErrThrottled):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		response.UnauthorizedMsg(c, err.Error())
	case errors.Is(err, otp.ErrCooldown):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

func (h *Handler) verifyOtp(c *gin.Context) {
	var dto VerifyOtpDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	purpose := models.OtpPurpose(dto.Purpose)
	if purpose == "" {
		purpose = models.OtpPurposeLogin
	}
	if purpose != models.OtpPurposeLogin && purpose != models.OtpPurposePasswordReset {
		response.BadRequest(c, "未知的验证码用途")
		return
	}

	signed, err := h.svc.VerifyOtp(c.Request.Context(), dto.Mail, dto.Code, c.ClientIP(), purpose)
	if err != nil {
		var mismatch *otp.MismatchError
		switch {
		case errors.As(err, &mismatch):
			response.BadRequest(c, fmt.Sprintf("验证码错误，还可以再试 %d 次", mismatch.Remaining))
		case errors.Is(err, otp.ErrNotFound), errors.Is(err, otp.ErrExpired),
			errors.Is(err, otp.ErrLocked):
			response.BadRequest(c, err.Error())
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.OK(c, tokenResponse{Token: signed})
}

func (h *Handler) register(c *gin.Context) {
	var dto RegisterDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := h.svc.Register(c.Request.Context(), &dto)
	if err != nil {
		if errors.Is(err, ErrRegistrationClosed) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Created(c, user)
}

func (h *Handler) logout(c *gin.Context) {
	err := h.svc.Logout(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) session(c *gin.Context) {
	sess, err := h.svc.Session(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			response.NotFoundMsg(c, "会话不存在")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, toSessionResponse(sess))
}

func (h *Handler) forceLogout(c *gin.Context) {
	if !isAdmin(c) {
		response.Forbidden(c)
		return
	}

	var dto ForceLogoutDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.hub.ForceLogout(c.Request.Context(), dto.UserID); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func isAdmin(c *gin.Context) bool {
	claims := middleware.CurrentClaims(c)
	if claims == nil {
		return false
	}
	for _, role := range claims.Roles {
		if role == "admin" {
			return true
		}
	}
	return false
}
