package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/oa-space/admin-core/internal/models"
	"github.com/oa-space/admin-core/internal/modules/auth/session"
	"github.com/oa-space/admin-core/internal/pkg/jwt"
	"github.com/oa-space/admin-core/internal/pkg/response"
)

const (
	ContextKeyUserID = "user_id"
	ContextKeyClaims = "claims"
)

// SessionGetter is the read side of the session store the gate consults.
type SessionGetter interface {
	Get(ctx context.Context, userID string) (*models.UserSession, error)
}

// Auth returns the per-request session validation gate. A token must carry a
// valid signature AND still be the user's current stored session token; a
// later login anywhere supersedes it immediately, regardless of its own
// expiry. Fails closed on store errors.
func Auth(store SessionGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := validate(c.Request.Context(), store, extractToken(c))
		if err != nil {
			switch {
			case errors.Is(err, ErrSessionNotFound):
				response.UnauthorizedMsg(c, "会话不存在，请重新登录")
			case errors.Is(err, ErrSessionSuperseded):
				response.UnauthorizedMsg(c, "账号已在其他位置登录")
			default:
				response.Unauthorized(c)
			}
			return
		}
		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

var (
	// ErrSessionNotFound means the user has no stored session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionSuperseded means the presented token is no longer the
	// user's current one.
	ErrSessionSuperseded = errors.New("token superseded")
)

// ValidateToken runs the same gate outside of gin (socket handshakes).
// Returns the authenticated user id.
func ValidateToken(ctx context.Context, store SessionGetter, rawToken string) (string, error) {
	claims, err := validate(ctx, store, NormalizeToken(rawToken))
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

func validate(ctx context.Context, store SessionGetter, token string) (*jwt.Claims, error) {
	if token == "" {
		return nil, errors.New("token is required")
	}

	claims, err := jwt.Parse(token)
	if err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, errors.New("token carries no identity")
	}

	sess, err := store.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if sess.LoggedOut || sess.ForcedLogout {
		return nil, ErrSessionNotFound
	}
	if sess.Token != token {
		return nil, ErrSessionSuperseded
	}
	return claims, nil
}

// CurrentUserID extracts the authenticated user ID from context.
func CurrentUserID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyUserID)
	id, _ := v.(string)
	return id
}

// CurrentClaims extracts the verified token claims from context.
func CurrentClaims(c *gin.Context) *jwt.Claims {
	v, _ := c.Get(ContextKeyClaims)
	claims, _ := v.(*jwt.Claims)
	return claims
}

// IsAuthenticated returns true if the request has a valid auth token.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentUserID(c) != ""
}

func extractToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		return NormalizeToken(auth)
	}
	return NormalizeToken(c.Query("token"))
}

// NormalizeToken trims spaces and strips an optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
