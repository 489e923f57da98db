package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oa-space/admin-core/internal/middleware"
	"github.com/oa-space/admin-core/internal/models"
	"github.com/oa-space/admin-core/internal/modules/auth/session"
	"github.com/oa-space/admin-core/internal/pkg/jwt"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	mu   sync.Mutex
	rows map[string]*models.UserSession
	err  error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{rows: make(map[string]*models.UserSession)}
}

func (f *fakeSessions) Get(_ context.Context, userID string) (*models.UserSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.rows[userID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, session.ErrNotFound
}

func (f *fakeSessions) put(s *models.UserSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[s.UserID] = s
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	signed, err := jwt.Sign(jwt.Claims{UserID: userID}, time.Hour)
	require.NoError(t, err)
	return signed
}

// signDeviceToken varies a claim per device. Two tokens signed from identical
// claims within the same second are byte-identical (iat/exp have second
// precision), which would make a supersession check vacuous.
func signDeviceToken(t *testing.T, userID, device string) string {
	t.Helper()
	signed, err := jwt.Sign(jwt.Claims{UserID: userID, Name: device}, time.Hour)
	require.NoError(t, err)
	return signed
}

func newRouter(store middleware.SessionGetter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", middleware.Auth(store), func(c *gin.Context) {
		c.String(http.StatusOK, middleware.CurrentUserID(c))
	})
	return r
}

func do(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthAllowsCurrentSessionToken(t *testing.T) {
	store := newFakeSessions()
	r := newRouter(store)

	tok := signToken(t, "alice")
	store.put(&models.UserSession{UserID: "alice", Token: tok, ExpiresAt: time.Now().Add(time.Hour)})

	w := do(r, tok)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "alice", w.Body.String())
}

func TestAuthRejectsMissingOrInvalidToken(t *testing.T) {
	r := newRouter(newFakeSessions())

	require.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	require.Equal(t, http.StatusUnauthorized, do(r, "not-a-jwt").Code)
}

func TestAuthRejectsWithoutStoredSession(t *testing.T) {
	r := newRouter(newFakeSessions())
	require.Equal(t, http.StatusUnauthorized, do(r, signToken(t, "alice")).Code)
}

func TestAuthRejectsSupersededToken(t *testing.T) {
	store := newFakeSessions()
	r := newRouter(store)

	// Device A logs in, then device B supersedes the session.
	tokenA := signDeviceToken(t, "alice", "device-a")
	store.put(&models.UserSession{UserID: "alice", Token: tokenA, ExpiresAt: time.Now().Add(time.Hour)})
	require.Equal(t, http.StatusOK, do(r, tokenA).Code)

	tokenB := signDeviceToken(t, "alice", "device-b")
	require.NotEqual(t, tokenA, tokenB)
	store.put(&models.UserSession{UserID: "alice", Token: tokenB, ExpiresAt: time.Now().Add(time.Hour)})

	// TA's signature is still valid but it is no longer the current token.
	require.Equal(t, http.StatusUnauthorized, do(r, tokenA).Code)
	require.Equal(t, http.StatusOK, do(r, tokenB).Code)
}

func TestAuthRejectsEndedSession(t *testing.T) {
	store := newFakeSessions()
	r := newRouter(store)

	tok := signToken(t, "alice")
	store.put(&models.UserSession{UserID: "alice", Token: tok, ForcedLogout: true, LoggedOut: true})

	require.Equal(t, http.StatusUnauthorized, do(r, tok).Code)
}

func TestAuthFailsClosedOnStoreError(t *testing.T) {
	store := newFakeSessions()
	store.err = context.DeadlineExceeded
	r := newRouter(store)

	require.Equal(t, http.StatusUnauthorized, do(r, signToken(t, "alice")).Code)
}

func TestValidateTokenForSocketHandshake(t *testing.T) {
	store := newFakeSessions()
	tok := signToken(t, "alice")
	store.put(&models.UserSession{UserID: "alice", Token: tok, ExpiresAt: time.Now().Add(time.Hour)})

	uid, err := middleware.ValidateToken(context.Background(), store, "Bearer "+tok)
	require.NoError(t, err)
	require.Equal(t, "alice", uid)

	_, err = middleware.ValidateToken(context.Background(), store, "garbage")
	require.Error(t, err)
}
