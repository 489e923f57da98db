package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/oa-space/admin-core/internal/modules/auth"
	"github.com/stretchr/testify/require"
)

type noopPusher struct{}

func (noopPusher) ForceLogout(_ context.Context, _ string) error { return nil }

func newAuthRouter(h *harness) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	passthrough := func(c *gin.Context) { c.Next() }
	auth.NewHandler(h.svc, noopPusher{}, true).RegisterRoutes(r.Group(""), passthrough)
	return r
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLoginStatusMapping(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "owner@example.com", "hunter22")
	r := newAuthRouter(h)

	// Wrong credentials map to 401 with the shared message.
	w := postJSON(r, "/auth/login", `{"mail":"owner@example.com","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Exhaust the failure budget; the throttle answer is a generic 400.
	for i := 0; i < 4; i++ {
		postJSON(r, "/auth/login", `{"mail":"owner@example.com","password":"wrong"}`)
	}
	w = postJSON(r, "/auth/login", `{"mail":"owner@example.com","password":"hunter22"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "尝试次数过多")
}

func TestLoginCooldownStatusMapping(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "owner@example.com", "hunter22")
	r := newAuthRouter(h)

	w := postJSON(r, "/auth/login", `{"mail":"owner@example.com","password":"hunter22"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// An immediate resend hits the OTP cooldown, still a 400.
	w = postJSON(r, "/auth/login", `{"mail":"owner@example.com","password":"hunter22"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "验证码请求过于频繁")
}
