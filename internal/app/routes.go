package app

import (
	"github.com/gin-gonic/gin"
	"github.com/oa-space/admin-core/internal/middleware"
	"github.com/oa-space/admin-core/internal/modules/auth"
	"github.com/oa-space/admin-core/internal/modules/gateway"
	"github.com/oa-space/admin-core/internal/pkg/response"
)

func (a *App) registerRoutes(authSvc *auth.Service, hub *gateway.Hub) {
	r := a.router
	authMW := middleware.Auth(a.sessions)

	r.NoRoute(func(c *gin.Context) {
		response.NotFoundMsg(c, "内容未找到")
	})

	root := r.Group("")
	gateway.RegisterRoutes(root, hub)
	auth.NewHandler(authSvc, hub, a.cfg.Auth.AllowOwnerRegistration).RegisterRoutes(root, authMW)
}
