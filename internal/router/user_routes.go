package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/store-rating/internal/handler"
	"github.com/iliyamo/store-rating/internal/middleware"
	"github.com/iliyamo/store-rating/internal/model"
)

// RegisterUsers registers the admin user management endpoints.  Role and
// delete operations refuse to act on the caller's own account.
func RegisterUsers(e *echo.Echo, h *handler.UserHandler, authn echo.MiddlewareFunc, users middleware.EmailChecker) {
	g := e.Group("/v1/users", authn, middleware.RequireRole(model.RoleAdmin))

	g.POST("", h.Create, middleware.Bind[handler.CreateUserReq](), middleware.UniqueEmail("user", users))
	g.GET("", h.List)
	g.GET("/stats", h.Stats)
	g.GET("/role/:role", h.ByRole)
	g.GET("/:id", h.Get)
	g.PUT("/:id/profile", h.UpdateProfile, middleware.Bind[handler.ProfileReq]())
	g.PATCH("/:id/role", h.UpdateRole, middleware.ForbidSelfAction(), middleware.Bind[handler.RoleReq]())
	g.DELETE("/:id", h.Delete, middleware.ForbidSelfAction())
}
