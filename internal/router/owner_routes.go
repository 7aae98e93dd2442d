package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/store-rating/internal/handler"    // owner handlers
	"github.com/iliyamo/store-rating/internal/middleware" // JWT + role + ownership middlewares
	"github.com/iliyamo/store-rating/internal/model"
)

// RegisterOwner registers store-owner endpoints under /v1/owner.
// All routes require a valid JWT.
func RegisterOwner(e *echo.Echo, o *handler.OwnerHandler, authn echo.MiddlewareFunc, stores middleware.StoreLookup) {
	g := e.Group("/v1/owner", authn)

	g.GET("/dashboard", o.Dashboard, middleware.RequireRole(model.RoleStoreOwner))

	// admins may inspect any store; owners only their own
	g.GET("/stores/:id/ratings", o.StoreRatings,
		middleware.RequireRole(model.RoleStoreOwner, model.RoleAdmin),
		middleware.RequireStoreOwnership(stores),
	)
}
