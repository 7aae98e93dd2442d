package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/store-rating/internal/handler"
	"github.com/iliyamo/store-rating/internal/middleware"
	"github.com/iliyamo/store-rating/internal/model"
)

// RegisterStores registers the store catalogue.  Reads are public and go
// through the response cache; creation is admin only.
func RegisterStores(e *echo.Echo, h *handler.StoreHandler, authn echo.MiddlewareFunc, cache *middleware.ResponseCache, stores middleware.EmailChecker) {
	g := e.Group("/v1/stores")
	g.GET("", h.List, cache.Middleware())
	g.GET("/:id", h.Get, cache.Middleware())
	g.GET("/:id/ratings", h.ListRatings)

	g.POST("", h.Create,
		authn,
		middleware.RequireRole(model.RoleAdmin),
		middleware.Bind[handler.CreateStoreReq](),
		middleware.UniqueEmail("store", stores),
	)
}
