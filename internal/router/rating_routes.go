package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/store-rating/internal/handler"
	"github.com/iliyamo/store-rating/internal/middleware"
	"github.com/iliyamo/store-rating/internal/model"
)

// RegisterRatings registers rating endpoints under /v1/ratings.  All routes
// require a valid JWT; writes are limited to the user role and rate limited
// per caller.
func RegisterRatings(e *echo.Echo, h *handler.RatingHandler, authn, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/ratings", authn)
	userOnly := middleware.RequireRole(model.RoleUser)

	g.POST("", h.Submit, userOnly, limiter, middleware.Bind[handler.SubmitRatingReq]())
	g.GET("/mine", h.Mine, userOnly)
	g.GET("/stores/:id", h.ForStore, middleware.RequireRole())
	g.DELETE("/:id", h.Delete, userOnly, limiter)
}
