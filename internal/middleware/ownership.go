package middleware

import (
	"context"
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/store-rating/internal/apperr"
	"github.com/iliyamo/store-rating/internal/model"
	"github.com/iliyamo/store-rating/internal/repository"
)

// StoreLookup fetches a store by id.
type StoreLookup interface {
	GetByID(ctx context.Context, id uint64) (model.Store, error)
}

// RequireStoreOwnership guards store-scoped routes addressed by the :id
// path parameter.  Admins pass without a lookup; store owners must own the
// store.  The loaded store is available to handlers via LoadedStore.
func RequireStoreOwnership(stores StoreLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := CurrentUser(c)
			if !ok {
				return apperr.Unauthorized("Access token required")
			}
			if u.Role == model.RoleAdmin {
				return next(c)
			}
			id, err := ParamID(c, "id")
			if err != nil {
				return err
			}
			s, err := stores.GetByID(c.Request().Context(), id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return apperr.NotFound("Store not found")
				}
				return apperr.Internal("Internal server error", err)
			}
			if s.OwnerID == nil || *s.OwnerID != u.ID {
				return apperr.Forbidden("You do not own this store")
			}
			c.Set(ctxStore, s)
			return next(c)
		}
	}
}

// ForbidSelfAction stops an admin from changing or deleting their own
// account through the :id routes.
func ForbidSelfAction() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := CurrentUser(c)
			if !ok {
				return apperr.Unauthorized("Access token required")
			}
			id, err := ParamID(c, "id")
			if err != nil {
				return err
			}
			if id == u.ID {
				return apperr.InvalidOperation("You cannot perform this action on your own account")
			}
			return next(c)
		}
	}
}
