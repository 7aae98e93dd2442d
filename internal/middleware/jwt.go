package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"context"
	"errors"
	"strings" // string utilities for prefix checking and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/iliyamo/store-rating/internal/apperr"
	"github.com/iliyamo/store-rating/internal/model"
	"github.com/iliyamo/store-rating/internal/repository"
	"github.com/iliyamo/store-rating/internal/utils"
)

// UserLookup resolves a token subject to a live user row.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// Authenticate returns an Echo middleware that validates a Bearer access
// token and re-reads the user it names from the database on every request.
// Handlers read the result with CurrentUser.  The provided secret must
// match the one used when issuing tokens.
func Authenticate(secret string, users UserLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A valid header starts with "Bearer " followed by the JWT.
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return apperr.Unauthorized("Access token required")
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			// Signature, algorithm (HS256 only) and expiry are checked here.
			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return apperr.Unauthorized("Invalid or expired token")
			}
			id, _ := claims.UserID()

			// The token alone is not trusted: a deleted user or a changed
			// role must take effect immediately.
			u, err := users.GetByID(c.Request().Context(), id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return apperr.Unauthorized("User no longer exists")
				}
				return apperr.Internal("Internal server error", err)
			}

			c.Set(ctxUser, u)
			return next(c)
		}
	}
}
