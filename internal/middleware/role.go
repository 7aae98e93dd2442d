package middleware // middleware provides shared request processing for handlers

import (
	"github.com/labstack/echo/v4" // echo provides middleware chaining and context

	"github.com/iliyamo/store-rating/internal/apperr"
	"github.com/iliyamo/store-rating/internal/model"
)

// RequireRole returns a middleware function that enforces that the
// authenticated user has one of the specified roles.  It reads the role
// from the user Authenticate stored, so it must run after it.  Calling it
// with no roles admits any authenticated user.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	// Build a set of allowed roles for constant‑time lookups.
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := CurrentUser(c)
			if !ok {
				return apperr.Unauthorized("Access token required")
			}
			if len(allowed) > 0 && !allowed[u.Role] {
				return apperr.Forbidden("Insufficient permissions")
			}
			return next(c)
		}
	}
}
