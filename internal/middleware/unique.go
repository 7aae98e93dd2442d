package middleware

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/store-rating/internal/apperr"
)

// EmailChecker is implemented by repositories with a unique email column.
type EmailChecker interface {
	EmailExists(ctx context.Context, email string) (bool, error)
}

// EmailCarrier is implemented by payloads that introduce a new email.
type EmailCarrier interface {
	EmailAddress() string
}

// UniqueEmail rejects the request with a conflict when the bound payload's
// email is already used by a row of the given entity kind ("user" or
// "store").  It must run after Bind.  The database unique index remains the
// final arbiter for concurrent registrations.
func UniqueEmail(kind string, checker EmailChecker) echo.MiddlewareFunc {
	msg := "Email already registered"
	if kind == "store" {
		msg = "Store email already registered"
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := c.Get(ctxPayload).(EmailCarrier)
			if !ok {
				return next(c)
			}
			exists, err := checker.EmailExists(c.Request().Context(), p.EmailAddress())
			if err != nil {
				return apperr.Internal("Internal server error", err)
			}
			if exists {
				return apperr.Conflict(msg)
			}
			return next(c)
		}
	}
}
