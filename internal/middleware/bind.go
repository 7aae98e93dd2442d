package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/store-rating/internal/apperr"
	"github.com/iliyamo/store-rating/internal/validation"
)

// Bind decodes the request body into a fresh T, sanitises its string
// fields and validates it with the Echo validator.  The handler retrieves
// the result with Payload[T].
func Bind[T any]() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := new(T)
			if err := (&echo.DefaultBinder{}).BindBody(c, p); err != nil {
				return apperr.Validation("Invalid request body")
			}
			validation.Sanitize(p)
			if err := c.Validate(p); err != nil {
				if _, ok := apperr.As(err); ok {
					return err
				}
				return apperr.Validation(err.Error())
			}
			c.Set(ctxPayload, p)
			return next(c)
		}
	}
}

// Payload returns the value Bind[T] stored.  It is nil when the route was
// not wrapped with Bind[T].
func Payload[T any](c echo.Context) *T {
	p, _ := c.Get(ctxPayload).(*T)
	return p
}
