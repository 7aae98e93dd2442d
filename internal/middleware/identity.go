package middleware

// identity.go defines the context keys shared across middleware files and
// handlers, and helpers that read the authenticated user back out of the
// Echo context.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/store-rating/internal/apperr"
	"github.com/iliyamo/store-rating/internal/model"
)

const (
	ctxUser    = "user"    // model.User resolved by Authenticate
	ctxPayload = "payload" // *T bound and validated by Bind
	ctxStore   = "store"   // model.Store loaded by RequireStoreOwnership
)

// CurrentUser returns the user resolved by Authenticate.
func CurrentUser(c echo.Context) (model.User, bool) {
	u, ok := c.Get(ctxUser).(model.User)
	return u, ok
}

// userID returns the authenticated user's id as a string, or "guest".
func userID(c echo.Context) string {
	if u, ok := CurrentUser(c); ok {
		return strconv.FormatUint(u.ID, 10)
	}
	return "guest"
}

// ParamID parses the named path parameter as a positive id.
func ParamID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("Invalid "+name,
			apperr.FieldError{Field: name, Message: "must be a positive integer"})
	}
	return id, nil
}

// LoadedStore returns the store RequireStoreOwnership fetched, if any.
func LoadedStore(c echo.Context) (model.Store, bool) {
	s, ok := c.Get(ctxStore).(model.Store)
	return s, ok
}
