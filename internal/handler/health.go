package handler // declare the package name; contains HTTP handlers

import (
	"database/sql"
	"net/http" // net/http provides status codes and response helpers

	"github.com/labstack/echo/v4" // echo is the web framework used for this project

	"github.com/iliyamo/store-rating/internal/apperr"
	"github.com/iliyamo/store-rating/internal/database"
)

// Health is a simple health‑check endpoint used by load balancers and
// monitoring systems to verify that the service is running.  It returns
// a plain text "ok" message with an HTTP 200 status code.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// DBHealth reports whether the MySQL pool can still reach the server.
func DBHealth(db *sql.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := database.Ping(c.Request().Context(), db); err != nil {
			return apperr.Internal("Database unavailable", err)
		}
		return c.JSON(http.StatusOK, echo.Map{"db": "connected"})
	}
}
