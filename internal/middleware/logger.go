package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/store-rating/internal/apperr"
)

// RequestLogger writes one structured line per request.  It runs inside
// RequestID so the id is already on the response headers.
func RequestLogger(log *logrus.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				// the status ErrorHandler is about to write
				status = toBody(err).Error.Status()
			}
			entry := log.WithFields(logrus.Fields{
				"method":     c.Request().Method,
				"path":       c.Request().URL.Path,
				"route":      c.Path(),
				"status":     status,
				"latency_ms": time.Since(start).Milliseconds(),
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
				"user_id":    userID(c),
				"remote_ip":  c.RealIP(),
			})
			switch {
			case status >= 500:
				entry.Error("request")
			case err != nil && apperr.KindOf(err) != apperr.KindInternal:
				entry.Info("request rejected")
			default:
				entry.Info("request")
			}
			return err
		}
	}
}
