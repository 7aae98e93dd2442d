package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/store-rating/internal/apperr"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   apperr.Kind         `json:"error"`
	Message string              `json:"message"`
	Details []apperr.FieldError `json:"details,omitempty"`
}

// ErrorHandler renders errors returned by guards and handlers.  Causes of
// internal errors are logged and never sent to the client.
func ErrorHandler(log *logrus.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		body := toBody(err)
		if body.Error == apperr.KindInternal {
			log.WithFields(logrus.Fields{
				"method":     c.Request().Method,
				"path":       c.Path(),
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
				"user_id":    userID(c),
			}).WithError(err).Error("request failed")
		}
		status := body.Error.Status()
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		if werr := c.JSON(status, body); werr != nil {
			log.WithError(werr).Warn("write error response")
		}
	}
}

func toBody(err error) errorBody {
	if e, ok := apperr.As(err); ok {
		msg := e.Message
		if e.Kind == apperr.KindInternal {
			msg = "Internal server error"
		}
		return errorBody{Error: e.Kind, Message: msg, Details: e.Details}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		kind := kindForStatus(he.Code)
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && kind != apperr.KindInternal {
			msg = s
		}
		return errorBody{Error: kind, Message: msg}
	}
	return errorBody{Error: apperr.KindInternal, Message: "Internal server error"}
}

func kindForStatus(code int) apperr.Kind {
	switch code {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return apperr.KindValidation
	case http.StatusUnauthorized:
		return apperr.KindUnauthorized
	case http.StatusForbidden:
		return apperr.KindForbidden
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return apperr.KindNotFound
	case http.StatusConflict:
		return apperr.KindConflict
	case http.StatusUnprocessableEntity:
		return apperr.KindInvalidOperation
	default:
		return apperr.KindInternal
	}
}
