package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/cnics/mireview/internal/platform/apperr"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:   http.StatusBadRequest,
	apperr.KindNotFound:     http.StatusNotFound,
	apperr.KindForbidden:    http.StatusForbidden,
	apperr.KindUnauthorized: http.StatusUnauthorized,
	apperr.KindUnavailable:  http.StatusServiceUnavailable,
	apperr.KindInternal:     http.StatusInternalServerError,
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return statusByKind[apperr.KindOf(err)]
}

// ErrorHandler renders errors as {"error": msg}. Internal and unavailable
// errors are logged with the request id and their detail never reaches the
// client.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := StatusFor(err)
		msg := apperr.Message(err)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg = http.StatusText(he.Code)
			if s, ok := he.Message.(string); ok && he.Code < 500 {
				msg = s
			}
		}

		if status >= 500 {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, map[string]string{"error": msg})
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}
