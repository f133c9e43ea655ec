package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityHeaders sets response hardening headers. Paths under documentPrefix
// serve packets and instruction documents that the frontend embeds, so they
// may be framed by the same origin; everything else is a JSON API that denies
// all loading and framing.
func SecurityHeaders(documentPrefix string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			// Responses carry patient identifiers.
			h.Set("Cache-Control", "no-store")

			if documentPrefix != "" && strings.HasPrefix(c.Request().URL.Path, documentPrefix) {
				h.Set("X-Frame-Options", "SAMEORIGIN")
				h.Set("Content-Security-Policy", "frame-ancestors 'self'")
			} else {
				h.Set("X-Frame-Options", "DENY")
				h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}
			return next(c)
		}
	}
}
