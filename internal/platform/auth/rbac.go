package auth

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/cnics/mireview/internal/platform/apperr"
)

// RequireAll admits callers holding every listed capability.
func RequireAll(caps ...Capability) echo.MiddlewareFunc {
	return guard(caps, " and ", func(id *Identity) bool {
		for _, c := range caps {
			if !id.Has(c) {
				return false
			}
		}
		return true
	})
}

// RequireAny admits callers holding at least one listed capability.
func RequireAny(caps ...Capability) echo.MiddlewareFunc {
	return guard(caps, " or ", func(id *Identity) bool {
		for _, c := range caps {
			if id.Has(c) {
				return true
			}
		}
		return false
	})
}

// guard is skipped entirely for anonymous requests, which only exist when
// anonymous access is configured. Role checks apply to identified callers.
func guard(caps []Capability, sep string, ok func(*Identity) bool) echo.MiddlewareFunc {
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	msg := fmt.Sprintf("required role: %s", strings.Join(names, sep))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := IdentityFromContext(c.Request().Context())
			if id == nil || ok(id) {
				return next(c)
			}
			return apperr.Forbidden(msg)
		}
	}
}
