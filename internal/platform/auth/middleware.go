package auth

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/cnics/mireview/internal/platform/apperr"
)

type IdentifyConfig struct {
	// Header carries a login asserted by the trusted upstream proxy.
	Header string
	// Verifier checks bearer tokens when no header is present. Nil disables
	// bearer authentication.
	Verifier TokenVerifier
	// AllowAnonymous lets requests with neither header nor verifier through
	// without an identity.
	AllowAnonymous bool
}

// Identify resolves the caller and stores the Identity in the request
// context.
//
// A present header always wins and an unknown login is Forbidden. Without
// a header a configured verifier demands a valid token (Unauthorized
// otherwise). With neither, the request proceeds anonymously only when
// AllowAnonymous is set.
func Identify(cfg IdentifyConfig, store IdentityStore, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			login := ""
			if cfg.Header != "" {
				login = strings.TrimSpace(req.Header.Get(cfg.Header))
			}

			if login == "" && cfg.Verifier != nil {
				authHeader := req.Header.Get("Authorization")
				scheme, token, ok := strings.Cut(authHeader, " ")
				if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
					return apperr.Unauthorized("missing bearer token")
				}
				sub, err := cfg.Verifier.Verify(req.Context(), strings.TrimSpace(token))
				if err != nil {
					logger.Debug().Err(err).Msg("bearer token rejected")
					return apperr.Unauthorized("invalid token")
				}
				login = sub
			}

			if login == "" {
				if cfg.AllowAnonymous {
					return next(c)
				}
				return apperr.Unauthorized("authentication required")
			}

			id, err := store.IdentityByLogin(req.Context(), login)
			if errors.Is(err, ErrUnknownIdentity) {
				logger.Warn().Str("login", login).Msg("unknown identity")
				return apperr.Forbidden("unknown user")
			}
			if err != nil {
				return err
			}

			c.Set("login", id.Login)
			c.SetRequest(req.WithContext(WithIdentity(req.Context(), id)))
			return next(c)
		}
	}
}
