package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/cnics/mireview/internal/platform/auth"
)

// AuditEntry records who touched which event or packet file, and how.
type AuditEntry struct {
	Timestamp time.Time
	RequestID string
	UserID    int64
	Login     string
	Site      string
	Action    string // read, export, create, update, delete
	Route     string
	Path      string
	Method    string
	EventID   string
	File      string
	RemoteIP  string
	UserAgent string
	Status    int
}

// Audit logs one "phi_access" line per request whose path starts with one
// of prefixes, after the handler has run. The caller's identity is read from
// the request context, so Audit must wrap the routes behind auth.Identify.
func Audit(logger zerolog.Logger, prefixes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !hasAnyPrefix(c.Request().URL.Path, prefixes) {
				return next(c)
			}

			err := next(c)
			entry := auditEntry(c, err)

			evt := logger.Info()
			if entry.Status == http.StatusForbidden || entry.Status == http.StatusUnauthorized {
				evt = logger.Warn()
			}
			evt.
				Str("type", "phi_access").
				Str("request_id", entry.RequestID).
				Int64("user_id", entry.UserID).
				Str("login", entry.Login).
				Str("site", entry.Site).
				Str("action", entry.Action).
				Str("route", entry.Route).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("event_id", entry.EventID).
				Str("file", entry.File).
				Str("remote_ip", entry.RemoteIP).
				Str("user_agent", entry.UserAgent).
				Int("status", entry.Status).
				Msg("phi_access")

			return err
		}
	}
}

func auditEntry(c echo.Context, err error) AuditEntry {
	req := c.Request()
	entry := AuditEntry{
		Timestamp: time.Now().UTC(),
		Route:     c.Path(),
		Path:      req.URL.Path,
		Method:    req.Method,
		Action:    auditAction(req.Method, req.URL.Path),
		EventID:   c.Param("id"),
		RemoteIP:  c.RealIP(),
		UserAgent: req.UserAgent(),
		Status:    c.Response().Status,
	}
	if strings.HasPrefix(entry.Route, "/files/") {
		entry.File = c.Param("*")
	}
	if err != nil && !c.Response().Committed {
		entry.Status = StatusFor(err)
	}
	if rid, ok := c.Get("request_id").(string); ok {
		entry.RequestID = rid
	}
	if id := auth.IdentityFromContext(req.Context()); id != nil {
		entry.UserID, entry.Login, entry.Site = id.UserID, id.Login, id.Site
	}
	return entry
}

func auditAction(method, path string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		if strings.HasSuffix(path, ".csv") {
			return "export"
		}
		return "read"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return "read"
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
