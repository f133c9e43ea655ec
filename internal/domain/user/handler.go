package user

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/cnics/mireview/internal/platform/apperr"
	"github.com/cnics/mireview/internal/platform/auth"
	"github.com/cnics/mireview/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/auth/me", h.Me)

	admin := api.Group("/users", auth.RequireAll(auth.CapAdmin))
	admin.GET("", h.List)
	admin.POST("", h.Create)
	admin.GET("/reviewers", h.Reviewers)
	admin.GET("/:id", h.Get)
	admin.PUT("/:id", h.Update)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid id")
	}
	return id, nil
}

func bindAndValidate(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return apperr.Validation("malformed request body")
	}
	return c.Validate(v)
}

// Me returns the caller's identity, null under anonymous access.
func (h *Handler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data": auth.IdentityFromContext(c.Request().Context()),
	})
}

func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	users, total, err := h.svc.List(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return err
	}
	if users == nil {
		users = []*User{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, p))
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	u, err := h.svc.Create(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"data": u})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	u, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": u})
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	u, err := h.svc.Update(c.Request().Context(), id, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": u})
}

func (h *Handler) Reviewers(c echo.Context) error {
	third, _ := strconv.ParseBool(c.QueryParam("third"))
	reviewers, err := h.svc.Reviewers(c.Request().Context(), third)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": reviewers})
}
