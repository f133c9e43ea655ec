package blobstore

import (
	"errors"
	"mime"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"

	"github.com/cnics/mireview/internal/platform/apperr"
)

// FileHandler serves read-only documents, such as reviewer instructions,
// from a store.
type FileHandler struct {
	store Store
}

func NewFileHandler(store Store) *FileHandler {
	return &FileHandler{store: store}
}

// RegisterRoutes mounts GET /files/* on e.
func (h *FileHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/files/*", h.Get)
}

func (h *FileHandler) Get(c echo.Context) error {
	name, err := CleanName(c.Param("*"))
	if err != nil {
		return apperr.NotFoundf("file not found")
	}

	rc, err := h.store.Open(c.Request().Context(), name)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFoundf("file not found")
	}
	if err != nil {
		return apperr.Unavailable("file storage unavailable", err)
	}
	defer rc.Close()

	ct := mime.TypeByExtension(path.Ext(name))
	if ct == "" {
		ct = echo.MIMEOctetStream
	}
	return c.Stream(http.StatusOK, ct, rc)
}
