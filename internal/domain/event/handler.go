package event

import (
	"bytes"
	"io"
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

var (
	intakeCaps = []auth.Capability{auth.CapUploader, auth.CapReviewer, auth.CapAdmin}
	reviewCaps = []auth.Capability{auth.CapReviewer, auth.CapAdmin}
)

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := auth.RequireAll(auth.CapAdmin)
	reviewers := auth.RequireAny(auth.CapReviewer, auth.CapThirdReviewer)
	readers := auth.RequireAny(auth.CapAdmin, auth.CapReviewer, auth.CapThirdReviewer)

	g := api.Group("/events")
	g.GET("", h.List)
	g.POST("", h.Create, admin)
	g.GET("/phase/:phase", h.ListPhase)
	for alias := range aliases {
		g.GET("/"+alias, h.listAlias(alias))
	}
	g.GET("/status_summary", h.StatusSummary, admin)
	g.GET("/export.csv", h.Export, admin)
	g.POST("/import", h.Import, admin)
	g.GET("/awaiting_review", h.AwaitingReview, reviewers)
	g.GET("/awaiting_upload", h.AwaitingUpload, auth.RequireAny(auth.CapUploader, auth.CapAdmin))
	g.POST("/assign", h.Assign, admin)
	g.POST("/send", h.Send, admin)

	g.GET("/:id", h.Get, readers)
	g.PUT("/:id", h.Update, admin)
	g.POST("/:id/upload", h.Upload, auth.RequireAny(auth.CapUploader, auth.CapAdmin))
	g.POST("/:id/no_packet", h.MarkNoPacket, auth.RequireAny(auth.CapUploader, auth.CapAdmin))
	g.POST("/:id/scrub", h.Scrub, admin)
	g.POST("/:id/screen", h.Screen, admin)
	g.POST("/:id/review", h.Review, reviewers)
	g.GET("/:id/criteria", h.Criteria, readers)
	g.POST("/:id/criteria", h.AddCriterion, admin)
	g.GET("/:id/solicitations", h.Solicitations, readers)
	g.POST("/:id/solicitations", h.AddSolicitation, admin)
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

// actor returns the caller. Writes record who made them, so they need an
// identity even when anonymous reads are allowed.
func actor(c echo.Context) (*auth.Identity, error) {
	id := auth.IdentityFromContext(c.Request().Context())
	if id == nil {
		return nil, apperr.Unauthorized("authentication required")
	}
	return id, nil
}

func data(c echo.Context, status int, v interface{}) error {
	return c.JSON(status, map[string]interface{}{"data": v})
}

// phaseCaps lists who may read a phase: intake phases are open to
// uploaders, the rest to reviewers.
func phaseCaps(p Phase) []auth.Capability {
	if p == "created" || p == "rejected" {
		return intakeCaps
	}
	return reviewCaps
}

func (h *Handler) listPhase(c echo.Context, name string) error {
	phase, err := ParsePhase(name)
	if err != nil {
		return err
	}
	guard := auth.RequireAny(phaseCaps(phase)...)
	return guard(func(c echo.Context) error {
		p := pagination.FromContext(c)
		rows, total, err := h.svc.List(c.Request().Context(), ListQuery{
			Phase:  phase,
			Limit:  p.Limit,
			Offset: p.Offset,
			Q:      c.QueryParam("q"),
			Site:   c.QueryParam("site"),
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(rows, total, p))
	})(c)
}

// List serves GET /events?phase=name.
func (h *Handler) List(c echo.Context) error {
	name := c.QueryParam("phase")
	if name == "" {
		return apperr.Validation("phase is required")
	}
	return h.listPhase(c, name)
}

func (h *Handler) ListPhase(c echo.Context) error {
	return h.listPhase(c, c.Param("phase"))
}

func (h *Handler) listAlias(alias string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return h.listPhase(c, alias)
	}
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Details(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, d)
}

func (h *Handler) StatusSummary(c echo.Context) error {
	summary, err := h.svc.StatusSummary(c.Request().Context())
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, summary)
}

func (h *Handler) Export(c echo.Context) error {
	records, err := h.svc.Export(c.Request().Context())
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="events.csv"`)
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) AwaitingReview(c echo.Context) error {
	me, err := actor(c)
	if err != nil {
		return err
	}
	rows, err := h.svc.AwaitingReview(c.Request().Context(), me.UserID, c.QueryParam("q"))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, rows)
}

// AwaitingUpload lists the caller's site. Admins may ask for another site.
func (h *Handler) AwaitingUpload(c echo.Context) error {
	me, err := actor(c)
	if err != nil {
		return err
	}
	site := me.Site
	if s := c.QueryParam("site"); s != "" && me.Has(auth.CapAdmin) {
		site = s
	}
	q, err := h.svc.AwaitingUpload(c.Request().Context(), site)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, q)
}

func (h *Handler) Create(c echo.Context) error {
	me, err := actor(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	created, err := h.svc.CreateEvent(c.Request().Context(), &req, me.UserID)
	if err != nil {
		return err
	}
	return data(c, http.StatusCreated, created)
}

// Import accepts a multipart "file" field or a raw CSV body.
func (h *Handler) Import(c echo.Context) error {
	me, err := actor(c)
	if err != nil {
		return err
	}
	var body io.Reader = c.Request().Body
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return apperr.Validation("unreadable upload")
		}
		defer f.Close()
		body = f
	}
	res, err := h.svc.ImportEvents(c.Request().Context(), body, me.UserID)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, res)
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
	d, err := h.svc.UpdateEvent(c.Request().Context(), id, &req)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, d)
}

// readUpload opens the multipart "file" field. The caller closes it.
func readUpload(c echo.Context) (Upload, io.Closer, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return Upload{}, nil, apperr.Validation("file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return Upload{}, nil, apperr.Validation("unreadable upload")
	}
	return Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
		Body:        f,
	}, f, nil
}

func (h *Handler) Upload(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	me, err := actor(c)
	if err != nil {
		return err
	}
	up, closer, err := readUpload(c)
	if err != nil {
		return err
	}
	defer closer.Close()
	confirm, _ := strconv.ParseBool(c.FormValue("confirm"))
	e, err := h.svc.UploadPacket(c.Request().Context(), id, me, up, confirm)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, e)
}

func (h *Handler) MarkNoPacket(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	me, err := actor(c)
	if err != nil {
		return err
	}
	var req NoPacketRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	e, err := h.svc.MarkNoPacket(c.Request().Context(), id, me, &req)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, e)
}

func (h *Handler) Scrub(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	me, err := actor(c)
	if err != nil {
		return err
	}
	up, closer, err := readUpload(c)
	if err != nil {
		return err
	}
	defer closer.Close()
	e, err := h.svc.UploadScrubbed(c.Request().Context(), id, me.UserID, up)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, e)
}

type screenRequest struct {
	Decision string  `json:"decision" validate:"required"`
	Message  *string `json:"message" validate:"omitempty,max=2000"`
}

func (h *Handler) Screen(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	me, err := actor(c)
	if err != nil {
		return err
	}
	var req screenRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	e, err := h.svc.Screen(c.Request().Context(), id, req.Decision, req.Message, me.UserID)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, e)
}

func (h *Handler) Assign(c echo.Context) error {
	me, err := actor(c)
	if err != nil {
		return err
	}
	var req AssignRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	n, err := h.svc.Assign(c.Request().Context(), &req, me.UserID)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, map[string]int{"updated": n})
}

type sendRequest struct {
	EventIDs []int64 `json:"event_ids"`
}

func (h *Handler) Send(c echo.Context) error {
	me, err := actor(c)
	if err != nil {
		return err
	}
	var req sendRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	n, err := h.svc.Send(c.Request().Context(), req.EventIDs, me.UserID)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, map[string]int{"updated": n})
}

func (h *Handler) Review(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	me, err := actor(c)
	if err != nil {
		return err
	}
	var r Review
	if err := c.Bind(&r); err != nil {
		return apperr.Validation("malformed request body")
	}
	saved, status, err := h.svc.SubmitReview(c.Request().Context(), id, me.UserID, &r)
	if err != nil {
		return err
	}
	return data(c, http.StatusCreated, map[string]interface{}{"review": saved, "status": status})
}

func (h *Handler) Criteria(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Criteria(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, items)
}

type criterionRequest struct {
	Name  string `json:"name" validate:"max=255"`
	Value string `json:"value" validate:"max=255"`
}

func (h *Handler) AddCriterion(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req criterionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	item, err := h.svc.AddCriterion(c.Request().Context(), id, req.Name, req.Value)
	if err != nil {
		return err
	}
	return data(c, http.StatusCreated, item)
}

func (h *Handler) Solicitations(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Solicitations(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, items)
}

type solicitationRequest struct {
	Date    string `json:"date" validate:"max=32"`
	Contact string `json:"contact" validate:"max=2000"`
}

func (h *Handler) AddSolicitation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req solicitationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	item, err := h.svc.AddSolicitation(c.Request().Context(), id, req.Date, req.Contact)
	if err != nil {
		return err
	}
	return data(c, http.StatusCreated, item)
}
