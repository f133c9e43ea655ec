package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// NoLimit marks a request that did not ask for a page size: every matching
// row is returned, offset still applies.
const NoLimit = -1

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// Unbounded reports whether the caller asked for all rows.
func (p Params) Unbounded() bool {
	return p.Limit < 0
}

// FromContext extracts pagination parameters from the echo context. A
// missing, non-numeric or negative limit yields NoLimit; the same for offset
// yields 0.
func FromContext(c echo.Context) Params {
	p := Params{Limit: NoLimit}
	if n, err := strconv.Atoi(c.QueryParam("limit")); err == nil && n >= 0 {
		p.Limit = n
	}
	if n, err := strconv.Atoi(c.QueryParam("offset")); err == nil && n > 0 {
		p.Offset = n
	}
	return p
}

// Response wraps a paginated API response. Limit is null when the request
// was unbounded.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   *int        `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	resp := &Response{
		Data:   data,
		Total:  total,
		Offset: p.Offset,
	}
	if !p.Unbounded() {
		limit := p.Limit
		resp.Limit = &limit
		resp.HasMore = p.HasNext(total)
	}
	return resp
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	if p.Unbounded() {
		return false
	}
	return p.Offset+p.Limit < total
}

// NextOffset returns the offset for the next page.
func (p Params) NextOffset() int {
	if p.Unbounded() {
		return p.Offset
	}
	return p.Offset + p.Limit
}
