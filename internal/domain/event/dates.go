package event

import (
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/cnics/mireview/internal/platform/validate"
)

// queryDateLayouts are the forms a free-text query is tried against when
// looking for a date.
var queryDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"20060102",
	"01/02/2006",
	"01-02-2006",
	"1/2/2006",
	"01/02/06",
	"01-02-06",
	"1/2/06",
	"06-01-02",
	"06/01/02",
}

// earliestEventDate is the lower bound for event dates.
var earliestEventDate = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// NormalizeQueryDate returns q as YYYY-MM-DD when it parses under one of
// the accepted layouts.
func NormalizeQueryDate(q string) (string, bool) {
	q = strings.TrimSpace(q)
	for _, layout := range queryDateLayouts {
		if t, err := time.Parse(layout, q); err == nil {
			return t.Format(validate.DateLayout), true
		}
	}
	return "", false
}

// parseDate parses a strict YYYY-MM-DD date.
func parseDate(s string) (time.Time, bool) {
	t, err := time.Parse(validate.DateLayout, strings.TrimSpace(s))
	return t, err == nil
}

func dateOf(t time.Time) pgtype.Date {
	y, m, d := t.Date()
	return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
}
