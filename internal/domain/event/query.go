package event

import (
	"strings"

	"github.com/cnics/mireview/internal/platform/sqlq"
)

// ListQuery selects one page of a phase listing.
type ListQuery struct {
	Phase  Phase
	Limit  int
	Offset int
	Q      string
	Site   string
}

// dateColumns are the workflow date stamps searched by q.
var dateColumns = []string{
	"e.add_date", "e.event_date", "e.upload_date", "e.mark_no_packet_date",
	"e.scrub_date", "e.screen_date", "e.assign_date", "e.send_date",
	"e.review1_date", "e.review2_date", "e.assign3rd_date", "e.review3_date",
}

const listColumns = `e.id, e.patient_id, p.site, p.site_patient_id, e.status,
	e.event_date, e.add_date, e.upload_date, e.scrub_date, e.screen_date,
	e.assign_date, e.send_date,
	COALESCE(STRING_AGG(c.name, ',' ORDER BY c.name), '')`

const listFrom = `events e
	JOIN patients p ON p.id = e.patient_id
	LEFT JOIN criterias c ON c.event_id = e.id`

// searchPredicate matches q as a case-insensitive substring of the event
// id, every date stamp, the patient keys and any criterion name or value.
// When q is also a recognizable date, the normalized form is matched
// against the date stamps as an extra alternative.
func searchPredicate(q string) sqlq.Pred {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil
	}

	alts := []sqlq.Pred{sqlq.Contains("e.id::text", q)}
	for _, col := range dateColumns {
		alts = append(alts, sqlq.Contains(col+"::text", q))
	}
	pattern := "%" + sqlq.EscapeLike(q) + "%"
	alts = append(alts,
		sqlq.Contains("p.site", q),
		sqlq.Contains("p.site_patient_id", q),
		sqlq.Expr(`EXISTS (SELECT 1 FROM criterias cq WHERE cq.event_id = e.id AND (cq.name ILIKE ? OR cq.value ILIKE ?))`, pattern, pattern),
	)

	if norm, ok := NormalizeQueryDate(q); ok && norm != q {
		dates := make([]sqlq.Pred, 0, len(dateColumns))
		for _, col := range dateColumns {
			dates = append(dates, sqlq.Contains(col+"::text", norm))
		}
		alts = append(alts, sqlq.Or(dates...))
	}
	return sqlq.Or(alts...)
}

func siteFilter(site string) sqlq.Pred {
	site = strings.TrimSpace(site)
	if site == "" {
		return nil
	}
	return sqlq.Eq("p.site", site)
}

// listSelect builds the listing query. The data and count forms share one
// WHERE, so total always reflects the same filter as the rows.
func listSelect(lq ListQuery) sqlq.Select {
	return sqlq.Select{
		Columns: listColumns,
		From:    listFrom,
		Where:   sqlq.And(lq.Phase.predicate(), searchPredicate(lq.Q), siteFilter(lq.Site)),
		GroupBy: "e.id, p.id",
		OrderBy: lq.Phase.def().orderBy,
	}
}

// awaitingReviewSelect finds events where userID owes a review. The slot
// bookkeeping columns are appended so the caller can pick the lowest
// pending slot with pendingSlot.
func awaitingReviewSelect(userID int64, q string) sqlq.Select {
	return sqlq.Select{
		Columns: listColumns + `, e.reviewer1_id, e.reviewer2_id, e.reviewer3_id,
	e.review1_date, e.review2_date, e.review3_date`,
		From:    listFrom,
		Where:   sqlq.And(reviewerPending(userID), searchPredicate(q)),
		GroupBy: "e.id, p.id",
		OrderBy: defaultOrder,
	}
}

// reviewerPending is true when userID holds a slot whose review is
// outstanding: slots 1 and 2 once the packet is sent, slot 3 once the
// third review is assigned.
func reviewerPending(userID int64) sqlq.Pred {
	return sqlq.Or(
		sqlq.And(sqlq.Eq("e.reviewer1_id", userID), sqlq.NotNull("e.send_date"), sqlq.IsNull("e.review1_date")),
		sqlq.And(sqlq.Eq("e.reviewer2_id", userID), sqlq.NotNull("e.send_date"), sqlq.IsNull("e.review2_date")),
		sqlq.And(sqlq.Eq("e.reviewer3_id", userID), sqlq.Eq("e.status", string(StatusThirdReviewAssigned)), sqlq.IsNull("e.review3_date")),
	)
}

// awaitingUploadSelect lists events in status at the uploader's site.
func awaitingUploadSelect(site string, status Status) sqlq.Select {
	return sqlq.Select{
		Columns: listColumns,
		From:    listFrom,
		Where:   sqlq.And(sqlq.Eq("e.status", string(status)), sqlq.Eq("p.site", site)),
		GroupBy: "e.id, p.id",
		OrderBy: defaultOrder,
	}
}
