package event

import (
	"github.com/cnics/mireview/internal/platform/apperr"
	"github.com/cnics/mireview/internal/platform/sqlq"
)

// Phase names a listing of the workflow. It is a closed set.
type Phase string

type phaseDef struct {
	statuses []Status
	orderBy  string
}

const defaultOrder = "e.id ASC"

var phases = map[Phase]phaseDef{
	"created":               {statuses: []Status{StatusCreated}, orderBy: defaultOrder},
	"uploaded":              {statuses: []Status{StatusUploaded}, orderBy: "e.upload_date DESC NULLS LAST, e.id ASC"},
	"scrubbed":              {statuses: []Status{StatusScrubbed}, orderBy: "e.scrub_date DESC NULLS LAST, e.id ASC"},
	"screened":              {statuses: []Status{StatusScreened}, orderBy: defaultOrder},
	"assigned":              {statuses: []Status{StatusAssigned}, orderBy: defaultOrder},
	"sent":                  {statuses: []Status{StatusSent, StatusReviewer1Done, StatusReviewer2Done}, orderBy: defaultOrder},
	"third_review_needed":   {statuses: []Status{StatusThirdReviewNeeded}, orderBy: defaultOrder},
	"third_review_assigned": {statuses: []Status{StatusThirdReviewAssigned}, orderBy: defaultOrder},
	"done":                  {statuses: []Status{StatusDone}, orderBy: defaultOrder},
	"rejected":              {statuses: []Status{StatusRejected}, orderBy: defaultOrder},
	"no_packet_available":   {statuses: []Status{StatusNoPacketAvailable}, orderBy: defaultOrder},
}

// aliases keeps the old listing URLs working.
var aliases = map[string]Phase{
	"need_packets":  "created",
	"for_review":    "uploaded",
	"need_reupload": "rejected",
}

// ParsePhase resolves a phase name or legacy alias.
func ParsePhase(name string) (Phase, error) {
	if p, ok := aliases[name]; ok {
		return p, nil
	}
	if _, ok := phases[Phase(name)]; ok {
		return Phase(name), nil
	}
	return "", apperr.Validationf("unknown phase %q", name)
}

// def returns the phase's statuses and order. An unknown phase has no
// statuses, so it includes nothing and its predicate matches no rows.
func (p Phase) def() phaseDef {
	if d, ok := phases[p]; ok {
		return d
	}
	return phaseDef{orderBy: defaultOrder}
}

// Includes reports whether an event in status s belongs to the phase.
func (p Phase) Includes(s Status) bool {
	for _, have := range p.def().statuses {
		if have == s {
			return true
		}
	}
	return false
}

func (p Phase) predicate() sqlq.Pred {
	statuses := p.def().statuses
	if len(statuses) == 1 {
		return sqlq.Eq("e.status", string(statuses[0]))
	}
	vals := make([]string, len(statuses))
	for i, s := range statuses {
		vals[i] = string(s)
	}
	return sqlq.In("e.status", vals)
}
