package event

import (
	"fmt"
	"strings"

	"github.com/cnics/mireview/internal/platform/apperr"
)

const (
	NoPacketOutsideHospital = "Outside hospital"
	NoPacketDiagnosisError  = "Ascertainment diagnosis error"
	NoPacketPriorEvent      = "Ascertainment diagnosis referred to a prior event"
	NoPacketOther           = "Other"
)

var noPacketReasons = []string{NoPacketOutsideHospital, NoPacketDiagnosisError, NoPacketPriorEvent, NoPacketOther}

// NoPacketRequest is the body of POST /api/events/:id/no_packet.
type NoPacketRequest struct {
	Reason              string  `json:"no_packet_reason" validate:"notblank"`
	TwoAttempts         *bool   `json:"two_attempts_flag"`
	PriorEventDateKnown *bool   `json:"prior_event_date_known"`
	PriorEventYear      int     `json:"prior_event_year"`
	PriorEventMonth     int     `json:"prior_event_month"`
	PriorEventOnsite    *bool   `json:"prior_event_onsite_flag"`
	OtherCause          *string `json:"other_cause" validate:"omitempty,max=2000"`
}

// NoPacket is what a mark-no-packet stores. Fields that do not apply to the
// reason are nil.
type NoPacket struct {
	Reason           string
	TwoAttempts      *bool
	PriorEventDate   *string
	PriorEventOnsite *bool
	OtherCause       *string
}

// priorEventDate renders "MM-YYYY". An unknown part is zero-filled.
func priorEventDate(year, month int) string {
	y := "0000"
	if year >= 1000 && year <= 9999 {
		y = fmt.Sprintf("%04d", year)
	}
	m := "00"
	if month >= 1 && month <= 12 {
		m = fmt.Sprintf("%02d", month)
	}
	return m + "-" + y
}

// Normalize checks the follow-up answers each reason requires.
func (r *NoPacketRequest) Normalize() (*NoPacket, error) {
	reason := strings.TrimSpace(r.Reason)
	if !oneOf(&reason, noPacketReasons) {
		return nil, apperr.Validationf("no_packet_reason must be one of: %s", strings.Join(noPacketReasons, ", "))
	}
	np := &NoPacket{Reason: reason}

	switch reason {
	case NoPacketOutsideHospital:
		if r.TwoAttempts == nil {
			return nil, apperr.Validation("2 attempts field cannot be blank")
		}
		np.TwoAttempts = r.TwoAttempts
	case NoPacketOther:
		if blank(r.OtherCause) {
			return nil, apperr.Validation("other cause cannot be blank")
		}
		cause := strings.TrimSpace(*r.OtherCause)
		np.OtherCause = &cause
	case NoPacketPriorEvent:
		if r.PriorEventDateKnown == nil {
			return nil, apperr.Validation("prior event date known field cannot be blank")
		}
		if r.PriorEventOnsite == nil {
			return nil, apperr.Validation("prior event onsite field cannot be blank")
		}
		if *r.PriorEventDateKnown {
			d := priorEventDate(r.PriorEventYear, r.PriorEventMonth)
			np.PriorEventDate = &d
		}
		np.PriorEventOnsite = r.PriorEventOnsite
	}
	return np, nil
}
