package event

import (
	"strings"

	"github.com/cnics/mireview/internal/platform/apperr"
)

// Decision is the outcome of screening a scrubbed packet.
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionRescrub Decision = "rescrub"
	DecisionReject  Decision = "reject"
)

// ParseDecision accepts the canonical names and the labels used by the
// screening form.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accept":
		return DecisionAccept, nil
	case "rescrub", "needs rescrubbing":
		return DecisionRescrub, nil
	case "reject":
		return DecisionReject, nil
	}
	return "", apperr.Validationf("decision must be one of accept, rescrub, reject; got %q", s)
}
