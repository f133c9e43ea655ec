package event

import (
	"strings"

	"github.com/cnics/mireview/internal/platform/apperr"
)

// MI determinations.
const (
	MCIDefinite = "Definite"
	MCIProbable = "Probable"
	MCINo       = "No"
	MCIRCA      = "No [resuscitated cardiac arrest]"
)

const (
	TypePrimary   = "Primary"
	TypeSecondary = "Secondary"
	causeOther    = "Other"
)

var (
	mciValues        = []string{MCIDefinite, MCIProbable, MCINo, MCIRCA}
	typeValues       = []string{TypePrimary, TypeSecondary}
	ceCriteriaValues = []string{"Standard criteria", "PTCA criteria", "CABG criteria", "Muscle trauma other than PTCA/CABG"}
	secondaryCauses  = []string{
		"MVA", "Overdose", "Anaphlaxis", "GI bleed", "Sepsis/bacteremia", "Procedure related",
		"Arrhythmia", "Cocaine or other illicit drug induced vasospasm",
		"Hypertensive urgency/emergency", "Hypoxia", "Hypotension", "COVID", causeOther,
	}
	falsePositiveReasons = []string{
		"Congestive heart failure", "Myocarditis", "Pericarditis", "Pulmonary embolism",
		"Renal failure", "Severe sepsis/shock", causeOther,
	}
	ciTypes  = []string{"CABG/Surgery", "PCI/Angioplasty", "Stent", "Unknown"}
	ecgTypes = []string{"STEMI", "non-STEMI", "Other/Uninterpretable", "New LBBB", "Normal", "No EKG"}
)

// Review is one reviewer's assessment of an event. Nil flags were left
// unanswered.
type Review struct {
	ID         int64 `json:"id"`
	EventID    int64 `json:"event_id"`
	ReviewerID int64 `json:"reviewer_id"`

	MCI                     string  `json:"mci"`
	AbnormalCEValues        *bool   `json:"abnormal_ce_values_flag"`
	CECriteria              *string `json:"ce_criteria"`
	ChestPain               *bool   `json:"chest_pain_flag"`
	ECGChanges              *bool   `json:"ecg_changes_flag"`
	LVMByImaging            *bool   `json:"lvm_by_imaging_flag"`
	CI                      *bool   `json:"ci"`
	CIType                  *string `json:"ci_type"`
	Type                    *string `json:"type"`
	SecondaryCause          *string `json:"secondary_cause"`
	OtherCause              *string `json:"other_cause"`
	FalsePositive           *bool   `json:"false_positive_flag"`
	FalsePositiveReason     *string `json:"false_positive_reason"`
	FalsePositiveOtherCause *string `json:"false_positive_other_cause"`
	CurrentTobaccoUse       *bool   `json:"current_tobacco_use_flag"`
	PastTobaccoUse          *bool   `json:"past_tobacco_use_flag"`
	CocaineUse              *bool   `json:"cocaine_use_flag"`
	FamilyHistory           *bool   `json:"family_history_flag"`
	ECGType                 *string `json:"ecg_type"`
	CardiacCath             *bool   `json:"cardiac_cath"`
}

func isTrue(b *bool) bool { return b != nil && *b }

func blank(s *string) bool { return s == nil || strings.TrimSpace(*s) == "" }

func oneOf(s *string, allowed []string) bool {
	if s == nil {
		return true
	}
	for _, a := range allowed {
		if *s == a {
			return true
		}
	}
	return false
}

// Normalize checks a submitted review and clears the fields that do not
// apply to its MI determination. MI-negative reviews only record cardiac
// intervention; MI-positive reviews record criteria, type, ECG type, false
// positive assessment and risk factors.
func (r *Review) Normalize() error {
	r.MCI = strings.TrimSpace(r.MCI)
	if r.MCI == "" {
		return apperr.Validation("Myocardial infarction field cannot be blank.")
	}
	if !oneOf(&r.MCI, mciValues) {
		return apperr.Validationf("mci must be one of: %s", strings.Join(mciValues, ", "))
	}
	for _, f := range []struct {
		name    string
		val     *string
		allowed []string
	}{
		{"ce_criteria", r.CECriteria, ceCriteriaValues},
		{"type", r.Type, typeValues},
		{"secondary_cause", r.SecondaryCause, secondaryCauses},
		{"false_positive_reason", r.FalsePositiveReason, falsePositiveReasons},
		{"ci_type", r.CIType, ciTypes},
		{"ecg_type", r.ECGType, ecgTypes},
	} {
		if !blank(f.val) && !oneOf(f.val, f.allowed) {
			return apperr.Validationf("%s has an unknown value %q", f.name, *f.val)
		}
	}

	if r.MCI == MCINo || r.MCI == MCIRCA {
		if err := r.normalizeNegative(); err != nil {
			return err
		}
	} else if err := r.normalizePositive(); err != nil {
		return err
	}

	if r.CardiacCath == nil {
		return apperr.Validation("Cardiac cath cannot be blank.")
	}
	return nil
}

func (r *Review) normalizeNegative() error {
	r.AbnormalCEValues, r.CECriteria, r.ChestPain, r.ECGChanges, r.LVMByImaging = nil, nil, nil, nil, nil
	r.Type, r.SecondaryCause, r.OtherCause = nil, nil, nil
	r.FalsePositive, r.FalsePositiveReason, r.FalsePositiveOtherCause = nil, nil, nil
	r.CurrentTobaccoUse, r.PastTobaccoUse, r.CocaineUse, r.FamilyHistory = nil, nil, nil, nil
	r.ECGType = nil

	if r.CI == nil {
		return apperr.Validation("Cardiac intervention field cannot be blank.")
	}
	if *r.CI && blank(r.CIType) {
		return apperr.Validation("CI type cannot be blank.")
	}
	if !*r.CI {
		r.CIType = nil
	}
	return nil
}

func (r *Review) normalizePositive() error {
	r.CI, r.CIType = nil, nil

	if !isTrue(r.AbnormalCEValues) {
		r.CECriteria = nil
	} else if blank(r.CECriteria) {
		return apperr.Validation("No cardiac enzyme criteria selected.")
	}

	if !isTrue(r.AbnormalCEValues) && !isTrue(r.ChestPain) && !isTrue(r.ECGChanges) && !isTrue(r.LVMByImaging) {
		return apperr.Validation("No criteria identified.")
	}

	switch {
	case blank(r.Type):
		return apperr.Validation("Primary/Secondary field cannot be blank.")
	case *r.Type != TypeSecondary:
		r.SecondaryCause, r.OtherCause = nil, nil
	case blank(r.SecondaryCause):
		return apperr.Validation("Secondary cause cannot be blank.")
	case *r.SecondaryCause != causeOther:
		r.OtherCause = nil
	case blank(r.OtherCause):
		return apperr.Validation("Other cause cannot be blank.")
	}

	if blank(r.ECGType) {
		return apperr.Validation("ECG based type cannot be blank.")
	}

	switch {
	case !isTrue(r.FalsePositive):
		r.FalsePositiveReason, r.FalsePositiveOtherCause = nil, nil
	case blank(r.FalsePositiveReason):
		return apperr.Validation("False positive reason cannot be blank.")
	case *r.FalsePositiveReason != causeOther:
		r.FalsePositiveOtherCause = nil
	case blank(r.FalsePositiveOtherCause):
		return apperr.Validation("False positive Other cause cannot be blank.")
	}

	switch {
	case r.CurrentTobaccoUse == nil:
		return apperr.Validation("Current tobacco use cannot be blank.")
	case !*r.CurrentTobaccoUse && r.PastTobaccoUse == nil:
		return apperr.Validation("Past tobacco use cannot be blank.")
	case r.CocaineUse == nil:
		return apperr.Validation("Cocaine use cannot be blank.")
	case r.FamilyHistory == nil:
		return apperr.Validation("Family history cannot be blank.")
	}
	if *r.CurrentTobaccoUse {
		r.PastTobaccoUse = nil
	}
	return nil
}

func eqBool(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Agrees reports whether two reviews reach the same conclusion: same MI
// determination, cardiac intervention, type and false positive assessment.
func Agrees(a, b *Review) bool {
	return a.MCI == b.MCI &&
		eqBool(a.CI, b.CI) &&
		eqString(a.Type, b.Type) &&
		eqBool(a.FalsePositive, b.FalsePositive) &&
		eqString(a.FalsePositiveReason, b.FalsePositiveReason)
}
