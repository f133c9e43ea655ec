package event

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/cnics/mireview/internal/platform/validate"
)

// criterionColumns maps lower-cased criterion names onto fixed export
// columns. The match is a heuristic: names outside this table land in the
// "other" column, and several spellings collapse into one column.
var criterionColumns = map[string]string{
	"mi_dx":                       "mi_dx",
	"mi dx":                       "mi_dx",
	"diagnosis":                   "mi_dx",
	"dx":                          "mi_dx",
	"ckmb":                        "ckmb",
	"troponin":                    "troponin",
	"troponin t":                  "troponin_t",
	"trop_t":                      "troponin_t",
	"troponin t (tnt)":            "troponin_t",
	"troponin i":                  "troponin_i",
	"trop_i":                      "troponin_i",
	"troponin i (tni)":            "troponin_i",
	"ckmb_q":                      "ckmb_q",
	"creatine kinase mb quotient": "ckmb_q",
	"ckmb_m":                      "ckmb_m",
	"creatine kinase mb mass":     "ckmb_m",
}

var pivotColumns = []string{"mi_dx", "ckmb", "troponin", "troponin_t", "troponin_i", "ckmb_q", "ckmb_m", "other"}

// IsCriterionName reports whether s is one of the known criterion names.
func IsCriterionName(s string) bool {
	_, ok := criterionColumns[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// PivotCriteria spreads criteria across the fixed columns. Repeated values
// for one column and all unknown names are joined with ";".
func PivotCriteria(criteria []Criterion) map[string]string {
	out := make(map[string]string, len(pivotColumns))
	add := func(col, v string) {
		if out[col] == "" {
			out[col] = v
			return
		}
		out[col] += ";" + v
	}
	for _, c := range criteria {
		if col, ok := criterionColumns[strings.ToLower(strings.TrimSpace(c.Name))]; ok {
			add(col, c.Value)
			continue
		}
		add("other", c.Name+":"+c.Value)
	}
	return out
}

// ExportRecord is one flat export row.
type ExportRecord struct {
	Details
	Reviews  [3]*Review
	Derived  *DerivedData
	Criteria map[string]string
}

// assembleExport joins the export inputs in memory. Reviews are matched to
// slots by reviewer id.
func assembleExport(details []*Details, reviews []*Review, derived []*DerivedData, criteria []Criterion) []ExportRecord {
	byEvent := make(map[int64][]*Review)
	for _, r := range reviews {
		byEvent[r.EventID] = append(byEvent[r.EventID], r)
	}
	derivedBy := make(map[int64]*DerivedData, len(derived))
	for _, d := range derived {
		derivedBy[d.EventID] = d
	}
	critBy := make(map[int64][]Criterion)
	for _, c := range criteria {
		critBy[c.EventID] = append(critBy[c.EventID], c)
	}

	out := make([]ExportRecord, 0, len(details))
	for _, d := range details {
		rec := ExportRecord{Details: *d, Derived: derivedBy[d.ID], Criteria: PivotCriteria(critBy[d.ID])}
		for slot, rid := range []*int64{d.Reviewer1ID, d.Reviewer2ID, d.Reviewer3ID} {
			if rid == nil {
				continue
			}
			for _, r := range byEvent[d.ID] {
				if r.ReviewerID == *rid {
					rec.Reviews[slot] = r
					break
				}
			}
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var reviewColumns = []string{
	"mci", "abnormal_ce_values_flag", "ce_criteria", "chest_pain_flag", "ecg_changes_flag",
	"lvm_by_imaging_flag", "ci", "ci_type", "type", "secondary_cause", "other_cause",
	"false_positive_flag", "false_positive_reason", "false_positive_other_cause",
	"current_tobacco_use_flag", "past_tobacco_use_flag", "cocaine_use_flag",
	"family_history_flag", "ecg_type", "cardiac_cath",
}

var derivedColumns = []string{
	"outcome", "primary_secondary", "false_positive_event", "secondary_cause",
	"secondary_cause_other", "false_positive_reason", "ci", "ci_type", "ecg_type",
}

func exportHeader() []string {
	h := []string{
		"id", "site", "site_patient_id", "status", "event_date", "add_date",
		"creator", "uploader", "upload_date", "scrubber", "scrub_date", "screener", "screen_date",
		"assigner", "assign_date", "sender", "send_date",
		"reviewer1", "review1_date", "reviewer2", "review2_date",
		"assigner3rd", "assign3rd_date", "reviewer3", "review3_date",
		"rescrub_message", "reject_message", "no_packet_reason",
	}
	for slot := 1; slot <= 3; slot++ {
		for _, c := range reviewColumns {
			h = append(h, "review"+strconv.Itoa(slot)+"_"+c)
		}
	}
	for _, c := range derivedColumns {
		h = append(h, "outcome_"+c)
	}
	for _, c := range pivotColumns {
		h = append(h, "criteria_"+c)
	}
	return h
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func flag(b *bool) string {
	if b == nil {
		return ""
	}
	if *b {
		return "1"
	}
	return "0"
}

func day(d pgtype.Date) string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format(validate.DateLayout)
}

func reviewCells(r *Review) []string {
	if r == nil {
		return make([]string, len(reviewColumns))
	}
	return []string{
		r.MCI, flag(r.AbnormalCEValues), str(r.CECriteria), flag(r.ChestPain), flag(r.ECGChanges),
		flag(r.LVMByImaging), flag(r.CI), str(r.CIType), str(r.Type), str(r.SecondaryCause), str(r.OtherCause),
		flag(r.FalsePositive), str(r.FalsePositiveReason), str(r.FalsePositiveOtherCause),
		flag(r.CurrentTobaccoUse), flag(r.PastTobaccoUse), flag(r.CocaineUse),
		flag(r.FamilyHistory), str(r.ECGType), flag(r.CardiacCath),
	}
}

func derivedCells(d *DerivedData) []string {
	if d == nil {
		return make([]string, len(derivedColumns))
	}
	return []string{
		str(d.Outcome), str(d.PrimarySecondary), flag(d.FalsePositiveEvent), str(d.SecondaryCause),
		str(d.SecondaryCauseOther), str(d.FalsePositiveReason), flag(d.CI), str(d.CIType), str(d.ECGType),
	}
}

func (rec *ExportRecord) cells() []string {
	row := []string{
		strconv.FormatInt(rec.ID, 10), rec.Site, rec.SitePatientID, string(rec.Status),
		day(rec.EventDate), day(rec.AddDate),
		str(rec.CreatorUsername), str(rec.UploaderUsername), day(rec.UploadDate),
		str(rec.ScrubberUsername), day(rec.ScrubDate), str(rec.ScreenerUsername), day(rec.ScreenDate),
		str(rec.AssignerUsername), day(rec.AssignDate), str(rec.SenderUsername), day(rec.SendDate),
		str(rec.Reviewer1Username), day(rec.Review1Date), str(rec.Reviewer2Username), day(rec.Review2Date),
		str(rec.Assigner3rdUsername), day(rec.Assign3rdDate), str(rec.Reviewer3Username), day(rec.Review3Date),
		str(rec.RescrubMessage), str(rec.RejectMessage), str(rec.NoPacketReason),
	}
	for _, r := range rec.Reviews {
		row = append(row, reviewCells(r)...)
	}
	row = append(row, derivedCells(rec.Derived)...)
	for _, c := range pivotColumns {
		row = append(row, rec.Criteria[c])
	}
	return row
}

// WriteCSV renders records with a header row.
func WriteCSV(w io.Writer, records []ExportRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader()); err != nil {
		return err
	}
	for i := range records {
		if err := cw.Write(records[i].cells()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
