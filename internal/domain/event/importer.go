package event

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cnics/mireview/internal/platform/apperr"
)

// ImportResult reports a CSV import line by line. Line numbers start at 1.
type ImportResult struct {
	Saved           int           `json:"saved"`
	EventIDs        []int64       `json:"event_ids"`
	MissingData     []int         `json:"missing_data"`
	NotFound        []MissingLine `json:"not_found"`
	CriteriaProblem []int         `json:"criteria_problem"`
}

// MissingLine is a line whose patient could not be resolved.
type MissingLine struct {
	Line          int    `json:"line"`
	SitePatientID string `json:"site_patient_id"`
	Site          string `json:"site"`
}

type importLine struct {
	sitePatientID string
	site          string
	rawDate       string
	criteria      []Criterion
}

// parseImportLine splits a record into the patient key, the date and the
// trailing name,value criterion pairs.
func parseImportLine(rec []string) (importLine, bool) {
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}
	l := importLine{}
	if len(rec) > 0 {
		l.sitePatientID = rec[0]
	}
	if len(rec) > 1 {
		l.site = rec[1]
	}
	if len(rec) > 2 {
		l.rawDate = rec[2]
	}
	if len(rec) <= 3 {
		return l, true
	}
	pairs := rec[3:]
	if len(pairs)%2 != 0 {
		return l, false
	}
	for i := 0; i < len(pairs); i += 2 {
		name, value := pairs[i], pairs[i+1]
		if name == "" && value == "" {
			continue
		}
		if checkCriterion(name, value) != nil {
			return l, false
		}
		l.criteria = append(l.criteria, Criterion{Name: name, Value: value})
	}
	return l, true
}

// ImportEvents creates one event per CSV line of
// site_patient_id,site,event_date[,name,value...]. Bad lines are reported
// and skipped; store failures abort the import.
func (s *Service) ImportEvents(ctx context.Context, r io.Reader, creatorID int64) (*ImportResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	res := &ImportResult{EventIDs: []int64{}, MissingData: []int{}, NotFound: []MissingLine{}, CriteriaProblem: []int{}}
	lineNo := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		lineNo++
		if err != nil {
			return nil, apperr.Validationf("line %d: %v", lineNo, err)
		}

		l, ok := parseImportLine(rec)
		if l.sitePatientID == "" || l.site == "" || l.rawDate == "" {
			res.MissingData = append(res.MissingData, lineNo)
			continue
		}
		if !ok {
			res.CriteriaProblem = append(res.CriteriaProblem, lineNo)
			continue
		}
		norm, ok := NormalizeQueryDate(l.rawDate)
		if !ok {
			res.MissingData = append(res.MissingData, lineNo)
			continue
		}
		eventDate, err := parseEventDate(norm)
		if err != nil {
			res.MissingData = append(res.MissingData, lineNo)
			continue
		}

		e, err := s.insert(ctx, l.sitePatientID, l.site, eventDate, creatorID, l.criteria)
		switch {
		case err == nil:
			res.Saved++
			res.EventIDs = append(res.EventIDs, e.ID)
		case apperr.KindOf(err) == apperr.KindValidation:
			res.NotFound = append(res.NotFound, MissingLine{Line: lineNo, SitePatientID: l.sitePatientID, Site: l.site})
		default:
			return nil, fmt.Errorf("import line %d: %w", lineNo, err)
		}
	}

	s.metrics.transition("create", res.Saved)
	s.logger.Info().Int64("creator_id", creatorID).Int("lines", lineNo).Int("saved", res.Saved).
		Int("missing_data", len(res.MissingData)).Int("not_found", len(res.NotFound)).
		Int("criteria_problem", len(res.CriteriaProblem)).Msg("events imported")
	return res, nil
}
