package patient

import "time"

// Patient is keyed externally by (site_patient_id, site).
type Patient struct {
	ID            int64      `json:"id"`
	SitePatientID string     `json:"site_patient_id"`
	Site          string     `json:"site"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}
