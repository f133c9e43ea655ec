package event

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// Status is the workflow position stored in events.status.
type Status string

const (
	StatusCreated             Status = "created"
	StatusUploaded            Status = "uploaded"
	StatusScrubbed            Status = "scrubbed"
	StatusScreened            Status = "screened"
	StatusAssigned            Status = "assigned"
	StatusSent                Status = "sent"
	StatusReviewer1Done       Status = "reviewer1_done"
	StatusReviewer2Done       Status = "reviewer2_done"
	StatusThirdReviewNeeded   Status = "third_review_needed"
	StatusThirdReviewAssigned Status = "third_review_assigned"
	StatusDone                Status = "done"
	StatusRejected            Status = "rejected"
	StatusNoPacketAvailable   Status = "no_packet_available"
)

// AllStatuses lists every status in workflow order.
var AllStatuses = []Status{
	StatusCreated, StatusUploaded, StatusScrubbed, StatusScreened, StatusAssigned,
	StatusSent, StatusReviewer1Done, StatusReviewer2Done, StatusThirdReviewNeeded,
	StatusThirdReviewAssigned, StatusDone, StatusRejected, StatusNoPacketAvailable,
}

// Event is one row of the events table.
type Event struct {
	ID         int64  `json:"id"`
	PatientID  int64  `json:"patient_id"`
	CreatorID  int64  `json:"creator_id"`
	Status     Status `json:"status"`
	FileNumber *int64 `json:"file_number"`

	OriginalName *string `json:"original_name"`

	UploaderID    *int64 `json:"uploader_id"`
	MarkerID      *int64 `json:"marker_id"`
	ScrubberID    *int64 `json:"scrubber_id"`
	ScreenerID    *int64 `json:"screener_id"`
	AssignerID    *int64 `json:"assigner_id"`
	SenderID      *int64 `json:"sender_id"`
	Reviewer1ID   *int64 `json:"reviewer1_id"`
	Reviewer2ID   *int64 `json:"reviewer2_id"`
	Assigner3rdID *int64 `json:"assigner3rd_id"`
	Reviewer3ID   *int64 `json:"reviewer3_id"`

	RescrubMessage       *string `json:"rescrub_message"`
	RejectMessage        *string `json:"reject_message"`
	NoPacketReason       *string `json:"no_packet_reason"`
	TwoAttemptsFlag      *bool   `json:"two_attempts_flag"`
	PriorEventDate       *string `json:"prior_event_date"`
	PriorEventOnsiteFlag *bool   `json:"prior_event_onsite_flag"`
	OtherCause           *string `json:"other_cause"`

	AddDate          pgtype.Date `json:"add_date"`
	EventDate        pgtype.Date `json:"event_date"`
	UploadDate       pgtype.Date `json:"upload_date"`
	MarkNoPacketDate pgtype.Date `json:"mark_no_packet_date"`
	ScrubDate        pgtype.Date `json:"scrub_date"`
	ScreenDate       pgtype.Date `json:"screen_date"`
	AssignDate       pgtype.Date `json:"assign_date"`
	SendDate         pgtype.Date `json:"send_date"`
	Review1Date      pgtype.Date `json:"review1_date"`
	Review2Date      pgtype.Date `json:"review2_date"`
	Assign3rdDate    pgtype.Date `json:"assign3rd_date"`
	Review3Date      pgtype.Date `json:"review3_date"`
}

// ListRow is one event in a phase listing.
type ListRow struct {
	ID            int64       `json:"id"`
	PatientID     int64       `json:"patient_id"`
	Site          string      `json:"site"`
	SitePatientID string      `json:"site_patient_id"`
	Status        Status      `json:"status"`
	EventDate     pgtype.Date `json:"event_date"`
	AddDate       pgtype.Date `json:"add_date"`
	UploadDate    pgtype.Date `json:"upload_date"`
	ScrubDate     pgtype.Date `json:"scrub_date"`
	ScreenDate    pgtype.Date `json:"screen_date"`
	AssignDate    pgtype.Date `json:"assign_date"`
	SendDate      pgtype.Date `json:"send_date"`
	// Criteria holds the event's criterion names, sorted and
	// comma-separated.
	Criteria string `json:"criteria"`
}

// Details is an event with its patient and every actor resolved to a
// username.
type Details struct {
	Event
	Site                string  `json:"site"`
	SitePatientID       string  `json:"site_patient_id"`
	CreatorUsername     *string `json:"creator_username"`
	UploaderUsername    *string `json:"uploader_username"`
	ScrubberUsername    *string `json:"scrubber_username"`
	ScreenerUsername    *string `json:"screener_username"`
	AssignerUsername    *string `json:"assigner_username"`
	SenderUsername      *string `json:"sender_username"`
	Reviewer1Username   *string `json:"reviewer1_username"`
	Reviewer2Username   *string `json:"reviewer2_username"`
	Assigner3rdUsername *string `json:"assigner3rd_username"`
	Reviewer3Username   *string `json:"reviewer3_username"`

	Criteria      []Criterion    `json:"criteria"`
	Solicitations []Solicitation `json:"solicitations"`
}

type Criterion struct {
	ID      int64  `json:"id"`
	EventID int64  `json:"event_id"`
	Name    string `json:"name"`
	Value   string `json:"value"`
}

type Solicitation struct {
	ID      int64       `json:"id"`
	EventID int64       `json:"event_id"`
	Date    pgtype.Date `json:"date"`
	Contact string      `json:"contact"`
}

// DerivedData is the adjudicated outcome, written outside this service.
type DerivedData struct {
	EventID             int64   `json:"event_id"`
	Outcome             *string `json:"outcome"`
	PrimarySecondary    *string `json:"primary_secondary"`
	FalsePositiveEvent  *bool   `json:"false_positive_event"`
	SecondaryCause      *string `json:"secondary_cause"`
	SecondaryCauseOther *string `json:"secondary_cause_other"`
	FalsePositiveReason *string `json:"false_positive_reason"`
	CI                  *bool   `json:"ci"`
	CIType              *string `json:"ci_type"`
	ECGType             *string `json:"ecg_type"`
}

// AwaitingRow is an event waiting on a reviewer, with the slot they owe.
type AwaitingRow struct {
	ListRow
	Slot int `json:"slot"`
}

// StatusSummary counts events per status plus the overall total.
type StatusSummary map[string]int
