package event

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgtype"
)

// ErrNotFound is returned by the repository when no event has the id.
var ErrNotFound = errors.New("event not found")

// SentEvent is an event updated by Send, with the reviewers to notify.
type SentEvent struct {
	ID          int64
	Reviewer1ID *int64
	Reviewer2ID *int64
}

// Repository defines the persistence interface for events and their child
// rows. Mutating methods run on whatever transaction the context carries.
type Repository interface {
	List(ctx context.Context, lq ListQuery) ([]*ListRow, int, error)
	Details(ctx context.Context, id int64) (*Details, error)
	Export(ctx context.Context) ([]ExportRecord, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	AwaitingReview(ctx context.Context, userID int64, q string) ([]*AwaitingRow, error)
	AwaitingUpload(ctx context.Context, site string, status Status) ([]*ListRow, error)
	Criteria(ctx context.Context, eventID int64) ([]Criterion, error)
	Solicitations(ctx context.Context, eventID int64) ([]Solicitation, error)

	Get(ctx context.Context, id int64) (*Event, error)
	// GetForUpdate reads the event and locks its row until the enclosing
	// transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*Event, error)
	Create(ctx context.Context, e *Event) error
	Update(ctx context.Context, id int64, eventDate *pgtype.Date, patientID *int64) error
	AddCriterion(ctx context.Context, c *Criterion) error
	AddSolicitation(ctx context.Context, s *Solicitation) error

	MarkUploaded(ctx context.Context, id, uploaderID, fileNumber int64, originalName string, on pgtype.Date) error
	MarkNoPacket(ctx context.Context, id, markerID int64, np *NoPacket, on pgtype.Date) error
	MarkScrubbed(ctx context.Context, id, scrubberID, fileNumber int64, on pgtype.Date) error
	Screen(ctx context.Context, id int64, d Decision, screenerID int64, message *string, on pgtype.Date) error
	// Assign updates the events in ids that are eligible for the slot and
	// returns the ids it touched. Unknown ids, events in another phase and
	// events where the reviewer already holds another slot are skipped.
	Assign(ctx context.Context, ids []int64, slot Slot, reviewerID, assignerID int64, on pgtype.Date) ([]int64, error)
	// Send moves assigned events to sent. Other ids are skipped.
	Send(ctx context.Context, ids []int64, senderID int64, on pgtype.Date) ([]SentEvent, error)

	AddReview(ctx context.Context, r *Review) error
	ReviewBy(ctx context.Context, eventID, reviewerID int64) (*Review, error)
	RecordReview(ctx context.Context, id int64, slot Slot, status Status, on pgtype.Date) error
}
