package event

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/cnics/mireview/internal/domain/patient"
	"github.com/cnics/mireview/internal/platform/apperr"
	"github.com/cnics/mireview/internal/platform/auth"
	"github.com/cnics/mireview/internal/platform/blobstore"
	"github.com/cnics/mireview/internal/platform/db"
	"github.com/cnics/mireview/internal/platform/notify"
)

// PatientResolver finds the patient an event belongs to, creating it when
// the patient store allows.
type PatientResolver interface {
	FindOrCreate(ctx context.Context, sitePatientID, site string) (*patient.Patient, error)
}

// UserDirectory resolves reviewer ids.
type UserDirectory interface {
	IdentityByID(ctx context.Context, id int64) (*auth.Identity, error)
}

// Service implements the event queries and workflow transitions.
type Service struct {
	events   Repository
	tx       db.Transactor
	patients PatientResolver
	users    UserDirectory
	packets  blobstore.Store
	notifier notify.Publisher
	metrics  *Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(events Repository, tx db.Transactor, patients PatientResolver, users UserDirectory, packets blobstore.Store, logger zerolog.Logger) *Service {
	return &Service{
		events:   events,
		tx:       tx,
		patients: patients,
		users:    users,
		packets:  packets,
		notifier: notify.Nop{},
		logger:   logger,
		now:      time.Now,
	}
}

// SetPublisher sets where workflow notifications go. The default drops them.
func (s *Service) SetPublisher(p notify.Publisher) {
	s.notifier = p
}

func (s *Service) SetMetrics(m *Metrics) {
	s.metrics = m
}

func (s *Service) today() pgtype.Date {
	return dateOf(s.now())
}

func translate(err error, id int64) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFoundf("event %d not found", id)
	}
	return err
}

// List returns one page of a phase listing and the total matching count.
func (s *Service) List(ctx context.Context, lq ListQuery) ([]*ListRow, int, error) {
	if _, ok := phases[lq.Phase]; !ok {
		return nil, 0, apperr.Validationf("unknown phase %q", lq.Phase)
	}
	rows, total, err := s.events.List(ctx, lq)
	if err != nil {
		return nil, 0, err
	}
	if rows == nil {
		rows = []*ListRow{}
	}
	return rows, total, nil
}

func (s *Service) Details(ctx context.Context, id int64) (*Details, error) {
	d, err := s.events.Details(ctx, id)
	if err != nil {
		return nil, translate(err, id)
	}
	return d, nil
}

func (s *Service) Export(ctx context.Context) ([]ExportRecord, error) {
	return s.events.Export(ctx)
}

// StatusSummary counts events in every status, zero included, plus total.
func (s *Service) StatusSummary(ctx context.Context) (StatusSummary, error) {
	counts, err := s.events.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := make(StatusSummary, len(AllStatuses)+1)
	total := 0
	for _, st := range AllStatuses {
		out[string(st)] = counts[st]
	}
	for _, n := range counts {
		total += n
	}
	out["total"] = total
	return out, nil
}

func (s *Service) AwaitingReview(ctx context.Context, userID int64, q string) ([]*AwaitingRow, error) {
	rows, err := s.events.AwaitingReview(ctx, userID, q)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []*AwaitingRow{}
	}
	return rows, nil
}

// UploadQueue is an uploader's work list.
type UploadQueue struct {
	AwaitingUpload   []*ListRow `json:"awaiting_upload"`
	PossibleReupload []*ListRow `json:"possible_reupload"`
}

func (s *Service) AwaitingUpload(ctx context.Context, site string) (*UploadQueue, error) {
	site = strings.TrimSpace(site)
	if site == "" {
		return nil, apperr.Validation("site is required")
	}
	created, err := s.events.AwaitingUpload(ctx, site, StatusCreated)
	if err != nil {
		return nil, err
	}
	uploaded, err := s.events.AwaitingUpload(ctx, site, StatusUploaded)
	if err != nil {
		return nil, err
	}
	q := &UploadQueue{AwaitingUpload: created, PossibleReupload: uploaded}
	if q.AwaitingUpload == nil {
		q.AwaitingUpload = []*ListRow{}
	}
	if q.PossibleReupload == nil {
		q.PossibleReupload = []*ListRow{}
	}
	return q, nil
}

// CreateRequest adds one event with an optional first criterion.
type CreateRequest struct {
	SitePatientID  string `json:"site_patient_id" validate:"max=255"`
	Site           string `json:"site" validate:"max=255"`
	EventDate      string `json:"event_date" validate:"max=32"`
	CriterionName  string `json:"criteria_name" validate:"max=255"`
	CriterionValue string `json:"criteria_value" validate:"max=255"`
}

// Created is the result of CreateEvent.
type Created struct {
	ID        int64       `json:"id"`
	PatientID int64       `json:"patient_id"`
	EventDate pgtype.Date `json:"event_date"`
}

func parseEventDate(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, apperr.Validation("event_date is required")
	}
	t, ok := parseDate(raw)
	if !ok {
		return time.Time{}, apperr.Validation("event_date must be YYYY-MM-DD")
	}
	if t.Before(earliestEventDate) {
		return time.Time{}, apperr.Validation("event_date must not be before 1970-01-01")
	}
	return t, nil
}

func checkCriterion(name, value string) error {
	if name == "" || value == "" {
		return apperr.Validation("criteria name and value are both required")
	}
	if IsCriterionName(value) {
		return apperr.Validationf("criteria value %q is a criteria name", value)
	}
	return nil
}

// CreateEvent validates the request before touching any store, resolves the
// patient, then inserts the event and its criterion in one transaction. The
// patient write is outside that transaction.
func (s *Service) CreateEvent(ctx context.Context, req *CreateRequest, creatorID int64) (*Created, error) {
	sitePatientID := strings.TrimSpace(req.SitePatientID)
	site := strings.TrimSpace(req.Site)
	if sitePatientID == "" || site == "" {
		return nil, apperr.Validation("site_patient_id and site are required")
	}
	eventDate, err := parseEventDate(req.EventDate)
	if err != nil {
		return nil, err
	}
	var criteria []Criterion
	name, value := strings.TrimSpace(req.CriterionName), strings.TrimSpace(req.CriterionValue)
	if name != "" || value != "" {
		if err := checkCriterion(name, value); err != nil {
			return nil, err
		}
		criteria = append(criteria, Criterion{Name: name, Value: value})
	}

	e, err := s.insert(ctx, sitePatientID, site, eventDate, creatorID, criteria)
	if err != nil {
		return nil, err
	}
	s.metrics.transition("create", 1)
	s.logger.Info().Int64("event_id", e.ID).Int64("creator_id", creatorID).Msg("event created")
	return &Created{ID: e.ID, PatientID: e.PatientID, EventDate: e.EventDate}, nil
}

func (s *Service) insert(ctx context.Context, sitePatientID, site string, eventDate time.Time, creatorID int64, criteria []Criterion) (*Event, error) {
	p, err := s.patients.FindOrCreate(ctx, sitePatientID, site)
	if err != nil {
		return nil, err
	}
	e := &Event{
		PatientID: p.ID,
		CreatorID: creatorID,
		Status:    StatusCreated,
		AddDate:   s.today(),
		EventDate: dateOf(eventDate),
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.events.Create(ctx, e); err != nil {
			return fmt.Errorf("create event: %w", err)
		}
		for i := range criteria {
			criteria[i].EventID = e.ID
			if err := s.events.AddCriterion(ctx, &criteria[i]); err != nil {
				return fmt.Errorf("add criterion: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateRequest changes an event's date or moves it to another patient.
type UpdateRequest struct {
	EventDate     *string `json:"event_date" validate:"omitempty,max=32"`
	SitePatientID *string `json:"site_patient_id" validate:"omitempty,max=255"`
	Site          *string `json:"site" validate:"omitempty,max=255"`
}

func (s *Service) UpdateEvent(ctx context.Context, id int64, req *UpdateRequest) (*Details, error) {
	if _, err := s.events.Get(ctx, id); err != nil {
		return nil, translate(err, id)
	}

	var eventDate *pgtype.Date
	if req.EventDate != nil {
		t, err := parseEventDate(*req.EventDate)
		if err != nil {
			return nil, err
		}
		d := dateOf(t)
		eventDate = &d
	}

	var patientID *int64
	if req.SitePatientID != nil || req.Site != nil {
		if req.SitePatientID == nil || req.Site == nil {
			return nil, apperr.Validation("site_patient_id and site must be given together")
		}
		p, err := s.patients.FindOrCreate(ctx, *req.SitePatientID, *req.Site)
		if err != nil {
			return nil, err
		}
		patientID = &p.ID
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.events.Update(ctx, id, eventDate, patientID)
	})
	if err != nil {
		return nil, translate(err, id)
	}
	return s.Details(ctx, id)
}

func (s *Service) Criteria(ctx context.Context, eventID int64) ([]Criterion, error) {
	if _, err := s.events.Get(ctx, eventID); err != nil {
		return nil, translate(err, eventID)
	}
	return s.events.Criteria(ctx, eventID)
}

func (s *Service) AddCriterion(ctx context.Context, eventID int64, name, value string) (*Criterion, error) {
	c := &Criterion{EventID: eventID, Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)}
	if c.Name == "" || c.Value == "" {
		return nil, apperr.Validation("criteria name and value are both required")
	}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.events.GetForUpdate(ctx, eventID); err != nil {
			return translate(err, eventID)
		}
		return s.events.AddCriterion(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Solicitations(ctx context.Context, eventID int64) ([]Solicitation, error) {
	if _, err := s.events.Get(ctx, eventID); err != nil {
		return nil, translate(err, eventID)
	}
	return s.events.Solicitations(ctx, eventID)
}

func (s *Service) AddSolicitation(ctx context.Context, eventID int64, date, contact string) (*Solicitation, error) {
	contact = strings.TrimSpace(contact)
	if strings.TrimSpace(date) == "" || contact == "" {
		return nil, apperr.Validation("date and contact are both required")
	}
	t, ok := parseDate(date)
	if !ok {
		return nil, apperr.Validation("date must be YYYY-MM-DD")
	}
	sol := &Solicitation{EventID: eventID, Date: dateOf(t), Contact: contact}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.events.GetForUpdate(ctx, eventID); err != nil {
			return translate(err, eventID)
		}
		return s.events.AddSolicitation(ctx, sol)
	})
	if err != nil {
		return nil, err
	}
	return sol, nil
}

// Upload is a received packet file.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

func (u Upload) suffix() (string, error) {
	suffix, ok := blobstore.SuffixFor(u.ContentType)
	if !ok {
		return "", apperr.Validationf("unsupported file type %q", u.ContentType)
	}
	if u.Size > blobstore.MaxFileSize {
		return "", apperr.Validation(blobstore.ErrTooLarge.Error())
	}
	return suffix, nil
}

func newFileNumber() int64 {
	return rand.Int63n(1_000_000_000) + 1
}

// unusedName picks a random file number whose packet name is not taken yet.
func (s *Service) unusedName(ctx context.Context, kind string, id int64, suffix string) (string, int64, error) {
	for i := 0; i < 5; i++ {
		n := newFileNumber()
		name := fmt.Sprintf("%s_%d_%d%s", kind, id, n, suffix)
		taken, err := s.packets.Exists(ctx, name)
		if err != nil {
			return "", 0, apperr.Unavailable("packet storage unavailable", err)
		}
		if !taken {
			return name, n, nil
		}
	}
	return "", 0, apperr.Unavailable("packet storage unavailable", fmt.Errorf("no unused file number for event %d", id))
}

func (s *Service) store(ctx context.Context, name string, body io.Reader) error {
	err := s.packets.Save(ctx, name, body)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, blobstore.ErrTooLarge):
		return apperr.Validation(err.Error())
	}
	return apperr.Unavailable("packet storage unavailable", err)
}

// UploadPacket stores a site's raw chart packet. Replacing an existing
// packet needs confirm. Callers without the admin capability may only
// upload for patients at their own site.
func (s *Service) UploadPacket(ctx context.Context, id int64, actor *auth.Identity, f Upload, confirm bool) (*Event, error) {
	suffix, err := f.suffix()
	if err != nil {
		return nil, err
	}
	d, err := s.events.Details(ctx, id)
	if err != nil {
		return nil, translate(err, id)
	}
	switch d.Status {
	case StatusCreated:
	case StatusUploaded:
		if !confirm {
			return nil, apperr.Validationf("event %d already has a packet; resend with confirm=true to replace it", id)
		}
	default:
		return nil, apperr.Validationf("event %d is %s; packets can only be uploaded before scrubbing", id, d.Status)
	}
	if err := checkSite(actor, d); err != nil {
		return nil, err
	}

	name, n, err := s.unusedName(ctx, "orig", id, suffix)
	if err != nil {
		return nil, err
	}
	if err := s.store(ctx, name, f.Body); err != nil {
		return nil, err
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.events.MarkUploaded(ctx, id, actor.UserID, n, f.Filename, s.today())
	})
	if err != nil {
		return nil, translate(err, id)
	}
	s.metrics.transition("upload", 1)
	s.logger.Info().Int64("event_id", id).Int64("actor_id", actor.UserID).Int64("file_number", n).Msg("packet uploaded")
	return s.events.Get(ctx, id)
}

func checkSite(actor *auth.Identity, d *Details) error {
	if !actor.Has(auth.CapAdmin) && actor.Site != d.Site {
		return apperr.Forbidden(fmt.Sprintf("event %d belongs to site %s", d.ID, d.Site))
	}
	return nil
}

// MarkNoPacket records that a site has no chart packet to send for the
// event. It closes the event without review.
func (s *Service) MarkNoPacket(ctx context.Context, id int64, actor *auth.Identity, req *NoPacketRequest) (*Event, error) {
	np, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	d, err := s.events.Details(ctx, id)
	if err != nil {
		return nil, translate(err, id)
	}
	if d.Status != StatusCreated && d.Status != StatusUploaded {
		return nil, apperr.Validationf("event %d is %s; only events awaiting a packet can be marked as having none", id, d.Status)
	}
	if err := checkSite(actor, d); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.events.MarkNoPacket(ctx, id, actor.UserID, np, s.today())
	})
	if err != nil {
		return nil, translate(err, id)
	}
	s.metrics.transition("no_packet", 1)
	s.logger.Info().Int64("event_id", id).Int64("actor_id", actor.UserID).Str("reason", np.Reason).Msg("event marked as having no packet")
	return s.events.Get(ctx, id)
}

// UploadScrubbed stores the de-identified packet under the event's file
// number.
func (s *Service) UploadScrubbed(ctx context.Context, id, scrubberID int64, f Upload) (*Event, error) {
	suffix, err := f.suffix()
	if err != nil {
		return nil, err
	}
	e, err := s.events.Get(ctx, id)
	if err != nil {
		return nil, translate(err, id)
	}
	if e.Status != StatusUploaded && e.Status != StatusScrubbed {
		return nil, apperr.Validationf("event %d is %s; only uploaded packets can be scrubbed", id, e.Status)
	}

	var name string
	var n int64
	if e.FileNumber != nil {
		n = *e.FileNumber
		name = fmt.Sprintf("clean_%d_%d%s", id, n, suffix)
	} else if name, n, err = s.unusedName(ctx, "clean", id, suffix); err != nil {
		return nil, err
	}
	if err := s.store(ctx, name, f.Body); err != nil {
		return nil, err
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.events.MarkScrubbed(ctx, id, scrubberID, n, s.today())
	})
	if err != nil {
		return nil, translate(err, id)
	}
	s.metrics.transition("scrub", 1)
	s.logger.Info().Int64("event_id", id).Int64("actor_id", scrubberID).Msg("scrubbed packet uploaded")
	return s.events.Get(ctx, id)
}

// Screen records the screening decision for a scrubbed packet.
func (s *Service) Screen(ctx context.Context, id int64, decision string, message *string, screenerID int64) (*Event, error) {
	d, err := ParseDecision(decision)
	if err != nil {
		return nil, err
	}
	if message != nil {
		m := strings.TrimSpace(*message)
		message = &m
	}
	var e *Event
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.events.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if err := s.events.Screen(ctx, id, d, screenerID, message, s.today()); err != nil {
			return err
		}
		e, err = s.events.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, translate(err, id)
	}
	s.metrics.transition("screen_"+string(d), 1)
	s.logger.Info().Int64("event_id", id).Int64("actor_id", screenerID).Str("decision", string(d)).Msg("packet screened")
	return e, nil
}

// AssignRequest assigns one reviewer to a slot on many events.
type AssignRequest struct {
	EventIDs   []int64 `json:"event_ids"`
	ReviewerID int64   `json:"reviewer_id"`
	Slot       string  `json:"slot"`
}

// Assign sets the slot's reviewer on the requested events that are eligible
// for the slot and returns how many were updated. Unknown ids, events in
// another phase and events the reviewer already holds a slot on are skipped.
func (s *Service) Assign(ctx context.Context, req *AssignRequest, assignerID int64) (int, error) {
	slot, err := ParseSlot(req.Slot)
	if err != nil {
		return 0, err
	}
	if len(req.EventIDs) == 0 {
		return 0, apperr.Validation("event_ids is required")
	}
	reviewer, err := s.users.IdentityByID(ctx, req.ReviewerID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return 0, apperr.Validationf("reviewer %d not found", req.ReviewerID)
	}
	if err != nil {
		return 0, err
	}
	need := auth.CapReviewer
	if slot == SlotThird {
		need = auth.CapThirdReviewer
	}
	if !reviewer.Has(need) {
		return 0, apperr.Validationf("user %d is not a %s", req.ReviewerID, need)
	}

	var updated []int64
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		updated, err = s.events.Assign(ctx, req.EventIDs, slot, req.ReviewerID, assignerID, s.today())
		return err
	})
	if err != nil {
		return 0, err
	}

	s.metrics.transition("assign_"+slot.String(), len(updated))
	s.logger.Info().Int64("actor_id", assignerID).Int64("reviewer_id", req.ReviewerID).
		Str("slot", slot.String()).Int("requested", len(req.EventIDs)).Int("updated", len(updated)).
		Msg("reviewers assigned")

	if slot == SlotThird {
		msgs := make([]notify.Message, 0, len(updated))
		for _, id := range updated {
			msgs = append(msgs, notify.Message{
				Kind: notify.KindThirdReviewerAssigned, EventID: id,
				ReviewerID: req.ReviewerID, ActorID: assignerID, At: s.now(),
			})
		}
		s.publish(ctx, msgs)
	}
	return len(updated), nil
}

// Send marks assigned events as sent and notifies each reviewer. Other ids
// are skipped.
func (s *Service) Send(ctx context.Context, ids []int64, senderID int64) (int, error) {
	if len(ids) == 0 {
		return 0, apperr.Validation("event_ids is required")
	}
	var sent []SentEvent
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		sent, err = s.events.Send(ctx, ids, senderID, s.today())
		return err
	})
	if err != nil {
		return 0, err
	}

	s.metrics.transition("send", len(sent))
	s.logger.Info().Int64("actor_id", senderID).Int("requested", len(ids)).Int("updated", len(sent)).Msg("packets sent")

	var msgs []notify.Message
	for _, e := range sent {
		for _, rid := range []*int64{e.Reviewer1ID, e.Reviewer2ID} {
			if rid == nil {
				continue
			}
			msgs = append(msgs, notify.Message{
				Kind: notify.KindPacketSent, EventID: e.ID,
				ReviewerID: *rid, ActorID: senderID, At: s.now(),
			})
		}
	}
	s.publish(ctx, msgs)
	return len(sent), nil
}

func (s *Service) publish(ctx context.Context, msgs []notify.Message) {
	if len(msgs) == 0 {
		return
	}
	if err := s.notifier.Publish(ctx, msgs...); err != nil {
		s.logger.Error().Err(err).Int("messages", len(msgs)).Msg("failed to publish workflow notifications")
	}
}

// SubmitReview records reviewerID's review for the slot they owe and moves
// the event on. When both first-round reviews are in, agreement closes the
// event and disagreement asks for a third review.
func (s *Service) SubmitReview(ctx context.Context, eventID, reviewerID int64, r *Review) (*Review, Status, error) {
	if err := r.Normalize(); err != nil {
		return nil, "", err
	}
	r.EventID, r.ReviewerID = eventID, reviewerID

	var status Status
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		e, err := s.events.GetForUpdate(ctx, eventID)
		if err != nil {
			return translate(err, eventID)
		}
		slot := pendingSlot(stateOf(e), reviewerID)
		if slot == 0 {
			return apperr.Forbidden(fmt.Sprintf("no review is pending for event %d", eventID))
		}
		if err := s.events.AddReview(ctx, r); err != nil {
			return fmt.Errorf("add review: %w", err)
		}
		if status, err = s.nextStatus(ctx, e, slot, r); err != nil {
			return err
		}
		return s.events.RecordReview(ctx, eventID, slot, status, s.today())
	})
	if err != nil {
		return nil, "", err
	}
	s.metrics.reviewed(status)
	s.logger.Info().Int64("event_id", eventID).Int64("actor_id", reviewerID).Str("status", string(status)).Msg("review submitted")
	return r, status, nil
}

func (s *Service) nextStatus(ctx context.Context, e *Event, slot Slot, r *Review) (Status, error) {
	var otherDone bool
	var otherID *int64
	var alone Status
	switch slot {
	case SlotThird:
		return StatusDone, nil
	case SlotFirst:
		otherDone, otherID, alone = e.Review2Date.Valid, e.Reviewer2ID, StatusReviewer1Done
	case SlotSecond:
		otherDone, otherID, alone = e.Review1Date.Valid, e.Reviewer1ID, StatusReviewer2Done
	}
	if !otherDone || otherID == nil {
		return alone, nil
	}
	other, err := s.events.ReviewBy(ctx, e.ID, *otherID)
	if err != nil {
		return "", fmt.Errorf("load other review: %w", err)
	}
	if Agrees(r, other) {
		return StatusDone, nil
	}
	return StatusThirdReviewNeeded, nil
}
