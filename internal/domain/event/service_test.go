package event

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/cnics/mireview/internal/domain/patient"
	"github.com/cnics/mireview/internal/platform/apperr"
	"github.com/cnics/mireview/internal/platform/auth"
	"github.com/cnics/mireview/internal/platform/blobstore"
	"github.com/cnics/mireview/internal/platform/notify"
)

// -- Mock Repository --

type mockEventRepo struct {
	events        map[int64]*Event
	patients      map[int64]*patient.Patient
	criteria      []Criterion
	solicitations []Solicitation
	reviews       []*Review
	nextID        int64
	writes        int
}

func newMockEventRepo() *mockEventRepo {
	return &mockEventRepo{
		events:   make(map[int64]*Event),
		patients: make(map[int64]*patient.Patient),
		nextID:   1,
	}
}

func (m *mockEventRepo) sortedIDs() []int64 {
	ids := make([]int64, 0, len(m.events))
	for id := range m.events {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *mockEventRepo) row(e *Event) *ListRow {
	p := m.patients[e.PatientID]
	return &ListRow{
		ID: e.ID, PatientID: e.PatientID, Site: p.Site, SitePatientID: p.SitePatientID,
		Status: e.Status, EventDate: e.EventDate, AddDate: e.AddDate, SendDate: e.SendDate,
	}
}

func (m *mockEventRepo) List(_ context.Context, lq ListQuery) ([]*ListRow, int, error) {
	var rows []*ListRow
	for _, id := range m.sortedIDs() {
		e := m.events[id]
		if !lq.Phase.Includes(e.Status) {
			continue
		}
		if lq.Site != "" && m.patients[e.PatientID].Site != lq.Site {
			continue
		}
		rows = append(rows, m.row(e))
	}
	total := len(rows)
	if lq.Offset >= len(rows) {
		return nil, total, nil
	}
	rows = rows[lq.Offset:]
	if lq.Limit >= 0 && lq.Limit < len(rows) {
		rows = rows[:lq.Limit]
	}
	return rows, total, nil
}

func (m *mockEventRepo) Details(ctx context.Context, id int64) (*Details, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	p := m.patients[e.PatientID]
	d := &Details{Event: *e, Site: p.Site, SitePatientID: p.SitePatientID}
	d.Criteria, _ = m.Criteria(ctx, id)
	d.Solicitations, _ = m.Solicitations(ctx, id)
	return d, nil
}

func (m *mockEventRepo) Export(ctx context.Context) ([]ExportRecord, error) {
	var details []*Details
	for _, id := range m.sortedIDs() {
		d, _ := m.Details(ctx, id)
		details = append(details, d)
	}
	return assembleExport(details, m.reviews, nil, m.criteria), nil
}

func (m *mockEventRepo) CountByStatus(_ context.Context) (map[Status]int, error) {
	out := make(map[Status]int)
	for _, e := range m.events {
		out[e.Status]++
	}
	return out, nil
}

func (m *mockEventRepo) AwaitingReview(_ context.Context, userID int64, _ string) ([]*AwaitingRow, error) {
	var rows []*AwaitingRow
	for _, id := range m.sortedIDs() {
		e := m.events[id]
		if slot := pendingSlot(stateOf(e), userID); slot != 0 {
			rows = append(rows, &AwaitingRow{ListRow: *m.row(e), Slot: int(slot)})
		}
	}
	return rows, nil
}

func (m *mockEventRepo) AwaitingUpload(_ context.Context, site string, status Status) ([]*ListRow, error) {
	var rows []*ListRow
	for _, id := range m.sortedIDs() {
		e := m.events[id]
		if e.Status == status && m.patients[e.PatientID].Site == site {
			rows = append(rows, m.row(e))
		}
	}
	return rows, nil
}

func (m *mockEventRepo) Criteria(_ context.Context, eventID int64) ([]Criterion, error) {
	out := []Criterion{}
	for _, c := range m.criteria {
		if c.EventID == eventID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockEventRepo) Solicitations(_ context.Context, eventID int64) ([]Solicitation, error) {
	out := []Solicitation{}
	for _, s := range m.solicitations {
		if s.EventID == eventID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockEventRepo) Get(_ context.Context, id int64) (*Event, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockEventRepo) GetForUpdate(ctx context.Context, id int64) (*Event, error) {
	return m.Get(ctx, id)
}

func (m *mockEventRepo) Create(_ context.Context, e *Event) error {
	m.writes++
	e.ID = m.nextID
	m.nextID++
	stored := *e
	m.events[e.ID] = &stored
	return nil
}

func (m *mockEventRepo) Update(_ context.Context, id int64, eventDate *pgtype.Date, patientID *int64) error {
	e, ok := m.events[id]
	if !ok {
		return ErrNotFound
	}
	m.writes++
	if eventDate != nil {
		e.EventDate = *eventDate
	}
	if patientID != nil {
		e.PatientID = *patientID
	}
	return nil
}

func (m *mockEventRepo) AddCriterion(_ context.Context, c *Criterion) error {
	m.writes++
	c.ID = int64(len(m.criteria) + 1)
	m.criteria = append(m.criteria, *c)
	return nil
}

func (m *mockEventRepo) AddSolicitation(_ context.Context, s *Solicitation) error {
	m.writes++
	s.ID = int64(len(m.solicitations) + 1)
	m.solicitations = append(m.solicitations, *s)
	return nil
}

func (m *mockEventRepo) mutate(id int64, fn func(e *Event)) error {
	e, ok := m.events[id]
	if !ok {
		return ErrNotFound
	}
	m.writes++
	fn(e)
	return nil
}

func (m *mockEventRepo) MarkUploaded(_ context.Context, id, uploaderID, fileNumber int64, originalName string, on pgtype.Date) error {
	return m.mutate(id, func(e *Event) {
		e.UploaderID, e.UploadDate, e.FileNumber, e.OriginalName = &uploaderID, on, &fileNumber, &originalName
		e.Status = StatusUploaded
	})
}

func (m *mockEventRepo) MarkNoPacket(_ context.Context, id, markerID int64, np *NoPacket, on pgtype.Date) error {
	return m.mutate(id, func(e *Event) {
		e.MarkerID, e.MarkNoPacketDate, e.NoPacketReason = &markerID, on, &np.Reason
		e.TwoAttemptsFlag, e.PriorEventDate, e.PriorEventOnsiteFlag, e.OtherCause = np.TwoAttempts, np.PriorEventDate, np.PriorEventOnsite, np.OtherCause
		e.Status = StatusNoPacketAvailable
	})
}

func (m *mockEventRepo) MarkScrubbed(_ context.Context, id, scrubberID, fileNumber int64, on pgtype.Date) error {
	return m.mutate(id, func(e *Event) {
		e.ScrubberID, e.ScrubDate, e.FileNumber = &scrubberID, on, &fileNumber
		e.Status = StatusScrubbed
	})
}

func (m *mockEventRepo) Screen(_ context.Context, id int64, d Decision, screenerID int64, message *string, on pgtype.Date) error {
	return m.mutate(id, func(e *Event) {
		switch d {
		case DecisionAccept:
			e.ScreenerID, e.ScreenDate, e.Status = &screenerID, on, StatusScreened
		case DecisionRescrub:
			e.RescrubMessage, e.ScreenDate, e.Status = message, pgtype.Date{}, StatusUploaded
		case DecisionReject:
			e.ScreenerID, e.ScreenDate, e.RejectMessage, e.Status = &screenerID, on, message, StatusRejected
		}
	})
}

// assignable mirrors the eligibility rules of the assign UPDATEs.
func assignable(e *Event, slot Slot, reviewerID int64) bool {
	holds := func(p *int64) bool { return p != nil && *p == reviewerID }
	switch slot {
	case SlotFirst:
		return (e.Status == StatusScreened || e.Status == StatusAssigned) && !holds(e.Reviewer2ID)
	case SlotSecond:
		return (e.Status == StatusScreened || e.Status == StatusAssigned) && !holds(e.Reviewer1ID)
	case SlotThird:
		return e.Status == StatusThirdReviewNeeded && !holds(e.Reviewer1ID) && !holds(e.Reviewer2ID)
	}
	return false
}

func (m *mockEventRepo) Assign(_ context.Context, ids []int64, slot Slot, reviewerID, assignerID int64, on pgtype.Date) ([]int64, error) {
	var updated []int64
	for _, id := range ids {
		e, ok := m.events[id]
		if !ok || !assignable(e, slot, reviewerID) {
			continue
		}
		m.writes++
		switch slot {
		case SlotFirst:
			e.Reviewer1ID, e.AssignerID, e.AssignDate = &reviewerID, &assignerID, on
			if e.Reviewer2ID != nil {
				e.Status = StatusAssigned
			}
		case SlotSecond:
			e.Reviewer2ID, e.AssignerID, e.AssignDate = &reviewerID, &assignerID, on
			if e.Reviewer1ID != nil {
				e.Status = StatusAssigned
			}
		case SlotThird:
			e.Reviewer3ID, e.Assigner3rdID, e.Assign3rdDate = &reviewerID, &assignerID, on
			e.Status = StatusThirdReviewAssigned
		}
		updated = append(updated, id)
	}
	return updated, nil
}

func (m *mockEventRepo) Send(_ context.Context, ids []int64, senderID int64, on pgtype.Date) ([]SentEvent, error) {
	var sent []SentEvent
	for _, id := range ids {
		e, ok := m.events[id]
		if !ok || e.Status != StatusAssigned {
			continue
		}
		m.writes++
		e.SenderID, e.SendDate = &senderID, on
		e.Status = StatusSent
		sent = append(sent, SentEvent{ID: e.ID, Reviewer1ID: e.Reviewer1ID, Reviewer2ID: e.Reviewer2ID})
	}
	return sent, nil
}

func (m *mockEventRepo) AddReview(_ context.Context, r *Review) error {
	m.writes++
	r.ID = int64(len(m.reviews) + 1)
	cp := *r
	m.reviews = append(m.reviews, &cp)
	return nil
}

func (m *mockEventRepo) ReviewBy(_ context.Context, eventID, reviewerID int64) (*Review, error) {
	for i := len(m.reviews) - 1; i >= 0; i-- {
		if r := m.reviews[i]; r.EventID == eventID && r.ReviewerID == reviewerID {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockEventRepo) RecordReview(_ context.Context, id int64, slot Slot, status Status, on pgtype.Date) error {
	return m.mutate(id, func(e *Event) {
		switch slot {
		case SlotFirst:
			e.Review1Date = on
		case SlotSecond:
			e.Review2Date = on
		case SlotThird:
			e.Review3Date = on
		}
		e.Status = status
	})
}

// -- Collaborators --

type fakeTx struct{ calls int }

func (f *fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type mockResolver struct {
	repo     *mockEventRepo
	writable bool
	calls    int
}

func (m *mockResolver) FindOrCreate(_ context.Context, sitePatientID, site string) (*patient.Patient, error) {
	m.calls++
	for _, p := range m.repo.patients {
		if p.SitePatientID == sitePatientID && p.Site == site {
			return p, nil
		}
	}
	if !m.writable {
		return nil, apperr.Validationf("No patient found with id %s at site %s", sitePatientID, site)
	}
	p := &patient.Patient{ID: int64(len(m.repo.patients) + 1), SitePatientID: sitePatientID, Site: site}
	m.repo.patients[p.ID] = p
	return p, nil
}

type mockDirectory map[int64]*auth.Identity

func (m mockDirectory) IdentityByID(_ context.Context, id int64) (*auth.Identity, error) {
	if ident, ok := m[id]; ok {
		return ident, nil
	}
	return nil, apperr.NotFoundf("user %d not found", id)
}

type capturePublisher struct {
	msgs []notify.Message
	err  error
}

func (p *capturePublisher) Publish(_ context.Context, msgs ...notify.Message) error {
	p.msgs = append(p.msgs, msgs...)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

type fixture struct {
	svc      *Service
	repo     *mockEventRepo
	patients *mockResolver
	pub      *capturePublisher
	fs       afero.Fs
}

var testToday = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

const (
	adminID      int64 = 1
	reviewerAID  int64 = 10
	reviewerBID  int64 = 11
	thirdID      int64 = 12
	uploaderOnly int64 = 20
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMockEventRepo()
	fs := afero.NewMemMapFs()
	packets, err := blobstore.NewDirStore(fs, "/packets")
	if err != nil {
		t.Fatalf("dir store: %v", err)
	}
	users := mockDirectory{
		adminID:      {UserID: adminID, Capabilities: []auth.Capability{auth.CapAdmin}},
		reviewerAID:  {UserID: reviewerAID, Capabilities: []auth.Capability{auth.CapReviewer}},
		reviewerBID:  {UserID: reviewerBID, Capabilities: []auth.Capability{auth.CapReviewer}},
		thirdID:      {UserID: thirdID, Capabilities: []auth.Capability{auth.CapReviewer, auth.CapThirdReviewer}},
		uploaderOnly: {UserID: uploaderOnly, Site: "UW", Capabilities: []auth.Capability{auth.CapUploader}},
	}
	resolver := &mockResolver{repo: repo, writable: true}
	svc := NewService(repo, &fakeTx{}, resolver, users, packets, zerolog.Nop())
	pub := &capturePublisher{}
	svc.SetPublisher(pub)
	svc.now = func() time.Time { return testToday }
	return &fixture{svc: svc, repo: repo, patients: resolver, pub: pub, fs: fs}
}

// seed stores an event for a patient at site in the given status.
func (f *fixture) seed(site string, status Status) *Event {
	p := &patient.Patient{ID: int64(len(f.repo.patients) + 1), SitePatientID: fmt.Sprintf("P%d", len(f.repo.patients)+1), Site: site}
	f.repo.patients[p.ID] = p
	e := &Event{PatientID: p.ID, CreatorID: adminID, Status: status, AddDate: dateOf(testToday)}
	f.repo.Create(context.Background(), e)
	f.repo.writes = 0
	return f.repo.events[e.ID]
}

func i64(v int64) *int64 { return &v }
func bp(v bool) *bool { return &v }
func sp(v string) *string { return &v }

// -- List / Details --

func TestService_List_UnknownPhase(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.List(context.Background(), ListQuery{Phase: "bogus", Limit: -1})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_List_RowsWithinTotal(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.seed("UW", StatusCreated)
	}
	f.seed("UW", StatusUploaded)

	rows, total, err := f.svc.List(context.Background(), ListQuery{Phase: "created", Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 5 {
		t.Errorf("expected total 5, got %d", total)
	}
	if len(rows) != 2 || len(rows) > total {
		t.Errorf("expected 2 rows within total, got %d", len(rows))
	}

	rows, _, _ = f.svc.List(context.Background(), ListQuery{Phase: "created", Limit: -1, Offset: 10})
	if rows == nil || len(rows) != 0 {
		t.Errorf("expected empty non-nil page past the end, got %v", rows)
	}
}

func TestService_List_SentPhaseIncludesPartialReviews(t *testing.T) {
	f := newFixture(t)
	f.seed("UW", StatusSent)
	f.seed("UW", StatusReviewer1Done)
	f.seed("UW", StatusReviewer2Done)
	f.seed("UW", StatusDone)

	_, total, err := f.svc.List(context.Background(), ListQuery{Phase: "sent", Limit: -1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 {
		t.Errorf("expected 3 events in sent phase, got %d", total)
	}
}

func TestService_Details_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Details(context.Background(), 42)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_StatusSummary(t *testing.T) {
	f := newFixture(t)
	f.seed("UW", StatusCreated)
	f.seed("UW", StatusCreated)
	f.seed("UNC", StatusDone)

	s, err := f.svc.StatusSummary(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s["created"] != 2 || s["done"] != 1 || s["total"] != 3 {
		t.Errorf("unexpected summary %v", s)
	}
	if n, ok := s["rejected"]; !ok || n != 0 {
		t.Errorf("expected zero-filled rejected, got %v", s)
	}
}

func TestService_AwaitingUpload(t *testing.T) {
	f := newFixture(t)
	f.seed("UW", StatusCreated)
	f.seed("UW", StatusUploaded)
	f.seed("UNC", StatusCreated)

	q, err := f.svc.AwaitingUpload(context.Background(), "UW")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.AwaitingUpload) != 1 || len(q.PossibleReupload) != 1 {
		t.Errorf("unexpected queue %+v", q)
	}
}

// -- Create / Update --

func TestService_CreateEvent_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateEvent(ctx, &CreateRequest{
		SitePatientID: "12345", Site: "UW", EventDate: "2023-06-01",
		CriterionName: "troponin", CriterionValue: "0.8",
	}, adminID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID == 0 || created.PatientID == 0 {
		t.Fatalf("expected ids, got %+v", created)
	}
	if got := created.EventDate.Time.Format("2006-01-02"); got != "2023-06-01" {
		t.Errorf("expected event date 2023-06-01, got %s", got)
	}

	d, err := f.svc.Details(ctx, created.ID)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if d.Site != "UW" || d.SitePatientID != "12345" {
		t.Errorf("unexpected patient %s/%s", d.Site, d.SitePatientID)
	}
	if d.Reviewer1Username != nil {
		t.Errorf("expected no reviewer1, got %q", *d.Reviewer1Username)
	}
	if d.Status != StatusCreated || !d.AddDate.Valid {
		t.Errorf("expected created with add_date, got %s", d.Status)
	}
	if len(d.Criteria) != 1 || d.Criteria[0].Name != "troponin" {
		t.Errorf("unexpected criteria %+v", d.Criteria)
	}
}

func TestService_CreateEvent_MissingDateWritesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateEvent(context.Background(), &CreateRequest{SitePatientID: "12345", Site: "UW"}, adminID)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(f.repo.events) != 0 || f.repo.writes != 0 {
		t.Errorf("expected no writes, got %d events and %d writes", len(f.repo.events), f.repo.writes)
	}
	if f.patients.calls != 0 {
		t.Errorf("expected no patient lookup, got %d", f.patients.calls)
	}
}

func TestService_CreateEvent_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"blank patient", CreateRequest{Site: "UW", EventDate: "2023-06-01"}},
		{"malformed date", CreateRequest{SitePatientID: "1", Site: "UW", EventDate: "06/01/2023"}},
		{"before 1970", CreateRequest{SitePatientID: "1", Site: "UW", EventDate: "1969-12-31"}},
		{"criterion without value", CreateRequest{SitePatientID: "1", Site: "UW", EventDate: "2023-06-01", CriterionName: "troponin"}},
		{"value is a criterion name", CreateRequest{SitePatientID: "1", Site: "UW", EventDate: "2023-06-01", CriterionName: "troponin", CriterionValue: "CKMB"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateEvent(context.Background(), &tt.req, adminID)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
			if f.repo.writes != 0 {
				t.Errorf("expected no writes, got %d", f.repo.writes)
			}
		})
	}
}

func TestService_CreateEvent_PatientNotFound(t *testing.T) {
	f := newFixture(t)
	f.patients.writable = false

	_, err := f.svc.CreateEvent(context.Background(), &CreateRequest{SitePatientID: "9", Site: "UW", EventDate: "2023-06-01"}, adminID)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if len(f.repo.events) != 0 {
		t.Error("expected no event to be created")
	}
}

func TestService_UpdateEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.seed("UW", StatusCreated)

	if _, err := f.svc.UpdateEvent(ctx, 999, &UpdateRequest{EventDate: sp("2023-01-01")}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := f.svc.UpdateEvent(ctx, e.ID, &UpdateRequest{EventDate: sp("January 1")}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := f.svc.UpdateEvent(ctx, e.ID, &UpdateRequest{Site: sp("UNC")}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for half a patient key, got %v", err)
	}

	d, err := f.svc.UpdateEvent(ctx, e.ID, &UpdateRequest{EventDate: sp("2023-01-01"), SitePatientID: sp("77"), Site: sp("UNC")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Site != "UNC" || d.SitePatientID != "77" || day(d.EventDate) != "2023-01-01" {
		t.Errorf("unexpected details %s/%s %s", d.Site, d.SitePatientID, day(d.EventDate))
	}
}

func TestService_AddSolicitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.seed("UW", StatusCreated)

	if _, err := f.svc.AddSolicitation(ctx, e.ID, "2024/01/02", "called records"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for date, got %v", err)
	}
	if _, err := f.svc.AddSolicitation(ctx, 999, "2024-01-02", "called records"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	s, err := f.svc.AddSolicitation(ctx, e.ID, "2024-01-02", " called records ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Contact != "called records" || day(s.Date) != "2024-01-02" {
		t.Errorf("unexpected solicitation %+v", s)
	}
}

func TestService_AddCriterion_Blank(t *testing.T) {
	f := newFixture(t)
	e := f.seed("UW", StatusCreated)
	if _, err := f.svc.AddCriterion(context.Background(), e.ID, "troponin", " "); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

// -- Packets --

func TestService_UploadPacket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.seed("UW", StatusCreated)
	uploader := &auth.Identity{UserID: uploaderOnly, Site: "UW", Capabilities: []auth.Capability{auth.CapUploader}}

	up := Upload{Filename: "chart.pdf", ContentType: "application/pdf", Size: 4, Body: strings.NewReader("%PDF")}
	got, err := f.svc.UploadPacket(ctx, e.ID, uploader, up, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusUploaded || got.FileNumber == nil || *got.OriginalName != "chart.pdf" {
		t.Fatalf("unexpected event %+v", got)
	}
	name := fmt.Sprintf("/packets/orig_%d_%d.pdf", e.ID, *got.FileNumber)
	if ok, _ := afero.Exists(f.fs, name); !ok {
		t.Errorf("expected %s to be stored", name)
	}

	up.Body = strings.NewReader("%PDF")
	if _, err := f.svc.UploadPacket(ctx, e.ID, uploader, up, false); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected re-upload without confirm to fail validation, got %v", err)
	}
	up.Body = strings.NewReader("%PDF")
	if _, err := f.svc.UploadPacket(ctx, e.ID, uploader, up, true); err != nil {
		t.Errorf("expected confirmed re-upload to succeed, got %v", err)
	}
}

func TestService_UploadPacket_OtherSiteForbidden(t *testing.T) {
	f := newFixture(t)
	e := f.seed("UNC", StatusCreated)
	uploader := &auth.Identity{UserID: uploaderOnly, Site: "UW", Capabilities: []auth.Capability{auth.CapUploader}}

	up := Upload{Filename: "chart.pdf", ContentType: "application/pdf", Body: strings.NewReader("x")}
	if _, err := f.svc.UploadPacket(context.Background(), e.ID, uploader, up, false); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestService_UploadPacket_UnsupportedType(t *testing.T) {
	f := newFixture(t)
	e := f.seed("UW", StatusCreated)
	admin := &auth.Identity{UserID: adminID, Capabilities: []auth.Capability{auth.CapAdmin}}

	up := Upload{Filename: "chart.doc", ContentType: "application/msword", Body: strings.NewReader("x")}
	if _, err := f.svc.UploadPacket(context.Background(), e.ID, admin, up, false); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_MarkNoPacket(t *testing.T) {
	f := newFixture(t)
	e := f.seed("UW", StatusUploaded)
	uploader := &auth.Identity{UserID: uploaderOnly, Site: "UW", Capabilities: []auth.Capability{auth.CapUploader}}

	req := &NoPacketRequest{Reason: NoPacketPriorEvent, PriorEventDateKnown: bp(true), PriorEventYear: 2019, PriorEventMonth: 7, PriorEventOnsite: bp(false)}
	got, err := f.svc.MarkNoPacket(context.Background(), e.ID, uploader, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusNoPacketAvailable || got.MarkerID == nil || *got.MarkerID != uploaderOnly {
		t.Fatalf("unexpected event %+v", got)
	}
	if got.PriorEventDate == nil || *got.PriorEventDate != "07-2019" {
		t.Errorf("prior_event_date = %v, want 07-2019", got.PriorEventDate)
	}
	if !got.MarkNoPacketDate.Valid || !got.MarkNoPacketDate.Time.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected mark_no_packet_date %+v", got.MarkNoPacketDate)
	}
}

func TestService_MarkNoPacket_Rejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uploader := &auth.Identity{UserID: uploaderOnly, Site: "UW", Capabilities: []auth.Capability{auth.CapUploader}}
	other := &NoPacketRequest{Reason: NoPacketOther, OtherCause: sp("chart destroyed")}

	scrubbed := f.seed("UW", StatusScrubbed)
	if _, err := f.svc.MarkNoPacket(ctx, scrubbed.ID, uploader, other); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for scrubbed event, got %v", err)
	}

	elsewhere := f.seed("UNC", StatusCreated)
	if _, err := f.svc.MarkNoPacket(ctx, elsewhere.ID, uploader, other); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden for another site, got %v", err)
	}

	created := f.seed("UW", StatusCreated)
	before := f.repo.writes
	if _, err := f.svc.MarkNoPacket(ctx, created.ID, uploader, &NoPacketRequest{Reason: NoPacketOutsideHospital}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error without two_attempts_flag, got %v", err)
	}
	if f.repo.writes != before {
		t.Error("expected no writes for an invalid request")
	}

	if _, err := f.svc.MarkNoPacket(ctx, 999, uploader, other); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_UploadScrubbed(t *testing.T) {
	f := newFixture(t)
	e := f.seed("UW", StatusUploaded)
	e.FileNumber = i64(4242)

	got, err := f.svc.UploadScrubbed(context.Background(), e.ID, adminID, Upload{
		Filename: "clean.zip", ContentType: "application/zip", Body: strings.NewReader("PK"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusScrubbed || *got.ScrubberID != adminID || day(got.ScrubDate) != "2024-03-15" {
		t.Errorf("unexpected event %+v", got)
	}
	if ok, _ := afero.Exists(f.fs, fmt.Sprintf("/packets/clean_%d_4242.zip", e.ID)); !ok {
		t.Error("expected scrubbed packet under the event's file number")
	}
}

func TestService_UploadScrubbed_Errors(t *testing.T) {
	f := newFixture(t)
	up := func() Upload {
		return Upload{ContentType: "application/pdf", Body: strings.NewReader("x")}
	}
	if _, err := f.svc.UploadScrubbed(context.Background(), 404, adminID, up()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	e := f.seed("UW", StatusUploaded)
	base := afero.NewMemMapFs()
	base.MkdirAll("/packets", 0o755)
	readOnly, err := blobstore.NewDirStore(afero.NewReadOnlyFs(base), "/packets")
	if err != nil {
		t.Fatalf("dir store: %v", err)
	}
	f.svc.packets = readOnly
	if _, err := f.svc.UploadScrubbed(context.Background(), e.ID, adminID, up()); !errors.Is(err, apperr.ErrUnavailable) {
		t.Errorf("expected unavailable, got %v", err)
	}
	if f.repo.events[e.ID].Status != StatusUploaded {
		t.Error("expected status unchanged after storage failure")
	}
}

// -- Screening --

func TestService_Screen_RescrubClearsScreenDate(t *testing.T) {
	f := newFixture(t)
	e := f.seed("UW", StatusScreened)
	e.ScreenDate = dateOf(testToday.AddDate(0, 0, -3))

	got, err := f.svc.Screen(context.Background(), e.ID, "rescrub", sp("blur page 3"), adminID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ScreenDate.Valid {
		t.Error("expected screen_date to be cleared")
	}
	if got.Status != StatusUploaded || *got.RescrubMessage != "blur page 3" {
		t.Errorf("unexpected event %+v", got)
	}
}

func TestService_Screen_AcceptAndReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed("UW", StatusScrubbed)
	r := f.seed("UW", StatusScrubbed)

	got, err := f.svc.Screen(ctx, a.ID, "accept", nil, adminID)
	if err != nil || got.Status != StatusScreened || day(got.ScreenDate) != "2024-03-15" {
		t.Errorf("accept: %v %+v", err, got)
	}
	got, err = f.svc.Screen(ctx, r.ID, "reject", sp("wrong patient"), adminID)
	if err != nil || got.Status != StatusRejected || *got.RejectMessage != "wrong patient" {
		t.Errorf("reject: %v %+v", err, got)
	}
}

func TestService_Screen_InvalidDecisionWritesNothing(t *testing.T) {
	f := newFixture(t)
	e := f.seed("UW", StatusScrubbed)

	if _, err := f.svc.Screen(context.Background(), e.ID, "maybe", nil, adminID); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if f.repo.writes != 0 {
		t.Errorf("expected no writes, got %d", f.repo.writes)
	}
}

// -- Assign / Send --

func TestService_Assign_SkipsMissingIDs(t *testing.T) {
	f := newFixture(t)
	e := f.seed("UW", StatusScreened)

	n, err := f.svc.Assign(context.Background(), &AssignRequest{EventIDs: []int64{e.ID, 9999}, ReviewerID: reviewerAID, Slot: "first"}, adminID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected updated=1, got %d", n)
	}
	got := f.repo.events[e.ID]
	if got.Reviewer1ID == nil || *got.Reviewer1ID != reviewerAID {
		t.Errorf("expected reviewer1 set, got %v", got.Reviewer1ID)
	}
	if *got.AssignerID != adminID || day(got.AssignDate) != "2024-03-15" {
		t.Errorf("unexpected assigner audit %v %s", *got.AssignerID, day(got.AssignDate))
	}
}

func TestService_Assign_BothSlotsMoveToAssigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.seed("UW", StatusScreened)

	f.svc.Assign(ctx, &AssignRequest{EventIDs: []int64{e.ID}, ReviewerID: reviewerAID, Slot: "first"}, adminID)
	if f.repo.events[e.ID].Status != StatusScreened {
		t.Fatal("expected screened until both reviewers are set")
	}
	f.svc.Assign(ctx, &AssignRequest{EventIDs: []int64{e.ID}, ReviewerID: reviewerBID, Slot: "2"}, adminID)
	if got := f.repo.events[e.ID].Status; got != StatusAssigned {
		t.Errorf("expected assigned, got %s", got)
	}
}

func TestService_Assign_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  AssignRequest
	}{
		{"bad slot", AssignRequest{EventIDs: []int64{1}, ReviewerID: reviewerAID, Slot: "fourth"}},
		{"no ids", AssignRequest{ReviewerID: reviewerAID, Slot: "first"}},
		{"unknown reviewer", AssignRequest{EventIDs: []int64{1}, ReviewerID: 777, Slot: "first"}},
		{"not a reviewer", AssignRequest{EventIDs: []int64{1}, ReviewerID: uploaderOnly, Slot: "first"}},
		{"third slot needs third reviewer", AssignRequest{EventIDs: []int64{1}, ReviewerID: reviewerAID, Slot: "third"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed("UW", StatusScreened)
			if _, err := f.svc.Assign(context.Background(), &tt.req, adminID); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
			if f.repo.writes != 0 {
				t.Errorf("expected no writes, got %d", f.repo.writes)
			}
		})
	}
}

func TestService_Assign_ThirdPublishes(t *testing.T) {
	f := newFixture(t)
	e := f.seed("UW", StatusThirdReviewNeeded)

	n, err := f.svc.Assign(context.Background(), &AssignRequest{EventIDs: []int64{e.ID}, ReviewerID: thirdID, Slot: "third"}, adminID)
	if err != nil || n != 1 {
		t.Fatalf("expected one update, got %d %v", n, err)
	}
	got := f.repo.events[e.ID]
	if got.Status != StatusThirdReviewAssigned || *got.Assigner3rdID != adminID || got.AssignerID != nil {
		t.Errorf("unexpected event %+v", got)
	}
	if len(f.pub.msgs) != 1 || f.pub.msgs[0].Kind != notify.KindThirdReviewerAssigned || f.pub.msgs[0].ReviewerID != thirdID {
		t.Errorf("unexpected notifications %+v", f.pub.msgs)
	}
}

func TestService_Send(t *testing.T) {
	f := newFixture(t)
	e := f.seed("UW", StatusAssigned)
	e.Reviewer1ID, e.Reviewer2ID = i64(reviewerAID), i64(reviewerBID)

	n, err := f.svc.Send(context.Background(), []int64{e.ID, 31337}, adminID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected updated=1, got %d", n)
	}
	got := f.repo.events[e.ID]
	if got.Status != StatusSent || *got.SenderID != adminID || day(got.SendDate) != "2024-03-15" {
		t.Errorf("unexpected event %+v", got)
	}
	if len(f.pub.msgs) != 2 {
		t.Fatalf("expected a notification per reviewer, got %d", len(f.pub.msgs))
	}
	if f.pub.msgs[0].Kind != notify.KindPacketSent || f.pub.msgs[1].ReviewerID != reviewerBID {
		t.Errorf("unexpected notifications %+v", f.pub.msgs)
	}
}

func TestService_Send_PublishFailureIsNotReturned(t *testing.T) {
	f := newFixture(t)
	e := f.seed("UW", StatusAssigned)
	e.Reviewer1ID = i64(reviewerAID)
	f.pub.err = errors.New("broker down")

	if _, err := f.svc.Send(context.Background(), []int64{e.ID}, adminID); err != nil {
		t.Errorf("expected publish failure to be swallowed, got %v", err)
	}
	if f.repo.events[e.ID].Status != StatusSent {
		t.Error("expected the transition to stand")
	}
}

func TestService_AssignAndSend_SkipIneligibleStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.seed("UW", StatusCreated)

	for _, slot := range []string{"first", "second"} {
		n, err := f.svc.Assign(ctx, &AssignRequest{EventIDs: []int64{e.ID}, ReviewerID: reviewerAID, Slot: slot}, adminID)
		if err != nil || n != 0 {
			t.Errorf("slot %s: expected nothing assigned, got %d %v", slot, n, err)
		}
	}
	n, err := f.svc.Assign(ctx, &AssignRequest{EventIDs: []int64{e.ID}, ReviewerID: thirdID, Slot: "third"}, adminID)
	if err != nil || n != 0 {
		t.Errorf("third slot: expected nothing assigned, got %d %v", n, err)
	}
	n, err = f.svc.Send(ctx, []int64{e.ID}, adminID)
	if err != nil || n != 0 {
		t.Errorf("expected nothing sent, got %d %v", n, err)
	}

	got := f.repo.events[e.ID]
	if got.Status != StatusCreated || got.Reviewer1ID != nil || got.Reviewer3ID != nil || got.SendDate.Valid || got.SenderID != nil {
		t.Errorf("expected the created event to be untouched, got %+v", got)
	}
	if f.repo.writes != 0 || len(f.pub.msgs) != 0 {
		t.Errorf("expected no writes or notifications, got %d writes %d messages", f.repo.writes, len(f.pub.msgs))
	}
	if _, _, err := f.svc.SubmitReview(ctx, e.ID, reviewerAID, positiveReview()); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden review on an unsent event, got %v", err)
	}
}

func TestService_Send_SkipsScreened(t *testing.T) {
	f := newFixture(t)
	e := f.seed("UW", StatusScreened)
	e.Reviewer1ID = i64(reviewerAID)

	n, err := f.svc.Send(context.Background(), []int64{e.ID}, adminID)
	if err != nil || n != 0 {
		t.Fatalf("expected nothing sent, got %d %v", n, err)
	}
	if f.repo.events[e.ID].SendDate.Valid {
		t.Error("expected no send date on a half-assigned event")
	}
}

func TestService_Assign_ReviewerHoldsOneSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.seed("UW", StatusScreened)

	f.svc.Assign(ctx, &AssignRequest{EventIDs: []int64{e.ID}, ReviewerID: reviewerAID, Slot: "first"}, adminID)
	n, err := f.svc.Assign(ctx, &AssignRequest{EventIDs: []int64{e.ID}, ReviewerID: reviewerAID, Slot: "second"}, adminID)
	if err != nil || n != 0 {
		t.Fatalf("expected the second slot to be refused, got %d %v", n, err)
	}
	got := f.repo.events[e.ID]
	if got.Reviewer2ID != nil || got.Status != StatusScreened {
		t.Errorf("expected slot 2 empty and status screened, got %v %s", got.Reviewer2ID, got.Status)
	}

	// Reassigning the same slot is allowed.
	if n, _ := f.svc.Assign(ctx, &AssignRequest{EventIDs: []int64{e.ID}, ReviewerID: reviewerAID, Slot: "first"}, adminID); n != 1 {
		t.Errorf("expected reassignment of slot 1, got %d", n)
	}
}

func TestService_Assign_ThirdMustBeNewReviewer(t *testing.T) {
	f := newFixture(t)
	e := f.seed("UW", StatusThirdReviewNeeded)
	e.Reviewer1ID, e.Reviewer2ID = i64(thirdID), i64(reviewerBID)

	n, err := f.svc.Assign(context.Background(), &AssignRequest{EventIDs: []int64{e.ID}, ReviewerID: thirdID, Slot: "third"}, adminID)
	if err != nil || n != 0 {
		t.Fatalf("expected a first-round reviewer to be refused, got %d %v", n, err)
	}
	if got := f.repo.events[e.ID]; got.Reviewer3ID != nil || got.Status != StatusThirdReviewNeeded {
		t.Errorf("unexpected event %+v", got)
	}
	if len(f.pub.msgs) != 0 {
		t.Errorf("expected no notification, got %+v", f.pub.msgs)
	}
}

// -- Reviews --

func positiveReview() *Review {
	return &Review{
		MCI: MCIDefinite, ChestPain: bp(true), Type: sp(TypePrimary), ECGType: sp("STEMI"),
		FalsePositive: bp(false), CurrentTobaccoUse: bp(false), PastTobaccoUse: bp(true),
		CocaineUse: bp(false), FamilyHistory: bp(true), CardiacCath: bp(true),
	}
}

func negativeReview() *Review {
	return &Review{MCI: MCINo, CI: bp(false), CardiacCath: bp(false)}
}

func (f *fixture) sentEvent() *Event {
	e := f.seed("UW", StatusSent)
	e.Reviewer1ID, e.Reviewer2ID = i64(reviewerAID), i64(reviewerBID)
	e.SendDate = dateOf(testToday)
	return e
}

func TestService_SubmitReview_Agreement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.sentEvent()

	_, status, err := f.svc.SubmitReview(ctx, e.ID, reviewerAID, positiveReview())
	if err != nil {
		t.Fatalf("first review: %v", err)
	}
	if status != StatusReviewer1Done || !f.repo.events[e.ID].Review1Date.Valid {
		t.Errorf("expected reviewer1_done, got %s", status)
	}

	_, status, err = f.svc.SubmitReview(ctx, e.ID, reviewerBID, positiveReview())
	if err != nil {
		t.Fatalf("second review: %v", err)
	}
	if status != StatusDone {
		t.Errorf("expected done when reviews agree, got %s", status)
	}
}

func TestService_SubmitReview_DisagreementNeedsThird(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.sentEvent()

	if _, status, _ := f.svc.SubmitReview(ctx, e.ID, reviewerBID, negativeReview()); status != StatusReviewer2Done {
		t.Errorf("expected reviewer2_done, got %s", status)
	}
	_, status, err := f.svc.SubmitReview(ctx, e.ID, reviewerAID, positiveReview())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusThirdReviewNeeded {
		t.Errorf("expected third_review_needed, got %s", status)
	}

	f.svc.Assign(ctx, &AssignRequest{EventIDs: []int64{e.ID}, ReviewerID: thirdID, Slot: "third"}, adminID)
	_, status, err = f.svc.SubmitReview(ctx, e.ID, thirdID, negativeReview())
	if err != nil || status != StatusDone {
		t.Errorf("expected third review to close the event, got %s %v", status, err)
	}
}

func TestService_SubmitReview_NotPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.sentEvent()

	if _, _, err := f.svc.SubmitReview(ctx, e.ID, thirdID, positiveReview()); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden for a non-assigned reviewer, got %v", err)
	}
	f.svc.SubmitReview(ctx, e.ID, reviewerAID, positiveReview())
	if _, _, err := f.svc.SubmitReview(ctx, e.ID, reviewerAID, positiveReview()); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden for a second submission, got %v", err)
	}
	if _, _, err := f.svc.SubmitReview(ctx, 999, reviewerAID, positiveReview()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_SubmitReview_InvalidWritesNothing(t *testing.T) {
	f := newFixture(t)
	e := f.sentEvent()

	if _, _, err := f.svc.SubmitReview(context.Background(), e.ID, reviewerAID, &Review{}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if f.repo.writes != 0 {
		t.Errorf("expected no writes, got %d", f.repo.writes)
	}
}

func TestService_AwaitingReview_OneRowPerEvent(t *testing.T) {
	f := newFixture(t)
	e := f.sentEvent()
	e.Reviewer2ID = i64(reviewerAID)

	rows, err := f.svc.AwaitingReview(context.Background(), reviewerAID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Slot != 1 {
		t.Errorf("expected one row for slot 1, got %+v", rows)
	}
}

// -- Import --

func TestService_ImportEvents(t *testing.T) {
	f := newFixture(t)
	f.patients.writable = false
	f.repo.patients[1] = &patient.Patient{ID: 1, SitePatientID: "100", Site: "UW"}

	csv := strings.Join([]string{
		"100,UW,2023-06-01,troponin,0.9,ckmb,12",
		"100,UW,06/02/2023",
		",UW,2023-06-01",
		"100,UW,1965-01-01",
		"200,UNC,2023-06-01",
		"100,UW,2023-06-01,troponin",
		"100,UW,2023-06-01,troponin,ckmb",
	}, "\n")

	res, err := f.svc.ImportEvents(context.Background(), strings.NewReader(csv), adminID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Saved != 2 || len(res.EventIDs) != 2 {
		t.Errorf("expected 2 saved, got %d", res.Saved)
	}
	if fmt.Sprint(res.MissingData) != "[3 4]" {
		t.Errorf("unexpected missing data lines %v", res.MissingData)
	}
	if len(res.NotFound) != 1 || res.NotFound[0].Line != 5 || res.NotFound[0].Site != "UNC" {
		t.Errorf("unexpected not found %+v", res.NotFound)
	}
	if fmt.Sprint(res.CriteriaProblem) != "[6 7]" {
		t.Errorf("unexpected criteria problem lines %v", res.CriteriaProblem)
	}
	if len(f.repo.criteria) != 2 {
		t.Errorf("expected 2 criteria from line 1, got %d", len(f.repo.criteria))
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestService_ImportEvents_UnreadableInput(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.ImportEvents(context.Background(), failingReader{}, adminID); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
