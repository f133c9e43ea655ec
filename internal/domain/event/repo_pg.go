package event

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cnics/mireview/internal/platform/db"
	"github.com/cnics/mireview/internal/platform/sqlq"
)

type eventRepoPG struct{ pool *pgxpool.Pool }

func NewEventRepoPG(pool *pgxpool.Pool) Repository {
	return &eventRepoPG{pool: pool}
}

func (r *eventRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const eventCols = `e.id, e.patient_id, e.creator_id, e.status, e.file_number, e.original_name,
	e.uploader_id, e.marker_id, e.scrubber_id, e.screener_id, e.assigner_id, e.sender_id,
	e.reviewer1_id, e.reviewer2_id, e.assigner3rd_id, e.reviewer3_id,
	e.rescrub_message, e.reject_message, e.no_packet_reason, e.two_attempts_flag,
	e.prior_event_date, e.prior_event_onsite_flag, e.other_cause,
	e.add_date, e.event_date, e.upload_date, e.mark_no_packet_date, e.scrub_date,
	e.screen_date, e.assign_date, e.send_date, e.review1_date, e.review2_date,
	e.assign3rd_date, e.review3_date`

func eventDest(e *Event) []interface{} {
	return []interface{}{
		&e.ID, &e.PatientID, &e.CreatorID, &e.Status, &e.FileNumber, &e.OriginalName,
		&e.UploaderID, &e.MarkerID, &e.ScrubberID, &e.ScreenerID, &e.AssignerID, &e.SenderID,
		&e.Reviewer1ID, &e.Reviewer2ID, &e.Assigner3rdID, &e.Reviewer3ID,
		&e.RescrubMessage, &e.RejectMessage, &e.NoPacketReason, &e.TwoAttemptsFlag,
		&e.PriorEventDate, &e.PriorEventOnsiteFlag, &e.OtherCause,
		&e.AddDate, &e.EventDate, &e.UploadDate, &e.MarkNoPacketDate, &e.ScrubDate,
		&e.ScreenDate, &e.AssignDate, &e.SendDate, &e.Review1Date, &e.Review2Date,
		&e.Assign3rdDate, &e.Review3Date,
	}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func listDest(row *ListRow) []interface{} {
	return []interface{}{
		&row.ID, &row.PatientID, &row.Site, &row.SitePatientID, &row.Status,
		&row.EventDate, &row.AddDate, &row.UploadDate, &row.ScrubDate, &row.ScreenDate,
		&row.AssignDate, &row.SendDate, &row.Criteria,
	}
}

func (r *eventRepoPG) List(ctx context.Context, lq ListQuery) ([]*ListRow, int, error) {
	sel := listSelect(lq)

	countSQL, countArgs := sel.CountSQL("e.id")
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	items, err := r.listRows(ctx, sel, lq.Limit, lq.Offset)
	return items, total, err
}

func (r *eventRepoPG) listRows(ctx context.Context, sel sqlq.Select, limit, offset int) ([]*ListRow, error) {
	query, args := sel.DataSQL(limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	var items []*ListRow
	for rows.Next() {
		var row ListRow
		if err := rows.Scan(listDest(&row)...); err != nil {
			return nil, err
		}
		items = append(items, &row)
	}
	return items, rows.Err()
}

func (r *eventRepoPG) AwaitingReview(ctx context.Context, userID int64, q string) ([]*AwaitingRow, error) {
	query, args := awaitingReviewSelect(userID, q).DataSQL(-1, 0)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("awaiting review: %w", err)
	}
	defer rows.Close()
	var items []*AwaitingRow
	for rows.Next() {
		var row AwaitingRow
		var st reviewState
		var r1, r2, r3 pgtype.Date
		dest := append(listDest(&row.ListRow), &st.Reviewer1ID, &st.Reviewer2ID, &st.Reviewer3ID, &r1, &r2, &r3)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		st.Status = row.Status
		st.SendDateSet = row.SendDate.Valid
		st.Review1Done, st.Review2Done, st.Review3Done = r1.Valid, r2.Valid, r3.Valid
		row.Slot = int(pendingSlot(st, userID))
		items = append(items, &row)
	}
	return items, rows.Err()
}

func (r *eventRepoPG) AwaitingUpload(ctx context.Context, site string, status Status) ([]*ListRow, error) {
	return r.listRows(ctx, awaitingUploadSelect(site, status), -1, 0)
}

// actorJoins resolves each actor column to a username.
var actorJoins = []struct{ alias, col string }{
	{"uc", "creator_id"}, {"uu", "uploader_id"}, {"us", "scrubber_id"}, {"usc", "screener_id"},
	{"ua", "assigner_id"}, {"use", "sender_id"}, {"ur1", "reviewer1_id"}, {"ur2", "reviewer2_id"},
	{"ua3", "assigner3rd_id"}, {"ur3", "reviewer3_id"},
}

func detailsSQL() string {
	cols := eventCols + ", p.site, p.site_patient_id"
	from := "events e JOIN patients p ON p.id = e.patient_id"
	for _, j := range actorJoins {
		cols += ", " + j.alias + ".username"
		from += fmt.Sprintf(" LEFT JOIN users %s ON %s.id = e.%s", j.alias, j.alias, j.col)
	}
	return "SELECT " + cols + " FROM " + from
}

func detailsDest(d *Details) []interface{} {
	return append(eventDest(&d.Event), &d.Site, &d.SitePatientID,
		&d.CreatorUsername, &d.UploaderUsername, &d.ScrubberUsername, &d.ScreenerUsername,
		&d.AssignerUsername, &d.SenderUsername, &d.Reviewer1Username, &d.Reviewer2Username,
		&d.Assigner3rdUsername, &d.Reviewer3Username)
}

func (r *eventRepoPG) Details(ctx context.Context, id int64) (*Details, error) {
	var d Details
	err := r.conn(ctx).QueryRow(ctx, detailsSQL()+" WHERE e.id = $1", id).Scan(detailsDest(&d)...)
	if err != nil {
		return nil, notFound(err)
	}
	if d.Criteria, err = r.Criteria(ctx, id); err != nil {
		return nil, err
	}
	if d.Solicitations, err = r.Solicitations(ctx, id); err != nil {
		return nil, err
	}
	return &d, nil
}

const reviewCols = `id, event_id, reviewer_id, mci, abnormal_ce_values_flag, ce_criteria,
	chest_pain_flag, ecg_changes_flag, lvm_by_imaging_flag, ci, ci_type, type,
	secondary_cause, other_cause, false_positive_flag, false_positive_reason,
	false_positive_other_cause, current_tobacco_use_flag, past_tobacco_use_flag,
	cocaine_use_flag, family_history_flag, ecg_type, cardiac_cath`

func reviewDest(rv *Review) []interface{} {
	return []interface{}{
		&rv.ID, &rv.EventID, &rv.ReviewerID, &rv.MCI, &rv.AbnormalCEValues, &rv.CECriteria,
		&rv.ChestPain, &rv.ECGChanges, &rv.LVMByImaging, &rv.CI, &rv.CIType, &rv.Type,
		&rv.SecondaryCause, &rv.OtherCause, &rv.FalsePositive, &rv.FalsePositiveReason,
		&rv.FalsePositiveOtherCause, &rv.CurrentTobaccoUse, &rv.PastTobaccoUse,
		&rv.CocaineUse, &rv.FamilyHistory, &rv.ECGType, &rv.CardiacCath,
	}
}

func (r *eventRepoPG) Export(ctx context.Context) ([]ExportRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, detailsSQL()+" ORDER BY e.id")
	if err != nil {
		return nil, fmt.Errorf("export events: %w", err)
	}
	var details []*Details
	for rows.Next() {
		var d Details
		if err := rows.Scan(detailsDest(&d)...); err != nil {
			rows.Close()
			return nil, err
		}
		details = append(details, &d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.conn(ctx).Query(ctx, `SELECT `+reviewCols+` FROM reviews ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("export reviews: %w", err)
	}
	var reviews []*Review
	for rows.Next() {
		var rv Review
		if err := rows.Scan(reviewDest(&rv)...); err != nil {
			rows.Close()
			return nil, err
		}
		reviews = append(reviews, &rv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.conn(ctx).Query(ctx, `
		SELECT event_id, outcome, primary_secondary, false_positive_event, secondary_cause,
			secondary_cause_other, false_positive_reason, ci, ci_type, ecg_type
		FROM event_derived_datas`)
	if err != nil {
		return nil, fmt.Errorf("export derived data: %w", err)
	}
	var derived []*DerivedData
	for rows.Next() {
		var d DerivedData
		if err := rows.Scan(&d.EventID, &d.Outcome, &d.PrimarySecondary, &d.FalsePositiveEvent,
			&d.SecondaryCause, &d.SecondaryCauseOther, &d.FalsePositiveReason, &d.CI, &d.CIType, &d.ECGType); err != nil {
			rows.Close()
			return nil, err
		}
		derived = append(derived, &d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	criteria, err := r.criteria(ctx, `SELECT id, event_id, name, value FROM criterias ORDER BY event_id, id`)
	if err != nil {
		return nil, err
	}
	return assembleExport(details, reviews, derived, criteria), nil
}

func (r *eventRepoPG) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT status, COUNT(*) FROM events GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()
	counts := make(map[Status]int)
	for rows.Next() {
		var s Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, rows.Err()
}

func (r *eventRepoPG) criteria(ctx context.Context, query string, args ...interface{}) ([]Criterion, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("criteria: %w", err)
	}
	defer rows.Close()
	items := []Criterion{}
	for rows.Next() {
		var c Criterion
		if err := rows.Scan(&c.ID, &c.EventID, &c.Name, &c.Value); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *eventRepoPG) Criteria(ctx context.Context, eventID int64) ([]Criterion, error) {
	return r.criteria(ctx, `SELECT id, event_id, name, value FROM criterias WHERE event_id = $1 ORDER BY id`, eventID)
}

func (r *eventRepoPG) Solicitations(ctx context.Context, eventID int64) ([]Solicitation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, event_id, date, contact FROM solicitations
		WHERE event_id = $1 ORDER BY date, id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("solicitations: %w", err)
	}
	defer rows.Close()
	items := []Solicitation{}
	for rows.Next() {
		var s Solicitation
		if err := rows.Scan(&s.ID, &s.EventID, &s.Date, &s.Contact); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *eventRepoPG) Get(ctx context.Context, id int64) (*Event, error) {
	var e Event
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+eventCols+` FROM events e WHERE e.id = $1`, id).Scan(eventDest(&e)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (r *eventRepoPG) GetForUpdate(ctx context.Context, id int64) (*Event, error) {
	var e Event
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+eventCols+` FROM events e WHERE e.id = $1 FOR UPDATE`, id).Scan(eventDest(&e)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (r *eventRepoPG) Create(ctx context.Context, e *Event) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO events (patient_id, creator_id, status, add_date, event_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		e.PatientID, e.CreatorID, e.Status, e.AddDate, e.EventDate).Scan(&e.ID)
}

func (r *eventRepoPG) exec(ctx context.Context, query string, args ...interface{}) error {
	tag, err := r.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *eventRepoPG) Update(ctx context.Context, id int64, eventDate *pgtype.Date, patientID *int64) error {
	return r.exec(ctx, `
		UPDATE events
		SET event_date = COALESCE($2, event_date), patient_id = COALESCE($3, patient_id)
		WHERE id = $1`, id, eventDate, patientID)
}

func (r *eventRepoPG) AddCriterion(ctx context.Context, c *Criterion) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO criterias (event_id, name, value) VALUES ($1, $2, $3) RETURNING id`,
		c.EventID, c.Name, c.Value).Scan(&c.ID)
}

func (r *eventRepoPG) AddSolicitation(ctx context.Context, s *Solicitation) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO solicitations (event_id, date, contact) VALUES ($1, $2, $3) RETURNING id`,
		s.EventID, s.Date, s.Contact).Scan(&s.ID)
}

func (r *eventRepoPG) MarkUploaded(ctx context.Context, id, uploaderID, fileNumber int64, originalName string, on pgtype.Date) error {
	return r.exec(ctx, `
		UPDATE events
		SET uploader_id = $2, upload_date = $3, file_number = $4, original_name = $5, status = $6
		WHERE id = $1`, id, uploaderID, on, fileNumber, originalName, StatusUploaded)
}

func (r *eventRepoPG) MarkNoPacket(ctx context.Context, id, markerID int64, np *NoPacket, on pgtype.Date) error {
	return r.exec(ctx, `
		UPDATE events
		SET marker_id = $2, mark_no_packet_date = $3, no_packet_reason = $4, two_attempts_flag = $5,
			prior_event_date = $6, prior_event_onsite_flag = $7, other_cause = $8, status = $9
		WHERE id = $1`,
		id, markerID, on, np.Reason, np.TwoAttempts, np.PriorEventDate, np.PriorEventOnsite, np.OtherCause,
		StatusNoPacketAvailable)
}

func (r *eventRepoPG) MarkScrubbed(ctx context.Context, id, scrubberID, fileNumber int64, on pgtype.Date) error {
	return r.exec(ctx, `
		UPDATE events
		SET scrubber_id = $2, scrub_date = $3, file_number = $4, status = $5
		WHERE id = $1`, id, scrubberID, on, fileNumber, StatusScrubbed)
}

func (r *eventRepoPG) Screen(ctx context.Context, id int64, d Decision, screenerID int64, message *string, on pgtype.Date) error {
	switch d {
	case DecisionAccept:
		return r.exec(ctx, `
			UPDATE events SET screener_id = $2, screen_date = $3, status = $4
			WHERE id = $1`, id, screenerID, on, StatusScreened)
	case DecisionRescrub:
		return r.exec(ctx, `
			UPDATE events SET rescrub_message = $2, screen_date = NULL, status = $3
			WHERE id = $1`, id, message, StatusUploaded)
	case DecisionReject:
		return r.exec(ctx, `
			UPDATE events SET screener_id = $2, screen_date = $3, reject_message = $4, status = $5
			WHERE id = $1`, id, screenerID, on, message, StatusRejected)
	}
	return fmt.Errorf("unknown decision %q", d)
}

// assignSQL sets the slot's reviewer and audit columns. Slots 1 and 2
// share assigner_id and assign_date and only apply to screened events, or
// assigned ones not yet sent. Status moves to assigned once both first-round
// reviewers are present. Slot 3 applies to events that need a third review.
// A reviewer never holds two slots on one event; such rows are skipped.
var assignSQL = map[Slot]string{
	SlotFirst: `
		UPDATE events SET reviewer1_id = $1, assigner_id = $2, assign_date = $3,
			status = CASE WHEN reviewer2_id IS NOT NULL THEN 'assigned' ELSE status END
		WHERE id = ANY($4) AND status IN ('screened', 'assigned')
			AND reviewer2_id IS DISTINCT FROM $1
		RETURNING id`,
	SlotSecond: `
		UPDATE events SET reviewer2_id = $1, assigner_id = $2, assign_date = $3,
			status = CASE WHEN reviewer1_id IS NOT NULL THEN 'assigned' ELSE status END
		WHERE id = ANY($4) AND status IN ('screened', 'assigned')
			AND reviewer1_id IS DISTINCT FROM $1
		RETURNING id`,
	SlotThird: `
		UPDATE events SET reviewer3_id = $1, assigner3rd_id = $2, assign3rd_date = $3,
			status = 'third_review_assigned'
		WHERE id = ANY($4) AND status = 'third_review_needed'
			AND reviewer1_id IS DISTINCT FROM $1 AND reviewer2_id IS DISTINCT FROM $1
		RETURNING id`,
}

func (r *eventRepoPG) Assign(ctx context.Context, ids []int64, slot Slot, reviewerID, assignerID int64, on pgtype.Date) ([]int64, error) {
	query, ok := assignSQL[slot]
	if !ok {
		return nil, fmt.Errorf("unknown slot %d", slot)
	}
	rows, err := r.conn(ctx).Query(ctx, query, reviewerID, assignerID, on, ids)
	if err != nil {
		return nil, fmt.Errorf("assign reviewers: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *eventRepoPG) Send(ctx context.Context, ids []int64, senderID int64, on pgtype.Date) ([]SentEvent, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		UPDATE events SET sender_id = $1, send_date = $2,
			status = 'sent'
		WHERE id = ANY($3) AND status = 'assigned'
		RETURNING id, reviewer1_id, reviewer2_id`, senderID, on, ids)
	if err != nil {
		return nil, fmt.Errorf("send to reviewers: %w", err)
	}
	defer rows.Close()
	var sent []SentEvent
	for rows.Next() {
		var s SentEvent
		if err := rows.Scan(&s.ID, &s.Reviewer1ID, &s.Reviewer2ID); err != nil {
			return nil, err
		}
		sent = append(sent, s)
	}
	return sent, rows.Err()
}

func (r *eventRepoPG) AddReview(ctx context.Context, rv *Review) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO reviews (event_id, reviewer_id, mci, abnormal_ce_values_flag, ce_criteria,
			chest_pain_flag, ecg_changes_flag, lvm_by_imaging_flag, ci, ci_type, type,
			secondary_cause, other_cause, false_positive_flag, false_positive_reason,
			false_positive_other_cause, current_tobacco_use_flag, past_tobacco_use_flag,
			cocaine_use_flag, family_history_flag, ecg_type, cardiac_cath)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		RETURNING id`,
		rv.EventID, rv.ReviewerID, rv.MCI, rv.AbnormalCEValues, rv.CECriteria,
		rv.ChestPain, rv.ECGChanges, rv.LVMByImaging, rv.CI, rv.CIType, rv.Type,
		rv.SecondaryCause, rv.OtherCause, rv.FalsePositive, rv.FalsePositiveReason,
		rv.FalsePositiveOtherCause, rv.CurrentTobaccoUse, rv.PastTobaccoUse,
		rv.CocaineUse, rv.FamilyHistory, rv.ECGType, rv.CardiacCath).Scan(&rv.ID)
}

func (r *eventRepoPG) ReviewBy(ctx context.Context, eventID, reviewerID int64) (*Review, error) {
	var rv Review
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT `+reviewCols+` FROM reviews
		WHERE event_id = $1 AND reviewer_id = $2
		ORDER BY id DESC LIMIT 1`, eventID, reviewerID).Scan(reviewDest(&rv)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &rv, nil
}

var reviewDateColumn = map[Slot]string{
	SlotFirst:  "review1_date",
	SlotSecond: "review2_date",
	SlotThird:  "review3_date",
}

func (r *eventRepoPG) RecordReview(ctx context.Context, id int64, slot Slot, status Status, on pgtype.Date) error {
	col, ok := reviewDateColumn[slot]
	if !ok {
		return fmt.Errorf("unknown slot %d", slot)
	}
	return r.exec(ctx, `UPDATE events SET status = $2, `+col+` = $3 WHERE id = $1`, id, status, on)
}
