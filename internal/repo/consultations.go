package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Alijeyrad/teleconsult/internal/model"
)

var consultationColumns = []string{
	"id", "patient_id", "doctor_id", "clinic_id",
	"scheduled_date", "scheduled_time", "duration_minutes", "consultation_type",
	"chief_complaint", "symptoms", "doctor_notes", "patient_notes",
	"status",
	"actual_start_time", "actual_end_time", "checked_in_at", "checked_in_by",
	"ready_for_consultation_at", "ready_marked_by",
	"consultation_fee", "is_paid", "payment_method", "payment_status",
	"is_follow_up", "parent_consultation_id", "follow_up_required", "follow_up_date",
	"cancelled_by", "cancellation_reason", "cancelled_at",
	"no_show_marked_by", "no_show_at",
	"reschedule_requested", "reschedule_requested_at", "reschedule_requested_by", "reschedule_reason",
	"reschedule_approved", "reschedule_approved_by", "reschedule_approved_at", "rescheduled_at",
	"created_at", "updated_at",
}

var consultationSelect = "SELECT " + strings.Join(consultationColumns, ", ") + " FROM consultations"

// consultationFields returns pointers in consultationColumns order.
func consultationFields(c *model.Consultation) []any {
	r := &c.Reschedule
	return []any{
		&c.ID, &c.PatientID, &c.DoctorID, &c.ClinicID,
		&c.ScheduledDate, &c.ScheduledTime, &c.DurationMinutes, &c.Type,
		&c.ChiefComplaint, &c.Symptoms, &c.DoctorNotes, &c.PatientNotes,
		&c.Status,
		&c.ActualStartTime, &c.ActualEndTime, &c.CheckedInAt, &c.CheckedInBy,
		&c.ReadyForConsultationAt, &c.ReadyMarkedBy,
		&c.Fee, &c.IsPaid, &c.PaymentMethod, &c.PaymentStatus,
		&c.IsFollowUp, &c.ParentConsultationID, &c.FollowUpRequired, &c.FollowUpDate,
		&c.CancelledBy, &c.CancellationReason, &c.CancelledAt,
		&c.NoShowMarkedBy, &c.NoShowAt,
		&r.Requested, &r.RequestedAt, &r.RequestedBy, &r.Reason,
		&r.Approved, &r.ApprovedBy, &r.ApprovedAt, &r.AppliedAt,
		&c.CreatedAt, &c.UpdatedAt,
	}
}

// consultationValues dereferences consultationFields for writes.
func consultationValues(c *model.Consultation) []any {
	r := c.Reschedule
	return []any{
		c.ID, c.PatientID, c.DoctorID, c.ClinicID,
		c.ScheduledDate, c.ScheduledTime, c.DurationMinutes, string(c.Type),
		c.ChiefComplaint, c.Symptoms, c.DoctorNotes, c.PatientNotes,
		string(c.Status),
		c.ActualStartTime, c.ActualEndTime, c.CheckedInAt, c.CheckedInBy,
		c.ReadyForConsultationAt, c.ReadyMarkedBy,
		c.Fee, c.IsPaid, c.PaymentMethod, string(c.PaymentStatus),
		c.IsFollowUp, c.ParentConsultationID, c.FollowUpRequired, c.FollowUpDate,
		c.CancelledBy, c.CancellationReason, c.CancelledAt,
		c.NoShowMarkedBy, c.NoShowAt,
		r.Requested, r.RequestedAt, r.RequestedBy, r.Reason,
		r.Approved, r.ApprovedBy, r.ApprovedAt, r.AppliedAt,
		c.CreatedAt, c.UpdatedAt,
	}
}

func placeholders(from, n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(p, ", ")
}

func (q *queries) CreateConsultation(ctx context.Context, c *model.Consultation) error {
	query := fmt.Sprintf("INSERT INTO consultations (%s) VALUES (%s)",
		strings.Join(consultationColumns, ", "), placeholders(1, len(consultationColumns)))

	if _, err := q.db.ExecContext(ctx, query, consultationValues(c)...); err != nil {
		return fmt.Errorf("insert consultation %s: %w", c.ID, mapError(err))
	}
	return nil
}

func (q *queries) GetConsultation(ctx context.Context, id string) (*model.Consultation, error) {
	c := &model.Consultation{}
	err := q.db.QueryRowContext(ctx, consultationSelect+" WHERE id = $1", id).Scan(consultationFields(c)...)
	if err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

// UpdateConsultation rewrites every mutable column. The ID and creation time
// are never changed.
func (q *queries) UpdateConsultation(ctx context.Context, c *model.Consultation) error {
	cols := consultationColumns[1:]
	vals := consultationValues(c)[1:]

	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		if col == "created_at" {
			continue
		}
		args = append(args, vals[i])
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	args = append(args, c.ID)

	query := fmt.Sprintf("UPDATE consultations SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update consultation %s: %w", c.ID, mapError(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *queries) ConsultationExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM consultations WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (q *queries) ListOpenConsultations(ctx context.Context, onOrBefore model.Date) ([]*model.Consultation, error) {
	rows, err := q.db.QueryContext(ctx, consultationSelect+`
		WHERE status NOT IN ('completed', 'cancelled', 'rescheduled', 'no_show')
		  AND scheduled_date <= $1
		ORDER BY scheduled_date, scheduled_time`, onOrBefore)
	if err != nil {
		return nil, fmt.Errorf("list open consultations: %w", err)
	}
	defer rows.Close()

	var out []*model.Consultation
	for rows.Next() {
		c := &model.Consultation{}
		if err := rows.Scan(consultationFields(c)...); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *queries) AppendReschedule(ctx context.Context, rec *model.RescheduleRecord) error {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO consultation_reschedules
			(consultation_id, old_date, old_time, new_date, new_time, reason, requested_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		rec.ConsultationID, rec.OldDate, rec.OldTime, rec.NewDate, rec.NewTime,
		rec.Reason, rec.RequestedBy, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("insert reschedule for %s: %w", rec.ConsultationID, mapError(err))
	}
	return nil
}

func (q *queries) ListReschedules(ctx context.Context, consultationID string) ([]*model.RescheduleRecord, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, consultation_id, old_date, old_time, new_date, new_time, reason, requested_by, created_at
		FROM consultation_reschedules
		WHERE consultation_id = $1
		ORDER BY created_at DESC, id DESC`, consultationID)
	if err != nil {
		return nil, fmt.Errorf("list reschedules: %w", err)
	}
	defer rows.Close()

	var out []*model.RescheduleRecord
	for rows.Next() {
		r := &model.RescheduleRecord{}
		if err := rows.Scan(&r.ID, &r.ConsultationID, &r.OldDate, &r.OldTime, &r.NewDate, &r.NewTime,
			&r.Reason, &r.RequestedBy, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
