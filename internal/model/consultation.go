// Package model holds the consultation entity, its guarded status transitions
// and the reschedule workflow, together with the receipt and payment
// transaction records produced while collecting fees.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusScheduled            Status = "scheduled"
	StatusPatientCheckedIn     Status = "patient_checked_in"
	StatusReadyForConsultation Status = "ready_for_consultation"
	StatusInProgress           Status = "in_progress"
	StatusCompleted            Status = "completed"
	StatusCancelled            Status = "cancelled"
	StatusNoShow               Status = "no_show"
	StatusRescheduled          Status = "rescheduled"
	StatusOverdue              Status = "overdue"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusScheduled,
	StatusPatientCheckedIn,
	StatusReadyForConsultation,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
	StatusNoShow,
	StatusRescheduled,
	StatusOverdue,
}

func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

func (s Status) in(set ...Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type ConsultationType string

const ConsultationVideoCall ConsultationType = "video_call"

const DefaultDurationMinutes = 30

type Consultation struct {
	ID        string  `json:"id"`
	PatientID string  `json:"patient_id"`
	DoctorID  string  `json:"doctor_id"`
	ClinicID  *string `json:"clinic_id,omitempty"`

	ScheduledDate   Date             `json:"scheduled_date"`
	ScheduledTime   TimeOfDay        `json:"scheduled_time"`
	DurationMinutes int              `json:"duration_minutes"`
	Type            ConsultationType `json:"consultation_type"`

	ChiefComplaint string `json:"chief_complaint"`
	Symptoms       string `json:"symptoms"`
	DoctorNotes    string `json:"doctor_notes"`
	PatientNotes   string `json:"patient_notes"`

	Status Status `json:"status"`

	ActualStartTime        *time.Time `json:"actual_start_time,omitempty"`
	ActualEndTime          *time.Time `json:"actual_end_time,omitempty"`
	CheckedInAt            *time.Time `json:"checked_in_at,omitempty"`
	CheckedInBy            string     `json:"checked_in_by,omitempty"`
	ReadyForConsultationAt *time.Time `json:"ready_for_consultation_at,omitempty"`
	ReadyMarkedBy          string     `json:"ready_marked_by,omitempty"`

	Fee           decimal.Decimal `json:"consultation_fee"`
	IsPaid        bool            `json:"is_paid"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	PaymentStatus PaymentStatus   `json:"payment_status"`

	IsFollowUp           bool    `json:"is_follow_up"`
	ParentConsultationID *string `json:"parent_consultation_id,omitempty"`
	FollowUpRequired     bool    `json:"follow_up_required"`
	FollowUpDate         *Date   `json:"follow_up_date,omitempty"`

	CancelledBy        string     `json:"cancelled_by,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`

	NoShowMarkedBy string     `json:"no_show_marked_by,omitempty"`
	NoShowAt       *time.Time `json:"no_show_at,omitempty"`

	Reschedule RescheduleState `json:"reschedule"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConsultation returns a consultation in its initial scheduled state.
func NewConsultation(patientID, doctorID string, date Date, at TimeOfDay, fee decimal.Decimal) *Consultation {
	return &Consultation{
		PatientID:       patientID,
		DoctorID:        doctorID,
		ScheduledDate:   date,
		ScheduledTime:   at,
		DurationMinutes: DefaultDurationMinutes,
		Type:            ConsultationVideoCall,
		Status:          StatusScheduled,
		Fee:             fee,
		PaymentStatus:   PaymentPending,
	}
}

// IsCheckedIn is derived from Status and never stored.
func (c *Consultation) IsCheckedIn() bool {
	return c.Status.in(StatusPatientCheckedIn, StatusReadyForConsultation, StatusInProgress, StatusCompleted)
}

// IsReadyForConsultation is derived from Status and never stored.
func (c *Consultation) IsReadyForConsultation() bool {
	return c.Status.in(StatusReadyForConsultation, StatusInProgress, StatusCompleted)
}

// ScheduledAt combines the scheduled date and time in loc.
func (c *Consultation) ScheduledAt(loc *time.Location) time.Time {
	return Combine(c.ScheduledDate, c.ScheduledTime, loc)
}

// ActualDuration is the whole minutes between start and end. ok is false
// when either timestamp is missing.
func (c *Consultation) ActualDuration() (minutes int, ok bool) {
	if c.ActualStartTime == nil || c.ActualEndTime == nil {
		return 0, false
	}
	return int(c.ActualEndTime.Sub(*c.ActualStartTime) / time.Minute), true
}

func (c *Consultation) IsUpcoming(now time.Time, loc *time.Location) bool {
	return c.Status == StatusScheduled && c.ScheduledAt(loc).After(now)
}

// IsOverdue is the time-based overdue signal. It is independent of the stored
// StatusOverdue, which only a reschedule request sets.
func (c *Consultation) IsOverdue(now time.Time, loc *time.Location) bool {
	if c.Status.in(StatusCompleted, StatusCancelled, StatusRescheduled) {
		return false
	}
	return c.ScheduledAt(loc).Before(now)
}

func (c *Consultation) HoursOverdue(now time.Time, loc *time.Location) float64 {
	if !c.IsOverdue(now, loc) {
		return 0
	}
	return now.Sub(c.ScheduledAt(loc)).Hours()
}

func (c *Consultation) IsEligibleForReschedule(now time.Time, loc *time.Location, grace time.Duration) bool {
	if c.Status.in(StatusCompleted, StatusCancelled) {
		return false
	}
	return c.ScheduledAt(loc).Before(now.Add(-grace))
}
