package model

import "time"

// DefaultGracePeriod is how late a consultation must be before a reschedule
// may be requested.
const DefaultGracePeriod = time.Hour

// StateMachine applies guarded status transitions to consultations. The
// lifecycle guards return false and leave the consultation untouched when
// the current status does not allow the transition; the reschedule steps
// return errors instead.
type StateMachine struct {
	loc   *time.Location
	grace time.Duration
	now   func() time.Time
}

// NewStateMachine builds a state machine reading scheduled slots in loc.
// A nil loc means UTC, a non-positive grace means DefaultGracePeriod and a
// nil now means time.Now.
func NewStateMachine(loc *time.Location, grace time.Duration, now func() time.Time) *StateMachine {
	if loc == nil {
		loc = time.UTC
	}
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	if now == nil {
		now = time.Now
	}
	return &StateMachine{loc: loc, grace: grace, now: now}
}

func (m *StateMachine) Location() *time.Location { return m.loc }

func (m *StateMachine) Grace() time.Duration { return m.grace }

func (m *StateMachine) Now() time.Time { return m.now() }

func (m *StateMachine) CheckIn(c *Consultation, actor string) bool {
	if c.Status != StatusScheduled {
		return false
	}
	now := m.now()
	c.Status = StatusPatientCheckedIn
	c.CheckedInAt = &now
	c.CheckedInBy = actor
	return true
}

func (m *StateMachine) MarkReady(c *Consultation, actor string) bool {
	if !c.Status.in(StatusScheduled, StatusPatientCheckedIn) {
		return false
	}
	now := m.now()
	c.Status = StatusReadyForConsultation
	c.ReadyForConsultationAt = &now
	c.ReadyMarkedBy = actor
	return true
}

func (m *StateMachine) Start(c *Consultation) bool {
	if !c.Status.in(StatusReadyForConsultation, StatusPatientCheckedIn) {
		return false
	}
	now := m.now()
	c.Status = StatusInProgress
	c.ActualStartTime = &now
	return true
}

func (m *StateMachine) Complete(c *Consultation) bool {
	if c.Status != StatusInProgress {
		return false
	}
	now := m.now()
	c.Status = StatusCompleted
	c.ActualEndTime = &now
	return true
}

func (m *StateMachine) Cancel(c *Consultation, actor, reason string) bool {
	if c.Status.Terminal() {
		return false
	}
	now := m.now()
	c.Status = StatusCancelled
	c.CancelledBy = actor
	c.CancellationReason = reason
	c.CancelledAt = &now
	return true
}

// MarkNoShow closes a consultation the patient never attended. It is not
// allowed once the consultation has started.
func (m *StateMachine) MarkNoShow(c *Consultation, actor string) bool {
	if !c.Status.in(StatusScheduled, StatusPatientCheckedIn, StatusReadyForConsultation, StatusOverdue, StatusRescheduled) {
		return false
	}
	now := m.now()
	c.Status = StatusNoShow
	c.NoShowMarkedBy = actor
	c.NoShowAt = &now
	return true
}

// Snapshot evaluates every time-derived predicate at the machine's clock.
func (m *StateMachine) Snapshot(c *Consultation) Timing {
	now := m.now()
	t := Timing{
		ScheduledAt:             c.ScheduledAt(m.loc),
		IsCheckedIn:             c.IsCheckedIn(),
		IsReadyForConsultation:  c.IsReadyForConsultation(),
		IsUpcoming:              c.IsUpcoming(now, m.loc),
		IsOverdue:               c.IsOverdue(now, m.loc),
		HoursOverdue:            c.HoursOverdue(now, m.loc),
		IsEligibleForReschedule: c.IsEligibleForReschedule(now, m.loc, m.grace),
	}
	if d, ok := c.ActualDuration(); ok {
		t.ActualDurationMinutes = &d
	}
	return t
}

// Timing is the set of derived values reported alongside a consultation.
type Timing struct {
	ScheduledAt             time.Time `json:"scheduled_datetime"`
	IsCheckedIn             bool      `json:"is_checked_in"`
	IsReadyForConsultation  bool      `json:"is_ready_for_consultation"`
	IsUpcoming              bool      `json:"is_upcoming"`
	IsOverdue               bool      `json:"is_overdue"`
	HoursOverdue            float64   `json:"hours_overdue"`
	IsEligibleForReschedule bool      `json:"is_eligible_for_reschedule"`
	ActualDurationMinutes   *int      `json:"actual_duration,omitempty"`
}
