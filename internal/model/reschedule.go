package model

import "time"

// RescheduleState is the in-flight reschedule request embedded in a
// consultation. Applying a reschedule resets it and appends a
// RescheduleRecord.
type RescheduleState struct {
	Requested   bool       `json:"requested"`
	RequestedAt *time.Time `json:"requested_at,omitempty"`
	RequestedBy string     `json:"requested_by,omitempty"`
	Reason      string     `json:"reason,omitempty"`

	Approved   bool       `json:"approved"`
	ApprovedBy string     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`

	AppliedAt *time.Time `json:"rescheduled_at,omitempty"`
}

// RescheduleRecord is an immutable history entry for one applied reschedule.
type RescheduleRecord struct {
	ID             int64     `json:"id"`
	ConsultationID string    `json:"consultation_id"`
	OldDate        Date      `json:"old_date"`
	OldTime        TimeOfDay `json:"old_time"`
	NewDate        Date      `json:"new_date"`
	NewTime        TimeOfDay `json:"new_time"`
	Reason         string    `json:"reason"`
	RequestedBy    string    `json:"requested_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// RequestReschedule opens a reschedule request and forces the stored status to
// overdue. Nothing changes unless the consultation is eligible.
func (m *StateMachine) RequestReschedule(c *Consultation, actor, reason string) error {
	now := m.now()
	if !c.IsEligibleForReschedule(now, m.loc, m.grace) {
		return ErrIneligibleForReschedule
	}

	c.Reschedule.Requested = true
	c.Reschedule.RequestedAt = &now
	c.Reschedule.RequestedBy = actor
	c.Reschedule.Reason = reason
	c.Status = StatusOverdue
	return nil
}

func (m *StateMachine) ApproveReschedule(c *Consultation, actor string) error {
	if !c.Reschedule.Requested {
		return ErrNoRescheduleRequested
	}

	now := m.now()
	c.Reschedule.Approved = true
	c.Reschedule.ApprovedBy = actor
	c.Reschedule.ApprovedAt = &now
	return nil
}

// ApplyReschedule moves the consultation to the new slot and returns the
// history record the caller must persist with it.
func (m *StateMachine) ApplyReschedule(c *Consultation, newDate Date, newTime TimeOfDay, reason string) (*RescheduleRecord, error) {
	if !c.Reschedule.Approved {
		return nil, ErrRescheduleNotApproved
	}

	now := m.now()
	rec := &RescheduleRecord{
		ConsultationID: c.ID,
		OldDate:        c.ScheduledDate,
		OldTime:        c.ScheduledTime,
		NewDate:        newDate,
		NewTime:        newTime,
		Reason:         reason,
		RequestedBy:    c.Reschedule.RequestedBy,
		CreatedAt:      now,
	}

	c.ScheduledDate = newDate
	c.ScheduledTime = newTime
	c.Status = StatusRescheduled
	c.Reschedule = RescheduleState{
		// Requester and approver are kept; the open request is cleared.
		RequestedBy: c.Reschedule.RequestedBy,
		ApprovedBy:  c.Reschedule.ApprovedBy,
		AppliedAt:   &now,
	}
	return rec, nil
}
