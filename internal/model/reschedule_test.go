package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEligibilityGracePeriod(t *testing.T) {
	now := fixedNow()

	tests := []struct {
		name   string
		offset time.Duration
		status Status
		want   bool
	}{
		{"30 minutes late is within grace", -30 * time.Minute, StatusScheduled, false},
		{"2 hours late is eligible", -2 * time.Hour, StatusScheduled, true},
		{"exactly at grace boundary", -time.Hour, StatusScheduled, false},
		{"future slot", time.Hour, StatusScheduled, false},
		{"completed never eligible", -2 * time.Hour, StatusCompleted, false},
		{"cancelled never eligible", -2 * time.Hour, StatusCancelled, false},
		{"overdue status still eligible", -2 * time.Hour, StatusOverdue, true},
		{"checked in and late", -3 * time.Hour, StatusPatientCheckedIn, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := consultationAt(tt.offset, tt.status)
			assert.Equal(t, tt.want, c.IsEligibleForReschedule(now, ist, time.Hour))
		})
	}
}

func TestRequestReschedule(t *testing.T) {
	m := newMachine()

	t.Run("ineligible leaves consultation untouched", func(t *testing.T) {
		c := consultationAt(-30*time.Minute, StatusScheduled)
		before := *c

		err := m.RequestReschedule(c, "patient-1", "running late")

		require.ErrorIs(t, err, ErrIneligibleForReschedule)
		assert.True(t, errors.Is(err, ErrValidation))
		assert.Equal(t, before, *c)
	})

	t.Run("eligible forces overdue status", func(t *testing.T) {
		c := consultationAt(-2*time.Hour, StatusPatientCheckedIn)

		require.NoError(t, m.RequestReschedule(c, "patient-1", "missed the call"))

		assert.Equal(t, StatusOverdue, c.Status)
		assert.True(t, c.Reschedule.Requested)
		assert.Equal(t, fixedNow(), *c.Reschedule.RequestedAt)
		assert.Equal(t, "patient-1", c.Reschedule.RequestedBy)
		assert.Equal(t, "missed the call", c.Reschedule.Reason)
	})
}

func TestRescheduleGateOrder(t *testing.T) {
	m := newMachine()

	t.Run("approve before request", func(t *testing.T) {
		c := consultationAt(-2*time.Hour, StatusScheduled)
		before := *c

		err := m.ApproveReschedule(c, "admin-1")

		require.ErrorIs(t, err, ErrNoRescheduleRequested)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, before, *c)
	})

	t.Run("apply before approval", func(t *testing.T) {
		c := consultationAt(-2*time.Hour, StatusScheduled)
		require.NoError(t, m.RequestReschedule(c, "patient-1", "sick"))
		before := *c

		rec, err := m.ApplyReschedule(c, Date{Year: 2024, Month: 3, Day: 12}, TimeOfDay{Hour: 10}, "new slot")

		require.ErrorIs(t, err, ErrRescheduleNotApproved)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Nil(t, rec)
		assert.Equal(t, before, *c)
	})
}

func TestApplyReschedule(t *testing.T) {
	m := newMachine()
	c := consultationAt(-2*time.Hour, StatusScheduled)
	oldDate, oldTime := c.ScheduledDate, c.ScheduledTime

	require.NoError(t, m.RequestReschedule(c, "patient-1", "network issues"))
	require.NoError(t, m.ApproveReschedule(c, "admin-1"))
	assert.True(t, c.Reschedule.Approved)
	assert.Equal(t, "admin-1", c.Reschedule.ApprovedBy)

	newDate := Date{Year: 2024, Month: time.March, Day: 12}
	newTime := TimeOfDay{Hour: 16, Minute: 45}

	rec, err := m.ApplyReschedule(c, newDate, newTime, "doctor available")
	require.NoError(t, err)

	assert.Equal(t, &RescheduleRecord{
		ConsultationID: "CON001",
		OldDate:        oldDate,
		OldTime:        oldTime,
		NewDate:        newDate,
		NewTime:        newTime,
		Reason:         "doctor available",
		RequestedBy:    "patient-1",
		CreatedAt:      fixedNow(),
	}, rec)

	assert.Equal(t, newDate, c.ScheduledDate)
	assert.Equal(t, newTime, c.ScheduledTime)
	assert.Equal(t, StatusRescheduled, c.Status)
	assert.False(t, c.Reschedule.Requested)
	assert.False(t, c.Reschedule.Approved)
	assert.Nil(t, c.Reschedule.RequestedAt)
	assert.Nil(t, c.Reschedule.ApprovedAt)
	assert.Empty(t, c.Reschedule.Reason)
	require.NotNil(t, c.Reschedule.AppliedAt)
	assert.Equal(t, fixedNow(), *c.Reschedule.AppliedAt)

	// A second apply needs a fresh request and approval.
	_, err = m.ApplyReschedule(c, newDate, newTime, "again")
	assert.ErrorIs(t, err, ErrRescheduleNotApproved)
}
