package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 5*3600+30*60)

func fixedNow() time.Time {
	return time.Date(2024, 3, 10, 12, 0, 0, 0, ist)
}

func newMachine() *StateMachine {
	return NewStateMachine(ist, time.Hour, fixedNow)
}

// consultationAt returns a consultation scheduled offset from fixedNow.
func consultationAt(offset time.Duration, status Status) *Consultation {
	at := fixedNow().Add(offset)
	c := NewConsultation("patient-1", "doctor-1", DateOf(at),
		TimeOfDay{Hour: at.Hour(), Minute: at.Minute(), Second: at.Second()}, decimal.RequireFromString("500.00"))
	c.ID = "CON001"
	c.Status = status
	return c
}

func TestDerivedPredicatesByStatus(t *testing.T) {
	tests := []struct {
		status      Status
		wantChecked bool
		wantReady   bool
	}{
		{StatusScheduled, false, false},
		{StatusPatientCheckedIn, true, false},
		{StatusReadyForConsultation, true, true},
		{StatusInProgress, true, true},
		{StatusCompleted, true, true},
		{StatusCancelled, false, false},
		{StatusNoShow, false, false},
		{StatusRescheduled, false, false},
		{StatusOverdue, false, false},
	}
	require.Len(t, tests, len(AllStatuses))

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			c := &Consultation{Status: tt.status}
			assert.Equal(t, tt.wantChecked, c.IsCheckedIn())
			assert.Equal(t, tt.wantReady, c.IsReadyForConsultation())
		})
	}
}

func TestCheckInOnlyFromScheduled(t *testing.T) {
	m := newMachine()

	for _, status := range AllStatuses {
		t.Run(string(status), func(t *testing.T) {
			c := consultationAt(time.Hour, status)
			before := *c

			ok := m.CheckIn(c, "nurse-1")

			if status == StatusScheduled {
				require.True(t, ok)
				assert.Equal(t, StatusPatientCheckedIn, c.Status)
				require.NotNil(t, c.CheckedInAt)
				assert.Equal(t, fixedNow(), *c.CheckedInAt)
				assert.Equal(t, "nurse-1", c.CheckedInBy)
				return
			}
			assert.False(t, ok)
			assert.Equal(t, before, *c)
		})
	}
}

func TestLifecycleGuards(t *testing.T) {
	m := newMachine()

	type op func(c *Consultation) bool
	var (
		markReady = func(c *Consultation) bool { return m.MarkReady(c, "staff") }
		start     = func(c *Consultation) bool { return m.Start(c) }
		complete  = func(c *Consultation) bool { return m.Complete(c) }
		cancel    = func(c *Consultation) bool { return m.Cancel(c, "staff", "patient request") }
		noShow    = func(c *Consultation) bool { return m.MarkNoShow(c, "staff") }
	)

	tests := []struct {
		name    string
		op      op
		allowed []Status
		to      Status
	}{
		{"mark ready", markReady, []Status{StatusScheduled, StatusPatientCheckedIn}, StatusReadyForConsultation},
		{"start", start, []Status{StatusReadyForConsultation, StatusPatientCheckedIn}, StatusInProgress},
		{"complete", complete, []Status{StatusInProgress}, StatusCompleted},
		{"cancel", cancel, []Status{
			StatusScheduled, StatusPatientCheckedIn, StatusReadyForConsultation,
			StatusInProgress, StatusRescheduled, StatusOverdue,
		}, StatusCancelled},
		{"no show", noShow, []Status{
			StatusScheduled, StatusPatientCheckedIn, StatusReadyForConsultation,
			StatusOverdue, StatusRescheduled,
		}, StatusNoShow},
	}

	for _, tt := range tests {
		for _, from := range AllStatuses {
			t.Run(tt.name+"/"+string(from), func(t *testing.T) {
				c := consultationAt(time.Hour, from)
				before := *c

				ok := tt.op(c)

				if contains(tt.allowed, from) {
					assert.True(t, ok)
					assert.Equal(t, tt.to, c.Status)
					return
				}
				assert.False(t, ok)
				assert.Equal(t, before, *c)
			})
		}
	}
}

func TestTransitionSideEffects(t *testing.T) {
	m := newMachine()
	c := consultationAt(time.Hour, StatusScheduled)

	require.True(t, m.MarkReady(c, "nurse-2"))
	assert.Equal(t, "nurse-2", c.ReadyMarkedBy)
	assert.Equal(t, fixedNow(), *c.ReadyForConsultationAt)

	require.True(t, m.Start(c))
	assert.Equal(t, fixedNow(), *c.ActualStartTime)

	require.True(t, m.Complete(c))
	assert.Equal(t, fixedNow(), *c.ActualEndTime)

	d, ok := c.ActualDuration()
	assert.True(t, ok)
	assert.Equal(t, 0, d)

	assert.False(t, m.Cancel(c, "staff", "too late"))
	assert.Empty(t, c.CancelledBy)
}

func TestCancelRecordsActorAndReason(t *testing.T) {
	m := newMachine()
	c := consultationAt(time.Hour, StatusPatientCheckedIn)

	require.True(t, m.Cancel(c, "doctor-1", "emergency"))
	assert.Equal(t, "doctor-1", c.CancelledBy)
	assert.Equal(t, "emergency", c.CancellationReason)
	assert.Equal(t, fixedNow(), *c.CancelledAt)
	assert.True(t, c.Status.Terminal())
}

func TestTimingPredicates(t *testing.T) {
	now := fixedNow()

	future := consultationAt(2*time.Hour, StatusScheduled)
	assert.True(t, future.IsUpcoming(now, ist))
	assert.False(t, future.IsOverdue(now, ist))
	assert.Zero(t, future.HoursOverdue(now, ist))

	past := consultationAt(-90*time.Minute, StatusScheduled)
	assert.False(t, past.IsUpcoming(now, ist))
	assert.True(t, past.IsOverdue(now, ist))
	assert.InDelta(t, 1.5, past.HoursOverdue(now, ist), 1e-9)

	for _, status := range []Status{StatusCompleted, StatusCancelled, StatusRescheduled} {
		c := consultationAt(-90*time.Minute, status)
		assert.False(t, c.IsOverdue(now, ist), status)
		assert.Zero(t, c.HoursOverdue(now, ist), status)
	}

	checkedIn := consultationAt(time.Hour, StatusPatientCheckedIn)
	assert.False(t, checkedIn.IsUpcoming(now, ist))
}

func TestScheduledAtUsesReferenceZone(t *testing.T) {
	c := &Consultation{
		ScheduledDate: Date{Year: 2024, Month: time.March, Day: 10},
		ScheduledTime: TimeOfDay{Hour: 9, Minute: 30},
	}

	got := c.ScheduledAt(ist)

	assert.Equal(t, time.Date(2024, 3, 10, 4, 0, 0, 0, time.UTC), got.UTC())
}

func TestActualDurationWholeMinutes(t *testing.T) {
	start := fixedNow()
	end := start.Add(42*time.Minute + 59*time.Second)
	c := &Consultation{ActualStartTime: &start}

	_, ok := c.ActualDuration()
	assert.False(t, ok)

	c.ActualEndTime = &end
	d, ok := c.ActualDuration()
	assert.True(t, ok)
	assert.Equal(t, 42, d)
}

func TestSnapshot(t *testing.T) {
	m := newMachine()
	c := consultationAt(-2*time.Hour, StatusScheduled)

	s := m.Snapshot(c)

	assert.True(t, s.IsOverdue)
	assert.True(t, s.IsEligibleForReschedule)
	assert.False(t, s.IsUpcoming)
	assert.InDelta(t, 2.0, s.HoursOverdue, 1e-9)
	assert.Nil(t, s.ActualDurationMinutes)
}

func contains(set []Status, s Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
