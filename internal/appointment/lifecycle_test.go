package appointment

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext_Table(t *testing.T) {
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name  string
		from  Status
		event Event
		role  Role
		at    time.Time
		want  Status
	}{
		{"provider confirms pending", StatusPending, EventConfirm, RoleProvider, future, StatusConfirmed},
		{"admin confirms pending", StatusPending, EventConfirm, RoleAdmin, future, StatusConfirmed},
		{"patient cancels pending", StatusPending, EventCancel, RolePatient, future, StatusCancelled},
		{"system cancels pending", StatusPending, EventCancel, RoleSystem, past, StatusCancelled},
		{"provider cancels confirmed", StatusConfirmed, EventCancel, RoleProvider, future, StatusCancelled},
		{"complete after start", StatusConfirmed, EventComplete, RoleProvider, past, StatusCompleted},
		{"no-show after start", StatusConfirmed, EventNoShow, RoleProvider, past, StatusNoShow},
		{"reschedule pending", StatusPending, EventReschedule, RolePatient, future, StatusPending},
		{"reschedule confirmed", StatusConfirmed, EventReschedule, RoleProvider, future, StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.from, tt.event, tt.role, tt.at, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNext_TerminalStatesRejectEveryEvent(t *testing.T) {
	now := time.Now()
	for _, from := range []Status{StatusCancelled, StatusCompleted, StatusNoShow} {
		for _, ev := range AllEvents {
			for _, role := range []Role{RolePatient, RoleProvider, RoleAdmin, RoleSystem} {
				_, err := Next(from, ev, role, now.Add(-time.Hour), now)
				require.ErrorIs(t, err, ErrInvalidTransition, "%s/%s/%s", from, ev, role)

				var te *TransitionError
				require.True(t, errors.As(err, &te))
				assert.Equal(t, from, te.From)
				assert.Equal(t, ev, te.Event)
			}
		}
	}
}

func TestNext_OutsideTable(t *testing.T) {
	now := time.Now()

	_, err := Next(StatusConfirmed, EventConfirm, RoleProvider, now, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = Next(StatusPending, EventComplete, RoleProvider, now.Add(-time.Hour), now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = Next(StatusPending, EventNoShow, RoleProvider, now.Add(-time.Hour), now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestNext_TimeGuard(t *testing.T) {
	now := time.Now()

	_, err := Next(StatusConfirmed, EventComplete, RoleProvider, now.Add(time.Minute), now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "not started")

	_, err = Next(StatusConfirmed, EventNoShow, RoleProvider, now.Add(time.Minute), now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestNext_RoleGuard(t *testing.T) {
	now := time.Now()

	_, err := Next(StatusPending, EventConfirm, RolePatient, now.Add(time.Hour), now)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = Next(StatusConfirmed, EventComplete, RolePatient, now.Add(-time.Hour), now)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = Next(StatusConfirmed, EventReschedule, RoleSystem, now.Add(time.Hour), now)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestTransitionErrorMessage(t *testing.T) {
	err := &TransitionError{From: StatusCancelled, Event: EventConfirm}
	assert.Equal(t, "cannot confirm appointment in status cancelled", err.Error())
	assert.False(t, errors.Is(err, ErrForbidden))
}

func TestStatusClasses(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow} {
		assert.NotEqual(t, s.Active(), s.Terminal(), s)
		assert.True(t, s.Valid(), s)
	}
	assert.ElementsMatch(t, []Status{StatusPending, StatusConfirmed}, ActiveStatuses)
	assert.False(t, Status("archived").Valid())

	assert.True(t, Allowed(StatusConfirmed, EventComplete))
	assert.False(t, Allowed(StatusPending, EventComplete))
	assert.False(t, Allowed(StatusCancelled, EventCancel))
}
