package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

func memRow(provider uuid.UUID, start time.Time, minutes int, status Status) *Appointment {
	return &Appointment{
		LinkID:      uuid.New(),
		ProviderID:  provider,
		PatientID:   uuid.New(),
		ScheduledAt: start,
		Duration:    minutes,
		Status:      status,
	}
}

func TestMemoryLedger_OverlapRules(t *testing.T) {
	m := NewMemoryLedger()
	ctx := context.Background()
	p := uuid.New()

	_, err := m.Insert(ctx, memRow(p, at(10, 0), 60, StatusConfirmed))
	require.NoError(t, err)

	cases := []struct {
		name    string
		start   time.Time
		minutes int
		status  Status
		wantErr bool
	}{
		{"touching before", at(9, 0), 60, StatusPending, false},
		{"touching after", at(11, 0), 30, StatusPending, false},
		{"inside", at(10, 15), 15, StatusPending, true},
		{"covering", at(9, 30), 120, StatusPending, true},
		{"tail overlap", at(10, 59), 30, StatusPending, true},
		{"terminal rows never conflict", at(10, 0), 60, StatusCancelled, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Insert(ctx, memRow(p, tc.start, tc.minutes, tc.status))
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrSlotConflict)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestMemoryLedger_CrossesMidnight(t *testing.T) {
	m := NewMemoryLedger()
	ctx := context.Background()
	p := uuid.New()

	_, err := m.Insert(ctx, memRow(p, at(23, 30), 60, StatusPending))
	require.NoError(t, err)

	_, err = m.Insert(ctx, memRow(p, at(24, 0), 30, StatusPending))
	assert.ErrorIs(t, err, ErrSlotConflict)

	busy, err := m.BusyIntervals(ctx, p, at(24, 0), at(48, 0))
	require.NoError(t, err)
	require.Len(t, busy, 1)
	assert.Equal(t, availability.Interval{Start: at(23, 30), End: at(24, 30)}, busy[0])
}

func TestMemoryLedger_ListAndLapsed(t *testing.T) {
	m := NewMemoryLedger()
	ctx := context.Background()
	p := uuid.New()

	for _, h := range []int{15, 9, 12} {
		_, err := m.Insert(ctx, memRow(p, at(h, 0), 30, StatusPending))
		require.NoError(t, err)
	}
	_, err := m.Insert(ctx, memRow(uuid.New(), at(8, 0), 30, StatusPending))
	require.NoError(t, err)

	rows, err := m.List(ctx, ListFilter{ProviderID: &p})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, at(9, 0), rows[0].ScheduledAt)
	assert.Equal(t, at(15, 0), rows[2].ScheduledAt)

	page, err := m.List(ctx, ListFilter{ProviderID: &p, Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, at(12, 0), page[0].ScheduledAt)

	empty, err := m.List(ctx, ListFilter{ProviderID: &p, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)

	lapsed, err := m.ListLapsed(ctx, at(12, 30), 0)
	require.NoError(t, err)
	assert.Len(t, lapsed, 3)

	lapsed, err = m.ListLapsed(ctx, at(12, 30), 1)
	require.NoError(t, err)
	require.Len(t, lapsed, 1)
	assert.Equal(t, at(8, 0), lapsed[0].ScheduledAt)
}

func TestMemoryLedger_TransitionIsCompareAndSet(t *testing.T) {
	m := NewMemoryLedger()
	ctx := context.Background()

	a, err := m.Insert(ctx, memRow(uuid.New(), at(10, 0), 30, StatusPending))
	require.NoError(t, err)

	_, err = m.Transition(ctx, a.ID, StatusPending, StatusCancelled, Change{CancelReason: "lapsed"})
	require.NoError(t, err)

	_, err = m.Transition(ctx, a.ID, StatusPending, StatusConfirmed, Change{})
	assert.ErrorIs(t, err, errStatusChanged)

	got, err := m.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, "lapsed", got.CancelReason)
	assert.Nil(t, got.CancelledBy)

	_, err = m.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}
