package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

func newCalendar(f *fixture) *Calendar {
	return NewCalendar(f.store, f.ledger, time.UTC, zerolog.Nop())
}

func TestCalendar_ReplaceWindows(t *testing.T) {
	f := newFixture(t)
	cal := newCalendar(f)
	ctx := context.Background()

	windows := []availability.Window{
		{DayOfWeek: time.Monday, Start: availability.Clock(9, 0), End: availability.Clock(12, 0), IsActive: true},
		{DayOfWeek: time.Monday, Start: availability.Clock(11, 0), End: availability.Clock(13, 0), IsActive: true},
	}
	require.NoError(t, cal.ReplaceWindows(ctx, f.provider, f.providerID, windows))

	got, err := cal.Windows(ctx, f.providerID)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	err = cal.ReplaceWindows(ctx, f.provider, f.providerID, []availability.Window{
		{DayOfWeek: time.Monday, Start: availability.Clock(12, 0), End: availability.Clock(9, 0)},
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, availability.ErrInvalidWindow)

	err = cal.ReplaceWindows(ctx, f.patient, f.providerID, windows)
	assert.ErrorIs(t, err, ErrForbidden)

	other := Actor{ID: uuid.New(), Role: RoleProvider}
	err = cal.ReplaceWindows(ctx, other, f.providerID, windows)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.NoError(t, cal.ReplaceWindows(ctx, f.admin, f.providerID, nil))

	_, err = cal.Windows(ctx, uuid.New())
	assert.ErrorIs(t, err, availability.ErrProviderNotFound)
}

func TestCalendar_BlockDateReportsExistingBookings(t *testing.T) {
	f := newFixture(t)
	cal := newCalendar(f)
	ctx := context.Background()

	f.book(t, f.patient, at(10, 0))
	f.book(t, f.patient, at(15, 0))

	n, err := cal.BlockDate(ctx, f.provider, f.providerID, at(12, 0), "conference")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	blocked, err := cal.BlockedDates(ctx, f.providerID, base, base.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.Equal(t, "conference", blocked[0].Reason)

	_, err = f.svc.Create(ctx, f.patient, CreateRequest{LinkID: f.link.ID, ScheduledAt: at(17, 0)})
	assert.ErrorIs(t, err, ErrBlockedDate)

	require.NoError(t, cal.UnblockDate(ctx, f.provider, f.providerID, base))
	f.book(t, f.patient, at(17, 0))

	_, err = cal.BlockDate(ctx, f.patient, f.providerID, base, "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCalendar_UpdateSettings(t *testing.T) {
	f := newFixture(t)
	cal := newCalendar(f)
	ctx := context.Background()

	old := f.book(t, f.patient, at(10, 0))

	p, err := cal.UpdateSettings(ctx, f.provider, f.providerID, availability.ProviderSettings{SlotDuration: 50, BufferMinutes: 10})
	require.NoError(t, err)
	assert.Equal(t, 50, p.SlotDuration)
	assert.Equal(t, 10, p.BufferMinutes)

	kept, err := f.svc.Get(ctx, f.patient, old.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, kept.Duration)

	fresh := f.book(t, f.patient, at(14, 0))
	assert.Equal(t, 50, fresh.Duration)

	_, err = cal.UpdateSettings(ctx, f.provider, f.providerID, availability.ProviderSettings{SlotDuration: 0})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = cal.UpdateSettings(ctx, f.admin, uuid.New(), availability.ProviderSettings{SlotDuration: 30})
	assert.ErrorIs(t, err, availability.ErrProviderNotFound)
}

func TestCrossReferenceValidator(t *testing.T) {
	dir := NewMemoryDirectory()
	ctx := context.Background()
	mine := dir.PutLink(Link{PatientID: uuid.New(), ProviderID: uuid.New(), Status: LinkActive})
	theirs := dir.PutLink(Link{PatientID: uuid.New(), ProviderID: mine.ProviderID, Status: LinkActive})
	rec := dir.PutClinicalRecord(ClinicalRecord{LinkID: mine.ID, Kind: "intake"})

	v := NewCrossReferenceValidator(dir)
	assert.NoError(t, v.Validate(ctx, rec.ID, mine.ID))
	assert.ErrorIs(t, v.Validate(ctx, rec.ID, theirs.ID), ErrCrossReferenceMismatch)

	err := v.Validate(ctx, uuid.New(), mine.ID)
	assert.ErrorIs(t, err, ErrClinicalRecordNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}
