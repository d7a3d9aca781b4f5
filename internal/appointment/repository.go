package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

// Ledger is the authoritative appointment store. Insert and Reschedule run
// their overlap check and write as one isolated unit per provider.
type Ledger interface {
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Active (pending/confirmed) appointments overlapping [from, to).
	ListActiveInRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error)
	BusyIntervals(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]availability.Interval, error)

	Insert(ctx context.Context, a *Appointment) (*Appointment, error)
	// Reschedule moves the appointment to newStart keeping its duration and
	// resets it to pending. expected is the status the caller validated.
	Reschedule(ctx context.Context, id uuid.UUID, expected Status, newStart time.Time) (*Appointment, error)
	// Transition is a compare-and-set on status.
	Transition(ctx context.Context, id uuid.UUID, from, to Status, change Change) (*Appointment, error)

	List(ctx context.Context, f ListFilter) ([]Appointment, error)
	// ListLapsed returns pending appointments that start before the cut-off.
	ListLapsed(ctx context.Context, before time.Time, limit int) ([]Appointment, error)
}

// Directory resolves the link and clinical-record references a booking carries.
type Directory interface {
	GetLink(ctx context.Context, id uuid.UUID) (*Link, error)
	GetClinicalRecord(ctx context.Context, id uuid.UUID) (*ClinicalRecord, error)
}

// firstConflict returns the first active appointment in rows that overlaps iv,
// skipping the row with id exclude.
func firstConflict(rows []Appointment, iv availability.Interval, exclude uuid.UUID) *Appointment {
	for i := range rows {
		r := &rows[i]
		if r.ID == exclude || !r.Status.Active() {
			continue
		}
		if r.Interval().Overlaps(iv) {
			return r
		}
	}
	return nil
}

// guardWindow is the span re-read before a write: the candidate's UTC day,
// stretched to cover the candidate when it runs past midnight.
func guardWindow(iv availability.Interval) (time.Time, time.Time) {
	from := iv.Start.UTC().Truncate(24 * time.Hour)
	to := from.Add(24 * time.Hour)
	if iv.End.After(to) {
		to = iv.End
	}
	return from, to
}
