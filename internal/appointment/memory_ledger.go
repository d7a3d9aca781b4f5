package appointment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

// MemoryLedger keeps appointments in process. Check and write happen under
// one mutex, which gives the same isolation the Postgres ledger gets from its
// transaction lock.
type MemoryLedger struct {
	mu    sync.RWMutex
	rows  map[uuid.UUID]*Appointment
	order []uuid.UUID
	now   func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		rows: make(map[uuid.UUID]*Appointment),
		now:  time.Now,
	}
}

func (m *MemoryLedger) Get(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryLedger) ListActiveInRange(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked(providerID, from, to), nil
}

func (m *MemoryLedger) BusyIntervals(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]availability.Interval, error) {
	rows, _ := m.ListActiveInRange(ctx, providerID, from, to)
	out := make([]availability.Interval, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].Interval())
	}
	return out, nil
}

func (m *MemoryLedger) Insert(ctx context.Context, a *Appointment) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	row := *a
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.EndsAt = row.ScheduledAt.Add(time.Duration(row.Duration) * time.Minute)

	if row.Status.Active() {
		from, to := guardWindow(row.Interval())
		if c := firstConflict(m.activeLocked(row.ProviderID, from, to), row.Interval(), uuid.Nil); c != nil {
			return nil, fmt.Errorf("%w: overlaps appointment %s", ErrSlotConflict, c.ID)
		}
	}

	now := m.now()
	row.CreatedAt, row.UpdatedAt = now, now
	m.rows[row.ID] = &row
	m.order = append(m.order, row.ID)

	cp := row
	return &cp, nil
}

func (m *MemoryLedger) Reschedule(ctx context.Context, id uuid.UUID, expected Status, newStart time.Time) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.rows[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if cur.Status != expected {
		return nil, errStatusChanged
	}

	iv := availability.Interval{Start: newStart, End: newStart.Add(time.Duration(cur.Duration) * time.Minute)}
	from, to := guardWindow(iv)
	if c := firstConflict(m.activeLocked(cur.ProviderID, from, to), iv, cur.ID); c != nil {
		return nil, fmt.Errorf("%w: overlaps appointment %s", ErrSlotConflict, c.ID)
	}

	cur.ScheduledAt, cur.EndsAt = iv.Start, iv.End
	cur.Status = StatusPending
	cur.UpdatedAt = m.now()

	cp := *cur
	return &cp, nil
}

func (m *MemoryLedger) Transition(ctx context.Context, id uuid.UUID, from, to Status, change Change) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.rows[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if cur.Status != from {
		return nil, errStatusChanged
	}

	cur.Status = to
	if change.CancelledBy != nil {
		by := *change.CancelledBy
		cur.CancelledBy = &by
	}
	if change.CancelReason != "" {
		cur.CancelReason = change.CancelReason
	}
	cur.UpdatedAt = m.now()

	cp := *cur
	return &cp, nil
}

func (m *MemoryLedger) List(_ context.Context, f ListFilter) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Appointment
	for _, id := range m.order {
		a := m.rows[id]
		if f.ProviderID != nil && a.ProviderID != *f.ProviderID {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.LinkID != nil && a.LinkID != *f.LinkID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, a.Status) {
			continue
		}
		if f.From != nil && a.ScheduledAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !a.ScheduledAt.Before(*f.To) {
			continue
		}
		out = append(out, *a)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryLedger) ListLapsed(_ context.Context, before time.Time, limit int) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Appointment
	for _, id := range m.order {
		a := m.rows[id]
		if a.Status == StatusPending && a.ScheduledAt.Before(before) {
			out = append(out, *a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryLedger) activeLocked(providerID uuid.UUID, from, to time.Time) []Appointment {
	window := availability.Interval{Start: from, End: to}
	var out []Appointment
	for _, id := range m.order {
		a := m.rows[id]
		if a.ProviderID != providerID || !a.Status.Active() {
			continue
		}
		if a.Interval().Overlaps(window) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
