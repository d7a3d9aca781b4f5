package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	ReasonPast     = "past"
	ReasonConflict = "conflict"
)

// BusyLookup returns the intervals of a provider's active appointments that
// overlap [from, to).
type BusyLookup interface {
	BusyIntervals(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Interval, error)
}

// SlotAvailability is one candidate slot resolved to absolute time.
type SlotAvailability struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Location  string    `json:"location,omitempty"`
	Available bool      `json:"available"`
	Reason    string    `json:"reason,omitempty"`
}

type DayAvailability struct {
	ProviderID      uuid.UUID          `json:"provider_id"`
	Date            string             `json:"date"`
	PastDate        bool               `json:"past_date,omitempty"`
	Blocked         bool               `json:"blocked,omitempty"`
	BlockReason     string             `json:"block_reason,omitempty"`
	Slots           []SlotAvailability `json:"slots"`
	ActiveCount     int                `json:"active_count"`
	DailyCapReached bool               `json:"daily_cap_reached,omitempty"`
}

// AvailableSlots returns only the bookable entries.
func (d *DayAvailability) AvailableSlots() []SlotAvailability {
	var out []SlotAvailability
	for _, s := range d.Slots {
		if s.Available {
			out = append(out, s)
		}
	}
	return out
}

// Calculator is the read path. Its answers are advisory: nothing is locked
// and a slot reported free may be taken before the caller books it.
type Calculator struct {
	store Store
	busy  BusyLookup
	loc   *time.Location
}

func NewCalculator(store Store, busy BusyLookup, loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{store: store, busy: busy, loc: loc}
}

func (c *Calculator) Location() *time.Location { return c.loc }

func (c *Calculator) ForDate(ctx context.Context, providerID uuid.UUID, date, now time.Time) (*DayAvailability, error) {
	p, err := c.store.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	windows, err := c.store.ListWindows(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}
	return c.day(ctx, p, windows, date, now)
}

// ForRange evaluates days consecutive calendar days starting at from.
func (c *Calculator) ForRange(ctx context.Context, providerID uuid.UUID, from time.Time, days int, now time.Time) ([]*DayAvailability, error) {
	p, err := c.store.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	windows, err := c.store.ListWindows(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}

	start := DateOf(from, c.loc)
	out := make([]*DayAvailability, 0, days)
	for i := 0; i < days; i++ {
		d, err := c.day(ctx, p, windows, start.AddDate(0, 0, i), now)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// NextAvailable returns the first free slot at or after from, looking at most
// horizonDays calendar days ahead.
func (c *Calculator) NextAvailable(ctx context.Context, providerID uuid.UUID, from time.Time, horizonDays int, now time.Time) (*SlotAvailability, error) {
	if horizonDays <= 0 {
		return nil, ErrNoAvailability
	}
	days, err := c.ForRange(ctx, providerID, from, horizonDays, now)
	if err != nil {
		return nil, err
	}
	for _, d := range days {
		for _, s := range d.Slots {
			if s.Available && !s.Start.Before(from) {
				slot := s
				return &slot, nil
			}
		}
	}
	return nil, ErrNoAvailability
}

func (c *Calculator) day(ctx context.Context, p *Provider, windows []Window, date, now time.Time) (*DayAvailability, error) {
	target := DateOf(date, c.loc)
	today := DateOf(now, c.loc)

	res := &DayAvailability{
		ProviderID: p.ID,
		Date:       dateKey(target),
		Slots:      []SlotAvailability{},
	}

	if target.Before(today) {
		res.PastDate = true
		return res, nil
	}

	blocked, err := c.store.BlockedOn(ctx, p.ID, target)
	if err != nil {
		return nil, fmt.Errorf("load blocked date: %w", err)
	}
	if blocked != nil {
		res.Blocked = true
		res.BlockReason = blocked.Reason
		return res, nil
	}

	candidates := GenerateSlots(windowsFor(windows, int(target.Weekday())), p.SlotDuration, p.BufferMinutes)

	bounds := DayBounds(target, c.loc)
	busy, err := c.busy.BusyIntervals(ctx, p.ID, bounds.Start, bounds.End)
	if err != nil {
		return nil, fmt.Errorf("load busy intervals: %w", err)
	}

	// Exact start match is only a shortcut; the overlap scan below decides.
	taken := make(map[int64]struct{}, len(busy))
	for _, b := range busy {
		taken[b.Start.Unix()] = struct{}{}
		if !b.Start.Before(bounds.Start) && b.Start.Before(bounds.End) {
			res.ActiveCount++
		}
	}
	if p.MaxDailyAppointments > 0 && res.ActiveCount >= p.MaxDailyAppointments {
		res.DailyCapReached = true
	}

	isToday := target.Equal(today)
	for _, cand := range candidates {
		slot := SlotAvailability{
			Start:     cand.Start.On(target, c.loc),
			End:       cand.End.On(target, c.loc),
			Location:  cand.Location,
			Available: true,
		}

		switch {
		case isToday && !slot.Start.After(now):
			slot.Available, slot.Reason = false, ReasonPast
		case hasStart(taken, slot.Start) || overlapsAny(busy, Interval{Start: slot.Start, End: slot.End}):
			slot.Available, slot.Reason = false, ReasonConflict
		}
		res.Slots = append(res.Slots, slot)
	}
	return res, nil
}

func hasStart(taken map[int64]struct{}, t time.Time) bool {
	_, ok := taken[t.Unix()]
	return ok
}

func overlapsAny(busy []Interval, iv Interval) bool {
	for _, b := range busy {
		if iv.Overlaps(b) {
			return true
		}
	}
	return false
}
