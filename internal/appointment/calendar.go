package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

// Calendar administers a provider's weekly windows, blocked dates and slot
// parameters. Only the provider or an admin may change a calendar.
type Calendar struct {
	store  availability.Store
	ledger Ledger
	log    zerolog.Logger
	loc    *time.Location
}

func NewCalendar(store availability.Store, ledger Ledger, loc *time.Location, log zerolog.Logger) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{
		store:  store,
		ledger: ledger,
		log:    log.With().Str("component", "calendar").Logger(),
		loc:    loc,
	}
}

func canAdminister(actor Actor, providerID uuid.UUID) error {
	if actor.Role == RoleAdmin {
		return nil
	}
	if actor.Role == RoleProvider && actor.ID != uuid.Nil && actor.ID == providerID {
		return nil
	}
	return ErrForbidden
}

// ReplaceWindows swaps the provider's whole weekly plan. Overlapping windows
// are accepted.
func (c *Calendar) ReplaceWindows(ctx context.Context, actor Actor, providerID uuid.UUID, windows []availability.Window) error {
	if err := canAdminister(actor, providerID); err != nil {
		return err
	}
	for i, w := range windows {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("%w: window %d: %w", ErrInvalidRequest, i, err)
		}
	}
	if err := c.store.ReplaceWindows(ctx, providerID, windows); err != nil {
		return err
	}
	c.log.Info().Str("provider_id", providerID.String()).Int("windows", len(windows)).Msg("weekly windows replaced")
	return nil
}

func (c *Calendar) Windows(ctx context.Context, providerID uuid.UUID) ([]availability.Window, error) {
	if _, err := c.store.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}
	return c.store.ListWindows(ctx, providerID)
}

// BlockDate closes the provider's calendar for date. Appointments already on
// that day are left alone; their count is returned so the caller can follow up.
func (c *Calendar) BlockDate(ctx context.Context, actor Actor, providerID uuid.UUID, date time.Time, reason string) (int, error) {
	if err := canAdminister(actor, providerID); err != nil {
		return 0, err
	}
	day := availability.DayBounds(date, c.loc)
	err := c.store.BlockDate(ctx, availability.BlockedDate{
		ProviderID: providerID,
		Date:       day.Start,
		Reason:     reason,
	})
	if err != nil {
		return 0, err
	}

	active, err := c.ledger.ListActiveInRange(ctx, providerID, day.Start, day.End)
	if err != nil {
		return 0, fmt.Errorf("count appointments on blocked date: %w", err)
	}
	if len(active) > 0 {
		c.log.Warn().
			Str("provider_id", providerID.String()).
			Time("date", day.Start).
			Int("active_appointments", len(active)).
			Msg("blocked a date that still has appointments")
	}
	return len(active), nil
}

func (c *Calendar) UnblockDate(ctx context.Context, actor Actor, providerID uuid.UUID, date time.Time) error {
	if err := canAdminister(actor, providerID); err != nil {
		return err
	}
	return c.store.UnblockDate(ctx, providerID, availability.DateOf(date, c.loc))
}

func (c *Calendar) BlockedDates(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]availability.BlockedDate, error) {
	return c.store.ListBlockedDates(ctx, providerID, availability.DateOf(from, c.loc), availability.DateOf(to, c.loc))
}

// UpdateSettings changes slot parameters. Existing appointments keep the
// duration they were booked with.
func (c *Calendar) UpdateSettings(ctx context.Context, actor Actor, providerID uuid.UUID, s availability.ProviderSettings) (*availability.Provider, error) {
	if err := canAdminister(actor, providerID); err != nil {
		return nil, err
	}
	if s.SlotDuration <= 0 || s.BufferMinutes < 0 || s.MaxDailyAppointments < 0 {
		return nil, fmt.Errorf("%w: slot duration must be positive, buffer and daily cap non-negative", ErrInvalidRequest)
	}
	p, err := c.store.UpdateProviderSettings(ctx, providerID, s)
	if err != nil {
		if errors.Is(err, availability.ErrProviderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update provider settings: %w", err)
	}
	return p, nil
}
