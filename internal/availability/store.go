package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store holds providers' scheduling parameters, weekly windows and blocked
// dates. Dates passed in are calendar days; only their Y-M-D is significant.
type Store interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
	UpdateProviderSettings(ctx context.Context, id uuid.UUID, s ProviderSettings) (*Provider, error)

	ListWindows(ctx context.Context, providerID uuid.UUID) ([]Window, error)
	// ReplaceWindows swaps the provider's whole weekly plan in one step.
	ReplaceWindows(ctx context.Context, providerID uuid.UUID, windows []Window) error

	// BlockedOn returns nil, nil when the day is open.
	BlockedOn(ctx context.Context, providerID uuid.UUID, date time.Time) (*BlockedDate, error)
	BlockDate(ctx context.Context, b BlockedDate) error
	UnblockDate(ctx context.Context, providerID uuid.UUID, date time.Time) error
	ListBlockedDates(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]BlockedDate, error)
}

type ProviderSettings struct {
	SlotDuration         int
	BufferMinutes        int
	MaxDailyAppointments int
}
