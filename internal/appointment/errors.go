package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrLinkInactive           = errors.New("link is not active")
	ErrProviderNotBookable    = errors.New("provider is not accepting bookings")
	ErrPastScheduleTime       = errors.New("scheduled time must be in the future")
	ErrSlotConflict           = errors.New("slot no longer available")
	ErrCrossReferenceMismatch = errors.New("clinical record belongs to a different link")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrForbidden              = errors.New("forbidden")
	ErrBlockedDate            = errors.New("provider is unavailable on that date")
	ErrInvalidRequest         = errors.New("invalid request")
)

var (
	ErrAppointmentNotFound    = fmt.Errorf("appointment %w", ErrNotFound)
	ErrLinkNotFound           = fmt.Errorf("link %w", ErrNotFound)
	ErrClinicalRecordNotFound = fmt.Errorf("clinical record %w", ErrNotFound)
)

// Ledger-level signals. Neither leaves the service.
var (
	errRetryable     = errors.New("transient storage conflict")
	errStatusChanged = errors.New("appointment status changed concurrently")
)

// TransitionError reports a lifecycle move that is not allowed from the
// appointment's current status.
type TransitionError struct {
	From   Status
	Event  Event
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s appointment in status %s", e.Event, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
