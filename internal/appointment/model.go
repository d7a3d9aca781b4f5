package appointment

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// ActiveStatuses are the statuses that hold time on a provider's calendar.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

func (s Status) Active() bool {
	return slices.Contains(ActiveStatuses, s)
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

func (s Status) Valid() bool {
	return s.Active() || s.Terminal()
}

type LinkStatus string

const (
	LinkActive   LinkStatus = "active"
	LinkInactive LinkStatus = "inactive"
)

// Link is a patient-provider pairing. Appointments always belong to one.
type Link struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	ProviderID uuid.UUID
	Status     LinkStatus
	CreatedAt  time.Time
}

type ClinicalRecord struct {
	ID        uuid.UUID
	LinkID    uuid.UUID
	Kind      string
	Completed bool
	CreatedAt time.Time
}

type Appointment struct {
	ID               uuid.UUID
	LinkID           uuid.UUID
	ProviderID       uuid.UUID
	PatientID        uuid.UUID
	ScheduledAt      time.Time
	Duration         int // minutes
	EndsAt           time.Time
	Status           Status
	IsOnline         bool
	ClinicalRecordID *uuid.UUID
	Notes            string
	BookedBy         uuid.UUID
	CancelledBy      *uuid.UUID
	CancelReason     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (a *Appointment) Interval() availability.Interval {
	return availability.Interval{Start: a.ScheduledAt, End: a.EndsAt}
}

type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleProvider, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// Actor is the verified caller. ID is the patient or provider profile id for
// those roles.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// SystemActor is used by background jobs.
var SystemActor = Actor{Role: RoleSystem}

func (a Actor) privileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

// Change carries the extra columns a transition may set.
type Change struct {
	CancelledBy  *uuid.UUID
	CancelReason string
}

type ListFilter struct {
	ProviderID *uuid.UUID
	PatientID  *uuid.UUID
	LinkID     *uuid.UUID
	Statuses   []Status
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
