package appointment

import "time"

type Event string

const (
	EventConfirm    Event = "confirm"
	EventCancel     Event = "cancel"
	EventComplete   Event = "complete"
	EventNoShow     Event = "no_show"
	EventReschedule Event = "reschedule"
)

var AllEvents = []Event{EventConfirm, EventCancel, EventComplete, EventNoShow, EventReschedule}

type rule struct {
	to        Status
	roles     []Role
	afterTime bool // scheduledAt must already have passed
}

var (
	careTeam  = []Role{RoleProvider, RoleAdmin}
	attendees = []Role{RolePatient, RoleProvider, RoleAdmin}
	anyone    = []Role{RolePatient, RoleProvider, RoleAdmin, RoleSystem}
)

// Terminal statuses have no entry.
var lifecycle = map[Status]map[Event]rule{
	StatusPending: {
		EventConfirm:    {to: StatusConfirmed, roles: careTeam},
		EventCancel:     {to: StatusCancelled, roles: anyone},
		EventReschedule: {to: StatusPending, roles: attendees},
	},
	StatusConfirmed: {
		EventCancel:     {to: StatusCancelled, roles: anyone},
		EventComplete:   {to: StatusCompleted, roles: careTeam, afterTime: true},
		EventNoShow:     {to: StatusNoShow, roles: careTeam, afterTime: true},
		EventReschedule: {to: StatusPending, roles: attendees},
	},
}

// Next resolves the status an event leads to. Illegal moves and failed time
// guards return a *TransitionError; a role that may not fire the event gets
// ErrForbidden.
func Next(from Status, ev Event, role Role, scheduledAt, now time.Time) (Status, error) {
	r, ok := lifecycle[from][ev]
	if !ok {
		return "", &TransitionError{From: from, Event: ev}
	}
	if !roleAllowed(r.roles, role) {
		return "", ErrForbidden
	}
	if r.afterTime && scheduledAt.After(now) {
		return "", &TransitionError{From: from, Event: ev, Reason: "appointment has not started yet"}
	}
	return r.to, nil
}

// Allowed reports whether ev is legal from the status, ignoring roles and time guards.
func Allowed(from Status, ev Event) bool {
	_, ok := lifecycle[from][ev]
	return ok
}

func roleAllowed(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
