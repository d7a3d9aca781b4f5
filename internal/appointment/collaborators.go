package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	ActionBooked      = "booked"
	ActionRescheduled = "rescheduled"
	ActionConfirmed   = "confirmed"
	ActionCancelled   = "cancelled"
	ActionCompleted   = "completed"
	ActionNoShow      = "no_show"
)

type AuditEntry struct {
	ActorID        uuid.UUID `json:"actor_id"`
	ActorRole      Role      `json:"actor_role"`
	Action         string    `json:"action"`
	AppointmentID  uuid.UUID `json:"appointment_id"`
	PreviousStatus *Status   `json:"previous_status,omitempty"`
	NewStatus      Status    `json:"new_status"`
	Timestamp      time.Time `json:"timestamp"`
}

type AuditLogger interface {
	Record(ctx context.Context, e AuditEntry) error
}

type Notification struct {
	RecipientID   uuid.UUID `json:"recipient_user_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	EventType     string    `json:"event_type"`
	ScheduledAt   time.Time `json:"scheduled_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type MeetingRoomProvisioner interface {
	Provision(ctx context.Context, a Appointment) error
}

// LogAudit writes audit entries to the logger only.
type LogAudit struct{ Log zerolog.Logger }

func (l LogAudit) Record(_ context.Context, e AuditEntry) error {
	ev := l.Log.Info().
		Str("actor_id", e.ActorID.String()).
		Str("actor_role", string(e.ActorRole)).
		Str("action", e.Action).
		Str("appointment_id", e.AppointmentID.String()).
		Str("new_status", string(e.NewStatus))
	if e.PreviousStatus != nil {
		ev = ev.Str("previous_status", string(*e.PreviousStatus))
	}
	ev.Msg("audit")
	return nil
}

type LogNotifier struct{ Log zerolog.Logger }

func (l LogNotifier) Notify(_ context.Context, n Notification) error {
	l.Log.Info().
		Str("recipient_id", n.RecipientID.String()).
		Str("appointment_id", n.AppointmentID.String()).
		Str("event_type", n.EventType).
		Msg("notification")
	return nil
}

type LogMeetingRooms struct{ Log zerolog.Logger }

func (l LogMeetingRooms) Provision(_ context.Context, a Appointment) error {
	l.Log.Info().
		Str("appointment_id", a.ID.String()).
		Time("scheduled_at", a.ScheduledAt).
		Msg("meeting room requested")
	return nil
}

// Recorders fans one audit entry out to several sinks. Every sink is tried;
// the first error is returned.
type Recorders []AuditLogger

func (rs Recorders) Record(ctx context.Context, e AuditEntry) error {
	var first error
	for _, r := range rs {
		if err := r.Record(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
