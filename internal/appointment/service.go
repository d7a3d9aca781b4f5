package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/availability"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/telemetry"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	lapseBatch       = 100
	commitAttempts   = 2

	// Upper bound for audit, notification and meeting-room calls after a commit.
	sideEffectTimeout = 10 * time.Second
)

type Deps struct {
	Ledger    Ledger
	Providers availability.Store
	Directory Directory
	Locker    redisclient.Locker

	// Optional; log-only implementations are used when nil.
	Audit    AuditLogger
	Notifier Notifier
	Rooms    MeetingRoomProvisioner
	Metrics  *telemetry.Metrics

	Logger   zerolog.Logger
	Location *time.Location   // clinic time zone, used for blocked-date lookups
	Now      func() time.Time // defaults to time.Now
}

type Service struct {
	ledger    Ledger
	providers availability.Store
	directory Directory
	crossref  *CrossReferenceValidator
	locker    redisclient.Locker
	audit     AuditLogger
	notifier  Notifier
	rooms     MeetingRoomProvisioner
	metrics   *telemetry.Metrics
	log       zerolog.Logger
	loc       *time.Location
	now       func() time.Time

	sideEffectTimeout time.Duration
}

func NewService(d Deps) *Service {
	s := &Service{
		ledger:    d.Ledger,
		providers: d.Providers,
		directory: d.Directory,
		crossref:  NewCrossReferenceValidator(d.Directory),
		locker:    d.Locker,
		audit:     d.Audit,
		notifier:  d.Notifier,
		rooms:     d.Rooms,
		metrics:   d.Metrics,
		log:       d.Logger.With().Str("component", "appointment").Logger(),
		loc:       d.Location,
		now:       d.Now,

		sideEffectTimeout: sideEffectTimeout,
	}
	if s.audit == nil {
		s.audit = LogAudit{Log: s.log}
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{Log: s.log}
	}
	if s.rooms == nil {
		s.rooms = LogMeetingRooms{Log: s.log}
	}
	if s.metrics == nil {
		s.metrics = telemetry.Noop()
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type CreateRequest struct {
	LinkID           uuid.UUID
	ScheduledAt      time.Time
	Duration         int    // minutes; 0 uses the provider's slot duration
	InitialStatus    Status // empty picks the default for the actor's role
	ClinicalRecordID *uuid.UUID
	IsOnline         bool
	Notes            string
}

// Create books a new appointment. The overlap check and the insert happen
// under the provider lock inside one ledger transaction.
func (s *Service) Create(ctx context.Context, actor Actor, req CreateRequest) (*Appointment, error) {
	appt, err := s.create(ctx, actor, req)
	s.metrics.Booking(ctx, "create", outcome(err))
	return appt, err
}

func (s *Service) create(ctx context.Context, actor Actor, req CreateRequest) (*Appointment, error) {
	if req.LinkID == uuid.Nil || req.ScheduledAt.IsZero() || req.Duration < 0 {
		return nil, fmt.Errorf("%w: link, scheduled time and a non-negative duration are required", ErrInvalidRequest)
	}
	if req.InitialStatus != "" && !req.InitialStatus.Active() {
		return nil, fmt.Errorf("%w: initial status must be pending or confirmed", ErrInvalidRequest)
	}

	link, err := s.directory.GetLink(ctx, req.LinkID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load link: %w", err)
	}
	if err := authorize(actor, link.ProviderID, link.PatientID); err != nil {
		return nil, err
	}
	if link.Status != LinkActive {
		return nil, ErrLinkInactive
	}

	provider, err := s.providers.GetProvider(ctx, link.ProviderID)
	if err != nil {
		if errors.Is(err, availability.ErrProviderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load provider: %w", err)
	}
	if !provider.Bookable() {
		return nil, ErrProviderNotBookable
	}

	if !req.ScheduledAt.After(s.now()) {
		return nil, ErrPastScheduleTime
	}

	status, err := initialStatus(actor.Role, req.InitialStatus)
	if err != nil {
		return nil, err
	}

	duration := req.Duration
	if duration == 0 {
		duration = provider.SlotDuration
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: provider has no slot duration configured", ErrInvalidRequest)
	}

	if err := s.checkBlocked(ctx, provider.ID, req.ScheduledAt); err != nil {
		return nil, err
	}

	if req.ClinicalRecordID != nil {
		if err := s.crossref.Validate(ctx, *req.ClinicalRecordID, link.ID); err != nil {
			return nil, err
		}
	}

	candidate := &Appointment{
		LinkID:           link.ID,
		ProviderID:       link.ProviderID,
		PatientID:        link.PatientID,
		ScheduledAt:      req.ScheduledAt,
		Duration:         duration,
		Status:           status,
		IsOnline:         req.IsOnline,
		ClinicalRecordID: req.ClinicalRecordID,
		Notes:            req.Notes,
		BookedBy:         actor.ID,
	}

	var created *Appointment
	err = s.commit(ctx, "create", provider.ID, func(lockCtx context.Context) error {
		a, err := s.ledger.Insert(lockCtx, candidate)
		if err != nil {
			return err
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("provider_id", created.ProviderID.String()).
		Time("scheduled_at", created.ScheduledAt).
		Str("status", string(created.Status)).
		Msg("appointment booked")

	s.afterCommit(ctx, actor, ActionBooked, nil, *created)
	if created.IsOnline {
		s.provisionRoom(ctx, *created)
	}
	return created, nil
}

// Reschedule moves an appointment to newStart. The appointment's own current
// interval is excluded from the overlap check; the result is pending again.
func (s *Service) Reschedule(ctx context.Context, actor Actor, id uuid.UUID, newStart time.Time) (*Appointment, error) {
	appt, err := s.reschedule(ctx, actor, id, newStart)
	s.metrics.Booking(ctx, "reschedule", outcome(err))
	return appt, err
}

func (s *Service) reschedule(ctx context.Context, actor Actor, id uuid.UUID, newStart time.Time) (*Appointment, error) {
	if newStart.IsZero() {
		return nil, fmt.Errorf("%w: new scheduled time is required", ErrInvalidRequest)
	}

	cur, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, cur.ProviderID, cur.PatientID); err != nil {
		return nil, err
	}

	now := s.now()
	if _, err := Next(cur.Status, EventReschedule, actor.Role, cur.ScheduledAt, now); err != nil {
		return nil, err
	}
	if !newStart.After(now) {
		return nil, ErrPastScheduleTime
	}

	provider, err := s.providers.GetProvider(ctx, cur.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	if !provider.Bookable() {
		return nil, ErrProviderNotBookable
	}
	if err := s.checkBlocked(ctx, cur.ProviderID, newStart); err != nil {
		return nil, err
	}

	var updated *Appointment
	err = s.commit(ctx, "reschedule", cur.ProviderID, func(lockCtx context.Context) error {
		a, err := s.ledger.Reschedule(lockCtx, id, cur.Status, newStart)
		if err != nil {
			return err
		}
		updated = a
		return nil
	})
	if errors.Is(err, errStatusChanged) {
		return nil, s.staleTransition(ctx, id, EventReschedule)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", updated.ID.String()).
		Time("from", cur.ScheduledAt).
		Time("to", updated.ScheduledAt).
		Msg("appointment rescheduled")

	prev := cur.Status
	s.afterCommit(ctx, actor, ActionRescheduled, &prev, *updated)
	return updated, nil
}

func (s *Service) Confirm(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, EventConfirm, ActionConfirmed, Change{})
}

func (s *Service) Cancel(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*Appointment, error) {
	change := Change{CancelReason: reason}
	if actor.ID != uuid.Nil {
		by := actor.ID
		change.CancelledBy = &by
	}
	return s.transition(ctx, actor, id, EventCancel, ActionCancelled, change)
}

func (s *Service) Complete(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, EventComplete, ActionCompleted, Change{})
}

func (s *Service) MarkNoShow(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, EventNoShow, ActionNoShow, Change{})
}

// transition applies a status-only lifecycle event. None of these can create
// overlap, so they skip the provider lock and rely on the ledger's
// compare-and-set.
func (s *Service) transition(ctx context.Context, actor Actor, id uuid.UUID, ev Event, action string, change Change) (*Appointment, error) {
	cur, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, cur.ProviderID, cur.PatientID); err != nil {
		return nil, err
	}

	to, err := Next(cur.Status, ev, actor.Role, cur.ScheduledAt, s.now())
	if err != nil {
		return nil, err
	}

	updated, err := s.ledger.Transition(ctx, id, cur.Status, to, change)
	if errors.Is(err, errStatusChanged) {
		return nil, s.staleTransition(ctx, id, ev)
	}
	if err != nil {
		return nil, fmt.Errorf("%s appointment: %w", ev, err)
	}

	s.metrics.Transition(ctx, string(ev), string(to))
	s.log.Info().
		Str("appointment_id", id.String()).
		Str("event", string(ev)).
		Str("from", string(cur.Status)).
		Str("to", string(to)).
		Msg("appointment transitioned")

	prev := cur.Status
	s.afterCommit(ctx, actor, action, &prev, *updated)
	return updated, nil
}

func (s *Service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, a.ProviderID, a.PatientID); err != nil {
		return nil, err
	}
	return a, nil
}

// List narrows the filter to the caller's own appointments for patients and
// providers.
func (s *Service) List(ctx context.Context, actor Actor, f ListFilter) ([]Appointment, error) {
	switch actor.Role {
	case RolePatient:
		if f.PatientID != nil && *f.PatientID != actor.ID {
			return nil, ErrForbidden
		}
		id := actor.ID
		f.PatientID = &id
	case RoleProvider:
		if f.ProviderID != nil && *f.ProviderID != actor.ID {
			return nil, ErrForbidden
		}
		id := actor.ID
		f.ProviderID = &id
	case RoleAdmin, RoleSystem:
	default:
		return nil, ErrForbidden
	}

	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	out, err := s.ledger.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return out, nil
}

// CancelLapsed cancels pending appointments whose start is more than grace in
// the past without having been confirmed. It is intended to be called by the
// worker periodically.
func (s *Service) CancelLapsed(ctx context.Context, grace time.Duration) (int, error) {
	lapsed, err := s.ledger.ListLapsed(ctx, s.now().Add(-grace), lapseBatch)
	if err != nil {
		return 0, fmt.Errorf("find lapsed appointments: %w", err)
	}

	cancelled := 0
	for _, a := range lapsed {
		_, err := s.transition(ctx, SystemActor, a.ID, EventCancel, ActionCancelled, Change{CancelReason: "lapsed"})
		if err != nil {
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
				continue
			}
			s.log.Error().Err(err).Str("appointment_id", a.ID.String()).Msg("failed to cancel lapsed appointment")
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

// Ledger returns the backing ledger; the availability calculator reads busy
// intervals from it.
func (s *Service) Ledger() Ledger { return s.ledger }

// Helpers

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.ledger.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return a, nil
}

func (s *Service) checkBlocked(ctx context.Context, providerID uuid.UUID, at time.Time) error {
	blocked, err := s.providers.BlockedOn(ctx, providerID, availability.DateOf(at, s.loc))
	if err != nil {
		return fmt.Errorf("load blocked date: %w", err)
	}
	if blocked != nil {
		if blocked.Reason != "" {
			return fmt.Errorf("%w: %s", ErrBlockedDate, blocked.Reason)
		}
		return ErrBlockedDate
	}
	return nil
}

// commit runs write under the provider lock. Lock contention and isolation
// failures get one immediate retry, then surface as ErrSlotConflict.
func (s *Service) commit(ctx context.Context, op string, providerID uuid.UUID, write func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= commitAttempts; attempt++ {
		if attempt > 1 {
			s.metrics.Retry(ctx, op)
		}

		requested := time.Now()
		err = s.locker.WithProviderLock(ctx, providerID, func(lockCtx context.Context) error {
			s.metrics.ObserveLockWait(lockCtx, time.Since(requested))
			return write(lockCtx)
		})
		if err == nil || !retryable(err) {
			return err
		}

		s.log.Warn().Err(err).
			Str("operation", op).
			Str("provider_id", providerID.String()).
			Int("attempt", attempt).
			Msg("commit contention")
	}
	return fmt.Errorf("%w: %v", ErrSlotConflict, err)
}

func retryable(err error) bool {
	return errors.Is(err, redisclient.ErrLockNotAcquired) || errors.Is(err, errRetryable)
}

func (s *Service) staleTransition(ctx context.Context, id uuid.UUID, ev Event) error {
	latest, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !Allowed(latest.Status, ev) {
		return &TransitionError{From: latest.Status, Event: ev}
	}
	return &TransitionError{From: latest.Status, Event: ev, Reason: "status changed concurrently, retry"}
}

// afterCommit runs the audit and notification side effects. Failures are
// logged and counted only.
func (s *Service) afterCommit(ctx context.Context, actor Actor, action string, prev *Status, a Appointment) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sideEffectTimeout)
	defer cancel()

	entry := AuditEntry{
		ActorID:        actor.ID,
		ActorRole:      actor.Role,
		Action:         action,
		AppointmentID:  a.ID,
		PreviousStatus: prev,
		NewStatus:      a.Status,
		Timestamp:      s.now(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.metrics.SideEffectFailed(ctx, "audit")
		s.log.Error().Err(err).Str("appointment_id", a.ID.String()).Str("action", action).Msg("failed to record audit entry")
	}

	for _, recipient := range recipients(actor, a) {
		n := Notification{
			RecipientID:   recipient,
			AppointmentID: a.ID,
			EventType:     action,
			ScheduledAt:   a.ScheduledAt,
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.metrics.SideEffectFailed(ctx, "notification")
			s.log.Error().Err(err).
				Str("appointment_id", a.ID.String()).
				Str("recipient_id", recipient.String()).
				Msg("failed to send notification")
		}
	}
}

func (s *Service) provisionRoom(ctx context.Context, a Appointment) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sideEffectTimeout)
	defer cancel()
	if err := s.rooms.Provision(rctx, a); err != nil {
		s.metrics.SideEffectFailed(ctx, "meeting_room")
		s.log.Error().Err(err).Str("appointment_id", a.ID.String()).Msg("failed to provision meeting room")
	}
}

// recipients is the counter-party of the actor; both sides when the actor
// is neither.
func recipients(actor Actor, a Appointment) []uuid.UUID {
	switch actor.Role {
	case RolePatient:
		return []uuid.UUID{a.ProviderID}
	case RoleProvider:
		return []uuid.UUID{a.PatientID}
	default:
		return []uuid.UUID{a.PatientID, a.ProviderID}
	}
}

func authorize(actor Actor, providerID, patientID uuid.UUID) error {
	if actor.privileged() {
		return nil
	}
	switch actor.Role {
	case RolePatient:
		if actor.ID != uuid.Nil && actor.ID == patientID {
			return nil
		}
	case RoleProvider:
		if actor.ID != uuid.Nil && actor.ID == providerID {
			return nil
		}
	}
	return ErrForbidden
}

func initialStatus(role Role, requested Status) (Status, error) {
	switch role {
	case RolePatient:
		if requested == StatusConfirmed {
			return "", fmt.Errorf("%w: patients cannot book confirmed appointments", ErrForbidden)
		}
		return StatusPending, nil
	default:
		if requested == "" {
			return StatusConfirmed, nil
		}
		return requested, nil
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrSlotConflict):
		return "conflict"
	case errors.Is(err, ErrLinkInactive),
		errors.Is(err, ErrProviderNotBookable),
		errors.Is(err, ErrPastScheduleTime),
		errors.Is(err, ErrCrossReferenceMismatch),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrBlockedDate),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrNotFound),
		errors.Is(err, availability.ErrProviderNotFound):
		return "rejected"
	default:
		return "error"
	}
}
