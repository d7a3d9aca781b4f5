package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

const appointmentColumns = `id, link_id, provider_id, patient_id, scheduled_at, duration_minutes, ends_at,
	status, is_online, clinical_record_id, notes, booked_by, cancelled_by, cancel_reason,
	created_at, updated_at`

var listColumns = []any{
	"id", "link_id", "provider_id", "patient_id", "scheduled_at", "duration_minutes", "ends_at",
	"status", "is_online", "clinical_record_id", "notes", "booked_by", "cancelled_by", "cancel_reason",
	"created_at", "updated_at",
}

// PgLedger stores appointments in Postgres. Writes that can create overlap
// take a transaction-scoped advisory lock keyed by provider id; the
// appointments_no_overlap exclusion constraint backs the check.
type PgLedger struct {
	pool    *pgxpool.Pool
	dialect goqu.DialectWrapper
}

func NewPgLedger(pool *pgxpool.Pool) *PgLedger {
	return &PgLedger{pool: pool, dialect: goqu.Dialect("postgres")}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var notes, cancelReason *string

	err := row.Scan(
		&a.ID,
		&a.LinkID,
		&a.ProviderID,
		&a.PatientID,
		&a.ScheduledAt,
		&a.Duration,
		&a.EndsAt,
		&a.Status,
		&a.IsOnline,
		&a.ClinicalRecordID,
		&notes,
		&a.BookedBy,
		&a.CancelledBy,
		&cancelReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if notes != nil {
		a.Notes = *notes
	}
	if cancelReason != nil {
		a.CancelReason = *cancelReason
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// mapPgError turns constraint and isolation failures into ledger errors.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23P01": // exclusion_violation
		return fmt.Errorf("%w: %s", ErrSlotConflict, pgErr.ConstraintName)
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return fmt.Errorf("%w: %s", errRetryable, pgErr.Message)
	}
	return err
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// withProviderTx runs fn in a transaction holding the provider's advisory
// lock. The lock is released on commit or rollback.
func (r *PgLedger) withProviderTx(ctx context.Context, providerID uuid.UUID, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, providerID.String()); err != nil {
		return mapPgError(fmt.Errorf("provider lock: %w", err))
	}

	if err := fn(tx); err != nil {
		return mapPgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func activeInRange(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND scheduled_at < $3
		  AND ends_at > $2
		ORDER BY scheduled_at
	`, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query active appointments: %w", err)
	}
	return collectAppointments(rows)
}

// Interface methods

func (r *PgLedger) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgLedger) ListActiveInRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return activeInRange(ctx, r.pool, providerID, from, to)
}

func (r *PgLedger) BusyIntervals(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]availability.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT scheduled_at, ends_at
		FROM appointments
		WHERE provider_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND scheduled_at < $3
		  AND ends_at > $2
		ORDER BY scheduled_at
	`, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query busy intervals: %w", err)
	}
	defer rows.Close()

	var result []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		result = append(result, iv)
	}
	return result, rows.Err()
}

func (r *PgLedger) Insert(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	endsAt := a.ScheduledAt.Add(time.Duration(a.Duration) * time.Minute)
	candidate := availability.Interval{Start: a.ScheduledAt, End: endsAt}

	var created *Appointment
	err := r.withProviderTx(ctx, a.ProviderID, func(tx pgx.Tx) error {
		from, to := guardWindow(candidate)
		existing, err := activeInRange(ctx, tx, a.ProviderID, from, to)
		if err != nil {
			return err
		}
		if c := firstConflict(existing, candidate, uuid.Nil); c != nil {
			return fmt.Errorf("%w: overlaps appointment %s", ErrSlotConflict, c.ID)
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO appointments (id, link_id, provider_id, patient_id, scheduled_at, duration_minutes, ends_at,
			                          status, is_online, clinical_record_id, notes, booked_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
			RETURNING `+appointmentColumns,
			id, a.LinkID, a.ProviderID, a.PatientID, a.ScheduledAt, a.Duration, endsAt,
			a.Status, a.IsOnline, a.ClinicalRecordID, nullableString(a.Notes), a.BookedBy,
		)
		created, err = scanAppointment(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PgLedger) Reschedule(ctx context.Context, id uuid.UUID, expected Status, newStart time.Time) (*Appointment, error) {
	// provider_id never changes, so it is safe to read before locking.
	var providerID uuid.UUID
	if err := r.pool.QueryRow(ctx, `SELECT provider_id FROM appointments WHERE id = $1`, id).Scan(&providerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("load appointment provider: %w", err)
	}

	var updated *Appointment
	err := r.withProviderTx(ctx, providerID, func(tx pgx.Tx) error {
		cur, err := scanAppointment(tx.QueryRow(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE id = $1
			FOR UPDATE
		`, id))
		if err != nil {
			return err
		}
		if cur.Status != expected {
			return errStatusChanged
		}

		candidate := availability.Interval{
			Start: newStart,
			End:   newStart.Add(time.Duration(cur.Duration) * time.Minute),
		}
		from, to := guardWindow(candidate)
		existing, err := activeInRange(ctx, tx, providerID, from, to)
		if err != nil {
			return err
		}
		if c := firstConflict(existing, candidate, cur.ID); c != nil {
			return fmt.Errorf("%w: overlaps appointment %s", ErrSlotConflict, c.ID)
		}

		updated, err = scanAppointment(tx.QueryRow(ctx, `
			UPDATE appointments
			SET scheduled_at = $2,
			    ends_at = $3,
			    status = 'pending',
			    updated_at = now()
			WHERE id = $1
			RETURNING `+appointmentColumns,
			id, candidate.Start, candidate.End,
		))
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PgLedger) Transition(ctx context.Context, id uuid.UUID, from, to Status, change Change) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancelled_by = COALESCE($4, cancelled_by),
		    cancel_reason = COALESCE($5, cancel_reason),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, to, from, change.CancelledBy, nullableString(change.CancelReason),
	)

	updated, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		// Either the row is gone or its status moved under us.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, errStatusChanged
	}
	if err != nil {
		return nil, mapPgError(err)
	}
	return updated, nil
}

func (r *PgLedger) List(ctx context.Context, f ListFilter) ([]Appointment, error) {
	ds := r.dialect.From("appointments").Select(listColumns...)

	if f.ProviderID != nil {
		ds = ds.Where(goqu.Ex{"provider_id": f.ProviderID.String()})
	}
	if f.PatientID != nil {
		ds = ds.Where(goqu.Ex{"patient_id": f.PatientID.String()})
	}
	if f.LinkID != nil {
		ds = ds.Where(goqu.Ex{"link_id": f.LinkID.String()})
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		ds = ds.Where(goqu.C("status").In(statuses))
	}
	if f.From != nil {
		ds = ds.Where(goqu.C("scheduled_at").Gte(*f.From))
	}
	if f.To != nil {
		ds = ds.Where(goqu.C("scheduled_at").Lt(*f.To))
	}

	ds = ds.Order(goqu.I("scheduled_at").Asc(), goqu.I("id").Asc())

	if f.Limit > 0 {
		ds = ds.Limit(uint(f.Limit))
	}
	if f.Offset > 0 {
		ds = ds.Offset(uint(f.Offset))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgLedger) ListLapsed(ctx context.Context, before time.Time, limit int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
		  AND scheduled_at < $1
		ORDER BY scheduled_at
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list lapsed appointments: %w", err)
	}
	return collectAppointments(rows)
}
