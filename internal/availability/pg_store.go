package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// NewPgStore returns a Store backed by Postgres. loc is the clinic time zone
// that date columns are interpreted in.
func NewPgStore(pool *pgxpool.Pool, loc *time.Location) *PgStore {
	if loc == nil {
		loc = time.UTC
	}
	return &PgStore{pool: pool, loc: loc}
}

// Helpers

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(
		&p.ID,
		&p.DisplayName,
		&p.SlotDuration,
		&p.BufferMinutes,
		&p.MaxDailyAppointments,
		&p.Verification,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanWindow(row pgx.Row) (*Window, error) {
	var w Window
	var day, start, end int16
	var location *string

	if err := row.Scan(&w.ID, &w.ProviderID, &day, &start, &end, &location, &w.IsActive); err != nil {
		return nil, err
	}
	w.DayOfWeek = time.Weekday(day)
	w.Start = TimeOfDay(start)
	w.End = TimeOfDay(end)
	if location != nil {
		w.Location = *location
	}
	return &w, nil
}

// civil re-anchors a scanned DATE (UTC midnight) to midnight in the clinic zone.
func (s *PgStore) civil(d time.Time) time.Time {
	y, m, dd := d.Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, s.loc)
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// Interface methods

func (s *PgStore) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, display_name, slot_duration_minutes, buffer_minutes,
		       max_daily_appointments, verification_status, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (s *PgStore) UpdateProviderSettings(ctx context.Context, id uuid.UUID, ps ProviderSettings) (*Provider, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE providers
		SET slot_duration_minutes = $2,
		    buffer_minutes = $3,
		    max_daily_appointments = $4,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, display_name, slot_duration_minutes, buffer_minutes,
		          max_daily_appointments, verification_status, created_at, updated_at
	`, id, ps.SlotDuration, ps.BufferMinutes, ps.MaxDailyAppointments)
	return scanProvider(row)
}

func (s *PgStore) ListWindows(ctx context.Context, providerID uuid.UUID) ([]Window, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, provider_id, day_of_week, start_minute, end_minute, location, is_active
		FROM availability_windows
		WHERE provider_id = $1
		ORDER BY day_of_week, start_minute
	`, providerID)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	defer rows.Close()

	var result []Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PgStore) ReplaceWindows(ctx context.Context, providerID uuid.UUID, windows []Window) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM providers WHERE id = $1)`, providerID).Scan(&exists); err != nil {
		return fmt.Errorf("check provider: %w", err)
	}
	if !exists {
		return ErrProviderNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM availability_windows WHERE provider_id = $1`, providerID); err != nil {
		return fmt.Errorf("clear windows: %w", err)
	}

	for _, w := range windows {
		id := w.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_windows (id, provider_id, day_of_week, start_minute, end_minute, location, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, id, providerID, int16(w.DayOfWeek), int16(w.Start), int16(w.End), nullableString(w.Location), w.IsActive)
		if err != nil {
			return fmt.Errorf("insert window: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PgStore) BlockedOn(ctx context.Context, providerID uuid.UUID, date time.Time) (*BlockedDate, error) {
	var day time.Time
	var reason *string
	err := s.pool.QueryRow(ctx, `
		SELECT blocked_on, reason
		FROM blocked_dates
		WHERE provider_id = $1 AND blocked_on = $2::date
	`, providerID, dateKey(date)).Scan(&day, &reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load blocked date: %w", err)
	}

	b := &BlockedDate{ProviderID: providerID, Date: s.civil(day)}
	if reason != nil {
		b.Reason = *reason
	}
	return b, nil
}

func (s *PgStore) BlockDate(ctx context.Context, b BlockedDate) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO blocked_dates (provider_id, blocked_on, reason, created_at)
		VALUES ($1, $2::date, $3, now())
		ON CONFLICT (provider_id, blocked_on) DO UPDATE SET reason = EXCLUDED.reason
	`, b.ProviderID, dateKey(b.Date), nullableString(b.Reason))
	if err != nil {
		return fmt.Errorf("block date: %w", err)
	}
	return nil
}

func (s *PgStore) UnblockDate(ctx context.Context, providerID uuid.UUID, date time.Time) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM blocked_dates WHERE provider_id = $1 AND blocked_on = $2::date
	`, providerID, dateKey(date))
	if err != nil {
		return fmt.Errorf("unblock date: %w", err)
	}
	return nil
}

func (s *PgStore) ListBlockedDates(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]BlockedDate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT blocked_on, reason
		FROM blocked_dates
		WHERE provider_id = $1 AND blocked_on >= $2::date AND blocked_on < $3::date
		ORDER BY blocked_on
	`, providerID, dateKey(from), dateKey(to))
	if err != nil {
		return nil, fmt.Errorf("list blocked dates: %w", err)
	}
	defer rows.Close()

	var result []BlockedDate
	for rows.Next() {
		var day time.Time
		var reason *string
		if err := rows.Scan(&day, &reason); err != nil {
			return nil, err
		}
		b := BlockedDate{ProviderID: providerID, Date: s.civil(day)}
		if reason != nil {
			b.Reason = *reason
		}
		result = append(result, b)
	}
	return result, rows.Err()
}
