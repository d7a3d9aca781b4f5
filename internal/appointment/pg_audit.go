package appointment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgAuditLog appends entries to audit_log. Rows are never updated.
type PgAuditLog struct {
	pool *pgxpool.Pool
}

func NewPgAuditLog(pool *pgxpool.Pool) *PgAuditLog {
	return &PgAuditLog{pool: pool}
}

func (l *PgAuditLog) Record(ctx context.Context, e AuditEntry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		payload = nil
	}

	var prev *string
	if e.PreviousStatus != nil {
		s := string(*e.PreviousStatus)
		prev = &s
	}

	_, err = l.pool.Exec(ctx, `
		INSERT INTO audit_log (actor_id, actor_role, action, appointment_id, previous_status, new_status, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
	`, e.ActorID, e.ActorRole, e.Action, e.AppointmentID, prev, e.NewStatus, payload, nullableTime(e.Timestamp))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
