package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func scanLink(row pgx.Row) (*Link, error) {
	var l Link
	err := row.Scan(&l.ID, &l.PatientID, &l.ProviderID, &l.Status, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &l, nil
}

func scanClinicalRecord(row pgx.Row) (*ClinicalRecord, error) {
	var c ClinicalRecord
	err := row.Scan(&c.ID, &c.LinkID, &c.Kind, &c.Completed, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicalRecordNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (d *PgDirectory) GetLink(ctx context.Context, id uuid.UUID) (*Link, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, patient_id, provider_id, status, created_at
		FROM patient_provider_links
		WHERE id = $1
	`, id)
	return scanLink(row)
}

func (d *PgDirectory) GetClinicalRecord(ctx context.Context, id uuid.UUID) (*ClinicalRecord, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, link_id, kind, completed, created_at
		FROM clinical_records
		WHERE id = $1
	`, id)
	return scanClinicalRecord(row)
}
