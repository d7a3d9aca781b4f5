package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/tern/v2/migrate"
)

// VersionTable holds the single row tern uses to track the schema version.
const VersionTable = "public.schema_version"

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the SQL files shipped with the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migration is one versioned SQL file, e.g. "001_scheduling.sql" is version 1.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

type MigrationStatus struct {
	Version int
	Name    string
	Applied bool
}

// Migrator runs the embedded migrations through tern, which serialises
// concurrent runs with an advisory lock.
type Migrator struct {
	pool *pgxpool.Pool
	fsys fs.FS
}

func NewMigrator(pool *pgxpool.Pool, fsys fs.FS) *Migrator {
	return &Migrator{pool: pool, fsys: fsys}
}

// Load parses the migration files without touching the database. Versions
// must run 1..N without gaps or duplicates.
func (m *Migrator) Load() ([]Migration, error) {
	tm, err := migrate.NewMigrator(context.Background(), nil, VersionTable)
	if err != nil {
		return nil, err
	}
	if err := tm.LoadMigrations(m.fsys); err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	return fromTern(tm.Migrations), nil
}

// withMigrator hands fn a tern migrator bound to one pooled connection.
func (m *Migrator) withMigrator(ctx context.Context, fn func(*migrate.Migrator) error) error {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tm, err := migrate.NewMigrator(ctx, conn.Conn(), VersionTable)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	if err := tm.LoadMigrations(m.fsys); err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	return fn(tm)
}

// Up applies pending migrations in order and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	count := 0
	err := m.withMigrator(ctx, func(tm *migrate.Migrator) error {
		tm.OnStart = func(int32, string, string, string) { count++ }
		if err := tm.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		return nil
	})
	return count, err
}

func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	var out []MigrationStatus
	err := m.withMigrator(ctx, func(tm *migrate.Migrator) error {
		current, err := tm.GetCurrentVersion(ctx)
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		out = statusAt(fromTern(tm.Migrations), int(current))
		return nil
	})
	return out, err
}

func statusAt(migrations []Migration, current int) []MigrationStatus {
	out := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		out = append(out, MigrationStatus{
			Version: mig.Version,
			Name:    mig.Name,
			Applied: mig.Version <= current,
		})
	}
	return out
}

func fromTern(in []*migrate.Migration) []Migration {
	out := make([]Migration, 0, len(in))
	for _, mig := range in {
		out = append(out, Migration{Version: int(mig.Sequence), Name: mig.Name, SQL: mig.UpSQL})
	}
	return out
}
