package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

var (
	slotDurations = []int{15, 20, 30, 45, 60}
	buffers       = []int{0, 0, 5, 10}
	rooms         = []string{"Room 1", "Room 2", "Room 3", "Telehealth", ""}
	recordKinds   = []string{"intake", "consent", "follow_up_questionnaire"}
)

type weekday struct {
	day        time.Weekday
	start, end int // minutes since midnight
}

func main() {
	providers := flag.Int("providers", 100, "number of providers")
	patients := flag.Int("patients", 9000, "number of patients")
	maxLinks := flag.Int("links-per-patient", 3, "max providers each patient is linked to")
	migrate := flag.Bool("migrate", true, "apply embedded migrations first")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.Init("seed", cfg.Env, cfg.LogLevel)
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if *migrate {
		n, err := db.NewMigrator(pool, db.Migrations()).Up(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
		logger.Info().Int("applied", n).Msg("migrations up to date")
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	providerIDs, err := seedProviders(ctx, pool, faker, *providers, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed providers")
	}
	if err := seedPatients(ctx, pool, faker, *patients, providerIDs, *maxLinks, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger zerolog.Logger) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding providers")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		verification := "verified"
		if faker.Number(1, 20) == 1 {
			verification = "pending"
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, display_name, slot_duration_minutes, buffer_minutes, max_daily_appointments, verification_status)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, "Dr. "+faker.LastName(), pick(faker, slotDurations), pick(faker, buffers), faker.Number(0, 16), verification)
		if err != nil {
			return nil, fmt.Errorf("insert provider: %w", err)
		}

		for _, w := range weeklyPlan(faker) {
			_, err := tx.Exec(ctx, `
				INSERT INTO availability_windows (id, provider_id, day_of_week, start_minute, end_minute, location, is_active)
				VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), true)
			`, uuid.New(), id, int16(w.day), int16(w.start), int16(w.end), pick(faker, rooms))
			if err != nil {
				return nil, fmt.Errorf("insert window: %w", err)
			}
		}

		// a couple of days off in the coming month
		for j := 0; j < faker.Number(0, 2); j++ {
			day := time.Now().AddDate(0, 0, faker.Number(1, 30)).Format("2006-01-02")
			_, err := tx.Exec(ctx, `
				INSERT INTO blocked_dates (provider_id, blocked_on, reason)
				VALUES ($1, $2::date, $3)
				ON CONFLICT (provider_id, blocked_on) DO NOTHING
			`, id, day, faker.RandomString([]string{"conference", "annual leave", "training"}))
			if err != nil {
				return nil, fmt.Errorf("insert blocked date: %w", err)
			}
		}

		if verification == "verified" {
			ids = append(ids, id)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	logger.Info().Int("bookable", len(ids)).Msg("providers seeded")
	return ids, nil
}

// weeklyPlan gives most providers a split weekday schedule, some a Saturday
// morning, and occasionally overlapping windows.
func weeklyPlan(faker *gofakeit.Faker) []weekday {
	var out []weekday
	for d := time.Monday; d <= time.Friday; d++ {
		if faker.Number(1, 5) == 1 {
			continue
		}
		morning := faker.Number(7, 9) * 60
		out = append(out,
			weekday{day: d, start: morning, end: 12 * 60},
			weekday{day: d, start: 13 * 60, end: faker.Number(16, 19) * 60},
		)
		if faker.Number(1, 10) == 1 {
			out = append(out, weekday{day: d, start: 11 * 60, end: 14 * 60})
		}
	}
	if faker.Bool() {
		out = append(out, weekday{day: time.Saturday, start: 9 * 60, end: 13 * 60})
	}
	return out
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, providers []uuid.UUID, maxLinks int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding patients")
	if len(providers) == 0 {
		return fmt.Errorf("no bookable providers to link patients to")
	}

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			patientID := uuid.New()
			batch.Queue(`
				INSERT INTO patients (id, name, email)
				VALUES ($1, $2, $3)
			`, patientID, faker.Name(), faker.Email())

			linked := map[uuid.UUID]bool{}
			for j := 0; j < faker.Number(1, maxLinks); j++ {
				providerID := providers[faker.Number(0, len(providers)-1)]
				if linked[providerID] {
					continue
				}
				linked[providerID] = true

				linkID := uuid.New()
				status := "active"
				if faker.Number(1, 15) == 1 {
					status = "inactive"
				}
				batch.Queue(`
					INSERT INTO patient_provider_links (id, patient_id, provider_id, status)
					VALUES ($1, $2, $3, $4)
				`, linkID, patientID, providerID, status)

				if faker.Bool() {
					batch.Queue(`
						INSERT INTO clinical_records (id, link_id, kind, completed)
						VALUES ($1, $2, $3, $4)
					`, uuid.New(), linkID, pick(faker, recordKinds), faker.Bool())
				}
			}
		}

		if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			return tx.SendBatch(ctx, batch).Close()
		}); err != nil {
			return err
		}

		logger.Info().Int("seeded", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}

func pick[T any](faker *gofakeit.Faker, items []T) T {
	return items[faker.Number(0, len(items)-1)]
}
