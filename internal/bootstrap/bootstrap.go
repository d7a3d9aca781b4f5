// Package bootstrap wires the scheduling services from config for the
// binaries under cmd/.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/telemetry"
)

type App struct {
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Service    *appointment.Service
	Calendar   *appointment.Calendar
	Calculator *availability.Calculator

	closers []func()
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// New connects Postgres, Redis and (when configured) RabbitMQ and builds the
// scheduling services on top of them.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	app := &App{}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		return nil, fmt.Errorf("postgres connection error: %w", err)
	}
	app.Pool = pool
	app.closers = append(app.closers, pool.Close)
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("redis connection error: %w", err)
	}
	app.Redis = rdb
	app.closers = append(app.closers, func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	})
	log.Info().Msg("connected to Redis")

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	var notifier appointment.Notifier = appointment.LogNotifier{Log: log}
	if cfg.AMQPURL != "" {
		conn, err := notify.Dial(cfg.AMQPURL)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { closeAMQP(conn, log) })
		pub, err := notify.NewPublisher(conn, cfg.NotifyQueue, log)
		if err != nil {
			return nil, err
		}
		notifier = pub
		log.Info().Str("queue", cfg.NotifyQueue).Msg("connected to RabbitMQ")
	}

	ledger := appointment.NewPgLedger(pool)
	store := availability.NewPgStore(pool, cfg.Location)

	app.Service = appointment.NewService(appointment.Deps{
		Ledger:    ledger,
		Providers: store,
		Directory: appointment.NewPgDirectory(pool),
		Locker:    redisclient.NewRedisProviderLocker(rdb, cfg.LockTTL, cfg.LockWait),
		Audit:     appointment.Recorders{appointment.NewPgAuditLog(pool), appointment.LogAudit{Log: log}},
		Notifier:  notifier,
		Rooms:     appointment.LogMeetingRooms{Log: log},
		Metrics:   metrics,
		Logger:    log,
		Location:  cfg.Location,
	})
	app.Calendar = appointment.NewCalendar(store, ledger, cfg.Location, log)
	app.Calculator = availability.NewCalculator(store, ledger, cfg.Location)

	ok = true
	return app, nil
}

func closeAMQP(conn *amqp.Connection, log zerolog.Logger) {
	if err := conn.Close(); err != nil {
		log.Error().Err(err).Msg("error closing rabbitmq")
	}
}
