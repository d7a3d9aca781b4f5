// Command schedctl is the operator CLI for migrations and provider calendars.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

// env is built lazily by PersistentPreRunE so --help works without a database.
type env struct {
	cfg        config.Config
	log        zerolog.Logger
	pool       *pgxpool.Pool
	calendar   *appointment.Calendar
	calculator *availability.Calculator
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:           "schedctl",
		Short:         "Operate the clinic scheduling database",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.open(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if e.pool != nil {
				e.pool.Close()
			}
		},
	}

	root.AddCommand(
		newMigrateCmd(e),
		newWindowsCmd(e),
		newBlockCmd(e),
		newUnblockCmd(e),
		newAvailabilityCmd(e),
	)
	return root
}

func (e *env) open(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("config load error")
		return err
	}
	e.cfg = cfg
	e.log = logging.Init("schedctl", cfg.Env, cfg.LogLevel)

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	e.pool = pool

	store := availability.NewPgStore(pool, cfg.Location)
	ledger := appointment.NewPgLedger(pool)
	e.calendar = appointment.NewCalendar(store, ledger, cfg.Location, e.log)
	e.calculator = availability.NewCalculator(store, ledger, cfg.Location)
	return nil
}
