package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/db"
)

const dateLayout = "2006-01-02"

func newMigrateCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Manage schema migrations"}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := db.NewMigrator(e.pool, db.Migrations()).Up(cmd.Context())
			if err != nil {
				return err
			}
			e.log.Info().Int("applied", n).Msg("migrations up to date")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			statuses, err := db.NewMigrator(e.pool, db.Migrations()).Status(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tNAME\tSTATE")
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Fprintf(tw, "%03d\t%s\t%s\n", s.Version, s.Name, state)
			}
			return tw.Flush()
		},
	})
	return cmd
}

func newWindowsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "windows", Short: "Show or replace a provider's weekly windows"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list PROVIDER_ID",
		Short: "Print the provider's windows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			providerID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("provider id: %w", err)
			}
			windows, err := e.calendar.Windows(cmd.Context(), providerID)
			if err != nil {
				return err
			}
			printWindows(cmd.OutOrStdout(), windows)
			return nil
		},
	})

	var specs []string
	set := &cobra.Command{
		Use:   "set PROVIDER_ID",
		Short: "Replace all windows of a provider",
		Long: "Each --window is DAY,START,END[,LOCATION], for example mon,09:00,12:00,Room 1.\n" +
			"Passing no --window clears the schedule.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			providerID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("provider id: %w", err)
			}
			windows := make([]availability.Window, 0, len(specs))
			for _, s := range specs {
				w, err := parseWindowSpec(s)
				if err != nil {
					return err
				}
				w.ProviderID = providerID
				windows = append(windows, w)
			}
			if err := e.calendar.ReplaceWindows(cmd.Context(), appointment.SystemActor, providerID, windows); err != nil {
				return err
			}
			e.log.Info().Str("provider_id", providerID.String()).Int("windows", len(windows)).Msg("windows replaced")
			return nil
		},
	}
	set.Flags().StringArrayVarP(&specs, "window", "w", nil, "window as DAY,START,END[,LOCATION]")
	cmd.AddCommand(set)

	return cmd
}

func newBlockCmd(e *env) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "block PROVIDER_ID DATE",
		Short: "Block a date so nothing new can be booked on it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			providerID, date, err := e.providerDate(args)
			if err != nil {
				return err
			}
			active, err := e.calendar.BlockDate(cmd.Context(), appointment.SystemActor, providerID, date, reason)
			if err != nil {
				return err
			}
			if active > 0 {
				e.log.Warn().Int("active_appointments", active).Msg("date already has appointments; they are left in place")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "blocked %s\n", date.Format(dateLayout))
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason shown to callers")
	return cmd
}

func newUnblockCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "unblock PROVIDER_ID DATE",
		Short: "Remove a blocked date",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			providerID, date, err := e.providerDate(args)
			if err != nil {
				return err
			}
			if err := e.calendar.UnblockDate(cmd.Context(), appointment.SystemActor, providerID, date); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unblocked %s\n", date.Format(dateLayout))
			return nil
		},
	}
}

func newAvailabilityCmd(e *env) *cobra.Command {
	var (
		days    int
		all     bool
		asJSON  bool
		dateArg string
	)
	cmd := &cobra.Command{
		Use:   "availability PROVIDER_ID",
		Short: "Print computed slots for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			providerID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("provider id: %w", err)
			}
			now := time.Now()
			from := availability.DateOf(now, e.cfg.Location)
			if dateArg != "" {
				if from, err = time.ParseInLocation(dateLayout, dateArg, e.cfg.Location); err != nil {
					return fmt.Errorf("date: %w", err)
				}
			}

			out, err := e.calculator.ForRange(cmd.Context(), providerID, from, days, now)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			printAvailability(cmd.OutOrStdout(), out, all, e.cfg.Location)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "number of days to show")
	cmd.Flags().StringVar(&dateArg, "date", "", "first day (YYYY-MM-DD), default today")
	cmd.Flags().BoolVar(&all, "all", false, "include unavailable slots")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (e *env) providerDate(args []string) (uuid.UUID, time.Time, error) {
	providerID, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("provider id: %w", err)
	}
	date, err := time.ParseInLocation(dateLayout, args[1], e.cfg.Location)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("date: %w", err)
	}
	return providerID, date, nil
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// parseWindowSpec reads DAY,START,END[,LOCATION]. DAY is a three letter
// name or 0-6 with Sunday as 0.
func parseWindowSpec(s string) (availability.Window, error) {
	parts := strings.SplitN(s, ",", 4)
	if len(parts) < 3 {
		return availability.Window{}, fmt.Errorf("window %q: want DAY,START,END[,LOCATION]", s)
	}

	dayArg := strings.ToLower(strings.TrimSpace(parts[0]))
	if len(dayArg) > 3 {
		dayArg = dayArg[:3]
	}
	day, ok := weekdays[dayArg]
	if !ok {
		n, err := strconv.Atoi(dayArg)
		if err != nil || n < 0 || n > 6 {
			return availability.Window{}, fmt.Errorf("window %q: unknown day %q", s, parts[0])
		}
		day = time.Weekday(n)
	}

	start, err := availability.ParseTimeOfDay(strings.TrimSpace(parts[1]))
	if err != nil {
		return availability.Window{}, fmt.Errorf("window %q: %w", s, err)
	}
	end, err := availability.ParseTimeOfDay(strings.TrimSpace(parts[2]))
	if err != nil {
		return availability.Window{}, fmt.Errorf("window %q: %w", s, err)
	}

	w := availability.Window{DayOfWeek: day, Start: start, End: end, IsActive: true}
	if len(parts) == 4 {
		w.Location = strings.TrimSpace(parts[3])
	}
	return w, nil
}

func printWindows(out io.Writer, windows []availability.Window) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tSTART\tEND\tLOCATION\tACTIVE")
	for _, w := range windows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", w.DayOfWeek, w.Start, w.End, w.Location, w.IsActive)
	}
	tw.Flush()
}

func printAvailability(out io.Writer, days []*availability.DayAvailability, all bool, loc *time.Location) {
	for _, d := range days {
		header := d.Date
		switch {
		case d.Blocked:
			header += " blocked"
			if d.BlockReason != "" {
				header += " (" + d.BlockReason + ")"
			}
		case d.DailyCapReached:
			header += " full"
		}
		fmt.Fprintf(out, "%s  active=%d\n", header, d.ActiveCount)

		slots := d.Slots
		if !all {
			slots = d.AvailableSlots()
		}
		for _, s := range slots {
			line := fmt.Sprintf("  %s-%s", s.Start.In(loc).Format("15:04"), s.End.In(loc).Format("15:04"))
			if s.Location != "" {
				line += "  " + s.Location
			}
			if !s.Available {
				line += "  [" + s.Reason + "]"
			}
			fmt.Fprintln(out, line)
		}
	}
}
