package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

const (
	dateLayout       = "2006-01-02"
	maxRangeDays     = 31
	defaultNextDays  = 14
	maxNextDays      = 90
	defaultBlockDays = 90
)

func parseDate(v string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout, v, loc)
}

// boundedInt reads an optional positive integer query value.
func boundedInt(v string, def, max int) (int, bool) {
	n, err := queryInt(v)
	if err != nil || n < 0 {
		return 0, false
	}
	if n == 0 {
		return def, true
	}
	if n > max {
		n = max
	}
	return n, true
}

// availabilityHandler returns one day, or a range of days when days > 1.
func availabilityHandler(calc *availability.Calculator, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireActor(w, r); !ok {
			return
		}
		providerID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		date := availability.DateOf(now(), calc.Location())
		if v := r.URL.Query().Get("date"); v != "" {
			d, err := parseDate(v, calc.Location())
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			date = d
		}
		days, ok := boundedInt(r.URL.Query().Get("days"), 1, maxRangeDays)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_days", "days must be a positive integer")
			return
		}

		if days == 1 {
			day, err := calc.ForDate(r.Context(), providerID, date, now())
			if err != nil {
				handleError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, day)
			return
		}

		out, err := calc.ForRange(r.Context(), providerID, date, days, now())
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func nextAvailableHandler(calc *availability.Calculator, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireActor(w, r); !ok {
			return
		}
		providerID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		from := now()
		if v := r.URL.Query().Get("from"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				t, err = parseDate(v, calc.Location())
			}
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC3339 or YYYY-MM-DD")
				return
			}
			from = t
		}
		days, ok := boundedInt(r.URL.Query().Get("days"), defaultNextDays, maxNextDays)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_days", "days must be a positive integer")
			return
		}

		slot, err := calc.NextAvailable(r.Context(), providerID, from, days, now())
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, slot)
	}
}

func listWindowsHandler(cal *appointment.Calendar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireActor(w, r); !ok {
			return
		}
		providerID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		windows, err := cal.Windows(r.Context(), providerID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toWindowResponses(windows))
	}
}

func replaceWindowsHandler(cal *appointment.Calendar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		providerID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		var req ReplaceWindowsRequest
		if !decodeBody(w, r, &req, false) {
			return
		}

		windows := make([]availability.Window, 0, len(req.Windows))
		for _, wr := range req.Windows {
			start, err := availability.ParseTimeOfDay(wr.Start)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_window", err.Error())
				return
			}
			end, err := availability.ParseTimeOfDay(wr.End)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_window", err.Error())
				return
			}
			active := true
			if wr.IsActive != nil {
				active = *wr.IsActive
			}
			windows = append(windows, availability.Window{
				ProviderID: providerID,
				DayOfWeek:  time.Weekday(wr.DayOfWeek),
				Start:      start,
				End:        end,
				Location:   wr.Location,
				IsActive:   active,
			})
		}

		if err := cal.ReplaceWindows(r.Context(), actor, providerID, windows); err != nil {
			handleError(w, r, err)
			return
		}
		stored, err := cal.Windows(r.Context(), providerID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toWindowResponses(stored))
	}
}

func listBlockedDatesHandler(cal *appointment.Calendar, loc *time.Location, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireActor(w, r); !ok {
			return
		}
		providerID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		from := availability.DateOf(now(), loc)
		to := from.AddDate(0, 0, defaultBlockDays)
		for name, dst := range map[string]*time.Time{"from": &from, "to": &to} {
			if v := r.URL.Query().Get(name); v != "" {
				d, err := parseDate(v, loc)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be YYYY-MM-DD")
					return
				}
				*dst = d
			}
		}

		blocked, err := cal.BlockedDates(r.Context(), providerID, from, to)
		if err != nil {
			handleError(w, r, err)
			return
		}
		out := make([]BlockedDateResponse, 0, len(blocked))
		for _, b := range blocked {
			out = append(out, toBlockedDateResponse(b))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func blockDateHandler(cal *appointment.Calendar, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		providerID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		date, err := parseDate(chi.URLParam(r, "date"), loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		var req BlockDateRequest
		if !decodeBody(w, r, &req, true) {
			return
		}

		active, err := cal.BlockDate(r.Context(), actor, providerID, date, req.Reason)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, BlockDateResponse{
			BlockedDateResponse: BlockedDateResponse{Date: date.Format(dateLayout), Reason: req.Reason},
			ActiveAppointments:  active,
		})
	}
}

func unblockDateHandler(cal *appointment.Calendar, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		providerID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		date, err := parseDate(chi.URLParam(r, "date"), loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		if err := cal.UnblockDate(r.Context(), actor, providerID, date); err != nil {
			handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func updateSettingsHandler(cal *appointment.Calendar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		providerID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		var req SettingsRequest
		if !decodeBody(w, r, &req, false) {
			return
		}

		p, err := cal.UpdateSettings(r.Context(), actor, providerID, availability.ProviderSettings{
			SlotDuration:         req.SlotDurationMinutes,
			BufferMinutes:        req.BufferMinutes,
			MaxDailyAppointments: req.MaxDailyAppointments,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ProviderSettingsResponse{
			ProviderID:           p.ID,
			SlotDurationMinutes:  p.SlotDuration,
			BufferMinutes:        p.BufferMinutes,
			MaxDailyAppointments: p.MaxDailyAppointments,
		})
	}
}
