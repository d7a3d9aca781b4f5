package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// decodeBody reads a JSON body into dst and validates it. An empty body is
// accepted when optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return false
		}
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", describeValidation(err))
		return false
	}
	return true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// handleError maps service errors to HTTP responses.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var terr *appointment.TransitionError
	switch {
	case errors.Is(err, appointment.ErrInvalidRequest),
		errors.Is(err, availability.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, appointment.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "not allowed for this caller")
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrLinkNotFound):
		writeError(w, http.StatusNotFound, "link_not_found", err.Error())
	case errors.Is(err, appointment.ErrClinicalRecordNotFound):
		writeError(w, http.StatusNotFound, "clinical_record_not_found", err.Error())
	case errors.Is(err, availability.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, availability.ErrNoAvailability):
		writeError(w, http.StatusNotFound, "no_availability", err.Error())
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.As(err, &terr):
		writeError(w, http.StatusConflict, "invalid_transition", terr.Error())
	case errors.Is(err, appointment.ErrBlockedDate):
		writeError(w, http.StatusConflict, "blocked_date", err.Error())
	case errors.Is(err, appointment.ErrLinkInactive):
		writeError(w, http.StatusUnprocessableEntity, "link_inactive", err.Error())
	case errors.Is(err, appointment.ErrProviderNotBookable):
		writeError(w, http.StatusUnprocessableEntity, "provider_not_bookable", err.Error())
	case errors.Is(err, appointment.ErrPastScheduleTime):
		writeError(w, http.StatusUnprocessableEntity, "past_schedule_time", err.Error())
	case errors.Is(err, appointment.ErrCrossReferenceMismatch):
		writeError(w, http.StatusUnprocessableEntity, "cross_reference_mismatch", err.Error())
	default:
		logging.FromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
