package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

func requireActor(w http.ResponseWriter, r *http.Request) (appointment.Actor, bool) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no caller identity")
	}
	return actor, ok
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		var req CreateAppointmentRequest
		if !decodeBody(w, r, &req, false) {
			return
		}

		in := appointment.CreateRequest{
			LinkID:        uuid.MustParse(req.LinkID),
			ScheduledAt:   req.ScheduledAt,
			Duration:      req.DurationMinutes,
			InitialStatus: appointment.Status(req.Status),
			IsOnline:      req.IsOnline,
			Notes:         req.Notes,
		}
		if req.ClinicalRecordID != "" {
			id := uuid.MustParse(req.ClinicalRecordID)
			in.ClinicalRecordID = &id
		}

		appt, err := svc.Create(r.Context(), actor, in)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		appt, err := svc.Get(r.Context(), actor, id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		f, err := parseListFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		items, err := svc.List(r.Context(), actor, f)
		if err != nil {
			handleError(w, r, err)
			return
		}

		resp := AppointmentListResponse{
			Items:  make([]AppointmentResponse, 0, len(items)),
			Limit:  f.Limit,
			Offset: f.Offset,
		}
		for i := range items {
			resp.Items = append(resp.Items, toAppointmentResponse(&items[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type queryError string

func (e queryError) Error() string { return string(e) }

func parseListFilter(r *http.Request) (appointment.ListFilter, error) {
	q := r.URL.Query()
	var f appointment.ListFilter

	for name, dst := range map[string]**uuid.UUID{
		"provider_id": &f.ProviderID,
		"patient_id":  &f.PatientID,
		"link_id":     &f.LinkID,
	} {
		if v := q.Get(name); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return f, queryError(name + " must be a valid UUID")
			}
			*dst = &id
		}
	}

	if v := q.Get("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			st := appointment.Status(strings.TrimSpace(s))
			if !st.Valid() {
				return f, queryError("unknown status " + string(st))
			}
			f.Statuses = append(f.Statuses, st)
		}
	}

	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if v := q.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, queryError(name + " must be RFC3339")
			}
			*dst = &t
		}
	}

	var err error
	if f.Limit, err = queryInt(q.Get("limit")); err != nil {
		return f, queryError("limit must be an integer")
	}
	if f.Offset, err = queryInt(q.Get("offset")); err != nil {
		return f, queryError("offset must be an integer")
	}
	return f, nil
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// transitionHandler serves the body-less lifecycle endpoints.
func transitionHandler(op func(ctx context.Context, actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		appt, err := op(r.Context(), actor, id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		var req CancelRequest
		if !decodeBody(w, r, &req, true) {
			return
		}
		appt, err := svc.Cancel(r.Context(), actor, id, req.Reason)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		var req RescheduleRequest
		if !decodeBody(w, r, &req, false) {
			return
		}
		appt, err := svc.Reschedule(r.Context(), actor, id, req.ScheduledAt)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}
