package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

var secret = []byte("test-secret")

// 2030-03-04 is a Monday; the clock sits on the Friday before.
var (
	monday = time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)
	now    = monday.AddDate(0, 0, -3).Add(8 * time.Hour)
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type harness struct {
	handler    http.Handler
	providerID uuid.UUID
	patientID  uuid.UUID
	link       appointment.Link
	patient    string
	provider   string
	admin      string
}

func newHarness(t *testing.T, bookingRate int) *harness {
	t.Helper()
	h := &harness{providerID: uuid.New(), patientID: uuid.New()}

	store := availability.NewMemoryStore()
	store.PutProvider(availability.Provider{
		ID:           h.providerID,
		DisplayName:  "Dr. Grace",
		SlotDuration: 30,
		Verification: availability.VerificationVerified,
	})
	require.NoError(t, store.ReplaceWindows(context.Background(), h.providerID, []availability.Window{
		{DayOfWeek: time.Monday, Start: availability.Clock(9, 0), End: availability.Clock(11, 0), IsActive: true},
	}))

	dir := appointment.NewMemoryDirectory()
	h.link = dir.PutLink(appointment.Link{PatientID: h.patientID, ProviderID: h.providerID, Status: appointment.LinkActive})

	ledger := appointment.NewMemoryLedger()
	clock := func() time.Time { return now }
	svc := appointment.NewService(appointment.Deps{
		Ledger:    ledger,
		Providers: store,
		Directory: dir,
		Locker:    redisclient.NewLocalLocker(time.Second),
		Logger:    zerolog.Nop(),
		Now:       clock,
	})

	h.handler = NewRouter(RouterConfig{
		Service:     svc,
		Calendar:    appointment.NewCalendar(store, ledger, time.UTC, zerolog.Nop()),
		Calculator:  availability.NewCalculator(store, ledger, time.UTC),
		Postgres:    pingerFunc(func(context.Context) error { return nil }),
		Logger:      zerolog.Nop(),
		JWTSecret:   secret,
		BookingRate: bookingRate,
		Env:         "test",
		Now:         clock,
	})

	h.patient = token(t, appointment.Actor{ID: h.patientID, Role: appointment.RolePatient})
	h.provider = token(t, appointment.Actor{ID: h.providerID, Role: appointment.RoleProvider})
	h.admin = token(t, appointment.Actor{ID: uuid.New(), Role: appointment.RoleAdmin})
	return h
}

func token(t *testing.T, a appointment.Actor) string {
	t.Helper()
	tok, err := SignToken(secret, a, time.Hour)
	require.NoError(t, err)
	return tok
}

func (h *harness) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (h *harness) book(t *testing.T, tok string, start time.Time) *httptest.ResponseRecorder {
	return h.do(t, http.MethodPost, "/appointments", tok, map[string]any{
		"link_id":      h.link.ID,
		"scheduled_at": start,
	})
}

func TestAuth(t *testing.T) {
	h := newHarness(t, 0)

	rec := h.do(t, http.MethodGet, "/appointments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/appointments", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	system, err := SignToken(secret, appointment.SystemActor, time.Hour)
	require.NoError(t, err)
	rec = h.do(t, http.MethodGet, "/appointments", system, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := SignToken([]byte("other"), appointment.Actor{ID: uuid.New(), Role: appointment.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	rec = h.do(t, http.MethodGet, "/appointments", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := SignToken(secret, appointment.Actor{ID: uuid.New(), Role: appointment.RoleAdmin}, -time.Minute)
	require.NoError(t, err)
	rec = h.do(t, http.MethodGet, "/appointments", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAppointment(t *testing.T) {
	h := newHarness(t, 0)

	rec := h.book(t, h.patient, monday.Add(9*time.Hour))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "pending", got.Status)
	assert.Equal(t, 30, got.DurationMinutes)
	assert.Equal(t, h.providerID, got.ProviderID)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = h.book(t, h.provider, monday.Add(9*time.Hour+15*time.Minute))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_conflict", decode[ErrorResponse](t, rec).Error)

	rec = h.book(t, h.patient, now.Add(-time.Hour))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "past_schedule_time", decode[ErrorResponse](t, rec).Error)

	stranger := token(t, appointment.Actor{ID: uuid.New(), Role: appointment.RolePatient})
	rec = h.book(t, stranger, monday.Add(10*time.Hour))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateAppointment_Validation(t *testing.T) {
	h := newHarness(t, 0)

	rec := h.do(t, http.MethodPost, "/appointments", h.patient, map[string]any{"link_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	e := decode[ErrorResponse](t, rec)
	assert.Equal(t, "validation_failed", e.Error)
	assert.Contains(t, e.Details, "link_id")
	assert.Contains(t, e.Details, "scheduled_at")

	rec = h.do(t, http.MethodPost, "/appointments", h.patient, map[string]any{
		"link_id": h.link.ID, "scheduled_at": monday.Add(9 * time.Hour), "status": "completed",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+h.patient)
	raw := httptest.NewRecorder()
	h.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
	assert.Equal(t, "invalid_request_body", decode[ErrorResponse](t, raw).Error)

	rec = h.do(t, http.MethodPost, "/appointments", h.patient, map[string]any{
		"link_id": uuid.New(), "scheduled_at": monday.Add(9 * time.Hour),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "link_not_found", decode[ErrorResponse](t, rec).Error)
}

func TestLifecycleEndpoints(t *testing.T) {
	h := newHarness(t, 0)

	created := decode[AppointmentResponse](t, h.book(t, h.patient, monday.Add(9*time.Hour)))
	base := "/appointments/" + created.ID.String()

	rec := h.do(t, http.MethodPost, base+"/confirm", h.patient, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPost, base+"/confirm", h.provider, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "confirmed", decode[AppointmentResponse](t, rec).Status)

	rec = h.do(t, http.MethodPost, base+"/reschedule", h.patient, map[string]any{"scheduled_at": monday.Add(10 * time.Hour)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "pending", moved.Status)
	assert.True(t, monday.Add(10*time.Hour).Equal(moved.ScheduledAt))

	rec = h.do(t, http.MethodPost, base+"/cancel", h.patient, map[string]any{"reason": "feeling better"})
	require.Equal(t, http.StatusOK, rec.Code)
	cancelled := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, "feeling better", cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, h.patientID, *cancelled.CancelledBy)

	rec = h.do(t, http.MethodPost, base+"/confirm", h.provider, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode[ErrorResponse](t, rec).Error)

	rec = h.do(t, http.MethodPost, "/appointments/"+uuid.NewString()+"/complete", h.provider, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/appointments/garbage/no-show", h.provider, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	other := decode[AppointmentResponse](t, h.book(t, h.patient, monday.Add(9*time.Hour)))
	rec = h.do(t, http.MethodPost, "/appointments/"+other.ID.String()+"/cancel", h.patient, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListAndGet(t *testing.T) {
	h := newHarness(t, 0)

	a := decode[AppointmentResponse](t, h.book(t, h.patient, monday.Add(9*time.Hour)))
	h.book(t, h.provider, monday.Add(10*time.Hour))

	rec := h.do(t, http.MethodGet, "/appointments?status=pending", h.patient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[AppointmentListResponse](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, a.ID, list.Items[0].ID)
	assert.Equal(t, 20, list.Limit)

	rec = h.do(t, http.MethodGet, "/appointments?provider_id="+h.providerID.String()+"&limit=1&offset=1", h.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[AppointmentListResponse](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "confirmed", list.Items[0].Status)

	rec = h.do(t, http.MethodGet, "/appointments?patient_id="+uuid.NewString(), h.patient, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodGet, "/appointments?status=lost", h.admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/appointments?from=yesterday", h.admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/appointments/"+a.ID.String(), h.provider, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	stranger := token(t, appointment.Actor{ID: uuid.New(), Role: appointment.RoleProvider})
	rec = h.do(t, http.MethodGet, "/appointments/"+a.ID.String(), stranger, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAvailabilityEndpoints(t *testing.T) {
	h := newHarness(t, 0)
	path := "/providers/" + h.providerID.String()

	h.book(t, h.patient, monday.Add(9*time.Hour+30*time.Minute))

	rec := h.do(t, http.MethodGet, path+"/availability?date=2030-03-04", h.patient, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	day := decode[availability.DayAvailability](t, rec)
	require.Len(t, day.Slots, 4)
	assert.True(t, day.Slots[0].Available)
	assert.False(t, day.Slots[1].Available)
	assert.Equal(t, availability.ReasonConflict, day.Slots[1].Reason)
	assert.Equal(t, 1, day.ActiveCount)

	rec = h.do(t, http.MethodGet, path+"/availability?date=2030-03-04&days=7", h.patient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	week := decode[[]availability.DayAvailability](t, rec)
	assert.Len(t, week, 7)

	rec = h.do(t, http.MethodGet, path+"/availability?date=03/04/2030", h.patient, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, path+"/availability/next?from=2030-03-04T09:15:00Z", h.patient, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	next := decode[availability.SlotAvailability](t, rec)
	assert.True(t, monday.Add(10*time.Hour).Equal(next.Start))

	rec = h.do(t, http.MethodGet, "/providers/"+uuid.NewString()+"/availability", h.patient, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "provider_not_found", decode[ErrorResponse](t, rec).Error)
}

func TestCalendarEndpoints(t *testing.T) {
	h := newHarness(t, 0)
	path := "/providers/" + h.providerID.String()

	body := map[string]any{"windows": []map[string]any{
		{"day_of_week": 1, "start": "08:00", "end": "12:00", "location": "Room 2"},
		{"day_of_week": 3, "start": "13:00", "end": "24:00"},
	}}
	rec := h.do(t, http.MethodPut, path+"/windows", h.patient, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPut, path+"/windows", h.provider, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	windows := decode[[]WindowResponse](t, rec)
	require.Len(t, windows, 2)
	assert.Equal(t, "08:00", windows[0].Start)
	assert.True(t, windows[0].IsActive)

	rec = h.do(t, http.MethodPut, path+"/windows", h.admin, map[string]any{"windows": []map[string]any{
		{"day_of_week": 1, "start": "12:00", "end": "08:00"},
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPut, path+"/windows", h.admin, map[string]any{"windows": []map[string]any{
		{"day_of_week": 9, "start": "08:00", "end": "12:00"},
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.book(t, h.patient, monday.Add(9*time.Hour))

	rec = h.do(t, http.MethodPost, path+"/blocked-dates/2030-03-04", h.provider, map[string]any{"reason": "training"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	blocked := decode[BlockDateResponse](t, rec)
	assert.Equal(t, 1, blocked.ActiveAppointments)

	rec = h.book(t, h.patient, monday.Add(11*time.Hour))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "blocked_date", decode[ErrorResponse](t, rec).Error)

	rec = h.do(t, http.MethodGet, path+"/blocked-dates?from=2030-03-01&to=2030-03-31", h.patient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]BlockedDateResponse](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "2030-03-04", list[0].Date)

	rec = h.do(t, http.MethodDelete, path+"/blocked-dates/2030-03-04", h.provider, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodPut, path+"/settings", h.provider, map[string]any{"slot_duration_minutes": 45, "buffer_minutes": 15})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 45, decode[ProviderSettingsResponse](t, rec).SlotDurationMinutes)

	rec = h.do(t, http.MethodPut, path+"/settings", h.provider, map[string]any{"slot_duration_minutes": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookingRateLimit(t *testing.T) {
	h := newHarness(t, 2)

	assert.Equal(t, http.StatusCreated, h.book(t, h.patient, monday.Add(9*time.Hour)).Code)
	assert.Equal(t, http.StatusCreated, h.book(t, h.patient, monday.Add(10*time.Hour)).Code)

	rec := h.book(t, h.patient, monday.Add(11*time.Hour))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decode[ErrorResponse](t, rec).Error)

	// the limit is per actor
	assert.Equal(t, http.StatusCreated, h.book(t, h.provider, monday.Add(12*time.Hour)).Code)

	// reads are not limited
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/appointments", h.patient, nil).Code)
}

func TestHealth(t *testing.T) {
	up := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("down") })

	cases := []struct {
		name     string
		pg, rd   Pinger
		code     int
		status   string
		redisDep string
	}{
		{"all up", up, up, http.StatusOK, "ok", "ok"},
		{"redis down", up, down, http.StatusOK, "degraded", "down"},
		{"postgres down", down, up, http.StatusServiceUnavailable, "error", "ok"},
		{"no redis", up, nil, http.StatusOK, "ok", "disabled"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hh := NewHealthHandler(tc.pg, tc.rd, "test", "v1")
			rec := httptest.NewRecorder()
			hh.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tc.code, rec.Code)
			resp := decode[ReadinessResponse](t, rec)
			assert.Equal(t, tc.status, resp.Status)
			assert.Equal(t, tc.redisDep, resp.Dependencies["redis"])
		})
	}

	h := newHarness(t, 0)
	rec := h.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
