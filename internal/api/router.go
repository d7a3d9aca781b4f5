package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

type RouterConfig struct {
	Service     *appointment.Service
	Calendar    *appointment.Calendar
	Calculator  *availability.Calculator
	Postgres    Pinger
	Redis       Pinger
	Logger      zerolog.Logger
	JWTSecret   []byte
	BookingRate int // per actor per minute, 0 disables
	Env         string
	Version     string
	Now         func() time.Time
}

func NewRouter(cfg RouterConfig) http.Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	loc := cfg.Calculator.Location()

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		// Provider calendars
		r.Route("/providers/{id}", func(r chi.Router) {
			r.Get("/availability", availabilityHandler(cfg.Calculator, now))
			r.Get("/availability/next", nextAvailableHandler(cfg.Calculator, now))
			r.Get("/windows", listWindowsHandler(cfg.Calendar))
			r.Put("/windows", replaceWindowsHandler(cfg.Calendar))
			r.Put("/settings", updateSettingsHandler(cfg.Calendar))
			r.Get("/blocked-dates", listBlockedDatesHandler(cfg.Calendar, loc, now))
			r.Post("/blocked-dates/{date}", blockDateHandler(cfg.Calendar, loc))
			r.Delete("/blocked-dates/{date}", unblockDateHandler(cfg.Calendar, loc))
		})

		// Appointment endpoints
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/confirm", transitionHandler(cfg.Service.Confirm))
		r.Post("/appointments/{id}/complete", transitionHandler(cfg.Service.Complete))
		r.Post("/appointments/{id}/no-show", transitionHandler(cfg.Service.MarkNoShow))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))

		// Writes that take the provider lock
		r.Group(func(r chi.Router) {
			r.Use(BookingRateLimit(cfg.BookingRate))
			r.Post("/appointments", createAppointmentHandler(cfg.Service))
			r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service))
		})
	})

	return r
}
