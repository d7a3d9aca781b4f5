package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

type CreateAppointmentRequest struct {
	LinkID           string    `json:"link_id" validate:"required,uuid"`
	ScheduledAt      time.Time `json:"scheduled_at" validate:"required"`
	DurationMinutes  int       `json:"duration_minutes" validate:"gte=0,lte=720"`
	Status           string    `json:"status" validate:"omitempty,oneof=pending confirmed"`
	ClinicalRecordID string    `json:"clinical_record_id" validate:"omitempty,uuid"`
	IsOnline         bool      `json:"is_online"`
	Notes            string    `json:"notes" validate:"max=2000"`
}

type RescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type WindowRequest struct {
	DayOfWeek int    `json:"day_of_week" validate:"gte=0,lte=6"`
	Start     string `json:"start" validate:"required"`
	End       string `json:"end" validate:"required"`
	Location  string `json:"location" validate:"max=200"`
	IsActive  *bool  `json:"is_active"`
}

type ReplaceWindowsRequest struct {
	Windows []WindowRequest `json:"windows" validate:"dive"`
}

type BlockDateRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type SettingsRequest struct {
	SlotDurationMinutes  int `json:"slot_duration_minutes" validate:"gt=0,lte=720"`
	BufferMinutes        int `json:"buffer_minutes" validate:"gte=0,lte=240"`
	MaxDailyAppointments int `json:"max_daily_appointments" validate:"gte=0"`
}

type AppointmentResponse struct {
	ID               uuid.UUID  `json:"id"`
	LinkID           uuid.UUID  `json:"link_id"`
	ProviderID       uuid.UUID  `json:"provider_id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	ScheduledAt      time.Time  `json:"scheduled_at"`
	DurationMinutes  int        `json:"duration_minutes"`
	EndsAt           time.Time  `json:"ends_at"`
	Status           string     `json:"status"`
	IsOnline         bool       `json:"is_online"`
	ClinicalRecordID *uuid.UUID `json:"clinical_record_id,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	BookedBy         uuid.UUID  `json:"booked_by"`
	CancelledBy      *uuid.UUID `json:"cancelled_by,omitempty"`
	CancelReason     string     `json:"cancel_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type AppointmentListResponse struct {
	Items  []AppointmentResponse `json:"items"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type WindowResponse struct {
	ID        uuid.UUID `json:"id"`
	DayOfWeek int       `json:"day_of_week"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	Location  string    `json:"location,omitempty"`
	IsActive  bool      `json:"is_active"`
}

type BlockedDateResponse struct {
	Date   string `json:"date"`
	Reason string `json:"reason,omitempty"`
}

type BlockDateResponse struct {
	BlockedDateResponse
	ActiveAppointments int `json:"active_appointments"`
}

type ProviderSettingsResponse struct {
	ProviderID           uuid.UUID `json:"provider_id"`
	SlotDurationMinutes  int       `json:"slot_duration_minutes"`
	BufferMinutes        int       `json:"buffer_minutes"`
	MaxDailyAppointments int       `json:"max_daily_appointments"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:               a.ID,
		LinkID:           a.LinkID,
		ProviderID:       a.ProviderID,
		PatientID:        a.PatientID,
		ScheduledAt:      a.ScheduledAt,
		DurationMinutes:  a.Duration,
		EndsAt:           a.EndsAt,
		Status:           string(a.Status),
		IsOnline:         a.IsOnline,
		ClinicalRecordID: a.ClinicalRecordID,
		Notes:            a.Notes,
		BookedBy:         a.BookedBy,
		CancelledBy:      a.CancelledBy,
		CancelReason:     a.CancelReason,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func toWindowResponses(ws []availability.Window) []WindowResponse {
	out := make([]WindowResponse, 0, len(ws))
	for _, w := range ws {
		out = append(out, WindowResponse{
			ID:        w.ID,
			DayOfWeek: int(w.DayOfWeek),
			Start:     w.Start.String(),
			End:       w.End.String(),
			Location:  w.Location,
			IsActive:  w.IsActive,
		})
	}
	return out
}

func toBlockedDateResponse(b availability.BlockedDate) BlockedDateResponse {
	return BlockedDateResponse{Date: b.Date.Format(dateLayout), Reason: b.Reason}
}
