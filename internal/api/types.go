package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/careclinic/slot-reservation-engine/internal/appointment"
	"github.com/careclinic/slot-reservation-engine/internal/availability"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type BookAppointmentRequest struct {
	DoctorID string  `json:"doctor_id"`
	Date     string  `json:"date"`
	Time     string  `json:"time"`
	Duration int     `json:"duration,omitempty"`
	Reason   *string `json:"reason,omitempty"`
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type CancelRequest struct {
	Reason *string `json:"reason,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type WorkingHoursRequest struct {
	WorkingHours    []availability.WorkingRange `json:"working_hours"`
	SlotDuration    *int                        `json:"slot_duration,omitempty"`
	ConsultationFee *float64                    `json:"consultation_fee,omitempty"`
}

type BlockSlotsRequest struct {
	Date   string                   `json:"date"`
	Slots  []availability.SlotInput `json:"slots"`
	Reason *string                  `json:"reason,omitempty"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Duration  int       `json:"duration"`
	Status    string    `json:"status"`
	Reason    *string   `json:"reason,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		Date:      a.Date.Format("2006-01-02"),
		Time:      a.Time,
		Duration:  a.Duration,
		Status:    string(a.Status),
		Reason:    a.Reason,
		Notes:     a.Notes,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toAppointmentList(appts []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, len(appts))
	for i := range appts {
		out[i] = toAppointmentResponse(&appts[i])
	}
	return out
}
