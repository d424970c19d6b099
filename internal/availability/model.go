package availability

import (
	"time"

	"github.com/google/uuid"
)

type ExceptionStatus string

const (
	ExceptionAvailable ExceptionStatus = "available"
	ExceptionBlocked   ExceptionStatus = "blocked"
)

// SlotException overrides one grid slot for one date. Exceptions are
// keyed by (StartTime, EndTime) within their day: upserting the same
// bounds overwrites status and reason instead of duplicating.
type SlotException struct {
	StartTime string          `json:"startTime"`
	EndTime   string          `json:"endTime"`
	Status    ExceptionStatus `json:"status"`
	Reason    *string         `json:"reason,omitempty"`
}

// Day is the per-(doctor, date) availability record. Created lazily on
// the first block operation, never deleted.
type Day struct {
	ID        uuid.UUID       `json:"id"`
	DoctorID  uuid.UUID       `json:"doctor_id"`
	Date      time.Time       `json:"date"`
	Slots     []SlotException `json:"time_slots"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// WorkingRange is one recurring window in a doctor's weekly template.
type WorkingRange struct {
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// DoctorProfile holds the weekly working-hours template the slot grid is
// generated from. Read-only to the reservation engine.
type DoctorProfile struct {
	UserID          uuid.UUID      `json:"user_id"`
	SlotDuration    int            `json:"slot_duration"`
	ConsultationFee *float64       `json:"consultation_fee,omitempty"`
	WorkingHours    []WorkingRange `json:"working_hours"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
