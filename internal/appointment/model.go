package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusBooked    Status = "booked"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Active statuses count against the per-slot uniqueness constraints.
func (s Status) Active() bool {
	return s == StatusBooked || s == StatusConfirmed
}

func (s Status) Valid() bool {
	switch s {
	case StatusBooked, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// transitions is the explicit state machine for direct status writes. A
// completed appointment cannot go back to booked; reschedule is the only
// path back to booked and it requires an active appointment.
var transitions = map[Status]map[Status]bool{
	StatusBooked: {
		StatusConfirmed: true,
		StatusCompleted: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusCompleted: true,
		StatusCancelled: true,
	},
}

// CanTransition reports whether a direct status write is permitted.
// Cancelled and completed are terminal.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

type User struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment pins one patient to one (doctor, date, time) slot. Date is
// always truncated to UTC midnight; Time is an HH:mm wall-clock string.
type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	Time      string
	Duration  int
	Status    Status
	Reason    *string
	Notes     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
