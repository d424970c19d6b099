package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// Constraint translations. The partial unique indexes over active
	// statuses are the authoritative guarantee; the store maps their
	// violations onto the same errors the pre-checks produce.
	ErrSlotTaken       = errors.New("appointment slot already booked")
	ErrPatientConflict = errors.New("patient already has an appointment at this time")
)

// Store is the query surface the reservation engine runs against. Inside
// InTx every call sees the transaction's snapshot.
type Store interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListByUser(ctx context.Context, userID uuid.UUID, role string) ([]Appointment, error)

	// Conflict checks. excludeID skips one appointment so a reschedule
	// does not conflict with itself.
	FindActiveConflict(ctx context.Context, doctorID uuid.UUID, date time.Time, slotTime string, excludeID *uuid.UUID) (*Appointment, error)
	FindPatientActiveConflict(ctx context.Context, patientID uuid.UUID, date time.Time, slotTime string, excludeID *uuid.UUID) (*Appointment, error)

	// SlotBlocked reads the availability exception state for one slot.
	SlotBlocked(ctx context.Context, doctorID uuid.UUID, date time.Time, slotTime string) (bool, error)

	// ActiveTimes lists start times of active appointments on a day.
	ActiveTimes(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error)

	// FindActiveBySlots returns active appointments whose time is in starts.
	FindActiveBySlots(ctx context.Context, doctorID uuid.UUID, date time.Time, starts []string) ([]Appointment, error)

	Create(ctx context.Context, appt *Appointment) error
	Save(ctx context.Context, appt *Appointment) error
}

// Repository is a Store that can also run a function inside a single
// database transaction. The validate-then-commit sequence of Book and
// Reschedule must go through InTx.
type Repository interface {
	Store
	InTx(ctx context.Context, fn func(Store) error) error
}
