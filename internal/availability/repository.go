package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDayNotFound     = errors.New("availability record not found")
	ErrProfileNotFound = errors.New("doctor profile not found")
)

// Store persists availability days and working-hours profiles.
type Store interface {
	GetDay(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Day, error)
	FindException(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string) (*SlotException, error)

	// UpsertExceptions merges incoming exceptions into the day's slot
	// list, matching by (startTime, endTime). A missing day record is
	// created. Idempotent under retry with identical input.
	UpsertExceptions(ctx context.Context, doctorID uuid.UUID, date time.Time, incoming []SlotException) (*Day, error)

	// ReleaseSlot flips the matching exception back to available and
	// clears its reason. No-op when no exception matches.
	ReleaseSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string) error

	IsBlocked(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string) (bool, error)
	BlockedTimes(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error)

	GetProfile(ctx context.Context, doctorID uuid.UUID) (*DoctorProfile, error)
	UpsertProfile(ctx context.Context, doctorID uuid.UUID, hours []WorkingRange, slotDuration *int, consultationFee *float64) (*DoctorProfile, error)
}
