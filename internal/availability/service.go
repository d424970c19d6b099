package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careclinic/slot-reservation-engine/internal/appointment"
	"github.com/careclinic/slot-reservation-engine/internal/metrics"
	"github.com/careclinic/slot-reservation-engine/internal/timegrid"
)

// DefaultEmergencyReason is applied when an emergency block supplies no
// reason of its own.
const DefaultEmergencyReason = "Doctor emergency"

var (
	ErrInvalidSlotRange    = errors.New("slot startTime must be before endTime")
	ErrInvalidDayOfWeek    = errors.New("dayOfWeek must be between 0 and 6")
	ErrInvalidSlotDuration = errors.New("slotDuration must be at least 5 minutes")
	ErrNoSlots             = errors.New("at least one slot is required")
)

// Engine is the slice of the reservation engine the cascade and the
// query service consume.
type Engine interface {
	Cancel(ctx context.Context, id, requesterID uuid.UUID, reason *string, releaseSlot bool) (*appointment.Appointment, error)
	ActiveForSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, starts []string) ([]appointment.Appointment, error)
	ActiveTimes(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error)
}

type Service struct {
	store  Store
	engine Engine
	log    zerolog.Logger
}

func NewService(store Store, engine Engine, log zerolog.Logger) *Service {
	return &Service{
		store:  store,
		engine: engine,
		log:    log.With().Str("component", "availability").Logger(),
	}
}

// SlotInput is one (startTime, endTime) pair in a block request.
type SlotInput struct {
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	Reason    *string `json:"reason,omitempty"`
}

// CascadeFailure records one appointment the emergency cascade could not
// cancel. The block itself is never rolled back.
type CascadeFailure struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Error         string    `json:"error"`
}

type CascadeResult struct {
	Day            *Day             `json:"availability"`
	CancelledCount int              `json:"cancelled_appointments"`
	Failures       []CascadeFailure `json:"failures,omitempty"`
}

// SetWorkingHours upserts the doctor's weekly template.
func (s *Service) SetWorkingHours(ctx context.Context, doctorID uuid.UUID, hours []WorkingRange, slotDuration *int, consultationFee *float64) (*DoctorProfile, error) {
	for _, r := range hours {
		if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
			return nil, fmt.Errorf("%w: got %d", ErrInvalidDayOfWeek, r.DayOfWeek)
		}
		if err := validateRange(r.StartTime, r.EndTime); err != nil {
			return nil, err
		}
	}
	if slotDuration != nil && *slotDuration < 5 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSlotDuration, *slotDuration)
	}

	return s.store.UpsertProfile(ctx, doctorID, hours, slotDuration, consultationFee)
}

// BlockSlots marks the given slots blocked for one date, creating the
// availability day if needed.
func (s *Service) BlockSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, slots []SlotInput) (*Day, error) {
	exceptions, err := toBlockedExceptions(slots, nil)
	if err != nil {
		return nil, err
	}
	return s.store.UpsertExceptions(ctx, doctorID, timegrid.Truncate(date), exceptions)
}

// EmergencyBlock blocks the given slots and cancels every active
// appointment occupying them. Blocking happens first: if cancellation
// partially fails, the slots are already closed to new bookings.
// Cancellations are best effort; failures are collected on the result
// rather than aborting the cascade.
func (s *Service) EmergencyBlock(ctx context.Context, doctorID uuid.UUID, date time.Time, slots []SlotInput, reason *string) (*CascadeResult, error) {
	if len(slots) == 0 {
		return nil, ErrNoSlots
	}

	cascadeReason := DefaultEmergencyReason
	if reason != nil && *reason != "" {
		cascadeReason = *reason
	}

	exceptions, err := toBlockedExceptions(slots, &cascadeReason)
	if err != nil {
		return nil, err
	}

	day := timegrid.Truncate(date)
	blocked, err := s.store.UpsertExceptions(ctx, doctorID, day, exceptions)
	if err != nil {
		return nil, fmt.Errorf("block slots: %w", err)
	}

	starts := make([]string, len(slots))
	for i, slot := range slots {
		starts[i] = slot.StartTime
	}

	active, err := s.engine.ActiveForSlots(ctx, doctorID, day, starts)
	if err != nil {
		return nil, fmt.Errorf("find occupying appointments: %w", err)
	}

	result := &CascadeResult{Day: blocked}
	for _, appt := range active {
		// releaseSlot=false keeps the slot blocked instead of bouncing it
		// back to available right after the cancellation.
		if _, err := s.engine.Cancel(ctx, appt.ID, doctorID, &cascadeReason, false); err != nil {
			s.log.Error().Err(err).
				Stringer("appointment_id", appt.ID).
				Stringer("doctor_id", doctorID).
				Msg("cascade cancellation failed")
			result.Failures = append(result.Failures, CascadeFailure{
				AppointmentID: appt.ID,
				Error:         err.Error(),
			})
			continue
		}
		result.CancelledCount++
		metrics.IncCascadeCancelled()
	}

	return result, nil
}

// AvailableSlots computes the bookable slots for one doctor and date:
// the working-hours grid minus booked start times minus blocked start
// times, in grid order. No profile or no ranges for that weekday yields
// an empty list, not an error.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]timegrid.Slot, error) {
	profile, err := s.store.GetProfile(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}

	day := timegrid.Truncate(date)
	weekday := int(day.Weekday())

	var ranges []timegrid.Range
	for _, r := range profile.WorkingHours {
		if r.DayOfWeek == weekday {
			ranges = append(ranges, timegrid.Range{StartTime: r.StartTime, EndTime: r.EndTime})
		}
	}
	if len(ranges) == 0 {
		return nil, nil
	}

	grid, err := timegrid.GenerateSlots(ranges, profile.SlotDuration)
	if err != nil {
		return nil, fmt.Errorf("generate slot grid: %w", err)
	}

	bookedTimes, err := s.engine.ActiveTimes(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("load booked times: %w", err)
	}
	blockedTimes, err := s.store.BlockedTimes(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("load blocked times: %w", err)
	}

	taken := make(map[string]bool, len(bookedTimes)+len(blockedTimes))
	for _, t := range bookedTimes {
		taken[t] = true
	}
	for _, t := range blockedTimes {
		taken[t] = true
	}

	var free []timegrid.Slot
	for _, slot := range grid {
		if !taken[slot.StartTime] {
			free = append(free, slot)
		}
	}
	return free, nil
}

// IsBlocked reports whether a slot has an active blocked exception.
func (s *Service) IsBlocked(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string) (bool, error) {
	return s.store.IsBlocked(ctx, doctorID, timegrid.Truncate(date), startTime)
}

// Profile exposes the working-hours template.
func (s *Service) Profile(ctx context.Context, doctorID uuid.UUID) (*DoctorProfile, error) {
	return s.store.GetProfile(ctx, doctorID)
}

func toBlockedExceptions(slots []SlotInput, fallbackReason *string) ([]SlotException, error) {
	exceptions := make([]SlotException, 0, len(slots))
	for _, slot := range slots {
		if err := validateRange(slot.StartTime, slot.EndTime); err != nil {
			return nil, err
		}
		reason := slot.Reason
		if reason == nil {
			reason = fallbackReason
		}
		exceptions = append(exceptions, SlotException{
			StartTime: slot.StartTime,
			EndTime:   slot.EndTime,
			Status:    ExceptionBlocked,
			Reason:    reason,
		})
	}
	return exceptions, nil
}

func validateRange(startTime, endTime string) error {
	start, err := timegrid.MinutesOf(startTime)
	if err != nil {
		return err
	}
	end, err := timegrid.MinutesOf(endTime)
	if err != nil {
		return err
	}
	if start >= end {
		return fmt.Errorf("%w: %s-%s", ErrInvalidSlotRange, startTime, endTime)
	}
	return nil
}
