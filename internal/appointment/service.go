package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careclinic/slot-reservation-engine/internal/metrics"
	redisclient "github.com/careclinic/slot-reservation-engine/internal/redis"
	"github.com/careclinic/slot-reservation-engine/internal/timegrid"
)

var (
	ErrInvalidDoctor     = errors.New("referenced user is not a doctor")
	ErrSlotBlocked       = errors.New("this time slot has been blocked by the doctor")
	ErrNotAuthorized     = errors.New("not authorized for this appointment")
	ErrAlreadyCancelled  = errors.New("appointment is already cancelled")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Notifier enqueues booking side effects after a commit. Failures must
// never roll back the appointment; the service logs and continues.
type Notifier interface {
	BookingCommitted(ctx context.Context, appt *Appointment) error
	CancellationCommitted(ctx context.Context, appt *Appointment) error
}

// SlotReleaser reverts a blocked-by-booking availability exception back
// to available when its appointment is cancelled.
type SlotReleaser interface {
	ReleaseSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string) error
}

// Service is the slot reservation engine. Book and Reschedule serialize
// per slot with a redis lock and run their validate-then-commit sequence
// in one transaction; the partial unique indexes are the last line of
// defense when two transactions race anyway.
type Service struct {
	repo     Repository
	locker   redisclient.Locker
	releaser SlotReleaser
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, releaser SlotReleaser, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		releaser: releaser,
		notifier: notifier,
		log:      log.With().Str("component", "reservation").Logger(),
		now:      time.Now,
	}
}

// WithClock replaces the time source, for deterministic tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type BookParams struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	Time      string
	Reason    *string
	Duration  int
}

// Book reserves a (doctor, date, time) slot exclusively for a patient.
func (s *Service) Book(ctx context.Context, p BookParams) (*Appointment, error) {
	if _, err := timegrid.MinutesOf(p.Time); err != nil {
		return nil, err
	}
	if p.Duration <= 0 {
		p.Duration = 30
	}
	date := timegrid.Truncate(p.Date)

	if err := s.ensureDoctor(ctx, p.DoctorID); err != nil {
		return nil, err
	}

	appt := &Appointment{
		PatientID: p.PatientID,
		DoctorID:  p.DoctorID,
		Date:      date,
		Time:      p.Time,
		Duration:  p.Duration,
		Status:    StatusBooked,
		Reason:    p.Reason,
	}

	err := s.locker.WithLock(ctx, slotLockKey(p.DoctorID, date, p.Time), func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(st Store) error {
			if err := s.checkSlotFree(lockCtx, st, p.DoctorID, p.PatientID, date, p.Time, nil); err != nil {
				return err
			}
			return st.Create(lockCtx, appt)
		})
	})
	if err != nil {
		s.countConflict(err)
		return nil, err
	}

	metrics.IncBookingCreated()
	s.notify(ctx, appt, "booking")

	return appt, nil
}

// Reschedule moves an active appointment to a new (date, time) slot and
// resets it to booked. The appointment's own slot is excluded from the
// conflict checks so rebooking the unchanged slot succeeds.
func (s *Service) Reschedule(ctx context.Context, id, requesterID uuid.UUID, newDate time.Time, newTime string) (*Appointment, error) {
	if _, err := timegrid.MinutesOf(newTime); err != nil {
		return nil, err
	}
	date := timegrid.Truncate(newDate)

	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(appt, requesterID); err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	err = s.locker.WithLock(ctx, slotLockKey(appt.DoctorID, date, newTime), func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(st Store) error {
			if err := s.checkSlotFree(lockCtx, st, appt.DoctorID, appt.PatientID, date, newTime, &appt.ID); err != nil {
				return err
			}
			appt.Date = date
			appt.Time = newTime
			appt.Status = StatusBooked
			return st.Save(lockCtx, appt)
		})
	})
	if err != nil {
		s.countConflict(err)
		return nil, err
	}

	s.notify(ctx, appt, "booking")

	return appt, nil
}

// Cancel marks an appointment cancelled. It is idempotent: cancelling an
// already-cancelled appointment returns it unchanged. releaseSlot=false
// is reserved for the emergency cascade, where the slot must stay
// blocked instead of reverting to available.
func (s *Service) Cancel(ctx context.Context, id, requesterID uuid.UUID, reason *string, releaseSlot bool) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(appt, requesterID); err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled {
		return appt, nil
	}

	appt.Status = StatusCancelled
	if reason != nil {
		appt.Notes = reason
	}
	if err := s.repo.Save(ctx, appt); err != nil {
		return nil, fmt.Errorf("save cancellation: %w", err)
	}

	if releaseSlot {
		if err := s.releaser.ReleaseSlot(ctx, appt.DoctorID, appt.Date, appt.Time); err != nil {
			return nil, fmt.Errorf("release slot: %w", err)
		}
	}

	metrics.IncAppointmentCancelled()
	s.notify(ctx, appt, "cancellation")

	return appt, nil
}

// UpdateStatus performs a direct status write, validated against the
// transition table.
func (s *Service) UpdateStatus(ctx context.Context, id, requesterID uuid.UUID, status Status) (*Appointment, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTransition, status)
	}

	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(appt, requesterID); err != nil {
		return nil, err
	}
	if status == StatusCancelled {
		return s.Cancel(ctx, id, requesterID, nil, true)
	}
	if !CanTransition(appt.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, status)
	}

	appt.Status = status
	if err := s.repo.Save(ctx, appt); err != nil {
		return nil, fmt.Errorf("save status: %w", err)
	}
	return appt, nil
}

// GetForUser loads an appointment scoped to one of its participants.
// Non-participants get a not-found, not a forbidden, so appointment ids
// are not probeable.
func (s *Service) GetForUser(ctx context.Context, id, userID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != userID && appt.DoctorID != userID {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, role string) ([]Appointment, error) {
	return s.repo.ListByUser(ctx, userID, role)
}

// ActiveTimes lists booked/confirmed start times for a doctor's day.
func (s *Service) ActiveTimes(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	return s.repo.ActiveTimes(ctx, doctorID, timegrid.Truncate(date))
}

// ActiveForSlots returns the active appointments occupying any of the
// given slot start times. The emergency cascade feeds these into Cancel.
func (s *Service) ActiveForSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, starts []string) ([]Appointment, error) {
	return s.repo.FindActiveBySlots(ctx, doctorID, timegrid.Truncate(date), starts)
}

func (s *Service) ensureDoctor(ctx context.Context, doctorID uuid.UUID) error {
	user, err := s.repo.GetUserByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidDoctor
		}
		return fmt.Errorf("load doctor: %w", err)
	}
	if user.Role != "doctor" {
		return ErrInvalidDoctor
	}
	return nil
}

// checkSlotFree runs the three reservation pre-checks against st, which
// is transaction-bound when called from Book or Reschedule.
func (s *Service) checkSlotFree(ctx context.Context, st Store, doctorID, patientID uuid.UUID, date time.Time, slotTime string, excludeID *uuid.UUID) error {
	blocked, err := st.SlotBlocked(ctx, doctorID, date, slotTime)
	if err != nil {
		return fmt.Errorf("check blocked slot: %w", err)
	}
	if blocked {
		return ErrSlotBlocked
	}

	if _, err := st.FindActiveConflict(ctx, doctorID, date, slotTime, excludeID); err == nil {
		return ErrSlotTaken
	} else if !errors.Is(err, ErrAppointmentNotFound) {
		return fmt.Errorf("check doctor conflict: %w", err)
	}

	if _, err := st.FindPatientActiveConflict(ctx, patientID, date, slotTime, excludeID); err == nil {
		return ErrPatientConflict
	} else if !errors.Is(err, ErrAppointmentNotFound) {
		return fmt.Errorf("check patient conflict: %w", err)
	}

	return nil
}

func (s *Service) notify(ctx context.Context, appt *Appointment, kind string) {
	if s.notifier == nil {
		return
	}

	var err error
	switch kind {
	case "cancellation":
		err = s.notifier.CancellationCommitted(ctx, appt)
	default:
		err = s.notifier.BookingCommitted(ctx, appt)
	}
	if err != nil {
		// The appointment is already committed; notification delivery is
		// best effort.
		s.log.Warn().Err(err).
			Stringer("appointment_id", appt.ID).
			Str("kind", kind).
			Msg("notification enqueue failed")
	}
}

func (s *Service) countConflict(err error) {
	switch {
	case errors.Is(err, ErrSlotTaken):
		metrics.IncBookingConflict("slot_taken")
	case errors.Is(err, ErrPatientConflict):
		metrics.IncBookingConflict("patient_conflict")
	case errors.Is(err, ErrSlotBlocked):
		metrics.IncBookingConflict("slot_blocked")
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		metrics.IncBookingConflict("lock_contended")
	}
}

func authorize(appt *Appointment, requesterID uuid.UUID) error {
	if appt.PatientID != requesterID && appt.DoctorID != requesterID {
		return ErrNotAuthorized
	}
	return nil
}

func slotLockKey(doctorID uuid.UUID, date time.Time, slotTime string) string {
	return fmt.Sprintf("lock:slot:%s:%s:%s", doctorID, date.Format("2006-01-02"), slotTime)
}
