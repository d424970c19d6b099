package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careclinic/slot-reservation-engine/internal/appointment"
	"github.com/careclinic/slot-reservation-engine/internal/metrics"
)

const defaultMaxAttempts = 3

// UserDirectory resolves participants to their contact details.
// appointment.Repository satisfies it.
type UserDirectory interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*appointment.User, error)
}

// Sender delivers one notification over its channel. Actual email/SMS
// transports live outside this system; the default sender only logs.
type Sender interface {
	Send(ctx context.Context, n *Notification) error
}

// LogSender is the delivery stub used until a real transport is wired.
type LogSender struct {
	Log zerolog.Logger
}

func (s LogSender) Send(_ context.Context, n *Notification) error {
	s.Log.Info().
		Stringer("notification_id", n.ID).
		Str("channel", string(n.Channel)).
		Str("kind", string(n.Kind)).
		Msg("notification dispatched")
	return nil
}

// Service fans appointment events out into outbox rows and drains them.
type Service struct {
	repo   Repository
	users  UserDirectory
	sender Sender
	log    zerolog.Logger
	batch  int
	now    func() time.Time
}

func NewService(repo Repository, users UserDirectory, sender Sender, batch int, log zerolog.Logger) *Service {
	if batch <= 0 {
		batch = 20
	}
	return &Service{
		repo:   repo,
		users:  users,
		sender: sender,
		log:    log.With().Str("component", "notification").Logger(),
		batch:  batch,
		now:    time.Now,
	}
}

// WithClock replaces the time source, for deterministic tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// BookingCommitted enqueues booking notifications for both participants.
func (s *Service) BookingCommitted(ctx context.Context, appt *appointment.Appointment) error {
	return s.enqueue(ctx, appt, KindBooking)
}

// CancellationCommitted enqueues cancellation notifications.
func (s *Service) CancellationCommitted(ctx context.Context, appt *appointment.Appointment) error {
	return s.enqueue(ctx, appt, KindCancellation)
}

func (s *Service) enqueue(ctx context.Context, appt *appointment.Appointment, kind Kind) error {
	now := s.now()
	var rows []Notification

	// Patients get email and SMS; doctors email only. Channels without a
	// recorded address are skipped silently.
	participants := []struct {
		id  uuid.UUID
		sms bool
	}{
		{id: appt.PatientID, sms: true},
		{id: appt.DoctorID, sms: false},
	}

	for _, p := range participants {
		user, err := s.users.GetUserByID(ctx, p.id)
		if err != nil {
			return fmt.Errorf("resolve participant %s: %w", p.id, err)
		}

		message := fmt.Sprintf(
			"Hello %s,\n\nYour appointment on %s at %s has a new status: %s.\n\nThank you.",
			user.Name, appt.Date.Format("2006-01-02"), appt.Time, kind,
		)

		if user.Email != nil {
			subject := fmt.Sprintf("Appointment %s", kind)
			rows = append(rows, Notification{
				ID:            uuid.New(),
				UserID:        user.ID,
				AppointmentID: appt.ID,
				Channel:       ChannelEmail,
				Kind:          kind,
				MaxAttempts:   defaultMaxAttempts,
				Subject:       &subject,
				Message:       message,
				ScheduledFor:  now,
			})
		}
		if p.sms && user.Phone != nil {
			rows = append(rows, Notification{
				ID:            uuid.New(),
				UserID:        user.ID,
				AppointmentID: appt.ID,
				Channel:       ChannelSMS,
				Kind:          kind,
				MaxAttempts:   defaultMaxAttempts,
				Message:       fmt.Sprintf("Appointment %s: %s %s", kind, appt.Date.Format("2006-01-02"), appt.Time),
				ScheduledFor:  now,
			})
		}
	}

	return s.repo.InsertBatch(ctx, rows)
}

// Sweep drains one batch of due notifications. Intended to run on the
// worker's ticker; a single delivery failure never aborts the sweep.
func (s *Service) Sweep(ctx context.Context) error {
	due, err := s.repo.FindDue(ctx, s.now(), s.batch)
	if err != nil {
		return fmt.Errorf("find due notifications: %w", err)
	}

	for i := range due {
		n := &due[i]
		if err := s.sender.Send(ctx, n); err != nil {
			s.log.Warn().Err(err).Stringer("notification_id", n.ID).Msg("delivery failed")
			if markErr := s.repo.MarkFailed(ctx, n, err); markErr != nil {
				s.log.Error().Err(markErr).Stringer("notification_id", n.ID).Msg("mark failed")
			}
			metrics.IncNotificationProcessed("failed")
			continue
		}
		if err := s.repo.MarkSent(ctx, n, s.now()); err != nil {
			s.log.Error().Err(err).Stringer("notification_id", n.ID).Msg("mark sent")
			continue
		}
		metrics.IncNotificationProcessed("sent")
	}

	return nil
}

var _ appointment.Notifier = (*Service)(nil)
