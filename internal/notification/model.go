package notification

import (
	"time"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

type Kind string

const (
	KindBooking      Kind = "booking"
	KindCancellation Kind = "cancellation"
	KindReminder     Kind = "reminder"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Notification is one outbox row. Rows are enqueued after an appointment
// commit and drained by the sweep worker; delivery never feeds back into
// the reservation engine.
type Notification struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	AppointmentID uuid.UUID
	Channel       Channel
	Kind          Kind
	Status        Status
	AttemptCount  int
	MaxAttempts   int
	Subject       *string
	Message       string
	Error         *string
	ScheduledFor  time.Time
	SentAt        *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
