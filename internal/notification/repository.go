package notification

import (
	"context"
	"time"
)

// Repository persists the outbox.
type Repository interface {
	InsertBatch(ctx context.Context, notifications []Notification) error

	// FindDue returns pending notifications scheduled at or before now,
	// oldest first, capped at limit.
	FindDue(ctx context.Context, now time.Time, limit int) ([]Notification, error)

	MarkSent(ctx context.Context, n *Notification, sentAt time.Time) error

	// MarkFailed increments the attempt count and flips the row to failed
	// once max attempts are exhausted; until then it stays pending for
	// the next sweep.
	MarkFailed(ctx context.Context, n *Notification, cause error) error
}
