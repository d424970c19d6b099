package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const notificationColumns = `id, user_id, appointment_id, channel, kind, status, attempt_count, max_attempts, subject, message, error, scheduled_for, sent_at, created_at, updated_at`

func (r *PgRepository) InsertBatch(ctx context.Context, notifications []Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, n := range notifications {
		batch.Queue(`
			INSERT INTO notifications (id, user_id, appointment_id, channel, kind, status, attempt_count, max_attempts, subject, message, scheduled_for, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 'pending', 0, $6, $7, $8, $9, now(), now())
		`, n.ID, n.UserID, n.AppointmentID, n.Channel, n.Kind, n.MaxAttempts, n.Subject, n.Message, n.ScheduledFor)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range notifications {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	return nil
}

func (r *PgRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE status = 'pending'
		  AND scheduled_for <= $1
		ORDER BY scheduled_for
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []Notification
	for rows.Next() {
		var n Notification
		err := rows.Scan(
			&n.ID, &n.UserID, &n.AppointmentID, &n.Channel, &n.Kind, &n.Status,
			&n.AttemptCount, &n.MaxAttempts, &n.Subject, &n.Message, &n.Error,
			&n.ScheduledFor, &n.SentAt, &n.CreatedAt, &n.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		due = append(due, n)
	}
	return due, rows.Err()
}

func (r *PgRepository) MarkSent(ctx context.Context, n *Notification, sentAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET status = 'sent',
		    attempt_count = attempt_count + 1,
		    sent_at = $2,
		    error = NULL,
		    updated_at = now()
		WHERE id = $1
	`, n.ID, sentAt)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	n.Status = StatusSent
	n.AttemptCount++
	n.SentAt = &sentAt
	return nil
}

func (r *PgRepository) MarkFailed(ctx context.Context, n *Notification, cause error) error {
	msg := cause.Error()
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET attempt_count = attempt_count + 1,
		    status = CASE WHEN attempt_count + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
		    error = $2,
		    updated_at = now()
		WHERE id = $1
	`, n.ID, msg)
	if err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	n.AttemptCount++
	n.Error = &msg
	if n.AttemptCount >= n.MaxAttempts {
		n.Status = StatusFailed
	}
	return nil
}

var _ Repository = (*PgRepository)(nil)
