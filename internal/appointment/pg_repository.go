package appointment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	doctorSlotIndex  = "uq_appointments_doctor_slot_active"
	patientSlotIndex = "uq_appointments_patient_slot_active"
)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	pool *pgxpool.Pool
	pgStore
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, pgStore: pgStore{q: pool}}
}

// InTx runs fn against a store bound to one transaction, so the
// validate-then-commit sequence sees a single consistent snapshot.
func (r *PgRepository) InTx(ctx context.Context, fn func(Store) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&pgStore{q: tx})
	})
}

type pgStore struct {
	q querier
}

const appointmentColumns = `id, patient_id, doctor_id, date, slot_time, duration, status, reason, notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.Date,
		&a.Time,
		&a.Duration,
		&a.Status,
		&a.Reason,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	a.Date = a.Date.UTC()
	return &a, nil
}

// translateConstraint maps violations of the active-status partial unique
// indexes onto the engine's conflict errors. Any transaction that races
// past the pre-checks and loses the constraint race surfaces exactly like
// a pre-check failure.
func translateConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch {
		case strings.Contains(pgErr.ConstraintName, doctorSlotIndex):
			return ErrSlotTaken
		case strings.Contains(pgErr.ConstraintName, patientSlotIndex):
			return ErrPatientConflict
		}
	}
	return err
}

func (s *pgStore) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.q.QueryRow(ctx, `
		SELECT id, name, email, phone, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)

	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *pgStore) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (s *pgStore) ListByUser(ctx context.Context, userID uuid.UUID, role string) ([]Appointment, error) {
	column := "patient_id"
	if role == "doctor" {
		column = "doctor_id"
	}

	rows, err := s.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE `+column+` = $1
		ORDER BY date, slot_time
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (s *pgStore) FindActiveConflict(ctx context.Context, doctorID uuid.UUID, date time.Time, slotTime string, excludeID *uuid.UUID) (*Appointment, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND date = $2
		  AND slot_time = $3
		  AND status IN ('booked', 'confirmed')
		  AND ($4::uuid IS NULL OR id <> $4)
		LIMIT 1
	`, doctorID, date, slotTime, excludeID)
	return scanAppointment(row)
}

func (s *pgStore) FindPatientActiveConflict(ctx context.Context, patientID uuid.UUID, date time.Time, slotTime string, excludeID *uuid.UUID) (*Appointment, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND date = $2
		  AND slot_time = $3
		  AND status IN ('booked', 'confirmed')
		  AND ($4::uuid IS NULL OR id <> $4)
		LIMIT 1
	`, patientID, date, slotTime, excludeID)
	return scanAppointment(row)
}

func (s *pgStore) SlotBlocked(ctx context.Context, doctorID uuid.UUID, date time.Time, slotTime string) (bool, error) {
	row := s.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM availability_days d,
			     jsonb_array_elements(d.time_slots) slot
			WHERE d.doctor_id = $1
			  AND d.date = $2
			  AND slot->>'startTime' = $3
			  AND slot->>'status' = 'blocked'
		)
	`, doctorID, date, slotTime)

	var blocked bool
	if err := row.Scan(&blocked); err != nil {
		return false, err
	}
	return blocked, nil
}

func (s *pgStore) ActiveTimes(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	rows, err := s.q.Query(ctx, `
		SELECT slot_time
		FROM appointments
		WHERE doctor_id = $1
		  AND date = $2
		  AND status IN ('booked', 'confirmed')
		ORDER BY slot_time
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

func (s *pgStore) FindActiveBySlots(ctx context.Context, doctorID uuid.UUID, date time.Time, starts []string) ([]Appointment, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND date = $2
		  AND slot_time = ANY($3)
		  AND status IN ('booked', 'confirmed')
		ORDER BY slot_time
	`, doctorID, date, starts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (s *pgStore) Create(ctx context.Context, appt *Appointment) error {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}

	row := s.q.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, date, slot_time, duration, status, reason, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING created_at, updated_at
	`, appt.ID, appt.PatientID, appt.DoctorID, appt.Date, appt.Time, appt.Duration, appt.Status, appt.Reason, appt.Notes)

	if err := row.Scan(&appt.CreatedAt, &appt.UpdatedAt); err != nil {
		return translateConstraint(err)
	}
	return nil
}

func (s *pgStore) Save(ctx context.Context, appt *Appointment) error {
	row := s.q.QueryRow(ctx, `
		UPDATE appointments
		SET date = $2,
		    slot_time = $3,
		    duration = $4,
		    status = $5,
		    reason = $6,
		    notes = $7,
		    updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, appt.ID, appt.Date, appt.Time, appt.Duration, appt.Status, appt.Reason, appt.Notes)

	if err := row.Scan(&appt.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAppointmentNotFound
		}
		return translateConstraint(err)
	}
	return nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

var _ Repository = (*PgRepository)(nil)
