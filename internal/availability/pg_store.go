package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func scanDay(row pgx.Row) (*Day, error) {
	var d Day
	var slotsJSON []byte

	err := row.Scan(&d.ID, &d.DoctorID, &d.Date, &slotsJSON, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDayNotFound
		}
		return nil, err
	}

	if len(slotsJSON) > 0 {
		if err := json.Unmarshal(slotsJSON, &d.Slots); err != nil {
			return nil, fmt.Errorf("decode time slots: %w", err)
		}
	}
	d.Date = d.Date.UTC()
	return &d, nil
}

func (s *PgStore) GetDay(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Day, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, doctor_id, date, time_slots, created_at, updated_at
		FROM availability_days
		WHERE doctor_id = $1 AND date = $2
	`, doctorID, date)
	return scanDay(row)
}

func (s *PgStore) FindException(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string) (*SlotException, error) {
	day, err := s.GetDay(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	for i := range day.Slots {
		if day.Slots[i].StartTime == startTime {
			return &day.Slots[i], nil
		}
	}
	return nil, nil
}

func (s *PgStore) UpsertExceptions(ctx context.Context, doctorID uuid.UUID, date time.Time, incoming []SlotException) (*Day, error) {
	var day *Day

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		current, err := lockDay(ctx, tx, doctorID, date, true)
		if err != nil {
			return err
		}

		for _, in := range incoming {
			merged := false
			for i := range current.Slots {
				if current.Slots[i].StartTime == in.StartTime && current.Slots[i].EndTime == in.EndTime {
					current.Slots[i].Status = in.Status
					if in.Reason != nil {
						current.Slots[i].Reason = in.Reason
					}
					merged = true
					break
				}
			}
			if !merged {
				current.Slots = append(current.Slots, in)
			}
		}

		day, err = saveSlots(ctx, tx, current)
		return err
	})
	if err != nil {
		return nil, err
	}
	return day, nil
}

func (s *PgStore) ReleaseSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		current, err := lockDay(ctx, tx, doctorID, date, false)
		if err != nil {
			if errors.Is(err, ErrDayNotFound) {
				// The slot was never an exception record.
				return nil
			}
			return err
		}

		changed := false
		for i := range current.Slots {
			if current.Slots[i].StartTime == startTime {
				current.Slots[i].Status = ExceptionAvailable
				current.Slots[i].Reason = nil
				changed = true
			}
		}
		if !changed {
			return nil
		}

		_, err = saveSlots(ctx, tx, current)
		return err
	})
}

func (s *PgStore) IsBlocked(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string) (bool, error) {
	exc, err := s.FindException(ctx, doctorID, date, startTime)
	if err != nil {
		if errors.Is(err, ErrDayNotFound) {
			return false, nil
		}
		return false, err
	}
	return exc != nil && exc.Status == ExceptionBlocked, nil
}

func (s *PgStore) BlockedTimes(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	day, err := s.GetDay(ctx, doctorID, date)
	if err != nil {
		if errors.Is(err, ErrDayNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var times []string
	for _, slot := range day.Slots {
		if slot.Status == ExceptionBlocked {
			times = append(times, slot.StartTime)
		}
	}
	return times, nil
}

func (s *PgStore) GetProfile(ctx context.Context, doctorID uuid.UUID) (*DoctorProfile, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, slot_duration, consultation_fee, working_hours, created_at, updated_at
		FROM doctor_profiles
		WHERE user_id = $1
	`, doctorID)

	var p DoctorProfile
	var hoursJSON []byte
	err := row.Scan(&p.UserID, &p.SlotDuration, &p.ConsultationFee, &hoursJSON, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	if len(hoursJSON) > 0 {
		if err := json.Unmarshal(hoursJSON, &p.WorkingHours); err != nil {
			return nil, fmt.Errorf("decode working hours: %w", err)
		}
	}
	return &p, nil
}

func (s *PgStore) UpsertProfile(ctx context.Context, doctorID uuid.UUID, hours []WorkingRange, slotDuration *int, consultationFee *float64) (*DoctorProfile, error) {
	hoursJSON, err := json.Marshal(hours)
	if err != nil {
		return nil, fmt.Errorf("encode working hours: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO doctor_profiles (user_id, working_hours, slot_duration, consultation_fee, created_at, updated_at)
		VALUES ($1, $2, COALESCE($3, 30), $4, now(), now())
		ON CONFLICT (user_id) DO UPDATE
		SET working_hours = EXCLUDED.working_hours,
		    slot_duration = COALESCE($3, doctor_profiles.slot_duration),
		    consultation_fee = COALESCE($4, doctor_profiles.consultation_fee),
		    updated_at = now()
		RETURNING user_id, slot_duration, consultation_fee, working_hours, created_at, updated_at
	`, doctorID, hoursJSON, slotDuration, consultationFee)

	var p DoctorProfile
	var outJSON []byte
	if err := row.Scan(&p.UserID, &p.SlotDuration, &p.ConsultationFee, &outJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if len(outJSON) > 0 {
		if err := json.Unmarshal(outJSON, &p.WorkingHours); err != nil {
			return nil, fmt.Errorf("decode working hours: %w", err)
		}
	}
	return &p, nil
}

// lockDay loads a day row FOR UPDATE, optionally creating an empty one
// first so the lazy-creation path shares the same code.
func lockDay(ctx context.Context, tx pgx.Tx, doctorID uuid.UUID, date time.Time, create bool) (*Day, error) {
	if create {
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_days (id, doctor_id, date, time_slots, created_at, updated_at)
			VALUES ($1, $2, $3, '[]'::jsonb, now(), now())
			ON CONFLICT (doctor_id, date) DO NOTHING
		`, uuid.New(), doctorID, date)
		if err != nil {
			return nil, fmt.Errorf("ensure availability day: %w", err)
		}
	}

	row := tx.QueryRow(ctx, `
		SELECT id, doctor_id, date, time_slots, created_at, updated_at
		FROM availability_days
		WHERE doctor_id = $1 AND date = $2
		FOR UPDATE
	`, doctorID, date)
	return scanDay(row)
}

func saveSlots(ctx context.Context, tx pgx.Tx, day *Day) (*Day, error) {
	slots := day.Slots
	if slots == nil {
		// Keep the column a JSON array; jsonb_array_elements chokes on null.
		slots = []SlotException{}
	}
	slotsJSON, err := json.Marshal(slots)
	if err != nil {
		return nil, fmt.Errorf("encode time slots: %w", err)
	}

	row := tx.QueryRow(ctx, `
		UPDATE availability_days
		SET time_slots = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, doctor_id, date, time_slots, created_at, updated_at
	`, day.ID, slotsJSON)
	return scanDay(row)
}

var _ Store = (*PgStore)(nil)
