package appointment

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestTranslateConstraint(t *testing.T) {
	doctorRace := &pgconn.PgError{Code: "23505", ConstraintName: "uq_appointments_doctor_slot_active"}
	patientRace := &pgconn.PgError{Code: "23505", ConstraintName: "uq_appointments_patient_slot_active"}
	otherUnique := &pgconn.PgError{Code: "23505", ConstraintName: "users_pkey"}
	notNull := &pgconn.PgError{Code: "23502", ConstraintName: "uq_appointments_doctor_slot_active"}

	assert.ErrorIs(t, translateConstraint(doctorRace), ErrSlotTaken)
	assert.ErrorIs(t, translateConstraint(patientRace), ErrPatientConflict)

	// Unrelated constraint violations pass through untouched.
	assert.Equal(t, error(otherUnique), translateConstraint(otherUnique))
	assert.Equal(t, error(notNull), translateConstraint(notNull))

	// Wrapped errors still translate.
	wrapped := fmt.Errorf("insert appointment: %w", doctorRace)
	assert.ErrorIs(t, translateConstraint(wrapped), ErrSlotTaken)

	plain := errors.New("connection reset")
	assert.Equal(t, plain, translateConstraint(plain))
}
