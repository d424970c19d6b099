package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careclinic/slot-reservation-engine/internal/appointment"
	"github.com/careclinic/slot-reservation-engine/internal/availability"
	redisclient "github.com/careclinic/slot-reservation-engine/internal/redis"
)

// stubRepo serves a single doctor user and a single appointment. It is
// just enough repository for exercising the HTTP error mapping.
type stubRepo struct {
	doctorID uuid.UUID
	appt     *appointment.Appointment
	conflict bool
}

func (s *stubRepo) GetUserByID(_ context.Context, id uuid.UUID) (*appointment.User, error) {
	if id == s.doctorID {
		return &appointment.User{ID: id, Name: "Dr. Stub", Role: "doctor"}, nil
	}
	return nil, appointment.ErrUserNotFound
}

func (s *stubRepo) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	if s.appt != nil && s.appt.ID == id {
		cp := *s.appt
		return &cp, nil
	}
	return nil, appointment.ErrAppointmentNotFound
}

func (s *stubRepo) ListByUser(context.Context, uuid.UUID, string) ([]appointment.Appointment, error) {
	return nil, nil
}

func (s *stubRepo) FindActiveConflict(context.Context, uuid.UUID, time.Time, string, *uuid.UUID) (*appointment.Appointment, error) {
	if s.conflict {
		return s.appt, nil
	}
	return nil, appointment.ErrAppointmentNotFound
}

func (s *stubRepo) FindPatientActiveConflict(context.Context, uuid.UUID, time.Time, string, *uuid.UUID) (*appointment.Appointment, error) {
	return nil, appointment.ErrAppointmentNotFound
}

func (s *stubRepo) SlotBlocked(context.Context, uuid.UUID, time.Time, string) (bool, error) {
	return false, nil
}

func (s *stubRepo) ActiveTimes(context.Context, uuid.UUID, time.Time) ([]string, error) {
	return nil, nil
}

func (s *stubRepo) FindActiveBySlots(context.Context, uuid.UUID, time.Time, []string) ([]appointment.Appointment, error) {
	return nil, nil
}

func (s *stubRepo) Create(_ context.Context, appt *appointment.Appointment) error {
	appt.ID = uuid.New()
	cp := *appt
	s.appt = &cp
	return nil
}

func (s *stubRepo) Save(_ context.Context, appt *appointment.Appointment) error {
	cp := *appt
	s.appt = &cp
	return nil
}

func (s *stubRepo) InTx(_ context.Context, fn func(appointment.Store) error) error {
	return fn(s)
}

type noRelease struct{}

func (noRelease) ReleaseSlot(context.Context, uuid.UUID, time.Time, string) error { return nil }

func newTestRouter(repo *stubRepo) http.Handler {
	apptSvc := appointment.NewService(repo, redisclient.NoopLocker{}, noRelease{}, nil, zerolog.Nop())
	availSvc := availability.NewService(nil, apptSvc, zerolog.Nop())
	return NewRouter(RouterConfig{
		Appointments: apptSvc,
		Availability: availSvc,
		Log:          zerolog.Nop(),
		Env:          "test",
		Version:      "test",
	})
}

func doRequest(t *testing.T, router http.Handler, method, path, body string, ident *Identity) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if ident != nil {
		req.Header.Set("X-User-ID", ident.ID.String())
		req.Header.Set("X-User-Role", ident.Role)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestBookRequiresIdentity(t *testing.T) {
	router := newTestRouter(&stubRepo{doctorID: uuid.New()})

	rec := doRequest(t, router, http.MethodPost, "/appointments", `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBookHappyPath(t *testing.T) {
	repo := &stubRepo{doctorID: uuid.New()}
	router := newTestRouter(repo)
	patient := Identity{ID: uuid.New(), Role: "patient"}

	body := `{"doctor_id":"` + repo.doctorID.String() + `","date":"2026-09-14","time":"10:00"}`
	rec := doRequest(t, router, http.MethodPost, "/appointments", body, &patient)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"booked"`)
	assert.Contains(t, rec.Body.String(), `"date":"2026-09-14"`)
}

func TestBookConflictMapsTo409(t *testing.T) {
	repo := &stubRepo{doctorID: uuid.New(), conflict: true}
	repo.appt = &appointment.Appointment{ID: uuid.New(), Status: appointment.StatusBooked}
	router := newTestRouter(repo)
	patient := Identity{ID: uuid.New(), Role: "patient"}

	body := `{"doctor_id":"` + repo.doctorID.String() + `","date":"2026-09-14","time":"10:00"}`
	rec := doRequest(t, router, http.MethodPost, "/appointments", body, &patient)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "conflict")
}

func TestBookUnknownDoctorMapsTo422(t *testing.T) {
	router := newTestRouter(&stubRepo{doctorID: uuid.New()})
	patient := Identity{ID: uuid.New(), Role: "patient"}

	body := `{"doctor_id":"` + uuid.NewString() + `","date":"2026-09-14","time":"10:00"}`
	rec := doRequest(t, router, http.MethodPost, "/appointments", body, &patient)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBookBadTimeMapsTo400(t *testing.T) {
	repo := &stubRepo{doctorID: uuid.New()}
	router := newTestRouter(repo)
	patient := Identity{ID: uuid.New(), Role: "patient"}

	body := `{"doctor_id":"` + repo.doctorID.String() + `","date":"2026-09-14","time":"10am"}`
	rec := doRequest(t, router, http.MethodPost, "/appointments", body, &patient)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelByStrangerMapsTo403(t *testing.T) {
	repo := &stubRepo{doctorID: uuid.New()}
	repo.appt = &appointment.Appointment{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		DoctorID:  repo.doctorID,
		Status:    appointment.StatusBooked,
	}
	router := newTestRouter(repo)
	stranger := Identity{ID: uuid.New(), Role: "patient"}

	rec := doRequest(t, router, http.MethodPost, "/appointments/"+repo.appt.ID.String()+"/cancel", "", &stranger)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetUnknownAppointmentMapsTo404(t *testing.T) {
	router := newTestRouter(&stubRepo{doctorID: uuid.New()})
	patient := Identity{ID: uuid.New(), Role: "patient"}

	rec := doRequest(t, router, http.MethodGet, "/appointments/"+uuid.NewString(), "", &patient)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAvailabilityEndpointsRequireDoctorRole(t *testing.T) {
	router := newTestRouter(&stubRepo{doctorID: uuid.New()})
	patient := Identity{ID: uuid.New(), Role: "patient"}

	rec := doRequest(t, router, http.MethodPost, "/availability/block", `{"date":"2026-09-14","slots":[]}`, &patient)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMalformedIdentityRejected(t *testing.T) {
	router := newTestRouter(&stubRepo{doctorID: uuid.New()})

	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	req.Header.Set("X-User-ID", "not-a-uuid")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
