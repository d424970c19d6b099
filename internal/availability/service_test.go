package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careclinic/slot-reservation-engine/internal/appointment"
	"github.com/careclinic/slot-reservation-engine/internal/timegrid"
)

type memStore struct {
	days     map[string]*Day
	profiles map[uuid.UUID]*DoctorProfile
}

func newMemStore() *memStore {
	return &memStore{
		days:     make(map[string]*Day),
		profiles: make(map[uuid.UUID]*DoctorProfile),
	}
}

func dayKey(doctorID uuid.UUID, date time.Time) string {
	return doctorID.String() + "|" + date.Format("2006-01-02")
}

func (m *memStore) GetDay(_ context.Context, doctorID uuid.UUID, date time.Time) (*Day, error) {
	d, ok := m.days[dayKey(doctorID, date)]
	if !ok {
		return nil, ErrDayNotFound
	}
	return d, nil
}

func (m *memStore) FindException(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string) (*SlotException, error) {
	d, err := m.GetDay(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	for i := range d.Slots {
		if d.Slots[i].StartTime == startTime {
			return &d.Slots[i], nil
		}
	}
	return nil, nil
}

func (m *memStore) UpsertExceptions(_ context.Context, doctorID uuid.UUID, date time.Time, incoming []SlotException) (*Day, error) {
	key := dayKey(doctorID, date)
	d, ok := m.days[key]
	if !ok {
		d = &Day{ID: uuid.New(), DoctorID: doctorID, Date: date}
		m.days[key] = d
	}
	for _, in := range incoming {
		merged := false
		for i := range d.Slots {
			if d.Slots[i].StartTime == in.StartTime && d.Slots[i].EndTime == in.EndTime {
				d.Slots[i].Status = in.Status
				if in.Reason != nil {
					d.Slots[i].Reason = in.Reason
				}
				merged = true
				break
			}
		}
		if !merged {
			d.Slots = append(d.Slots, in)
		}
	}
	return d, nil
}

func (m *memStore) ReleaseSlot(_ context.Context, doctorID uuid.UUID, date time.Time, startTime string) error {
	d, ok := m.days[dayKey(doctorID, date)]
	if !ok {
		return nil
	}
	for i := range d.Slots {
		if d.Slots[i].StartTime == startTime {
			d.Slots[i].Status = ExceptionAvailable
			d.Slots[i].Reason = nil
		}
	}
	return nil
}

func (m *memStore) IsBlocked(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string) (bool, error) {
	exc, err := m.FindException(ctx, doctorID, date, startTime)
	if err != nil {
		if errors.Is(err, ErrDayNotFound) {
			return false, nil
		}
		return false, err
	}
	return exc != nil && exc.Status == ExceptionBlocked, nil
}

func (m *memStore) BlockedTimes(_ context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	d, ok := m.days[dayKey(doctorID, date)]
	if !ok {
		return nil, nil
	}
	var times []string
	for _, slot := range d.Slots {
		if slot.Status == ExceptionBlocked {
			times = append(times, slot.StartTime)
		}
	}
	return times, nil
}

func (m *memStore) GetProfile(_ context.Context, doctorID uuid.UUID) (*DoctorProfile, error) {
	p, ok := m.profiles[doctorID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

func (m *memStore) UpsertProfile(_ context.Context, doctorID uuid.UUID, hours []WorkingRange, slotDuration *int, consultationFee *float64) (*DoctorProfile, error) {
	p, ok := m.profiles[doctorID]
	if !ok {
		p = &DoctorProfile{UserID: doctorID, SlotDuration: 30}
		m.profiles[doctorID] = p
	}
	p.WorkingHours = hours
	if slotDuration != nil {
		p.SlotDuration = *slotDuration
	}
	if consultationFee != nil {
		p.ConsultationFee = consultationFee
	}
	return p, nil
}

var _ Store = (*memStore)(nil)

// fakeEngine records cancellations and serves canned active appointments.
type fakeEngine struct {
	active     []appointment.Appointment
	activeTime []string
	cancelled  []uuid.UUID
	reasons    []string
	failOn     map[uuid.UUID]error
}

func (f *fakeEngine) Cancel(_ context.Context, id, _ uuid.UUID, reason *string, releaseSlot bool) (*appointment.Appointment, error) {
	if releaseSlot {
		return nil, errors.New("cascade must not release slots")
	}
	if err := f.failOn[id]; err != nil {
		return nil, err
	}
	f.cancelled = append(f.cancelled, id)
	if reason != nil {
		f.reasons = append(f.reasons, *reason)
	}
	return &appointment.Appointment{ID: id, Status: appointment.StatusCancelled}, nil
}

func (f *fakeEngine) ActiveForSlots(_ context.Context, _ uuid.UUID, _ time.Time, starts []string) ([]appointment.Appointment, error) {
	wanted := make(map[string]bool, len(starts))
	for _, s := range starts {
		wanted[s] = true
	}
	var out []appointment.Appointment
	for _, a := range f.active {
		if wanted[a.Time] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeEngine) ActiveTimes(_ context.Context, _ uuid.UUID, _ time.Time) ([]string, error) {
	return f.activeTime, nil
}

var testDate = time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC) // a Monday

func newTestService(store Store, engine Engine) *Service {
	return NewService(store, engine, zerolog.Nop())
}

func TestSetWorkingHoursValidation(t *testing.T) {
	svc := newTestService(newMemStore(), &fakeEngine{})
	doctor := uuid.New()

	_, err := svc.SetWorkingHours(context.Background(), doctor, []WorkingRange{
		{DayOfWeek: 7, StartTime: "09:00", EndTime: "12:00"},
	}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidDayOfWeek)

	_, err = svc.SetWorkingHours(context.Background(), doctor, []WorkingRange{
		{DayOfWeek: 1, StartTime: "12:00", EndTime: "09:00"},
	}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidSlotRange)

	tooShort := 1
	_, err = svc.SetWorkingHours(context.Background(), doctor, nil, &tooShort, nil)
	assert.ErrorIs(t, err, ErrInvalidSlotDuration)
}

func TestBlockSlotsIsIdempotent(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &fakeEngine{})
	doctor := uuid.New()

	slots := []SlotInput{{StartTime: "10:00", EndTime: "10:30"}}
	day, err := svc.BlockSlots(context.Background(), doctor, testDate, slots)
	require.NoError(t, err)
	require.Len(t, day.Slots, 1)

	// Re-blocking the same bounds must not duplicate the exception.
	day, err = svc.BlockSlots(context.Background(), doctor, testDate, slots)
	require.NoError(t, err)
	assert.Len(t, day.Slots, 1)
	assert.Equal(t, ExceptionBlocked, day.Slots[0].Status)
}

func TestEmergencyBlockCancelsOccupants(t *testing.T) {
	store := newMemStore()
	occupied := appointment.Appointment{ID: uuid.New(), Time: "10:00", Status: appointment.StatusConfirmed}
	untouched := appointment.Appointment{ID: uuid.New(), Time: "14:00", Status: appointment.StatusBooked}
	engine := &fakeEngine{active: []appointment.Appointment{occupied, untouched}}
	svc := newTestService(store, engine)
	doctor := uuid.New()

	result, err := svc.EmergencyBlock(context.Background(), doctor, testDate, []SlotInput{
		{StartTime: "10:00", EndTime: "10:30"},
		{StartTime: "10:30", EndTime: "11:00"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.CancelledCount)
	assert.Empty(t, result.Failures)
	require.Len(t, engine.cancelled, 1)
	assert.Equal(t, occupied.ID, engine.cancelled[0])
	assert.Equal(t, []string{DefaultEmergencyReason}, engine.reasons)

	// The slot stays blocked after the cascade.
	blocked, err := svc.IsBlocked(context.Background(), doctor, testDate, "10:00")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestEmergencyBlockCollectsFailures(t *testing.T) {
	store := newMemStore()
	good := appointment.Appointment{ID: uuid.New(), Time: "10:00", Status: appointment.StatusBooked}
	bad := appointment.Appointment{ID: uuid.New(), Time: "10:30", Status: appointment.StatusBooked}
	engine := &fakeEngine{
		active: []appointment.Appointment{good, bad},
		failOn: map[uuid.UUID]error{bad.ID: errors.New("db timeout")},
	}
	svc := newTestService(store, engine)
	doctor := uuid.New()

	reason := "flooding in the clinic"
	result, err := svc.EmergencyBlock(context.Background(), doctor, testDate, []SlotInput{
		{StartTime: "10:00", EndTime: "10:30"},
		{StartTime: "10:30", EndTime: "11:00"},
	}, &reason)
	require.NoError(t, err)

	assert.Equal(t, 1, result.CancelledCount)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, bad.ID, result.Failures[0].AppointmentID)

	// Blocking is not rolled back on partial failure; the failed slot is
	// still closed to new bookings.
	blocked, err := svc.IsBlocked(context.Background(), doctor, testDate, "10:30")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestEmergencyBlockRequiresSlots(t *testing.T) {
	svc := newTestService(newMemStore(), &fakeEngine{})

	_, err := svc.EmergencyBlock(context.Background(), uuid.New(), testDate, nil, nil)
	assert.ErrorIs(t, err, ErrNoSlots)
}

func TestAvailableSlotsSubtractsBookedAndBlocked(t *testing.T) {
	store := newMemStore()
	doctor := uuid.New()
	store.profiles[doctor] = &DoctorProfile{
		UserID:       doctor,
		SlotDuration: 30,
		WorkingHours: []WorkingRange{
			{DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00"},
		},
	}
	engine := &fakeEngine{activeTime: []string{"09:30"}}
	svc := newTestService(store, engine)

	_, err := svc.BlockSlots(context.Background(), doctor, testDate, []SlotInput{
		{StartTime: "11:00", EndTime: "11:30"},
	})
	require.NoError(t, err)

	slots, err := svc.AvailableSlots(context.Background(), doctor, testDate)
	require.NoError(t, err)

	got := make([]string, len(slots))
	for i, s := range slots {
		got[i] = s.StartTime
	}
	assert.Equal(t, []string{"09:00", "10:00", "10:30", "11:30"}, got)
}

func TestAvailableSlotsWithoutProfile(t *testing.T) {
	svc := newTestService(newMemStore(), &fakeEngine{})

	slots, err := svc.AvailableSlots(context.Background(), uuid.New(), testDate)
	require.NoError(t, err)
	assert.Nil(t, slots)
}

func TestAvailableSlotsOffDay(t *testing.T) {
	store := newMemStore()
	doctor := uuid.New()
	store.profiles[doctor] = &DoctorProfile{
		UserID:       doctor,
		SlotDuration: 30,
		WorkingHours: []WorkingRange{
			{DayOfWeek: 2, StartTime: "09:00", EndTime: "12:00"},
		},
	}
	svc := newTestService(store, &fakeEngine{})

	// testDate is a Monday; the template only covers Tuesday.
	slots, err := svc.AvailableSlots(context.Background(), doctor, testDate)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestReleaseSlotReopensBlockedException(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &fakeEngine{})
	doctor := uuid.New()

	_, err := svc.BlockSlots(context.Background(), doctor, testDate, []SlotInput{
		{StartTime: "10:00", EndTime: "10:30"},
	})
	require.NoError(t, err)

	require.NoError(t, store.ReleaseSlot(context.Background(), doctor, testDate, "10:00"))

	blocked, err := svc.IsBlocked(context.Background(), doctor, testDate, "10:00")
	require.NoError(t, err)
	assert.False(t, blocked)

	// Releasing a slot that was never an exception is a no-op.
	require.NoError(t, store.ReleaseSlot(context.Background(), uuid.New(), testDate, "10:00"))
}

func TestEmergencyBlockRejectsBadRange(t *testing.T) {
	svc := newTestService(newMemStore(), &fakeEngine{})

	_, err := svc.EmergencyBlock(context.Background(), uuid.New(), testDate, []SlotInput{
		{StartTime: "10:30", EndTime: "10:00"},
	}, nil)
	assert.ErrorIs(t, err, ErrInvalidSlotRange)

	_, err = svc.BlockSlots(context.Background(), uuid.New(), testDate, []SlotInput{
		{StartTime: "10am", EndTime: "11am"},
	})
	assert.ErrorIs(t, err, timegrid.ErrBadTimeFormat)
}
