package desk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/clinic"
	"github.com/md-rashed-zaman/clinicdesk/libs/slots"
	"github.com/md-rashed-zaman/clinicdesk/services/front-desk/internal/editor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var window = slots.Window{StartHour: 9, EndHour: 17, IntervalMinutes: 30}

// memoryBackend answers like clinic-service over a slice.
type memoryBackend struct {
	mu      sync.Mutex
	doctors []clinic.Doctor
	appts   []clinic.Appointment
	nextID  int
	listErr error
	lists   int
}

func (b *memoryBackend) ListDoctors(context.Context) ([]clinic.Doctor, error) {
	return b.doctors, nil
}

func (b *memoryBackend) ListAppointments(_ context.Context, r clinic.DateRange) ([]clinic.Appointment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists++
	if b.listErr != nil {
		return nil, b.listErr
	}
	var out []clinic.Appointment
	for _, a := range b.appts {
		if r.Contains(a.Date) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (b *memoryBackend) ListAvailableSlots(_ context.Context, doctorID string, day clinic.Date) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var booked []clinic.Appointment
	for _, a := range b.appts {
		if a.DoctorID == doctorID && a.Date == day {
			booked = append(booked, a)
		}
	}
	return slots.FreeLabels(slots.Generate(window, booked)), nil
}

func (b *memoryBackend) CreateAppointment(_ context.Context, in clinic.AppointmentInput) (clinic.Appointment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	a := clinic.Appointment{
		ID: fmt.Sprintf("appt-%d", b.nextID), PatientName: in.PatientName, Email: in.Email, Phone: in.Phone,
		Date: in.Date, Time: in.Time, Status: in.Status, DoctorID: in.DoctorID,
	}
	b.appts = append(b.appts, a)
	return a, nil
}

func (b *memoryBackend) UpdateAppointment(_ context.Context, id string, patch clinic.AppointmentPatch) (clinic.Appointment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, a := range b.appts {
		if a.ID == id {
			in := patch.Apply(a)
			a.PatientName, a.Email, a.Phone = in.PatientName, in.Email, in.Phone
			a.Date, a.Time, a.Status, a.DoctorID = in.Date, in.Time, in.Status, in.DoctorID
			b.appts[i] = a
			return a, nil
		}
	}
	return clinic.Appointment{}, errors.New("not found")
}

func (b *memoryBackend) DeleteAppointment(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, a := range b.appts {
		if a.ID == id {
			b.appts = append(b.appts[:i], b.appts[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func newPage(t *testing.T, b *memoryBackend) *Page {
	t.Helper()
	p, err := New(context.Background(), b, Config{
		Window:   window,
		CellCap:  4,
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC) },
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return p
}

func doctors() []clinic.Doctor {
	return []clinic.Doctor{{ID: "d1", Name: "Dr. Meera Iyer"}, {ID: "d2", Name: "Dr. Omar Haddad"}}
}

func TestBookingRoundTrip(t *testing.T) {
	b := &memoryBackend{doctors: doctors()}
	p := newPage(t, b)
	ctx := context.Background()
	day := clinic.NewDate(2024, 6, 10)

	_, err := p.ShowMonth(ctx, 2024, time.June)
	require.NoError(t, err)
	_, err = p.OpenDay(ctx, day, "d1")
	require.NoError(t, err)

	require.NoError(t, p.Day().SelectFreeSlot(ctx, "09:30"))
	ed := p.Editor()
	require.Equal(t, editor.Creating, ed.State())
	v := ed.Snapshot()
	assert.Equal(t, "d1", v.Draft.DoctorID)
	require.NotNil(t, v.Draft.Time)
	assert.Equal(t, "09:30", *v.Draft.Time)

	require.NoError(t, ed.SetPatientName("A. Rao"))
	_, err = ed.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, editor.Closed, ed.State())

	view, open := p.Day().Current()
	require.True(t, open)
	s, ok := slots.Find(view.Slots, "09:30")
	require.True(t, ok)
	require.Len(t, s.Appointments, 1)
	assert.Equal(t, "A. Rao", s.Appointments[0].PatientName)

	free, err := b.ListAvailableSlots(ctx, "d1", day)
	require.NoError(t, err)
	assert.NotContains(t, free, "09:30")
	assert.Contains(t, free, "09:00")

	assert.Equal(t, 1, p.Month().Cell(day).Total)
}

func TestMonthCardOpensEditor(t *testing.T) {
	b := &memoryBackend{doctors: doctors(), appts: []clinic.Appointment{
		{ID: "a1", PatientName: "A. Rao", DoctorID: "d2", Date: clinic.NewDate(2024, 6, 12), Time: clinic.StringPtr("11:00"), Status: clinic.StatusConfirmed},
		{ID: "a2", PatientName: "B. Sen", DoctorID: "d1", Date: clinic.NewDate(2024, 6, 3), Time: clinic.StringPtr("09:00"), Status: clinic.StatusCompleted},
	}}
	p := newPage(t, b)
	ctx := context.Background()

	grid, err := p.ShowMonth(ctx, 2024, time.June)
	require.NoError(t, err)
	cell := grid.Weeks[2][2]
	require.Equal(t, clinic.NewDate(2024, 6, 12), cell.Date)
	require.Len(t, cell.Cards, 1)

	p.Month().ClickCard(ctx, cell.Cards[0].Appointment)
	assert.Equal(t, editor.Editing, p.Editor().State())
	_, open := p.Day().Current()
	assert.False(t, open)

	p.Editor().Close()
	p.Month().ClickCard(ctx, grid.Weeks[1][0].Cards[0].Appointment)
	assert.Equal(t, editor.Viewing, p.Editor().State())
}

func TestBackgroundClickOpensDay(t *testing.T) {
	p := newPage(t, &memoryBackend{doctors: doctors()})
	ctx := context.Background()
	_, err := p.ShowMonth(ctx, 2024, time.June)
	require.NoError(t, err)

	assert.False(t, p.Month().ClickBackground(ctx, clinic.NewDate(2024, 6, 4)))
	_, open := p.Day().Current()
	assert.False(t, open)

	assert.True(t, p.Month().ClickBackground(ctx, clinic.NewDate(2024, 6, 14)))
	view, open := p.Day().Current()
	require.True(t, open)
	assert.Equal(t, clinic.NewDate(2024, 6, 14), view.Date)
	assert.Len(t, view.Slots, 16)
}

func TestLoadFailureShowsEmptyCalendarUntilRetry(t *testing.T) {
	b := &memoryBackend{doctors: doctors(), appts: []clinic.Appointment{
		{ID: "a1", PatientName: "A. Rao", DoctorID: "d1", Date: clinic.NewDate(2024, 6, 12), Time: clinic.StringPtr("11:00"), Status: clinic.StatusScheduled},
	}}
	b.listErr = errors.New("connection refused")
	p := newPage(t, b)
	ctx := context.Background()

	grid, err := p.ShowMonth(ctx, 2024, time.June)
	require.Error(t, err)
	assert.Error(t, p.LoadError())
	assert.Empty(t, grid.Weeks[2][2].Cards)

	b.mu.Lock()
	b.listErr = nil
	b.mu.Unlock()
	require.NoError(t, p.Retry(ctx))
	assert.NoError(t, p.LoadError())
	assert.Equal(t, 1, p.Month().Cell(clinic.NewDate(2024, 6, 12)).Total)
}

func TestOpenDayOutsideVisibleRangeLoadsWeek(t *testing.T) {
	b := &memoryBackend{doctors: doctors(), appts: []clinic.Appointment{
		{ID: "a1", PatientName: "A. Rao", DoctorID: "d1", Date: clinic.NewDate(2024, 8, 14), Time: clinic.StringPtr("09:00"), Status: clinic.StatusScheduled},
	}}
	p := newPage(t, b)
	ctx := context.Background()
	_, err := p.ShowMonth(ctx, 2024, time.June)
	require.NoError(t, err)

	view, err := p.OpenDay(ctx, clinic.NewDate(2024, 8, 14), "")
	require.NoError(t, err)
	assert.Len(t, view.Appointments(), 1)
	assert.Equal(t, clinic.DateRange{From: clinic.NewDate(2024, 8, 12), To: clinic.NewDate(2024, 8, 18)}, p.Visible())
	assert.Equal(t, 2, b.lists)
}
