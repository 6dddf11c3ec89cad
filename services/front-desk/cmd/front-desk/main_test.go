package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/auth"
	"github.com/md-rashed-zaman/clinicdesk/libs/clinic"
	"github.com/md-rashed-zaman/clinicdesk/libs/slots"
	"github.com/md-rashed-zaman/clinicdesk/services/front-desk/internal/desk"
	"github.com/md-rashed-zaman/clinicdesk/services/front-desk/internal/editor"
	"github.com/md-rashed-zaman/clinicdesk/services/front-desk/internal/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu      sync.Mutex
	appts   []clinic.Appointment
	seq     int
	listErr error
}

var std = slots.Window{StartHour: 9, EndHour: 17, IntervalMinutes: 30}

func (b *fakeBackend) ListDoctors(context.Context) ([]clinic.Doctor, error) {
	return []clinic.Doctor{{ID: "d1", Name: "Dr. Meera Iyer"}, {ID: "d2", Name: "Dr. Omar Haddad"}}, nil
}

func (b *fakeBackend) ListAppointments(_ context.Context, r clinic.DateRange) ([]clinic.Appointment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
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

func (b *fakeBackend) ListAvailableSlots(_ context.Context, doctorID string, day clinic.Date) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var taken []clinic.Appointment
	for _, a := range b.appts {
		if a.DoctorID == doctorID && a.Date == day {
			taken = append(taken, a)
		}
	}
	return slots.FreeLabels(slots.Generate(std, taken)), nil
}

func (b *fakeBackend) CreateAppointment(_ context.Context, in clinic.AppointmentInput) (clinic.Appointment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	a := clinic.Appointment{
		ID: fmt.Sprintf("appt-%d", b.seq), PatientName: in.PatientName, Phone: in.Phone,
		Date: in.Date, Time: in.Time, Status: in.Status, DoctorID: in.DoctorID,
	}
	b.appts = append(b.appts, a)
	return a, nil
}

func (b *fakeBackend) UpdateAppointment(_ context.Context, id string, p clinic.AppointmentPatch) (clinic.Appointment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, a := range b.appts {
		if a.ID != id {
			continue
		}
		in := p.Apply(a)
		a.PatientName, a.Phone, a.Date, a.Time, a.Status, a.DoctorID = in.PatientName, in.Phone, in.Date, in.Time, in.Status, in.DoctorID
		b.appts[i] = a
		return a, nil
	}
	return clinic.Appointment{}, errors.New("not found")
}

func (b *fakeBackend) DeleteAppointment(_ context.Context, id string) error {
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

func (b *fakeBackend) add(id, doctorID string, date clinic.Date, at string, status clinic.Status) {
	b.appts = append(b.appts, clinic.Appointment{
		ID: id, PatientName: "Patient " + id, DoctorID: doctorID, Date: date,
		Time: clinic.StringPtr(at), Status: status,
	})
}

func run(t *testing.T, b *fakeBackend, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand(deps{
		out:     &out,
		errOut:  &errOut,
		now:     func() time.Time { return time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC) },
		backend: func(string, string) (desk.Backend, error) { return b, nil },
	})
	cmd.SetArgs(append(args, "--timezone", "UTC"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

var june10 = clinic.NewDate(2024, 6, 10)

func TestMonthShowsOverflow(t *testing.T) {
	b := &fakeBackend{}
	for i, at := range []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"} {
		b.add(fmt.Sprintf("a%d", i), "d1", june10, at, clinic.StatusScheduled)
	}

	out, err := run(t, b, "month", "2024-06")
	require.NoError(t, err)
	assert.Contains(t, out, "June 2024")
	assert.Contains(t, out, "+2 more")
	assert.Contains(t, out, "[5]")

	t.Setenv("FRONT_DESK_CELL_CAP", "2")
	out, err = run(t, b, "month", "2024-06")
	require.NoError(t, err)
	assert.Contains(t, out, "+4 more")
}

func TestBookThenShowDay(t *testing.T) {
	b := &fakeBackend{}

	out, err := run(t, b, "book", "2024-06-10", "09:30", "--patient", "A. Rao", "--doctor", "d1", "--phone", "+1 555 0100")
	require.NoError(t, err)
	assert.Contains(t, out, "Booked appt-1: A. Rao with Dr. Meera Iyer on 2024-06-10 at 09:30")

	out, err = run(t, b, "day", "2024-06-10", "--doctor", "d1")
	require.NoError(t, err)
	assert.Contains(t, out, "A. Rao")
	assert.Contains(t, out, "Dr. Meera Iyer")

	out, err = run(t, b, "slots", "2024-06-10", "--doctor", "d1")
	require.NoError(t, err)
	assert.NotContains(t, out, "09:30")
	assert.Contains(t, out, "09:00")

	_, err = run(t, b, "book", "2024-06-10", "09:30", "--patient", "B. Sen", "--doctor", "d1")
	assert.ErrorIs(t, err, schedule.ErrSlotOccupied)
}

func TestBookRejectsPastDay(t *testing.T) {
	_, err := run(t, &fakeBackend{}, "book", "2024-06-03", "09:30", "--patient", "A. Rao")
	assert.ErrorIs(t, err, schedule.ErrReadOnly)
}

func TestBookValidationError(t *testing.T) {
	_, err := run(t, &fakeBackend{}, "book", "2024-06-10", "09:30", "--patient", "A. Rao", "--email", "rao@")
	var verr editor.ValidationErrors
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr, "email")
}

func TestEditMovesAppointment(t *testing.T) {
	b := &fakeBackend{}
	b.add("a1", "d1", june10, "09:00", clinic.StatusScheduled)

	out, err := run(t, b, "edit", "a1", "--on", "2024-06-10", "--time", "10:00", "--status", "confirmed")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated a1: CONFIRMED on 2024-06-10 10:00")
}

func TestCancelThenDelete(t *testing.T) {
	b := &fakeBackend{}
	b.add("a1", "d1", june10, "09:00", clinic.StatusScheduled)

	out, err := run(t, b, "cancel", "a1", "--on", "2024-06-10")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled a1")
	assert.Equal(t, clinic.StatusCancelled, b.appts[0].Status)
	assert.Nil(t, b.appts[0].Time)

	out, err = run(t, b, "delete", "a1", "--on", "2024-06-10")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted a1")
	assert.Empty(t, b.appts)
}

func TestEditPastIsReadOnly(t *testing.T) {
	b := &fakeBackend{}
	b.add("p1", "d1", clinic.NewDate(2024, 6, 3), "09:00", clinic.StatusCompleted)

	_, err := run(t, b, "edit", "p1", "--on", "2024-06-03", "--patient", "X")
	assert.ErrorIs(t, err, editor.ErrReadOnly)
}

func TestLoadFailureAsksForRetry(t *testing.T) {
	b := &fakeBackend{listErr: errors.New("connection refused")}
	out, err := run(t, b, "week", "2024-06-10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry")
	assert.Contains(t, out, "2024-06-10")
}

func TestTokenCommand(t *testing.T) {
	out, err := run(t, &fakeBackend{}, "token", "--sub", "front-desk-1", "--staff-secret", "s3cret")
	require.NoError(t, err)

	claims, err := auth.ParseAndVerifyHS256(strings.TrimSpace(out), "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "front-desk-1", claims.Sub)
	assert.Equal(t, auth.RoleReceptionist, claims.Role)

	_, err = run(t, &fakeBackend{}, "token", "--sub", "x")
	assert.Error(t, err)
}
