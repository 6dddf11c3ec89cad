package storage

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/md-rashed-zaman/clinicdesk/libs/clinic"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/outbox"
)

// Memory is a process-local store for running clinic-service without PostgreSQL.
// Transactions are serialized by a single mutex and applied on success only. Code
// running inside InTx must go through the Tx, never back to the Memory.
type Memory struct {
	mu      sync.Mutex
	doctors []clinic.Doctor
	appts   []clinic.Appointment
	events  []outbox.Event
}

func NewMemory(doctors ...clinic.Doctor) *Memory {
	return &Memory{doctors: slices.Clone(doctors)}
}

func (m *Memory) ListDoctors(context.Context) ([]clinic.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.doctors)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) GetDoctor(_ context.Context, id string) (clinic.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.doctors {
		if d.ID == id {
			return d, nil
		}
	}
	return clinic.Doctor{}, ErrNotFound
}

func (m *Memory) ListAppointments(_ context.Context, r clinic.DateRange, doctorID string) ([]clinic.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []clinic.Appointment
	for _, a := range m.appts {
		if r.Contains(a.Date) && (doctorID == "" || a.DoctorID == doctorID) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Memory) ListOccupying(_ context.Context, doctorID string, day clinic.Date) ([]clinic.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []clinic.Appointment
	for _, a := range m.appts {
		if a.DoctorID == doctorID && a.Date == day && a.Status.Occupies() {
			out = append(out, a)
		}
	}
	return out, nil
}

// Events returns every event written so far.
func (m *Memory) Events() []outbox.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

func (m *Memory) InTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{doctors: m.doctors, appts: slices.Clone(m.appts)}
	if err := fn(tx); err != nil {
		return err
	}
	m.appts = tx.appts
	m.events = append(m.events, tx.events...)
	return nil
}

type memTx struct {
	doctors []clinic.Doctor
	appts   []clinic.Appointment
	events  []outbox.Event
}

func (t *memTx) LockDoctorDay(context.Context, string, clinic.Date) error { return nil }

func (t *memTx) GetDoctor(_ context.Context, id string) (clinic.Doctor, error) {
	for _, d := range t.doctors {
		if d.ID == id {
			return d, nil
		}
	}
	return clinic.Doctor{}, ErrNotFound
}

func (t *memTx) GetForUpdate(_ context.Context, id string) (clinic.Appointment, error) {
	if i := t.index(id); i >= 0 {
		return t.appts[i], nil
	}
	return clinic.Appointment{}, ErrNotFound
}

func (t *memTx) Occupying(_ context.Context, doctorID string, day clinic.Date, excludeID string) ([]clinic.Appointment, error) {
	var out []clinic.Appointment
	for _, a := range t.appts {
		if a.ID != excludeID && a.DoctorID == doctorID && a.Date == day && a.Occupies() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *memTx) Insert(_ context.Context, a clinic.Appointment) error {
	if t.index(a.ID) >= 0 {
		return ErrConflict
	}
	t.appts = append(t.appts, a)
	return nil
}

func (t *memTx) Update(_ context.Context, a clinic.Appointment) error {
	i := t.index(a.ID)
	if i < 0 {
		return ErrNotFound
	}
	t.appts[i] = a
	return nil
}

func (t *memTx) Delete(_ context.Context, id string) error {
	i := t.index(id)
	if i < 0 {
		return ErrNotFound
	}
	t.appts = slices.Delete(t.appts, i, i+1)
	return nil
}

func (t *memTx) AddEvent(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}

func (t *memTx) index(id string) int {
	return slices.IndexFunc(t.appts, func(a clinic.Appointment) bool { return a.ID == id })
}
