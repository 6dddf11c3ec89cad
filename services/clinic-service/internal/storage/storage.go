package storage

import (
	"context"
	"errors"

	"github.com/md-rashed-zaman/clinicdesk/libs/clinic"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/outbox"
)

var (
	ErrNotFound = errors.New("storage: not found")
	ErrConflict = errors.New("storage: conflicting row")
)

// Tx is the write side of the store. Every method runs inside one transaction.
type Tx interface {
	// LockDoctorDay serializes writers touching the same doctor and day until commit.
	LockDoctorDay(ctx context.Context, doctorID string, day clinic.Date) error
	// GetDoctor reads a doctor without taking any lock held by the transaction.
	GetDoctor(ctx context.Context, id string) (clinic.Doctor, error)
	GetForUpdate(ctx context.Context, id string) (clinic.Appointment, error)
	// Occupying lists the doctor's non-cancelled appointments on day, leaving out excludeID.
	Occupying(ctx context.Context, doctorID string, day clinic.Date, excludeID string) ([]clinic.Appointment, error)
	Insert(ctx context.Context, a clinic.Appointment) error
	Update(ctx context.Context, a clinic.Appointment) error
	Delete(ctx context.Context, id string) error
	AddEvent(ctx context.Context, evt outbox.Event) error
}
