// Package booking owns the appointment rules of clinic-service: validation, the
// authoritative slot conflict check, availability, and lifecycle events.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicdesk/libs/clinic"
	"github.com/md-rashed-zaman/clinicdesk/libs/metrics"
	otelx "github.com/md-rashed-zaman/clinicdesk/libs/otel"
	"github.com/md-rashed-zaman/clinicdesk/libs/slots"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MaxRangeDays bounds a single appointment listing.
const MaxRangeDays = 62

var (
	ErrNotFound       = errors.New("appointment not found")
	ErrDoctorNotFound = errors.New("doctor not found")
	ErrSlotTaken      = errors.New("time slot already booked")
	ErrInvalidInput   = errors.New("invalid input")
)

// InputError carries field-scoped problems. errors.Is(err, ErrInvalidInput) holds.
type InputError struct {
	Fields clinic.FieldErrors
}

func (e *InputError) Error() string { return e.Fields.Error() }

func (e *InputError) Unwrap() error { return ErrInvalidInput }

func invalid(field, msg string) error {
	return &InputError{Fields: clinic.FieldErrors{field: msg}}
}

// Repository is the storage the service runs on.
type Repository interface {
	ListDoctors(ctx context.Context) ([]clinic.Doctor, error)
	GetDoctor(ctx context.Context, id string) (clinic.Doctor, error)
	ListAppointments(ctx context.Context, r clinic.DateRange, doctorID string) ([]clinic.Appointment, error)
	ListOccupying(ctx context.Context, doctorID string, day clinic.Date) ([]clinic.Appointment, error)
	InTx(ctx context.Context, fn func(storage.Tx) error) error
}

type Config struct {
	// Window is the clinic default; doctors may override it.
	Window           slots.Window
	Location         *time.Location
	AllowOverbooking bool
	Now              func() time.Time
}

type Service struct {
	repo    Repository
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.SchedulingMetrics
	tracer  trace.Tracer
}

func NewService(repo Repository, cfg Config, logger *slog.Logger, m *metrics.SchedulingMetrics) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Window.Validate() != nil {
		cfg.Window = slots.Window{StartHour: 9, EndHour: 17, IntervalMinutes: 30}
	}
	return &Service{
		repo:    repo,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("clinic-service/booking"),
	}
}

func (s *Service) ListDoctors(ctx context.Context) ([]clinic.Doctor, error) {
	doctors, err := s.repo.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return doctors, nil
}

func (s *Service) ListAppointments(ctx context.Context, r clinic.DateRange, doctorID string) ([]clinic.Appointment, error) {
	if !r.Valid() {
		return nil, invalid("range", "from and to are required and from must not be after to")
	}
	if r.Days() > MaxRangeDays {
		return nil, invalid("range", fmt.Sprintf("range may span at most %d days", MaxRangeDays))
	}
	appts, err := s.repo.ListAppointments(ctx, r, strings.TrimSpace(doctorID))
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// AvailableSlots lists the free labels of the doctor's nominal window on day, with
// labels already in the past removed for today.
func (s *Service) AvailableSlots(ctx context.Context, doctorID string, day clinic.Date) (labels []string, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.available_slots", trace.WithAttributes(
		attribute.String("doctor.id", doctorID),
		attribute.String("date", day.String()),
	))
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.metrics.ObserveAvailability(outcome, time.Since(start).Seconds())
		otelx.EndSpan(span, err)
	}()

	if day.IsZero() {
		return nil, invalid("date", "date is required")
	}
	doctor, err := s.repo.GetDoctor(ctx, doctorID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	now := s.cfg.Now().In(s.cfg.Location)
	today := clinic.DateOf(now)
	if day.Before(today) {
		return []string{}, nil
	}

	booked, err := s.repo.ListOccupying(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("list booked: %w", err)
	}

	window := slots.ForDoctor(s.cfg.Window, doctor)
	nowMinutes := -1
	if day == today {
		nowMinutes = now.Hour()*60 + now.Minute()
	}
	labels = []string{}
	for _, slot := range slots.Generate(window, booked) {
		if !slot.Free() || !slots.InWindow(window, slot) || slot.Start <= nowMinutes {
			continue
		}
		labels = append(labels, slot.Label)
	}
	return labels, nil
}

// Create validates in, checks the slot and stores the appointment with its created event.
func (s *Service) Create(ctx context.Context, in clinic.AppointmentInput) (appt clinic.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.create")
	defer func() {
		s.metrics.ObserveMutation("create", outcome(err))
		otelx.EndSpan(span, err)
	}()

	in = normalize(in)
	doctor, err := s.validate(ctx, in, s.repo.GetDoctor)
	if err != nil {
		return clinic.Appointment{}, err
	}
	if s.inPast(in.Date) {
		return clinic.Appointment{}, invalid("date", "date is in the past")
	}

	now := s.cfg.Now().UTC()
	appt = clinic.Appointment{
		ID:          uuid.NewString(),
		PatientName: in.PatientName,
		Email:       in.Email,
		Phone:       in.Phone,
		Date:        in.Date,
		Time:        in.Time,
		Status:      in.Status,
		DoctorID:    in.DoctorID,
		CustomerID:  in.CustomerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	span.SetAttributes(attribute.String("appointment.id", appt.ID))

	err = s.repo.InTx(ctx, func(tx storage.Tx) error {
		if err := s.claimSlot(ctx, tx, doctor, appt); err != nil {
			return err
		}
		if err := tx.Insert(ctx, appt); err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		return s.emit(ctx, tx, outbox.TopicAppointmentCreated, appt, nil)
	})
	if err != nil {
		return clinic.Appointment{}, err
	}
	s.logger.Info("appointment created", "appointment_id", appt.ID, "doctor_id", appt.DoctorID, "date", appt.Date.String(), "time", appt.TimeLabel())
	return appt, nil
}

// Update applies patch to the appointment id. Moving to CANCELLED clears the time.
func (s *Service) Update(ctx context.Context, id string, patch clinic.AppointmentPatch) (appt clinic.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.update", trace.WithAttributes(attribute.String("appointment.id", id)))
	defer func() {
		s.metrics.ObserveMutation("update", outcome(err))
		otelx.EndSpan(span, err)
	}()

	if _, perr := uuid.Parse(id); perr != nil {
		return clinic.Appointment{}, ErrNotFound
	}
	if patch.IsEmpty() {
		return clinic.Appointment{}, invalid("patch", "no fields to update")
	}

	err = s.repo.InTx(ctx, func(tx storage.Tx) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load appointment: %w", err)
		}

		in := normalize(patch.Apply(cur))
		doctor, err := s.validate(ctx, in, tx.GetDoctor)
		if err != nil {
			return err
		}
		if in.Date != cur.Date && s.inPast(in.Date) {
			return invalid("date", "date is in the past")
		}

		appt = cur
		appt.PatientName = in.PatientName
		appt.Email = in.Email
		appt.Phone = in.Phone
		appt.Date = in.Date
		appt.Time = in.Time
		appt.Status = in.Status
		appt.DoctorID = in.DoctorID
		appt.CustomerID = in.CustomerID
		appt.UpdatedAt = s.cfg.Now().UTC()

		if movedSlot(cur, appt) {
			if err := s.claimSlot(ctx, tx, doctor, appt); err != nil {
				return err
			}
		}
		if err := tx.Update(ctx, appt); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		return s.emit(ctx, tx, outbox.TopicAppointmentUpdated, appt, &cur)
	})
	if err != nil {
		return clinic.Appointment{}, err
	}
	s.logger.Info("appointment updated", "appointment_id", appt.ID, "status", string(appt.Status))
	return appt, nil
}

func (s *Service) Delete(ctx context.Context, id string) (err error) {
	ctx, span := s.tracer.Start(ctx, "booking.delete", trace.WithAttributes(attribute.String("appointment.id", id)))
	defer func() {
		s.metrics.ObserveMutation("delete", outcome(err))
		otelx.EndSpan(span, err)
	}()

	if _, perr := uuid.Parse(id); perr != nil {
		return ErrNotFound
	}
	err = s.repo.InTx(ctx, func(tx storage.Tx) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load appointment: %w", err)
		}
		if err := tx.Delete(ctx, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("delete appointment: %w", err)
		}
		return s.emit(ctx, tx, outbox.TopicAppointmentDeleted, cur, nil)
	})
	if err != nil {
		return err
	}
	s.logger.Info("appointment deleted", "appointment_id", id)
	return nil
}

// validate checks in and resolves its doctor through getDoctor. Inside a
// transaction getDoctor must be the Tx's own lookup.
func (s *Service) validate(ctx context.Context, in clinic.AppointmentInput, getDoctor func(context.Context, string) (clinic.Doctor, error)) (clinic.Doctor, error) {
	var doctor clinic.Doctor
	fields := clinic.ValidateInput(in)
	if in.DoctorID != "" {
		d, err := getDoctor(ctx, in.DoctorID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			if fields == nil {
				fields = clinic.FieldErrors{}
			}
			fields["doctor_id"] = "unknown doctor"
		case err != nil:
			return clinic.Doctor{}, fmt.Errorf("load doctor: %w", err)
		default:
			doctor = d
		}
	}
	if len(fields) > 0 {
		return clinic.Doctor{}, &InputError{Fields: fields}
	}
	return doctor, nil
}

func (s *Service) inPast(day clinic.Date) bool {
	return day.Before(clinic.DateOf(s.cfg.Now().In(s.cfg.Location)))
}

// claimSlot takes the doctor/day lock and rejects the appointment when another one
// already sits in the same slot of the doctor's grid, unless overbooking is allowed.
// Slots are the ones availability offers, so 09:10 blocks a 09:00 booking on a
// 30 minute grid. Cancelled appointments claim nothing.
func (s *Service) claimSlot(ctx context.Context, tx storage.Tx, doctor clinic.Doctor, a clinic.Appointment) error {
	if !a.Occupies() {
		return nil
	}
	if err := tx.LockDoctorDay(ctx, a.DoctorID, a.Date); err != nil {
		return fmt.Errorf("lock doctor day: %w", err)
	}
	others, err := tx.Occupying(ctx, a.DoctorID, a.Date, a.ID)
	if err != nil {
		return fmt.Errorf("check slot: %w", err)
	}
	if !sharesSlot(slots.ForDoctor(s.cfg.Window, doctor), others, a) {
		return nil
	}
	if !s.cfg.AllowOverbooking {
		return ErrSlotTaken
	}
	s.logger.Warn("overbooking slot", "doctor_id", a.DoctorID, "date", a.Date.String(), "time", *a.Time)
	return nil
}

// sharesSlot reports whether a lands in a slot that one of others already occupies.
func sharesSlot(w slots.Window, others []clinic.Appointment, a clinic.Appointment) bool {
	if len(others) == 0 {
		return false
	}
	for _, slot := range slots.Generate(w, append(slices.Clone(others), a)) {
		for _, b := range slot.Appointments {
			if b.ID == a.ID {
				return len(slot.Appointments) > 1
			}
		}
	}
	return false
}

func (s *Service) emit(ctx context.Context, tx storage.Tx, topic string, a clinic.Appointment, prev *clinic.Appointment) error {
	evt, err := outbox.AppointmentEvent(topic, a, prev, s.cfg.Now())
	if err != nil {
		return fmt.Errorf("build event: %w", err)
	}
	if err := tx.AddEvent(ctx, evt); err != nil {
		return fmt.Errorf("write outbox event: %w", err)
	}
	return nil
}

// movedSlot reports whether b claims a slot a did not hold.
func movedSlot(a, b clinic.Appointment) bool {
	if !b.Occupies() {
		return false
	}
	if !a.Occupies() {
		return true
	}
	return a.DoctorID != b.DoctorID || a.Date != b.Date || *a.Time != *b.Time
}

func normalize(in clinic.AppointmentInput) clinic.AppointmentInput {
	in.PatientName = strings.TrimSpace(in.PatientName)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.DoctorID = strings.TrimSpace(in.DoctorID)
	in.CustomerID = strings.TrimSpace(in.CustomerID)
	if in.Status == "" {
		in.Status = clinic.StatusScheduled
	} else if st, ok := clinic.ParseStatus(string(in.Status)); ok {
		in.Status = st
	}
	if in.Status == clinic.StatusCancelled {
		in.Time = nil
	}
	if in.Time != nil {
		t := strings.TrimSpace(*in.Time)
		in.Time = &t
	}
	return in
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ErrSlotTaken):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
