package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicdesk/libs/clinic"
	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/outbox"
)

const appointmentColumns = `id::text, patient_name, email, phone, appt_date, appt_time, status,
	doctor_id, COALESCE(customer_id, ''), created_at, updated_at`

const doctorColumns = `id, name, speciality, fee_minor,
	COALESCE(work_start_hour, 0), COALESCE(work_end_hour, 0), COALESCE(slot_minutes, 0)`

type Postgres struct {
	pool   db.Querier
	outbox *outbox.Repository
}

func NewPostgres(pool db.Querier, ob *outbox.Repository) *Postgres {
	return &Postgres{pool: pool, outbox: ob}
}

func (p *Postgres) ListDoctors(ctx context.Context) ([]clinic.Doctor, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+doctorColumns+` FROM doctors ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []clinic.Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) GetDoctor(ctx context.Context, id string) (clinic.Doctor, error) {
	return getDoctor(ctx, p.pool, id)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getDoctor(ctx context.Context, q rowQuerier, id string) (clinic.Doctor, error) {
	d, err := scanDoctor(q.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE id = $1`, id))
	if db.IsNotFound(err) {
		return clinic.Doctor{}, ErrNotFound
	}
	return d, err
}

// ListAppointments returns every appointment dated inside r (inclusive), oldest
// insert first within a day. An empty doctorID means all doctors.
func (p *Postgres) ListAppointments(ctx context.Context, r clinic.DateRange, doctorID string) ([]clinic.Appointment, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appt_date BETWEEN $1 AND $2
			AND ($3 = '' OR doctor_id = $3)
		ORDER BY appt_date, created_at, id
	`, r.From.In(time.UTC), r.To.In(time.UTC), doctorID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (p *Postgres) ListOccupying(ctx context.Context, doctorID string, day clinic.Date) ([]clinic.Appointment, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
			AND appt_date = $2
			AND status <> 'CANCELLED'
		ORDER BY appt_time, created_at, id
	`, doctorID, day.In(time.UTC))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// InTx runs fn in a transaction and commits when it returns nil.
func (p *Postgres) InTx(ctx context.Context, fn func(Tx) error) error {
	return db.InTx(ctx, p.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx, outbox: p.outbox})
	})
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) LockDoctorDay(ctx context.Context, doctorID string, day clinic.Date) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, doctorID+"|"+day.String())
	return err
}

func (t *pgTx) GetDoctor(ctx context.Context, id string) (clinic.Doctor, error) {
	return getDoctor(ctx, t.tx, id)
}

func (t *pgTx) GetForUpdate(ctx context.Context, id string) (clinic.Appointment, error) {
	a, err := scanAppointment(t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if db.IsNotFound(err) {
		return clinic.Appointment{}, ErrNotFound
	}
	return a, err
}

func (t *pgTx) Occupying(ctx context.Context, doctorID string, day clinic.Date, excludeID string) ([]clinic.Appointment, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
			AND appt_date = $2
			AND status <> 'CANCELLED'
			AND ($3 = '' OR id::text <> $3)
	`, doctorID, day.In(time.UTC), excludeID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (t *pgTx) Insert(ctx context.Context, a clinic.Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments
			(id, patient_name, email, phone, appt_date, appt_time, status, doctor_id, customer_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.PatientName, a.Email, a.Phone, a.Date.In(time.UTC), a.Time, string(a.Status), a.DoctorID,
		nullable(a.CustomerID), a.CreatedAt, a.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (t *pgTx) Update(ctx context.Context, a clinic.Appointment) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET patient_name = $2,
			email = $3,
			phone = $4,
			appt_date = $5,
			appt_time = $6,
			status = $7,
			doctor_id = $8,
			customer_id = $9,
			updated_at = $10
		WHERE id = $1
	`, a.ID, a.PatientName, a.Email, a.Phone, a.Date.In(time.UTC), a.Time, string(a.Status), a.DoctorID,
		nullable(a.CustomerID), a.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) Delete(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) AddEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

func collectAppointments(rows pgx.Rows) ([]clinic.Appointment, error) {
	defer rows.Close()
	var out []clinic.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAppointment(row pgx.Row) (clinic.Appointment, error) {
	var (
		a      clinic.Appointment
		day    time.Time
		status string
	)
	err := row.Scan(&a.ID, &a.PatientName, &a.Email, &a.Phone, &day, &a.Time, &status,
		&a.DoctorID, &a.CustomerID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return clinic.Appointment{}, err
	}
	a.Date = clinic.DateOf(day)
	a.Status = clinic.Status(status)
	return a, nil
}

func scanDoctor(row pgx.Row) (clinic.Doctor, error) {
	var d clinic.Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Speciality, &d.Fee, &d.WorkStartHour, &d.WorkEndHour, &d.SlotMinutes)
	return d, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
