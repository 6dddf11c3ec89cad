// Package editor is the create / edit / view dialog for a single appointment.
package editor

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/clinic"
	"github.com/md-rashed-zaman/clinicdesk/services/front-desk/internal/availability"
)

// Persistence is the write side of the appointment boundary.
type Persistence interface {
	CreateAppointment(ctx context.Context, in clinic.AppointmentInput) (clinic.Appointment, error)
	UpdateAppointment(ctx context.Context, id string, patch clinic.AppointmentPatch) (clinic.Appointment, error)
	DeleteAppointment(ctx context.Context, id string) error
}

// Slots is the availability fetcher as the editor sees it.
type Slots interface {
	Request(ctx context.Context, doctorID string, day clinic.Date) (availability.Result, error)
	Current() availability.Snapshot
	Reset()
}

type Config struct {
	Persistence Persistence
	Slots       Slots
	Doctors     []clinic.Doctor
	Location    *time.Location
	Now         func() time.Time
	Logger      *slog.Logger

	// OnSaved runs after a successful save of the session that started it.
	OnSaved func(ctx context.Context, op Op, a clinic.Appointment)
}

// Draft is the form being edited.
type Draft struct {
	PatientName string
	Email       string
	Phone       string
	CustomerID  string
	DoctorID    string
	Date        clinic.Date
	Time        *string
	Status      clinic.Status
}

func (d Draft) input() clinic.AppointmentInput {
	in := clinic.AppointmentInput{
		PatientName: strings.TrimSpace(d.PatientName),
		Email:       strings.TrimSpace(d.Email),
		Phone:       strings.TrimSpace(d.Phone),
		Date:        d.Date,
		Status:      d.Status,
		DoctorID:    d.DoctorID,
		CustomerID:  strings.TrimSpace(d.CustomerID),
	}
	if d.Status != clinic.StatusCancelled && d.Time != nil {
		in.Time = clinic.StringPtr(*d.Time)
	}
	return in
}

// View is a copy of the editor state for rendering. Offered only ever holds times
// for the draft's doctor and day. After a failed fetch for a new doctor or day the
// last good list stays in Previous with the pair it belongs to, for display only.
type View struct {
	State          State
	Draft          Draft
	Original       *clinic.Appointment
	Offered        []string
	Previous       *availability.Snapshot
	TimeSelectable bool
	SlotsPending   bool
	SlotErr        error
	Errors         ValidationErrors
	SaveErr        error
}

type Editor struct {
	cfg Config

	mu       sync.Mutex
	state    State
	session  uint64
	draft    Draft
	original *clinic.Appointment
	errs     ValidationErrors
	saveErr  error
}

func New(cfg Config) *Editor {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Editor{cfg: cfg}
}

func (e *Editor) today() clinic.Date {
	return clinic.DateOf(e.cfg.Now().In(e.cfg.Location))
}

// OpenCreate starts a new booking on date at label. An empty doctorID picks the
// first doctor of the roster. The time is seeded from label and dropped only when
// a successful fetch for that doctor and day no longer offers it.
func (e *Editor) OpenCreate(ctx context.Context, date clinic.Date, label, doctorID string) error {
	if doctorID == "" && len(e.cfg.Doctors) > 0 {
		doctorID = e.cfg.Doctors[0].ID
	}

	e.mu.Lock()
	e.resetLocked()
	if err := e.fireLocked(evOpenCreate); err != nil {
		e.mu.Unlock()
		return err
	}
	e.draft = Draft{DoctorID: doctorID, Date: date, Status: clinic.StatusScheduled}
	var seed *string
	if label != "" {
		seed = clinic.StringPtr(label)
		e.draft.Time = clinic.StringPtr(label)
	}
	session := e.session
	e.mu.Unlock()

	return e.fetch(ctx, session, seed)
}

// OpenEdit opens a for editing, or read-only when it lies in the past.
func (e *Editor) OpenEdit(ctx context.Context, a clinic.Appointment) error {
	status, ok := clinic.ParseStatus(string(a.Status))
	if !ok {
		status = clinic.StatusScheduled
	}
	orig := a
	orig.Status = status
	if a.Time != nil {
		orig.Time = clinic.StringPtr(*a.Time)
	}

	ev := evOpenEdit
	if a.Date.Before(e.today()) {
		ev = evOpenView
	}

	e.mu.Lock()
	e.resetLocked()
	if err := e.fireLocked(ev); err != nil {
		e.mu.Unlock()
		return err
	}
	e.original = &orig
	e.draft = Draft{
		PatientName: a.PatientName,
		Email:       a.Email,
		Phone:       a.Phone,
		CustomerID:  a.CustomerID,
		DoctorID:    a.DoctorID,
		Date:        a.Date,
		Status:      status,
	}
	if orig.Time != nil && status != clinic.StatusCancelled {
		e.draft.Time = clinic.StringPtr(*orig.Time)
	}
	session := e.session
	fetch := ev == evOpenEdit && status != clinic.StatusCancelled
	e.mu.Unlock()

	if !fetch {
		return nil
	}
	return e.fetch(ctx, session, nil)
}

// resetLocked ends the current session and forgets its availability.
func (e *Editor) resetLocked() {
	e.session++
	e.state = Closed
	e.draft = Draft{}
	e.original = nil
	e.errs = nil
	e.saveErr = nil
	if e.cfg.Slots != nil {
		e.cfg.Slots.Reset()
	}
}

// Close discards the draft. A save still in flight finishes but is ignored.
func (e *Editor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.fireLocked(evClose); err != nil {
		return
	}
	e.resetLocked()
}

func (e *Editor) fireLocked(ev event) error {
	to, err := next(e.state, ev)
	if err != nil {
		return err
	}
	e.state = to
	return nil
}

// mutableLocked gates every draft change.
func (e *Editor) mutableLocked() error {
	switch e.state {
	case Creating, Editing:
		return nil
	case Viewing:
		return ErrReadOnly
	case Submitting:
		return ErrBusy
	default:
		return ErrNotOpen
	}
}

func (e *Editor) setField(field string, apply func(d *Draft)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.mutableLocked(); err != nil {
		return err
	}
	apply(&e.draft)
	delete(e.errs, field)
	return nil
}

func (e *Editor) SetPatientName(v string) error {
	return e.setField("patient_name", func(d *Draft) { d.PatientName = v })
}

func (e *Editor) SetEmail(v string) error {
	return e.setField("email", func(d *Draft) { d.Email = v })
}

func (e *Editor) SetPhone(v string) error {
	return e.setField("phone", func(d *Draft) { d.Phone = v })
}

func (e *Editor) SetCustomerID(v string) error {
	return e.setField("customer_id", func(d *Draft) { d.CustomerID = v })
}

// SetDoctor switches doctor and refetches availability. The chosen time survives
// only if the new doctor offers it.
func (e *Editor) SetDoctor(ctx context.Context, doctorID string) error {
	return e.moveDraft(ctx, "doctor_id", func(d *Draft) { d.DoctorID = doctorID })
}

// SetDate behaves like SetDoctor for the day.
func (e *Editor) SetDate(ctx context.Context, date clinic.Date) error {
	return e.moveDraft(ctx, "date", func(d *Draft) { d.Date = date })
}

func (e *Editor) moveDraft(ctx context.Context, field string, apply func(d *Draft)) error {
	e.mu.Lock()
	if err := e.mutableLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	apply(&e.draft)
	delete(e.errs, field)
	if e.draft.Status == clinic.StatusCancelled {
		e.mu.Unlock()
		return nil
	}
	prior := e.draft.Time
	e.draft.Time = nil
	delete(e.errs, "time")
	session := e.session
	e.mu.Unlock()

	return e.fetch(ctx, session, prior)
}

// SetStatus changes the status. CANCELLED drops the time and hides the time
// picker; leaving CANCELLED fetches availability again.
func (e *Editor) SetStatus(ctx context.Context, s clinic.Status) error {
	e.mu.Lock()
	if err := e.mutableLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	parsed, ok := clinic.ParseStatus(string(s))
	if !ok {
		e.setErrLocked("status", "unknown status")
		errs := e.errsCopyLocked()
		e.mu.Unlock()
		return errs
	}
	prev := e.draft.Status
	e.draft.Status = parsed
	delete(e.errs, "status")
	if parsed == clinic.StatusCancelled {
		e.draft.Time = nil
		delete(e.errs, "time")
		e.mu.Unlock()
		return nil
	}
	session := e.session
	refetch := prev == clinic.StatusCancelled
	e.mu.Unlock()

	if !refetch {
		return nil
	}
	return e.fetch(ctx, session, nil)
}

// SetTime picks one of the offered slots.
func (e *Editor) SetTime(label string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.mutableLocked(); err != nil {
		return err
	}
	if e.draft.Status == clinic.StatusCancelled {
		e.setErrLocked("time", "a cancelled appointment has no time")
		return e.errsCopyLocked()
	}
	if !slices.Contains(e.offeredLocked(), label) {
		e.setErrLocked("time", "time "+label+" is not available")
		return e.errsCopyLocked()
	}
	e.draft.Time = clinic.StringPtr(label)
	delete(e.errs, "time")
	return nil
}

// RefreshSlots refetches availability for the current doctor and date, keeping
// the selected time when it is still free.
func (e *Editor) RefreshSlots(ctx context.Context) error {
	e.mu.Lock()
	if err := e.mutableLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.draft.Status == clinic.StatusCancelled {
		e.mu.Unlock()
		return nil
	}
	prior := e.draft.Time
	session := e.session
	e.mu.Unlock()

	return e.fetch(ctx, session, prior)
}

// fetch asks for the draft's availability. Once a successful answer belongs to
// the same session and draft, want is selected if offered and dropped otherwise.
// A failed fetch leaves the draft's time alone.
func (e *Editor) fetch(ctx context.Context, session uint64, want *string) error {
	e.mu.Lock()
	doctorID, day := e.draft.DoctorID, e.draft.Date
	e.mu.Unlock()
	if doctorID == "" || day.IsZero() || e.cfg.Slots == nil {
		return nil
	}

	res, err := e.cfg.Slots.Request(ctx, doctorID, day)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != session || res.Stale || e.draft.DoctorID != doctorID || e.draft.Date != day {
		return nil
	}
	if err != nil {
		return err
	}
	if want == nil {
		return nil
	}
	if slices.Contains(e.offeredLocked(), *want) {
		e.draft.Time = clinic.StringPtr(*want)
	} else if e.draft.Time != nil && *e.draft.Time == *want {
		e.draft.Time = nil
	}
	return nil
}

// offeredLocked lists the times that may be picked: the fetched list when it is
// for the draft's doctor and day, plus the appointment's own time when the draft
// still points at its original doctor and day.
func (e *Editor) offeredLocked() []string {
	var out []string
	if e.cfg.Slots != nil {
		snap := e.cfg.Slots.Current()
		if snap.DoctorID == e.draft.DoctorID && snap.Date == e.draft.Date {
			out = append(out, snap.Slots...)
		}
	}
	if o := e.original; o != nil && o.Occupies() && o.DoctorID == e.draft.DoctorID && o.Date == e.draft.Date {
		if !slices.Contains(out, *o.Time) {
			out = append(out, *o.Time)
			slices.SortFunc(out, func(a, b string) int {
				ma, _ := clinic.ParseClock(a)
				mb, _ := clinic.ParseClock(b)
				return ma - mb
			})
		}
	}
	return out
}

func (e *Editor) setErrLocked(field, msg string) {
	if e.errs == nil {
		e.errs = ValidationErrors{}
	}
	e.errs[field] = msg
}

func (e *Editor) errsCopyLocked() ValidationErrors {
	if len(e.errs) == 0 {
		return nil
	}
	out := make(ValidationErrors, len(e.errs))
	for k, v := range e.errs {
		out[k] = v
	}
	return out
}

func (e *Editor) TimeSelectable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mutableLocked() == nil && e.draft.Status != clinic.StatusCancelled
}

// CanSubmit reports whether Submit would reach the server.
func (e *Editor) CanSubmit() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mutableLocked() == nil && len(e.validateLocked()) == 0
}

func (e *Editor) validateLocked() ValidationErrors {
	d := e.draft
	errs := ValidationErrors{}
	if strings.TrimSpace(d.PatientName) == "" {
		errs["patient_name"] = "patient name is required"
	}
	if email := strings.TrimSpace(d.Email); email != "" && !clinic.ValidEmail(email) {
		errs["email"] = "email address is not valid"
	}
	if phone := strings.TrimSpace(d.Phone); phone != "" && !clinic.ValidPhone(phone) {
		errs["phone"] = "phone number is not valid"
	}
	switch {
	case d.DoctorID == "":
		errs["doctor_id"] = "choose a doctor"
	case len(e.cfg.Doctors) > 0 && !slices.ContainsFunc(e.cfg.Doctors, func(doc clinic.Doctor) bool { return doc.ID == d.DoctorID }):
		errs["doctor_id"] = "unknown doctor"
	}
	if d.Date.IsZero() {
		errs["date"] = "date is required"
	} else if d.Date.Before(e.today()) && (e.original == nil || d.Date != e.original.Date) {
		errs["date"] = "date is in the past"
	}
	if d.Status != clinic.StatusCancelled && (d.Time == nil || *d.Time == "") {
		errs["time"] = "choose a time"
	}
	return errs
}

// patchLocked lists only what changed against the original appointment.
func (e *Editor) patchLocked() clinic.AppointmentPatch {
	was := e.original.Input()
	now := e.draft.input()
	var p clinic.AppointmentPatch
	if now.PatientName != was.PatientName {
		p.PatientName = clinic.StringPtr(now.PatientName)
	}
	if now.Email != was.Email {
		p.Email = clinic.StringPtr(now.Email)
	}
	if now.Phone != was.Phone {
		p.Phone = clinic.StringPtr(now.Phone)
	}
	if now.CustomerID != was.CustomerID {
		p.CustomerID = clinic.StringPtr(now.CustomerID)
	}
	if now.DoctorID != was.DoctorID {
		p.DoctorID = clinic.StringPtr(now.DoctorID)
	}
	if now.Date != was.Date {
		date := now.Date
		p.Date = &date
	}
	if now.Status != was.Status {
		status := now.Status
		p.Status = &status
	}
	if now.Time != nil && (was.Time == nil || *now.Time != *was.Time) {
		p.Time = clinic.StringPtr(*now.Time)
	}
	return p
}

// Submit validates the draft and makes exactly one create or update call. On
// failure the editor returns to the form with the draft intact.
func (e *Editor) Submit(ctx context.Context) (clinic.Appointment, error) {
	e.mu.Lock()
	if err := e.mutableLocked(); err != nil {
		e.mu.Unlock()
		return clinic.Appointment{}, err
	}
	if errs := e.validateLocked(); len(errs) > 0 {
		e.errs = errs
		e.mu.Unlock()
		return clinic.Appointment{}, errs
	}

	op, failed, done := OpCreate, evCreateFailed, evCreated
	var id string
	var patch clinic.AppointmentPatch
	in := e.draft.input()
	if e.state == Editing {
		op, failed, done = OpUpdate, evUpdateFailed, evUpdated
		id = e.original.ID
		patch = e.patchLocked()
	}
	if op == OpUpdate && patch.IsEmpty() {
		a := *e.original
		e.resetLocked()
		e.mu.Unlock()
		return a, nil
	}
	if err := e.fireLocked(evSubmit); err != nil {
		e.mu.Unlock()
		return clinic.Appointment{}, err
	}
	e.saveErr = nil
	session := e.session
	e.mu.Unlock()

	callCtx := context.WithoutCancel(ctx)
	var saved clinic.Appointment
	var err error
	if op == OpCreate {
		saved, err = e.cfg.Persistence.CreateAppointment(callCtx, in)
	} else {
		saved, err = e.cfg.Persistence.UpdateAppointment(callCtx, id, patch)
	}
	return saved, e.finish(ctx, session, op, failed, done, saved, err)
}

// Delete removes the appointment being edited.
func (e *Editor) Delete(ctx context.Context) error {
	e.mu.Lock()
	if e.state != Editing {
		err := e.mutableLocked()
		if err == nil {
			err = ErrNotOpen
		}
		e.mu.Unlock()
		return err
	}
	if err := e.fireLocked(evDelete); err != nil {
		e.mu.Unlock()
		return err
	}
	e.saveErr = nil
	deleted := *e.original
	session := e.session
	e.mu.Unlock()

	err := e.cfg.Persistence.DeleteAppointment(context.WithoutCancel(ctx), deleted.ID)
	return e.finish(ctx, session, OpDelete, evDeleteFailed, evDeleted, deleted, err)
}

func (e *Editor) finish(ctx context.Context, session uint64, op Op, failed, done event, a clinic.Appointment, err error) error {
	e.mu.Lock()
	if e.session != session {
		e.mu.Unlock()
		e.cfg.Logger.Info("save finished after editor closed", "op", string(op), "err", err)
		return ErrSessionClosed
	}
	if err != nil {
		_ = e.fireLocked(failed)
		pe := &PersistenceError{Op: op, Err: err}
		e.saveErr = pe
		for field, msg := range pe.Fields() {
			e.setErrLocked(field, msg)
		}
		e.mu.Unlock()
		e.cfg.Logger.Warn("appointment save failed", "op", string(op), "err", err)
		return pe
	}
	_ = e.fireLocked(done)
	e.resetLocked()
	e.mu.Unlock()

	e.cfg.Logger.Info("appointment saved", "op", string(op), "appointment_id", a.ID)
	if e.cfg.OnSaved != nil {
		e.cfg.OnSaved(ctx, op, a)
	}
	return nil
}

func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Editor) Snapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := View{
		State:          e.state,
		Draft:          e.draft,
		TimeSelectable: e.mutableLocked() == nil && e.draft.Status != clinic.StatusCancelled,
		Errors:         e.errsCopyLocked(),
		SaveErr:        e.saveErr,
	}
	if e.draft.Time != nil {
		v.Draft.Time = clinic.StringPtr(*e.draft.Time)
	}
	if e.original != nil {
		o := *e.original
		v.Original = &o
	}
	if e.state != Closed && e.state != Viewing {
		v.Offered = e.offeredLocked()
		if e.cfg.Slots != nil {
			snap := e.cfg.Slots.Current()
			v.SlotsPending = snap.Pending
			v.SlotErr = snap.Err
			if snap.DoctorID != "" && (snap.DoctorID != e.draft.DoctorID || snap.Date != e.draft.Date) {
				v.Previous = &snap
			}
		}
	}
	return v
}
