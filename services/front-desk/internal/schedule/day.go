package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/clinic"
	"github.com/md-rashed-zaman/clinicdesk/libs/slots"
)

var (
	ErrReadOnly     = errors.New("day is in the past")
	ErrSlotNotFound = errors.New("no such slot on this day")
	ErrSlotOccupied = errors.New("slot is already taken")
	ErrNotOpen      = errors.New("no day is open")
	ErrNoSuchAppt   = errors.New("appointment is not on this day")
)

// Config is shared by the day and month views.
type Config struct {
	// Window is the clinic default working day.
	Window   slots.Window
	CellCap  int
	Location *time.Location
	Now      func() time.Time
}

const DefaultCellCap = 4

func (c Config) withDefaults() Config {
	if c.Window.Validate() != nil {
		c.Window = slots.Window{StartHour: 9, EndHour: 17, IntervalMinutes: 30}
	}
	if c.CellCap <= 0 {
		c.CellCap = DefaultCellCap
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Today is the current calendar day in the configured zone.
func (c Config) Today() clinic.Date {
	return clinic.DateOf(c.Now().In(c.Location))
}

// Intents are the navigation callbacks the views fire. Nil entries are ignored.
type Intents struct {
	OpenAppointment func(ctx context.Context, a clinic.Appointment)
	CreateAt        func(ctx context.Context, date clinic.Date, label string, doctorID string)
	OpenDay         func(ctx context.Context, date clinic.Date)
}

// Roster is the doctor list loaded once per page.
type Roster []clinic.Doctor

func (r Roster) Lookup(id string) (clinic.Doctor, bool) {
	for _, d := range r {
		if d.ID == id {
			return d, true
		}
	}
	return clinic.Doctor{}, false
}

// DayView is the slot timeline of one day, optionally for one doctor.
type DayView struct {
	Date     clinic.Date
	DoctorID string
	ReadOnly bool
	Window   slots.Window
	Slots    []slots.Slot
}

// Appointments returns every occupying appointment of the view in slot order.
func (v DayView) Appointments() []clinic.Appointment {
	var out []clinic.Appointment
	for _, s := range v.Slots {
		out = append(out, s.Appointments...)
	}
	return out
}

// DaySchedule derives day views from the store. It never fetches.
type DaySchedule struct {
	store   *Store
	roster  Roster
	cfg     Config
	intents Intents

	mu   sync.Mutex
	open bool
	view DayView
}

func NewDaySchedule(store *Store, roster Roster, cfg Config, intents Intents) *DaySchedule {
	return &DaySchedule{store: store, roster: roster, cfg: cfg.withDefaults(), intents: intents}
}

// WindowFor is the working window of doctorID, or the clinic default when empty
// or unknown.
func (d *DaySchedule) WindowFor(doctorID string) slots.Window {
	if doctorID == "" {
		return d.cfg.Window
	}
	doc, ok := d.roster.Lookup(doctorID)
	if !ok {
		return d.cfg.Window
	}
	return slots.ForDoctor(d.cfg.Window, doc)
}

// Open shows date, filtered to doctorID unless it is empty.
func (d *DaySchedule) Open(date clinic.Date, doctorID string) DayView {
	v := d.derive(date, doctorID)
	d.mu.Lock()
	d.open, d.view = true, v
	d.mu.Unlock()
	return v
}

// Reload re-derives the open day after the store changed.
func (d *DaySchedule) Reload() (DayView, bool) {
	d.mu.Lock()
	open, date, doctorID := d.open, d.view.Date, d.view.DoctorID
	d.mu.Unlock()
	if !open {
		return DayView{}, false
	}
	return d.Open(date, doctorID), true
}

func (d *DaySchedule) Current() (DayView, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.view, d.open
}

func (d *DaySchedule) Close() {
	d.mu.Lock()
	d.open, d.view = false, DayView{}
	d.mu.Unlock()
}

func (d *DaySchedule) derive(date clinic.Date, doctorID string) DayView {
	w := d.WindowFor(doctorID)
	return DayView{
		Date:     date,
		DoctorID: doctorID,
		ReadOnly: date.Before(d.cfg.Today()),
		Window:   w,
		Slots:    slots.Generate(w, d.store.ForDate(date, doctorID)),
	}
}

// SelectAppointment opens an appointment of the current day in the editor. The
// editor itself decides whether a past appointment is view-only.
func (d *DaySchedule) SelectAppointment(ctx context.Context, id string) error {
	v, open := d.Current()
	if !open {
		return ErrNotOpen
	}
	for _, a := range v.Appointments() {
		if a.ID == id {
			if d.intents.OpenAppointment != nil {
				d.intents.OpenAppointment(ctx, a)
			}
			return nil
		}
	}
	return ErrNoSuchAppt
}

// SelectFreeSlot starts a booking at label on the current day.
func (d *DaySchedule) SelectFreeSlot(ctx context.Context, label string) error {
	v, open := d.Current()
	if !open {
		return ErrNotOpen
	}
	if v.ReadOnly {
		return ErrReadOnly
	}
	s, ok := slots.Find(v.Slots, label)
	if !ok {
		return ErrSlotNotFound
	}
	if !s.Free() {
		return ErrSlotOccupied
	}
	if d.intents.CreateAt != nil {
		d.intents.CreateAt(ctx, v.Date, label, v.DoctorID)
	}
	return nil
}
