// Package desk is the front-desk page: one appointment store shared by the
// month, week and day views and the editor, with navigation wired between them.
package desk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/clinic"
	"github.com/md-rashed-zaman/clinicdesk/libs/metrics"
	"github.com/md-rashed-zaman/clinicdesk/libs/slots"
	"github.com/md-rashed-zaman/clinicdesk/services/front-desk/internal/availability"
	"github.com/md-rashed-zaman/clinicdesk/services/front-desk/internal/editor"
	"github.com/md-rashed-zaman/clinicdesk/services/front-desk/internal/schedule"
)

// Backend is everything the page needs from clinic-service.
type Backend interface {
	ListDoctors(ctx context.Context) ([]clinic.Doctor, error)
	schedule.Loader
	availability.SlotLister
	editor.Persistence
}

type Config struct {
	Window       slots.Window
	CellCap      int
	Location     *time.Location
	Now          func() time.Time
	FetchTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.SchedulingMetrics
}

type Page struct {
	backend Backend
	logger  *slog.Logger
	cfg     schedule.Config
	roster  schedule.Roster

	store  *schedule.Store
	day    *schedule.DaySchedule
	month  *schedule.MonthAggregator
	slots  *availability.Fetcher
	editor *editor.Editor

	mu        sync.Mutex
	visible   clinic.DateRange
	dayDoctor string
}

// New loads the doctor roster once and assembles the views. Appointments are
// loaded by the first Show call.
func New(ctx context.Context, backend Backend, cfg Config) (*Page, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	doctors, err := backend.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}

	p := &Page{
		backend: backend,
		logger:  cfg.Logger,
		roster:  schedule.Roster(doctors),
		cfg: schedule.Config{
			Window:   cfg.Window,
			CellCap:  cfg.CellCap,
			Location: cfg.Location,
			Now:      cfg.Now,
		},
	}
	intents := schedule.Intents{
		OpenAppointment: p.openAppointment,
		CreateAt:        p.createAt,
		OpenDay:         p.openDayIntent,
	}
	p.store = schedule.NewStore(backend, cfg.Logger)
	p.day = schedule.NewDaySchedule(p.store, p.roster, p.cfg, intents)
	p.month = schedule.NewMonthAggregator(p.store, p.cfg, intents)
	p.slots = availability.NewFetcher(backend, cfg.Logger, cfg.Metrics, cfg.FetchTimeout)
	p.editor = editor.New(editor.Config{
		Persistence: backend,
		Slots:       p.slots,
		Doctors:     doctors,
		Location:    cfg.Location,
		Now:         cfg.Now,
		Logger:      cfg.Logger,
		OnSaved:     p.saved,
	})
	return p, nil
}

func (p *Page) Roster() schedule.Roster                { return p.roster }
func (p *Page) Store() *schedule.Store                 { return p.store }
func (p *Page) Day() *schedule.DaySchedule             { return p.day }
func (p *Page) Month() *schedule.MonthAggregator       { return p.month }
func (p *Page) Editor() *editor.Editor                 { return p.editor }
func (p *Page) Availability() *availability.Fetcher    { return p.slots }
func (p *Page) Today() clinic.Date                     { return p.cfg.Today() }
func (p *Page) LoadError() error                       { return p.store.LoadErr() }
func (p *Page) WindowFor(doctorID string) slots.Window { return p.day.WindowFor(doctorID) }

func (p *Page) Visible() clinic.DateRange {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// Load makes r the visible range and fetches its appointments. On failure the
// calendar is empty and LoadError reports why until a Retry succeeds.
func (p *Page) Load(ctx context.Context, r clinic.DateRange) error {
	p.mu.Lock()
	p.visible = r
	p.mu.Unlock()
	return p.store.Refresh(ctx, r)
}

// Retry reloads the visible range.
func (p *Page) Retry(ctx context.Context) error {
	err := p.store.Refresh(ctx, p.Visible())
	if err == nil {
		p.day.Reload()
	}
	return err
}

func (p *Page) ShowMonth(ctx context.Context, year int, month time.Month) (schedule.MonthGrid, error) {
	err := p.Load(ctx, schedule.GridRange(year, month))
	return p.month.Month(year, month), err
}

func (p *Page) ShowWeek(ctx context.Context, anyDay clinic.Date) ([]schedule.DayCell, error) {
	err := p.Load(ctx, schedule.WeekRange(anyDay))
	return p.month.Week(anyDay), err
}

// OpenDay shows one day, loading its week first when it lies outside the
// visible range.
func (p *Page) OpenDay(ctx context.Context, date clinic.Date, doctorID string) (schedule.DayView, error) {
	p.mu.Lock()
	p.dayDoctor = doctorID
	covered := p.visible.Contains(date) && p.store.LoadErr() == nil && p.store.Version() > 0
	p.mu.Unlock()

	var err error
	if !covered {
		err = p.Load(ctx, schedule.WeekRange(date))
	}
	return p.day.Open(date, doctorID), err
}

func (p *Page) openAppointment(ctx context.Context, a clinic.Appointment) {
	if err := p.editor.OpenEdit(ctx, a); err != nil {
		p.logger.Warn("open appointment", "appointment_id", a.ID, "err", err)
	}
}

func (p *Page) createAt(ctx context.Context, date clinic.Date, label, doctorID string) {
	if err := p.editor.OpenCreate(ctx, date, label, doctorID); err != nil {
		p.logger.Warn("open booking", "date", date.String(), "time", label, "err", err)
	}
}

func (p *Page) openDayIntent(ctx context.Context, date clinic.Date) {
	p.mu.Lock()
	doctorID := p.dayDoctor
	p.mu.Unlock()
	if _, err := p.OpenDay(ctx, date, doctorID); err != nil {
		p.logger.Warn("open day", "date", date.String(), "err", err)
	}
}

// saved refreshes the store after the editor changed something, then re-derives
// the open day view.
func (p *Page) saved(ctx context.Context, op editor.Op, a clinic.Appointment) {
	if err := p.store.Refresh(ctx, p.Visible()); err != nil {
		p.logger.Warn("refresh after save", "op", string(op), "appointment_id", a.ID, "err", err)
		return
	}
	p.day.Reload()
}
