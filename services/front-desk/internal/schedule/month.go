package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/clinic"
)

// Card is one appointment drawn in a calendar cell.
type Card struct {
	Appointment clinic.Appointment
	Treatment   Treatment
}

// DayCell is one day of the month or week grid. Cards holds at most the cell cap;
// Overflow counts the rest.
type DayCell struct {
	Date     clinic.Date
	InMonth  bool
	Past     bool
	Today    bool
	Cards    []Card
	Overflow int
	Total    int
}

// OverflowLabel is "+N more", or empty when everything fits.
func (c DayCell) OverflowLabel() string {
	if c.Overflow <= 0 {
		return ""
	}
	return fmt.Sprintf("+%d more", c.Overflow)
}

// MonthGrid is six Monday-first weeks covering the month.
type MonthGrid struct {
	Year  int
	Month time.Month
	Weeks [6][7]DayCell
}

// GridRange is the span of dates a month grid shows, adjacent-month days included.
func GridRange(year int, month time.Month) clinic.DateRange {
	first := clinic.NewDate(year, month, 1)
	start := weekStart(first)
	return clinic.DateRange{From: start, To: start.AddDays(6*7 - 1)}
}

// WeekRange is the Monday-to-Sunday week containing day.
func WeekRange(day clinic.Date) clinic.DateRange {
	start := weekStart(day)
	return clinic.DateRange{From: start, To: start.AddDays(6)}
}

func weekStart(d clinic.Date) clinic.Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

// MonthAggregator groups the store by day for the calendar.
type MonthAggregator struct {
	store   *Store
	cfg     Config
	intents Intents
}

func NewMonthAggregator(store *Store, cfg Config, intents Intents) *MonthAggregator {
	return &MonthAggregator{store: store, cfg: cfg.withDefaults(), intents: intents}
}

func (m *MonthAggregator) Month(year int, month time.Month) MonthGrid {
	g := MonthGrid{Year: year, Month: month}
	day := GridRange(year, month).From
	today := m.cfg.Today()
	for w := range g.Weeks {
		for i := range g.Weeks[w] {
			c := m.cell(day, today)
			c.InMonth = day.Year == year && day.Month == month
			g.Weeks[w][i] = c
			day = day.AddDays(1)
		}
	}
	return g
}

func (m *MonthAggregator) Week(anyDay clinic.Date) []DayCell {
	r := WeekRange(anyDay)
	today := m.cfg.Today()
	out := make([]DayCell, 0, 7)
	for day := r.From; !r.To.Before(day); day = day.AddDays(1) {
		c := m.cell(day, today)
		c.InMonth = true
		out = append(out, c)
	}
	return out
}

// Cell builds a single day outside of any grid.
func (m *MonthAggregator) Cell(day clinic.Date) DayCell {
	c := m.cell(day, m.cfg.Today())
	c.InMonth = true
	return c
}

func (m *MonthAggregator) cell(day, today clinic.Date) DayCell {
	cards := SortedCards(m.store.ForDate(day, ""))
	c := DayCell{
		Date:  day,
		Past:  day.Before(today),
		Today: day == today,
		Total: len(cards),
	}
	if len(cards) > m.cfg.CellCap {
		c.Overflow = len(cards) - m.cfg.CellCap
		cards = cards[:m.cfg.CellCap]
	}
	c.Cards = cards
	return c
}

// SortedCards orders appointments by time, untimed last, keeping the input order
// among equal times.
func SortedCards(appts []clinic.Appointment) []Card {
	cards := make([]Card, 0, len(appts))
	for _, a := range appts {
		t, _ := TreatmentFor(a.Status)
		cards = append(cards, Card{Appointment: a, Treatment: t})
	}
	sort.SliceStable(cards, func(i, j int) bool {
		mi, iok := cards[i].Appointment.Minutes()
		mj, jok := cards[j].Appointment.Minutes()
		switch {
		case iok && jok:
			return mi < mj
		default:
			return iok && !jok
		}
	})
	return cards
}

// ClickBackground opens the day schedule for today or a later day. It reports
// whether anything opened; past days stay closed.
func (m *MonthAggregator) ClickBackground(ctx context.Context, day clinic.Date) bool {
	if day.Before(m.cfg.Today()) {
		return false
	}
	m.openDay(ctx, day)
	return true
}

// ClickOverflow opens the day schedule so every appointment of the day is visible.
// Past days open too, read-only.
func (m *MonthAggregator) ClickOverflow(ctx context.Context, day clinic.Date) {
	m.openDay(ctx, day)
}

// ClickCard goes straight to the editor for a.
func (m *MonthAggregator) ClickCard(ctx context.Context, a clinic.Appointment) {
	if m.intents.OpenAppointment != nil {
		m.intents.OpenAppointment(ctx, a)
	}
}

func (m *MonthAggregator) openDay(ctx context.Context, day clinic.Date) {
	if m.intents.OpenDay != nil {
		m.intents.OpenDay(ctx, day)
	}
}
