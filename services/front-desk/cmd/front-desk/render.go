package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/clinicdesk/libs/slots"
	"github.com/md-rashed-zaman/clinicdesk/services/front-desk/internal/schedule"
	"github.com/olekukonko/tablewriter"
)

var weekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(false)
	t.SetRowLine(false)
	return t
}

func doctorName(r schedule.Roster, id string) string {
	if d, ok := r.Lookup(id); ok && d.Name != "" {
		return d.Name
	}
	return id
}

func cardLine(c schedule.Card) string {
	a := c.Appointment
	at := a.TimeLabel()
	if at == "" {
		at = "--:--"
	}
	name := a.PatientName
	if c.Treatment.Strike {
		name = "~" + name + "~"
	}
	return fmt.Sprintf("%s %s %s", at, c.Treatment.Icon, name)
}

// renderDay prints one row per free slot and one per appointment. Slots added
// to fit appointments outside working hours are starred.
func renderDay(w io.Writer, v schedule.DayView, roster schedule.Roster) {
	who := "all doctors"
	if v.DoctorID != "" {
		who = doctorName(roster, v.DoctorID)
	}
	title := fmt.Sprintf("%s %s, %s", v.Date.Weekday(), v.Date, who)
	if v.ReadOnly {
		title += " (past, read-only)"
	}
	fmt.Fprintln(w, title)

	t := newTable(w, "TIME", "DOCTOR", "PATIENT", "STATUS", "ID")
	for _, s := range v.Slots {
		label := s.Label
		if !slots.InWindow(v.Window, s) {
			label += "*"
		}
		if s.Free() {
			state := "free"
			if v.ReadOnly {
				state = "-"
			}
			t.Append([]string{label, "", state, "", ""})
			continue
		}
		for i, a := range s.Appointments {
			shown := label
			if i > 0 {
				shown = ""
			}
			tr, _ := schedule.TreatmentFor(a.Status)
			t.Append([]string{shown, doctorName(roster, a.DoctorID), a.PatientName, tr.Icon + " " + tr.Label, a.ID})
		}
	}
	t.Render()
}

func cellText(c schedule.DayCell) string {
	day := strconv.Itoa(c.Date.Day)
	switch {
	case c.Today:
		day = "[" + day + "]"
	case !c.InMonth:
		day = "(" + day + ")"
	}
	lines := []string{day}
	for _, card := range c.Cards {
		lines = append(lines, cardLine(card))
	}
	if more := c.OverflowLabel(); more != "" {
		lines = append(lines, more)
	}
	return strings.Join(lines, "\n")
}

func renderMonth(w io.Writer, g schedule.MonthGrid) {
	fmt.Fprintf(w, "%s %d\n", g.Month, g.Year)
	t := newTable(w, weekdays...)
	t.SetRowLine(true)
	for _, week := range g.Weeks {
		row := make([]string, 0, len(week))
		for _, c := range week {
			row = append(row, cellText(c))
		}
		t.Append(row)
	}
	t.Render()
}

func renderWeek(w io.Writer, cells []schedule.DayCell) {
	t := newTable(w, "DAY", "DATE", "APPOINTMENTS", "MORE")
	t.SetRowLine(true)
	for i, c := range cells {
		var lines []string
		for _, card := range c.Cards {
			lines = append(lines, cardLine(card))
		}
		date := c.Date.String()
		if c.Today {
			date += " (today)"
		}
		t.Append([]string{weekdays[i%7], date, strings.Join(lines, "\n"), c.OverflowLabel()})
	}
	t.Render()
}

func renderSlots(w io.Writer, labels []string) {
	if len(labels) == 0 {
		fmt.Fprintln(w, "no free times")
		return
	}
	for _, l := range labels {
		fmt.Fprintln(w, l)
	}
}
