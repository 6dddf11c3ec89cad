// Package slots turns a working window and a day's appointments into the ordered
// slot timeline shown on the schedule.
//
// Occupancy computed here is an optimistic display aid. It is not a booking guarantee:
// clinic-service performs the authoritative conflict check on create and update.
package slots

import (
	"errors"
	"sort"

	"github.com/md-rashed-zaman/clinicdesk/libs/clinic"
)

// Window is a working day in whole hours, end exclusive.
type Window struct {
	StartHour       int
	EndHour         int
	IntervalMinutes int
}

func (w Window) Validate() error {
	if w.IntervalMinutes <= 0 {
		return errors.New("slot interval must be positive")
	}
	if w.StartHour < 0 || w.EndHour > 24 {
		return errors.New("working hours must be within 0-24")
	}
	if w.EndHour <= w.StartHour {
		return errors.New("working hours end must be after start")
	}
	return nil
}

// Slot is one interval-wide bucket [Start, End) in minutes after midnight.
type Slot struct {
	Label        string
	Start        int
	End          int
	Appointments []clinic.Appointment
}

func (s Slot) Free() bool { return len(s.Appointments) == 0 }

// Bounds returns the effective [start, end) in minutes after the window has been
// stretched to cover every occupying appointment.
func Bounds(w Window, appts []clinic.Appointment) (int, int) {
	start, end := w.StartHour*60, w.EndHour*60
	step := w.IntervalMinutes

	earliest, latest, any := -1, -1, false
	for _, a := range appts {
		m, ok := occupyingMinutes(a)
		if !ok {
			continue
		}
		if !any || m < earliest {
			earliest = m
		}
		if !any || m > latest {
			latest = m
		}
		any = true
	}
	if !any {
		return start, end
	}

	if latest >= end {
		end = extendEnd(start, latest, step)
	}
	if earliest < start {
		start = extendStart(start, earliest, step)
	}
	return start, end
}

// extendEnd finds the first whole hour after latest that lands on a slot boundary.
// Past midnight it falls back to the first slot boundary after latest.
func extendEnd(start, latest, step int) int {
	for h := latest/60 + 1; h <= 24; h++ {
		if (h*60-start)%step == 0 {
			return h * 60
		}
	}
	n := (latest-start)/step + 1
	return start + n*step
}

// extendStart finds the last whole hour at or before earliest that lands on a slot
// boundary. When none exists it steps back whole slots, never before midnight.
func extendStart(start, earliest, step int) int {
	for h := earliest / 60; h >= 0; h-- {
		if (start-h*60)%step == 0 {
			return h * 60
		}
	}
	n := (start - earliest + step - 1) / step
	return max(start-n*step, 0)
}

// Generate lays out the slots for one day. Every occupying appointment lands in exactly
// one slot; cancelled or untimed appointments are ignored. Within a slot appointments are
// ordered by time, then by their position in appts. Invalid windows yield nil.
func Generate(w Window, appts []clinic.Appointment) []Slot {
	if w.Validate() != nil {
		return nil
	}
	start, end := Bounds(w, appts)
	step := w.IntervalMinutes

	var out []Slot
	for t := start; t < end; t += step {
		out = append(out, Slot{
			Label: clinic.ClockLabel(t),
			Start: t,
			End:   t + step,
		})
	}

	type placed struct {
		minutes int
		appt    clinic.Appointment
	}
	buckets := make([][]placed, len(out))
	for _, a := range appts {
		m, ok := occupyingMinutes(a)
		if !ok {
			continue
		}
		idx := (m - start) / step
		buckets[idx] = append(buckets[idx], placed{minutes: m, appt: a})
	}
	for i, b := range buckets {
		if len(b) == 0 {
			continue
		}
		sort.SliceStable(b, func(x, y int) bool { return b[x].minutes < b[y].minutes })
		out[i].Appointments = make([]clinic.Appointment, 0, len(b))
		for _, p := range b {
			out[i].Appointments = append(out[i].Appointments, p.appt)
		}
	}
	return out
}

// FreeLabels lists the labels of slots nobody occupies, in order.
func FreeLabels(slots []Slot) []string {
	var out []string
	for _, s := range slots {
		if s.Free() {
			out = append(out, s.Label)
		}
	}
	return out
}

// Find returns the slot whose label matches.
func Find(slots []Slot, label string) (Slot, bool) {
	for _, s := range slots {
		if s.Label == label {
			return s, true
		}
	}
	return Slot{}, false
}

func occupyingMinutes(a clinic.Appointment) (int, bool) {
	if !a.Occupies() {
		return 0, false
	}
	return a.Minutes()
}

// ForDoctor applies a doctor's own working hours over the clinic default. Zero
// fields, or an override that does not form a valid window, keep the default.
func ForDoctor(def Window, d clinic.Doctor) Window {
	w := def
	if d.WorkStartHour > 0 || d.WorkEndHour > 0 {
		w.StartHour, w.EndHour = d.WorkStartHour, d.WorkEndHour
	}
	if d.SlotMinutes > 0 {
		w.IntervalMinutes = d.SlotMinutes
	}
	if w.Validate() != nil {
		return def
	}
	return w
}

// InWindow reports whether s starts inside the nominal window, before any extension.
func InWindow(w Window, s Slot) bool {
	return s.Start >= w.StartHour*60 && s.Start < w.EndHour*60
}
