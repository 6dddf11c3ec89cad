// Package schedule derives the day and month views from one page-owned
// appointment store. Views never fetch; they select from the store.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/md-rashed-zaman/clinicdesk/libs/clinic"
)

// Loader is the listAppointments persistence call.
type Loader interface {
	ListAppointments(ctx context.Context, r clinic.DateRange) ([]clinic.Appointment, error)
}

// LoadError is a failed refresh. The store is left empty for its range.
type LoadError struct {
	Range clinic.DateRange
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("could not load appointments %s..%s: %v", e.Range.From, e.Range.To, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Store holds the appointments of the visible range. Refresh is its only writer.
type Store struct {
	loader Loader
	logger *slog.Logger

	mu      sync.RWMutex
	seq     uint64
	rng     clinic.DateRange
	appts   []clinic.Appointment
	loadErr error
	version uint64
}

func NewStore(loader Loader, logger *slog.Logger) *Store {
	return &Store{loader: loader, logger: logger}
}

// Refresh replaces the contents with the appointments of r. When refreshes
// overlap, the one started last wins.
func (s *Store) Refresh(ctx context.Context, r clinic.DateRange) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	appts, err := s.loader.ListAppointments(ctx, r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		return nil
	}
	s.rng = r
	s.version++
	if err != nil {
		s.appts = nil
		s.loadErr = &LoadError{Range: r, Err: err}
		s.logger.Warn("appointment load failed", "from", r.From.String(), "to", r.To.String(), "err", err)
		return s.loadErr
	}
	s.appts = slices.Clone(appts)
	s.loadErr = nil
	return nil
}

func (s *Store) Range() clinic.DateRange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rng
}

// LoadErr is the failure of the latest refresh, nil after a good one.
func (s *Store) LoadErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

// Version increases with every completed refresh.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) All() []clinic.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.appts)
}

// ForDate returns the appointments bucketed on day in load order. An empty
// doctorID means every doctor.
func (s *Store) ForDate(day clinic.Date, doctorID string) []clinic.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []clinic.Appointment
	for _, a := range s.appts {
		if a.Date == day && (doctorID == "" || a.DoctorID == doctorID) {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) Find(id string) (clinic.Appointment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.appts {
		if a.ID == id {
			return a, true
		}
	}
	return clinic.Appointment{}, false
}
