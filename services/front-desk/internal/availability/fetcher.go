// Package availability fetches a doctor's free slot labels for a date with
// last-request-wins sequencing: only the newest request may change what is shown.
package availability

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/clinic"
	"github.com/md-rashed-zaman/clinicdesk/libs/metrics"
)

// SlotLister is the persistence call behind a fetch.
type SlotLister interface {
	ListAvailableSlots(ctx context.Context, doctorID string, day clinic.Date) ([]string, error)
}

// SlotFetchError is a failed fetch. The previous slot list stays in place.
type SlotFetchError struct {
	DoctorID string
	Date     clinic.Date
	Err      error
}

func (e *SlotFetchError) Error() string {
	return fmt.Sprintf("could not load available times for %s on %s: %v", e.DoctorID, e.Date, e.Err)
}

func (e *SlotFetchError) Unwrap() error { return e.Err }

// Result of one Request. Stale results were superseded and changed nothing.
type Result struct {
	Slots []string
	Stale bool
}

// Snapshot is what the editor shows: the last good list, the pair it belongs to,
// whether a newer request is pending, and the last failure notice.
type Snapshot struct {
	DoctorID string
	Date     clinic.Date
	Slots    []string
	Pending  bool
	Err      error
}

type Fetcher struct {
	lister  SlotLister
	logger  *slog.Logger
	metrics *metrics.SchedulingMetrics
	timeout time.Duration

	mu     sync.Mutex
	token  uint64
	cancel context.CancelFunc
	state  Snapshot
}

func NewFetcher(lister SlotLister, logger *slog.Logger, m *metrics.SchedulingMetrics, timeout time.Duration) *Fetcher {
	return &Fetcher{lister: lister, logger: logger, metrics: m, timeout: timeout}
}

// Request fetches slots for (doctorID, day). Any earlier in-flight request is
// cancelled and its answer, if it still arrives, is discarded.
func (f *Fetcher) Request(ctx context.Context, doctorID string, day clinic.Date) (Result, error) {
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.token++
	token := f.token
	var reqCtx context.Context
	var cancel context.CancelFunc
	if f.timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, f.timeout)
	} else {
		reqCtx, cancel = context.WithCancel(ctx)
	}
	f.cancel = cancel
	f.state.Pending = true
	f.mu.Unlock()

	labels, err := f.lister.ListAvailableSlots(reqCtx, doctorID, day)
	if err == nil {
		err = checkLabels(labels)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	cancel()
	if token != f.token {
		f.metrics.ObserveSlotFetch("stale")
		f.logger.Debug("discarding stale slot response", "doctor_id", doctorID, "date", day.String())
		return Result{Stale: true}, nil
	}
	f.cancel = nil
	f.state.Pending = false

	if err != nil {
		f.metrics.ObserveSlotFetch("error")
		fetchErr := &SlotFetchError{DoctorID: doctorID, Date: day, Err: err}
		f.state.Err = fetchErr
		f.logger.Warn("slot fetch failed", "doctor_id", doctorID, "date", day.String(), "err", err)
		return Result{}, fetchErr
	}

	f.metrics.ObserveSlotFetch("ok")
	f.state = Snapshot{DoctorID: doctorID, Date: day, Slots: slices.Clone(labels)}
	return Result{Slots: slices.Clone(labels)}, nil
}

func (f *Fetcher) Current() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.state
	s.Slots = slices.Clone(s.Slots)
	return s
}

func (f *Fetcher) DismissError() {
	f.mu.Lock()
	f.state.Err = nil
	f.mu.Unlock()
}

// Reset drops the cached list and supersedes any in-flight request.
func (f *Fetcher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.token++
	f.state = Snapshot{}
}

// checkLabels rejects answers that are not strictly ascending HH:MM labels.
func checkLabels(labels []string) error {
	prev := -1
	for _, l := range labels {
		m, err := clinic.ParseClock(l)
		if err != nil {
			return fmt.Errorf("malformed slot label %q", l)
		}
		if m <= prev {
			return fmt.Errorf("slot labels out of order at %q", l)
		}
		prev = m
	}
	return nil
}
