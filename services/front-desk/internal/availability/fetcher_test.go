package availability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/clinic"
	"github.com/md-rashed-zaman/clinicdesk/libs/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	doctorID string
	reply    chan reply
}

type reply struct {
	labels []string
	err    error
}

// gatedLister parks every call until the test answers it, ignoring cancellation
// like a server that already committed to a response.
type gatedLister struct {
	calls chan call
}

func (g *gatedLister) ListAvailableSlots(_ context.Context, doctorID string, _ clinic.Date) ([]string, error) {
	c := call{doctorID: doctorID, reply: make(chan reply, 1)}
	g.calls <- c
	r := <-c.reply
	return r.labels, r.err
}

type staticLister struct {
	labels []string
	err    error
}

func (s staticLister) ListAvailableSlots(context.Context, string, clinic.Date) ([]string, error) {
	return s.labels, s.err
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var day = clinic.NewDate(2024, 6, 10)

func TestOutOfOrderResponsesKeepLatest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewSchedulingMetrics(reg)
	lister := &gatedLister{calls: make(chan call)}
	f := NewFetcher(lister, discard(), m, 0)

	var wg sync.WaitGroup
	var resA, resB Result
	var errA, errB error

	wg.Add(1)
	go func() {
		defer wg.Done()
		resA, errA = f.Request(context.Background(), "A", day)
	}()
	callA := <-lister.calls

	wg.Add(1)
	go func() {
		defer wg.Done()
		resB, errB = f.Request(context.Background(), "B", day)
	}()
	callB := <-lister.calls
	require.Equal(t, "A", callA.doctorID)
	require.Equal(t, "B", callB.doctorID)

	// B resolves first, then the slower A.
	callB.reply <- reply{labels: []string{"11:00", "11:30"}}
	require.Eventually(t, func() bool { return !f.Current().Pending }, time.Second, time.Millisecond)
	callA.reply <- reply{labels: []string{"09:00"}}
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.True(t, resA.Stale)
	assert.False(t, resB.Stale)

	snap := f.Current()
	assert.Equal(t, "B", snap.DoctorID)
	assert.Equal(t, []string{"11:00", "11:30"}, snap.Slots)
	expected := `
# HELP clinicdesk_frontdesk_slot_fetches_total Client slot fetches by result (ok, error, stale)
# TYPE clinicdesk_frontdesk_slot_fetches_total counter
clinicdesk_frontdesk_slot_fetches_total{result="ok"} 1
clinicdesk_frontdesk_slot_fetches_total{result="stale"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "clinicdesk_frontdesk_slot_fetches_total"))
}

func TestStaleFailureIsSilent(t *testing.T) {
	lister := &gatedLister{calls: make(chan call)}
	f := NewFetcher(lister, discard(), nil, 0)

	done := make(chan error, 1)
	go func() {
		_, err := f.Request(context.Background(), "A", day)
		done <- err
	}()
	callA := <-lister.calls

	go func() { _, _ = f.Request(context.Background(), "B", day) }()
	callB := <-lister.calls
	callA.reply <- reply{err: errors.New("boom")}
	require.NoError(t, <-done)
	assert.Nil(t, f.Current().Err)

	callB.reply <- reply{labels: []string{"10:00"}}
	require.Eventually(t, func() bool { return !f.Current().Pending }, time.Second, time.Millisecond)
}

func TestFailureKeepsPreviousList(t *testing.T) {
	lister := &staticLister{labels: []string{"09:00", "09:30"}}
	f := NewFetcher(lister, discard(), nil, 0)

	_, err := f.Request(context.Background(), "d1", day)
	require.NoError(t, err)

	lister.labels, lister.err = nil, errors.New("503")
	_, err = f.Request(context.Background(), "d1", day.AddDays(1))
	var fetchErr *SlotFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, day.AddDays(1), fetchErr.Date)

	snap := f.Current()
	assert.Equal(t, []string{"09:00", "09:30"}, snap.Slots)
	assert.Equal(t, day, snap.Date)
	assert.Error(t, snap.Err)

	f.DismissError()
	assert.Nil(t, f.Current().Err)
}

func TestMalformedResponseIsFetchError(t *testing.T) {
	for _, labels := range [][]string{{"9am"}, {"10:00", "09:30"}, {"10:00", "10:00"}} {
		f := NewFetcher(staticLister{labels: labels}, discard(), nil, 0)
		_, err := f.Request(context.Background(), "d1", day)
		var fetchErr *SlotFetchError
		assert.ErrorAs(t, err, &fetchErr, "labels %v", labels)
	}
}

func TestResetClearsState(t *testing.T) {
	f := NewFetcher(staticLister{labels: []string{"09:00"}}, discard(), nil, time.Second)
	_, err := f.Request(context.Background(), "d1", day)
	require.NoError(t, err)

	f.Reset()
	assert.Equal(t, Snapshot{}, f.Current())
}
