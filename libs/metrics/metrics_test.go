package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSchedulingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)
	m.ObserveMutation("create", "ok")
	m.ObserveMutation("create", "ok")
	m.ObserveMutation("update", "conflict")
	m.ObserveAvailability("ok", 0.01)
	m.ObserveSlotFetch("stale")

	if got := testutil.ToFloat64(m.mutations.WithLabelValues("create", "ok")); got != 2 {
		t.Fatalf("expected 2 creates, got %v", got)
	}
	if got := testutil.ToFloat64(m.slotFetches.WithLabelValues("stale")); got != 1 {
		t.Fatalf("expected 1 stale fetch, got %v", got)
	}
}

func TestSchedulingMetricsNilSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveMutation("delete", "ok")
	m.ObserveAvailability("error", 0.2)
	m.ObserveSlotFetch("ok")
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewSchedulingMetrics(reg).ObserveMutation("create", "ok")

	rw := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), "clinicdesk_appointments_mutations_total") {
		t.Fatalf("expected mutation counter in output")
	}
}
