package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SchedulingMetrics counts appointment writes and slot lookups on both sides of the
// persistence boundary. A nil *SchedulingMetrics is a valid no-op.
type SchedulingMetrics struct {
	mutations           *prometheus.CounterVec
	availability        *prometheus.CounterVec
	availabilityLatency prometheus.Histogram
	slotFetches         *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicdesk",
			Subsystem: "appointments",
			Name:      "mutations_total",
			Help:      "Appointment create/update/delete calls by outcome",
		}, []string{"op", "outcome"}),
		availability: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicdesk",
			Subsystem: "appointments",
			Name:      "availability_queries_total",
			Help:      "Available slot queries served by outcome",
		}, []string{"outcome"}),
		availabilityLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinicdesk",
			Subsystem: "appointments",
			Name:      "availability_latency_seconds",
			Help:      "Latency of available slot computation",
			Buckets:   prometheus.DefBuckets,
		}),
		slotFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicdesk",
			Subsystem: "frontdesk",
			Name:      "slot_fetches_total",
			Help:      "Client slot fetches by result (ok, error, stale)",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.mutations, m.availability, m.availabilityLatency, m.slotFetches)
	return m
}

func (m *SchedulingMetrics) ObserveMutation(op, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveAvailability(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.availability.WithLabelValues(outcome).Inc()
	m.availabilityLatency.Observe(seconds)
}

func (m *SchedulingMetrics) ObserveSlotFetch(result string) {
	if m == nil {
		return
	}
	m.slotFetches.WithLabelValues(result).Inc()
}

// Handler exposes g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
