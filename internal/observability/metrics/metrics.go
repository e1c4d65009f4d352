package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking engine.
type BookingMetrics struct {
	transitions      *prometheus.CounterVec
	effectFailures   *prometheus.CounterVec
	reconciliations  *prometheus.CounterVec
	reconcileLatency *prometheus.HistogramVec
	assignments      *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spa",
			Subsystem: "appointments",
			Name:      "status_transitions_total",
			Help:      "Appointment status transitions applied",
		}, []string{"from", "to"}),
		effectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spa",
			Subsystem: "effects",
			Name:      "failures_total",
			Help:      "Best-effort side effects that failed or panicked",
		}, []string{"effect"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spa",
			Subsystem: "payments",
			Name:      "reconciliations_total",
			Help:      "Payment reconciliations by trigger, outcome and result",
		}, []string{"trigger", "outcome", "result"}),
		reconcileLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "spa",
			Subsystem: "payments",
			Name:      "reconcile_latency_seconds",
			Help:      "Latency of payment reconciliation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"trigger"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spa",
			Subsystem: "assignment",
			Name:      "results_total",
			Help:      "Automatic staff assignment attempts by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitions, m.effectFailures, m.reconciliations, m.reconcileLatency, m.assignments)
	return m
}

func (m *BookingMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *BookingMetrics) ObserveEffectFailure(effect string) {
	if m == nil {
		return
	}
	m.effectFailures.WithLabelValues(effect).Inc()
}

// ObserveReconcile records one reconciliation. result is "applied", "noop" or "error".
func (m *BookingMetrics) ObserveReconcile(trigger, outcome, result string, seconds float64) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(trigger, outcome, result).Inc()
	m.reconcileLatency.WithLabelValues(trigger).Observe(seconds)
}

// ObserveAssignment records an assignment attempt. result is "assigned", "single", "none" or "error".
func (m *BookingMetrics) ObserveAssignment(result string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(result).Inc()
}
