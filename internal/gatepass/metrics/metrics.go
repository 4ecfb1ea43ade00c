package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the gate-pass module.
type Metrics struct {
	// Successful state changes by target status
	Transitions *prometheus.CounterVec

	// Transitions refused because another caller won the race or the
	// record had already moved on
	StaleTransitions *prometheus.CounterVec

	// Guest code redemptions by outcome
	Redemptions *prometheus.CounterVec

	OperationLatency *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_visitor_transitions_total",
			Help: "Visitor status transitions by target status",
		}, []string{"to"}),

		StaleTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_visitor_stale_transitions_total",
			Help: "Visitor transitions refused with an invalid state, by operation",
		}, []string{"op"}),

		Redemptions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_guest_pass_redemptions_total",
			Help: "Guest pass redemption attempts by outcome",
		}, []string{"outcome"}), // outcome: "verified", "invalid", "expired"

		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatehouse_visitor_operation_duration_seconds",
			Help:    "Duration of gate-pass operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"op"}),
	}
}

func (m *Metrics) IncrementTransition(to string) {
	if m != nil {
		m.Transitions.WithLabelValues(to).Inc()
	}
}

func (m *Metrics) IncrementStale(op string) {
	if m != nil {
		m.StaleTransitions.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) IncrementRedemption(outcome string) {
	if m != nil {
		m.Redemptions.WithLabelValues(outcome).Inc()
	}
}

// ObserveOperation records how long op took.
func (m *Metrics) ObserveOperation(op string, d time.Duration) {
	if m != nil {
		m.OperationLatency.WithLabelValues(op).Observe(d.Seconds())
	}
}
