package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts push outcomes.
type Metrics struct {
	Deliveries *prometheus.CounterVec
	Dropped    prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Deliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_push_deliveries_total",
			Help: "Push deliveries by outcome",
		}, []string{"outcome"}), // outcome: "sent", "failed"

		Dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_push_dropped_total",
			Help: "Push messages dropped because the worker pool was saturated",
		}),
	}
}

func (m *Metrics) observe(res Result) {
	if m != nil {
		m.Deliveries.WithLabelValues("sent").Add(float64(res.SuccessCount()))
		m.Deliveries.WithLabelValues("failed").Add(float64(res.FailureCount()))
	}
}

func (m *Metrics) incDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}
