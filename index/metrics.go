package index

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are reported by an open index. A nil *Metrics is valid and
// reports nothing.
type Metrics struct {
	partsOpened *prometheus.CounterVec
	iterators   *prometheus.CounterVec
	unsupported *prometheus.CounterVec
}

// NewMetrics registers index metrics with reg. It returns nil if reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	return &Metrics{
		partsOpened: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "snindex",
			Name:      "parts_opened_total",
			Help:      "Number of index parts opened, by part type",
		}, []string{"type"}),
		iterators: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "snindex",
			Name:      "iterators_created_total",
			Help:      "Number of iterators created, by operator",
		}, []string{"operator"}),
		unsupported: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "snindex",
			Name:      "unsupported_operators_total",
			Help:      "Number of iterator requests for operators no part supports",
		}, []string{"operator"}),
	}
}

func (m *Metrics) partOpened(t PartType) {
	if m != nil {
		m.partsOpened.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) iteratorCreated(op string) {
	if m != nil {
		m.iterators.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) unsupportedOperator(op string) {
	if m != nil {
		m.unsupported.WithLabelValues(op).Inc()
	}
}
