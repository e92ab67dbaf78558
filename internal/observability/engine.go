package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics counts order lifecycle activity. It satisfies the metrics
// port of the lpo service.
type EngineMetrics struct {
	transitions *prometheus.CounterVec
	receipts    prometheus.Counter
	lines       prometheus.Counter
	assets      prometheus.Counter
	rejected    *prometheus.CounterVec
}

// NewEngineMetrics registers the engine collectors on registerer.
func NewEngineMetrics(registerer prometheus.Registerer) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &EngineMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lpo_status_transitions_total",
			Help: "Committed order status transitions.",
		}, []string{"from", "to"}),
		receipts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lpo_receipts_total",
			Help: "Committed goods-receipt requests.",
		}),
		lines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lpo_receipt_lines_total",
			Help: "Order lines covered by committed receipts.",
		}),
		assets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lpo_assets_created_total",
			Help: "Assets registered from receipts.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lpo_operations_rejected_total",
			Help: "Order operations that failed, by operation and error kind.",
		}, []string{"op", "kind"}),
	}
	registerer.MustRegister(m.transitions, m.receipts, m.lines, m.assets, m.rejected)
	return m
}

// ObserveTransition counts a committed status change. An empty from marks a
// newly created order.
func (m *EngineMetrics) ObserveTransition(from, to string) {
	if from == "" {
		from = "NEW"
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// ObserveReceipt counts one receipt request.
func (m *EngineMetrics) ObserveReceipt(lines, assets int) {
	m.receipts.Inc()
	m.lines.Add(float64(lines))
	m.assets.Add(float64(assets))
}

// ObserveRejected counts a failed operation.
func (m *EngineMetrics) ObserveRejected(op, kind string) {
	m.rejected.WithLabelValues(op, kind).Inc()
}
