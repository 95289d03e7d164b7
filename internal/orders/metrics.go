package orders

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	opList   = "list"
	opCreate = "create"
	opCancel = "cancel"
	opDelete = "delete"

	resultOK           = "ok"
	resultUnauthorized = "unauthorized"
	resultNetwork      = "network"
	resultRejected     = "rejected"
	resultError        = "error"
)

// Metrics содержит счётчики обращений шлюза заказов.
type Metrics struct {
	requests  *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
}

// NewMetrics создаёт счётчики и регистрирует их в reg. При reg == nil
// счётчики не регистрируются.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Order gateway operations by outcome.",
		}, []string{"operation", "result"}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "gateway",
			Name:      "fallbacks_total",
			Help:      "Order gateway operations served by a fallback path.",
		}, []string{"operation"}),
	}
}

func (m *Metrics) request(op, result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, result).Inc()
}

func (m *Metrics) fallback(op string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(op).Inc()
}
