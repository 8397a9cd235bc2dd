// Package metrics holds the Prometheus collectors recorded by the request
// gates.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "supportdesk"

// Gate labels.
const (
	GateAuth      = "auth"
	GateRole      = "role"
	GateRateLimit = "ratelimit"
)

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	GateRejections      *prometheus.CounterVec
	RateLimitDecisions  *prometheus.CounterVec
	RateLimitStoreError prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GateRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_rejections_total",
			Help:      "Requests rejected by a gate, by gate and reason.",
		}, []string{"gate", "reason"}),
		RateLimitDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limiter decisions by outcome.",
		}, []string{"outcome"}),
		RateLimitStoreError: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_store_errors_total",
			Help:      "Rate limit store failures.",
		}),
	}
}

// Reject counts a gate rejection.
func (m *Metrics) Reject(gate, reason string) {
	if m == nil {
		return
	}
	m.GateRejections.WithLabelValues(gate, reason).Inc()
}

// Decision counts a rate limiter outcome.
func (m *Metrics) Decision(outcome string) {
	if m == nil {
		return
	}
	m.RateLimitDecisions.WithLabelValues(outcome).Inc()
}

// StoreError counts a rate limit store failure.
func (m *Metrics) StoreError() {
	if m == nil {
		return
	}
	m.RateLimitStoreError.Inc()
}
