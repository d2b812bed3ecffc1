// Package metrics publishes pool activity as prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PoolMetrics implements browserpool.Recorder over prometheus
// counters and gauges.
type PoolMetrics struct {
	created        prometheus.Counter
	destroyed      prometheus.Counter
	borrowed       prometheus.Counter
	returned       prometheus.Counter
	evicted        prometheus.Counter
	healthFailures prometheus.Counter
	poolSize       prometheus.Gauge
	inUse          prometheus.Gauge
}

func NewPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	factory := promauto.With(reg)
	return &PoolMetrics{
		created: factory.NewCounter(prometheus.CounterOpts{
			Name: "browserpool_sessions_created_total",
			Help: "Browser sessions created by the pool.",
		}),
		destroyed: factory.NewCounter(prometheus.CounterOpts{
			Name: "browserpool_sessions_destroyed_total",
			Help: "Browser sessions destroyed by the pool.",
		}),
		borrowed: factory.NewCounter(prometheus.CounterOpts{
			Name: "browserpool_sessions_borrowed_total",
			Help: "Checkouts served by the pool.",
		}),
		returned: factory.NewCounter(prometheus.CounterOpts{
			Name: "browserpool_sessions_returned_total",
			Help: "Sessions released back to the pool.",
		}),
		evicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "browserpool_sessions_evicted_total",
			Help: "Sessions evicted for age, usage, idleness or health.",
		}),
		healthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "browserpool_health_failures_total",
			Help: "Health probe failures and caller-reported session errors.",
		}),
		poolSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "browserpool_idle_sessions",
			Help: "Sessions currently idle in the pool.",
		}),
		inUse: factory.NewGauge(prometheus.GaugeOpts{
			Name: "browserpool_in_use_sessions",
			Help: "Sessions currently checked out.",
		}),
	}
}

func (m *PoolMetrics) SessionCreated()   { m.created.Inc() }
func (m *PoolMetrics) SessionDestroyed() { m.destroyed.Inc() }
func (m *PoolMetrics) SessionBorrowed()  { m.borrowed.Inc() }
func (m *PoolMetrics) SessionReturned()  { m.returned.Inc() }
func (m *PoolMetrics) SessionEvicted()   { m.evicted.Inc() }
func (m *PoolMetrics) HealthFailure()    { m.healthFailures.Inc() }

func (m *PoolMetrics) SetSizes(poolSize, inUse int) {
	m.poolSize.Set(float64(poolSize))
	m.inUse.Set(float64(inUse))
}
