// Package metrics collects and exposes Prometheus metrics for the temporary role engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector is what the grant scheduler reports to.
type MetricsCollector interface {
	RecordIssued()
	RecordSuperseded()
	RecordExpired()
	RecordCancelled()
	RecordRecovered(outcome string)
	RecordEffectFailure(op string)
	SetActiveSuspensions(n int)
}

// Recovery outcomes.
const (
	RecoveryResumed = "resumed"
	RecoveryExpired = "expired"
	RecoveryFailed  = "failed"
)

// Collector is the Prometheus implementation of MetricsCollector.
type Collector struct {
	issued            prometheus.Counter
	superseded        prometheus.Counter
	expired           prometheus.Counter
	cancelled         prometheus.Counter
	recovered         *prometheus.CounterVec
	effectFailures    *prometheus.CounterVec
	activeSuspensions prometheus.Gauge
}

// NewCollector creates a Collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rolekeeper_grants_issued_total",
			Help: "Temporary role grants issued.",
		}),
		superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rolekeeper_grants_superseded_total",
			Help: "Grants replaced by a new grant on the same key.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rolekeeper_grants_expired_total",
			Help: "Grants closed because their deadline passed.",
		}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rolekeeper_grants_cancelled_total",
			Help: "Grants closed by operator cancellation.",
		}),
		recovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rolekeeper_grants_recovered_total",
			Help: "Grants processed by startup recovery, by outcome.",
		}, []string{"outcome"}),
		effectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rolekeeper_effect_failures_total",
			Help: "Failed platform calls, by operation.",
		}, []string{"op"}),
		activeSuspensions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rolekeeper_active_suspensions",
			Help: "Grants currently waiting for their deadline.",
		}),
	}

	reg.MustRegister(
		c.issued,
		c.superseded,
		c.expired,
		c.cancelled,
		c.recovered,
		c.effectFailures,
		c.activeSuspensions,
	)
	return c
}

func (c *Collector) RecordIssued() { c.issued.Inc() }
func (c *Collector) RecordSuperseded() { c.superseded.Inc() }
func (c *Collector) RecordExpired() { c.expired.Inc() }
func (c *Collector) RecordCancelled() { c.cancelled.Inc() }

func (c *Collector) RecordRecovered(outcome string) {
	c.recovered.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordEffectFailure(op string) {
	c.effectFailures.WithLabelValues(op).Inc()
}

func (c *Collector) SetActiveSuspensions(n int) {
	c.activeSuspensions.Set(float64(n))
}

// Nop discards everything. Used when metrics are disabled and in tests.
type Nop struct{}

func (Nop) RecordIssued() {}
func (Nop) RecordSuperseded() {}
func (Nop) RecordExpired() {}
func (Nop) RecordCancelled() {}
func (Nop) RecordRecovered(string) {}
func (Nop) RecordEffectFailure(string) {}
func (Nop) SetActiveSuspensions(int) {}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}
