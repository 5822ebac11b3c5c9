package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics implements config.Instrumentation on a Prometheus registry.
type Metrics struct {
	appliesTotal    *prometheus.CounterVec
	restartPending  prometheus.Gauge
	resolveDuration prometheus.Histogram
}

// NewMetrics registers the engine metrics on the given registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		appliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opencfg",
			Name:      "config_applies_total",
			Help:      "Change requests processed, by outcome.",
		}, []string{"outcome"}),
		restartPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "opencfg",
			Name:      "config_restart_pending",
			Help:      "Whether a cold configuration change is waiting for a restart.",
		}),
		resolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "opencfg",
			Name:      "config_resolve_duration_seconds",
			Help:      "Duration of configuration resolution passes.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	registry.MustRegister(m.appliesTotal, m.restartPending, m.resolveDuration)
	return m
}

func (m *Metrics) ApplyOutcome(outcome string) {
	m.appliesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RestartPending(pending bool) {
	if pending {
		m.restartPending.Set(1)
	} else {
		m.restartPending.Set(0)
	}
}

func (m *Metrics) ResolveDuration(d time.Duration) {
	m.resolveDuration.Observe(d.Seconds())
}
