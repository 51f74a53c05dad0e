// Package metrics registers the small set of counters/gauges the agent
// exposes on its optional debug listener (-m ADDR). This mirrors nomad's own
// prometheus/client_golang-backed agent metrics rather than reinventing a
// counter type on the stdlib.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the agent's Prometheus collectors.
type Metrics struct {
	SecretsFetched        prometheus.Counter
	TemplatesMaterialized prometheus.Counter
	HookFailures          prometheus.Counter
	LeasedSecrets         prometheus.Gauge
}

// New registers and returns the agent's collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SecretsFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "rconfd_secrets_fetched_total",
			Help: "Total number of secret fetches performed across all backends.",
		}),
		TemplatesMaterialized: factory.NewCounter(prometheus.CounterOpts{
			Name: "rconfd_templates_materialized_total",
			Help: "Total number of successful template materializations.",
		}),
		HookFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "rconfd_hook_failures_total",
			Help: "Total number of hook invocations that failed (relative command rejected, spawn error, or non-zero exit).",
		}),
		LeasedSecrets: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rconfd_leased_secrets",
			Help: "Current number of secrets in the store that carry a lease.",
		}),
	}
}
