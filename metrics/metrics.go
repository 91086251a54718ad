// Package metrics exposes prometheus counters for hydration runs and lazy
// proxies. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	HydratedRows      prometheus.Counter
	HydratedEntities  *prometheus.CounterVec
	HydrationFailures *prometheus.CounterVec
	ProxyLoads        *prometheus.CounterVec
	ProxyLoadFailures *prometheus.CounterVec
	ProxyArtifacts    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HydratedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jormx",
			Name:      "hydrated_rows_total",
			Help:      "Result rows folded into object graphs",
		}),
		HydratedEntities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jormx",
			Name:      "hydrated_entities_total",
			Help:      "Entities materialized by hydration, by entity type",
		}, []string{"entity"}),
		HydrationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jormx",
			Name:      "hydration_failures_total",
			Help:      "Aborted hydration runs, by error class",
		}, []string{"class"}),
		ProxyLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jormx",
			Name:      "proxy_loads_total",
			Help:      "Lazy proxy initializations, by entity type",
		}, []string{"entity"}),
		ProxyLoadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jormx",
			Name:      "proxy_load_failures_total",
			Help:      "Failed lazy proxy initializations, by entity type",
		}, []string{"entity"}),
		ProxyArtifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jormx",
			Name:      "proxy_artifacts_total",
			Help:      "Proxy source artifacts published, by outcome",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.HydratedRows, m.HydratedEntities, m.HydrationFailures,
			m.ProxyLoads, m.ProxyLoadFailures, m.ProxyArtifacts)
	}
	return m
}

func (m *Metrics) Row() {
	if m != nil {
		m.HydratedRows.Inc()
	}
}

func (m *Metrics) Entity(name string) {
	if m != nil {
		m.HydratedEntities.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) HydrationFailed(class string) {
	if m != nil {
		m.HydrationFailures.WithLabelValues(class).Inc()
	}
}

func (m *Metrics) ProxyLoaded(name string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ProxyLoadFailures.WithLabelValues(name).Inc()
		return
	}
	m.ProxyLoads.WithLabelValues(name).Inc()
}

func (m *Metrics) Artifact(outcome string) {
	if m != nil {
		m.ProxyArtifacts.WithLabelValues(outcome).Inc()
	}
}
