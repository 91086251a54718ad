package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Row()
	m.Row()
	m.Entity("Author")
	m.HydrationFailed("mapping")
	m.ProxyLoaded("Author", nil)
	m.ProxyLoaded("Author", errors.New("gone"))
	m.Artifact("generated")

	assert.Equal(t, 2.0, counterValue(t, reg, "jormx_hydrated_rows_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "jormx_hydrated_entities_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "jormx_hydration_failures_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "jormx_proxy_loads_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "jormx_proxy_load_failures_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "jormx_proxy_artifacts_total"))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Row()
		m.Entity("Author")
		m.HydrationFailed("mapping")
		m.ProxyLoaded("Author", nil)
		m.Artifact("generated")
	})
}
