package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, g prometheus.Gatherer, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestTrackerRecordsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	require.NoError(t, metrics.Track("events:log").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, metrics.Track("events:log").End(boom), boom)

	require.Equal(t, 1.0, counterValue(t, registry, "cms_jobs_total", map[string]string{"job": "events:log", "status": "success"}))
	require.Equal(t, 1.0, counterValue(t, registry, "cms_jobs_total", map[string]string{"job": "events:log", "status": "failure"}))
	require.Equal(t, 1.0, counterValue(t, registry, "cms_jobs_failures_total", map[string]string{"job": "events:log"}))
}

func TestEnqueuedCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.Enqueued("events:log", nil)
	metrics.Enqueued("events:log", nil)
	metrics.Enqueued("events:log", errors.New("redis down"))

	require.Equal(t, 2.0, counterValue(t, registry, "cms_jobs_enqueued_total", map[string]string{"task": "events:log", "status": "success"}))
	require.Equal(t, 1.0, counterValue(t, registry, "cms_jobs_enqueued_total", map[string]string{"task": "events:log", "status": "failure"}))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	require.NoError(t, metrics.Track("x").End(nil))
	metrics.Enqueued("x", nil)
}
