package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"quoteengine/internal/metrics"
)

func TestMetrics_RecordsOnRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveResult("Success", "Provider")
	m.ObserveResult("Success", "Provider")
	m.ObserveFailure("Timeout")
	m.ObserveFetch("domestic", "ok", 20*time.Millisecond)
	m.ObserveBatch(3, time.Second)

	require.InDelta(t, 2, testutil.ToFloat64(m.Results.WithLabelValues("Success", "Provider")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.Failures.WithLabelValues("Timeout")), 0)
	n, err := testutil.GatherAndCount(reg, "quoteengine_batch_size")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.ObserveResult("Failed", "None")
		m.ObserveFailure("Unknown")
		m.ObserveFetch("international", "error", time.Millisecond)
		m.ObserveBatch(0, 0)
	})
}
