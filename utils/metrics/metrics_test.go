package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArbitrageMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewArbitrageMetrics("test_arb", reg)
	require.NotNil(t, m)

	m.Attempts.WithLabelValues("settled").Inc()
	m.Attempts.WithLabelValues("settled").Inc()
	m.Attempts.WithLabelValues("failed").Inc()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Attempts.WithLabelValues("settled")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Attempts.WithLabelValues("failed")))

	m.RealizedProfitWei.Add(5e17)
	assert.Equal(t, float64(5e17), testutil.ToFloat64(m.RealizedProfitWei))

	m.SizingLatency.Observe(0.001)
	assert.Equal(t, 1, testutil.CollectAndCount(m.SizingLatency))
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewArbitrageMetrics("same", prometheus.NewRegistry())
		NewArbitrageMetrics("same", prometheus.NewRegistry())
	})
}

func TestRPCMetrics(t *testing.T) {
	m := NewRPCMetrics("test_rpc", prometheus.NewRegistry())
	m.Calls.WithLabelValues("getReserves").Inc()
	m.CacheHits.Inc()
	m.BreakerState.WithLabelValues("pair").Set(2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Calls.WithLabelValues("getReserves")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.BreakerState.WithLabelValues("pair")))
}
