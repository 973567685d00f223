package metrics_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyrevert/internal/metrics"
)

func TestServe_EmptyAddrDisabled(t *testing.T) {
	assert.Nil(t, metrics.Serve(""))
	metrics.Shutdown(context.Background(), nil)
}

func TestCountersRegistered(t *testing.T) {
	metrics.SignalVerdicts.WithLabelValues("BTC/USDT", "signal").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.SignalVerdicts.WithLabelValues("BTC/USDT", "signal")), 1.0)

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range mfs {
		if mf.GetName() == "polyrevert_signal_verdicts_total" {
			found = true
			break
		}
	}
	assert.True(t, found)
}
