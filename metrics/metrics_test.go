package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(ForecastFallbacks.WithLabelValues("cold_start"))
	ForecastFallbacks.WithLabelValues("cold_start").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ForecastFallbacks.WithLabelValues("cold_start")))

	before = testutil.ToFloat64(SolverRuns.WithLabelValues("labor", StatusTimeout))
	SolverRuns.WithLabelValues("labor", StatusTimeout).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SolverRuns.WithLabelValues("labor", StatusTimeout)))
}
