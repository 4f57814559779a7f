package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(Fallbacks.WithLabelValues(StagePlan))
	Fallbacks.WithLabelValues(StagePlan).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Fallbacks.WithLabelValues(StagePlan)))

	SearchRequests.WithLabelValues("tavily", "ok").Add(2)
	assert.GreaterOrEqual(t, testutil.ToFloat64(SearchRequests.WithLabelValues("tavily", "ok")), 2.0)
}
