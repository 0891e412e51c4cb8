package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRecompute("success", 4, time.Second)
		m.IncDiscarded("self_trade")
		m.ObserveQuery("evaluate", "ok")
		m.ObserveLimiterWait(time.Second)
		m.ObserveExtraction("ok")
		m.IncPosts()
	})
}

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics("test")
	other := NewMetrics("test")
	require.NotSame(t, m.Registry(), other.Registry())

	m.ObserveRecompute("success", 6, 10*time.Millisecond)
	m.ObserveRecompute("failure", 0, time.Millisecond)
	m.IncDiscarded("self_trade")
	m.ObserveQuery("expand", "type_not_found")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecomputeRuns.WithLabelValues("success")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.RatioEntries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradesDiscarded.WithLabelValues("self_trade")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Queries.WithLabelValues("expand", "type_not_found")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_recompute_runs_total"))
}
