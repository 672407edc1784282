package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveBuild(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveBuild("ok", 2*time.Second)
	m.ObserveBuild("error", time.Second)
	m.ObserveBuild("ok", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BuildsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BuildsTotal.WithLabelValues("error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.BuildDuration))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRequest("/api/v1/cities", http.StatusOK, 5*time.Millisecond)
	m.RulesLoaded.Set(20)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `panchaanga_http_requests_total{route="/api/v1/cities",status="OK"} 1`)
	assert.Contains(t, body, "panchaanga_rules_loaded 20")
}

func TestNewTwiceOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
