package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := NewMetricsWithRegistry(prometheus.NewRegistry())

	m.RecordSchemeRequest("hit", time.Millisecond)
	m.RecordSchemeRequest("miss", time.Millisecond)
	m.RecordBridgeCommand("getUniqueId", "success")
	m.RecordBridgeCommand("getCurrentPosition", "permissionDenied")
	m.RecordPrompt("custom", "allow")
	m.IncSessions()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchemeRequests.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BridgeCommands.WithLabelValues("getCurrentPosition", "permissionDenied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Prompts.WithLabelValues("custom", "allow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsActive))

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.SchemeHits)
	assert.Equal(t, int64(1), snap.SchemeMisses)
	assert.Equal(t, int64(2), snap.BridgeCommands)
	assert.Equal(t, int64(1), snap.BridgeErrors)
	assert.Equal(t, int64(1), snap.ActiveSessions)
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	r := gin.New()
	r.Use(Middleware(m))
	r.GET("/miniapps/:scheme/*path", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	for _, p := range []string{"/miniapps/mscheme.a/index.html", "/miniapps/mscheme.b/x.js"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
		require.Equal(t, http.StatusNotFound, w.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/miniapps/:scheme/*path", "404")))
	assert.Equal(t, int64(2), m.Snapshot().HTTPErrors)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "miniapp_host_http_requests_total"))
	assert.True(t, strings.Contains(w.Body.String(), "go_goroutines"))
}

func TestWatchBreaker(t *testing.T) {
	m := NewMetricsWithRegistry(prometheus.NewRegistry())
	state := 0
	m.WatchBreaker("platform", func() int { return state })

	expect := func(v string) string {
		return `
# HELP miniapp_host_breaker_state Circuit breaker state (0 closed, 1 half-open, 2 open)
# TYPE miniapp_host_breaker_state gauge
miniapp_host_breaker_state{breaker="platform"} ` + v + "\n"
	}
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expect("0")), "miniapp_host_breaker_state"))
	state = 2
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expect("2")), "miniapp_host_breaker_state"))
}
