package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/vibeterm/internal/terminal"
	"github.com/GriffinCanCode/vibeterm/internal/terminal/marker"
)

var _ terminal.Observer = (*Metrics)(nil)

func TestNewMetricsAreIndependent(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.SessionStarted()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.SessionsActive))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SessionsActive))
}

func TestSessionLifecycle(t *testing.T) {
	m := NewMetrics()

	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded("exited")
	m.SessionFailed("spawn")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsEnded.WithLabelValues("exited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsFailed.WithLabelValues("spawn")))

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.ActiveSessions)
	assert.Equal(t, int64(2), snap.TotalSessions)
}

func TestObserverCounters(t *testing.T) {
	m := NewMetrics()

	m.BytesRead(100)
	m.BytesRead(28)
	m.BytesWritten(5)
	m.EventDecoded(marker.CommandStart)
	m.EventDecoded(marker.CommandEnd)
	m.EventDecoded(marker.CommandEnd)
	m.MarkerDropped(marker.DropSecretMismatch)
	m.CleanupFailed()

	assert.Equal(t, 128.0, testutil.ToFloat64(m.PTYBytesRead))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.PTYBytesWritten))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MarkersDecoded.WithLabelValues("command_end")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MarkersDropped.WithLabelValues("secret_mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CleanupFailures))
}

func TestCommandCompletedOutcome(t *testing.T) {
	m := NewMetrics()

	m.CommandCompleted(0)
	m.CommandCompleted(2)
	m.CommandCompleted(marker.ExitCodeUnknown)

	for _, outcome := range []string{"success", "failure", "unknown"} {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsCompleted.WithLabelValues(outcome)), outcome)
	}
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/sessions/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, id := range []string{"sess_a", "sess_b"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/sessions/:id", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalRequests)
	assert.Equal(t, int64(3), snap.TotalErrors)
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := NewMetrics()
	m.SessionStarted()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "vibeterm_sessions_active 1")
	assert.Contains(t, body, "vibeterm_uptime_seconds")
	assert.Contains(t, body, "go_goroutines")
}
