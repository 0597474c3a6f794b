package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/vibeterm/internal/infrastructure/config"
	"github.com/GriffinCanCode/vibeterm/internal/infrastructure/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Server.Port = "0"
	cfg.Logging.Development = true
	cfg.RateLimit.Enabled = false
	cfg.Terminal.Shell = "/bin/sh"
	cfg.Terminal.WorkingDir = dir
	cfg.Integration.Root = filepath.Join(dir, "sessions")
	cfg.Integration.ScriptDir = filepath.Join(dir, "scripts")
	cfg.Host.PollIntervalMS = 5
	cfg.Store.Path = filepath.Join(dir, "vibeterm.db")
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := NewServer(cfg, WithLogger(logging.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func request(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		assert.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, testConfig(t))
	h := srv.Handler()

	code, body := request(t, h, "POST", "/sessions", `{"cols": 100, "rows": 30}`)
	require.Equal(t, http.StatusCreated, code, body)
	sessionID := body["session"].(map[string]any)["id"].(string)

	code, _ = request(t, h, "POST", "/sessions/"+sessionID+"/input", `{"data": "echo over-$((40+2))\n"}`)
	require.Equal(t, http.StatusOK, code)

	var out strings.Builder
	require.Eventually(t, func() bool {
		_, body := request(t, h, "GET", "/sessions/"+sessionID+"/output", "")
		if data, ok := body["data"].(string); ok {
			out.WriteString(data)
		}
		return strings.Contains(out.String(), "over-42")
	}, 10*time.Second, 20*time.Millisecond)

	code, body = request(t, h, "GET", "/sessions", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	code, _ = request(t, h, "DELETE", "/sessions/"+sessionID, "")
	require.Equal(t, http.StatusOK, code)

	code, body = request(t, h, "GET", "/history/sessions/"+sessionID, "")
	require.Equal(t, http.StatusOK, code, body)
	assert.NotNil(t, body["ended_at"])

	code, body = request(t, h, "GET", "/history/sessions/"+sessionID+"/events", "")
	require.Equal(t, http.StatusOK, code)
	assert.GreaterOrEqual(t, body["count"], float64(1))
}

func TestStoreDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Enabled = false
	srv := newTestServer(t, cfg)

	code, _ := request(t, srv.Handler(), "GET", "/history/sessions", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.NoFileExists(t, cfg.Store.Path)
}

func TestInstallsShellIntegration(t *testing.T) {
	cfg := testConfig(t)
	newTestServer(t, cfg)

	entries, err := os.ReadDir(cfg.Integration.ScriptDir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestMetricsEndpoints(t *testing.T) {
	srv := newTestServer(t, testConfig(t))
	h := srv.Handler()

	code, body := request(t, h, "GET", "/health", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "vibeterm_http_requests_total")

	code, body = request(t, h, "GET", "/metrics/json", "")
	require.Equal(t, http.StatusOK, code)
	assert.GreaterOrEqual(t, body["total_requests"], float64(2))
}

func TestShutdownEndsSessions(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	code, _ := request(t, srv.Handler(), "POST", "/sessions", "")
	require.Equal(t, http.StatusCreated, code)
	require.Len(t, srv.Manager().List(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.Empty(t, srv.Manager().List())
}

func TestResponsesCarryRequestID(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "trace-me")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, "trace-me", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.True(t, strings.HasPrefix(w.Header().Get("X-Request-ID"), "req_"))
}

func TestStoreBreakerOpensAfterFailures(t *testing.T) {
	b := newStoreBreaker(logging.NewNop().Named("store"))
	for i := 0; i < 5; i++ {
		_ = b.Do(func() error { return context.DeadlineExceeded })
	}
	assert.Equal(t, "open", b.State().String())
}
