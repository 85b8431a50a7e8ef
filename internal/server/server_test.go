package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retroview/retroview/internal/browser"
	"github.com/retroview/retroview/internal/config"
	"github.com/retroview/retroview/internal/logging"
	"github.com/retroview/retroview/internal/monitoring"
	"github.com/retroview/retroview/internal/session"
)

func newTestServer(t *testing.T, maxSessions int) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Viewer.MaxSessions = maxSessions

	log := logging.NewNop()
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	manager := session.NewManager(
		log,
		metrics,
		session.Config{
			StartPage:         cfg.Viewer.StartPage,
			InactivityTimeout: cfg.Viewer.InactivityTimeout,
			CloseGracePeriod:  cfg.Viewer.CloseGracePeriod,
			DownloadTTL:       cfg.Viewer.DownloadTTL,
			SendTimeout:       cfg.Image.SendTimeout,
			Quality:           cfg.Image.Quality,
			AllowPNG:          cfg.Image.AllowPNG,
		},
		cfg.Viewer.MaxSessions,
		browser.NopFactory{},
		browser.NewNopWidgetTree,
	)
	manager.Start()
	t.Cleanup(manager.Stop)

	return NewServer(cfg, log, metrics, manager, reg)
}

func doGet(s *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.router.ServeHTTP(rec, req)
	return rec
}

var sessionURLRE = regexp.MustCompile(`/([0-9]+)/`)

func TestNewWindowRedirectsIntoFreshSession(t *testing.T) {
	s := newTestServer(t, 4)

	rec := doGet(s, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))

	m := sessionURLRE.FindStringSubmatch(rec.Body.String())
	require.NotNil(t, m, "new window document must link the session URL")
	assert.Equal(t, 1, s.manager.SessionCount())

	// The linked session answers the protocol's bootstrap document.
	rec = doGet(s, "/"+m[1]+"/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestNewWindowRefusedWhenFull(t *testing.T) {
	s := newTestServer(t, 1)

	rec := doGet(s, "/")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doGet(s, "/")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "ERROR: Maximum number of concurrent sessions exceeded", rec.Body.String())
	assert.Equal(t, 1, s.manager.SessionCount())
}

func TestMalformedSessionPathRejected(t *testing.T) {
	s := newTestServer(t, 4)

	rec := doGet(s, "/notanumber/")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ERROR: Invalid request URI or method", rec.Body.String())
}

func TestUnknownSessionIDRejected(t *testing.T) {
	s := newTestServer(t, 4)

	rec := doGet(s, "/123456789/")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ERROR: Invalid session ID", rec.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, 4)

	rec := doGet(s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t, 4)

	doGet(s, "/")
	rec := doGet(s, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sessions":1`)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, 4)

	doGet(s, "/healthz")
	rec := doGet(s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "retroview_http_requests_total")
	assert.Contains(t, rec.Body.String(), "retroview_sessions_active")
}

func TestSessionIDFromPath(t *testing.T) {
	id, ok := sessionIDFromPath("/42/image/1/1/1/800/600/0/")
	require.True(t, ok)
	assert.Equal(t, uint64(42), id)

	_, ok = sessionIDFromPath("/")
	assert.False(t, ok)
	_, ok = sessionIDFromPath("/abc/")
	assert.False(t, ok)

	id, ok = sessionIDFromPath(fmt.Sprintf("/%d/", uint64(1)<<63))
	require.True(t, ok)
	assert.Equal(t, uint64(1)<<63, id)
}
