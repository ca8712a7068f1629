package server_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	connectorgin "github.com/pilab-dev/googleconnector/api/gin"
	"github.com/pilab-dev/googleconnector/cache"
	"github.com/pilab-dev/googleconnector/config"
	"github.com/pilab-dev/googleconnector/internal/federation"
	"github.com/pilab-dev/googleconnector/internal/metrics"
	"github.com/pilab-dev/googleconnector/internal/oauthsession"
	"github.com/pilab-dev/googleconnector/internal/server"
	"github.com/pilab-dev/googleconnector/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions := cache.NewMemorySessionStore()
	t.Cleanup(func() { _ = sessions.Close() })
	service := federation.NewService(oauthsession.NewBridge(sessions), cache.NewMemoryCredentialStore(), nil)

	reg := prometheus.NewRegistry()
	metrics.InitCustomMetrics(reg)
	metrics.AuthRedirectsTotal.WithLabelValues("google").Add(0)

	cfg := &config.Config{HTTPAddr: ":0", OtelServiceName: "test"}
	return server.NewRouter(cfg, log.NewNop(), connectorgin.NewConnectorAPI(service, connectorgin.CookieConfig{}, nil), reg)
}

func TestRouter_Healthz(t *testing.T) {
	r := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRouter_Metrics(t *testing.T) {
	r := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "oauth2_connector_redirects_total")
}

func TestRouter_ConnectorRoutes(t *testing.T) {
	r := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/oauth2client", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"providers":[]}`, w.Body.String())
}

func TestNewHTTPServer(t *testing.T) {
	srv := server.NewHTTPServer(&config.Config{HTTPAddr: ":9090"}, http.NotFoundHandler())

	assert.Equal(t, ":9090", srv.Addr)
	assert.Equal(t, 30*time.Second, srv.WriteTimeout)
}
