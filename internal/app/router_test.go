package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-cms/odyssey-cms/internal/auth"
	"github.com/odyssey-cms/odyssey-cms/internal/gateway"
	"github.com/odyssey-cms/odyssey-cms/internal/observability"
	"github.com/odyssey-cms/odyssey-cms/internal/system"
	"github.com/odyssey-cms/odyssey-cms/jobs"
)

func newTestRouter(t *testing.T) (http.Handler, *Core) {
	t.Helper()
	cfg := &Config{StorageDriver: StorageMemory, DefaultLanguage: "en", RouterRetries: 2, TokenTTL: time.Hour, RateLimitPerMinute: 1000}
	store, release, err := OpenStorage(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(release)

	metrics := observability.NewMetrics()
	core, err := NewCore(CoreParams{Config: cfg, Store: store, Metrics: metrics})
	require.NoError(t, err)

	authService := auth.NewService(core.Broker, auth.NewMemoryStore(), cfg.TokenTTL, nil)
	router := NewRouter(RouterParams{
		Config:         cfg,
		AuthHandler:    auth.NewHandler(nil, authService),
		GatewayHandler: gateway.NewHandler(core.Broker, nil),
		JobHandler:     jobs.NewHandler(nil, nil),
		Metrics:        metrics,
	})
	return router, core
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := serve(router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = serve(router, http.MethodGet, "/jobs/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "cms_http_requests_total")
}

func TestRouterProvisionsCollectionsThroughGateway(t *testing.T) {
	router, core := newTestRouter(t)
	ctx := context.Background()
	_, err := core.Broker.Call(ctx, system.Languages+".create", map[string]any{"name": "English", "code": "en"}, nil)
	require.NoError(t, err)
	_, err = core.Broker.Call(ctx, system.Collections+".create", map[string]any{
		"name":   "pages",
		"schema": map[string]any{"properties": map[string]any{"title": map[string]any{"type": "string"}}},
	}, nil)
	require.NoError(t, err)

	rec := serve(router, http.MethodPost, "/api/actions/pages", `{"title":"Home"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"title":"Home"`)
	require.Equal(t, []string{"pages"}, core.Registry.Loaded())

	rec = serve(router, http.MethodGet, "/api/actions/pages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total":1`)
}

func TestRouterRejectsUnknownTokens(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/actions/pages", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPreloadRegistersStoredCollections(t *testing.T) {
	_, core := newTestRouter(t)
	ctx := context.Background()
	_, err := core.Broker.Call(ctx, system.Languages+".create", map[string]any{"name": "Polski", "code": "pl"}, nil)
	require.NoError(t, err)
	_, err = core.Broker.Call(ctx, system.Collections+".create", map[string]any{
		"name":   "posts",
		"schema": map[string]any{"properties": map[string]any{}},
	}, nil)
	require.NoError(t, err)

	core.Preload(ctx, NewLogger(nil, "test"))
	require.True(t, core.Broker.HasService("posts__pl"))
}
