package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-cms/odyssey-cms/internal/broker"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.Jobs().Track("events:log").End(nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, "cms_jobs_total") {
		t.Fatalf("expected body to contain cms_jobs_total, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "cms_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "cms_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestBrokerObserverRecordsCalls(t *testing.T) {
	metrics := NewMetrics()
	b := broker.New(broker.WithObserver(metrics))
	if err := b.CreateService(&broker.Service{Name: "widgets__en", Actions: map[string]broker.Handler{
		"find": func(ctx context.Context, req *broker.Request) (any, error) { return nil, nil },
		"fail": func(ctx context.Context, req *broker.Request) (any, error) { return nil, errors.New("boom") },
	}}); err != nil {
		t.Fatalf("create service: %v", err)
	}
	_, _ = b.Call(context.Background(), "widgets__en.find", nil, nil)
	_, _ = b.Call(context.Background(), "widgets__en.fail", nil, nil)
	metrics.ObserveCall("ghosts__en", "find", time.Millisecond, &broker.ServiceNotFoundError{Service: "ghosts__en"})
	metrics.ObserveProvision("widgets", nil)

	body := scrape(t, metrics)
	for _, want := range []string{
		`cms_broker_calls_total{action="find",service="widgets__en",status="ok"} 1`,
		`cms_broker_calls_total{action="fail",service="widgets__en",status="error"} 1`,
		`cms_broker_calls_total{action="find",service="ghosts__en",status="not_found"} 1`,
		`cms_router_provisions_total{collection="widgets",status="success"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in metrics, got: %s", want, body)
		}
	}
}
