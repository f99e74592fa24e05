package perf

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-cms/odyssey-cms/internal/actions"
	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/entity"
	"github.com/odyssey-cms/odyssey-cms/internal/gateway"
	"github.com/odyssey-cms/odyssey-cms/internal/registry"
	"github.com/odyssey-cms/odyssey-cms/internal/storage/memory"
	"github.com/odyssey-cms/odyssey-cms/internal/system"
)

// newMesh registers the system services, registry and router over an
// in-memory store with one collection holding rows records.
func newMesh(tb testing.TB, rows int) *broker.Broker {
	tb.Helper()
	b := broker.New()
	factory := entity.NewFactory(b, memory.New(), nil)
	require.NoError(tb, system.Register(b, factory, nil))
	require.NoError(tb, b.CreateService(registry.New(b, factory, nil).Service()))
	require.NoError(tb, b.CreateService(actions.New(b, actions.WithDefaultLanguage("en")).Service()))

	ctx := context.Background()
	_, err := b.Call(ctx, system.Languages+".create", map[string]any{"name": "English", "code": "en"}, nil)
	require.NoError(tb, err)
	_, err = b.Call(ctx, system.Collections+".create", map[string]any{
		"name": "articles",
		"schema": map[string]any{"properties": map[string]any{
			"title": map[string]any{"type": "string"},
			"rank":  map[string]any{"type": "number"},
		}},
	}, nil)
	require.NoError(tb, err)
	for i := 0; i < rows; i++ {
		_, err := b.Call(ctx, actions.ServiceName+".create", map[string]any{
			"collectionName": "articles",
			"title":          fmt.Sprintf("article %d", i),
			"rank":           i,
		}, nil)
		require.NoError(tb, err)
	}
	return b
}

func TestRouterLatencyTargets(t *testing.T) {
	b := newMesh(t, 200)
	ctx := context.Background()

	scenarios := []struct {
		name      string
		params    map[string]any
		threshold time.Duration
	}{
		{name: "first page", params: map[string]any{"pageSize": 20}, threshold: 50 * time.Millisecond},
		{name: "filtered", params: map[string]any{"query": `{"rank":{"$gte":150}}`, "sort": "-rank"}, threshold: 50 * time.Millisecond},
	}
	for _, scenario := range scenarios {
		samples := make([]time.Duration, 0, 40)
		for i := 0; i < 40; i++ {
			params := map[string]any{"collectionName": "articles"}
			for k, v := range scenario.params {
				params[k] = v
			}
			start := time.Now()
			_, err := b.Call(ctx, actions.ServiceName+"."+entity.ActionList, params, &broker.Meta{CalledByAPI: true})
			require.NoError(t, err)
			samples = append(samples, time.Since(start))
		}
		if p95 := percentile95(samples); p95 > scenario.threshold {
			t.Fatalf("%s latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
}

func BenchmarkRouterGet(b *testing.B) {
	mesh := newMesh(b, 50)
	ctx := context.Background()
	res, err := mesh.Call(ctx, actions.ServiceName+".find", map[string]any{"collectionName": "articles", "limit": 1}, nil)
	require.NoError(b, err)
	id := res.([]map[string]any)[0]["_id"]

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := mesh.Call(ctx, actions.ServiceName+".get", map[string]any{"collectionName": "articles", "id": id}, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGatewayList(b *testing.B) {
	mesh := newMesh(b, 100)
	r := chi.NewRouter()
	r.Route("/api/actions", gateway.NewHandler(mesh, nil).MountRoutes)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/actions/articles?pageSize=25", nil))
		if rec.Code != http.StatusOK {
			b.Fatalf("status %d", rec.Code)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
