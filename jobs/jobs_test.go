package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/entity"
	jobmetrics "github.com/odyssey-cms/odyssey-cms/internal/jobs"
	"github.com/odyssey-cms/odyssey-cms/internal/storage/memory"
	"github.com/odyssey-cms/odyssey-cms/internal/system"
)

type recordingClient struct {
	tasks []*asynq.Task
	err   error
}

func (c *recordingClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func newBroker(t *testing.T) (*broker.Broker, *entity.Factory) {
	t.Helper()
	b := broker.New()
	factory := entity.NewFactory(b, memory.New(), nil)
	require.NoError(t, system.Register(b, factory, nil))
	return b, factory
}

func TestEnqueuerCapturesEvents(t *testing.T) {
	b, factory := newBroker(t)
	require.NoError(t, b.CreateService(factory.Build(entity.Definition{
		Name:   "widgets",
		Schema: map[string]any{"properties": map[string]any{"name": map[string]any{"type": "string"}}},
	}, "en")))

	client := &recordingClient{}
	unsubscribe := NewEventEnqueuer(client, "node-a", nil, jobmetrics.NewMetrics(prometheus.NewRegistry())).Subscribe(b)
	defer unsubscribe()

	_, err := b.Call(context.Background(), "widgets__en.create", map[string]any{"name": "a"}, nil)
	require.NoError(t, err)
	_, err = b.Call(context.Background(), "widgets__en.find", nil, nil)
	require.NoError(t, err)
	_, err = b.Call(context.Background(), "widgets__en.list", nil, nil)
	require.NoError(t, err)
	_, err = b.Call(context.Background(), system.EventsLog+".create", map[string]any{"action": "x", "level": "info", "message": "x"}, nil)
	require.NoError(t, err)

	require.Len(t, client.tasks, 1)
	require.Equal(t, TaskEventsLog, client.tasks[0].Type())
	var payload EventPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	require.Equal(t, "widgets__en.create", payload.Event)
	require.Equal(t, "node-a", payload.Node)
	require.Contains(t, string(payload.Data), `"name":"a"`)
}

func TestLoggedSkipsReadsAndOwnEvents(t *testing.T) {
	require.True(t, Logged("widgets__en.create"))
	require.True(t, Logged("collections.update"))
	require.True(t, Logged("users.remove"))
	require.False(t, Logged("collections.find"))
	require.False(t, Logged("languages.find"))
	require.False(t, Logged("widgets__en.getSchema"))
	require.False(t, Logged(system.EventsLog+".create"))
}

func TestEnqueuerFailureDoesNotBreakCalls(t *testing.T) {
	b, factory := newBroker(t)
	require.NoError(t, b.CreateService(factory.Build(entity.Definition{
		Name:   "widgets",
		Schema: map[string]any{"properties": map[string]any{}},
	}, "en")))
	NewEventEnqueuer(&recordingClient{err: errors.New("redis down")}, "", nil, nil).Subscribe(b)

	_, err := b.Call(context.Background(), "widgets__en.create", map[string]any{"name": "a"}, nil)
	require.NoError(t, err)
}

func TestEventsLogJobPersistsEvents(t *testing.T) {
	b, _ := newBroker(t)
	job := NewEventsLogJob(b, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewEventsLogTask(EventPayload{
		Event: "widgets__en.create",
		Node:  "node-a",
		Data:  json.RawMessage(`{"name":"a"}`),
	})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	res, err := b.Call(context.Background(), system.EventsLog+".find", nil, nil)
	require.NoError(t, err)
	rows := res.([]map[string]any)
	require.Len(t, rows, 1)
	require.Equal(t, "widgets__en.create", rows[0]["action"])
	require.Equal(t, "info", rows[0]["level"])
	require.Equal(t, map[string]any{"name": "a"}, rows[0]["data"])

	err = job.Handle(context.Background(), asynq.NewTask(TaskEventsLog, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestPruneRemovesExpiredEntries(t *testing.T) {
	b, _ := newBroker(t)
	job := NewEventsLogJob(b, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	for _, event := range []string{"a.create", "b.create"} {
		task, err := NewEventsLogTask(EventPayload{Event: event})
		require.NoError(t, err)
		require.NoError(t, job.Handle(context.Background(), task))
	}

	job.clock = func() time.Time { return time.Now().UTC().AddDate(0, 0, 10) }
	task, err := NewEventsPruneTask(30)
	require.NoError(t, err)
	require.NoError(t, job.HandlePrune(context.Background(), task))
	n, err := b.Call(context.Background(), system.EventsLog+".count", nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	job.clock = func() time.Time { return time.Now().UTC().AddDate(0, 0, 31) }
	require.NoError(t, job.HandlePrune(context.Background(), task))
	n, err = b.Call(context.Background(), system.EventsLog+".count", nil, nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func TestHealthEndpoint(t *testing.T) {
	serve := func(h *Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Route("/jobs", h.MountRoutes)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rec
	}

	rec := serve(NewHandler(nil, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"retry":0,"archived":0,"processed":0,"failed":0}`, rec.Body.String())

	rec = serve(NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 3, Failed: 1}}, nil))
	var health QueueHealth
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	require.Equal(t, 3, health.Pending)
	require.Equal(t, 1, health.Failed)

	rec = serve(NewHandler(fakeInspector{err: errors.New("redis down")}, nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
