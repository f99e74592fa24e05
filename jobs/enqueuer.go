package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/entity"
	jobmetrics "github.com/odyssey-cms/odyssey-cms/internal/jobs"
	"github.com/odyssey-cms/odyssey-cms/internal/system"
)

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EventEnqueuer turns broker events into events log tasks.
type EventEnqueuer struct {
	client  TaskEnqueuer
	node    string
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	now     func() time.Time
}

// NewEventEnqueuer constructs an EventEnqueuer.
func NewEventEnqueuer(client TaskEnqueuer, node string, logger *slog.Logger, metrics *jobmetrics.Metrics) *EventEnqueuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventEnqueuer{client: client, node: node, logger: logger, metrics: metrics, now: time.Now}
}

// Subscribe listens to every event on b. The returned function unsubscribes.
func (e *EventEnqueuer) Subscribe(b *broker.Broker) func() {
	return b.On("*", e.handle)
}

// readActions are left out of the events log.
var readActions = map[string]struct{}{
	entity.ActionFind:      {},
	entity.ActionGet:       {},
	entity.ActionCount:     {},
	entity.ActionList:      {},
	entity.ActionGetSchema: {},
}

// Logged reports whether event is persisted to the events log. The events
// log's own events are skipped so persisting an entry does not enqueue
// another one.
func Logged(event string) bool {
	if strings.HasPrefix(event, system.EventsLog+".") {
		return false
	}
	if i := strings.LastIndexByte(event, '.'); i >= 0 {
		if _, read := readActions[event[i+1:]]; read {
			return false
		}
	}
	return true
}

func (e *EventEnqueuer) handle(ctx context.Context, event string, payload any) error {
	if !Logged(event) {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	task, err := NewEventsLogTask(EventPayload{
		Event:     event,
		Node:      e.node,
		Data:      data,
		EmittedAt: e.now().UTC(),
	})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
	e.metrics.Enqueued(TaskEventsLog, err)
	if err != nil {
		e.logger.Warn("enqueue event", slog.String("event", event), slog.Any("error", err))
	}
	return err
}
