package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/entity"
	jobmetrics "github.com/odyssey-cms/odyssey-cms/internal/jobs"
	"github.com/odyssey-cms/odyssey-cms/internal/query"
	"github.com/odyssey-cms/odyssey-cms/internal/storage"
	"github.com/odyssey-cms/odyssey-cms/internal/system"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// EventsLogJob writes captured events into the events-log service.
type EventsLogJob struct {
	Broker  *broker.Broker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewEventsLogJob wires dependencies for the events log handlers.
func NewEventsLogJob(b *broker.Broker, logger *slog.Logger, metrics *jobmetrics.Metrics) *EventsLogJob {
	return &EventsLogJob{
		Broker:  b,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskEventsLog tasks.
func (j *EventsLogJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Broker == nil {
		return errors.New("events log: handler not configured")
	}
	var payload EventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Event == "" {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskEventsLog)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var data any
	if len(payload.Data) > 0 {
		if err := json.Unmarshal(payload.Data, &data); err != nil {
			return fmt.Errorf("events log: decode data: %w", asynq.SkipRetry)
		}
	}
	record := map[string]any{
		"action":  payload.Event,
		"level":   "info",
		"message": fmt.Sprintf("%s emitted", payload.Event),
		"data":    data,
	}
	if payload.Node != "" {
		record["message"] = fmt.Sprintf("%s emitted on %s", payload.Event, payload.Node)
	}
	if _, err := j.Broker.Call(ctx, system.EventsLog+"."+entity.ActionCreate, record,
		&broker.Meta{Privileges: []string{system.PrivilegeSystem}}); err != nil {
		j.logger().Warn("persist event", slog.String("event", payload.Event), slog.Any("error", err))
		return err
	}
	return nil
}

// HandlePrune processes TaskEventsPrune tasks.
func (j *EventsLogJob) HandlePrune(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Broker == nil {
		return errors.New("events prune: handler not configured")
	}
	var payload PrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionDays <= 0 {
		payload.RetentionDays = 30
	}

	tracker := j.metrics().Track(TaskEventsPrune)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.now().AddDate(0, 0, -payload.RetentionDays).Format(time.RFC3339Nano)
	meta := &broker.Meta{Privileges: []string{system.PrivilegeSystem}}
	res, err := j.Broker.Call(ctx, system.EventsLog+"."+entity.ActionFind, map[string]any{
		"query": map[string]any{entity.FieldCreatedAt: map[string]any{query.OpLt: cutoff}},
	}, meta)
	if err != nil {
		return err
	}
	expired, _ := res.([]map[string]any)
	for _, rec := range expired {
		if _, err := j.Broker.Call(ctx, system.EventsLog+"."+entity.ActionRemove,
			map[string]any{"id": storage.ID(rec)}, meta); err != nil {
			return err
		}
	}
	j.logger().Info("events log pruned", slog.Int("removed", len(expired)), slog.String("cutoff", cutoff))
	return nil
}

func (j *EventsLogJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *EventsLogJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *EventsLogJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
