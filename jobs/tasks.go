package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskEventsLog persists one broker event into the events log.
	TaskEventsLog = "events:log"
	// TaskEventsPrune removes events log entries past their retention.
	TaskEventsPrune = "events:prune"
)

// EventPayload is a broker event captured for the events log.
type EventPayload struct {
	Event     string          `json:"event"`
	Node      string          `json:"node,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	EmittedAt time.Time       `json:"emittedAt"`
}

// NewEventsLogTask constructs an Asynq task for payload.
func NewEventsLogTask(payload EventPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEventsLog, data), nil
}

// PrunePayload configures an events log prune run.
type PrunePayload struct {
	RetentionDays int `json:"retentionDays"`
}

// NewEventsPruneTask constructs the periodic prune task.
func NewEventsPruneTask(retentionDays int) (*asynq.Task, error) {
	data, err := json.Marshal(PrunePayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEventsPrune, data), nil
}
