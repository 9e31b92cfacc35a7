package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskSlaSweep runs one SLA breach sweep across all tenants.
const TaskSlaSweep = "routing.sla.sweep"

// TaskRoutingOutboxDue delivers one claimed outbox row to the event bus.
const TaskRoutingOutboxDue = "routing.outbox.due"

type SlaSweepPayload struct {
	// TenantID narrows the sweep; empty sweeps every tenant.
	TenantID string `json:"tenantId,omitempty"`
}

type RoutingOutboxDuePayload struct {
	OutboxID string `json:"outboxId"`
	TenantID string `json:"tenantId"`
}

func NewSlaSweepTask(payload SlaSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSlaSweep, data), nil
}

func ParseSlaSweepPayload(task *asynq.Task) (SlaSweepPayload, error) {
	var payload SlaSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SlaSweepPayload{}, err
	}
	return payload, nil
}

func NewRoutingOutboxDueTask(payload RoutingOutboxDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRoutingOutboxDue, data), nil
}

func ParseRoutingOutboxDuePayload(task *asynq.Task) (RoutingOutboxDuePayload, error) {
	var payload RoutingOutboxDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RoutingOutboxDuePayload{}, err
	}
	return payload, nil
}
