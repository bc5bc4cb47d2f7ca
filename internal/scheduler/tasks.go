package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskSLASweep = "sla.sweep"

// SLASweepPayload selects the tenant and entity type a sweep covers.
type SLASweepPayload struct {
	TenantID   string `json:"tenantId"`
	EntityType string `json:"entityType"`
}

func NewSLASweepTask(payload SLASweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSLASweep, data), nil
}

func ParseSLASweepPayload(task *asynq.Task) (SLASweepPayload, error) {
	var payload SLASweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SLASweepPayload{}, err
	}
	return payload, nil
}
