package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskCRMMembershipSync = "crm.membership.sync"

const TaskCRMAssignmentRetry = "crm.assignment.retry"

type CRMMembershipSyncPayload struct {
	UnitID string `json:"unitId"`
}

type CRMAssignmentRetryPayload struct {
	UnitID   string `json:"unitId"`
	VendorID string `json:"vendorId"`
	LeadID   string `json:"leadId"`
}

func NewCRMMembershipSyncTask(payload CRMMembershipSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCRMMembershipSync, data), nil
}

func ParseCRMMembershipSyncPayload(task *asynq.Task) (CRMMembershipSyncPayload, error) {
	var payload CRMMembershipSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return CRMMembershipSyncPayload{}, err
	}
	return payload, nil
}

func NewCRMAssignmentRetryTask(payload CRMAssignmentRetryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCRMAssignmentRetry, data), nil
}

func ParseCRMAssignmentRetryPayload(task *asynq.Task) (CRMAssignmentRetryPayload, error) {
	var payload CRMAssignmentRetryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return CRMAssignmentRetryPayload{}, err
	}
	return payload, nil
}
