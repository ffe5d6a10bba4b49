package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskReminderDue fires when a record's follow-up reminder elapses.
const TaskReminderDue = "churn:reminder_due"

// TaskHealSweep triggers the periodic corrective sweep.
const TaskHealSweep = "churn:heal_sweep"

type ReminderDuePayload struct {
	RID string `json:"rid"`
}

func NewReminderDueTask(payload ReminderDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReminderDue, data), nil
}

func ParseReminderDuePayload(task *asynq.Task) (ReminderDuePayload, error) {
	var payload ReminderDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReminderDuePayload{}, err
	}
	return payload, nil
}

func NewHealSweepTask() *asynq.Task {
	return asynq.NewTask(TaskHealSweep, nil)
}
