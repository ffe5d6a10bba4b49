// Package events defines the domain events published by the churn workflow.
// Subscribers get a decoupled view of workflow transitions; the reminder
// scheduling pipeline in particular hangs off ReminderScheduled.
package events

import (
	"time"

	"churnwatch_backend/platform/events"
)

const (
	FollowUpActivatedName = "churn.followup.activated"
	ReminderScheduledName = "churn.reminder.scheduled"
	FollowUpCompletedName = "churn.followup.completed"
	RecordsImportedName   = "churn.records.imported"
)

// FollowUpActivated fires when a record's call-back workflow becomes active.
type FollowUpActivated struct {
	events.BaseEvent
	RID string `json:"rid"`
	KAM string `json:"kam"`
}

func (FollowUpActivated) EventName() string { return FollowUpActivatedName }

// ReminderScheduled fires when a record's next reminder time is set. The
// scheduler subscribes to enqueue the delayed reminder task.
type ReminderScheduled struct {
	events.BaseEvent
	RID   string    `json:"rid"`
	RunAt time.Time `json:"runAt"`
}

func (ReminderScheduled) EventName() string { return ReminderScheduledName }

// FollowUpCompleted fires when a record reaches its terminal workflow state.
type FollowUpCompleted struct {
	events.BaseEvent
	RID    string `json:"rid"`
	KAM    string `json:"kam"`
	Reason string `json:"reason"`
}

func (FollowUpCompleted) EventName() string { return FollowUpCompletedName }

// RecordsImported fires after a bulk ingestion commits.
type RecordsImported struct {
	events.BaseEvent
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

func (RecordsImported) EventName() string { return RecordsImportedName }
