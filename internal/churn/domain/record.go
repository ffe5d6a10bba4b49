package domain

import "time"

// FollowUpStatus is the stored lifecycle state of a record's call-back workflow.
type FollowUpStatus string

const (
	// StatusInactive covers both "pending first action" and "waiting out a
	// reminder gap".
	StatusInactive FollowUpStatus = "INACTIVE"
	// StatusActive means the record is eligible for an attempt right now.
	StatusActive FollowUpStatus = "ACTIVE"
	// StatusCompleted is terminal and absorbing.
	StatusCompleted FollowUpStatus = "COMPLETED"
)

// CallResponse is the outcome of a single call attempt.
type CallResponse string

const (
	ResponseConnected   CallResponse = "Connected"
	ResponseNoResponse  CallResponse = "NoResponse"
	ResponseBusy        CallResponse = "Busy"
	ResponseSwitchedOff CallResponse = "SwitchedOff"
	ResponseWrongNumber CallResponse = "WrongNumber"
)

var validResponses = map[CallResponse]bool{
	ResponseConnected:   true,
	ResponseNoResponse:  true,
	ResponseBusy:        true,
	ResponseSwitchedOff: true,
	ResponseWrongNumber: true,
}

// ValidResponse reports whether value is a known call response.
func ValidResponse(value CallResponse) bool {
	return validResponses[value]
}

// CallAttempt is one recorded call-back attempt. The sequence on a record is
// append-only and ordered by CallNumber.
type CallAttempt struct {
	CallNumber   int
	AttemptedAt  time.Time
	Response     CallResponse
	Notes        string
	ReasonAtCall string
}

// Record is one tracked account-churn event.
type Record struct {
	RID          string
	KAM          string
	AccountName  string
	Reason       string
	Remarks      string
	ContactPhone string
	// RecordDate is kept as ingested; unparseable values are a data-quality
	// signal surfaced by categorization, never a crash.
	RecordDate       string
	ControlledStatus ControlledStatus

	FollowUpStatus   FollowUpStatus
	IsFollowUpActive bool
	// CurrentCall is the attempt number to be recorded next, starting at 1.
	CurrentCall         int
	NextReminderTime    *time.Time
	FollowUpCompletedAt *time.Time
	Attempts            []CallAttempt

	// Version is the optimistic concurrency token; every state write is
	// conditioned on it.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsCompleted reports whether the workflow has reached its terminal state.
func (r *Record) IsCompleted() bool {
	return r.FollowUpStatus == StatusCompleted
}

// ActiveAt re-derives whether the record is actionable at the given instant.
// A stored INACTIVE record whose reminder has elapsed is reported active even
// before the background pass persists the flip.
func (r *Record) ActiveAt(now time.Time) bool {
	if r.FollowUpStatus == StatusActive {
		return true
	}
	return r.FollowUpStatus == StatusInactive &&
		r.NextReminderTime != nil &&
		!r.NextReminderTime.After(now)
}

// ReminderOverdueAt reports whether the record sits in the stored-INACTIVE,
// reminder-elapsed window.
func (r *Record) ReminderOverdueAt(now time.Time) bool {
	return r.FollowUpStatus == StatusInactive &&
		r.NextReminderTime != nil &&
		!r.NextReminderTime.After(now)
}
