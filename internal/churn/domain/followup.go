package domain

import (
	"time"

	"churnwatch_backend/platform/apperr"
)

const (
	// maxFollowUpCalls is the authoritative attempt bound: completion
	// triggers once the third attempt has been recorded.
	maxFollowUpCalls = 3
	// attemptCeiling is the structural hard cap on stored attempts. The
	// normal workflow completes at maxFollowUpCalls; the ceiling only
	// matters when an attempt lands on an already completed record.
	attemptCeiling = 4
)

// ReasonChange is the outcome of applying a reason update to a record.
type ReasonChange struct {
	// Activated is true when the update moved the record into ACTIVE.
	Activated bool
	// ReminderAt is set when a new reminder was scheduled by this update.
	ReminderAt *time.Time
	// Completed is true when the update moved the record into COMPLETED.
	Completed bool
}

// ApplyReason reclassifies the record against the new reason and advances the
// follow-up workflow accordingly. A NoResponse reason activates the workflow
// (scheduling the first reminder if none is pending), a Terminal reason
// completes it, any other reason parks it INACTIVE without touching an
// existing reminder. COMPLETED is absorbing: the reason and its controlled
// status still update, the workflow never reopens.
func ApplyReason(tax *Taxonomy, rec *Record, reason string, now time.Time, reminderGap time.Duration) ReasonChange {
	class := tax.Classify(reason)

	rec.Reason = reason
	rec.ControlledStatus = tax.Controlled(reason)

	if rec.IsCompleted() {
		return ReasonChange{}
	}

	var change ReasonChange
	switch class {
	case ReasonNoResponse:
		firstActivation := rec.FollowUpStatus != StatusActive && rec.NextReminderTime == nil
		change.Activated = rec.FollowUpStatus != StatusActive
		rec.FollowUpStatus = StatusActive
		rec.IsFollowUpActive = true
		if firstActivation {
			reminder := now.Add(reminderGap)
			rec.NextReminderTime = &reminder
			change.ReminderAt = &reminder
		}
	case ReasonTerminal:
		complete(rec, now)
		change.Completed = true
	default:
		// A real, non-terminal reason has been supplied; any pending
		// reminder stays untouched.
		rec.FollowUpStatus = StatusInactive
		rec.IsFollowUpActive = false
	}

	return change
}

// AttemptInput is the caller-supplied portion of a call attempt.
type AttemptInput struct {
	Response     CallResponse
	Notes        string
	ReasonAtCall string
}

// AttemptResult reports how an attempt advanced the workflow.
type AttemptResult struct {
	CallNumber       int
	NextCall         int
	Status           FollowUpStatus
	NextReminderTime *time.Time
	Completed        bool
}

// ApplyAttempt appends a call attempt and advances the state machine. The
// follow-up continues only while the call did not both connect and surface a
// terminal reason, the next attempt would not exceed the ceiling, and fewer
// than three attempts exist; otherwise the record completes. Recording
// against an already COMPLETED record is accepted but never reopens it.
func ApplyAttempt(tax *Taxonomy, rec *Record, in AttemptInput, now time.Time, reminderGap time.Duration) (AttemptResult, error) {
	if !ValidResponse(in.Response) {
		return AttemptResult{}, apperr.InvalidInput("unknown call response")
	}
	if len(rec.Attempts) >= attemptCeiling {
		return AttemptResult{}, apperr.InvalidInput("call attempt limit reached")
	}

	rec.Attempts = append(rec.Attempts, CallAttempt{
		CallNumber:   rec.CurrentCall,
		AttemptedAt:  now,
		Response:     in.Response,
		Notes:        in.Notes,
		ReasonAtCall: in.ReasonAtCall,
	})
	nextCall := rec.CurrentCall + 1

	result := AttemptResult{
		CallNumber: rec.CurrentCall,
		NextCall:   nextCall,
	}

	if rec.IsCompleted() {
		// Terminal guarantee: the attempt is stored, the completion
		// fields stay as they are.
		rec.CurrentCall = nextCall
		rec.IsFollowUpActive = false
		rec.NextReminderTime = nil
		applyCallReason(tax, rec, in.ReasonAtCall)
		result.Status = StatusCompleted
		return result, nil
	}

	isTerminalNow := tax.Classify(in.ReasonAtCall) == ReasonTerminal
	continueFollowUp := (in.Response != ResponseConnected || !isTerminalNow) &&
		nextCall <= attemptCeiling &&
		rec.CurrentCall < maxFollowUpCalls

	if continueFollowUp {
		rec.FollowUpStatus = StatusInactive
		rec.IsFollowUpActive = false
		reminder := now.Add(reminderGap)
		rec.NextReminderTime = &reminder
		result.NextReminderTime = &reminder
	} else {
		complete(rec, now)
		result.Completed = true
	}

	rec.CurrentCall = nextCall
	applyCallReason(tax, rec, in.ReasonAtCall)

	result.Status = rec.FollowUpStatus
	return result, nil
}

// MarkReminderDue persists the read-time "reminder elapsed" derivation:
// a stored INACTIVE record whose reminder has passed becomes ACTIVE.
// Returns false when the record is not in that window.
func MarkReminderDue(rec *Record, now time.Time) bool {
	if !rec.ReminderOverdueAt(now) {
		return false
	}
	rec.FollowUpStatus = StatusActive
	rec.IsFollowUpActive = true
	rec.NextReminderTime = nil
	return true
}

// complete moves the record into the absorbing COMPLETED state. The
// completion timestamp is stamped exactly once and never overwritten.
func complete(rec *Record, now time.Time) {
	rec.FollowUpStatus = StatusCompleted
	rec.IsFollowUpActive = false
	rec.NextReminderTime = nil
	if rec.FollowUpCompletedAt == nil {
		stamp := now
		rec.FollowUpCompletedAt = &stamp
	}
}

// applyCallReason overwrites the record reason from a non-empty
// reason-at-call and recomputes its controlled status.
func applyCallReason(tax *Taxonomy, rec *Record, reasonAtCall string) {
	if reasonAtCall == "" {
		return
	}
	rec.Reason = reasonAtCall
	rec.ControlledStatus = tax.Controlled(reasonAtCall)
}
