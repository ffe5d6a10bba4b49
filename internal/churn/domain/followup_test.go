package domain

import (
	"testing"
	"time"

	"churnwatch_backend/platform/apperr"
)

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

const testGap = 24 * time.Hour

func newTestRecord() *Record {
	return &Record{
		RID:            "CHN-1001",
		KAM:            "ravi.kumar",
		AccountName:    "Spice Garden",
		FollowUpStatus: StatusInactive,
		CurrentCall:    1,
	}
}

func TestApplyReasonBlankActivates(t *testing.T) {
	tax := DefaultTaxonomy()
	rec := newTestRecord()

	change := ApplyReason(tax, rec, "", testNow, testGap)

	if !change.Activated {
		t.Fatal("expected activation on blank reason")
	}
	if rec.FollowUpStatus != StatusActive || !rec.IsFollowUpActive {
		t.Fatalf("status = %s active=%v, want ACTIVE", rec.FollowUpStatus, rec.IsFollowUpActive)
	}
	if rec.NextReminderTime == nil || !rec.NextReminderTime.Equal(testNow.Add(testGap)) {
		t.Fatalf("reminder = %v, want %v", rec.NextReminderTime, testNow.Add(testGap))
	}
	if rec.ControlledStatus != ControlledUnknown {
		t.Fatalf("controlled = %s, want Unknown", rec.ControlledStatus)
	}
}

func TestApplyReasonTerminalCompletes(t *testing.T) {
	tax := DefaultTaxonomy()
	rec := newTestRecord()

	change := ApplyReason(tax, rec, "Permanently Closed (Outlet/brand)", testNow, testGap)

	if !change.Completed {
		t.Fatal("expected completion on terminal reason")
	}
	if rec.FollowUpStatus != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", rec.FollowUpStatus)
	}
	if rec.NextReminderTime != nil {
		t.Fatalf("reminder = %v, want nil", rec.NextReminderTime)
	}
	if rec.FollowUpCompletedAt == nil || !rec.FollowUpCompletedAt.Equal(testNow) {
		t.Fatalf("completedAt = %v, want %v", rec.FollowUpCompletedAt, testNow)
	}
	if rec.ControlledStatus != Uncontrolled {
		t.Fatalf("controlled = %s, want Uncontrolled", rec.ControlledStatus)
	}
}

func TestApplyReasonOtherParksInactive(t *testing.T) {
	tax := DefaultTaxonomy()
	rec := newTestRecord()
	pending := testNow.Add(6 * time.Hour)
	rec.FollowUpStatus = StatusActive
	rec.IsFollowUpActive = true
	rec.NextReminderTime = &pending

	change := ApplyReason(tax, rec, "Unhappy with onboarding experience", testNow, testGap)

	if change.Activated || change.Completed {
		t.Fatalf("unexpected change %+v for non-terminal real reason", change)
	}
	if rec.FollowUpStatus != StatusInactive || rec.IsFollowUpActive {
		t.Fatalf("status = %s active=%v, want parked INACTIVE", rec.FollowUpStatus, rec.IsFollowUpActive)
	}
	if rec.NextReminderTime == nil || !rec.NextReminderTime.Equal(pending) {
		t.Fatalf("pending reminder was disturbed: %v", rec.NextReminderTime)
	}
}

func TestApplyReasonNoDuplicateReminderOnRepeatBlank(t *testing.T) {
	tax := DefaultTaxonomy()
	rec := newTestRecord()

	first := ApplyReason(tax, rec, "", testNow, testGap)
	second := ApplyReason(tax, rec, "I don't know", testNow.Add(time.Hour), testGap)

	if first.ReminderAt == nil {
		t.Fatal("first activation must schedule a reminder")
	}
	if second.ReminderAt != nil {
		t.Fatalf("repeat activation rescheduled the reminder: %v", second.ReminderAt)
	}
	if !rec.NextReminderTime.Equal(*first.ReminderAt) {
		t.Fatalf("reminder drifted from %v to %v", *first.ReminderAt, rec.NextReminderTime)
	}
}

func TestApplyReasonCompletedAbsorbs(t *testing.T) {
	tax := DefaultTaxonomy()
	rec := newTestRecord()
	ApplyReason(tax, rec, "Permanently Closed", testNow, testGap)
	completedAt := *rec.FollowUpCompletedAt

	for _, reason := range []string{"", "Pricing Issue", "I don't know"} {
		change := ApplyReason(tax, rec, reason, testNow.Add(48*time.Hour), testGap)
		if change.Activated || change.Completed || change.ReminderAt != nil {
			t.Fatalf("reason %q produced change %+v on completed record", reason, change)
		}
		if rec.FollowUpStatus != StatusCompleted {
			t.Fatalf("reason %q reopened the record: %s", reason, rec.FollowUpStatus)
		}
		if !rec.FollowUpCompletedAt.Equal(completedAt) {
			t.Fatalf("completion timestamp moved to %v", rec.FollowUpCompletedAt)
		}
		if rec.Reason != reason {
			t.Fatalf("reason not updated on completed record: %q", rec.Reason)
		}
	}
}

func TestApplyAttemptThreeNoResponsesComplete(t *testing.T) {
	tax := DefaultTaxonomy()
	rec := newTestRecord()
	rec.FollowUpStatus = StatusActive
	rec.IsFollowUpActive = true

	now := testNow
	for call := 1; call <= 3; call++ {
		res, err := ApplyAttempt(tax, rec, AttemptInput{Response: ResponseNoResponse}, now, testGap)
		if err != nil {
			t.Fatalf("attempt %d: %v", call, err)
		}
		if res.CallNumber != call {
			t.Fatalf("attempt %d numbered %d", call, res.CallNumber)
		}
		now = now.Add(25 * time.Hour)
	}

	if rec.FollowUpStatus != StatusCompleted {
		t.Fatalf("status after third attempt = %s, want COMPLETED", rec.FollowUpStatus)
	}
	if len(rec.Attempts) != 3 {
		t.Fatalf("attempts stored = %d, want 3", len(rec.Attempts))
	}
	if rec.NextReminderTime != nil {
		t.Fatalf("reminder left set after completion: %v", rec.NextReminderTime)
	}
}

func TestApplyAttemptConnectedTerminalCompletesImmediately(t *testing.T) {
	tax := DefaultTaxonomy()
	rec := newTestRecord()
	rec.FollowUpStatus = StatusActive
	rec.IsFollowUpActive = true

	res, err := ApplyAttempt(tax, rec, AttemptInput{
		Response:     ResponseConnected,
		ReasonAtCall: "Switched to Another POS",
	}, testNow, testGap)
	if err != nil {
		t.Fatal(err)
	}

	if !res.Completed || rec.FollowUpStatus != StatusCompleted {
		t.Fatalf("connected terminal call did not complete: %+v status=%s", res, rec.FollowUpStatus)
	}
	if len(rec.Attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(rec.Attempts))
	}
	if rec.Reason != "Switched to Another POS" {
		t.Fatalf("reason not carried from call: %q", rec.Reason)
	}
	if rec.ControlledStatus != Controlled {
		t.Fatalf("controlled = %s, want Controlled", rec.ControlledStatus)
	}
}

func TestApplyAttemptTwoNoResponsesStayPending(t *testing.T) {
	tax := DefaultTaxonomy()
	rec := newTestRecord()
	rec.FollowUpStatus = StatusActive
	rec.IsFollowUpActive = true

	if _, err := ApplyAttempt(tax, rec, AttemptInput{
		Response:     ResponseNoResponse,
		ReasonAtCall: "Pricing Issue raised by owner",
	}, testNow, testGap); err != nil {
		t.Fatal(err)
	}

	second := testNow.Add(26 * time.Hour)
	res, err := ApplyAttempt(tax, rec, AttemptInput{
		Response:     ResponseNoResponse,
		ReasonAtCall: "Pricing Issue raised by owner",
	}, second, testGap)
	if err != nil {
		t.Fatal(err)
	}

	if rec.FollowUpStatus != StatusInactive {
		t.Fatalf("status = %s, want INACTIVE between attempts", rec.FollowUpStatus)
	}
	if res.NextReminderTime == nil || !res.NextReminderTime.Equal(second.Add(testGap)) {
		t.Fatalf("reminder = %v, want %v", res.NextReminderTime, second.Add(testGap))
	}
	if rec.FollowUpCompletedAt != nil {
		t.Fatal("record completed after only two attempts")
	}
	if rec.CurrentCall != 3 {
		t.Fatalf("next call = %d, want 3", rec.CurrentCall)
	}
}

func TestApplyAttemptConnectedNonTerminalContinues(t *testing.T) {
	tax := DefaultTaxonomy()
	rec := newTestRecord()
	rec.FollowUpStatus = StatusActive
	rec.IsFollowUpActive = true

	res, err := ApplyAttempt(tax, rec, AttemptInput{
		Response:     ResponseConnected,
		ReasonAtCall: "Training Gap on new billing screen",
	}, testNow, testGap)
	if err != nil {
		t.Fatal(err)
	}

	if res.Completed {
		t.Fatal("connected call with non-terminal reason must not complete")
	}
	if rec.FollowUpStatus != StatusInactive || rec.NextReminderTime == nil {
		t.Fatalf("status=%s reminder=%v, want INACTIVE with reminder", rec.FollowUpStatus, rec.NextReminderTime)
	}
}

func TestApplyAttemptRejectsUnknownResponse(t *testing.T) {
	tax := DefaultTaxonomy()
	rec := newTestRecord()

	_, err := ApplyAttempt(tax, rec, AttemptInput{Response: "Voicemail"}, testNow, testGap)
	if !apperr.Is(err, apperr.KindInvalidInput) {
		t.Fatalf("err = %v, want InvalidInput", err)
	}
	if len(rec.Attempts) != 0 {
		t.Fatal("rejected attempt was stored")
	}
}

func TestApplyAttemptCeilingNeverExceeded(t *testing.T) {
	tax := DefaultTaxonomy()
	rec := newTestRecord()
	rec.FollowUpStatus = StatusActive
	rec.IsFollowUpActive = true

	now := testNow
	var lastErr error
	for i := 0; i < 10; i++ {
		_, lastErr = ApplyAttempt(tax, rec, AttemptInput{Response: ResponseBusy}, now, testGap)
		now = now.Add(25 * time.Hour)
	}

	if len(rec.Attempts) > 4 {
		t.Fatalf("attempts = %d, ceiling is 4", len(rec.Attempts))
	}
	if !apperr.Is(lastErr, apperr.KindInvalidInput) {
		t.Fatalf("over-ceiling attempt returned %v, want InvalidInput", lastErr)
	}
	if rec.FollowUpStatus != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", rec.FollowUpStatus)
	}
}

func TestApplyAttemptOnCompletedStoresButNeverReopens(t *testing.T) {
	tax := DefaultTaxonomy()
	rec := newTestRecord()
	ApplyReason(tax, rec, "Permanently Closed", testNow, testGap)
	completedAt := *rec.FollowUpCompletedAt

	res, err := ApplyAttempt(tax, rec, AttemptInput{Response: ResponseConnected}, testNow.Add(time.Hour), testGap)
	if err != nil {
		t.Fatal(err)
	}

	if res.Status != StatusCompleted || rec.FollowUpStatus != StatusCompleted {
		t.Fatalf("completed record reopened: %s", rec.FollowUpStatus)
	}
	if len(rec.Attempts) != 1 {
		t.Fatalf("attempt against completed record not stored: %d", len(rec.Attempts))
	}
	if !rec.FollowUpCompletedAt.Equal(completedAt) {
		t.Fatalf("completion timestamp moved to %v", rec.FollowUpCompletedAt)
	}
	if rec.NextReminderTime != nil {
		t.Fatalf("reminder set on completed record: %v", rec.NextReminderTime)
	}
}

func TestMarkReminderDue(t *testing.T) {
	past := testNow.Add(-time.Minute)
	future := testNow.Add(time.Hour)

	tests := []struct {
		name     string
		status   FollowUpStatus
		reminder *time.Time
		want     bool
	}{
		{"elapsed reminder flips", StatusInactive, &past, true},
		{"future reminder waits", StatusInactive, &future, false},
		{"no reminder", StatusInactive, nil, false},
		{"already active", StatusActive, &past, false},
		{"completed", StatusCompleted, &past, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := newTestRecord()
			rec.FollowUpStatus = tc.status
			rec.NextReminderTime = tc.reminder

			if got := MarkReminderDue(rec, testNow); got != tc.want {
				t.Fatalf("MarkReminderDue = %v, want %v", got, tc.want)
			}
			if tc.want {
				if rec.FollowUpStatus != StatusActive || rec.NextReminderTime != nil {
					t.Fatalf("flip left status=%s reminder=%v", rec.FollowUpStatus, rec.NextReminderTime)
				}
			} else if rec.FollowUpStatus != tc.status {
				t.Fatalf("status changed to %s without a due reminder", rec.FollowUpStatus)
			}
		})
	}
}

func TestActiveAtRederivesElapsedReminder(t *testing.T) {
	rec := newTestRecord()
	due := testNow.Add(-time.Second)
	rec.FollowUpStatus = StatusInactive
	rec.NextReminderTime = &due

	if !rec.ActiveAt(testNow) {
		t.Fatal("elapsed reminder must read as active before the flip persists")
	}
	if rec.FollowUpStatus != StatusInactive {
		t.Fatal("ActiveAt must not mutate stored state")
	}
}
