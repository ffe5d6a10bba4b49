package domain

import (
	"testing"
	"time"
)

func TestHealCorrectsDriftedRecords(t *testing.T) {
	tax := DefaultTaxonomy()

	terminalDrift := newTestRecord()
	terminalDrift.Reason = "Permanently Closed (Outlet/brand)"
	terminalDrift.FollowUpStatus = StatusActive
	terminalDrift.IsFollowUpActive = true
	reminder := testNow.Add(time.Hour)
	terminalDrift.NextReminderTime = &reminder

	boundDrift := newTestRecord()
	boundDrift.RID = "CHN-1002"
	boundDrift.Attempts = []CallAttempt{
		{CallNumber: 1, Response: ResponseNoResponse},
		{CallNumber: 2, Response: ResponseBusy},
		{CallNumber: 3, Response: ResponseNoResponse},
	}
	boundDrift.FollowUpStatus = StatusInactive

	healthy := newTestRecord()
	healthy.RID = "CHN-1003"
	healthy.Reason = "Pricing Issue"
	healthy.FollowUpStatus = StatusInactive

	records := []*Record{terminalDrift, boundDrift, healthy}
	if got := Heal(tax, records, testNow); got != 2 {
		t.Fatalf("corrected = %d, want 2", got)
	}

	for _, rec := range []*Record{terminalDrift, boundDrift} {
		if rec.FollowUpStatus != StatusCompleted {
			t.Fatalf("%s not completed by heal: %s", rec.RID, rec.FollowUpStatus)
		}
		if rec.NextReminderTime != nil {
			t.Fatalf("%s kept a reminder through heal", rec.RID)
		}
		if rec.FollowUpCompletedAt == nil {
			t.Fatalf("%s missing completion timestamp", rec.RID)
		}
	}
	if healthy.FollowUpStatus != StatusInactive {
		t.Fatalf("healthy record touched: %s", healthy.FollowUpStatus)
	}
}

func TestHealIsIdempotent(t *testing.T) {
	tax := DefaultTaxonomy()
	rec := newTestRecord()
	rec.Reason = "Switched to Another POS"
	rec.FollowUpStatus = StatusActive

	if got := Heal(tax, []*Record{rec}, testNow); got != 1 {
		t.Fatalf("first pass corrected %d, want 1", got)
	}
	stamped := *rec.FollowUpCompletedAt

	if got := Heal(tax, []*Record{rec}, testNow.Add(time.Hour)); got != 0 {
		t.Fatalf("second pass corrected %d, want 0", got)
	}
	if !rec.FollowUpCompletedAt.Equal(stamped) {
		t.Fatalf("second pass moved completion timestamp to %v", rec.FollowUpCompletedAt)
	}
}

func TestHealNeverReversesCompletion(t *testing.T) {
	tax := DefaultTaxonomy()
	rec := newTestRecord()
	rec.Reason = "Pricing Issue"
	rec.FollowUpStatus = StatusCompleted
	stamp := testNow.Add(-72 * time.Hour)
	rec.FollowUpCompletedAt = &stamp

	if HealRecord(tax, rec, testNow) {
		t.Fatal("heal must not report a correction on a completed record")
	}
	if rec.FollowUpStatus != StatusCompleted {
		t.Fatalf("completed record reversed to %s", rec.FollowUpStatus)
	}
}
